package auditlog

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// ScopeFunc reports which audit entries the caller may read. all is true for
// callers who see every school; otherwise entries are limited to schoolID, and
// a nil schoolID means the caller sees nothing.
type ScopeFunc func(c *gin.Context) (schoolID *uint, all bool)

type Handler struct {
	service Service
	scope   ScopeFunc
}

func NewHandler(service Service, scope ScopeFunc) *Handler {
	return &Handler{service: service, scope: scope}
}

var errNoScope = errors.New("no school in scope for this user")

// queryUint returns nil for a missing or malformed value.
func queryUint(c *gin.Context, name string) *uint {
	v, err := strconv.ParseUint(c.Query(name), 10, 32)
	if err != nil || v == 0 {
		return nil
	}
	id := uint(v)
	return &id
}

func queryDate(c *gin.Context, name string, endOfDay bool) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, errors.New("invalid " + name + ", use YYYY-MM-DD")
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Second)
	}
	return &d, nil
}

// parseFilter reads the shared list query: user_id, school_id, action,
// module (action family such as GUEST or FEE), status, search, from_date,
// to_date, page and limit (max 100).
func parseFilter(c *gin.Context) (AuditLogFilter, error) {
	f := AuditLogFilter{
		UserID:       queryUint(c, "user_id"),
		SchoolID:     queryUint(c, "school_id"),
		Action:       c.Query("action"),
		ActionPrefix: strings.ToUpper(strings.TrimSpace(c.Query("module"))),
		Status:       c.Query("status"),
		Search:       strings.TrimSpace(c.Query("search")),
		Page:         1,
		Limit:        20,
	}
	if f.Status != "" && f.Status != StatusSuccess && f.Status != StatusFailure {
		return f, errors.New("status must be success or failure")
	}
	var err error
	if f.FromDate, err = queryDate(c, "from_date", false); err != nil {
		return f, err
	}
	if f.ToDate, err = queryDate(c, "to_date", true); err != nil {
		return f, err
	}
	if page, err := strconv.Atoi(c.Query("page")); err == nil && page > 0 {
		f.Page = page
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 && limit <= 100 {
		f.Limit = limit
	}
	return f, nil
}

// restrict pins f to the caller's school unless the caller sees all schools.
func (h *Handler) restrict(c *gin.Context, f *AuditLogFilter) error {
	if h.scope == nil {
		return nil
	}
	schoolID, all := h.scope(c)
	if all {
		return nil
	}
	if schoolID == nil {
		return errNoScope
	}
	f.SchoolID = schoolID
	return nil
}

func (h *Handler) list(c *gin.Context, f AuditLogFilter) {
	if err := h.restrict(c, &f); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	result, err := h.service.GetAuditLogs(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load audit trail", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ===========================
// 📜 Audit trail - GET /auditlogs
// @Summary Audit trail
// @Description Platform admins see every school; school admins only their own.
// @Tags AuditLog
// @Produce json
// @Param user_id query uint false "User ID"
// @Param school_id query uint false "School ID (platform admin)"
// @Param module query string false "Action family, e.g. GUEST, FEE, EVENT_TYPE"
// @Param action query string false "Action (partial match)"
// @Param status query string false "success or failure"
// @Param search query string false "Email, name or IP"
// @Param from_date query string false "YYYY-MM-DD"
// @Param to_date query string false "YYYY-MM-DD"
// @Param page query int false "Page"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} PaginatedAuditLogs
// @Router /api/v1/auditlogs [get]
func (h *Handler) GetAuditLogs(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.list(c, f)
}

// GetAuditLogByID - GET /auditlogs/:id
// @Summary Audit entry
// @Tags AuditLog
// @Produce json
// @Param id path uint true "Audit log ID"
// @Success 200 {object} AuditLogResponse
// @Router /api/v1/auditlogs/{id} [get]
func (h *Handler) GetAuditLogByID(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid audit log id"})
		return
	}
	var scoped AuditLogFilter
	if err := h.restrict(c, &scoped); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.service.GetAuditLogByID(c.Request.Context(), uint(id))
	// Entries of other schools look the same as missing ones.
	if err != nil || (scoped.SchoolID != nil && (entry.SchoolID == nil || *entry.SchoolID != *scoped.SchoolID)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit log not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ===========================
// 🔐 Login audit - GET /platform/login-audit
// @Summary Login audit
// @Tags AuditLog
// @Produce json
// @Param status query string false "success or failure"
// @Param search query string false "Email, name or IP"
// @Param from_date query string false "YYYY-MM-DD"
// @Param to_date query string false "YYYY-MM-DD"
// @Param page query int false "Page"
// @Success 200 {object} PaginatedAuditLogs
// @Router /api/v1/platform/login-audit [get]
func (h *Handler) GetLoginAudit(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f.Action = ""
	f.ActionPrefix = "LOGIN"
	h.list(c, f)
}

// GetLoginStats - GET /platform/login-audit/stats
// @Summary Login statistics
// @Tags AuditLog
// @Produce json
// @Param days query int false "Window in days (default 7)"
// @Success 200 {object} LoginStats
// @Router /api/v1/platform/login-audit/stats [get]
func (h *Handler) GetLoginStats(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	stats, err := h.service.GetLoginStats(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load login stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// TrailStats summarizes a window of the audit trail.
type TrailStats struct {
	Total    int64          `json:"total"`
	Sampled  int            `json:"sampled"`
	Success  int            `json:"success"`
	Failure  int            `json:"failure"`
	ByModule map[string]int `json:"by_module"`
	Failing  map[string]int `json:"failing_actions"`
}

const statsSample = 1000

// moduleOf returns the action family: GUEST_CHECKED_IN -> GUEST,
// EVENT_TYPE_FIELDS_SAVED -> EVENT_TYPE.
func moduleOf(action string) string {
	for _, family := range []string{"EVENT_TYPE", "SCHOOL_USER", "CONTACT_MESSAGE"} {
		if strings.HasPrefix(action, family+"_") {
			return family
		}
	}
	if i := strings.IndexByte(action, '_'); i > 0 {
		return action[:i]
	}
	return action
}

func summarize(total int64, entries []AuditLogResponse) TrailStats {
	st := TrailStats{Total: total, Sampled: len(entries), ByModule: map[string]int{}, Failing: map[string]int{}}
	for _, e := range entries {
		st.ByModule[moduleOf(e.Action)]++
		if e.Status == StatusSuccess {
			st.Success++
			continue
		}
		st.Failure++
		st.Failing[e.Action]++
	}
	return st
}

// GetAuditLogStats - GET /auditlogs/stats
// @Summary Audit trail summary by module and status
// @Tags AuditLog
// @Produce json
// @Param days query int false "Window in days when from_date is not given (default 7)"
// @Param module query string false "Action family"
// @Success 200 {object} TrailStats
// @Router /api/v1/auditlogs/stats [get]
func (h *Handler) GetAuditLogStats(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if f.FromDate == nil {
		days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
		if err != nil || days <= 0 {
			days = 7
		}
		from := time.Now().AddDate(0, 0, -days)
		f.FromDate = &from
	}
	f.Page, f.Limit = 1, statsSample
	if err := h.restrict(c, &f); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.GetAuditLogs(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load audit stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summarize(result.Total, result.Data)})
}
