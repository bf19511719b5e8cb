package auditlog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	Service
	last    AuditLogFilter
	entries []AuditLogResponse
}

func (r *recordingService) GetAuditLogs(_ context.Context, f AuditLogFilter) (*PaginatedAuditLogs, error) {
	r.last = f
	return &PaginatedAuditLogs{Data: r.entries, Total: int64(len(r.entries)), Page: f.Page, Limit: f.Limit}, nil
}

func (r *recordingService) GetAuditLogByID(_ context.Context, id uint) (*AuditLogResponse, error) {
	for _, e := range r.entries {
		if e.ID == id {
			e := e
			return &e, nil
		}
	}
	return nil, errors.New("audit log not found")
}

func uptr(u uint) *uint { return &u }

func newAuditRouter(svc Service, schoolID *uint, all bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc, func(*gin.Context) (*uint, bool) { return schoolID, all })
	r := gin.New()
	r.GET("/auditlogs", h.GetAuditLogs)
	r.GET("/auditlogs/stats", h.GetAuditLogStats)
	r.GET("/auditlogs/:id", h.GetAuditLogByID)
	r.GET("/login-audit", h.GetLoginAudit)
	return r
}

func get(r *gin.Engine, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	return w
}

func TestSchoolAdminIsPinnedToOwnSchool(t *testing.T) {
	svc := &recordingService{}
	r := newAuditRouter(svc, uptr(9), false)

	w := get(r, "/auditlogs?school_id=4&module=guest&status=failure&search=%20asha%20&limit=50&page=2")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.last.SchoolID)
	assert.Equal(t, uint(9), *svc.last.SchoolID, "school_id of another school is ignored")
	assert.Equal(t, "GUEST", svc.last.ActionPrefix)
	assert.Equal(t, StatusFailure, svc.last.Status)
	assert.Equal(t, "asha", svc.last.Search)
	assert.Equal(t, 50, svc.last.Limit)
	assert.Equal(t, 2, svc.last.Page)

	w = get(newAuditRouter(svc, nil, false), "/auditlogs")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPlatformAdminFiltersAnySchool(t *testing.T) {
	svc := &recordingService{}
	r := newAuditRouter(svc, nil, true)

	w := get(r, "/auditlogs?school_id=4&from_date=2024-03-01&to_date=2024-03-02&limit=500")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.last.SchoolID)
	assert.Equal(t, uint(4), *svc.last.SchoolID)
	assert.Equal(t, 20, svc.last.Limit, "limits over 100 fall back to the default")
	require.NotNil(t, svc.last.ToDate)
	assert.Equal(t, "2024-03-02 23:59:59", svc.last.ToDate.Format("2006-01-02 15:04:05"))

	assert.Equal(t, http.StatusBadRequest, get(r, "/auditlogs?from_date=01-03-2024").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/auditlogs?status=maybe").Code)
}

func TestLoginAuditSharesFilter(t *testing.T) {
	svc := &recordingService{}
	r := newAuditRouter(svc, nil, true)

	w := get(r, "/login-audit?action=GUEST&status=success&search=admin@")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "LOGIN", svc.last.ActionPrefix)
	assert.Empty(t, svc.last.Action)
	assert.Equal(t, "admin@", svc.last.Search)
}

func TestAuditEntryOfAnotherSchoolIsHidden(t *testing.T) {
	svc := &recordingService{entries: []AuditLogResponse{
		{ID: 1, SchoolID: uptr(9), Action: "GUEST_CREATED", Status: StatusSuccess},
		{ID: 2, SchoolID: uptr(4), Action: "GUEST_CREATED", Status: StatusSuccess},
		{ID: 3, Action: "PLAN_CREATED", Status: StatusSuccess},
	}}
	r := newAuditRouter(svc, uptr(9), false)

	assert.Equal(t, http.StatusOK, get(r, "/auditlogs/1").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/auditlogs/2").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/auditlogs/3").Code, "platform-level entries stay with platform admins")
	assert.Equal(t, http.StatusOK, get(newAuditRouter(svc, nil, true), "/auditlogs/3").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/auditlogs/abc").Code)
}

func TestAuditStatsByModule(t *testing.T) {
	svc := &recordingService{entries: []AuditLogResponse{
		{Action: "GUEST_CREATED", Status: StatusSuccess},
		{Action: "GUEST_CHECKED_IN", Status: StatusSuccess},
		{Action: "EVENT_TYPE_FIELDS_SAVED", Status: StatusFailure},
		{Action: "FEE_PAYMENT_FAILED", Status: StatusFailure},
	}}
	r := newAuditRouter(svc, uptr(9), false)

	w := get(r, "/auditlogs/stats?days=30")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, statsSample, svc.last.Limit)
	require.NotNil(t, svc.last.FromDate)
	assert.Equal(t, uint(9), *svc.last.SchoolID)

	var body struct {
		Data TrailStats `json:"data"`
	}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 4, body.Data.Total)
	assert.Equal(t, 2, body.Data.Success)
	assert.Equal(t, 2, body.Data.Failure)
	assert.Equal(t, map[string]int{"GUEST": 2, "EVENT_TYPE": 1, "FEE": 1}, body.Data.ByModule)
	assert.Equal(t, 1, body.Data.Failing["FEE_PAYMENT_FAILED"])
}
