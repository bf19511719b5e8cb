package guest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sharath018/school-management-backend/internal/event"
	"github.com/sharath018/school-management-backend/internal/eventtype"
	"github.com/sharath018/school-management-backend/internal/reports"
	"github.com/sharath018/school-management-backend/middleware"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func writeError(c *gin.Context, err error) {
	var ve *eventtype.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": ve.Fields})
	case errors.Is(err, ErrNotFound), errors.Is(err, event.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrWriteDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrBlocked), errors.Is(err, ErrFullyArrived):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrPhotoTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUnsupportedType), errors.Is(err, ErrInvalidCSVHead):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, reports.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
	}
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// ===========================
// 🎯 Create Guest - POST /events/:id/guests
// @Summary Register a guest with form answers
// @Tags Guests
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param body body GuestRequest true "Guest"
// @Success 201 {object} Guest
// @Router /api/v1/events/{id}/guests [post]
func (h *Handler) Create(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req GuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	g, err := h.Service.CreateGuest(c.Request.Context(), eventID, &req, ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

// ===========================
// 📄 List Guests - GET /events/:id/guests
// @Summary List guests of an event
// @Tags Guests
// @Produce json
// @Param id path int true "Event ID"
// @Param q query string false "Name, phone or guest code"
// @Param status query string false "invited | checked_in | blocked"
// @Param guest_type query string false "Guest type"
// @Param per_page query int false "25 | 50 | 100 | 200"
// @Param sort_by query string false "full_name | created_at | status | guest_type | arrived_count"
// @Param sort_dir query string false "asc | desc"
// @Success 200 {object} ListResult
// @Router /api/v1/events/{id}/guests [get]
func (h *Handler) List(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(DefaultPerPage)))
	res, err := h.Service.ListGuests(c.Request.Context(), schoolID, eventID, ListFilter{
		Query:     c.Query("q"),
		Status:    c.Query("status"),
		GuestType: c.Query("guest_type"),
		SortBy:    c.Query("sort_by"),
		SortDir:   c.Query("sort_dir"),
		Page:      page,
		PerPage:   perPage,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ===========================
// 🧾 Guest form - GET /events/:id/guests/form
func (h *Handler) Form(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	form, err := h.Service.Form(c.Request.Context(), schoolID, eventID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

// ===========================
// 🔍 Get Guest - GET /events/:id/guests/:guestID
func (h *Handler) Get(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	guestID, ok := pathID(c, "guestID")
	if !ok {
		return
	}
	g, err := h.Service.GetGuest(c.Request.Context(), schoolID, eventID, guestID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// ===========================
// 🛠 Update Guest - PUT /events/:id/guests/:guestID
func (h *Handler) Update(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	guestID, ok := pathID(c, "guestID")
	if !ok {
		return
	}
	var req GuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	g, err := h.Service.UpdateGuest(c.Request.Context(), eventID, guestID, &req, ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// ===========================
// ❌ Delete Guest - DELETE /events/:id/guests/:guestID
func (h *Handler) Delete(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	guestID, ok := pathID(c, "guestID")
	if !ok {
		return
	}
	if err := h.Service.DeleteGuest(c.Request.Context(), eventID, guestID, ac, schoolID, middleware.GetIPFromContext(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Guest deleted successfully"})
}

// ===========================
// ✅ Check-in - POST /events/:id/guests/check-in
// @Summary Check a guest in by guest code or QR token
// @Tags Guests
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param body body CheckInRequest true "Code and arrivals"
// @Success 200 {object} Guest
// @Router /api/v1/events/{id}/guests/check-in [post]
func (h *Handler) CheckIn(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	g, err := h.Service.CheckIn(c.Request.Context(), eventID, &req, ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// ===========================
// 📷 Upload Photo - POST /events/:id/guests/:guestID/photo
// @Summary Upload a guest photo (jpeg, png or webp up to 5MB)
// @Tags Guests
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Event ID"
// @Param guestID path int true "Guest ID"
// @Param photo formData file true "Photo"
// @Success 200 {object} Guest
// @Router /api/v1/events/{id}/guests/{guestID}/photo [post]
func (h *Handler) UploadPhoto(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	guestID, ok := pathID(c, "guestID")
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxPhotoBytes+1<<20)
	fh, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	if fh.Size > MaxPhotoBytes {
		writeError(c, ErrPhotoTooLarge)
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read photo"})
		return
	}
	defer f.Close()

	g, err := h.Service.UploadPhoto(c.Request.Context(), eventID, guestID, fh.Filename, f, ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// ===========================
// 📥 Import - POST /events/:id/guests/import
// @Summary Import guests from CSV or XLSX
// @Tags Guests
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Event ID"
// @Param file formData file true "CSV or XLSX"
// @Success 200 {object} ImportResult
// @Router /api/v1/events/{id}/guests/import [post]
func (h *Handler) Import(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	defer f.Close()

	res, err := h.Service.Import(c.Request.Context(), eventID, fh.Filename, f, ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ===========================
// 📤 Export - GET /events/:id/guests/export?format=
// @Summary Export the guest list
// @Tags Guests
// @Produce html,application/pdf,text/csv
// @Param id path int true "Event ID"
// @Param format query string false "html | pdf | xlsx | csv"
// @Success 200 {file} file
// @Router /api/v1/events/{id}/guests/export [get]
func (h *Handler) Export(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.Service.Export(c.Request.Context(), eventID, c.DefaultQuery("format", reports.FormatCSV), ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	reports.WriteOutput(c, out)
}
