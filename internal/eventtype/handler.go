package eventtype

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sharath018/school-management-backend/middleware"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// WriteError maps eventtype errors to HTTP responses.
func WriteError(c *gin.Context, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": ve.Fields})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrWriteDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUnknownGroup), errors.Is(err, ErrUnknownField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
	}
}

// ===========================
// 🎯 Create Event Type - POST /event-types
// @Summary Create event type
// @Tags EventTypes
// @Accept json
// @Produce json
// @Param body body CreateEventTypeRequest true "Event type"
// @Success 201 {object} EventType
// @Router /api/v1/event-types [post]
func (h *Handler) Create(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	var req CreateEventTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: " + err.Error()})
		return
	}

	et, err := h.Service.CreateEventType(c.Request.Context(), &req, ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, et)
}

// ===========================
// 📄 List Event Types - GET /event-types
// @Summary List event types
// @Tags EventTypes
// @Produce json
// @Param active query bool false "Only active types"
// @Success 200 {array} EventType
// @Router /api/v1/event-types [get]
func (h *Handler) List(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	activeOnly := c.Query("active") == "true"
	types, err := h.Service.ListEventTypes(c.Request.Context(), schoolID, activeOnly)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, types)
}

// ===========================
// 🔍 Get Event Type - GET /event-types/:id
func (h *Handler) Get(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	et, err := h.Service.GetEventType(c.Request.Context(), schoolID, id)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, et)
}

// ===========================
// 🛠 Update Event Type - PUT /event-types/:id
func (h *Handler) Update(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateEventTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: " + err.Error()})
		return
	}
	et, err := h.Service.UpdateEventType(c.Request.Context(), id, &req, ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, et)
}

// ===========================
// ❌ Delete Event Type - DELETE /event-types/:id
func (h *Handler) Delete(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.Service.DeleteEventType(c.Request.Context(), id, ac, schoolID, middleware.GetIPFromContext(c)); err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "event type deleted successfully"})
}

// ===========================
// 🧩 Get Fields - GET /event-types/:id/fields
// @Summary Field groups and fields of an event type
// @Tags EventTypes
// @Produce json
// @Param id path int true "Event type ID"
// @Success 200 {object} FieldSet
// @Router /api/v1/event-types/{id}/fields [get]
func (h *Handler) GetFields(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	set, err := h.Service.GetFields(c.Request.Context(), schoolID, id)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

// ===========================
// 💾 Save Fields - PUT /event-types/:id/fields
// @Summary Replace all field groups and fields in one transaction
// @Tags EventTypes
// @Accept json
// @Produce json
// @Param id path int true "Event type ID"
// @Param body body SaveFieldsRequest true "Whole working set"
// @Success 200 {object} FieldSet
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/event-types/{id}/fields [put]
func (h *Handler) SaveFields(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req SaveFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: " + err.Error()})
		return
	}
	set, err := h.Service.SaveFields(c.Request.Context(), schoolID, id, &req, ac, middleware.GetIPFromContext(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}
