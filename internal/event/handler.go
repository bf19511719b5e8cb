package event

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

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrWriteDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidSchedule), errors.Is(err, ErrInvalidCapacity),
		errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrUnknownEventType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
	}
}

func eventID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return 0, false
	}
	return uint(id), true
}

// ===========================
// 🎯 Create Event - POST /events
// @Summary Create event
// @Tags Events
// @Accept json
// @Produce json
// @Param body body EventRequest true "Event"
// @Success 201 {object} Event
// @Router /api/v1/events [post]
func (h *Handler) CreateEvent(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	e, err := h.Service.CreateEvent(c.Request.Context(), &req, ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

// ===========================
// 📄 List Events - GET /events?search=&status=&page=&limit=
// @Summary List events
// @Tags Events
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/events [get]
func (h *Handler) ListEvents(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	events, total, err := h.Service.ListEvents(c.Request.Context(), schoolID, ListFilter{
		Search: c.Query("search"),
		Status: c.Query("status"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": events,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// ===========================
// 🔍 Get Event - GET /events/:id
func (h *Handler) GetEvent(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := eventID(c)
	if !ok {
		return
	}
	e, err := h.Service.GetEvent(c.Request.Context(), schoolID, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// ===========================
// 🛠 Update Event - PUT /events/:id
func (h *Handler) UpdateEvent(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := eventID(c)
	if !ok {
		return
	}
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	e, err := h.Service.UpdateEvent(c.Request.Context(), id, &req, ac, schoolID, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// ===========================
// ❌ Delete Event - DELETE /events/:id
func (h *Handler) DeleteEvent(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := eventID(c)
	if !ok {
		return
	}
	if err := h.Service.DeleteEvent(c.Request.Context(), id, ac, schoolID, middleware.GetIPFromContext(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Event deleted successfully"})
}

// ===========================
// 📊 Event Stats - GET /events/:id/stats
// @Summary Guest statistics of an event
// @Tags Events
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} Stats
// @Router /api/v1/events/{id}/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := eventID(c)
	if !ok {
		return
	}
	st, err := h.Service.GetStats(c.Request.Context(), schoolID, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
