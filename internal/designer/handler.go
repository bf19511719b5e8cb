package designer

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sharath018/school-management-backend/internal/eventtype"
	"github.com/sharath018/school-management-backend/middleware"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

type target struct {
	ac          middleware.AccessContext
	schoolID    uint
	eventTypeID uint
}

func resolve(c *gin.Context) (target, bool) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return target{}, false
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event type id"})
		return target{}, false
	}
	return target{ac: ac, schoolID: schoolID, eventTypeID: uint(id)}, true
}

func refParam(c *gin.Context, name string) (Ref, bool) {
	ref, err := ParseRef(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return Ref{}, false
	}
	return ref, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNoSession):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "hint": "POST the designer endpoint to open a session"})
	case errors.Is(err, ErrUnknownRef):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		eventtype.WriteError(c, err)
	}
}

// Open - POST /event-types/:id/designer
// @Summary Open a field designer session
// @Tags Designer
// @Produce json
// @Param id path int true "Event type ID"
// @Success 200 {object} Session
// @Router /api/v1/event-types/{id}/designer [post]
func (h *Handler) Open(c *gin.Context) {
	t, ok := resolve(c)
	if !ok {
		return
	}
	sess, err := h.Service.Open(c.Request.Context(), t.ac, t.schoolID, t.eventTypeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// State - GET /event-types/:id/designer
func (h *Handler) State(c *gin.Context) {
	t, ok := resolve(c)
	if !ok {
		return
	}
	sess, err := h.Service.State(c.Request.Context(), t.ac, t.schoolID, t.eventTypeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// AddGroup - POST /event-types/:id/designer/groups
func (h *Handler) AddGroup(c *gin.Context) {
	t, ok := resolve(c)
	if !ok {
		return
	}
	var body GroupBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: " + err.Error()})
		return
	}
	sess, ref, err := h.Service.AddGroup(c.Request.Context(), t.ac, t.schoolID, t.eventTypeID, body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ref": ref, "session": sess})
}

// UpdateGroup - PUT /event-types/:id/designer/groups/:gid
func (h *Handler) UpdateGroup(c *gin.Context) {
	t, ok := resolve(c)
	if !ok {
		return
	}
	ref, ok := refParam(c, "gid")
	if !ok {
		return
	}
	var body GroupBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: " + err.Error()})
		return
	}
	sess, err := h.Service.UpdateGroup(c.Request.Context(), t.ac, t.schoolID, t.eventTypeID, ref, body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// DeleteGroup - DELETE /event-types/:id/designer/groups/:gid
func (h *Handler) DeleteGroup(c *gin.Context) {
	t, ok := resolve(c)
	if !ok {
		return
	}
	ref, ok := refParam(c, "gid")
	if !ok {
		return
	}
	sess, err := h.Service.DeleteGroup(c.Request.Context(), t.ac, t.schoolID, t.eventTypeID, ref)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// AddField - POST /event-types/:id/designer/fields
func (h *Handler) AddField(c *gin.Context) {
	t, ok := resolve(c)
	if !ok {
		return
	}
	var body FieldBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: " + err.Error()})
		return
	}
	sess, ref, err := h.Service.AddField(c.Request.Context(), t.ac, t.schoolID, t.eventTypeID, body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ref": ref, "session": sess})
}

// UpdateField - PUT /event-types/:id/designer/fields/:fid
func (h *Handler) UpdateField(c *gin.Context) {
	t, ok := resolve(c)
	if !ok {
		return
	}
	ref, ok := refParam(c, "fid")
	if !ok {
		return
	}
	var body FieldBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: " + err.Error()})
		return
	}
	sess, err := h.Service.UpdateField(c.Request.Context(), t.ac, t.schoolID, t.eventTypeID, ref, body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// DeleteField - DELETE /event-types/:id/designer/fields/:fid
func (h *Handler) DeleteField(c *gin.Context) {
	t, ok := resolve(c)
	if !ok {
		return
	}
	ref, ok := refParam(c, "fid")
	if !ok {
		return
	}
	sess, err := h.Service.DeleteField(c.Request.Context(), t.ac, t.schoolID, t.eventTypeID, ref)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// ToggleField - POST /event-types/:id/designer/fields/:fid/toggle
func (h *Handler) ToggleField(c *gin.Context) {
	t, ok := resolve(c)
	if !ok {
		return
	}
	ref, ok := refParam(c, "fid")
	if !ok {
		return
	}
	sess, err := h.Service.ToggleField(c.Request.Context(), t.ac, t.schoolID, t.eventTypeID, ref)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// MoveField - POST /event-types/:id/designer/fields/:fid/move
func (h *Handler) MoveField(c *gin.Context) {
	t, ok := resolve(c)
	if !ok {
		return
	}
	ref, ok := refParam(c, "fid")
	if !ok {
		return
	}
	var body struct {
		Direction Direction `json:"direction" binding:"required,oneof=up down"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be up or down"})
		return
	}
	sess, err := h.Service.MoveField(c.Request.Context(), t.ac, t.schoolID, t.eventTypeID, ref, body.Direction)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Commit - POST /event-types/:id/designer/commit
// @Summary Persist the whole working set in one transaction
// @Tags Designer
// @Produce json
// @Param id path int true "Event type ID"
// @Success 200 {object} Session
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/event-types/{id}/designer/commit [post]
func (h *Handler) Commit(c *gin.Context) {
	t, ok := resolve(c)
	if !ok {
		return
	}
	sess, err := h.Service.Commit(c.Request.Context(), t.ac, t.schoolID, t.eventTypeID, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Discard - DELETE /event-types/:id/designer
func (h *Handler) Discard(c *gin.Context) {
	t, ok := resolve(c)
	if !ok {
		return
	}
	if err := h.Service.Discard(c.Request.Context(), t.ac, t.eventTypeID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "designer session discarded"})
}
