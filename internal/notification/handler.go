package notification

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sharath018/school-management-backend/middleware"
)

// TokenParser validates access tokens for streams opened without headers.
type TokenParser interface {
	ParseAccessToken(token string) (jwt.MapClaims, error)
}

type Handler struct {
	Service *Service
	Tokens  TokenParser

	keepAlive time.Duration
}

func NewHandler(s *Service, tokens TokenParser) *Handler {
	return &Handler{Service: s, Tokens: tokens, keepAlive: 25 * time.Second}
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrTemplateNotFound), errors.Is(err, ErrNotificationNotFound), errors.Is(err, ErrTokenNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrWriteDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNoRecipients), errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrBadTemplate), errors.Is(err, ErrChannelMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrPushDisabled), errors.Is(err, ErrStreamUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
	}
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// ===========================
// 📝 Templates
// ===========================

// @Summary Create a notification template
// @Tags Notifications
// @Accept json
// @Produce json
// @Param body body TemplateRequest true "Template"
// @Success 201 {object} NotificationTemplate
// @Router /api/v1/notifications/templates [post]
func (h *Handler) CreateTemplate(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	t, err := h.Service.CreateTemplate(c.Request.Context(), ac, schoolID, &req, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListTemplates(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	list, err := h.Service.ListTemplates(c.Request.Context(), schoolID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *Handler) GetTemplate(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	t, err := h.Service.GetTemplate(c.Request.Context(), schoolID, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) UpdateTemplate(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	t, err := h.Service.UpdateTemplate(c.Request.Context(), ac, schoolID, id, &req, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTemplate(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Service.DeleteTemplate(c.Request.Context(), ac, schoolID, id, middleware.GetIPFromContext(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Template deleted"})
}

// ===========================
// 📤 Send - POST /notifications/send
// @Summary Send an email or push notification
// @Tags Notifications
// @Accept json
// @Produce json
// @Param body body SendRequest true "Message"
// @Success 200 {object} NotificationLog
// @Router /api/v1/notifications/send [post]
func (h *Handler) Send(c *gin.Context) {
	ac, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	entry, err := h.Service.Send(c.Request.Context(), ac, schoolID, &req, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) ListLogs(c *gin.Context) {
	_, schoolID, ok := middleware.RequireSchoolID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	list, total, err := h.Service.ListLogs(c.Request.Context(), schoolID, limit, page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total})
}

// ===========================
// 🔔 In-app
// ===========================

// GET /notifications/inapp?unread=true&limit=50
func (h *Handler) ListInApp(c *gin.Context) {
	ac, ok := middleware.GetAccessContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access context missing"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.Service.ListInApp(c.Request.Context(), ac.UserID, c.Query("unread") == "true", limit)
	if err != nil {
		writeError(c, err)
		return
	}
	unread, err := h.Service.UnreadCount(c.Request.Context(), ac.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "unread": unread})
}

func (h *Handler) MarkRead(c *gin.Context) {
	ac, ok := middleware.GetAccessContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access context missing"})
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Service.MarkRead(c.Request.Context(), ac.UserID, id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Marked as read"})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	ac, ok := middleware.GetAccessContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access context missing"})
		return
	}
	n, err := h.Service.MarkAllRead(c.Request.Context(), ac.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// ===========================
// 📡 Stream - GET /notifications/stream (SSE)
func (h *Handler) Stream(c *gin.Context) {
	ac, ok := middleware.GetAccessContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access context missing"})
		return
	}
	h.stream(c, ac.UserID)
}

// StreamWithToken serves EventSource clients, which cannot send headers.
// GET /notifications/stream-token?token=JWT
func (h *Handler) StreamWithToken(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" || h.Tokens == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := h.Tokens.ParseAccessToken(tokenStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	uid, ok := claims["user_id"].(float64)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user_id missing"})
		return
	}
	h.stream(c, uint(uid))
}

func (h *Handler) stream(c *gin.Context, userID uint) {
	ctx := c.Request.Context()
	feed, stop, err := h.Service.Subscribe(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	defer stop()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	_, _ = c.Writer.Write([]byte(":ok\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-feed:
			if !ok {
				return
			}
			_, _ = c.Writer.Write([]byte("event: inapp\n"))
			_, _ = c.Writer.Write([]byte("data: " + string(msg) + "\n\n"))
			flusher.Flush()
		case <-ticker.C:
			_, _ = c.Writer.Write([]byte(":ping\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// ===========================
// 📱 Device tokens
// ===========================

// @Summary Register an FCM device token
// @Tags Notifications
// @Accept json
// @Produce json
// @Param body body TokenRequest true "Device token"
// @Success 200 {object} DeviceToken
// @Router /api/v1/notifications/devices [post]
func (h *Handler) RegisterToken(c *gin.Context) {
	ac, ok := middleware.GetAccessContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access context missing"})
		return
	}
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	t, err := h.Service.RegisterDeviceToken(c.Request.Context(), ac, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) RemoveToken(c *gin.Context) {
	ac, ok := middleware.GetAccessContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access context missing"})
		return
	}
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	if err := h.Service.RemoveDeviceToken(c.Request.Context(), ac.UserID, req.Token); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device token removed"})
}
