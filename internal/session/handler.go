package session

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sharath018/school-management-backend/internal/auth"
	"github.com/sharath018/school-management-backend/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{service: svc}
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotAllowed), errors.Is(err, auth.ErrNotPlatformAdmin):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrNoSchoolAdmin):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNothingToRestore):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session update failed", "details": err.Error()})
	}
}

func stackResponse(s *Stack) gin.H {
	resp := gin.H{"depth": s.Depth(), "impersonating": s.Impersonating()}
	if cur, ok := s.Active(); ok {
		resp["accessToken"] = cur.AccessToken
		resp["active"] = cur
	}
	return resp
}

// ===========================
// 🎭 Impersonate - POST /platform/impersonate/:schoolID
// @Summary Act as a school's administrator
// @Tags Platform
// @Produce json
// @Param schoolID path int true "School ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/platform/impersonate/{schoolID} [post]
func (h *Handler) Impersonate(c *gin.Context) {
	ac, ok := middleware.GetAccessContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access context missing"})
		return
	}
	schoolID, err := strconv.ParseUint(c.Param("schoolID"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid school id"})
		return
	}
	token, _ := middleware.BearerToken(c)

	own := Credential{
		AccessToken: token,
		UserID:      ac.UserID,
		Role:        ac.RoleName,
		SchoolID:    ac.DirectSchoolID,
		IssuedAt:    time.Now(),
	}
	stack, err := h.service.Impersonate(c.Request.Context(), ac, own, uint(schoolID), middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stackResponse(stack))
}

// ===========================
// 🔙 Exit - POST /platform/impersonate/exit
// @Summary Return to the previous credential
// @Tags Platform
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/platform/impersonate/exit [post]
func (h *Handler) Exit(c *gin.Context) {
	ac, ok := middleware.GetAccessContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access context missing"})
		return
	}
	stack, err := h.service.Exit(c.Request.Context(), ac, middleware.GetIPFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stackResponse(stack))
}

func (h *Handler) State(c *gin.Context) {
	ac, ok := middleware.GetAccessContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access context missing"})
		return
	}
	stack, err := h.service.State(c.Request.Context(), ac)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := stackResponse(stack)
	delete(resp, "accessToken")
	c.JSON(http.StatusOK, resp)
}
