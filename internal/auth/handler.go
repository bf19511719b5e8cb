package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct{ service Service }

func NewHandler(s Service) *Handler { return &Handler{s} }

// CurrentUser returns the user AuthMiddleware stored on the request.
func CurrentUser(c *gin.Context) (User, bool) {
	raw, ok := c.Get("user")
	if !ok {
		return User{}, false
	}
	u, ok := raw.(User)
	return u, ok
}

// ===============================
// Login
// ===============================

type loginReq struct {
	Email    string `json:"email" binding:"required,email" example:"admin@school.edu"`
	Password string `json:"password" binding:"required" example:"secret123"`
}

// Login godoc
// @Summary Log in with e-mail and password
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body loginReq true "Credentials"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, user, err := h.service.Login(c.Request.Context(), LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrInactive) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	userPayload := gin.H{
		"id":       user.ID,
		"fullName": user.FullName,
		"email":    user.Email,
		"role":     user.Role.RoleName,
	}
	if user.SchoolID != nil {
		userPayload["schoolId"] = user.SchoolID
	}
	if user.OrganizationID != nil {
		userPayload["organizationId"] = user.OrganizationID
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
		"user":         userPayload,
	})
}

// ===============================
// Refresh Token
// ===============================

type refreshReq struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h *Handler) Refresh(c *gin.Context) {
	var req refreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := h.service.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": token})
}

// ===============================
// Me / users
// ===============================

func (h *Handler) Me(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	resp := gin.H{"user": user}
	if imp, ok := c.Get("impersonator_id"); ok {
		resp["impersonatorId"] = imp
	}
	c.JSON(http.StatusOK, resp)
}

// CreateUser adds a school user. School admins can only create users in their
// own school; platform admins pick the school.
func (h *Handler) CreateUser(c *gin.Context) {
	actor, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req CreateUserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if actor.Role.RoleName != RolePlatformAdmin {
		req.SchoolID = actor.SchoolID
		req.OrganizationID = actor.OrganizationID
	}
	if req.SchoolID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "schoolId is required"})
		return
	}

	user, err := h.service.CreateUser(c.Request.Context(), req, actor.ID, c.ClientIP())
	switch {
	case errors.Is(err, ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user", "details": err.Error()})
	default:
		c.JSON(http.StatusCreated, gin.H{"user": user})
	}
}

// ===============================
// Forgot / Reset Password
// ===============================

type forgotPasswordReq struct {
	Email string `json:"email" binding:"required,email"`
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request",
			"message": "Please provide a valid email address",
		})
		return
	}

	err := h.service.RequestPasswordReset(req.Email)
	switch {
	case err == nil, errors.Is(err, ErrUserNotFound):
		// ⚠️ Same answer whether or not the account exists
		c.JSON(http.StatusOK, gin.H{
			"message": "If an account exists with this email, a password reset link has been sent",
		})
	case errors.Is(err, ErrEmailNotSent):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to send email",
			"message": "Email service is currently unavailable. Please try again later or contact support.",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal server error",
			"message": "An unexpected error occurred. Please try again later.",
		})
	}
}

type resetPasswordReq struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=6"`
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request",
			"message": "Please provide a token and a password of at least 6 characters",
		})
		return
	}

	err := h.service.ResetPassword(req.Token, req.NewPassword)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"message": "Password has been reset successfully. You can now login with your new password.",
		})
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrUserNotFound):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid token",
			"message": "This password reset link is invalid or has expired. Please request a new one.",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal server error",
			"message": "Unable to reset password. Please try again later.",
		})
	}
}

func (h *Handler) Logout(c *gin.Context) {
	_ = h.service.Logout()
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
