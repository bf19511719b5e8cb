package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sharath018/school-management-backend/internal/auth"
)

// RBACMiddleware checks if the user has one of the allowed roles
func RBACMiddleware(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userVal, exists := c.Get("user")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		user, ok := userVal.(auth.User)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user object"})
			return
		}

		for _, role := range allowedRoles {
			if user.Role.RoleName == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unauthorized"})
	}
}

// RequireSchoolAccess makes sure the request is bound to a school the caller
// may act on. Platform admins must pick one with X-School-ID.
func RequireSchoolAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, ok := GetAccessContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "access context missing"})
			return
		}

		schoolID := ac.GetAccessibleSchoolID()
		switch {
		case schoolID == nil && ac.RoleName == RolePlatformAdmin:
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-School-ID header is required"})
			return
		case schoolID == nil:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user is not linked to a school"})
			return
		case !ac.CanAccessSchool(*schoolID):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "school access denied"})
			return
		}
		c.Next()
	}
}

// RequireWriteAccess ensures user has write access
func RequireWriteAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, ok := GetAccessContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "access context missing"})
			return
		}
		if !ac.CanWrite() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "write access denied"})
			return
		}
		c.Next()
	}
}
