package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sharath018/school-management-backend/internal/auth"
)

// AuthMiddleware handles JWT authentication and sets up access context
func AuthMiddleware(authSvc auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}

		claims, err := authSvc.ParseAccessToken(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		userID := uint(claims["user_id"].(float64))
		user, err := authSvc.GetUserByID(userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if user.Status != auth.StatusActive {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account is inactive"})
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Set("claims", claims)

		ac := CreateAccessContext(c, user, claims)
		c.Set("access_context", ac)
		if ac.ImpersonatorID != nil {
			c.Set("impersonator_id", *ac.ImpersonatorID)
		}
		if id := ac.GetAccessibleSchoolID(); id != nil {
			c.Set("school_id", *id)
		}

		c.Next()
	}
}

// BearerToken returns the token of an "Authorization: Bearer ..." header.
func BearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// CreateAccessContext resolves role, school and permissions for the request.
// Platform admins pick a school per request with X-School-ID; everyone else is
// pinned to the school on their account.
func CreateAccessContext(c *gin.Context, user auth.User, claims jwt.MapClaims) AccessContext {
	ac := AccessContext{
		UserID:         user.ID,
		RoleName:       user.Role.RoleName,
		DirectSchoolID: user.SchoolID,
		OrganizationID: user.OrganizationID,
		PermissionType: "full",
	}

	switch user.Role.RoleName {
	case RolePlatformAdmin:
		ac.AssignedSchoolID = ExtractSchoolIDFromHeader(c)
	case RoleViewer:
		ac.PermissionType = "readonly"
	}

	if imp, ok := claims["impersonator_id"].(float64); ok && imp > 0 {
		id := uint(imp)
		ac.ImpersonatorID = &id
	}

	if ac.ImpersonatorID != nil {
		fmt.Printf("🔄 AccessContext: user=%d role=%s school=%v impersonated by %d\n",
			ac.UserID, ac.RoleName, derefSchool(ac.GetAccessibleSchoolID()), *ac.ImpersonatorID)
	}
	return ac
}

func derefSchool(id *uint) interface{} {
	if id == nil {
		return "none"
	}
	return *id
}
