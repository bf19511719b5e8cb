package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sharath018/school-management-backend/internal/auth"
)

// Role constants to avoid string typos
const (
	RolePlatformAdmin = auth.RolePlatformAdmin
	RoleSchoolAdmin   = auth.RoleSchoolAdmin
	RoleStaff         = auth.RoleStaff
	RoleViewer        = auth.RoleViewer
)

// AccessContext stores user access information
type AccessContext struct {
	UserID           uint
	RoleName         string
	DirectSchoolID   *uint // school the user belongs to
	AssignedSchoolID *uint // school selected for this request (header, path, impersonation)
	OrganizationID   *uint
	PermissionType   string // "full" or "readonly"
	ImpersonatorID   *uint  // platform admin acting as this user
}

// GetAccessibleSchoolID returns the school the request operates on.
func (ac *AccessContext) GetAccessibleSchoolID() *uint {
	if ac.AssignedSchoolID != nil {
		return ac.AssignedSchoolID
	}
	return ac.DirectSchoolID
}

// CanWrite returns true if the user has write permissions
func (ac *AccessContext) CanWrite() bool {
	return ac.PermissionType == "full"
}

// CanRead returns true if the user has read permissions
func (ac *AccessContext) CanRead() bool {
	return ac.PermissionType == "full" || ac.PermissionType == "readonly"
}

// CanAccessSchool checks if the user can access a specific school
func (ac *AccessContext) CanAccessSchool(schoolID uint) bool {
	if ac.RoleName == RolePlatformAdmin {
		return true
	}
	if id := ac.GetAccessibleSchoolID(); id != nil && *id == schoolID {
		return true
	}
	return false
}

// IsImpersonated reports whether a platform admin is acting through this context.
func (ac *AccessContext) IsImpersonated() bool {
	return ac.ImpersonatorID != nil
}

// GetAccessContext extracts the AccessContext set by AuthMiddleware.
func GetAccessContext(c *gin.Context) (AccessContext, bool) {
	raw, exists := c.Get("access_context")
	if !exists {
		return AccessContext{}, false
	}
	ctx, ok := raw.(AccessContext)
	return ctx, ok
}

// RequireSchoolID resolves the school for the request or writes a 400 and returns false.
func RequireSchoolID(c *gin.Context) (AccessContext, uint, bool) {
	ac, ok := GetAccessContext(c)
	if !ok {
		c.JSON(401, gin.H{"error": "access context missing"})
		return ac, 0, false
	}
	id := ac.GetAccessibleSchoolID()
	if id == nil {
		c.JSON(400, gin.H{"error": "user is not linked to a school and no X-School-ID provided"})
		return ac, 0, false
	}
	return ac, *id, true
}

// ExtractSchoolIDFromHeader reads X-School-ID.
func ExtractSchoolIDFromHeader(c *gin.Context) *uint {
	raw := c.GetHeader("X-School-ID")
	if raw == "" || raw == "all" {
		return nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil
	}
	v := uint(id)
	return &v
}
