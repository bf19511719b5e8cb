package auth

import "time"

// Role names stored in user_roles.role_name.
const (
	RolePlatformAdmin = "platformadmin"
	RoleSchoolAdmin   = "schooladmin"
	RoleStaff         = "staff"
	RoleViewer        = "viewer"
)

// User account statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

type UserRole struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RoleName    string    `gorm:"size:50;uniqueIndex;not null" json:"role_name"`
	Description string    `gorm:"size:255" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type User struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	FullName       string     `gorm:"size:200;not null" json:"full_name"`
	Email          string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash   string     `gorm:"not null" json:"-"`
	Phone          string     `gorm:"size:20" json:"phone"`
	RoleID         uint       `gorm:"not null;index" json:"role_id"`
	Role           UserRole   `gorm:"foreignKey:RoleID" json:"role"`
	SchoolID       *uint      `gorm:"index" json:"school_id,omitempty"`
	OrganizationID *uint      `gorm:"index" json:"organization_id,omitempty"`
	Status         string     `gorm:"size:20;default:'active'" json:"status"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedBy      *uint      `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Grant is an access token issued to a platform admin acting as a school's
// administrator.
type Grant struct {
	AccessToken    string    `json:"accessToken"`
	User           User      `json:"user"`
	SchoolID       uint      `json:"schoolId"`
	ImpersonatorID uint      `json:"impersonatorId"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

type CreateUserInput struct {
	FullName       string `json:"fullName" binding:"required,max=200"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=6"`
	Phone          string `json:"phone"`
	Role           string `json:"role" binding:"required,oneof=schooladmin staff viewer"`
	SchoolID       *uint  `json:"schoolId"`
	OrganizationID *uint  `json:"organizationId"`
}
