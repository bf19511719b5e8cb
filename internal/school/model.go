package school

import (
	"time"

	"gorm.io/gorm"
)

// School is one tenant. The branding columns are the defaults every printed
// report starts from.
type School struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	OrganizationID    uint           `gorm:"not null;index" json:"organization_id"`
	Name              string         `gorm:"type:varchar(200);not null" json:"name"`
	Code              string         `gorm:"type:varchar(50);uniqueIndex" json:"code"`
	Address           string         `gorm:"type:text" json:"address"`
	Phone             string         `gorm:"type:varchar(20)" json:"phone"`
	Email             string         `gorm:"type:varchar(255)" json:"email"`
	LogoURL           string         `gorm:"type:text" json:"logo_url"`
	SecondaryLogoURL  string         `gorm:"type:text" json:"secondary_logo_url"`
	LogoPosition      string         `gorm:"type:varchar(10);not null;default:'left'" json:"logo_position"`
	PrimaryColor      string         `gorm:"type:varchar(20)" json:"primary_color"`
	SecondaryColor    string         `gorm:"type:varchar(20)" json:"secondary_color"`
	WatermarkText     string         `gorm:"type:varchar(100)" json:"watermark_text"`
	WatermarkImageURL string         `gorm:"type:text" json:"watermark_image_url"`
	ReportHeaderText  string         `gorm:"type:text" json:"report_header_text"`
	IsActive          bool           `gorm:"not null" json:"is_active"`
	CreatedBy         uint           `json:"created_by"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

// ============================
// 🟡 Requests
type CreateSchoolRequest struct {
	Name         string `json:"name" binding:"required,max=200"`
	Code         string `json:"code" binding:"required,max=50"`
	Address      string `json:"address"`
	Phone        string `json:"phone" binding:"max=20"`
	Email        string `json:"email" binding:"omitempty,email"`
	LogoURL      string `json:"logo_url"`
	LogoPosition string `json:"logo_position" binding:"omitempty,oneof=left right"`
}

// UpdateSchoolRequest changes profile and branding. Nil fields are left as they are.
type UpdateSchoolRequest struct {
	Name              *string `json:"name" binding:"omitempty,max=200"`
	Address           *string `json:"address"`
	Phone             *string `json:"phone" binding:"omitempty,max=20"`
	Email             *string `json:"email" binding:"omitempty,email"`
	LogoURL           *string `json:"logo_url"`
	SecondaryLogoURL  *string `json:"secondary_logo_url"`
	LogoPosition      *string `json:"logo_position" binding:"omitempty,oneof=left right"`
	PrimaryColor      *string `json:"primary_color"`
	SecondaryColor    *string `json:"secondary_color"`
	WatermarkText     *string `json:"watermark_text" binding:"omitempty,max=100"`
	WatermarkImageURL *string `json:"watermark_image_url"`
	ReportHeaderText  *string `json:"report_header_text"`
}

// SchoolUser is a user account as listed to its school's admin.
type SchoolUser struct {
	ID          uint       `json:"id"`
	FullName    string     `json:"full_name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

type UserStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active inactive"`
}
