package notification

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ChannelEmail = "email"
	ChannelPush  = "push"
)

const (
	StatusSent    = "sent"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Categories of in-app notifications.
const (
	CategoryGeneral = "general"
	CategoryEvent   = "event"
	CategoryFees    = "fees"
	CategorySystem  = "system"
)

// ===========================
// 📝 Templates & Delivery Log
// ===========================

type NotificationTemplate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SchoolID  uint      `gorm:"index;not null" json:"school_id"`
	UserID    uint      `json:"user_id"`
	Name      string    `gorm:"size:150;not null" json:"name"`
	Channel   string    `gorm:"size:20;not null;default:email" json:"channel"`
	Subject   string    `gorm:"size:255" json:"subject"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NotificationLog struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	SchoolID   uint           `gorm:"index;not null" json:"school_id"`
	UserID     uint           `json:"user_id"`
	TemplateID *uint          `json:"template_id,omitempty"`
	Channel    string         `gorm:"size:20;not null" json:"channel"`
	Subject    string         `gorm:"size:255" json:"subject"`
	Body       string         `gorm:"type:text" json:"body"`
	Recipients datatypes.JSON `json:"recipients"`
	Delivered  int            `json:"delivered"`
	Failed     int            `json:"failed"`
	Status     string         `gorm:"size:20;not null" json:"status"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ===========================
// 🔔 In-App
// ===========================

type InAppNotification struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"index;not null" json:"user_id"`
	SchoolID  *uint          `gorm:"index" json:"school_id,omitempty"`
	Title     string         `gorm:"size:255;not null" json:"title"`
	Message   string         `gorm:"type:text" json:"message"`
	Category  string         `gorm:"size:30;default:general" json:"category"`
	Meta      datatypes.JSON `json:"meta,omitempty"`
	IsRead    bool           `gorm:"default:false" json:"is_read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// DeviceToken is an FCM registration token owned by one user.
type DeviceToken struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	SchoolID   *uint     `gorm:"index" json:"school_id,omitempty"`
	Token      string    `gorm:"size:512;uniqueIndex;not null" json:"token"`
	Platform   string    `gorm:"size:20" json:"platform"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// ===========================
// 📥 Requests
// ===========================

type TemplateRequest struct {
	Name    string `json:"name" binding:"required,max=150"`
	Channel string `json:"channel" binding:"omitempty,oneof=email push"`
	Subject string `json:"subject" binding:"max=255"`
	Body    string `json:"body" binding:"required"`
}

// SendRequest targets explicit addresses or users plus everyone holding one
// of Roles in the school. Data fills the template placeholders.
type SendRequest struct {
	Channel    string                 `json:"channel" binding:"required,oneof=email push"`
	TemplateID *uint                  `json:"template_id"`
	Subject    string                 `json:"subject"`
	Body       string                 `json:"body"`
	Roles      []string               `json:"roles"`
	Emails     []string               `json:"emails" binding:"omitempty,dive,email"`
	UserIDs    []uint                 `json:"user_ids"`
	Data       map[string]interface{} `json:"data"`
}

type TokenRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform" binding:"omitempty,oneof=android ios web"`
}
