package auditlog

import (
	"time"

	"gorm.io/datatypes"
)

// Common statuses
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// AuditLog represents the audit_logs table
type AuditLog struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    *uint          `gorm:"index" json:"user_id"`   // nullable (e.g. failed login)
	SchoolID  *uint          `gorm:"index" json:"school_id"` // nullable for platform-level actions
	Action    string         `gorm:"size:100;not null;index" json:"action"`
	Details   datatypes.JSON `gorm:"type:jsonb" json:"details"`
	IPAddress string         `gorm:"size:45" json:"ip_address"`
	UserAgent string         `gorm:"size:255" json:"user_agent,omitempty"`
	Status    string         `gorm:"size:20;not null;index" json:"status"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName overrides table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}

// AuditLogResponse represents the audit log response for API
type AuditLogResponse struct {
	ID        uint           `json:"id"`
	UserID    *uint          `json:"user_id"`
	SchoolID  *uint          `json:"school_id"`
	Action    string         `json:"action"`
	Details   datatypes.JSON `json:"details"`
	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent,omitempty"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`

	UserName   *string `json:"user_name,omitempty"`
	UserEmail  *string `json:"user_email,omitempty"`
	SchoolName *string `json:"school_name,omitempty"`
}

// AuditLogFilter represents filters for querying audit logs
type AuditLogFilter struct {
	UserID       *uint      `json:"user_id"`
	SchoolID     *uint      `json:"school_id"`
	Action       string     `json:"action"`
	ActionPrefix string     `json:"action_prefix"`
	Status       string     `json:"status"`
	Search       string     `json:"search"`
	FromDate     *time.Time `json:"from_date"`
	ToDate       *time.Time `json:"to_date"`
	Page         int        `json:"page"`
	Limit        int        `json:"limit"`
}

// PaginatedAuditLogs represents paginated audit log response
type PaginatedAuditLogs struct {
	Data       []AuditLogResponse `json:"data"`
	Total      int64              `json:"total"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	TotalPages int                `json:"total_pages"`
}

// LoginStats summarizes the login audit for the platform dashboard.
type LoginStats struct {
	Successful  int64 `json:"successful"`
	Failed      int64 `json:"failed"`
	UniqueUsers int64 `json:"unique_users"`
}
