package guest

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Guest statuses
const (
	StatusInvited   = "invited"
	StatusCheckedIn = "checked_in"
	StatusBlocked   = "blocked"
)

// Guest types
const (
	TypeStudent  = "student"
	TypeParent   = "parent"
	TypeTeacher  = "teacher"
	TypeStaff    = "staff"
	TypeVIP      = "vip"
	TypeExternal = "external"
)

var guestTypes = []string{TypeStudent, TypeParent, TypeTeacher, TypeStaff, TypeVIP, TypeExternal}

// PerPageOptions are the accepted list page sizes.
var PerPageOptions = []int{25, 50, 100, 200}

const DefaultPerPage = 50

// sortColumns whitelists list ordering.
var sortColumns = map[string]bool{
	"full_name":     true,
	"created_at":    true,
	"status":        true,
	"guest_type":    true,
	"arrived_count": true,
}

type Guest struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SchoolID     uint       `gorm:"not null;index" json:"school_id"`
	EventID      uint       `gorm:"not null;index" json:"event_id"`
	FullName     string     `gorm:"type:varchar(200);not null" json:"full_name"`
	Phone        string     `gorm:"type:varchar(20)" json:"phone"`
	GuestType    string     `gorm:"type:varchar(20);not null;default:'external';index" json:"guest_type"`
	InviteCount  int        `gorm:"not null;default:1" json:"invite_count"`
	ArrivedCount int        `gorm:"not null;default:0" json:"arrived_count"`
	Status       string     `gorm:"type:varchar(20);not null;default:'invited';index" json:"status"`
	GuestCode    string     `gorm:"type:varchar(8);uniqueIndex;not null" json:"guest_code"`
	QRToken      string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"qr_token"`
	PhotoPath    *string    `gorm:"type:varchar(500)" json:"photo_path"`
	CheckedInAt  *time.Time `json:"checked_in_at"`
	CreatedBy    uint       `json:"created_by"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	PhotoURL    string                 `gorm:"-" json:"photo_url,omitempty"`
	FieldValues map[string]interface{} `gorm:"-" json:"field_values,omitempty"`
}

// GuestFieldValue is one answer to an event type field. Scalars live in
// ValueText, multi-choice answers in ValueJSON.
type GuestFieldValue struct {
	ID        uint                        `gorm:"primaryKey" json:"id"`
	GuestID   uint                        `gorm:"not null;uniqueIndex:idx_guest_field" json:"guest_id"`
	FieldID   uint                        `gorm:"not null;uniqueIndex:idx_guest_field" json:"field_id"`
	ValueText *string                     `gorm:"type:text" json:"value_text"`
	ValueJSON datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"value_json"`
	UpdatedAt time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// ============================
// 🟡 Create / Update Guest Request
type GuestRequest struct {
	FullName    string                   `json:"full_name" binding:"required,max=200"`
	Phone       string                   `json:"phone" binding:"max=20"`
	GuestType   string                   `json:"guest_type" binding:"omitempty,oneof=student parent teacher staff vip external"`
	InviteCount int                      `json:"invite_count" binding:"omitempty,min=1,max=100"`
	Status      string                   `json:"status" binding:"omitempty,oneof=invited checked_in blocked"`
	FieldValues map[uint]json.RawMessage `json:"field_values"`
}

type CheckInRequest struct {
	Code  string `json:"code"`
	Count int    `json:"count" binding:"omitempty,min=1,max=100"`
}

type ListFilter struct {
	Query     string
	Status    string
	GuestType string
	SortBy    string
	SortDir   string
	Page      int
	PerPage   int
}

// Normalize clamps paging and sort options to the accepted values.
func (f *ListFilter) Normalize() {
	valid := false
	for _, n := range PerPageOptions {
		if f.PerPage == n {
			valid = true
		}
	}
	if !valid {
		f.PerPage = DefaultPerPage
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if !sortColumns[f.SortBy] {
		f.SortBy = "created_at"
	}
	if f.SortDir != "asc" {
		f.SortDir = "desc"
	}
}

type ListResult struct {
	Data       []Guest `json:"data"`
	Total      int64   `json:"total"`
	Page       int     `json:"page"`
	PerPage    int     `json:"per_page"`
	TotalPages int     `json:"total_pages"`
}

// ImportResult reports an import run.
type ImportResult struct {
	Created          int           `json:"created"`
	Errors           []ImportError `json:"errors"`
	SupportedColumns []string      `json:"supported_columns"`
}

type ImportError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}
