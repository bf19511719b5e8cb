package event

import (
	"time"
)

// Event statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// ============================
// 🔷 GORM Event Model
type Event struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SchoolID    uint      `gorm:"not null;index" json:"school_id"`
	EventTypeID *uint     `gorm:"index" json:"event_type_id"`
	Title       string    `gorm:"type:varchar(200);not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	StartsAt    time.Time `gorm:"not null;index" json:"starts_at"`
	EndsAt      time.Time `gorm:"not null" json:"ends_at"`
	Venue       string    `gorm:"type:varchar(255)" json:"venue"`
	Capacity    int       `gorm:"not null;default:0" json:"capacity"`
	Status      string    `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	CreatedBy   uint      `gorm:"not null" json:"created_by"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	GuestCount int `gorm:"-" json:"guest_count"`
}

// ============================
// 🟡 Create / Update Event Request
type EventRequest struct {
	Title       string    `json:"title" binding:"required,max=200"`
	Description string    `json:"description"`
	EventTypeID *uint     `json:"event_type_id"`
	StartsAt    time.Time `json:"starts_at" binding:"required"`
	EndsAt      time.Time `json:"ends_at" binding:"required"`
	Venue       string    `json:"venue" binding:"max=255"`
	Capacity    int       `json:"capacity" binding:"min=0"`
	Status      string    `json:"status" binding:"omitempty,oneof=draft published completed cancelled"`
}

type ListFilter struct {
	Search string
	Status string
	Limit  int
	Offset int
}

// ============================
// 📊 Stats
type Stats struct {
	EventID           uint           `json:"event_id"`
	GuestCount        int64          `json:"guest_count"`
	TotalInvited      int64          `json:"total_invited"`
	TotalArrived      int64          `json:"total_arrived"`
	ByStatus          map[string]int `json:"by_status"`
	ByGuestType       map[string]int `json:"by_guest_type"`
	Capacity          int            `json:"capacity"`
	RemainingCapacity int            `json:"remaining_capacity"`
}
