package platform

import (
	"time"

	"github.com/lib/pq"
)

// Subscription statuses
const (
	SubTrial     = "trial"
	SubActive    = "active"
	SubExpired   = "expired"
	SubCancelled = "cancelled"
)

// Contact message statuses
const (
	MsgNew      = "new"
	MsgRead     = "read"
	MsgReplied  = "replied"
	MsgArchived = "archived"
)

// Billing cycles
const (
	CycleMonthly   = "monthly"
	CycleQuarterly = "quarterly"
	CycleYearly    = "yearly"
)

// ================ ORGANIZATIONS ================

type Organization struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(200);not null" json:"name"`
	Slug         string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"slug"`
	ContactEmail string    `gorm:"type:varchar(255)" json:"contact_email"`
	ContactPhone string    `gorm:"type:varchar(20)" json:"contact_phone"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	CreatedBy    uint      `json:"created_by"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	SchoolCount  int64         `gorm:"-" json:"school_count"`
	Subscription *Subscription `gorm:"-" json:"subscription,omitempty"`
}

type OrganizationRequest struct {
	Name         string `json:"name" binding:"required,max=200"`
	Slug         string `json:"slug" binding:"omitempty,max=100"`
	ContactEmail string `json:"contact_email" binding:"omitempty,email"`
	ContactPhone string `json:"contact_phone" binding:"max=20"`
	IsActive     *bool  `json:"is_active"`
}

type OrganizationFilter struct {
	Search string
	Active *bool
	Limit  int
	Page   int
}

// ================ PLANS & SUBSCRIPTIONS ================

type SubscriptionPlan struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
	Price        float64        `gorm:"type:decimal(12,2);not null" json:"price"`
	BillingCycle string         `gorm:"type:varchar(20);not null" json:"billing_cycle"`
	MaxStudents  int            `gorm:"not null" json:"max_students"`
	Features     pq.StringArray `gorm:"type:text[]" json:"features"`
	IsActive     bool           `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type PlanRequest struct {
	Name         string   `json:"name" binding:"required,max=100"`
	Price        float64  `json:"price" binding:"min=0"`
	BillingCycle string   `json:"billing_cycle" binding:"required,oneof=monthly quarterly yearly"`
	MaxStudents  int      `json:"max_students" binding:"min=0"`
	Features     []string `json:"features"`
	IsActive     *bool    `json:"is_active"`
}

type Subscription struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	OrganizationID uint       `gorm:"not null;index" json:"organization_id"`
	PlanID         uint       `gorm:"not null" json:"plan_id"`
	Status         string     `gorm:"type:varchar(20);not null;index" json:"status"`
	StartsAt       time.Time  `gorm:"not null" json:"starts_at"`
	EndsAt         time.Time  `gorm:"not null;index" json:"ends_at"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	CreatedBy      uint       `json:"created_by"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Plan *SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

// SubscribeRequest starts a subscription. TrialDays > 0 starts a trial of
// that length instead of a paid cycle.
type SubscribeRequest struct {
	PlanID    uint       `json:"plan_id" binding:"required"`
	StartsAt  *time.Time `json:"starts_at"`
	TrialDays int        `json:"trial_days" binding:"min=0,max=90"`
}

// ================ TESTIMONIALS ================

type Testimonial struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AuthorName  string    `gorm:"type:varchar(150);not null" json:"author_name"`
	Role        string    `gorm:"type:varchar(150)" json:"role"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	Rating      int       `gorm:"not null" json:"rating"`
	IsPublished bool      `gorm:"not null;index" json:"is_published"`
	SortOrder   int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type TestimonialRequest struct {
	AuthorName  string `json:"author_name" binding:"required,max=150"`
	Role        string `json:"role" binding:"max=150"`
	Content     string `json:"content" binding:"required"`
	Rating      int    `json:"rating" binding:"required,min=1,max=5"`
	IsPublished bool   `json:"is_published"`
	SortOrder   int    `json:"sort_order"`
}

// ================ CONTACT MESSAGES ================

type ContactMessage struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"type:varchar(150);not null" json:"name"`
	Email     string     `gorm:"type:varchar(255);not null" json:"email"`
	Phone     string     `gorm:"type:varchar(20)" json:"phone"`
	Subject   string     `gorm:"type:varchar(200)" json:"subject"`
	Message   string     `gorm:"type:text;not null" json:"message"`
	Status    string     `gorm:"type:varchar(20);not null;default:'new';index" json:"status"`
	Reply     string     `gorm:"type:text" json:"reply,omitempty"`
	RepliedAt *time.Time `json:"replied_at,omitempty"`
	RepliedBy *uint      `json:"replied_by,omitempty"`
	IPAddress string     `gorm:"size:45" json:"-"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type ContactRequest struct {
	Name    string `json:"name" binding:"required,max=150"`
	Email   string `json:"email" binding:"required,email"`
	Phone   string `json:"phone" binding:"max=20"`
	Subject string `json:"subject" binding:"max=200"`
	Message string `json:"message" binding:"required,max=5000"`
}

type ContactStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=new read replied archived"`
}

type ContactReplyRequest struct {
	Reply string `json:"reply" binding:"required"`
}

// ================ DASHBOARD ================

type Dashboard struct {
	Organizations       int64          `json:"organizations"`
	ActiveOrganizations int64          `json:"active_organizations"`
	Schools             int64          `json:"schools"`
	Users               int64          `json:"users"`
	Subscriptions       map[string]int `json:"subscriptions"`
	NewMessages         int64          `json:"new_messages"`
	LoginsSuccessful    int64          `json:"logins_successful"`
	LoginsFailed        int64          `json:"logins_failed"`
}
