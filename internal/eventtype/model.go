package eventtype

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FieldType is the closed set of input kinds a designer field can take.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldTextarea    FieldType = "textarea"
	FieldPhone       FieldType = "phone"
	FieldNumber      FieldType = "number"
	FieldSelect      FieldType = "select"
	FieldMultiselect FieldType = "multiselect"
	FieldDate        FieldType = "date"
	FieldToggle      FieldType = "toggle"
	FieldEmail       FieldType = "email"
	FieldIDNumber    FieldType = "id_number"
	FieldAddress     FieldType = "address"
)

// AllFieldTypes lists every FieldType in declaration order.
func AllFieldTypes() []FieldType {
	return []FieldType{
		FieldText, FieldTextarea, FieldPhone, FieldNumber, FieldSelect, FieldMultiselect,
		FieldDate, FieldToggle, FieldEmail, FieldIDNumber, FieldAddress,
	}
}

func (t FieldType) Valid() bool {
	for _, ft := range AllFieldTypes() {
		if ft == t {
			return true
		}
	}
	return false
}

// HasOptions reports whether options are meaningful for the type.
func (t FieldType) HasOptions() bool {
	return t == FieldSelect || t == FieldMultiselect
}

// ============================
// 🔷 GORM Models
type EventType struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	SchoolID       uint           `gorm:"not null;index" json:"school_id"`
	OrganizationID *uint          `gorm:"index" json:"organization_id,omitempty"`
	Name           string         `gorm:"type:varchar(100);not null" json:"name"`
	Description    string         `gorm:"type:text" json:"description"`
	IsActive       bool           `gorm:"not null" json:"is_active"`
	CreatedBy      uint           `json:"created_by"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	FieldGroups []FieldGroup `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Fields      []Field      `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	FieldCount int `gorm:"-" json:"field_count"`
}

type FieldGroup struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EventTypeID uint      `gorm:"not null;index" json:"event_type_id"`
	Title       string    `gorm:"type:varchar(100);not null" json:"title"`
	SortOrder   int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FieldOption is one {value,label} choice of a select or multiselect field.
type FieldOption struct {
	Value string `json:"value" validate:"required,max=100"`
	Label string `json:"label" validate:"required,max=100"`
}

type Field struct {
	ID              uint                             `gorm:"primaryKey" json:"id"`
	EventTypeID     uint                             `gorm:"not null;uniqueIndex:idx_event_type_field_key" json:"event_type_id"`
	FieldGroupID    *uint                            `gorm:"index" json:"field_group_id"`
	Key             string                           `gorm:"type:varchar(50);not null;uniqueIndex:idx_event_type_field_key" json:"key"`
	Label           string                           `gorm:"type:varchar(100);not null" json:"label"`
	FieldType       FieldType                        `gorm:"type:varchar(20);not null" json:"field_type"`
	IsRequired      bool                             `gorm:"not null" json:"is_required"`
	IsEnabled       bool                             `gorm:"not null" json:"is_enabled"`
	SortOrder       int                              `gorm:"not null;default:0" json:"sort_order"`
	Placeholder     *string                          `gorm:"type:varchar(255)" json:"placeholder"`
	HelpText        *string                          `gorm:"type:varchar(255)" json:"help_text"`
	ValidationRules datatypes.JSON                   `gorm:"type:jsonb" json:"validation_rules"`
	Options         datatypes.JSONSlice[FieldOption] `gorm:"type:jsonb" json:"options"`
	CreatedAt       time.Time                        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time                        `gorm:"autoUpdateTime" json:"updated_at"`
}

// FieldSet is the persisted {field_groups, fields} state of one event type.
type FieldSet struct {
	FieldGroups []FieldGroup `json:"field_groups"`
	Fields      []Field      `json:"fields"`
}

// ============================
// 🟡 Requests
type CreateEventTypeRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

type UpdateEventTypeRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

// GroupInput is one group of a batch save. ID is zero for groups not yet persisted,
// which then carry the TempID other fields reference.
type GroupInput struct {
	ID        uint   `json:"id,omitempty"`
	TempID    string `json:"temp_id,omitempty"`
	Title     string `json:"title" validate:"required,max=100"`
	SortOrder int    `json:"sort_order" validate:"gte=0"`
}

// GroupRef points at a persisted group (ID) or a group created in the same batch (TempID).
type GroupRef struct {
	ID     uint   `json:"id,omitempty"`
	TempID string `json:"temp_id,omitempty"`
}

type FieldInput struct {
	ID              uint           `json:"id,omitempty"`
	Group           *GroupRef      `json:"field_group,omitempty"`
	Key             string         `json:"key" validate:"max=50"`
	Label           string         `json:"label" validate:"required,max=100"`
	FieldType       FieldType      `json:"field_type" validate:"required,fieldtype"`
	IsRequired      bool           `json:"is_required"`
	IsEnabled       bool           `json:"is_enabled"`
	SortOrder       int            `json:"sort_order" validate:"gte=0"`
	Placeholder     *string        `json:"placeholder" validate:"omitempty,max=255"`
	HelpText        *string        `json:"help_text" validate:"omitempty,max=255"`
	ValidationRules datatypes.JSON `json:"validation_rules"`
	Options         []FieldOption  `json:"options" validate:"omitempty,dive"`
}

// SaveFieldsRequest is the whole working set sent by a designer commit.
type SaveFieldsRequest struct {
	FieldGroups []GroupInput `json:"field_groups" validate:"dive"`
	Fields      []FieldInput `json:"fields" validate:"dive"`
}
