package designer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sharath018/school-management-backend/internal/eventtype"
	"gorm.io/datatypes"
)

const draftPrefix = "draft-"

// DraftID identifies a group or field that exists only in a working set.
// It is never sent to the database as an id.
type DraftID string

func NewDraftID() DraftID {
	return DraftID(draftPrefix + uuid.NewString())
}

// Ref points at either a persisted row (ID) or a draft (Draft), never both.
type Ref struct {
	ID    uint    `json:"id,omitempty"`
	Draft DraftID `json:"draft_id,omitempty"`
}

func PersistedRef(id uint) Ref { return Ref{ID: id} }

func (r Ref) IsDraft() bool { return r.Draft != "" }
func (r Ref) IsZero() bool  { return r.ID == 0 && r.Draft == "" }

func (r Ref) String() string {
	if r.IsDraft() {
		return string(r.Draft)
	}
	return strconv.FormatUint(uint64(r.ID), 10)
}

// ParseRef reads a path segment written by Ref.String.
func ParseRef(s string) (Ref, error) {
	if strings.HasPrefix(s, draftPrefix) {
		if _, err := uuid.Parse(strings.TrimPrefix(s, draftPrefix)); err != nil {
			return Ref{}, fmt.Errorf("invalid draft id %q", s)
		}
		return Ref{Draft: DraftID(s)}, nil
	}
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return Ref{}, fmt.Errorf("invalid id %q", s)
	}
	return Ref{ID: uint(id)}, nil
}

type Group struct {
	Ref
	Title     string `json:"title"`
	SortOrder int    `json:"sort_order"`
}

type Field struct {
	Ref
	Group           *Ref                    `json:"field_group,omitempty"`
	Key             string                  `json:"key"`
	Label           string                  `json:"label"`
	FieldType       eventtype.FieldType     `json:"field_type"`
	IsRequired      bool                    `json:"is_required"`
	IsEnabled       bool                    `json:"is_enabled"`
	SortOrder       int                     `json:"sort_order"`
	Placeholder     *string                 `json:"placeholder,omitempty"`
	HelpText        *string                 `json:"help_text,omitempty"`
	ValidationRules datatypes.JSON          `json:"validation_rules,omitempty"`
	Options         []eventtype.FieldOption `json:"options,omitempty"`
}

// Direction for MoveField.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Session is the mutable working set of one user editing one event type.
type Session struct {
	UserID      uint      `json:"user_id"`
	SchoolID    uint      `json:"school_id"`
	EventTypeID uint      `json:"event_type_id"`
	Groups      []Group   `json:"field_groups"`
	Fields      []Field   `json:"fields"`
	Dirty       bool      `json:"dirty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
