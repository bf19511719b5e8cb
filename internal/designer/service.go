package designer

import (
	"context"
	"log"

	"github.com/bytedance/sonic"
	"github.com/sharath018/school-management-backend/internal/eventtype"
	"github.com/sharath018/school-management-backend/middleware"
	"gorm.io/datatypes"
)

// GroupBody is the editable part of a group.
type GroupBody struct {
	Title     string `json:"title"`
	SortOrder *int   `json:"sort_order,omitempty"`
}

// GroupChange is the field_group member of a FieldBody. Set is false when the
// request leaves the member out; a JSON null sets it with a nil Ref and moves
// the field out of its group.
type GroupChange struct {
	Set bool
	Ref *Ref
}

// InGroup names the group a field should sit in.
func InGroup(ref Ref) GroupChange { return GroupChange{Set: true, Ref: &ref} }

func (g *GroupChange) UnmarshalJSON(b []byte) error {
	g.Set = true
	g.Ref = nil
	if string(b) == "null" {
		return nil
	}
	var ref Ref
	if err := sonic.Unmarshal(b, &ref); err != nil {
		return err
	}
	g.Ref = &ref
	return nil
}

func (g GroupChange) MarshalJSON() ([]byte, error) {
	if g.Ref == nil {
		return []byte("null"), nil
	}
	return sonic.Marshal(g.Ref)
}

// FieldBody is the editable part of a field. Members left out of the request
// keep the field's current value. A blank key keeps the stored key, or is
// derived from the label for a new field.
type FieldBody struct {
	Group           GroupChange              `json:"field_group"`
	Key             string                   `json:"key"`
	Label           string                   `json:"label"`
	FieldType       eventtype.FieldType      `json:"field_type"`
	IsRequired      *bool                    `json:"is_required,omitempty"`
	IsEnabled       *bool                    `json:"is_enabled,omitempty"`
	Placeholder     *string                  `json:"placeholder,omitempty"`
	HelpText        *string                  `json:"help_text,omitempty"`
	ValidationRules *datatypes.JSON          `json:"validation_rules,omitempty"`
	Options         *[]eventtype.FieldOption `json:"options,omitempty"`
}

func (b FieldBody) apply(f *Field) {
	if b.Group.Set {
		f.Group = b.Group.Ref
	}
	if b.Key != "" {
		f.Key = b.Key
	}
	f.Label = b.Label
	if b.FieldType != "" {
		f.FieldType = b.FieldType
	}
	if b.IsRequired != nil {
		f.IsRequired = *b.IsRequired
	}
	if b.IsEnabled != nil {
		f.IsEnabled = *b.IsEnabled
	}
	if b.Placeholder != nil {
		f.Placeholder = b.Placeholder
	}
	if b.HelpText != nil {
		f.HelpText = b.HelpText
	}
	if b.ValidationRules != nil {
		f.ValidationRules = *b.ValidationRules
	}
	if b.Options != nil {
		f.Options = *b.Options
	}
}

// Service keeps designer sessions in a Store and commits them through the
// event type service.
type Service struct {
	Store      Store
	EventTypes *eventtype.Service
}

func NewService(store Store, eventTypes *eventtype.Service) *Service {
	return &Service{Store: store, EventTypes: eventTypes}
}

// Open loads persisted fields into a fresh session, replacing any open one.
func (s *Service) Open(ctx context.Context, ac middleware.AccessContext, schoolID, eventTypeID uint) (*Session, error) {
	if !ac.CanWrite() {
		return nil, eventtype.ErrWriteDenied
	}
	set, err := s.EventTypes.GetFields(ctx, schoolID, eventTypeID)
	if err != nil {
		return nil, err
	}
	sess := NewSession(ac.UserID, schoolID, eventTypeID)
	sess.Load(set)
	if err := s.Store.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) State(ctx context.Context, ac middleware.AccessContext, schoolID, eventTypeID uint) (*Session, error) {
	sess, err := s.Store.Get(ctx, ac.UserID, eventTypeID)
	if err != nil {
		return nil, err
	}
	if sess.SchoolID != schoolID {
		return nil, ErrNoSession
	}
	return sess, nil
}

// mutate loads the session, applies fn and stores the result. When fn fails
// nothing is written back.
func (s *Service) mutate(ctx context.Context, ac middleware.AccessContext, schoolID, eventTypeID uint, fn func(*Session) error) (*Session, error) {
	if !ac.CanWrite() {
		return nil, eventtype.ErrWriteDenied
	}
	sess, err := s.State(ctx, ac, schoolID, eventTypeID)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.Store.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) AddGroup(ctx context.Context, ac middleware.AccessContext, schoolID, eventTypeID uint, body GroupBody) (*Session, Ref, error) {
	var ref Ref
	sess, err := s.mutate(ctx, ac, schoolID, eventTypeID, func(sess *Session) error {
		g := sess.AddGroup()
		g.Title = body.Title
		if body.SortOrder != nil {
			g.SortOrder = *body.SortOrder
		}
		ref = g.Ref
		return sess.SaveGroup(g)
	})
	return sess, ref, err
}

func (s *Service) UpdateGroup(ctx context.Context, ac middleware.AccessContext, schoolID, eventTypeID uint, ref Ref, body GroupBody) (*Session, error) {
	return s.mutate(ctx, ac, schoolID, eventTypeID, func(sess *Session) error {
		g, ok := sess.GroupByRef(ref)
		if !ok {
			return ErrUnknownRef
		}
		g.Title = body.Title
		if body.SortOrder != nil {
			g.SortOrder = *body.SortOrder
		}
		return sess.SaveGroup(g)
	})
}

func (s *Service) DeleteGroup(ctx context.Context, ac middleware.AccessContext, schoolID, eventTypeID uint, ref Ref) (*Session, error) {
	return s.mutate(ctx, ac, schoolID, eventTypeID, func(sess *Session) error {
		return sess.DeleteGroup(ref)
	})
}

func (s *Service) AddField(ctx context.Context, ac middleware.AccessContext, schoolID, eventTypeID uint, body FieldBody) (*Session, Ref, error) {
	var ref Ref
	sess, err := s.mutate(ctx, ac, schoolID, eventTypeID, func(sess *Session) error {
		f, err := sess.AddField(body.Group.Ref)
		if err != nil {
			return err
		}
		body.apply(&f)
		ref = f.Ref
		return sess.SaveField(f)
	})
	return sess, ref, err
}

func (s *Service) UpdateField(ctx context.Context, ac middleware.AccessContext, schoolID, eventTypeID uint, ref Ref, body FieldBody) (*Session, error) {
	return s.mutate(ctx, ac, schoolID, eventTypeID, func(sess *Session) error {
		f, ok := sess.FieldByRef(ref)
		if !ok {
			return ErrUnknownRef
		}
		body.apply(&f)
		return sess.SaveField(f)
	})
}

func (s *Service) DeleteField(ctx context.Context, ac middleware.AccessContext, schoolID, eventTypeID uint, ref Ref) (*Session, error) {
	return s.mutate(ctx, ac, schoolID, eventTypeID, func(sess *Session) error {
		return sess.DeleteField(ref)
	})
}

func (s *Service) ToggleField(ctx context.Context, ac middleware.AccessContext, schoolID, eventTypeID uint, ref Ref) (*Session, error) {
	return s.mutate(ctx, ac, schoolID, eventTypeID, func(sess *Session) error {
		return sess.ToggleFieldEnabled(ref)
	})
}

func (s *Service) MoveField(ctx context.Context, ac middleware.AccessContext, schoolID, eventTypeID uint, ref Ref, dir Direction) (*Session, error) {
	return s.mutate(ctx, ac, schoolID, eventTypeID, func(sess *Session) error {
		return sess.MoveField(ref, dir)
	})
}

// Commit persists the working set. A failed commit leaves the stored session
// as it was so the user can fix it and retry.
func (s *Service) Commit(ctx context.Context, ac middleware.AccessContext, schoolID, eventTypeID uint, ip string) (*Session, error) {
	save := func(ctx context.Context, req *eventtype.SaveFieldsRequest) (*eventtype.FieldSet, error) {
		return s.EventTypes.SaveFields(ctx, schoolID, eventTypeID, req, ac, ip)
	}
	sess, err := s.mutate(ctx, ac, schoolID, eventTypeID, func(sess *Session) error {
		_, err := sess.Commit(ctx, save)
		return err
	})
	if err != nil {
		log.Printf("❌ designer commit failed for event type %d (user %d): %v", eventTypeID, ac.UserID, err)
		return nil, err
	}
	log.Printf("✅ designer commit for event type %d: %d groups, %d fields", eventTypeID, len(sess.Groups), len(sess.Fields))
	return sess, nil
}

func (s *Service) Discard(ctx context.Context, ac middleware.AccessContext, eventTypeID uint) error {
	return s.Store.Delete(ctx, ac.UserID, eventTypeID)
}
