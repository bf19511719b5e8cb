package designer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sharath018/school-management-backend/internal/eventtype"
)

var (
	ErrNoSession  = errors.New("no designer session open for this event type")
	ErrUnknownRef = errors.New("group or field is not part of the working set")
)

// CommitFunc persists a whole working set and returns the stored state.
type CommitFunc func(ctx context.Context, req *eventtype.SaveFieldsRequest) (*eventtype.FieldSet, error)

func NewSession(userID, schoolID, eventTypeID uint) *Session {
	return &Session{UserID: userID, SchoolID: schoolID, EventTypeID: eventTypeID, Groups: []Group{}, Fields: []Field{}}
}

// Load replaces the working set with persisted state and clears the dirty flag.
func (s *Session) Load(set *eventtype.FieldSet) {
	s.Groups = make([]Group, 0, len(set.FieldGroups))
	for _, g := range set.FieldGroups {
		s.Groups = append(s.Groups, Group{Ref: PersistedRef(g.ID), Title: g.Title, SortOrder: g.SortOrder})
	}
	s.Fields = make([]Field, 0, len(set.Fields))
	for _, f := range set.Fields {
		field := Field{
			Ref:             PersistedRef(f.ID),
			Key:             f.Key,
			Label:           f.Label,
			FieldType:       f.FieldType,
			IsRequired:      f.IsRequired,
			IsEnabled:       f.IsEnabled,
			SortOrder:       f.SortOrder,
			Placeholder:     f.Placeholder,
			HelpText:        f.HelpText,
			ValidationRules: f.ValidationRules,
			Options:         []eventtype.FieldOption(f.Options),
		}
		if f.FieldGroupID != nil {
			ref := PersistedRef(*f.FieldGroupID)
			field.Group = &ref
		}
		s.Fields = append(s.Fields, field)
	}
	s.Dirty = false
	s.touch()
}

func (s *Session) touch() { s.UpdatedAt = time.Now().UTC() }

func (s *Session) markDirty() {
	s.Dirty = true
	s.touch()
}

func (s *Session) groupIndex(ref Ref) int {
	for i := range s.Groups {
		if s.Groups[i].Ref == ref {
			return i
		}
	}
	return -1
}

func (s *Session) fieldIndex(ref Ref) int {
	for i := range s.Fields {
		if s.Fields[i].Ref == ref {
			return i
		}
	}
	return -1
}

// FieldByRef returns a copy of the field.
func (s *Session) FieldByRef(ref Ref) (Field, bool) {
	if i := s.fieldIndex(ref); i >= 0 {
		return s.Fields[i], true
	}
	return Field{}, false
}

func (s *Session) GroupByRef(ref Ref) (Group, bool) {
	if i := s.groupIndex(ref); i >= 0 {
		return s.Groups[i], true
	}
	return Group{}, false
}

// ===========================
// 📁 Groups

// AddGroup returns a draft group placed after the existing ones. It is not
// part of the working set until SaveGroup.
func (s *Session) AddGroup() Group {
	return Group{Ref: Ref{Draft: NewDraftID()}, SortOrder: len(s.Groups)}
}

// SaveGroup upserts g by its ref.
func (s *Session) SaveGroup(g Group) error {
	g.Title = strings.TrimSpace(g.Title)
	switch {
	case g.Title == "":
		return eventtype.NewValidationError(map[string]string{"title": "is required"}, nil)
	case utf8.RuneCountInString(g.Title) > 100:
		return eventtype.NewValidationError(map[string]string{"title": "must be at most 100 characters"}, nil)
	}

	if i := s.groupIndex(g.Ref); i >= 0 {
		s.Groups[i] = g
	} else if g.IsDraft() {
		s.Groups = append(s.Groups, g)
	} else {
		return fmt.Errorf("%w: group %s", ErrUnknownRef, g.Ref)
	}
	s.markDirty()
	return nil
}

// DeleteGroup removes the group and moves its fields to the ungrouped bucket.
// Fields are never deleted with their group.
func (s *Session) DeleteGroup(ref Ref) error {
	i := s.groupIndex(ref)
	if i < 0 {
		return fmt.Errorf("%w: group %s", ErrUnknownRef, ref)
	}
	s.Groups = append(s.Groups[:i], s.Groups[i+1:]...)
	sort.SliceStable(s.Groups, func(a, b int) bool { return s.Groups[a].SortOrder < s.Groups[b].SortOrder })
	for order := range s.Groups {
		s.Groups[order].SortOrder = order
	}

	ungrouped := s.bucket(nil)
	moved := s.bucket(&ref)
	for _, idx := range moved {
		s.Fields[idx].Group = nil
	}
	s.renumber(append(ungrouped, moved...))
	s.markDirty()
	return nil
}

// ===========================
// 🧩 Fields

// AddField returns a draft text field at the end of its bucket. It is not
// part of the working set until SaveField.
func (s *Session) AddField(group *Ref) (Field, error) {
	if group != nil && s.groupIndex(*group) < 0 {
		return Field{}, fmt.Errorf("%w: group %s", ErrUnknownRef, *group)
	}
	f := Field{
		Ref:        Ref{Draft: NewDraftID()},
		FieldType:  eventtype.FieldText,
		IsEnabled:  true,
		IsRequired: false,
		SortOrder:  len(s.bucket(group)),
	}
	if group != nil {
		g := *group
		f.Group = &g
	}
	return f, nil
}

// SaveField upserts f by its ref. A blank key is derived from the label.
// Validation failures leave the working set untouched.
func (s *Session) SaveField(f Field) error {
	if f.Group != nil && s.groupIndex(*f.Group) < 0 {
		return fmt.Errorf("%w: group %s", ErrUnknownRef, *f.Group)
	}

	in := eventtype.FieldInput{
		Key:         f.Key,
		Label:       f.Label,
		FieldType:   f.FieldType,
		Placeholder: f.Placeholder,
		HelpText:    f.HelpText,
		Options:     f.Options,
	}
	eventtype.NormalizeField(&in)
	if err := eventtype.ValidateField(&in); err != nil {
		return rekey(err)
	}
	f.Key, f.Label, f.Options = in.Key, in.Label, in.Options

	for i := range s.Fields {
		if s.Fields[i].Ref != f.Ref && s.Fields[i].Key == f.Key {
			return eventtype.NewValidationError(map[string]string{
				"key": fmt.Sprintf("%q is already used by %q", f.Key, s.Fields[i].Label),
			}, eventtype.ErrDuplicateKey)
		}
	}

	i := s.fieldIndex(f.Ref)
	switch {
	case i >= 0:
		prev := s.Fields[i].Group
		if !sameGroup(prev, f.Group) {
			f.SortOrder = len(s.bucket(f.Group))
			s.Fields[i] = f
			s.renumber(s.bucket(prev))
		} else {
			s.Fields[i] = f
		}
	case f.IsDraft():
		s.Fields = append(s.Fields, f)
	default:
		return fmt.Errorf("%w: field %s", ErrUnknownRef, f.Ref)
	}
	s.markDirty()
	return nil
}

func (s *Session) DeleteField(ref Ref) error {
	i := s.fieldIndex(ref)
	if i < 0 {
		return fmt.Errorf("%w: field %s", ErrUnknownRef, ref)
	}
	group := s.Fields[i].Group
	s.Fields = append(s.Fields[:i], s.Fields[i+1:]...)
	s.renumber(s.bucket(group))
	s.markDirty()
	return nil
}

func (s *Session) ToggleFieldEnabled(ref Ref) error {
	i := s.fieldIndex(ref)
	if i < 0 {
		return fmt.Errorf("%w: field %s", ErrUnknownRef, ref)
	}
	s.Fields[i].IsEnabled = !s.Fields[i].IsEnabled
	s.markDirty()
	return nil
}

// MoveField swaps the field with its neighbour in the same bucket and
// renumbers that bucket 0..n-1. At either end of the bucket it does nothing.
func (s *Session) MoveField(ref Ref, dir Direction) error {
	i := s.fieldIndex(ref)
	if i < 0 {
		return fmt.Errorf("%w: field %s", ErrUnknownRef, ref)
	}
	if dir != Up && dir != Down {
		return eventtype.NewValidationError(map[string]string{"direction": "must be up or down"}, nil)
	}

	bucket := s.bucket(s.Fields[i].Group)
	pos := 0
	for p, idx := range bucket {
		if idx == i {
			pos = p
			break
		}
	}
	target := pos - 1
	if dir == Down {
		target = pos + 1
	}
	if target < 0 || target >= len(bucket) {
		return nil
	}

	bucket[pos], bucket[target] = bucket[target], bucket[pos]
	s.renumber(bucket)
	s.markDirty()
	return nil
}

// bucket returns indexes into s.Fields of the fields in one group (nil for
// ungrouped) ordered by sort_order, ties broken by position.
func (s *Session) bucket(group *Ref) []int {
	var idx []int
	for i := range s.Fields {
		if sameGroup(s.Fields[i].Group, group) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return s.Fields[idx[a]].SortOrder < s.Fields[idx[b]].SortOrder
	})
	return idx
}

func (s *Session) renumber(bucket []int) {
	for order, idx := range bucket {
		s.Fields[idx].SortOrder = order
	}
}

func sameGroup(a, b *Ref) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ===========================
// 💾 Commit

// Request builds the batch sent on commit. Draft groups travel as temp ids;
// draft fields travel without an id.
func (s *Session) Request() *eventtype.SaveFieldsRequest {
	req := &eventtype.SaveFieldsRequest{
		FieldGroups: make([]eventtype.GroupInput, 0, len(s.Groups)),
		Fields:      make([]eventtype.FieldInput, 0, len(s.Fields)),
	}
	for _, g := range s.Groups {
		in := eventtype.GroupInput{ID: g.ID, Title: g.Title, SortOrder: g.SortOrder}
		if g.IsDraft() {
			in.TempID = string(g.Draft)
		}
		req.FieldGroups = append(req.FieldGroups, in)
	}
	for _, f := range s.Fields {
		in := eventtype.FieldInput{
			ID:              f.ID,
			Key:             f.Key,
			Label:           f.Label,
			FieldType:       f.FieldType,
			IsRequired:      f.IsRequired,
			IsEnabled:       f.IsEnabled,
			SortOrder:       f.SortOrder,
			Placeholder:     f.Placeholder,
			HelpText:        f.HelpText,
			ValidationRules: f.ValidationRules,
			Options:         append([]eventtype.FieldOption(nil), f.Options...),
		}
		if f.Group != nil {
			if f.Group.IsDraft() {
				in.Group = &eventtype.GroupRef{TempID: string(f.Group.Draft)}
			} else {
				in.Group = &eventtype.GroupRef{ID: f.Group.ID}
			}
		}
		req.Fields = append(req.Fields, in)
	}
	return req
}

// Commit sends the whole working set through save. On success the session
// adopts the stored state; on failure it is left exactly as it was.
func (s *Session) Commit(ctx context.Context, save CommitFunc) (*eventtype.FieldSet, error) {
	set, err := save(ctx, s.Request())
	if err != nil {
		return nil, err
	}
	s.Load(set)
	return set, nil
}

// rekey strips the batch path prefix from single-field validation errors.
func rekey(err error) error {
	var ve *eventtype.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	fields := make(map[string]string, len(ve.Fields))
	for path, msg := range ve.Fields {
		fields[strings.TrimPrefix(path, "fields[0].")] = msg
	}
	return eventtype.NewValidationError(fields, errors.Unwrap(ve))
}
