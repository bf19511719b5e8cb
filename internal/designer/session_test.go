package designer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sharath018/school-management-backend/internal/eventtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSaveGroup(t *testing.T, s *Session, title string) Ref {
	t.Helper()
	g := s.AddGroup()
	g.Title = title
	require.NoError(t, s.SaveGroup(g))
	return g.Ref
}

func mustSaveField(t *testing.T, s *Session, group *Ref, label string) Ref {
	t.Helper()
	f, err := s.AddField(group)
	require.NoError(t, err)
	f.Label = label
	require.NoError(t, s.SaveField(f))
	return f.Ref
}

func bucketKeys(s *Session, group *Ref) []string {
	var keys []string
	for _, idx := range s.bucket(group) {
		keys = append(keys, s.Fields[idx].Key)
	}
	return keys
}

func TestRefRoundTrip(t *testing.T) {
	d := Ref{Draft: NewDraftID()}
	assert.True(t, strings.HasPrefix(d.String(), "draft-"))
	back, err := ParseRef(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, back)

	p, err := ParseRef("42")
	require.NoError(t, err)
	assert.Equal(t, PersistedRef(42), p)
	assert.False(t, p.IsDraft())

	for _, bad := range []string{"", "0", "draft-xyz", "-3"} {
		_, err := ParseRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestAddFieldDefaultsAndDraftsAreNotInWorkingSet(t *testing.T) {
	s := NewSession(1, 1, 1)
	f, err := s.AddField(nil)
	require.NoError(t, err)
	assert.True(t, f.IsDraft())
	assert.Equal(t, eventtype.FieldText, f.FieldType)
	assert.True(t, f.IsEnabled)
	assert.False(t, f.IsRequired)
	assert.Empty(t, s.Fields)
	assert.False(t, s.Dirty)

	g := s.AddGroup()
	assert.True(t, g.IsDraft())
	assert.Empty(t, s.Groups)

	missing := PersistedRef(99)
	_, err = s.AddField(&missing)
	assert.ErrorIs(t, err, ErrUnknownRef)
}

func TestSaveFieldDerivesBlankKey(t *testing.T) {
	s := NewSession(1, 1, 1)
	ref := mustSaveField(t, s, nil, "Phone Number")
	f, ok := s.FieldByRef(ref)
	require.True(t, ok)
	assert.Equal(t, "phone_number", f.Key)
	assert.True(t, s.Dirty)

	f.Key = "mobile"
	f.Label = "Mobile Phone"
	require.NoError(t, s.SaveField(f))
	f, _ = s.FieldByRef(ref)
	assert.Equal(t, "mobile", f.Key, "explicit keys are kept")
	assert.Len(t, s.Fields, 1, "save upserts by id")
}

func TestSaveFieldValidationLeavesWorkingSetUntouched(t *testing.T) {
	s := NewSession(1, 1, 1)
	ref := mustSaveField(t, s, nil, "Name")
	before := append([]Field(nil), s.Fields...)

	f, _ := s.FieldByRef(ref)
	f.Label = "   "
	err := s.SaveField(f)
	var ve *eventtype.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "label")
	assert.Equal(t, before, s.Fields)

	dup, _ := s.AddField(nil)
	dup.Label = "name"
	err = s.SaveField(dup)
	assert.True(t, errors.Is(err, eventtype.ErrDuplicateKey))
	assert.Equal(t, before, s.Fields)

	sel, _ := s.AddField(nil)
	sel.Label = "Size"
	sel.FieldType = eventtype.FieldSelect
	assert.Error(t, s.SaveField(sel), "choice fields need options")

	require.Error(t, s.SaveGroup(s.AddGroup()), "group title is required")
	assert.Empty(t, s.Groups)
}

func TestSaveFieldClearsOptionsForNonChoiceTypes(t *testing.T) {
	s := NewSession(1, 1, 1)
	f, _ := s.AddField(nil)
	f.Label = "Size"
	f.FieldType = eventtype.FieldSelect
	f.Options = []eventtype.FieldOption{{Value: "M", Label: "Medium"}}
	require.NoError(t, s.SaveField(f))

	f.FieldType = eventtype.FieldText
	require.NoError(t, s.SaveField(f))
	saved, _ := s.FieldByRef(f.Ref)
	assert.Empty(t, saved.Options)
}

func TestDeleteGroupUngroupsFieldsAndKeepsCount(t *testing.T) {
	s := NewSession(1, 1, 1)
	contact := mustSaveGroup(t, s, "Contact")
	other := mustSaveGroup(t, s, "Other")
	mustSaveField(t, s, nil, "Loose")
	mustSaveField(t, s, &contact, "Phone")
	mustSaveField(t, s, &contact, "Email")
	mustSaveField(t, s, &other, "Notes")

	total := len(s.Fields)
	var inContact []Ref
	for _, f := range s.Fields {
		if f.Group != nil && *f.Group == contact {
			inContact = append(inContact, f.Ref)
		}
	}
	require.Len(t, inContact, 2)

	require.NoError(t, s.DeleteGroup(contact))
	assert.Len(t, s.Fields, total, "no field is deleted with its group")
	for _, ref := range inContact {
		f, ok := s.FieldByRef(ref)
		require.True(t, ok)
		assert.Nil(t, f.Group)
	}
	assert.Equal(t, []string{"loose", "phone", "email"}, bucketKeys(s, nil))
	for i, idx := range s.bucket(nil) {
		assert.Equal(t, i, s.Fields[idx].SortOrder)
	}
	require.Len(t, s.Groups, 1)
	assert.Equal(t, 0, s.Groups[0].SortOrder)

	assert.ErrorIs(t, s.DeleteGroup(contact), ErrUnknownRef)
}

func TestMoveFieldSwapsWithinBucket(t *testing.T) {
	s := NewSession(1, 1, 1)
	g := mustSaveGroup(t, s, "Contact")
	a := mustSaveField(t, s, nil, "A")
	mustSaveField(t, s, &g, "G1")
	mustSaveField(t, s, nil, "B")
	c := mustSaveField(t, s, nil, "C")
	mustSaveField(t, s, &g, "G2")

	require.NoError(t, s.MoveField(c, Up))
	assert.Equal(t, []string{"a", "c", "b"}, bucketKeys(s, nil))
	assert.Equal(t, []string{"g1", "g2"}, bucketKeys(s, &g), "other buckets are untouched")

	require.NoError(t, s.MoveField(a, Down))
	assert.Equal(t, []string{"c", "a", "b"}, bucketKeys(s, nil))
	for i, idx := range s.bucket(nil) {
		assert.Equal(t, i, s.Fields[idx].SortOrder)
	}
}

func TestMoveFieldAtBoundaryIsNoop(t *testing.T) {
	s := NewSession(1, 1, 1)
	first := mustSaveField(t, s, nil, "First")
	mustSaveField(t, s, nil, "Middle")
	last := mustSaveField(t, s, nil, "Last")
	s.Dirty = false
	before := append([]Field(nil), s.Fields...)

	require.NoError(t, s.MoveField(first, Up))
	require.NoError(t, s.MoveField(last, Down))
	assert.Equal(t, before, s.Fields)
	assert.False(t, s.Dirty)

	assert.Error(t, s.MoveField(first, "sideways"))
}

func TestToggleAndDeleteField(t *testing.T) {
	s := NewSession(1, 1, 1)
	a := mustSaveField(t, s, nil, "A")
	b := mustSaveField(t, s, nil, "B")

	require.NoError(t, s.ToggleFieldEnabled(a))
	f, _ := s.FieldByRef(a)
	assert.False(t, f.IsEnabled)

	require.NoError(t, s.DeleteField(a))
	f, _ = s.FieldByRef(b)
	assert.Equal(t, 0, f.SortOrder)
	assert.ErrorIs(t, s.DeleteField(a), ErrUnknownRef)
}

func TestRequestSeparatesDraftIDs(t *testing.T) {
	s := NewSession(1, 1, 1)
	s.Load(&eventtype.FieldSet{
		FieldGroups: []eventtype.FieldGroup{{ID: 5, Title: "Stored"}},
		Fields:      []eventtype.Field{{ID: 50, FieldGroupID: uptr(5), Key: "kept", Label: "Kept", FieldType: eventtype.FieldText, IsEnabled: true}},
	})
	draft := mustSaveGroup(t, s, "New")
	mustSaveField(t, s, &draft, "Fresh")

	req := s.Request()
	require.Len(t, req.FieldGroups, 2)
	assert.Equal(t, uint(5), req.FieldGroups[0].ID)
	assert.Empty(t, req.FieldGroups[0].TempID)
	assert.Zero(t, req.FieldGroups[1].ID)
	assert.Equal(t, string(draft.Draft), req.FieldGroups[1].TempID)

	require.Len(t, req.Fields, 2)
	assert.Equal(t, uint(50), req.Fields[0].ID)
	assert.Equal(t, &eventtype.GroupRef{ID: 5}, req.Fields[0].Group)
	assert.Zero(t, req.Fields[1].ID)
	assert.Equal(t, &eventtype.GroupRef{TempID: string(draft.Draft)}, req.Fields[1].Group)
}

func TestCommitFailureKeepsWorkingSet(t *testing.T) {
	s := NewSession(1, 1, 1)
	mustSaveField(t, s, nil, "Name")
	before := append([]Field(nil), s.Fields...)

	boom := errors.New("network down")
	_, err := s.Commit(context.Background(), func(context.Context, *eventtype.SaveFieldsRequest) (*eventtype.FieldSet, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, s.Dirty)
	assert.Equal(t, before, s.Fields)

	set, err := s.Commit(context.Background(), func(_ context.Context, req *eventtype.SaveFieldsRequest) (*eventtype.FieldSet, error) {
		return &eventtype.FieldSet{Fields: []eventtype.Field{{ID: 1, Key: req.Fields[0].Key, Label: req.Fields[0].Label, FieldType: eventtype.FieldText, IsEnabled: true}}}, nil
	})
	require.NoError(t, err)
	require.Len(t, set.Fields, 1)
	assert.False(t, s.Dirty)
	assert.Equal(t, PersistedRef(1), s.Fields[0].Ref)
}

func uptr(u uint) *uint { return &u }
