package eventtype

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sharath018/school-management-backend/middleware"
	"github.com/sharath018/school-management-backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	types     map[uint]*EventType
	saved     *SaveFieldsRequest
	getFields int
}

func newStubRepo() *stubRepo {
	return &stubRepo{types: map[uint]*EventType{7: {ID: 7, SchoolID: 1, Name: "Graduation", IsActive: true}}}
}

func (r *stubRepo) Create(_ context.Context, et *EventType) error {
	et.ID = uint(len(r.types) + 100)
	r.types[et.ID] = et
	return nil
}

func (r *stubRepo) GetByID(_ context.Context, schoolID, id uint) (*EventType, error) {
	et, ok := r.types[id]
	if !ok || et.SchoolID != schoolID {
		return nil, ErrNotFound
	}
	return et, nil
}

func (r *stubRepo) List(_ context.Context, _ uint, _ bool) ([]EventType, error) { return nil, nil }
func (r *stubRepo) Update(_ context.Context, _ *EventType) error                { return nil }
func (r *stubRepo) Delete(_ context.Context, _, _ uint) error                   { return nil }

func (r *stubRepo) GetFields(_ context.Context, eventTypeID uint) (*FieldSet, error) {
	r.getFields++
	return &FieldSet{Fields: []Field{{ID: 1, EventTypeID: eventTypeID, Key: "name"}}}, nil
}

func (r *stubRepo) SaveFields(_ context.Context, eventTypeID uint, req *SaveFieldsRequest) (*FieldSet, error) {
	r.saved = req
	set := &FieldSet{}
	for i, f := range req.Fields {
		set.Fields = append(set.Fields, Field{ID: uint(i + 1), EventTypeID: eventTypeID, Key: f.Key, Label: f.Label, FieldType: f.FieldType})
	}
	return set, nil
}

func (r *stubRepo) PurgeDeleted(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

type memCache struct {
	sets        map[uint]*FieldSet
	invalidated []uint
}

func (c *memCache) Get(_ context.Context, id uint) (*FieldSet, bool) {
	s, ok := c.sets[id]
	return s, ok
}

func (c *memCache) Set(_ context.Context, id uint, set *FieldSet) error {
	c.sets[id] = set
	return nil
}

func (c *memCache) Invalidate(_ context.Context, id uint) error {
	delete(c.sets, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

type chanPublisher chan utils.DomainEvent

func (p chanPublisher) Publish(_ context.Context, evt utils.DomainEvent) error {
	p <- evt
	return nil
}

var writer = middleware.AccessContext{UserID: 3, RoleName: middleware.RoleSchoolAdmin, PermissionType: "full"}

func TestSaveFieldsNormalizesAndPublishes(t *testing.T) {
	repo := newStubRepo()
	cache := &memCache{sets: map[uint]*FieldSet{7: {}}}
	pub := make(chanPublisher, 1)
	svc := NewService(repo, cache, nil, pub)

	set, err := svc.SaveFields(context.Background(), 1, 7, &SaveFieldsRequest{
		Fields: []FieldInput{
			{Label: "  Phone Number ", FieldType: FieldPhone, Options: []FieldOption{{Value: "x", Label: "x"}}},
			{Label: "T-Shirt Size", FieldType: FieldSelect, Options: []FieldOption{{Value: "M", Label: "Medium"}}},
		},
	}, writer, "127.0.0.1")
	require.NoError(t, err)
	require.Len(t, set.Fields, 2)

	assert.Equal(t, "phone_number", repo.saved.Fields[0].Key)
	assert.Equal(t, "Phone Number", repo.saved.Fields[0].Label)
	assert.Nil(t, repo.saved.Fields[0].Options)
	assert.Equal(t, "tshirt_size", repo.saved.Fields[1].Key)
	assert.Len(t, repo.saved.Fields[1].Options, 1)

	assert.Equal(t, []uint{7}, cache.invalidated)

	select {
	case evt := <-pub:
		assert.Equal(t, utils.EventFieldsSaved, evt.Type)
		assert.EqualValues(t, 1, evt.SchoolID)
	case <-time.After(2 * time.Second):
		t.Fatal("fields_saved event not published")
	}
}

func TestSaveFieldsRejectsDuplicateDerivedKeys(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.SaveFields(context.Background(), 1, 7, &SaveFieldsRequest{
		Fields: []FieldInput{
			{Label: "Phone Number", FieldType: FieldPhone},
			{Label: "phone   number", FieldType: FieldText},
		},
	}, writer, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateKey))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "fields[1].key")
	assert.Nil(t, repo.saved, "nothing reaches the repository")
}

func TestSaveFieldsValidation(t *testing.T) {
	cases := []struct {
		name string
		req  SaveFieldsRequest
		path string
	}{
		{"missing label", SaveFieldsRequest{Fields: []FieldInput{{Key: "a", FieldType: FieldText}}}, "fields[0].label"},
		{"unknown type", SaveFieldsRequest{Fields: []FieldInput{{Label: "A", FieldType: "colour"}}}, "fields[0].field_type"},
		{"select without options", SaveFieldsRequest{Fields: []FieldInput{{Label: "Size", FieldType: FieldMultiselect}}}, "fields[0].options"},
		{"underivable key", SaveFieldsRequest{Fields: []FieldInput{{Label: "???", FieldType: FieldText}}}, "fields[0].key"},
		{"bad explicit key", SaveFieldsRequest{Fields: []FieldInput{{Key: "Has Space", Label: "A", FieldType: FieldText}}}, "fields[0].key"},
		{"blank group title", SaveFieldsRequest{FieldGroups: []GroupInput{{TempID: "g"}}}, "field_groups[0].title"},
		{"dangling temp group", SaveFieldsRequest{Fields: []FieldInput{{Label: "A", FieldType: FieldText, Group: &GroupRef{TempID: "nope"}}}}, "fields[0].field_group"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			Normalize(&req)
			err := Validate(&req)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Contains(t, ve.Fields, tc.path)
			assert.False(t, errors.Is(err, ErrDuplicateKey))
		})
	}
}

func TestSaveFieldsRequiresWriteAccess(t *testing.T) {
	svc := NewService(newStubRepo(), nil, nil, nil)
	reader := middleware.AccessContext{UserID: 4, PermissionType: "readonly"}

	_, err := svc.SaveFields(context.Background(), 1, 7, &SaveFieldsRequest{}, reader, "")
	assert.ErrorIs(t, err, ErrWriteDenied)

	_, err = svc.SaveFields(context.Background(), 2, 7, &SaveFieldsRequest{}, writer, "")
	assert.ErrorIs(t, err, ErrNotFound, "event type of another school")
}

func TestGetFieldsReadThrough(t *testing.T) {
	repo := newStubRepo()
	cache := &memCache{sets: map[uint]*FieldSet{}}
	svc := NewService(repo, cache, nil, nil)

	for i := 0; i < 3; i++ {
		set, err := svc.GetFields(context.Background(), 1, 7)
		require.NoError(t, err)
		require.Len(t, set.Fields, 1)
	}
	assert.Equal(t, 1, repo.getFields)
}
