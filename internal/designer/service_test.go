package designer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sharath018/school-management-backend/internal/eventtype"
	"github.com/sharath018/school-management-backend/internal/guestform"
	"github.com/sharath018/school-management-backend/internal/testutil"
	"github.com/sharath018/school-management-backend/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var editor = middleware.AccessContext{UserID: 3, RoleName: middleware.RoleSchoolAdmin, PermissionType: "full"}

func newTestService(t *testing.T) (*Service, *eventtype.Service, *eventtype.EventType) {
	t.Helper()
	db := testutil.NewDB(t, &eventtype.EventType{}, &eventtype.FieldGroup{}, &eventtype.Field{})
	repo := eventtype.NewRepository(db)
	et := &eventtype.EventType{SchoolID: 1, Name: "Graduation", IsActive: true}
	require.NoError(t, repo.Create(context.Background(), et))

	types := eventtype.NewService(repo, nil, nil, nil)
	return NewService(NewMemoryStore(), types), types, et
}

func TestGraduationDesignAndSubmit(t *testing.T) {
	svc, types, et := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Open(ctx, editor, 1, et.ID)
	require.NoError(t, err)
	assert.Empty(t, sess.Fields)

	_, contact, err := svc.AddGroup(ctx, editor, 1, et.ID, GroupBody{Title: "Contact"})
	require.NoError(t, err)
	assert.True(t, contact.IsDraft())

	_, _, err = svc.AddField(ctx, editor, 1, et.ID, FieldBody{Group: InGroup(contact), Label: "Phone Number", FieldType: eventtype.FieldPhone})
	require.NoError(t, err)
	sess, _, err = svc.AddField(ctx, editor, 1, et.ID, FieldBody{
		Label:     "T-Shirt Size",
		FieldType: eventtype.FieldSelect,
		Options:   &[]eventtype.FieldOption{{Value: "M", Label: "Medium"}},
	})
	require.NoError(t, err)
	assert.True(t, sess.Dirty)

	sess, err = svc.Commit(ctx, editor, 1, et.ID, "127.0.0.1")
	require.NoError(t, err)
	assert.False(t, sess.Dirty)
	require.Len(t, sess.Groups, 1)
	require.Len(t, sess.Fields, 2)
	for _, f := range sess.Fields {
		assert.False(t, f.IsDraft(), "committed fields carry server ids")
	}

	stored, err := svc.State(ctx, editor, 1, et.ID)
	require.NoError(t, err)
	assert.False(t, stored.Dirty)

	set, err := types.GetFields(ctx, 1, et.ID)
	require.NoError(t, err)
	form, err := guestform.Render(set)
	require.NoError(t, err)
	require.Len(t, form.Sections, 2)
	assert.Equal(t, "Contact", form.Sections[0].Title)

	phone, ok := form.InputByKey("phone_number")
	require.True(t, ok)
	shirt, ok := form.InputByKey("tshirt_size")
	require.True(t, ok)

	answers, err := form.DecodeAll(map[uint][]byte{
		phone.FieldID: []byte(`""`),
		shirt.FieldID: []byte(`"M"`),
	})
	require.NoError(t, err)
	require.NoError(t, form.Validate(answers))
	assert.Equal(t, []guestform.FieldValue{{FieldID: shirt.FieldID, Value: "M"}}, form.Transform(answers))
}

func TestCommitFailureKeepsStoredSession(t *testing.T) {
	svc, types, et := newTestService(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, editor, 1, et.ID)
	require.NoError(t, err)
	_, ref, err := svc.AddField(ctx, editor, 1, et.ID, FieldBody{Label: "Name", FieldType: eventtype.FieldText})
	require.NoError(t, err)

	require.NoError(t, types.DeleteEventType(ctx, et.ID, editor, 1, ""))

	_, err = svc.Commit(ctx, editor, 1, et.ID, "")
	assert.ErrorIs(t, err, eventtype.ErrNotFound)

	sess, err := svc.State(ctx, editor, 1, et.ID)
	require.NoError(t, err)
	assert.True(t, sess.Dirty)
	f, ok := sess.FieldByRef(ref)
	require.True(t, ok)
	assert.True(t, f.IsDraft())
}

func TestFailedEditIsNotStored(t *testing.T) {
	svc, _, et := newTestService(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, editor, 1, et.ID)
	require.NoError(t, err)
	_, ref, err := svc.AddField(ctx, editor, 1, et.ID, FieldBody{Label: "Name", FieldType: eventtype.FieldText})
	require.NoError(t, err)

	_, err = svc.UpdateField(ctx, editor, 1, et.ID, ref, FieldBody{Label: "", FieldType: eventtype.FieldText})
	require.Error(t, err)

	sess, err := svc.State(ctx, editor, 1, et.ID)
	require.NoError(t, err)
	f, _ := sess.FieldByRef(ref)
	assert.Equal(t, "Name", f.Label)

	_, err = svc.MoveField(ctx, editor, 1, et.ID, PersistedRef(404), Up)
	assert.ErrorIs(t, err, ErrUnknownRef)
}

func TestSessionAccess(t *testing.T) {
	svc, _, et := newTestService(t)
	ctx := context.Background()

	reader := middleware.AccessContext{UserID: 3, PermissionType: "readonly"}
	_, err := svc.Open(ctx, reader, 1, et.ID)
	assert.ErrorIs(t, err, eventtype.ErrWriteDenied)

	_, err = svc.Open(ctx, editor, 2, et.ID)
	assert.ErrorIs(t, err, eventtype.ErrNotFound, "event type of another school")

	_, err = svc.Open(ctx, editor, 1, et.ID)
	require.NoError(t, err)
	_, err = svc.State(ctx, editor, 2, et.ID)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, svc.Discard(ctx, editor, et.ID))
	_, err = svc.State(ctx, editor, 1, et.ID)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestUpdateFieldKeepsMembersLeftOut(t *testing.T) {
	svc, _, et := newTestService(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, editor, 1, et.ID)
	require.NoError(t, err)
	_, contact, err := svc.AddGroup(ctx, editor, 1, et.ID, GroupBody{Title: "Contact"})
	require.NoError(t, err)
	hint := "+91"
	_, ref, err := svc.AddField(ctx, editor, 1, et.ID, FieldBody{
		Group:       InGroup(contact),
		Label:       "Phone Number",
		FieldType:   eventtype.FieldPhone,
		Placeholder: &hint,
	})
	require.NoError(t, err)

	sess, err := svc.UpdateField(ctx, editor, 1, et.ID, ref, FieldBody{Label: "Mobile"})
	require.NoError(t, err)
	f, ok := sess.FieldByRef(ref)
	require.True(t, ok)
	assert.Equal(t, "Mobile", f.Label)
	assert.Equal(t, "phone_number", f.Key, "a blank key keeps the stored one")
	assert.Equal(t, eventtype.FieldPhone, f.FieldType)
	require.NotNil(t, f.Group)
	assert.Equal(t, contact, *f.Group)
	require.NotNil(t, f.Placeholder)
	assert.Equal(t, "+91", *f.Placeholder)

	sess, err = svc.UpdateField(ctx, editor, 1, et.ID, ref, FieldBody{Label: "Mobile", Key: "mobile", Group: GroupChange{Set: true}})
	require.NoError(t, err)
	f, _ = sess.FieldByRef(ref)
	assert.Equal(t, "mobile", f.Key)
	assert.Nil(t, f.Group)
}

func TestUpdateFieldHandlerPartialBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, et := newTestService(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, editor, 1, et.ID)
	require.NoError(t, err)
	_, contact, err := svc.AddGroup(ctx, editor, 1, et.ID, GroupBody{Title: "Contact"})
	require.NoError(t, err)
	_, ref, err := svc.AddField(ctx, editor, 1, et.ID, FieldBody{Group: InGroup(contact), Label: "Phone Number", FieldType: eventtype.FieldPhone})
	require.NoError(t, err)

	school := uint(1)
	ac := editor
	ac.DirectSchoolID = &school
	r := gin.New()
	r.PUT("/event-types/:id/designer/fields/:fid", func(c *gin.Context) { c.Set("access_context", ac) }, NewHandler(svc).UpdateField)
	put := func(body string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/event-types/%d/designer/fields/%s", et.ID, ref), strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, put(`{"label":"Mobile"}`))
	sess, err := svc.State(ctx, editor, 1, et.ID)
	require.NoError(t, err)
	f, _ := sess.FieldByRef(ref)
	assert.Equal(t, "phone_number", f.Key)
	require.NotNil(t, f.Group, "field_group left out keeps the group")

	require.Equal(t, http.StatusOK, put(`{"label":"Mobile","field_group":null}`))
	sess, err = svc.State(ctx, editor, 1, et.ID)
	require.NoError(t, err)
	f, _ = sess.FieldByRef(ref)
	assert.Nil(t, f.Group, "an explicit null ungroups the field")
}
