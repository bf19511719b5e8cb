package guest

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chai2010/webp"
	"github.com/sharath018/school-management-backend/internal/event"
	"github.com/sharath018/school-management-backend/internal/eventtype"
	"github.com/sharath018/school-management-backend/internal/reports"
	"github.com/sharath018/school-management-backend/internal/testutil"
	"github.com/sharath018/school-management-backend/middleware"
	"github.com/sharath018/school-management-backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fieldName    = 1
	fieldSeats   = 2
	fieldParking = 3
	fieldMeals   = 4
)

type fakeEvents map[uint]*event.Event

func (f fakeEvents) GetEvent(_ context.Context, schoolID, id uint) (*event.Event, error) {
	if e, ok := f[id]; ok && e.SchoolID == schoolID {
		return e, nil
	}
	return nil, event.ErrNotFound
}

type fakeFields struct{}

func (fakeFields) GetFields(_ context.Context, _, eventTypeID uint) (*eventtype.FieldSet, error) {
	return &eventtype.FieldSet{Fields: []eventtype.Field{
		{ID: fieldName, EventTypeID: eventTypeID, Key: "student_name", Label: "Student Name", FieldType: eventtype.FieldText, IsRequired: true, IsEnabled: true, SortOrder: 0},
		{ID: fieldSeats, EventTypeID: eventTypeID, Key: "seats", Label: "Seats", FieldType: eventtype.FieldNumber, IsEnabled: true, SortOrder: 1},
		{ID: fieldParking, EventTypeID: eventTypeID, Key: "needs_parking", Label: "Needs Parking", FieldType: eventtype.FieldToggle, IsEnabled: true, SortOrder: 2},
		{ID: fieldMeals, EventTypeID: eventTypeID, Key: "meals", Label: "Meals", FieldType: eventtype.FieldMultiselect, IsEnabled: true, SortOrder: 3,
			Options: []eventtype.FieldOption{{Value: "veg", Label: "Veg"}, {Value: "nonveg", Label: "Non-veg"}}},
	}}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []utils.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt utils.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func uptr(u uint) *uint { return &u }

var admin = middleware.AccessContext{UserID: 3, RoleName: middleware.RoleSchoolAdmin, DirectSchoolID: uptr(1), PermissionType: "full"}

type fixture struct {
	svc  *Service
	repo Repository
	pub  *recordingPublisher
	dir  string
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t, &Guest{}, &GuestFieldValue{})
	repo := NewRepository(db)
	events := fakeEvents{
		10: {ID: 10, SchoolID: 1, EventTypeID: uptr(7), Title: "Graduation", Venue: "Main Hall", StartsAt: time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)},
		11: {ID: 11, SchoolID: 1, Title: "Open House"},
	}
	dir := t.TempDir()
	pub := &recordingPublisher{}
	rep := reports.NewService(nil, reports.NewExporter(reports.MustHTMLRenderer()), nil, nil, "")
	svc := NewService(repo, events, fakeFields{}, rep, NewPhotoStore(dir, "http://localhost:8080"), nil, pub)
	return &fixture{svc: svc, repo: repo, pub: pub, dir: dir}
}

func answers(kv map[uint]string) map[uint]json.RawMessage {
	out := make(map[uint]json.RawMessage, len(kv))
	for id, raw := range kv {
		out[id] = json.RawMessage(raw)
	}
	return out
}

func TestCreateGuestValidatesAndKeepsZeroAnswers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateGuest(ctx, 10, &GuestRequest{FullName: "Ravi", FieldValues: answers(map[uint]string{fieldSeats: `2`})}, admin, 1, "")
	var ve *eventtype.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "field_values.student_name")

	g, err := f.svc.CreateGuest(ctx, 10, &GuestRequest{
		FullName:  "  Ravi Kumar ",
		GuestType: TypeParent,
		FieldValues: answers(map[uint]string{
			fieldName:    `"Asha"`,
			fieldSeats:   `0`,
			fieldParking: `false`,
			fieldMeals:   `[]`,
		}),
	}, admin, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "Ravi Kumar", g.FullName)
	assert.Equal(t, StatusInvited, g.Status)
	assert.Equal(t, 1, g.InviteCount)
	assert.Len(t, g.GuestCode, 8)
	assert.Equal(t, strings.ToUpper(g.GuestCode), g.GuestCode)
	assert.Len(t, g.QRToken, 36)
	assert.Equal(t, map[string]interface{}{"student_name": "Asha", "seats": float64(0), "needs_parking": false}, g.FieldValues)

	stored, err := f.repo.Values(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3, "the empty multiselect answer is not stored")
}

func TestUnknownOptionIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateGuest(context.Background(), 10, &GuestRequest{
		FullName:    "Ravi",
		FieldValues: answers(map[uint]string{fieldName: `"Asha"`, fieldMeals: `["vegan"]`}),
	}, admin, 1, "")
	var ve *eventtype.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "field_values.meals")
}

func TestUpdateKeepsEarlierAnswers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.svc.CreateGuest(ctx, 10, &GuestRequest{
		FullName:    "Ravi",
		FieldValues: answers(map[uint]string{fieldName: `"Asha"`, fieldMeals: `["veg"]`}),
	}, admin, 1, "")
	require.NoError(t, err)

	updated, err := f.svc.UpdateGuest(ctx, 10, g.ID, &GuestRequest{
		FullName:    "Ravi K",
		InviteCount: 3,
		FieldValues: answers(map[uint]string{fieldSeats: `"4"`, fieldMeals: `["veg","nonveg"]`}),
	}, admin, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "Ravi K", updated.FullName)
	assert.Equal(t, 3, updated.InviteCount)
	assert.Equal(t, "Asha", updated.FieldValues["student_name"])
	assert.Equal(t, float64(4), updated.FieldValues["seats"])
	assert.Equal(t, []string{"veg", "nonveg"}, updated.FieldValues["meals"])
}

func TestEventWithoutTypeHasEmptyForm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	form, err := f.svc.Form(ctx, 1, 11)
	require.NoError(t, err)
	assert.Empty(t, form.Inputs())

	_, err = f.svc.CreateGuest(ctx, 11, &GuestRequest{FullName: "Walk-in"}, admin, 1, "")
	require.NoError(t, err)

	_, err = f.svc.CreateGuest(ctx, 11, &GuestRequest{FullName: "Walk-in", FieldValues: answers(map[uint]string{fieldName: `"x"`})}, admin, 1, "")
	var ve *eventtype.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = f.svc.CreateGuest(ctx, 11, &GuestRequest{FullName: "Walk-in"}, admin, 2, "")
	assert.ErrorIs(t, err, event.ErrNotFound)
}

func TestReadOnlyCannotWrite(t *testing.T) {
	f := newFixture(t)
	viewer := middleware.AccessContext{UserID: 9, RoleName: middleware.RoleViewer, DirectSchoolID: uptr(1), PermissionType: "readonly"}
	_, err := f.svc.CreateGuest(context.Background(), 11, &GuestRequest{FullName: "X"}, viewer, 1, "")
	assert.ErrorIs(t, err, ErrWriteDenied)
}

func TestCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.svc.CreateGuest(ctx, 11, &GuestRequest{FullName: "Family", InviteCount: 2}, admin, 1, "")
	require.NoError(t, err)

	got, err := f.svc.CheckIn(ctx, 11, &CheckInRequest{Code: strings.ToLower(g.GuestCode)}, admin, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ArrivedCount)
	assert.Equal(t, StatusCheckedIn, got.Status)
	require.NotNil(t, got.CheckedInAt)

	got, err = f.svc.CheckIn(ctx, 11, &CheckInRequest{Code: g.QRToken}, admin, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ArrivedCount)

	_, err = f.svc.CheckIn(ctx, 11, &CheckInRequest{Code: g.GuestCode}, admin, 1, "")
	assert.ErrorIs(t, err, ErrFullyArrived)

	_, err = f.svc.CheckIn(ctx, 10, &CheckInRequest{Code: g.GuestCode}, admin, 1, "")
	assert.ErrorIs(t, err, ErrNotFound, "a code only works for its own event")

	blocked, err := f.svc.CreateGuest(ctx, 11, &GuestRequest{FullName: "Blocked", Status: StatusBlocked}, admin, 1, "")
	require.NoError(t, err)
	_, err = f.svc.CheckIn(ctx, 11, &CheckInRequest{Code: blocked.GuestCode}, admin, 1, "")
	assert.ErrorIs(t, err, ErrBlocked)

	assert.Eventually(t, func() bool { return f.pub.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestListFiltersAndPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"Charlie", "alice", "Bob"} {
		_, err := f.svc.CreateGuest(ctx, 11, &GuestRequest{FullName: name, GuestType: TypeParent}, admin, 1, "")
		require.NoError(t, err)
	}
	_, err := f.svc.CreateGuest(ctx, 11, &GuestRequest{FullName: "Vikram", GuestType: TypeVIP}, admin, 1, "")
	require.NoError(t, err)

	res, err := f.svc.ListGuests(ctx, 1, 11, ListFilter{PerPage: 30, SortBy: "password"})
	require.NoError(t, err)
	assert.Equal(t, DefaultPerPage, res.PerPage)
	assert.Equal(t, int64(4), res.Total)
	assert.Equal(t, 1, res.TotalPages)

	res, err = f.svc.ListGuests(ctx, 1, 11, ListFilter{GuestType: TypeParent, SortBy: "full_name", SortDir: "asc", PerPage: 25})
	require.NoError(t, err)
	require.Len(t, res.Data, 3)
	assert.Equal(t, "Bob", res.Data[0].FullName)

	res, err = f.svc.ListGuests(ctx, 1, 11, ListFilter{Query: "VIK"})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "Vikram", res.Data[0].FullName)
}

func TestImportCSV(t *testing.T) {
	f := newFixture(t)
	csv := "Full Name,Phone,Guest Type,Invite Count,Student Name,Meals,Needs Parking\n" +
		"Ravi,9876543210,parent,2,Asha,veg;nonveg,yes\n" +
		"Meena,,alien,1,Kiran,,\n" +
		",,,,,,\n" +
		"Suresh,,teacher,1,,,\n" +
		"Lata,,staff,abc,Arun,,\n" +
		"Gopal,,,,Divya,veg,no\n"

	res, err := f.svc.Import(context.Background(), 10, "guests.csv", strings.NewReader(csv), admin, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, 3, res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Message, "alien")
	assert.Equal(t, 5, res.Errors[1].Row, "Suresh is missing the required student name")
	assert.Equal(t, 6, res.Errors[2].Row)
	assert.Equal(t, []string{"full_name", "phone", "guest_type", "invite_count", "status", "student_name", "seats", "needs_parking", "meals"}, res.SupportedColumns)

	list, err := f.svc.ListGuests(context.Background(), 1, 10, ListFilter{SortBy: "full_name", SortDir: "asc"})
	require.NoError(t, err)
	require.Len(t, list.Data, 2)
	ravi, err := f.svc.GetGuest(context.Background(), 1, 10, list.Data[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Ravi", ravi.FullName)
	assert.Equal(t, 2, ravi.InviteCount)
	assert.Equal(t, []string{"veg", "nonveg"}, ravi.FieldValues["meals"])
	assert.Equal(t, true, ravi.FieldValues["needs_parking"])

	_, err = f.svc.Import(context.Background(), 10, "guests.csv", strings.NewReader("phone\n123\n"), admin, 1, "")
	assert.ErrorIs(t, err, ErrInvalidCSVHead)
}

func TestExportCSVIncludesFormColumns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateGuest(ctx, 10, &GuestRequest{
		FullName:    "Ravi",
		FieldValues: answers(map[uint]string{fieldName: `"Asha"`, fieldSeats: `0`}),
	}, admin, 1, "")
	require.NoError(t, err)

	out, err := f.svc.Export(ctx, 10, "csv", admin, 1, "")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out.Data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Code,Name,Phone,Type,Invited,Arrived,Status,Student Name,Seats,Needs Parking,Meals", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ",Ravi,—,external,1,0,invited,Asha,0,—,—"), lines[1])
	assert.Equal(t, 1, out.Items)

	_, err = f.svc.Export(ctx, 10, "docx", admin, 1, "")
	assert.ErrorIs(t, err, reports.ErrUnsupportedFormat)
}

func pngBytes(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 10 {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPhotoUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.svc.CreateGuest(ctx, 11, &GuestRequest{FullName: "Ravi"}, admin, 1, "")
	require.NoError(t, err)

	// Sniffing wins over a misleading extension.
	got, err := f.svc.UploadPhoto(ctx, 11, g.ID, "photo.jpg", bytes.NewReader(pngBytes(t, 1600, 800)), admin, 1, "")
	require.NoError(t, err)
	require.NotNil(t, got.PhotoPath)
	first := *got.PhotoPath
	assert.True(t, strings.HasPrefix(first, "events/11/guests/"))
	assert.True(t, strings.HasSuffix(first, ".webp"))
	assert.Equal(t, "http://localhost:8080/uploads/"+first, got.PhotoURL)

	raw, err := os.ReadFile(filepath.Join(f.dir, filepath.FromSlash(first)))
	require.NoError(t, err)
	cfg, err := webp.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, 400, cfg.Height)

	got, err = f.svc.UploadPhoto(ctx, 11, g.ID, "small.png", bytes.NewReader(pngBytes(t, 100, 50)), admin, 1, "")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(f.dir, filepath.FromSlash(first)))
	assert.True(t, os.IsNotExist(err), "the previous photo is removed")

	_, err = f.svc.UploadPhoto(ctx, 11, g.ID, "notes.txt", strings.NewReader("not an image"), admin, 1, "")
	assert.ErrorIs(t, err, ErrUnsupportedType)
	after, err := f.svc.GetGuest(ctx, 1, 11, g.ID)
	require.NoError(t, err)
	assert.Equal(t, *got.PhotoPath, *after.PhotoPath, "a failed upload leaves the guest alone")

	_, err = f.svc.UploadPhoto(ctx, 11, g.ID, "big.png", bytes.NewReader(make([]byte, MaxPhotoBytes+1)), admin, 1, "")
	assert.ErrorIs(t, err, ErrPhotoTooLarge)

	orphan := filepath.Join(f.dir, "events", "11", "guests", "orphan.webp")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o644))
	removed, err := f.svc.ReapPhotos(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = os.Stat(filepath.Join(f.dir, filepath.FromSlash(*after.PhotoPath)))
	assert.NoError(t, err)
}
