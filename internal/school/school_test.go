package school

import (
	"context"
	"testing"

	"github.com/sharath018/school-management-backend/internal/auditlog"
	"github.com/sharath018/school-management-backend/internal/auth"
	"github.com/sharath018/school-management-backend/internal/reports"
	"github.com/sharath018/school-management-backend/internal/testutil"
	"github.com/sharath018/school-management-backend/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var admin = middleware.AccessContext{UserID: 900, RoleName: middleware.RoleSchoolAdmin, PermissionType: "full"}

func strptr(s string) *string { return &s }

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t, &School{}, &auth.UserRole{}, &auth.User{})
	return NewService(NewRepository(db), nil), db
}

func TestUpdateSchoolFeedsReportBranding(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	sc, err := svc.CreateSchool(ctx, 3, &CreateSchoolRequest{Name: "Green Valley", Code: "gv-01"}, admin, "")
	require.NoError(t, err)
	assert.Equal(t, "GV-01", sc.Code)
	assert.Equal(t, "left", sc.LogoPosition)

	_, err = svc.UpdateSchool(ctx, sc.ID, &UpdateSchoolRequest{
		LogoURL:       strptr("https://cdn.example.com/gv.png"),
		LogoPosition:  strptr("right"),
		WatermarkText: strptr(" GV "),
	}, admin, "")
	require.NoError(t, err)

	b, err := reports.NewRepository(db).GetBranding(ctx, sc.ID)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "Green Valley", b.SchoolName)
	assert.Equal(t, "GV", b.WatermarkText)

	sections := reports.SectionsFrom(b.Apply(reports.Payload{}), "Guest List")
	assert.Equal(t, "https://cdn.example.com/gv.png", sections.RightLogo())
	require.NotNil(t, sections.Watermark)
	assert.Equal(t, "GV", sections.Watermark.Text)

	missing, err := reports.NewRepository(db).GetBranding(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateSchoolRequiresWrite(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sc, err := svc.CreateSchool(ctx, 3, &CreateSchoolRequest{Name: "Green Valley", Code: "GV"}, admin, "")
	require.NoError(t, err)

	viewer := middleware.AccessContext{UserID: 2, RoleName: middleware.RoleViewer, PermissionType: "readonly"}
	_, err = svc.UpdateSchool(ctx, sc.ID, &UpdateSchoolRequest{Name: strptr("X")}, viewer, "")
	assert.ErrorIs(t, err, ErrWriteDenied)

	_, err = svc.UpdateSchool(ctx, 999, &UpdateSchoolRequest{}, admin, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSchoolUsers(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	staff := auth.UserRole{RoleName: auth.RoleStaff}
	require.NoError(t, db.Create(&staff).Error)
	school := uint(5)
	other := uint(6)
	users := []auth.User{
		{FullName: "Bina", Email: "bina@x.test", PasswordHash: "x", RoleID: staff.ID, SchoolID: &school, Status: auth.StatusActive},
		{FullName: "Arun", Email: "arun@x.test", PasswordHash: "x", RoleID: staff.ID, SchoolID: &school, Status: auth.StatusActive},
		{FullName: "Chitra", Email: "chitra@x.test", PasswordHash: "x", RoleID: staff.ID, SchoolID: &other, Status: auth.StatusActive},
	}
	require.NoError(t, db.Create(&users).Error)

	list, err := svc.ListUsers(ctx, school, auth.RoleStaff)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Arun", list[0].FullName)
	assert.Equal(t, auth.RoleStaff, list[0].Role)

	require.NoError(t, svc.SetUserStatus(ctx, school, users[0].ID, auth.StatusInactive, admin, ""))
	assert.ErrorIs(t, svc.SetUserStatus(ctx, school, users[2].ID, auth.StatusInactive, admin, ""), ErrUserNotInSchool)
	assert.ErrorIs(t, svc.SetUserStatus(ctx, school, admin.UserID, auth.StatusInactive, admin, ""), ErrSelfStatus)

	var u auth.User
	require.NoError(t, db.First(&u, users[0].ID).Error)
	assert.Equal(t, auth.StatusInactive, u.Status)
}

func TestSetOwnStatusIsAudited(t *testing.T) {
	db := testutil.NewDB(t, &School{}, &auth.UserRole{}, &auth.User{}, &auditlog.AuditLog{})
	svc := NewService(NewRepository(db), auditlog.NewService(auditlog.NewRepository(db)))
	ctx := context.Background()

	err := svc.SetUserStatus(ctx, 5, admin.UserID, auth.StatusInactive, admin, "10.0.0.1")
	assert.ErrorIs(t, err, ErrSelfStatus)

	var logs []auditlog.AuditLog
	require.NoError(t, db.Where("action = ?", "SCHOOL_USER_STATUS_UPDATED").Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, auditlog.StatusFailure, logs[0].Status)
}
