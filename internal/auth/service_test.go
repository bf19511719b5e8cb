package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sharath018/school-management-backend/config"
	"github.com/sharath018/school-management-backend/internal/auditlog"
	"github.com/sharath018/school-management-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type memTokens map[string]string

func (m memTokens) Set(key, value string, _ time.Duration) error {
	m[key] = value
	return nil
}

func (m memTokens) Delete(key string) error {
	delete(m, key)
	return nil
}

func (m memTokens) Get(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errors.New("missing")
	}
	return v, nil
}

func newTestService(t *testing.T) (*service, Repository, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t, &UserRole{}, &User{}, &auditlog.AuditLog{})
	repo := NewRepository(db)
	cfg := &config.Config{
		JWTAccessSecret:    "access-secret",
		JWTRefreshSecret:   "refresh-secret",
		JWTAccessTTLHours:  1,
		JWTRefreshTTLHours: 2,
	}
	svc := NewService(repo, auditlog.NewService(auditlog.NewRepository(db)), cfg).(*service)
	svc.tokens = memTokens{}
	require.NoError(t, svc.Seed("root@platform.test", "rootpass"))
	return svc, repo, db
}

func addUser(t *testing.T, repo Repository, email, role string, schoolID *uint) *User {
	t.Helper()
	r, err := repo.FindRoleByName(role)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	u := &User{FullName: email, Email: email, PasswordHash: string(hash), RoleID: r.ID, SchoolID: schoolID, Status: StatusActive}
	require.NoError(t, repo.Create(u))
	return u
}

func uptr(u uint) *uint { return &u }

func TestSeedIsIdempotent(t *testing.T) {
	svc, _, db := newTestService(t)
	require.NoError(t, svc.Seed("root@platform.test", "rootpass"))

	var roles, users int64
	db.Model(&UserRole{}).Count(&roles)
	db.Model(&User{}).Count(&users)
	assert.EqualValues(t, 4, roles)
	assert.EqualValues(t, 1, users)
}

func TestLoginIssuesTokensAndAudits(t *testing.T) {
	svc, repo, db := newTestService(t)
	addUser(t, repo, "head@green.edu", RoleSchoolAdmin, uptr(7))
	ctx := context.Background()

	tokens, user, err := svc.Login(ctx, LoginInput{Email: "Head@Green.edu", Password: "secret1", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotNil(t, user.LastLoginAt)

	claims, err := svc.ParseAccessToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, RoleSchoolAdmin, claims["role"])
	assert.EqualValues(t, 7, claims["school_id"])
	assert.NotContains(t, claims, "impersonator_id")

	_, err = svc.ParseAccessToken(tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh tokens are signed with a different secret")

	refreshed, err := svc.Refresh(tokens.RefreshToken)
	require.NoError(t, err)
	_, err = svc.ParseAccessToken(refreshed)
	assert.NoError(t, err)

	_, _, err = svc.Login(ctx, LoginInput{Email: "head@green.edu", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, LoginInput{Email: "nobody@green.edu", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	var ok, failed int64
	db.Model(&auditlog.AuditLog{}).Where("action = ?", auditlog.ActionLoginSuccess).Count(&ok)
	db.Model(&auditlog.AuditLog{}).Where("action = ?", auditlog.ActionLoginFailed).Count(&failed)
	assert.EqualValues(t, 1, ok)
	assert.EqualValues(t, 2, failed)
}

func TestInactiveUserCannotLogin(t *testing.T) {
	svc, repo, _ := newTestService(t)
	u := addUser(t, repo, "old@green.edu", RoleStaff, uptr(7))
	u.Status = StatusInactive
	require.NoError(t, repo.Update(u))

	_, _, err := svc.Login(context.Background(), LoginInput{Email: "old@green.edu", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInactive)
}

func TestIssueImpersonation(t *testing.T) {
	svc, repo, _ := newTestService(t)
	root, err := repo.FindByEmail("root@platform.test")
	require.NoError(t, err)
	head := addUser(t, repo, "head@green.edu", RoleSchoolAdmin, uptr(7))
	addUser(t, repo, "second@green.edu", RoleSchoolAdmin, uptr(7))
	ctx := context.Background()

	grant, err := svc.IssueImpersonation(ctx, root.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, head.ID, grant.User.ID)
	assert.Equal(t, root.ID, grant.ImpersonatorID)

	claims, err := svc.ParseAccessToken(grant.AccessToken)
	require.NoError(t, err)
	assert.EqualValues(t, head.ID, claims["user_id"])
	assert.EqualValues(t, root.ID, claims["impersonator_id"])

	_, err = svc.IssueImpersonation(ctx, root.ID, 99)
	assert.ErrorIs(t, err, ErrNoSchoolAdmin)
	_, err = svc.IssueImpersonation(ctx, head.ID, 7)
	assert.ErrorIs(t, err, ErrNotPlatformAdmin)
}

func TestCreateUserAndPasswordReset(t *testing.T) {
	svc, repo, _ := newTestService(t)
	var sentTo, sentToken string
	svc.sendResetLink = func(email, token string) error {
		sentTo, sentToken = email, token
		return nil
	}
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateUserInput{FullName: "Clerk", Email: "Clerk@Green.edu", Password: "secret1", Role: RoleStaff, SchoolID: uptr(7)}, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "clerk@green.edu", u.Email)

	_, err = svc.CreateUser(ctx, CreateUserInput{FullName: "Clerk", Email: "clerk@green.edu", Password: "secret1", Role: RoleStaff}, 1, "")
	assert.ErrorIs(t, err, ErrEmailTaken)
	_, err = svc.CreateUser(ctx, CreateUserInput{FullName: "X", Email: "x@green.edu", Password: "secret1", Role: RolePlatformAdmin}, 1, "")
	assert.ErrorIs(t, err, ErrInvalidRole)

	require.NoError(t, svc.RequestPasswordReset("clerk@green.edu"))
	assert.Equal(t, "clerk@green.edu", sentTo)
	require.NoError(t, svc.ResetPassword(sentToken, "newpass1"))
	assert.ErrorIs(t, svc.ResetPassword(sentToken, "again"), ErrInvalidToken, "tokens are single use")

	_, _, err = svc.Login(ctx, LoginInput{Email: "clerk@green.edu", Password: "newpass1"})
	assert.NoError(t, err)

	ids, err := repo.GetUserIDsByRole(RoleStaff, 7)
	require.NoError(t, err)
	assert.Equal(t, []uint{u.ID}, ids)
}
