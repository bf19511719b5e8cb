package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/sharath018/school-management-backend/internal/auth"
	"github.com/sharath018/school-management-backend/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uptr(u uint) *uint { return &u }

func TestStackPushPop(t *testing.T) {
	var s Stack
	_, ok := s.Active()
	assert.False(t, ok)
	_, err := s.Pop()
	assert.ErrorIs(t, err, ErrNothingToRestore)

	s.Push(Credential{AccessToken: "admin", UserID: 1})
	assert.Equal(t, 0, s.Depth(), "the first credential has nothing under it")

	s.Push(Credential{AccessToken: "school-7", UserID: 20, ImpersonatorID: uptr(1)})
	assert.Equal(t, 1, s.Depth())
	assert.True(t, s.Impersonating())

	restored, err := s.Pop()
	require.NoError(t, err)
	assert.Equal(t, "admin", restored.AccessToken)
	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "admin", active.AccessToken)
	assert.False(t, s.Impersonating())

	_, err = s.Pop()
	assert.ErrorIs(t, err, ErrNothingToRestore)
	active, _ = s.Active()
	assert.Equal(t, "admin", active.AccessToken, "failed pop leaves the active credential")
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s, err := store.Load(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, s.Current)

	s.Push(Credential{AccessToken: "a", SchoolID: uptr(3)})
	s.Push(Credential{AccessToken: "b"})
	require.NoError(t, store.Save(ctx, 1, s))

	loaded, err := store.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Depth())
	assert.Equal(t, uint(3), *loaded.Backups[0].SchoolID)

	require.NoError(t, store.Save(ctx, 1, &Stack{}))
	loaded, err = store.Load(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, loaded.Current)
}

type fakeIssuer struct{}

func (fakeIssuer) IssueImpersonation(_ context.Context, adminID, schoolID uint) (*auth.Grant, error) {
	if schoolID == 404 {
		return nil, auth.ErrNoSchoolAdmin
	}
	return &auth.Grant{
		AccessToken:    "school-token",
		User:           auth.User{ID: 50, Role: auth.UserRole{RoleName: auth.RoleSchoolAdmin}},
		SchoolID:       schoolID,
		ImpersonatorID: adminID,
	}, nil
}

var platformAdmin = middleware.AccessContext{UserID: 1, RoleName: middleware.RolePlatformAdmin, PermissionType: "full"}

func TestImpersonateAndExit(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), fakeIssuer{}, nil, nil)

	stack, err := svc.Impersonate(ctx, platformAdmin, Credential{AccessToken: "admin-token", UserID: 1}, 7, "")
	require.NoError(t, err)
	active, _ := stack.Active()
	assert.Equal(t, "school-token", active.AccessToken)
	assert.Equal(t, uint(7), *active.SchoolID)
	assert.Equal(t, 1, stack.Depth())

	// The follow-up request carries the impersonated token.
	impersonated := middleware.AccessContext{UserID: 50, RoleName: middleware.RoleSchoolAdmin, ImpersonatorID: uptr(1)}
	_, err = svc.Impersonate(ctx, impersonated, Credential{}, 8, "")
	assert.ErrorIs(t, err, ErrNotAllowed, "nested impersonation goes through exit first")

	state, err := svc.State(ctx, impersonated)
	require.NoError(t, err)
	assert.True(t, state.Impersonating())

	stack, err = svc.Exit(ctx, impersonated, "")
	require.NoError(t, err)
	active, _ = stack.Active()
	assert.Equal(t, "admin-token", active.AccessToken)

	_, err = svc.Exit(ctx, platformAdmin, "")
	assert.ErrorIs(t, err, ErrNothingToRestore)

	_, err = svc.Impersonate(ctx, platformAdmin, Credential{AccessToken: "admin-token"}, 404, "")
	assert.ErrorIs(t, err, auth.ErrNoSchoolAdmin)
	state, err = svc.State(ctx, platformAdmin)
	require.NoError(t, err)
	assert.Nil(t, state.Current, "a failed grant stores nothing")
}

func TestImpersonateHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(NewService(NewMemoryStore(), fakeIssuer{}, nil, nil))
	r := gin.New()
	as := func(ac middleware.AccessContext) gin.HandlerFunc {
		return func(c *gin.Context) { c.Set("access_context", ac) }
	}
	r.POST("/admin/impersonate/:schoolID", as(platformAdmin), h.Impersonate)
	r.POST("/staff/impersonate/:schoolID", as(middleware.AccessContext{UserID: 9, RoleName: middleware.RoleStaff}), h.Impersonate)

	req := httptest.NewRequest(http.MethodPost, "/admin/impersonate/7", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "school-token", body["accessToken"])
	assert.Equal(t, true, body["impersonating"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/staff/impersonate/7", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/impersonate/abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
