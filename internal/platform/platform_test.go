package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/sharath018/school-management-backend/internal/school"
	"github.com/sharath018/school-management-backend/internal/testutil"
	"github.com/sharath018/school-management-backend/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SQLite has no array type, so the plan and subscription tables are created
// by hand with features stored as the text form of the array.
const planTables = `
CREATE TABLE subscription_plans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	price REAL NOT NULL,
	billing_cycle TEXT NOT NULL,
	max_students INTEGER NOT NULL,
	features TEXT,
	is_active NUMERIC NOT NULL,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE subscriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	organization_id INTEGER NOT NULL,
	plan_id INTEGER NOT NULL,
	status TEXT NOT NULL,
	starts_at DATETIME NOT NULL,
	ends_at DATETIME NOT NULL,
	cancelled_at DATETIME,
	created_by INTEGER,
	created_at DATETIME,
	updated_at DATETIME
);`

var platformAdmin = middleware.AccessContext{UserID: 1, RoleName: middleware.RolePlatformAdmin, PermissionType: "full"}

type fixture struct {
	svc *Service
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t, &Organization{}, &Testimonial{}, &ContactMessage{}, &school.School{})
	for _, stmt := range strings.Split(planTables, ";") {
		if strings.TrimSpace(stmt) != "" {
			require.NoError(t, db.Exec(stmt).Error)
		}
	}
	f := &fixture{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	f.svc = NewService(NewRepository(db), school.NewService(school.NewRepository(db), nil), nil)
	f.svc.now = func() time.Time { return f.now }
	f.svc.sendReply = func(string, string, string, string) error { return nil }
	return f
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "green-valley-schools", Slugify("  Green Valley Schools! "))
	assert.Equal(t, "st-mary-s-2", Slugify("St. Mary's #2"))
	assert.Equal(t, "", Slugify("---"))
}

func TestOrganizationsAndSchools(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	org, err := f.svc.CreateOrganization(ctx, &OrganizationRequest{Name: "Green Valley Schools", ContactEmail: "ops@gv.example"}, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "green-valley-schools", org.Slug)
	assert.True(t, org.IsActive)

	_, err = f.svc.CreateOrganization(ctx, &OrganizationRequest{Name: "Green Valley  Schools"}, 1, "")
	assert.ErrorIs(t, err, ErrSlugTaken)
	_, err = f.svc.CreateOrganization(ctx, &OrganizationRequest{Name: "!!!"}, 1, "")
	assert.ErrorIs(t, err, ErrInvalidSlug)

	sc, err := f.svc.CreateSchool(ctx, org.ID, &school.CreateSchoolRequest{Name: "GV North", Code: "gvn"}, platformAdmin, "")
	require.NoError(t, err)
	assert.Equal(t, "GVN", sc.Code)
	assert.Equal(t, org.ID, sc.OrganizationID)

	orgs, total, err := f.svc.ListOrganizations(ctx, OrganizationFilter{Search: "valley"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.EqualValues(t, 1, orgs[0].SchoolCount)

	schools, err := f.svc.ListSchools(ctx, org.ID)
	require.NoError(t, err)
	assert.Len(t, schools, 1)

	inactive := false
	_, err = f.svc.UpdateOrganization(ctx, org.ID, &OrganizationRequest{Name: "Green Valley Schools", IsActive: &inactive}, 1, "")
	require.NoError(t, err)
	_, err = f.svc.CreateSchool(ctx, org.ID, &school.CreateSchoolRequest{Name: "GV South", Code: "gvs"}, platformAdmin, "")
	assert.ErrorIs(t, err, ErrInactiveOrg)

	_, err = f.svc.ListSchools(ctx, 999)
	assert.ErrorIs(t, err, ErrOrganizationNotFound)
}

func TestSubscriptionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	org, err := f.svc.CreateOrganization(ctx, &OrganizationRequest{Name: "Hill Side"}, 1, "")
	require.NoError(t, err)
	plan, err := f.svc.CreatePlan(ctx, &PlanRequest{Name: "Starter", Price: 4999, BillingCycle: CycleMonthly, MaxStudents: 500, Features: []string{"events", " ", "fees"}}, 1, "")
	require.NoError(t, err)

	trial, err := f.svc.Subscribe(ctx, org.ID, &SubscribeRequest{PlanID: plan.ID, TrialDays: 14}, 1, "")
	require.NoError(t, err)
	assert.Equal(t, SubTrial, trial.Status)
	assert.Equal(t, f.now.AddDate(0, 0, 14), trial.EndsAt)

	paid, err := f.svc.Subscribe(ctx, org.ID, &SubscribeRequest{PlanID: plan.ID}, 1, "")
	require.NoError(t, err)
	assert.Equal(t, SubActive, paid.Status)
	assert.Equal(t, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), paid.EndsAt)

	cancelled, err := f.svc.ListSubscriptions(ctx, org.ID, SubCancelled)
	require.NoError(t, err)
	require.Len(t, cancelled, 1, "the trial is replaced")
	assert.Equal(t, trial.ID, cancelled[0].ID)

	got, err := f.svc.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Subscription)
	assert.Equal(t, paid.ID, got.Subscription.ID)
	require.NotNil(t, got.Subscription.Plan)
	assert.Equal(t, []string{"events", "fees"}, []string(got.Subscription.Plan.Features))

	renewed, err := f.svc.Renew(ctx, paid.ID, 1, "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC), renewed.EndsAt.UTC(), "extends from the current end")

	f.now = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	n, err := f.svc.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = f.svc.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	restarted, err := f.svc.Renew(ctx, paid.ID, 1, "")
	require.NoError(t, err)
	assert.Equal(t, SubActive, restarted.Status)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), restarted.EndsAt.UTC(), "an expired subscription restarts now")

	_, err = f.svc.CancelSubscription(ctx, paid.ID, 1, "")
	require.NoError(t, err)
	_, err = f.svc.CancelSubscription(ctx, paid.ID, 1, "")
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	_, err = f.svc.Renew(ctx, paid.ID, 1, "")
	assert.ErrorIs(t, err, ErrNotRenewable)

	off := false
	_, err = f.svc.UpdatePlan(ctx, plan.ID, &PlanRequest{Name: "Starter", Price: 4999, BillingCycle: CycleMonthly, IsActive: &off}, 1, "")
	require.NoError(t, err)
	_, err = f.svc.Subscribe(ctx, org.ID, &SubscribeRequest{PlanID: plan.ID}, 1, "")
	assert.ErrorIs(t, err, ErrInactivePlan)
}

func TestTestimonialsAndContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateTestimonial(ctx, &TestimonialRequest{AuthorName: "Meera", Content: "Check-in took minutes.", Rating: 5, IsPublished: true, SortOrder: 2}, 1, "")
	require.NoError(t, err)
	_, err = f.svc.CreateTestimonial(ctx, &TestimonialRequest{AuthorName: "Draft", Content: "Not yet.", Rating: 3}, 1, "")
	require.NoError(t, err)
	pub, err := f.svc.ListTestimonials(ctx, true)
	require.NoError(t, err)
	require.Len(t, pub, 1)
	assert.Equal(t, "Meera", pub[0].AuthorName)
	assert.ErrorIs(t, f.svc.DeleteTestimonial(ctx, 999, 1, ""), ErrTestimonialNotFound)

	m, err := f.svc.SubmitContact(ctx, &ContactRequest{Name: "Anil", Email: "anil@example.com", Message: " Pricing? "}, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, MsgNew, m.Status)
	assert.Equal(t, "Pricing?", m.Message)

	read, err := f.svc.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, MsgRead, read.Status)

	f.svc.sendReply = func(string, string, string, string) error { return errors.New("smtp down") }
	_, err = f.svc.Reply(ctx, m.ID, "Sent you the brochure.", 1, "")
	assert.ErrorIs(t, err, ErrMessageNotReplied)
	still, err := f.svc.repo.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, MsgRead, still.Status)

	var sentTo, sentSubject string
	f.svc.sendReply = func(to, _, subject, _ string) error {
		sentTo, sentSubject = to, subject
		return nil
	}
	replied, err := f.svc.Reply(ctx, m.ID, "Sent you the brochure.", 1, "")
	require.NoError(t, err)
	assert.Equal(t, MsgReplied, replied.Status)
	assert.Equal(t, "anil@example.com", sentTo)
	assert.Equal(t, "Your message", sentSubject)
	require.NotNil(t, replied.RepliedBy)

	list, total, err := f.svc.ListMessages(ctx, MsgReplied, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, list, 1)

	d, err := f.svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Zero(t, d.NewMessages)
	assert.Zero(t, d.Users, "no users table yet")
}

func TestPublicHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	h := NewHandler(f.svc)
	r := gin.New()
	r.POST("/public/contact", h.SubmitContact)
	r.GET("/public/testimonials", h.PublicTestimonials)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/public/contact", strings.NewReader(`{"name":"A","email":"not-an-email","message":"hi"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/public/contact", strings.NewReader(`{"name":"A","email":"a@example.com","message":"hi"}`)))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/public/testimonials", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []Testimonial `json:"data"`
	}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Data)
}
