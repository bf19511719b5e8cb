package notification

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/segmentio/kafka-go"
	"github.com/sharath018/school-management-backend/internal/testutil"
	"github.com/sharath018/school-management-backend/middleware"
	"github.com/sharath018/school-management-backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uptr(u uint) *uint { return &u }

var (
	admin    = middleware.AccessContext{UserID: 1, RoleName: middleware.RoleSchoolAdmin, DirectSchoolID: uptr(7), PermissionType: "full"}
	readonly = middleware.AccessContext{UserID: 2, RoleName: middleware.RoleViewer, DirectSchoolID: uptr(7), PermissionType: "readonly"}
)

type directory struct {
	ids    map[string][]uint
	emails map[string][]string
}

func (d directory) GetUserIDsByRole(role string, _ uint) ([]uint, error) { return d.ids[role], nil }
func (d directory) GetUserEmailsByRole(role string, _ uint) ([]string, error) {
	return d.emails[role], nil
}

type mailbox struct {
	mu      sync.Mutex
	fail    bool
	batches [][]string
	subject string
	html    string
}

func (m *mailbox) send(to []string, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp down")
	}
	m.batches = append(m.batches, to)
	m.subject, m.html = subject, html
	return nil
}

type fakePusher struct {
	tokens []string
	body   string
}

func (p *fakePusher) Push(_ context.Context, tokens []string, _, body string, _ map[string]string) (PushResult, error) {
	p.tokens = append(p.tokens, tokens...)
	p.body = body
	var res PushResult
	for _, t := range tokens {
		if t == "stale" {
			res.Failed++
			res.Stale = append(res.Stale, t)
			continue
		}
		res.Sent++
	}
	return res, nil
}

type fixture struct {
	svc    *Service
	repo   Repository
	mail   *mailbox
	broker *memoryBroker
}

func newFixture(t *testing.T, pusher Pusher) *fixture {
	db := testutil.NewDB(t, &NotificationTemplate{}, &NotificationLog{}, &InAppNotification{}, &DeviceToken{})
	repo := NewRepository(db)
	mail := &mailbox{}
	broker := NewMemoryBroker().(*memoryBroker)
	dir := directory{
		ids: map[string][]uint{
			middleware.RoleSchoolAdmin: {10, 12},
			middleware.RoleStaff:       {10, 11},
		},
		emails: map[string][]string{
			middleware.RoleSchoolAdmin: {"a@school.test", "b@school.test"},
		},
	}
	svc := NewService(repo, dir, broker, pusher, mail.send, nil)
	svc.now = func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }
	return &fixture{svc: svc, repo: repo, mail: mail, broker: broker}
}

// pending counts published payloads nobody has read yet.
func (b *memoryBroker) pending(userID uint) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for ch := range b.subs[userID] {
		n += len(ch)
	}
	return n
}

func TestTemplatesAndEmailSend(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.CreateTemplate(ctx, readonly, 7, &TemplateRequest{Name: "x", Body: "y"}, "")
	assert.ErrorIs(t, err, ErrWriteDenied)
	_, err = f.svc.CreateTemplate(ctx, admin, 7, &TemplateRequest{Name: "broken", Body: "{{.name"}, "")
	assert.ErrorIs(t, err, ErrBadTemplate)

	tmpl, err := f.svc.CreateTemplate(ctx, admin, 7, &TemplateRequest{
		Name:    " PTA meeting ",
		Subject: "Meeting on {{.date}}",
		Body:    "<p>Hello {{.name}}</p>",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "PTA meeting", tmpl.Name)
	assert.Equal(t, ChannelEmail, tmpl.Channel)

	_, err = f.svc.GetTemplate(ctx, 8, tmpl.ID)
	assert.ErrorIs(t, err, ErrTemplateNotFound, "templates are scoped to their school")

	entry, err := f.svc.Send(ctx, admin, 7, &SendRequest{
		Channel:    ChannelEmail,
		TemplateID: &tmpl.ID,
		Roles:      []string{middleware.RoleSchoolAdmin},
		Emails:     []string{"Parent@x.test", "a@school.test"},
		Data:       map[string]interface{}{"name": "<b>Asha</b>", "date": "Friday"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, StatusSent, entry.Status)
	assert.Equal(t, 3, entry.Delivered)

	require.Len(t, f.mail.batches, 1)
	assert.Equal(t, []string{"parent@x.test", "a@school.test", "b@school.test"}, f.mail.batches[0])
	assert.Equal(t, "Meeting on Friday", f.mail.subject)
	assert.Contains(t, f.mail.html, "Hello &lt;b&gt;Asha&lt;/b&gt;")
	assert.Contains(t, f.mail.html, "01 Apr 2026")

	_, err = f.svc.Send(ctx, admin, 7, &SendRequest{Channel: ChannelPush, TemplateID: &tmpl.ID}, "")
	assert.ErrorIs(t, err, ErrChannelMismatch)
	_, err = f.svc.Send(ctx, admin, 7, &SendRequest{Channel: ChannelEmail, Body: "hi", Roles: []string{middleware.RoleViewer}}, "")
	assert.ErrorIs(t, err, ErrNoRecipients)
	_, err = f.svc.Send(ctx, admin, 7, &SendRequest{Channel: ChannelEmail, Emails: []string{"p@x.test"}}, "")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	f.mail.fail = true
	entry, err = f.svc.Send(ctx, admin, 7, &SendRequest{Channel: ChannelEmail, Subject: "Closed", Body: "School closed", Emails: []string{"p@x.test"}}, "")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, entry.Status)
	assert.Equal(t, 1, entry.Failed)
	assert.Contains(t, entry.Error, "smtp down")

	logs, total, err := f.svc.ListLogs(ctx, 7, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, StatusFailed, logs[0].Status)

	require.NoError(t, f.svc.DeleteTemplate(ctx, admin, 7, tmpl.ID, ""))
	assert.ErrorIs(t, f.svc.DeleteTemplate(ctx, admin, 7, tmpl.ID, ""), ErrTemplateNotFound)
}

func TestPushSendPrunesStaleTokens(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, nil)
	_, err := f.svc.Send(ctx, admin, 7, &SendRequest{Channel: ChannelPush, Body: "x", UserIDs: []uint{10}}, "")
	assert.ErrorIs(t, err, ErrPushDisabled)

	pusher := &fakePusher{}
	f = newFixture(t, pusher)
	_, err = f.svc.RegisterDeviceToken(ctx, middleware.AccessContext{UserID: 10}, &TokenRequest{Token: "tok-a", Platform: "android"})
	require.NoError(t, err)
	_, err = f.svc.RegisterDeviceToken(ctx, middleware.AccessContext{UserID: 11}, &TokenRequest{Token: "stale"})
	require.NoError(t, err)

	entry, err := f.svc.Send(ctx, admin, 7, &SendRequest{
		Channel: ChannelPush,
		Subject: "Transport",
		Body:    "Bus leaves at {{.time}}",
		Roles:   []string{middleware.RoleStaff},
		Data:    map[string]interface{}{"time": "3pm"},
	}, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tok-a", "stale"}, pusher.tokens)
	assert.Equal(t, "Bus leaves at 3pm", pusher.body)
	assert.Equal(t, StatusPartial, entry.Status)

	left, err := f.repo.TokensForUsers(ctx, []uint{10, 11})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-a"}, left)
}

func TestInAppForSchoolRoles(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	feed, stop, err := f.svc.Subscribe(ctx, 10)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, f.svc.CreateInAppForSchoolRoles(ctx, 7, []string{middleware.RoleSchoolAdmin}, "Report ready", "Attendance report", map[string]interface{}{"category": CategoryEvent}))

	select {
	case raw := <-feed:
		var n InAppNotification
		require.NoError(t, sonic.Unmarshal(raw, &n))
		assert.Equal(t, "Report ready", n.Title)
		assert.Equal(t, CategoryEvent, n.Category)
	case <-time.After(time.Second):
		t.Fatal("no live notification")
	}

	list, err := f.svc.ListInApp(ctx, 10, true, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint(7), *list[0].SchoolID)

	assert.ErrorIs(t, f.svc.MarkRead(ctx, 12, list[0].ID), ErrNotificationNotFound)
	require.NoError(t, f.svc.MarkRead(ctx, 10, list[0].ID))
	unread, err := f.svc.UnreadCount(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, unread)

	n, err := f.svc.MarkAllRead(ctx, 12)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestHandleEvent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.svc.HandleEvent(ctx, utils.DomainEvent{
		Type:     utils.EventPaymentCaptured,
		SchoolID: 7,
		Payload:  map[string]interface{}{"student_name": "Asha", "amount": 400.0, "fee_name": "Tuition"},
	}))
	require.NoError(t, f.svc.HandleEvent(ctx, utils.DomainEvent{Type: utils.EventReportRendered, SchoolID: 7}))
	require.NoError(t, f.svc.HandleEvent(ctx, utils.DomainEvent{Type: utils.EventFieldsSaved}))

	list, err := f.svc.ListInApp(ctx, 12, false, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Fee payment received", list[0].Title)
	assert.Equal(t, "Asha paid 400 towards Tuition", list[0].Message)
	assert.Equal(t, CategoryFees, list[0].Category)

	_, ok := alertFor(utils.DomainEvent{Type: utils.EventGuestCheckedIn})
	assert.True(t, ok)
}

type fakeReader struct {
	mu      sync.Mutex
	queue   []kafka.Message
	commits int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	r.commits += len(msgs)
	r.mu.Unlock()
	return nil
}

func TestConsumerSkipsBadMessages(t *testing.T) {
	f := newFixture(t, nil)
	good, err := utils.EncodeEvent(utils.DomainEvent{Type: utils.EventSchoolImpersonated, SchoolID: 7})
	require.NoError(t, err)
	reader := &fakeReader{queue: []kafka.Message{{Value: []byte("{not json"), Offset: 1}, {Value: good, Offset: 2}}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		(&Consumer{reader: reader, service: f.svc}).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		reader.mu.Lock()
		defer reader.mu.Unlock()
		return reader.commits == 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	list, err := f.svc.ListInApp(context.Background(), 10, false, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Platform support signed in", list[0].Title)
}

type staticTokens map[string]uint

func (s staticTokens) ParseAccessToken(token string) (jwt.MapClaims, error) {
	id, ok := s[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return jwt.MapClaims{"user_id": float64(id)}, nil
}

func TestStreamHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t, nil)
	h := NewHandler(f.svc, staticTokens{"good": 10})
	r := gin.New()
	r.GET("/stream-token", h.StreamWithToken)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream-token?token=bad", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/stream-token?token=good", nil).WithContext(ctx)
	w = httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		r.ServeHTTP(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return f.broker.subscribers(10) == 1 }, time.Second, 5*time.Millisecond)
	_, err := f.svc.CreateInApp(context.Background(), 10, nil, "Hello", "world", "", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.broker.pending(10) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, ":ok"))
	assert.Contains(t, body, "event: inapp\n")
	assert.Contains(t, body, `"title":"Hello"`)
	assert.Zero(t, f.broker.subscribers(10), "closing the stream unsubscribes")
}

func TestDeviceTokenHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t, nil)
	h := NewHandler(f.svc, nil)
	r := gin.New()
	as := func(uid uint) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set("access_context", middleware.AccessContext{UserID: uid, RoleName: middleware.RoleStaff, DirectSchoolID: uptr(7)})
		}
	}
	r.POST("/u10/devices", as(10), h.RegisterToken)
	r.POST("/u11/devices", as(11), h.RegisterToken)
	r.DELETE("/u10/devices", as(10), h.RemoveToken)

	call := func(method, path, body string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusBadRequest, call(http.MethodPost, "/u10/devices", `{"token":"t1","platform":"blackberry"}`))
	assert.Equal(t, http.StatusOK, call(http.MethodPost, "/u10/devices", `{"token":"t1","platform":"ios"}`))
	assert.Equal(t, http.StatusOK, call(http.MethodPost, "/u11/devices", `{"token":"t1"}`))

	mine, err := f.repo.TokensForUsers(context.Background(), []uint{10})
	require.NoError(t, err)
	assert.Empty(t, mine, "a re-registered token moves to the new user")
	assert.Equal(t, http.StatusNotFound, call(http.MethodDelete, "/u10/devices", `{"token":"t1"}`))
}
