package notification

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/sharath018/school-management-backend/internal/auditlog"
	"github.com/sharath018/school-management-backend/middleware"
	"gorm.io/datatypes"
)

var (
	ErrWriteDenied       = errors.New("write access denied")
	ErrNoRecipients      = errors.New("no recipients resolved")
	ErrEmptyMessage      = errors.New("message body is required")
	ErrPushDisabled      = errors.New("push notifications are not configured")
	ErrStreamUnavailable = errors.New("notification stream is not available")
	ErrChannelMismatch   = errors.New("template belongs to another channel")
)

// mail batches keep one SMTP failure from holding up a whole school.
const mailBatchSize = 50

// RoleDirectory resolves a school's users by role.
type RoleDirectory interface {
	GetUserIDsByRole(roleName string, schoolID uint) ([]uint, error)
	GetUserEmailsByRole(roleName string, schoolID uint) ([]string, error)
}

// Mailer sends one HTML message to every address in to.
type Mailer func(to []string, subject, html string) error

type Service struct {
	repo     Repository
	users    RoleDirectory
	broker   Broker // optional
	pusher   Pusher // optional
	mail     Mailer
	auditSvc auditlog.Service
	now      func() time.Time
}

func NewService(repo Repository, users RoleDirectory, broker Broker, pusher Pusher, mail Mailer, auditSvc auditlog.Service) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		broker:   broker,
		pusher:   pusher,
		mail:     mail,
		auditSvc: auditSvc,
		now:      time.Now,
	}
}

func (s *Service) audit(ctx context.Context, userID uint, schoolID uint, action string, details map[string]interface{}, ip, status string) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.LogAction(ctx, &userID, &schoolID, action, details, ip, status); err != nil {
		log.Printf("⚠️ audit %s: %v", action, err)
	}
}

// ===========================
// 📝 Templates
// ===========================

func (s *Service) CreateTemplate(ctx context.Context, ac middleware.AccessContext, schoolID uint, req *TemplateRequest, ip string) (*NotificationTemplate, error) {
	if !ac.CanWrite() {
		return nil, ErrWriteDenied
	}
	t := &NotificationTemplate{SchoolID: schoolID, UserID: ac.UserID}
	applyTemplate(t, req)
	if _, err := renderText(t.Body, nil); err != nil {
		return nil, err
	}
	if err := s.repo.CreateTemplate(ctx, t); err != nil {
		return nil, err
	}
	s.audit(ctx, ac.UserID, schoolID, "TEMPLATE_CREATED", map[string]interface{}{"template_id": t.ID, "name": t.Name}, ip, auditlog.StatusSuccess)
	return t, nil
}

func applyTemplate(t *NotificationTemplate, req *TemplateRequest) {
	t.Name = strings.TrimSpace(req.Name)
	t.Channel = req.Channel
	if t.Channel == "" {
		t.Channel = ChannelEmail
	}
	t.Subject = strings.TrimSpace(req.Subject)
	t.Body = req.Body
}

func (s *Service) ListTemplates(ctx context.Context, schoolID uint) ([]NotificationTemplate, error) {
	return s.repo.ListTemplates(ctx, schoolID)
}

func (s *Service) GetTemplate(ctx context.Context, schoolID, id uint) (*NotificationTemplate, error) {
	return s.repo.GetTemplate(ctx, schoolID, id)
}

func (s *Service) UpdateTemplate(ctx context.Context, ac middleware.AccessContext, schoolID, id uint, req *TemplateRequest, ip string) (*NotificationTemplate, error) {
	if !ac.CanWrite() {
		return nil, ErrWriteDenied
	}
	t, err := s.repo.GetTemplate(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}
	applyTemplate(t, req)
	if _, err := renderText(t.Body, nil); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateTemplate(ctx, t); err != nil {
		return nil, err
	}
	s.audit(ctx, ac.UserID, schoolID, "TEMPLATE_UPDATED", map[string]interface{}{"template_id": t.ID}, ip, auditlog.StatusSuccess)
	return t, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, ac middleware.AccessContext, schoolID, id uint, ip string) error {
	if !ac.CanWrite() {
		return ErrWriteDenied
	}
	if err := s.repo.DeleteTemplate(ctx, schoolID, id); err != nil {
		return err
	}
	s.audit(ctx, ac.UserID, schoolID, "TEMPLATE_DELETED", map[string]interface{}{"template_id": id}, ip, auditlog.StatusSuccess)
	return nil
}

// ===========================
// 📤 Send (email / push)
// ===========================

// Send renders the message, resolves recipients and delivers it on the
// requested channel. The returned log records the outcome even when some
// deliveries fail.
func (s *Service) Send(ctx context.Context, ac middleware.AccessContext, schoolID uint, req *SendRequest, ip string) (*NotificationLog, error) {
	if !ac.CanWrite() {
		s.audit(ctx, ac.UserID, schoolID, "NOTIFICATION_SENT", map[string]interface{}{"channel": req.Channel, "error": ErrWriteDenied.Error()}, ip, auditlog.StatusFailure)
		return nil, ErrWriteDenied
	}

	subject, body := req.Subject, req.Body
	if req.TemplateID != nil {
		t, err := s.repo.GetTemplate(ctx, schoolID, *req.TemplateID)
		if err != nil {
			return nil, err
		}
		if t.Channel != req.Channel {
			return nil, ErrChannelMismatch
		}
		if subject == "" {
			subject = t.Subject
		}
		if body == "" {
			body = t.Body
		}
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyMessage
	}
	subject, err := renderText(subject, req.Data)
	if err != nil {
		return nil, err
	}

	entry := &NotificationLog{
		SchoolID:   schoolID,
		UserID:     ac.UserID,
		TemplateID: req.TemplateID,
		Channel:    req.Channel,
		Subject:    subject,
	}
	switch req.Channel {
	case ChannelEmail:
		err = s.sendEmail(ctx, schoolID, req, subject, body, entry)
	case ChannelPush:
		err = s.sendPush(ctx, schoolID, req, subject, body, entry)
	default:
		err = errors.Errorf("unknown channel %q", req.Channel)
	}
	if err != nil {
		return nil, err
	}

	switch {
	case entry.Failed == 0:
		entry.Status = StatusSent
	case entry.Delivered == 0:
		entry.Status = StatusFailed
	default:
		entry.Status = StatusPartial
	}
	if err := s.repo.CreateLog(ctx, entry); err != nil {
		return nil, err
	}

	status := auditlog.StatusSuccess
	if entry.Status == StatusFailed {
		status = auditlog.StatusFailure
	}
	s.audit(ctx, ac.UserID, schoolID, "NOTIFICATION_SENT", map[string]interface{}{
		"log_id":    entry.ID,
		"channel":   entry.Channel,
		"delivered": entry.Delivered,
		"failed":    entry.Failed,
	}, ip, status)
	return entry, nil
}

func (s *Service) sendEmail(ctx context.Context, schoolID uint, req *SendRequest, subject, body string, entry *NotificationLog) error {
	recipients := append([]string{}, req.Emails...)
	for _, role := range req.Roles {
		emails, err := s.users.GetUserEmailsByRole(role, schoolID)
		if err != nil {
			return errors.Wrapf(err, "resolve %s emails", role)
		}
		recipients = append(recipients, emails...)
	}
	recipients = uniqueStrings(recipients)
	if len(recipients) == 0 {
		return ErrNoRecipients
	}

	html, err := renderHTML(subject, body, req.Data, s.now())
	if err != nil {
		return err
	}
	entry.Body = html
	entry.Recipients = jsonList(recipients)

	var failures []string
	for start := 0; start < len(recipients); start += mailBatchSize {
		end := start + mailBatchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		batch := recipients[start:end]
		if err := s.mail(batch, subject, html); err != nil {
			log.Printf("❌ mail batch %d-%d: %v", start, end, err)
			failures = append(failures, err.Error())
			entry.Failed += len(batch)
			continue
		}
		entry.Delivered += len(batch)
	}
	entry.Error = strings.Join(failures, "; ")
	return nil
}

func (s *Service) sendPush(ctx context.Context, schoolID uint, req *SendRequest, title, body string, entry *NotificationLog) error {
	if s.pusher == nil {
		return ErrPushDisabled
	}
	text, err := renderText(body, req.Data)
	if err != nil {
		return err
	}
	ids, err := s.resolveUsers(schoolID, req.Roles, req.UserIDs)
	if err != nil {
		return err
	}
	tokens, err := s.repo.TokensForUsers(ctx, ids)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return ErrNoRecipients
	}

	entry.Body = text
	entry.Recipients = jsonList(ids)
	res, err := s.pusher.Push(ctx, tokens, title, text, map[string]string{"school_id": fmt.Sprint(schoolID)})
	entry.Delivered, entry.Failed = res.Sent, res.Failed
	if err != nil {
		entry.Failed = len(tokens) - res.Sent
		entry.Error = err.Error()
	}
	s.prune(ctx, res.Stale)
	return nil
}

func (s *Service) prune(ctx context.Context, stale []string) {
	if len(stale) == 0 {
		return
	}
	if err := s.repo.PruneTokens(ctx, stale); err != nil {
		log.Printf("⚠️ prune %d stale device tokens: %v", len(stale), err)
	}
}

func (s *Service) resolveUsers(schoolID uint, roles []string, explicit []uint) ([]uint, error) {
	seen := make(map[uint]bool)
	var out []uint
	add := func(ids []uint) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	add(explicit)
	for _, role := range roles {
		ids, err := s.users.GetUserIDsByRole(role, schoolID)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve %s users", role)
		}
		add(ids)
	}
	return out, nil
}

func (s *Service) ListLogs(ctx context.Context, schoolID uint, limit, page int) ([]NotificationLog, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}
	return s.repo.ListLogs(ctx, schoolID, limit, (page-1)*limit)
}

// ===========================
// 🔔 In-app
// ===========================

// CreateInApp stores the notification and pushes it to the user's open
// streams. A broker failure does not fail the call.
func (s *Service) CreateInApp(ctx context.Context, userID uint, schoolID *uint, title, message, category string, meta map[string]interface{}) (*InAppNotification, error) {
	if category == "" {
		category = CategoryGeneral
	}
	n := &InAppNotification{
		UserID:   userID,
		SchoolID: schoolID,
		Title:    title,
		Message:  message,
		Category: category,
	}
	if len(meta) > 0 {
		raw, err := sonic.Marshal(meta)
		if err != nil {
			return nil, errors.Wrap(err, "encode notification meta")
		}
		n.Meta = datatypes.JSON(raw)
	}
	if err := s.repo.CreateInApp(ctx, n); err != nil {
		return nil, err
	}

	if s.broker != nil {
		payload, err := sonic.Marshal(n)
		if err == nil {
			err = s.broker.Publish(ctx, userID, payload)
		}
		if err != nil {
			log.Printf("⚠️ publish in-app %d to user %d: %v", n.ID, userID, err)
		}
	}
	return n, nil
}

// CreateInAppForSchoolRoles notifies every user holding one of roles in the
// school, then pushes the same title to their devices when push is on.
func (s *Service) CreateInAppForSchoolRoles(ctx context.Context, schoolID uint, roles []string, title, message string, meta map[string]interface{}) error {
	ids, err := s.resolveUsers(schoolID, roles, nil)
	if err != nil {
		return err
	}
	category, _ := meta["category"].(string)
	sid := schoolID
	for _, id := range ids {
		if _, err := s.CreateInApp(ctx, id, &sid, title, message, category, meta); err != nil {
			return err
		}
	}
	log.Printf("🔔 %q sent to %d users of school %d", title, len(ids), schoolID)

	if s.pusher == nil || len(ids) == 0 {
		return nil
	}
	tokens, err := s.repo.TokensForUsers(ctx, ids)
	if err != nil || len(tokens) == 0 {
		return err
	}
	res, err := s.pusher.Push(ctx, tokens, title, message, map[string]string{"school_id": fmt.Sprint(schoolID)})
	if err != nil {
		log.Printf("⚠️ push %q: %v", title, err)
	}
	s.prune(ctx, res.Stale)
	return nil
}

func (s *Service) ListInApp(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]InAppNotification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListInApp(ctx, userID, unreadOnly, limit)
}

func (s *Service) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uint) error {
	return s.repo.MarkRead(ctx, userID, id, s.now())
}

func (s *Service) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID, s.now())
}

// Subscribe opens the user's live feed.
func (s *Service) Subscribe(ctx context.Context, userID uint) (<-chan []byte, func(), error) {
	if s.broker == nil {
		return nil, nil, ErrStreamUnavailable
	}
	return s.broker.Subscribe(ctx, userID)
}

// ===========================
// 📱 Device tokens
// ===========================

func (s *Service) RegisterDeviceToken(ctx context.Context, ac middleware.AccessContext, req *TokenRequest) (*DeviceToken, error) {
	t := &DeviceToken{
		UserID:     ac.UserID,
		SchoolID:   ac.GetAccessibleSchoolID(),
		Token:      strings.TrimSpace(req.Token),
		Platform:   req.Platform,
		LastSeenAt: s.now(),
	}
	if t.Platform == "" {
		t.Platform = "web"
	}
	if err := s.repo.SaveDeviceToken(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) RemoveDeviceToken(ctx context.Context, userID uint, token string) error {
	return s.repo.RemoveDeviceToken(ctx, userID, strings.TrimSpace(token))
}

// ------------------------------
// helpers
// ------------------------------

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func jsonList(v interface{}) datatypes.JSON {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}
