package platform

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/sharath018/school-management-backend/internal/auditlog"
	"github.com/sharath018/school-management-backend/internal/school"
	"github.com/sharath018/school-management-backend/middleware"
	"github.com/sharath018/school-management-backend/utils"
)

var (
	ErrSlugTaken         = errors.New("organization slug already in use")
	ErrInvalidSlug       = errors.New("slug must contain letters or digits")
	ErrInactivePlan      = errors.New("subscription plan is inactive")
	ErrInactiveOrg       = errors.New("organization is inactive")
	ErrNotRenewable      = errors.New("cancelled subscriptions cannot be renewed")
	ErrAlreadyCancelled  = errors.New("subscription already ended")
	ErrInvalidCycle      = errors.New("unknown billing cycle")
	ErrMessageNotReplied = errors.New("reply could not be sent")
)

type Service struct {
	repo      *Repository
	schools   *school.Service
	audit     auditlog.Service
	sendReply func(toEmail, name, subject, reply string) error
	now       func() time.Time
}

func NewService(repo *Repository, schools *school.Service, auditSvc auditlog.Service) *Service {
	return &Service{
		repo:      repo,
		schools:   schools,
		audit:     auditSvc,
		sendReply: utils.SendContactReply,
		now:       time.Now,
	}
}

func (s *Service) log(ctx context.Context, actorID uint, action string, details map[string]interface{}, ip, status string) {
	if s.audit == nil {
		return
	}
	var uid *uint
	if actorID != 0 {
		uid = &actorID
	}
	if err := s.audit.LogAction(ctx, uid, nil, action, details, ip, status); err != nil {
		log.Printf("⚠️ audit %s: %v", action, err)
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and joins its letter/digit runs with hyphens.
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// ================ ORGANIZATIONS ================

func (s *Service) CreateOrganization(ctx context.Context, req *OrganizationRequest, adminID uint, ip string) (*Organization, error) {
	fail := func(err error) (*Organization, error) {
		s.log(ctx, adminID, "ORGANIZATION_CREATE_FAILED", map[string]interface{}{"name": req.Name, "reason": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}
	slug := req.Slug
	if slug == "" {
		slug = req.Name
	}
	slug = Slugify(slug)
	if slug == "" {
		return fail(ErrInvalidSlug)
	}
	taken, err := s.repo.SlugExists(ctx, slug, 0)
	if err != nil {
		return fail(err)
	}
	if taken {
		return fail(ErrSlugTaken)
	}

	o := &Organization{
		Name:         strings.TrimSpace(req.Name),
		Slug:         slug,
		ContactEmail: strings.TrimSpace(req.ContactEmail),
		ContactPhone: strings.TrimSpace(req.ContactPhone),
		IsActive:     req.IsActive == nil || *req.IsActive,
		CreatedBy:    adminID,
	}
	if err := s.repo.CreateOrganization(ctx, o); err != nil {
		return fail(err)
	}
	s.log(ctx, adminID, "ORGANIZATION_CREATED", map[string]interface{}{"organization_id": o.ID, "name": o.Name, "slug": o.Slug}, ip, auditlog.StatusSuccess)
	return o, nil
}

func (s *Service) GetOrganization(ctx context.Context, id uint) (*Organization, error) {
	o, err := s.repo.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.SchoolCounts(ctx, []uint{id})
	if err != nil {
		return nil, err
	}
	o.SchoolCount = counts[id]
	if sub, err := s.repo.CurrentSubscription(ctx, id); err == nil {
		o.Subscription = sub
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}
	return o, nil
}

func (s *Service) ListOrganizations(ctx context.Context, f OrganizationFilter) ([]Organization, int64, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 10
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	orgs, total, err := s.repo.ListOrganizations(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	ids := make([]uint, len(orgs))
	for i := range orgs {
		ids[i] = orgs[i].ID
	}
	counts, err := s.repo.SchoolCounts(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orgs {
		orgs[i].SchoolCount = counts[orgs[i].ID]
	}
	return orgs, total, nil
}

func (s *Service) UpdateOrganization(ctx context.Context, id uint, req *OrganizationRequest, adminID uint, ip string) (*Organization, error) {
	o, err := s.repo.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Slug != "" {
		slug := Slugify(req.Slug)
		if slug == "" {
			return nil, ErrInvalidSlug
		}
		taken, err := s.repo.SlugExists(ctx, slug, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrSlugTaken
		}
		o.Slug = slug
	}
	o.Name = strings.TrimSpace(req.Name)
	o.ContactEmail = strings.TrimSpace(req.ContactEmail)
	o.ContactPhone = strings.TrimSpace(req.ContactPhone)
	if req.IsActive != nil {
		o.IsActive = *req.IsActive
	}
	if err := s.repo.UpdateOrganization(ctx, o); err != nil {
		s.log(ctx, adminID, "ORGANIZATION_UPDATE_FAILED", map[string]interface{}{"organization_id": id, "reason": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}
	s.log(ctx, adminID, "ORGANIZATION_UPDATED", map[string]interface{}{"organization_id": id, "is_active": o.IsActive}, ip, auditlog.StatusSuccess)
	return o, nil
}

func (s *Service) ListSchools(ctx context.Context, orgID uint) ([]school.School, error) {
	if _, err := s.repo.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	return s.schools.ListByOrganization(ctx, orgID)
}

// CreateSchool adds a school under an active organization.
func (s *Service) CreateSchool(ctx context.Context, orgID uint, req *school.CreateSchoolRequest, ac middleware.AccessContext, ip string) (*school.School, error) {
	o, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !o.IsActive {
		return nil, ErrInactiveOrg
	}
	return s.schools.CreateSchool(ctx, orgID, req, ac, ip)
}

// ================ PLANS ================

func (s *Service) CreatePlan(ctx context.Context, req *PlanRequest, adminID uint, ip string) (*SubscriptionPlan, error) {
	p := &SubscriptionPlan{IsActive: true}
	applyPlan(p, req)
	if err := s.repo.CreatePlan(ctx, p); err != nil {
		s.log(ctx, adminID, "PLAN_CREATE_FAILED", map[string]interface{}{"name": req.Name, "reason": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}
	s.log(ctx, adminID, "PLAN_CREATED", map[string]interface{}{"plan_id": p.ID, "name": p.Name, "price": p.Price}, ip, auditlog.StatusSuccess)
	return p, nil
}

func applyPlan(p *SubscriptionPlan, req *PlanRequest) {
	p.Name = strings.TrimSpace(req.Name)
	p.Price = req.Price
	p.BillingCycle = req.BillingCycle
	p.MaxStudents = req.MaxStudents
	p.Features = p.Features[:0]
	for _, f := range req.Features {
		if f = strings.TrimSpace(f); f != "" {
			p.Features = append(p.Features, f)
		}
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
}

func (s *Service) ListPlans(ctx context.Context, activeOnly bool) ([]SubscriptionPlan, error) {
	return s.repo.ListPlans(ctx, activeOnly)
}

func (s *Service) UpdatePlan(ctx context.Context, id uint, req *PlanRequest, adminID uint, ip string) (*SubscriptionPlan, error) {
	p, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	applyPlan(p, req)
	if err := s.repo.UpdatePlan(ctx, p); err != nil {
		return nil, err
	}
	s.log(ctx, adminID, "PLAN_UPDATED", map[string]interface{}{"plan_id": id, "price": p.Price, "is_active": p.IsActive}, ip, auditlog.StatusSuccess)
	return p, nil
}

// ================ SUBSCRIPTIONS ================

func cycleEnd(from time.Time, cycle string) (time.Time, error) {
	switch cycle {
	case CycleMonthly:
		return from.AddDate(0, 1, 0), nil
	case CycleQuarterly:
		return from.AddDate(0, 3, 0), nil
	case CycleYearly:
		return from.AddDate(1, 0, 0), nil
	}
	return time.Time{}, ErrInvalidCycle
}

// Subscribe moves an organization onto a plan. Any current trial or active
// subscription is cancelled.
func (s *Service) Subscribe(ctx context.Context, orgID uint, req *SubscribeRequest, adminID uint, ip string) (*Subscription, error) {
	fail := func(err error) (*Subscription, error) {
		s.log(ctx, adminID, "SUBSCRIPTION_CREATE_FAILED", map[string]interface{}{"organization_id": orgID, "plan_id": req.PlanID, "reason": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}
	if _, err := s.repo.GetOrganization(ctx, orgID); err != nil {
		return fail(err)
	}
	plan, err := s.repo.GetPlan(ctx, req.PlanID)
	if err != nil {
		return fail(err)
	}
	if !plan.IsActive {
		return fail(ErrInactivePlan)
	}

	now := s.now()
	start := now
	if req.StartsAt != nil {
		start = *req.StartsAt
	}
	sub := &Subscription{OrganizationID: orgID, PlanID: plan.ID, StartsAt: start, CreatedBy: adminID}
	if req.TrialDays > 0 {
		sub.Status = SubTrial
		sub.EndsAt = start.AddDate(0, 0, req.TrialDays)
	} else {
		sub.Status = SubActive
		if sub.EndsAt, err = cycleEnd(start, plan.BillingCycle); err != nil {
			return fail(err)
		}
	}
	if err := s.repo.StartSubscription(ctx, sub, now); err != nil {
		return fail(err)
	}
	sub.Plan = plan
	s.log(ctx, adminID, "SUBSCRIPTION_CREATED", map[string]interface{}{
		"organization_id": orgID,
		"subscription_id": sub.ID,
		"plan":            plan.Name,
		"status":          sub.Status,
		"ends_at":         sub.EndsAt,
	}, ip, auditlog.StatusSuccess)
	return sub, nil
}

func (s *Service) ListSubscriptions(ctx context.Context, orgID uint, status string) ([]Subscription, error) {
	return s.repo.ListSubscriptions(ctx, orgID, status)
}

func (s *Service) CancelSubscription(ctx context.Context, id, adminID uint, ip string) (*Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != SubTrial && sub.Status != SubActive {
		return nil, ErrAlreadyCancelled
	}
	now := s.now()
	sub.Status = SubCancelled
	sub.CancelledAt = &now
	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	s.log(ctx, adminID, "SUBSCRIPTION_CANCELLED", map[string]interface{}{"subscription_id": id, "organization_id": sub.OrganizationID}, ip, auditlog.StatusSuccess)
	return sub, nil
}

// Renew extends a subscription by one billing cycle. A running subscription
// is extended from its end; an expired one restarts now.
func (s *Service) Renew(ctx context.Context, id, adminID uint, ip string) (*Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == SubCancelled {
		return nil, ErrNotRenewable
	}
	if sub.Plan == nil {
		return nil, ErrPlanNotFound
	}
	now := s.now()
	from := sub.EndsAt
	if sub.Status == SubExpired || from.Before(now) {
		from = now
		sub.StartsAt = now
	}
	end, err := cycleEnd(from, sub.Plan.BillingCycle)
	if err != nil {
		return nil, err
	}
	sub.EndsAt = end
	sub.Status = SubActive
	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	s.log(ctx, adminID, "SUBSCRIPTION_RENEWED", map[string]interface{}{"subscription_id": id, "organization_id": sub.OrganizationID, "ends_at": end}, ip, auditlog.StatusSuccess)
	return sub, nil
}

// ExpireSubscriptions marks every subscription past its end as expired.
func (s *Service) ExpireSubscriptions(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log(ctx, 0, "SUBSCRIPTIONS_EXPIRED", map[string]interface{}{"count": n}, "", auditlog.StatusSuccess)
	}
	return n, nil
}

// ================ TESTIMONIALS ================

func applyTestimonial(t *Testimonial, req *TestimonialRequest) {
	t.AuthorName = strings.TrimSpace(req.AuthorName)
	t.Role = strings.TrimSpace(req.Role)
	t.Content = strings.TrimSpace(req.Content)
	t.Rating = req.Rating
	t.IsPublished = req.IsPublished
	t.SortOrder = req.SortOrder
}

func (s *Service) CreateTestimonial(ctx context.Context, req *TestimonialRequest, adminID uint, ip string) (*Testimonial, error) {
	t := &Testimonial{}
	applyTestimonial(t, req)
	if err := s.repo.CreateTestimonial(ctx, t); err != nil {
		return nil, err
	}
	s.log(ctx, adminID, "TESTIMONIAL_CREATED", map[string]interface{}{"testimonial_id": t.ID, "published": t.IsPublished}, ip, auditlog.StatusSuccess)
	return t, nil
}

func (s *Service) ListTestimonials(ctx context.Context, publishedOnly bool) ([]Testimonial, error) {
	return s.repo.ListTestimonials(ctx, publishedOnly)
}

func (s *Service) UpdateTestimonial(ctx context.Context, id uint, req *TestimonialRequest, adminID uint, ip string) (*Testimonial, error) {
	t, err := s.repo.GetTestimonial(ctx, id)
	if err != nil {
		return nil, err
	}
	applyTestimonial(t, req)
	if err := s.repo.UpdateTestimonial(ctx, t); err != nil {
		return nil, err
	}
	s.log(ctx, adminID, "TESTIMONIAL_UPDATED", map[string]interface{}{"testimonial_id": id, "published": t.IsPublished}, ip, auditlog.StatusSuccess)
	return t, nil
}

func (s *Service) DeleteTestimonial(ctx context.Context, id, adminID uint, ip string) error {
	if err := s.repo.DeleteTestimonial(ctx, id); err != nil {
		return err
	}
	s.log(ctx, adminID, "TESTIMONIAL_DELETED", map[string]interface{}{"testimonial_id": id}, ip, auditlog.StatusSuccess)
	return nil
}

// ================ CONTACT MESSAGES ================

func (s *Service) SubmitContact(ctx context.Context, req *ContactRequest, ip string) (*ContactMessage, error) {
	m := &ContactMessage{
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Subject:   strings.TrimSpace(req.Subject),
		Message:   strings.TrimSpace(req.Message),
		Status:    MsgNew,
		IPAddress: ip,
	}
	if err := s.repo.CreateMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) ListMessages(ctx context.Context, status string, limit, page int) ([]ContactMessage, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}
	return s.repo.ListMessages(ctx, status, limit, page)
}

// GetMessage returns a message and marks a new one as read.
func (s *Service) GetMessage(ctx context.Context, id uint) (*ContactMessage, error) {
	m, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status == MsgNew {
		m.Status = MsgRead
		if err := s.repo.UpdateMessage(ctx, m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (s *Service) SetMessageStatus(ctx context.Context, id uint, status string, adminID uint, ip string) (*ContactMessage, error) {
	m, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Status = status
	if err := s.repo.UpdateMessage(ctx, m); err != nil {
		return nil, err
	}
	s.log(ctx, adminID, "CONTACT_MESSAGE_STATUS_UPDATED", map[string]interface{}{"message_id": id, "status": status}, ip, auditlog.StatusSuccess)
	return m, nil
}

// Reply mails the reply to the sender and records it on the message. The
// message is left untouched when the mail fails.
func (s *Service) Reply(ctx context.Context, id uint, reply string, adminID uint, ip string) (*ContactMessage, error) {
	m, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	subject := m.Subject
	if subject == "" {
		subject = "Your message"
	}
	if err := s.sendReply(m.Email, m.Name, subject, reply); err != nil {
		log.Printf("❌ contact reply to %s: %v", m.Email, err)
		s.log(ctx, adminID, "CONTACT_MESSAGE_REPLY_FAILED", map[string]interface{}{"message_id": id, "reason": err.Error()}, ip, auditlog.StatusFailure)
		return nil, ErrMessageNotReplied
	}
	now := s.now()
	m.Reply = strings.TrimSpace(reply)
	m.RepliedAt = &now
	m.RepliedBy = &adminID
	m.Status = MsgReplied
	if err := s.repo.UpdateMessage(ctx, m); err != nil {
		return nil, err
	}
	s.log(ctx, adminID, "CONTACT_MESSAGE_REPLIED", map[string]interface{}{"message_id": id}, ip, auditlog.StatusSuccess)
	return m, nil
}

// ================ DASHBOARD ================

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	d := &Dashboard{}
	var err error
	if d.Organizations, err = s.repo.count(ctx, &Organization{}, ""); err != nil {
		return nil, err
	}
	if d.ActiveOrganizations, err = s.repo.count(ctx, &Organization{}, "is_active = ?", true); err != nil {
		return nil, err
	}
	if d.NewMessages, err = s.repo.count(ctx, &ContactMessage{}, "status = ?", MsgNew); err != nil {
		return nil, err
	}
	if d.Subscriptions, err = s.repo.SubscriptionCounts(ctx); err != nil {
		return nil, err
	}
	if d.Users, err = s.repo.countTable(ctx, "users"); err != nil {
		return nil, err
	}
	if s.schools != nil {
		if d.Schools, err = s.schools.Repo.Count(ctx); err != nil {
			return nil, err
		}
	}
	if s.audit != nil {
		stats, err := s.audit.GetLoginStats(ctx, 7)
		if err != nil {
			return nil, err
		}
		d.LoginsSuccessful = stats.Successful
		d.LoginsFailed = stats.Failed
	}
	return d, nil
}
