package platform

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrPlanNotFound         = errors.New("subscription plan not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrTestimonialNotFound  = errors.New("testimonial not found")
	ErrMessageNotFound      = errors.New("contact message not found")
)

type Repository struct {
	DB *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{DB: db}
}

func first(err error, notFound error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return errors.Wrap(err, what)
}

// ================ ORGANIZATIONS ================

func (r *Repository) CreateOrganization(ctx context.Context, o *Organization) error {
	return errors.Wrap(r.DB.WithContext(ctx).Create(o).Error, "create organization")
}

func (r *Repository) GetOrganization(ctx context.Context, id uint) (*Organization, error) {
	var o Organization
	if err := r.DB.WithContext(ctx).First(&o, id).Error; err != nil {
		return nil, first(err, ErrOrganizationNotFound, "get organization")
	}
	return &o, nil
}

func (r *Repository) SlugExists(ctx context.Context, slug string, exceptID uint) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&Organization{}).Where("slug = ? AND id <> ?", slug, exceptID).Count(&n).Error
	return n > 0, errors.Wrap(err, "check organization slug")
}

func (r *Repository) ListOrganizations(ctx context.Context, f OrganizationFilter) ([]Organization, int64, error) {
	q := r.DB.WithContext(ctx).Model(&Organization{})
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(slug) LIKE ? OR LOWER(contact_email) LIKE ?", like, like, like)
	}
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count organizations")
	}
	orgs := []Organization{}
	err := q.Order("name ASC").Limit(f.Limit).Offset((f.Page - 1) * f.Limit).Find(&orgs).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list organizations")
	}
	return orgs, total, nil
}

func (r *Repository) UpdateOrganization(ctx context.Context, o *Organization) error {
	return errors.Wrap(r.DB.WithContext(ctx).Save(o).Error, "update organization")
}

// SchoolCounts counts schools per organization.
func (r *Repository) SchoolCounts(ctx context.Context, orgIDs []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(orgIDs))
	if len(orgIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		OrganizationID uint
		Total          int64
	}
	err := r.DB.WithContext(ctx).Table("schools").
		Select("organization_id, COUNT(*) AS total").
		Where("organization_id IN ? AND deleted_at IS NULL", orgIDs).
		Group("organization_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "count schools")
	}
	for _, row := range rows {
		out[row.OrganizationID] = row.Total
	}
	return out, nil
}

// ================ PLANS ================

func (r *Repository) CreatePlan(ctx context.Context, p *SubscriptionPlan) error {
	return errors.Wrap(r.DB.WithContext(ctx).Create(p).Error, "create plan")
}

func (r *Repository) GetPlan(ctx context.Context, id uint) (*SubscriptionPlan, error) {
	var p SubscriptionPlan
	if err := r.DB.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, first(err, ErrPlanNotFound, "get plan")
	}
	return &p, nil
}

func (r *Repository) ListPlans(ctx context.Context, activeOnly bool) ([]SubscriptionPlan, error) {
	plans := []SubscriptionPlan{}
	q := r.DB.WithContext(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("price ASC, id ASC").Find(&plans).Error
	return plans, errors.Wrap(err, "list plans")
}

func (r *Repository) UpdatePlan(ctx context.Context, p *SubscriptionPlan) error {
	return errors.Wrap(r.DB.WithContext(ctx).Save(p).Error, "update plan")
}

// ================ SUBSCRIPTIONS ================

// StartSubscription cancels whatever the organization is currently on and
// creates s, in one transaction.
func (r *Repository) StartSubscription(ctx context.Context, s *Subscription, now time.Time) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&Subscription{}).
			Where("organization_id = ? AND status IN ?", s.OrganizationID, []string{SubTrial, SubActive}).
			Updates(map[string]interface{}{"status": SubCancelled, "cancelled_at": now}).Error
		if err != nil {
			return errors.Wrap(err, "cancel current subscription")
		}
		return errors.Wrap(tx.Create(s).Error, "create subscription")
	})
}

func (r *Repository) GetSubscription(ctx context.Context, id uint) (*Subscription, error) {
	var s Subscription
	if err := r.DB.WithContext(ctx).Preload("Plan").First(&s, id).Error; err != nil {
		return nil, first(err, ErrSubscriptionNotFound, "get subscription")
	}
	return &s, nil
}

// CurrentSubscription is the organization's trial or active subscription.
func (r *Repository) CurrentSubscription(ctx context.Context, orgID uint) (*Subscription, error) {
	var s Subscription
	err := r.DB.WithContext(ctx).Preload("Plan").
		Where("organization_id = ? AND status IN ?", orgID, []string{SubTrial, SubActive}).
		Order("ends_at DESC").
		First(&s).Error
	if err != nil {
		return nil, first(err, ErrSubscriptionNotFound, "current subscription")
	}
	return &s, nil
}

func (r *Repository) ListSubscriptions(ctx context.Context, orgID uint, status string) ([]Subscription, error) {
	subs := []Subscription{}
	q := r.DB.WithContext(ctx).Preload("Plan")
	if orgID != 0 {
		q = q.Where("organization_id = ?", orgID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at DESC, id DESC").Find(&subs).Error
	return subs, errors.Wrap(err, "list subscriptions")
}

func (r *Repository) UpdateSubscription(ctx context.Context, s *Subscription) error {
	return errors.Wrap(r.DB.WithContext(ctx).Omit("Plan").Save(s).Error, "update subscription")
}

// ExpireDue marks trial and active subscriptions that ended before now.
func (r *Repository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&Subscription{}).
		Where("status IN ? AND ends_at < ?", []string{SubTrial, SubActive}, now).
		Updates(map[string]interface{}{"status": SubExpired, "updated_at": now})
	return res.RowsAffected, errors.Wrap(res.Error, "expire subscriptions")
}

func (r *Repository) SubscriptionCounts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string
		Total  int
	}
	err := r.DB.WithContext(ctx).Model(&Subscription{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, errors.Wrap(err, "count subscriptions")
}

// ================ TESTIMONIALS ================

func (r *Repository) CreateTestimonial(ctx context.Context, t *Testimonial) error {
	return errors.Wrap(r.DB.WithContext(ctx).Create(t).Error, "create testimonial")
}

func (r *Repository) GetTestimonial(ctx context.Context, id uint) (*Testimonial, error) {
	var t Testimonial
	if err := r.DB.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, first(err, ErrTestimonialNotFound, "get testimonial")
	}
	return &t, nil
}

func (r *Repository) ListTestimonials(ctx context.Context, publishedOnly bool) ([]Testimonial, error) {
	list := []Testimonial{}
	q := r.DB.WithContext(ctx)
	if publishedOnly {
		q = q.Where("is_published = ?", true)
	}
	err := q.Order("sort_order ASC, id DESC").Find(&list).Error
	return list, errors.Wrap(err, "list testimonials")
}

func (r *Repository) UpdateTestimonial(ctx context.Context, t *Testimonial) error {
	return errors.Wrap(r.DB.WithContext(ctx).Save(t).Error, "update testimonial")
}

func (r *Repository) DeleteTestimonial(ctx context.Context, id uint) error {
	res := r.DB.WithContext(ctx).Delete(&Testimonial{}, id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete testimonial")
	}
	if res.RowsAffected == 0 {
		return ErrTestimonialNotFound
	}
	return nil
}

// ================ CONTACT MESSAGES ================

func (r *Repository) CreateMessage(ctx context.Context, m *ContactMessage) error {
	return errors.Wrap(r.DB.WithContext(ctx).Create(m).Error, "create contact message")
}

func (r *Repository) GetMessage(ctx context.Context, id uint) (*ContactMessage, error) {
	var m ContactMessage
	if err := r.DB.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, first(err, ErrMessageNotFound, "get contact message")
	}
	return &m, nil
}

func (r *Repository) ListMessages(ctx context.Context, status string, limit, page int) ([]ContactMessage, int64, error) {
	q := r.DB.WithContext(ctx).Model(&ContactMessage{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count contact messages")
	}
	list := []ContactMessage{}
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, errors.Wrap(err, "list contact messages")
}

func (r *Repository) UpdateMessage(ctx context.Context, m *ContactMessage) error {
	return errors.Wrap(r.DB.WithContext(ctx).Save(m).Error, "update contact message")
}

// ================ COUNTS ================

func (r *Repository) count(ctx context.Context, model interface{}, query string, args ...interface{}) (int64, error) {
	var n int64
	q := r.DB.WithContext(ctx).Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	err := q.Count(&n).Error
	return n, errors.Wrap(err, "count")
}

// countTable counts rows of a table owned by another module. A table that
// does not exist yet counts as empty.
func (r *Repository) countTable(ctx context.Context, table string) (int64, error) {
	if !r.DB.Migrator().HasTable(table) {
		return 0, nil
	}
	var n int64
	err := r.DB.WithContext(ctx).Table(table).Count(&n).Error
	return n, errors.Wrapf(err, "count %s", table)
}
