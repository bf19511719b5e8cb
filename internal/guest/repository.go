package guest

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("guest not found")

type Repository interface {
	Create(ctx context.Context, g *Guest, values []GuestFieldValue) error
	GetByID(ctx context.Context, schoolID, eventID, id uint) (*Guest, error)
	FindByCode(ctx context.Context, schoolID uint, code string) (*Guest, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, schoolID, eventID uint, f ListFilter) ([]Guest, int64, error)
	ListAll(ctx context.Context, schoolID, eventID uint) ([]Guest, error)
	Update(ctx context.Context, g *Guest, values []GuestFieldValue) error
	Delete(ctx context.Context, schoolID, eventID, id uint) error
	AddArrivals(ctx context.Context, id uint, count int, at time.Time) (bool, error)
	SetPhoto(ctx context.Context, id uint, path *string) error
	PhotoPaths(ctx context.Context) ([]string, error)
	Values(ctx context.Context, guestIDs ...uint) ([]GuestFieldValue, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Create inserts the guest and its answers in one transaction.
func (r *repository) Create(ctx context.Context, g *Guest, values []GuestFieldValue) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(g).Error; err != nil {
			return errors.Wrap(err, "create guest")
		}
		return upsertValues(tx, g.ID, values)
	})
}

func (r *repository) GetByID(ctx context.Context, schoolID, eventID, id uint) (*Guest, error) {
	var g Guest
	err := r.db.WithContext(ctx).
		Where("id = ? AND school_id = ? AND event_id = ?", id, schoolID, eventID).
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get guest %d", id)
	}
	return &g, nil
}

// FindByCode matches a guest code (case-insensitive) or a QR token.
func (r *repository) FindByCode(ctx context.Context, schoolID uint, code string) (*Guest, error) {
	code = strings.TrimSpace(code)
	var g Guest
	err := r.db.WithContext(ctx).
		Where("school_id = ? AND (guest_code = ? OR qr_token = ?)", schoolID, strings.ToUpper(code), strings.ToLower(code)).
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find guest by code")
	}
	return &g, nil
}

func (r *repository) CodeExists(ctx context.Context, code string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Guest{}).Where("guest_code = ?", code).Count(&n).Error
	return n > 0, errors.Wrap(err, "check guest code")
}

func (r *repository) filtered(ctx context.Context, schoolID, eventID uint, f ListFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&Guest{}).Where("school_id = ? AND event_id = ?", schoolID, eventID)
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(full_name) LIKE ? OR phone LIKE ? OR LOWER(guest_code) LIKE ?", like, like, like)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.GuestType != "" {
		q = q.Where("guest_type = ?", f.GuestType)
	}
	return q
}

// ===========================
// 📄 List Guests With Filters
func (r *repository) List(ctx context.Context, schoolID, eventID uint, f ListFilter) ([]Guest, int64, error) {
	var total int64
	if err := r.filtered(ctx, schoolID, eventID, f).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count guests")
	}
	guests := []Guest{}
	err := r.filtered(ctx, schoolID, eventID, f).
		Order(clause.OrderByColumn{Column: clause.Column{Name: f.SortBy}, Desc: f.SortDir == "desc"}).
		Order("id").
		Limit(f.PerPage).
		Offset((f.Page - 1) * f.PerPage).
		Find(&guests).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list guests")
	}
	return guests, total, nil
}

func (r *repository) ListAll(ctx context.Context, schoolID, eventID uint) ([]Guest, error) {
	guests := []Guest{}
	err := r.db.WithContext(ctx).
		Where("school_id = ? AND event_id = ?", schoolID, eventID).
		Order("full_name, id").
		Find(&guests).Error
	return guests, errors.Wrap(err, "list event guests")
}

// Update saves the guest and upserts the given answers. Answers not in
// values are left as they are.
func (r *repository) Update(ctx context.Context, g *Guest, values []GuestFieldValue) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(g).Error; err != nil {
			return errors.Wrap(err, "update guest")
		}
		return upsertValues(tx, g.ID, values)
	})
}

func (r *repository) Delete(ctx context.Context, schoolID, eventID, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND school_id = ? AND event_id = ?", id, schoolID, eventID).Delete(&Guest{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete guest")
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return errors.Wrap(tx.Where("guest_id = ?", id).Delete(&GuestFieldValue{}).Error, "delete guest answers")
	})
}

// AddArrivals records count arrivals in one conditional update. It reports
// false when the guest is blocked or the arrivals would exceed the invite.
func (r *repository) AddArrivals(ctx context.Context, id uint, count int, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Guest{}).
		Where("id = ? AND status <> ? AND arrived_count + ? <= invite_count", id, StatusBlocked, count).
		Updates(map[string]interface{}{
			"arrived_count": gorm.Expr("arrived_count + ?", count),
			"status":        StatusCheckedIn,
			"checked_in_at": gorm.Expr("COALESCE(checked_in_at, ?)", at),
		})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "record arrival")
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetPhoto(ctx context.Context, id uint, path *string) error {
	err := r.db.WithContext(ctx).Model(&Guest{}).Where("id = ?", id).Update("photo_path", path).Error
	return errors.Wrap(err, "set guest photo")
}

// PhotoPaths lists every stored photo path.
func (r *repository) PhotoPaths(ctx context.Context) ([]string, error) {
	var paths []string
	err := r.db.WithContext(ctx).Model(&Guest{}).Where("photo_path IS NOT NULL").Pluck("photo_path", &paths).Error
	return paths, errors.Wrap(err, "list guest photos")
}

// ===========================
// 🧩 Field values
func upsertValues(tx *gorm.DB, guestID uint, values []GuestFieldValue) error {
	if len(values) == 0 {
		return nil
	}
	for i := range values {
		values[i].GuestID = guestID
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guest_id"}, {Name: "field_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value_text", "value_json", "updated_at"}),
	}).Create(&values).Error
	return errors.Wrapf(err, "save answers of guest %d", guestID)
}

func (r *repository) Values(ctx context.Context, guestIDs ...uint) ([]GuestFieldValue, error) {
	var values []GuestFieldValue
	if len(guestIDs) == 0 {
		return values, nil
	}
	err := r.db.WithContext(ctx).Where("guest_id IN ?", guestIDs).Order("guest_id, field_id").Find(&values).Error
	return values, errors.Wrap(err, "load guest answers")
}
