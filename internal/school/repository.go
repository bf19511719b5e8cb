package school

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("school not found")

type Repository interface {
	Create(ctx context.Context, s *School) error
	GetByID(ctx context.Context, id uint) (*School, error)
	ListByOrganization(ctx context.Context, orgID uint) ([]School, error)
	Update(ctx context.Context, s *School) error
	Count(ctx context.Context) (int64, error)

	ListUsers(ctx context.Context, schoolID uint, role string) ([]SchoolUser, error)
	SetUserStatus(ctx context.Context, schoolID, userID uint, status string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, s *School) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(s).Error, "create school")
}

func (r *repository) GetByID(ctx context.Context, id uint) (*School, error) {
	var s School
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "load school %d", id)
	}
	return &s, nil
}

func (r *repository) ListByOrganization(ctx context.Context, orgID uint) ([]School, error) {
	var schools []School
	err := r.db.WithContext(ctx).Where("organization_id = ?", orgID).Order("name ASC").Find(&schools).Error
	return schools, errors.Wrap(err, "list schools")
}

func (r *repository) Update(ctx context.Context, s *School) error {
	return errors.Wrap(r.db.WithContext(ctx).Save(s).Error, "update school")
}

func (r *repository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&School{}).Count(&n).Error
	return n, err
}

// ListUsers fetches users linked to a school, optionally filtered by role.
func (r *repository) ListUsers(ctx context.Context, schoolID uint, role string) ([]SchoolUser, error) {
	users := []SchoolUser{}
	q := r.db.WithContext(ctx).Table("users").
		Select("users.id, users.full_name, users.email, users.phone, user_roles.role_name AS role, users.status, users.last_login_at, users.created_at").
		Joins("JOIN user_roles ON user_roles.id = users.role_id").
		Where("users.school_id = ?", schoolID)
	if role != "" {
		q = q.Where("user_roles.role_name = ?", role)
	}
	err := q.Order("users.full_name ASC").Scan(&users).Error
	return users, errors.Wrap(err, "list school users")
}

func (r *repository) SetUserStatus(ctx context.Context, schoolID, userID uint, status string) error {
	res := r.db.WithContext(ctx).Table("users").
		Where("id = ? AND school_id = ?", userID, schoolID).
		Update("status", status)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update user status")
	}
	if res.RowsAffected == 0 {
		return ErrUserNotInSchool
	}
	return nil
}
