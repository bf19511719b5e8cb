package auth

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type Repository interface {
	Create(user *User) error
	FindByEmail(email string) (*User, error)
	FindByID(userID uint) (User, error)
	FindRoleByName(name string) (*UserRole, error)
	EnsureRole(name, description string) (*UserRole, error)
	Update(user *User) error
	TouchLastLogin(userID uint, at time.Time) error

	// FindSchoolAdmin returns the oldest active administrator of a school.
	FindSchoolAdmin(schoolID uint) (*User, error)
	GetUserIDsByRole(roleName string, schoolID uint) ([]uint, error)
	GetUserEmailsByRole(roleName string, schoolID uint) ([]string, error)
}

type repository struct{ db *gorm.DB }

func NewRepository(db *gorm.DB) Repository {
	return &repository{db}
}

func (r *repository) Create(user *User) error {
	return errors.Wrap(r.db.Create(user).Error, "create user")
}

// Find user by email (used in login & password reset)
func (r *repository) FindByEmail(email string) (*User, error) {
	var u User
	err := r.db.Preload("Role").Where("LOWER(email) = LOWER(?)", email).First(&u).Error
	return &u, err
}

// Find user by ID (with role preload)
func (r *repository) FindByID(userID uint) (User, error) {
	var user User
	err := r.db.Preload("Role").First(&user, userID).Error
	return user, err
}

func (r *repository) FindRoleByName(name string) (*UserRole, error) {
	var role UserRole
	err := r.db.Where("role_name = ?", name).First(&role).Error
	return &role, err
}

func (r *repository) EnsureRole(name, description string) (*UserRole, error) {
	role := UserRole{RoleName: name, Description: description}
	if err := r.db.Where(UserRole{RoleName: name}).FirstOrCreate(&role).Error; err != nil {
		return nil, errors.Wrapf(err, "ensure role %s", name)
	}
	return &role, nil
}

func (r *repository) Update(user *User) error {
	return r.db.Omit("Role").Save(user).Error
}

func (r *repository) TouchLastLogin(userID uint, at time.Time) error {
	return r.db.Model(&User{}).Where("id = ?", userID).Update("last_login_at", at).Error
}

func (r *repository) FindSchoolAdmin(schoolID uint) (*User, error) {
	var u User
	err := r.db.Preload("Role").
		Joins("JOIN user_roles ON users.role_id = user_roles.id").
		Where("user_roles.role_name = ? AND users.school_id = ? AND users.status = ?", RoleSchoolAdmin, schoolID, StatusActive).
		Order("users.id ASC").
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserIDsByRole fetches active user IDs by role and school
func (r *repository) GetUserIDsByRole(roleName string, schoolID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Table("users").
		Select("users.id").
		Joins("JOIN user_roles ON users.role_id = user_roles.id").
		Where("user_roles.role_name = ? AND users.school_id = ? AND users.status = ?", roleName, schoolID, StatusActive).
		Scan(&ids).Error
	return ids, err
}

// ✅ GetUserEmailsByRole fetches active user emails by role and school
func (r *repository) GetUserEmailsByRole(roleName string, schoolID uint) ([]string, error) {
	var emails []string
	err := r.db.Table("users").
		Select("users.email").
		Joins("JOIN user_roles ON users.role_id = user_roles.id").
		Where("user_roles.role_name = ? AND users.school_id = ? AND users.status = ?", roleName, schoolID, StatusActive).
		Scan(&emails).Error
	return emails, err
}
