package auditlog

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	GetByFilter(ctx context.Context, filter AuditLogFilter) ([]AuditLogResponse, int64, error)
	GetByID(ctx context.Context, id uint) (*AuditLogResponse, error)
	LoginStats(ctx context.Context, since time.Time) (*LoginStats, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

const selectWithNames = `
	al.id, al.user_id, al.school_id, al.action,
	al.details, al.ip_address, al.user_agent, al.status, al.created_at,
	u.full_name as user_name, u.email as user_email,
	s.name as school_name
`

func (r *repository) base(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("audit_logs al").
		Select(selectWithNames).
		Joins("LEFT JOIN users u ON al.user_id = u.id").
		Joins("LEFT JOIN schools s ON al.school_id = s.id")
}

// Create inserts a new audit log entry
func (r *repository) Create(ctx context.Context, log *AuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// GetByFilter retrieves audit logs with filtering and pagination
func (r *repository) GetByFilter(ctx context.Context, filter AuditLogFilter) ([]AuditLogResponse, int64, error) {
	var logs []AuditLogResponse
	var total int64

	query := r.base(ctx)

	if filter.UserID != nil {
		query = query.Where("al.user_id = ?", *filter.UserID)
	}
	if filter.SchoolID != nil {
		query = query.Where("al.school_id = ?", *filter.SchoolID)
	}
	if filter.Action != "" {
		query = query.Where("LOWER(al.action) LIKE ?", "%"+strings.ToLower(filter.Action)+"%")
	}
	if filter.ActionPrefix != "" {
		query = query.Where("al.action LIKE ?", filter.ActionPrefix+"%")
	}
	if filter.Status != "" {
		query = query.Where("al.status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(u.email) LIKE ? OR LOWER(u.full_name) LIKE ? OR al.ip_address LIKE ?", like, like, like)
	}
	if filter.FromDate != nil {
		query = query.Where("al.created_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("al.created_at <= ?", *filter.ToDate)
	}

	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}

	offset := (filter.Page - 1) * filter.Limit
	err := query.Order("al.created_at DESC").
		Limit(filter.Limit).
		Offset(offset).
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// GetByID retrieves a specific audit log by ID
func (r *repository) GetByID(ctx context.Context, id uint) (*AuditLogResponse, error) {
	var log AuditLogResponse
	if err := r.base(ctx).Where("al.id = ?", id).First(&log).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// LoginStats counts LOGIN_* entries since the given time.
func (r *repository) LoginStats(ctx context.Context, since time.Time) (*LoginStats, error) {
	stats := &LoginStats{}
	db := r.db.WithContext(ctx).Model(&AuditLog{})

	if err := db.Session(&gorm.Session{}).
		Where("action = ? AND created_at >= ?", ActionLoginSuccess, since).
		Count(&stats.Successful).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).
		Where("action = ? AND created_at >= ?", ActionLoginFailed, since).
		Count(&stats.Failed).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).
		Where("action = ? AND created_at >= ?", ActionLoginSuccess, since).
		Distinct("user_id").
		Count(&stats.UniqueUsers).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// PurgeBefore removes entries older than cutoff and returns how many were deleted.
func (r *repository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&AuditLog{})
	return res.RowsAffected, res.Error
}
