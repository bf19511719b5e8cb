package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTemplateNotFound     = errors.New("notification template not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrTokenNotFound        = errors.New("device token not found")
)

type Repository interface {
	// Templates
	CreateTemplate(ctx context.Context, t *NotificationTemplate) error
	GetTemplate(ctx context.Context, schoolID, id uint) (*NotificationTemplate, error)
	ListTemplates(ctx context.Context, schoolID uint) ([]NotificationTemplate, error)
	UpdateTemplate(ctx context.Context, t *NotificationTemplate) error
	DeleteTemplate(ctx context.Context, schoolID, id uint) error

	// Logs
	CreateLog(ctx context.Context, l *NotificationLog) error
	ListLogs(ctx context.Context, schoolID uint, limit, offset int) ([]NotificationLog, int64, error)

	// In-app notifications
	CreateInApp(ctx context.Context, n *InAppNotification) error
	ListInApp(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]InAppNotification, error)
	CountUnread(ctx context.Context, userID uint) (int64, error)
	MarkRead(ctx context.Context, userID, id uint, at time.Time) error
	MarkAllRead(ctx context.Context, userID uint, at time.Time) (int64, error)

	// Device tokens
	SaveDeviceToken(ctx context.Context, t *DeviceToken) error
	TokensForUsers(ctx context.Context, userIDs []uint) ([]string, error)
	RemoveDeviceToken(ctx context.Context, userID uint, token string) error
	PruneTokens(ctx context.Context, tokens []string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// ------------------------------
// Templates
// ------------------------------

func (r *repository) CreateTemplate(ctx context.Context, t *NotificationTemplate) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(t).Error, "create template")
}

func (r *repository) GetTemplate(ctx context.Context, schoolID, id uint) (*NotificationTemplate, error) {
	var t NotificationTemplate
	err := r.db.WithContext(ctx).Where("id = ? AND school_id = ?", id, schoolID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get template")
	}
	return &t, nil
}

func (r *repository) ListTemplates(ctx context.Context, schoolID uint) ([]NotificationTemplate, error) {
	var out []NotificationTemplate
	err := r.db.WithContext(ctx).Where("school_id = ?", schoolID).Order("created_at DESC").Find(&out).Error
	return out, errors.Wrap(err, "list templates")
}

func (r *repository) UpdateTemplate(ctx context.Context, t *NotificationTemplate) error {
	return errors.Wrap(r.db.WithContext(ctx).Save(t).Error, "update template")
}

func (r *repository) DeleteTemplate(ctx context.Context, schoolID, id uint) error {
	res := r.db.WithContext(ctx).Where("id = ? AND school_id = ?", id, schoolID).Delete(&NotificationTemplate{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete template")
	}
	if res.RowsAffected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// ------------------------------
// Logs
// ------------------------------

func (r *repository) CreateLog(ctx context.Context, l *NotificationLog) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(l).Error, "create notification log")
}

func (r *repository) ListLogs(ctx context.Context, schoolID uint, limit, offset int) ([]NotificationLog, int64, error) {
	var (
		out   []NotificationLog
		total int64
	)
	q := r.db.WithContext(ctx).Model(&NotificationLog{}).Where("school_id = ?", schoolID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count notification logs")
	}
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&out).Error
	return out, total, errors.Wrap(err, "list notification logs")
}

// ------------------------------
// In-app
// ------------------------------

func (r *repository) CreateInApp(ctx context.Context, n *InAppNotification) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(n).Error, "create in-app notification")
}

func (r *repository) ListInApp(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]InAppNotification, error) {
	var out []InAppNotification
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error
	return out, errors.Wrap(err, "list in-app notifications")
}

func (r *repository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&InAppNotification{}).
		Where("user_id = ? AND is_read = ?", userID, false).Count(&n).Error
	return n, errors.Wrap(err, "count unread")
}

func (r *repository) MarkRead(ctx context.Context, userID, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&InAppNotification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	if res.Error != nil {
		return errors.Wrap(res.Error, "mark read")
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *repository) MarkAllRead(ctx context.Context, userID uint, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&InAppNotification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	return res.RowsAffected, errors.Wrap(res.Error, "mark all read")
}

// ------------------------------
// Device tokens
// ------------------------------

// SaveDeviceToken upserts on the token. A token registered again by another
// user moves to that user.
func (r *repository) SaveDeviceToken(ctx context.Context, t *DeviceToken) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "school_id", "platform", "last_seen_at"}),
	}).Create(t).Error
	return errors.Wrap(err, "save device token")
}

func (r *repository) TokensForUsers(ctx context.Context, userIDs []uint) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var tokens []string
	err := r.db.WithContext(ctx).Model(&DeviceToken{}).
		Where("user_id IN ?", userIDs).Order("id").Pluck("token", &tokens).Error
	return tokens, errors.Wrap(err, "load device tokens")
}

func (r *repository) RemoveDeviceToken(ctx context.Context, userID uint, token string) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND token = ?", userID, token).Delete(&DeviceToken{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "remove device token")
	}
	if res.RowsAffected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (r *repository) PruneTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return errors.Wrap(r.db.WithContext(ctx).Where("token IN ?", tokens).Delete(&DeviceToken{}).Error, "prune device tokens")
}
