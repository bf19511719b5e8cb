package auditlog

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bytedance/sonic"
)

// Login audit actions
const (
	ActionLoginSuccess = "LOGIN_SUCCESS"
	ActionLoginFailed  = "LOGIN_FAILED"
	ActionLogout       = "LOGOUT"
)

type Service interface {
	LogAction(ctx context.Context, userID *uint, schoolID *uint, action string, details map[string]interface{}, ip string, status string) error
	LogLogin(ctx context.Context, userID *uint, email, ip, userAgent string, success bool, reason string) error
	GetAuditLogs(ctx context.Context, filter AuditLogFilter) (*PaginatedAuditLogs, error)
	GetAuditLogByID(ctx context.Context, id uint) (*AuditLogResponse, error)
	GetLoginStats(ctx context.Context, days int) (*LoginStats, error)
	Purge(ctx context.Context, retentionDays int) (int64, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// LogAction creates a new audit log entry
func (s *service) LogAction(ctx context.Context, userID *uint, schoolID *uint, action string, details map[string]interface{}, ip string, status string) error {
	if details == nil {
		details = make(map[string]interface{})
	}

	detailsJSON, err := sonic.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	log := &AuditLog{
		UserID:    userID,
		SchoolID:  schoolID,
		Action:    action,
		Details:   detailsJSON,
		IPAddress: ip,
		Status:    status,
	}

	return s.repo.Create(ctx, log)
}

// LogLogin records a LOGIN_SUCCESS or LOGIN_FAILED entry.
func (s *service) LogLogin(ctx context.Context, userID *uint, email, ip, userAgent string, success bool, reason string) error {
	details := map[string]interface{}{"email": email}
	action, status := ActionLoginSuccess, StatusSuccess
	if !success {
		action, status = ActionLoginFailed, StatusFailure
		details["reason"] = reason
	}

	detailsJSON, err := sonic.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	return s.repo.Create(ctx, &AuditLog{
		UserID:    userID,
		Action:    action,
		Details:   detailsJSON,
		IPAddress: ip,
		UserAgent: truncate(userAgent, 255),
		Status:    status,
	})
}

// GetAuditLogs retrieves paginated audit logs with filters
func (s *service) GetAuditLogs(ctx context.Context, filter AuditLogFilter) (*PaginatedAuditLogs, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}

	logs, total, err := s.repo.GetByFilter(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &PaginatedAuditLogs{
		Data:       logs,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: int(math.Ceil(float64(total) / float64(filter.Limit))),
	}, nil
}

// GetAuditLogByID retrieves a specific audit log by ID
func (s *service) GetAuditLogByID(ctx context.Context, id uint) (*AuditLogResponse, error) {
	log, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("audit log not found: %w", err)
	}
	return log, nil
}

func (s *service) GetLoginStats(ctx context.Context, days int) (*LoginStats, error) {
	if days <= 0 {
		days = 7
	}
	return s.repo.LoginStats(ctx, time.Now().AddDate(0, 0, -days))
}

// Purge deletes audit entries older than retentionDays.
func (s *service) Purge(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	return s.repo.PurgeBefore(ctx, time.Now().AddDate(0, 0, -retentionDays))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
