package school

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/sharath018/school-management-backend/internal/auditlog"
	"github.com/sharath018/school-management-backend/middleware"
)

var (
	ErrWriteDenied     = errors.New("write access denied")
	ErrUserNotInSchool = errors.New("user does not belong to this school")
	ErrSelfStatus      = errors.New("you cannot change your own status")
)

// Service manages a school's profile, branding and user accounts
type Service struct {
	Repo     Repository
	AuditSvc auditlog.Service
}

func NewService(repo Repository, auditSvc auditlog.Service) *Service {
	return &Service{Repo: repo, AuditSvc: auditSvc}
}

func (s *Service) audit(ctx context.Context, ac middleware.AccessContext, schoolID uint, action string, details map[string]interface{}, ip, status string) {
	if s.AuditSvc == nil {
		return
	}
	if err := s.AuditSvc.LogAction(ctx, &ac.UserID, &schoolID, action, details, ip, status); err != nil {
		log.Printf("⚠️ audit %s: %v", action, err)
	}
}

// CreateSchool registers a school under an organization.
func (s *Service) CreateSchool(ctx context.Context, orgID uint, req *CreateSchoolRequest, ac middleware.AccessContext, ip string) (*School, error) {
	position := req.LogoPosition
	if position == "" {
		position = "left"
	}
	sc := &School{
		OrganizationID: orgID,
		Name:           strings.TrimSpace(req.Name),
		Code:           strings.ToUpper(strings.TrimSpace(req.Code)),
		Address:        req.Address,
		Phone:          req.Phone,
		Email:          req.Email,
		LogoURL:        req.LogoURL,
		LogoPosition:   position,
		IsActive:       true,
		CreatedBy:      ac.UserID,
	}
	if err := s.Repo.Create(ctx, sc); err != nil {
		s.audit(ctx, ac, 0, "SCHOOL_CREATED", map[string]interface{}{"name": req.Name, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}
	s.audit(ctx, ac, sc.ID, "SCHOOL_CREATED", map[string]interface{}{"school_id": sc.ID, "name": sc.Name, "organization_id": orgID}, ip, auditlog.StatusSuccess)
	return sc, nil
}

func (s *Service) GetSchool(ctx context.Context, id uint) (*School, error) {
	return s.Repo.GetByID(ctx, id)
}

func (s *Service) ListByOrganization(ctx context.Context, orgID uint) ([]School, error) {
	return s.Repo.ListByOrganization(ctx, orgID)
}

// UpdateSchool applies the non-nil fields of req.
func (s *Service) UpdateSchool(ctx context.Context, schoolID uint, req *UpdateSchoolRequest, ac middleware.AccessContext, ip string) (*School, error) {
	if !ac.CanWrite() {
		s.audit(ctx, ac, schoolID, "SCHOOL_UPDATED", map[string]interface{}{"error": "write access denied"}, ip, auditlog.StatusFailure)
		return nil, ErrWriteDenied
	}
	sc, err := s.Repo.GetByID(ctx, schoolID)
	if err != nil {
		return nil, err
	}

	changed := []string{}
	set := func(name string, dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
			changed = append(changed, name)
		}
	}
	set("name", &sc.Name, req.Name)
	set("address", &sc.Address, req.Address)
	set("phone", &sc.Phone, req.Phone)
	set("email", &sc.Email, req.Email)
	set("logo_url", &sc.LogoURL, req.LogoURL)
	set("secondary_logo_url", &sc.SecondaryLogoURL, req.SecondaryLogoURL)
	set("logo_position", &sc.LogoPosition, req.LogoPosition)
	set("primary_color", &sc.PrimaryColor, req.PrimaryColor)
	set("secondary_color", &sc.SecondaryColor, req.SecondaryColor)
	set("watermark_text", &sc.WatermarkText, req.WatermarkText)
	set("watermark_image_url", &sc.WatermarkImageURL, req.WatermarkImageURL)
	set("report_header_text", &sc.ReportHeaderText, req.ReportHeaderText)
	if sc.Name == "" {
		s.audit(ctx, ac, schoolID, "SCHOOL_UPDATED", map[string]interface{}{"error": "name cannot be empty"}, ip, auditlog.StatusFailure)
		return nil, errors.New("name cannot be empty")
	}

	if err := s.Repo.Update(ctx, sc); err != nil {
		s.audit(ctx, ac, schoolID, "SCHOOL_UPDATED", map[string]interface{}{"error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}
	s.audit(ctx, ac, schoolID, "SCHOOL_UPDATED", map[string]interface{}{"fields": changed}, ip, auditlog.StatusSuccess)
	return sc, nil
}

// ===========================
// 👥 School users

func (s *Service) ListUsers(ctx context.Context, schoolID uint, role string) ([]SchoolUser, error) {
	return s.Repo.ListUsers(ctx, schoolID, role)
}

func (s *Service) SetUserStatus(ctx context.Context, schoolID, userID uint, status string, ac middleware.AccessContext, ip string) error {
	details := map[string]interface{}{"user_id": userID, "status": status}
	if !ac.CanWrite() {
		details["error"] = "write access denied"
		s.audit(ctx, ac, schoolID, "SCHOOL_USER_STATUS_UPDATED", details, ip, auditlog.StatusFailure)
		return ErrWriteDenied
	}
	if userID == ac.UserID {
		details["error"] = ErrSelfStatus.Error()
		s.audit(ctx, ac, schoolID, "SCHOOL_USER_STATUS_UPDATED", details, ip, auditlog.StatusFailure)
		return ErrSelfStatus
	}
	if err := s.Repo.SetUserStatus(ctx, schoolID, userID, status); err != nil {
		details["error"] = err.Error()
		s.audit(ctx, ac, schoolID, "SCHOOL_USER_STATUS_UPDATED", details, ip, auditlog.StatusFailure)
		return err
	}
	s.audit(ctx, ac, schoolID, "SCHOOL_USER_STATUS_UPDATED", details, ip, auditlog.StatusSuccess)
	return nil
}
