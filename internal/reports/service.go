package reports

import (
	"context"
	"log"

	"github.com/sharath018/school-management-backend/internal/auditlog"
	"github.com/sharath018/school-management-backend/middleware"
	"github.com/sharath018/school-management-backend/utils"
)

// Service renders report payloads for a school.
type Service interface {
	Render(ctx context.Context, schoolID uint, reportType, format string, p Payload, ac middleware.AccessContext, ip string) (*Output, error)
}

type service struct {
	repo         Repository // optional, supplies branding defaults
	exporter     Exporter
	auditSvc     auditlog.Service
	publisher    utils.Publisher
	qrServiceURL string
}

func NewService(repo Repository, exporter Exporter, auditSvc auditlog.Service, pub utils.Publisher, qrServiceURL string) Service {
	return &service{
		repo:         repo,
		exporter:     exporter,
		auditSvc:     auditSvc,
		publisher:    pub,
		qrServiceURL: qrServiceURL,
	}
}

func (s *service) Render(ctx context.Context, schoolID uint, reportType, format string, p Payload, ac middleware.AccessContext, ip string) (*Output, error) {
	details := map[string]interface{}{"report_type": reportType, "format": format}

	if s.repo != nil {
		branding, err := s.repo.GetBranding(ctx, schoolID)
		if err != nil {
			log.Printf("⚠️ report branding for school %d: %v", schoolID, err)
		} else {
			p = branding.Apply(p)
		}
	}

	doc, err := Build(reportType, p, s.qrServiceURL)
	if err != nil {
		s.audit(ctx, ac, schoolID, details, ip, auditlog.StatusFailure, err)
		return nil, err
	}
	out, err := s.exporter.Export(doc, format)
	if err != nil {
		s.audit(ctx, ac, schoolID, details, ip, auditlog.StatusFailure, err)
		return nil, err
	}

	details["items"] = out.Items
	s.audit(ctx, ac, schoolID, details, ip, auditlog.StatusSuccess, nil)
	utils.PublishAsync(s.publisher, utils.DomainEvent{
		Type:     utils.EventReportRendered,
		SchoolID: schoolID,
		ActorID:  ac.UserID,
		Payload:  map[string]interface{}{"report_type": reportType, "format": format, "items": out.Items},
	})
	return out, nil
}

func (s *service) audit(ctx context.Context, ac middleware.AccessContext, schoolID uint, details map[string]interface{}, ip, status string, cause error) {
	if s.auditSvc == nil {
		return
	}
	if cause != nil {
		details["error"] = cause.Error()
	}
	if err := s.auditSvc.LogAction(ctx, &ac.UserID, &schoolID, "REPORT_RENDERED", details, ip, status); err != nil {
		log.Printf("⚠️ audit REPORT_RENDERED: %v", err)
	}
}
