package event

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/sharath018/school-management-backend/internal/auditlog"
	"github.com/sharath018/school-management-backend/internal/eventtype"
	"github.com/sharath018/school-management-backend/middleware"
)

var (
	ErrWriteDenied      = errors.New("write access denied")
	ErrInvalidSchedule  = errors.New("ends_at must be after starts_at")
	ErrInvalidCapacity  = errors.New("capacity cannot be negative")
	ErrInvalidStatus    = errors.New("invalid event status")
	ErrUnknownEventType = errors.New("event type does not belong to this school")
)

// EventTypes resolves an event type inside a school.
type EventTypes interface {
	GetEventType(ctx context.Context, schoolID, id uint) (*eventtype.EventType, error)
}

// Notifier fans an in-app message out to a school's users by role.
type Notifier interface {
	CreateInAppForSchoolRoles(ctx context.Context, schoolID uint, roles []string, title, message string, meta map[string]interface{}) error
}

type Service struct {
	Repo       *Repository
	EventTypes EventTypes
	AuditSvc   auditlog.Service
	NotifSvc   Notifier // optional
}

func NewService(repo *Repository, types EventTypes, auditSvc auditlog.Service, notif Notifier) *Service {
	return &Service{Repo: repo, EventTypes: types, AuditSvc: auditSvc, NotifSvc: notif}
}

func (s *Service) audit(ctx context.Context, ac middleware.AccessContext, schoolID uint, action string, details map[string]interface{}, ip, status string) {
	if s.AuditSvc == nil {
		return
	}
	if err := s.AuditSvc.LogAction(ctx, &ac.UserID, &schoolID, action, details, ip, status); err != nil {
		log.Printf("⚠️ audit %s: %v", action, err)
	}
}

func (s *Service) validate(ctx context.Context, schoolID uint, req *EventRequest) error {
	if !req.EndsAt.After(req.StartsAt) {
		return ErrInvalidSchedule
	}
	if req.Capacity < 0 {
		return ErrInvalidCapacity
	}
	switch req.Status {
	case "", StatusDraft, StatusPublished, StatusCompleted, StatusCancelled:
	default:
		return ErrInvalidStatus
	}
	if req.EventTypeID != nil {
		if _, err := s.EventTypes.GetEventType(ctx, schoolID, *req.EventTypeID); err != nil {
			if errors.Is(err, eventtype.ErrNotFound) {
				return ErrUnknownEventType
			}
			return err
		}
	}
	return nil
}

func (e *Event) apply(req *EventRequest) {
	e.Title = strings.TrimSpace(req.Title)
	e.Description = req.Description
	e.EventTypeID = req.EventTypeID
	e.StartsAt = req.StartsAt
	e.EndsAt = req.EndsAt
	e.Venue = strings.TrimSpace(req.Venue)
	e.Capacity = req.Capacity
	if req.Status != "" {
		e.Status = req.Status
	}
}

// ===========================
// 🎯 Create Event
func (s *Service) CreateEvent(ctx context.Context, req *EventRequest, ac middleware.AccessContext, schoolID uint, ip string) (*Event, error) {
	if !ac.CanWrite() {
		s.audit(ctx, ac, schoolID, "EVENT_CREATED", map[string]interface{}{"title": req.Title, "error": "write access denied"}, ip, auditlog.StatusFailure)
		return nil, ErrWriteDenied
	}
	if err := s.validate(ctx, schoolID, req); err != nil {
		s.audit(ctx, ac, schoolID, "EVENT_CREATED", map[string]interface{}{"title": req.Title, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}

	e := &Event{SchoolID: schoolID, Status: StatusDraft, CreatedBy: ac.UserID}
	e.apply(req)
	if err := s.Repo.CreateEvent(ctx, e); err != nil {
		s.audit(ctx, ac, schoolID, "EVENT_CREATED", map[string]interface{}{"title": req.Title, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}

	s.audit(ctx, ac, schoolID, "EVENT_CREATED", map[string]interface{}{"event_id": e.ID, "title": e.Title}, ip, auditlog.StatusSuccess)
	if e.Status == StatusPublished {
		s.notifyPublished(ctx, e)
	}
	return e, nil
}

func (s *Service) GetEvent(ctx context.Context, schoolID, id uint) (*Event, error) {
	return s.Repo.GetEvent(ctx, schoolID, id)
}

func (s *Service) ListEvents(ctx context.Context, schoolID uint, f ListFilter) ([]Event, int64, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.Repo.ListEvents(ctx, schoolID, f)
}

// ===========================
// 🛠 Update Event
func (s *Service) UpdateEvent(ctx context.Context, id uint, req *EventRequest, ac middleware.AccessContext, schoolID uint, ip string) (*Event, error) {
	if !ac.CanWrite() {
		s.audit(ctx, ac, schoolID, "EVENT_UPDATED", map[string]interface{}{"event_id": id, "error": "write access denied"}, ip, auditlog.StatusFailure)
		return nil, ErrWriteDenied
	}
	e, err := s.Repo.GetEvent(ctx, schoolID, id)
	if err != nil {
		s.audit(ctx, ac, schoolID, "EVENT_UPDATED", map[string]interface{}{"event_id": id, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}
	if err := s.validate(ctx, schoolID, req); err != nil {
		s.audit(ctx, ac, schoolID, "EVENT_UPDATED", map[string]interface{}{"event_id": id, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}

	wasPublished := e.Status == StatusPublished
	e.apply(req)
	if err := s.Repo.UpdateEvent(ctx, e); err != nil {
		s.audit(ctx, ac, schoolID, "EVENT_UPDATED", map[string]interface{}{"event_id": id, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}

	s.audit(ctx, ac, schoolID, "EVENT_UPDATED", map[string]interface{}{"event_id": id, "title": e.Title, "status": e.Status}, ip, auditlog.StatusSuccess)
	if !wasPublished && e.Status == StatusPublished {
		s.notifyPublished(ctx, e)
	}
	return e, nil
}

// ===========================
// ❌ Delete Event
func (s *Service) DeleteEvent(ctx context.Context, id uint, ac middleware.AccessContext, schoolID uint, ip string) error {
	if !ac.CanWrite() {
		s.audit(ctx, ac, schoolID, "EVENT_DELETED", map[string]interface{}{"event_id": id, "error": "write access denied"}, ip, auditlog.StatusFailure)
		return ErrWriteDenied
	}
	if err := s.Repo.DeleteEvent(ctx, schoolID, id); err != nil {
		s.audit(ctx, ac, schoolID, "EVENT_DELETED", map[string]interface{}{"event_id": id, "error": err.Error()}, ip, auditlog.StatusFailure)
		return err
	}
	s.audit(ctx, ac, schoolID, "EVENT_DELETED", map[string]interface{}{"event_id": id}, ip, auditlog.StatusSuccess)
	return nil
}

// ===========================
// 📊 Stats
func (s *Service) GetStats(ctx context.Context, schoolID, id uint) (*Stats, error) {
	e, err := s.Repo.GetEvent(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}
	st, err := s.Repo.GuestStats(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	st.Capacity = e.Capacity
	st.RemainingCapacity = e.Capacity - int(st.TotalArrived)
	if st.RemainingCapacity < 0 {
		st.RemainingCapacity = 0
	}
	return st, nil
}

func (s *Service) notifyPublished(ctx context.Context, e *Event) {
	if s.NotifSvc == nil {
		return
	}
	msg := fmt.Sprintf("%s on %s", e.Title, e.StartsAt.Format("02 Jan 2006 15:04"))
	if e.Venue != "" {
		msg += " at " + e.Venue
	}
	meta := map[string]interface{}{"event_id": e.ID}
	if err := s.NotifSvc.CreateInAppForSchoolRoles(ctx, e.SchoolID, []string{middleware.RoleSchoolAdmin, middleware.RoleStaff}, "Event published", msg, meta); err != nil {
		log.Printf("⚠️ event %d publish notification: %v", e.ID, err)
	}
}
