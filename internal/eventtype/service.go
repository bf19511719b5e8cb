package eventtype

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sharath018/school-management-backend/internal/auditlog"
	"github.com/sharath018/school-management-backend/middleware"
	"github.com/sharath018/school-management-backend/utils"
)

// Service wraps event type and field designer persistence
type Service struct {
	Repo      Repository
	Cache     FieldCache // optional
	AuditSvc  auditlog.Service
	Publisher utils.Publisher // optional
}

func NewService(repo Repository, cache FieldCache, auditSvc auditlog.Service, pub utils.Publisher) *Service {
	return &Service{Repo: repo, Cache: cache, AuditSvc: auditSvc, Publisher: pub}
}

func (s *Service) audit(ctx context.Context, ac middleware.AccessContext, schoolID uint, action string, details map[string]interface{}, ip, status string) {
	if s.AuditSvc == nil {
		return
	}
	if err := s.AuditSvc.LogAction(ctx, &ac.UserID, &schoolID, action, details, ip, status); err != nil {
		log.Printf("⚠️ audit %s: %v", action, err)
	}
}

// ===========================
// 🎯 Event types
func (s *Service) CreateEventType(ctx context.Context, req *CreateEventTypeRequest, ac middleware.AccessContext, schoolID uint, ip string) (*EventType, error) {
	if !ac.CanWrite() {
		s.audit(ctx, ac, schoolID, "EVENT_TYPE_CREATED", map[string]interface{}{"name": req.Name, "error": "write access denied"}, ip, auditlog.StatusFailure)
		return nil, ErrWriteDenied
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	et := &EventType{
		SchoolID:       schoolID,
		OrganizationID: ac.OrganizationID,
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		IsActive:       isActive,
		CreatedBy:      ac.UserID,
	}
	if err := s.Repo.Create(ctx, et); err != nil {
		s.audit(ctx, ac, schoolID, "EVENT_TYPE_CREATED", map[string]interface{}{"name": req.Name, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}

	s.audit(ctx, ac, schoolID, "EVENT_TYPE_CREATED", map[string]interface{}{"event_type_id": et.ID, "name": et.Name}, ip, auditlog.StatusSuccess)
	return et, nil
}

func (s *Service) ListEventTypes(ctx context.Context, schoolID uint, activeOnly bool) ([]EventType, error) {
	return s.Repo.List(ctx, schoolID, activeOnly)
}

func (s *Service) GetEventType(ctx context.Context, schoolID, id uint) (*EventType, error) {
	return s.Repo.GetByID(ctx, schoolID, id)
}

func (s *Service) UpdateEventType(ctx context.Context, id uint, req *UpdateEventTypeRequest, ac middleware.AccessContext, schoolID uint, ip string) (*EventType, error) {
	if !ac.CanWrite() {
		s.audit(ctx, ac, schoolID, "EVENT_TYPE_UPDATED", map[string]interface{}{"event_type_id": id, "error": "write access denied"}, ip, auditlog.StatusFailure)
		return nil, ErrWriteDenied
	}

	et, err := s.Repo.GetByID(ctx, schoolID, id)
	if err != nil {
		s.audit(ctx, ac, schoolID, "EVENT_TYPE_UPDATED", map[string]interface{}{"event_type_id": id, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}

	et.Name = strings.TrimSpace(req.Name)
	et.Description = req.Description
	if req.IsActive != nil {
		et.IsActive = *req.IsActive
	}
	if err := s.Repo.Update(ctx, et); err != nil {
		s.audit(ctx, ac, schoolID, "EVENT_TYPE_UPDATED", map[string]interface{}{"event_type_id": id, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}

	s.audit(ctx, ac, schoolID, "EVENT_TYPE_UPDATED", map[string]interface{}{"event_type_id": id, "name": et.Name, "is_active": et.IsActive}, ip, auditlog.StatusSuccess)
	return et, nil
}

func (s *Service) DeleteEventType(ctx context.Context, id uint, ac middleware.AccessContext, schoolID uint, ip string) error {
	if !ac.CanWrite() {
		s.audit(ctx, ac, schoolID, "EVENT_TYPE_DELETED", map[string]interface{}{"event_type_id": id, "error": "write access denied"}, ip, auditlog.StatusFailure)
		return ErrWriteDenied
	}
	if err := s.Repo.Delete(ctx, schoolID, id); err != nil {
		s.audit(ctx, ac, schoolID, "EVENT_TYPE_DELETED", map[string]interface{}{"event_type_id": id, "error": err.Error()}, ip, auditlog.StatusFailure)
		return err
	}
	s.invalidate(ctx, id)
	s.audit(ctx, ac, schoolID, "EVENT_TYPE_DELETED", map[string]interface{}{"event_type_id": id}, ip, auditlog.StatusSuccess)
	return nil
}

// PurgeDeleted hard-deletes types soft-deleted more than retention ago.
func (s *Service) PurgeDeleted(ctx context.Context, retention time.Duration) (int64, error) {
	return s.Repo.PurgeDeleted(ctx, time.Now().Add(-retention))
}

// ===========================
// 🧩 Fields

// GetFields returns the persisted field set, served from cache when possible.
func (s *Service) GetFields(ctx context.Context, schoolID, eventTypeID uint) (*FieldSet, error) {
	if _, err := s.Repo.GetByID(ctx, schoolID, eventTypeID); err != nil {
		return nil, err
	}
	if s.Cache != nil {
		if set, ok := s.Cache.Get(ctx, eventTypeID); ok {
			return set, nil
		}
	}
	set, err := s.Repo.GetFields(ctx, eventTypeID)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, eventTypeID, set); err != nil {
			log.Printf("⚠️ field cache set for event type %d: %v", eventTypeID, err)
		}
	}
	return set, nil
}

// SaveFields validates and atomically persists a whole working set.
func (s *Service) SaveFields(ctx context.Context, schoolID, eventTypeID uint, req *SaveFieldsRequest, ac middleware.AccessContext, ip string) (*FieldSet, error) {
	details := map[string]interface{}{
		"event_type_id": eventTypeID,
		"groups":        len(req.FieldGroups),
		"fields":        len(req.Fields),
	}
	fail := func(err error) (*FieldSet, error) {
		details["error"] = err.Error()
		s.audit(ctx, ac, schoolID, "EVENT_TYPE_FIELDS_SAVED", details, ip, auditlog.StatusFailure)
		return nil, err
	}

	if !ac.CanWrite() {
		return fail(ErrWriteDenied)
	}
	if _, err := s.Repo.GetByID(ctx, schoolID, eventTypeID); err != nil {
		return fail(err)
	}

	Normalize(req)
	if err := Validate(req); err != nil {
		return fail(err)
	}

	set, err := s.Repo.SaveFields(ctx, eventTypeID, req)
	if err != nil {
		return fail(err)
	}

	s.invalidate(ctx, eventTypeID)
	s.audit(ctx, ac, schoolID, "EVENT_TYPE_FIELDS_SAVED", details, ip, auditlog.StatusSuccess)
	utils.PublishAsync(s.Publisher, utils.DomainEvent{
		Type:     utils.EventFieldsSaved,
		SchoolID: schoolID,
		ActorID:  ac.UserID,
		Payload: map[string]interface{}{
			"event_type_id": eventTypeID,
			"groups":        len(set.FieldGroups),
			"fields":        len(set.Fields),
		},
	})
	return set, nil
}

func (s *Service) invalidate(ctx context.Context, eventTypeID uint) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, eventTypeID); err != nil {
		log.Printf("⚠️ field cache invalidate for event type %d: %v", eventTypeID, err)
	}
}

// Normalize trims text, derives blank keys from labels and drops options
// from field types that have none.
func Normalize(req *SaveFieldsRequest) {
	for i := range req.FieldGroups {
		req.FieldGroups[i].Title = strings.TrimSpace(req.FieldGroups[i].Title)
	}
	for i := range req.Fields {
		NormalizeField(&req.Fields[i])
	}
}

func NormalizeField(f *FieldInput) {
	f.Label = strings.TrimSpace(f.Label)
	f.Key = strings.TrimSpace(f.Key)
	if f.Key == "" {
		f.Key = DeriveKey(f.Label)
	}
	if !f.FieldType.HasOptions() {
		f.Options = nil
	}
}

// Validate checks a normalized batch. Duplicate keys make the returned
// error match ErrDuplicateKey.
func Validate(req *SaveFieldsRequest) error {
	ve := newValidationError(nil)
	validateRequest(req, ve)

	tempIDs := make(map[string]bool)
	groupIDs := make(map[uint]bool)
	for i, g := range req.FieldGroups {
		if g.ID != 0 {
			if groupIDs[g.ID] {
				ve.add(fmt.Sprintf("field_groups[%d].id", i), "appears more than once")
			}
			groupIDs[g.ID] = true
		}
		if g.TempID != "" {
			if tempIDs[g.TempID] {
				ve.add(fmt.Sprintf("field_groups[%d].temp_id", i), "appears more than once")
			}
			tempIDs[g.TempID] = true
		}
	}

	keys := make(map[string]int)
	fieldIDs := make(map[uint]bool)
	for i, f := range req.Fields {
		prefix := fmt.Sprintf("fields[%d]", i)
		if f.ID != 0 {
			if fieldIDs[f.ID] {
				ve.add(prefix+".id", "appears more than once")
			}
			fieldIDs[f.ID] = true
		}
		validateFieldShape(prefix, &f, ve)
		if f.Key != "" {
			if first, dup := keys[f.Key]; dup {
				ve.add(prefix+".key", fmt.Sprintf("duplicates fields[%d].key %q", first, f.Key))
				ve.cause = ErrDuplicateKey
			} else {
				keys[f.Key] = i
			}
		}
		if f.Group != nil {
			switch {
			case f.Group.TempID != "" && !tempIDs[f.Group.TempID]:
				ve.add(prefix+".field_group", fmt.Sprintf("unknown group %q", f.Group.TempID))
			case f.Group.TempID == "" && f.Group.ID != 0 && !groupIDs[f.Group.ID]:
				ve.add(prefix+".field_group", fmt.Sprintf("unknown group %d", f.Group.ID))
			}
		}
	}

	if ve.empty() {
		return nil
	}
	return ve
}

// ValidateField checks a single normalized field the way Validate does,
// without the cross-field rules.
func ValidateField(f *FieldInput) error {
	ve := newValidationError(nil)
	validateRequest(&SaveFieldsRequest{Fields: []FieldInput{*f}}, ve)
	validateFieldShape("fields[0]", f, ve)
	if ve.empty() {
		return nil
	}
	return ve
}

func validateFieldShape(prefix string, f *FieldInput, ve *ValidationError) {
	if f.Key == "" {
		ve.add(prefix+".key", "could not be derived from label")
	} else if !ValidKey(f.Key) {
		ve.add(prefix+".key", "must be at most 50 characters of a-z, 0-9 and _")
	}
	if f.FieldType.HasOptions() {
		if len(f.Options) == 0 {
			ve.add(prefix+".options", "at least one option is required")
		}
		seen := make(map[string]bool, len(f.Options))
		for j, o := range f.Options {
			if seen[o.Value] {
				ve.add(fmt.Sprintf("%s.options[%d].value", prefix, j), "appears more than once")
			}
			seen[o.Value] = true
		}
	}
}
