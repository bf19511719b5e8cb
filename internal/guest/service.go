package guest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sharath018/school-management-backend/internal/auditlog"
	"github.com/sharath018/school-management-backend/internal/event"
	"github.com/sharath018/school-management-backend/internal/eventtype"
	"github.com/sharath018/school-management-backend/internal/guestform"
	"github.com/sharath018/school-management-backend/internal/reports"
	"github.com/sharath018/school-management-backend/middleware"
	"github.com/sharath018/school-management-backend/utils"
)

var (
	ErrWriteDenied    = errors.New("write access denied")
	ErrBlocked        = errors.New("guest is blocked")
	ErrFullyArrived   = errors.New("all invited guests have already arrived")
	ErrNoPhotoStore   = errors.New("photo uploads are not configured")
	ErrCodeExhausted  = errors.New("could not allocate a unique guest code")
	ErrInvalidCSVHead = errors.New("import file needs a full_name column")
)

// Events resolves an event inside a school.
type Events interface {
	GetEvent(ctx context.Context, schoolID, id uint) (*event.Event, error)
}

// Fields loads the field set of an event type.
type Fields interface {
	GetFields(ctx context.Context, schoolID, eventTypeID uint) (*eventtype.FieldSet, error)
}

// Renderer renders report payloads.
type Renderer interface {
	Render(ctx context.Context, schoolID uint, reportType, format string, p reports.Payload, ac middleware.AccessContext, ip string) (*reports.Output, error)
}

type Service struct {
	Repo      Repository
	Events    Events
	Fields    Fields
	Reports   Renderer
	Photos    *PhotoStore // optional
	AuditSvc  auditlog.Service
	Publisher utils.Publisher // optional
}

func NewService(repo Repository, events Events, fields Fields, rep Renderer, photos *PhotoStore, auditSvc auditlog.Service, pub utils.Publisher) *Service {
	return &Service{Repo: repo, Events: events, Fields: fields, Reports: rep, Photos: photos, AuditSvc: auditSvc, Publisher: pub}
}

func (s *Service) audit(ctx context.Context, ac middleware.AccessContext, schoolID uint, action string, details map[string]interface{}, ip, status string) {
	if s.AuditSvc == nil {
		return
	}
	if err := s.AuditSvc.LogAction(ctx, &ac.UserID, &schoolID, action, details, ip, status); err != nil {
		log.Printf("⚠️ audit %s: %v", action, err)
	}
}

// form renders the guest form of the event's type. Events without a type get
// an empty form.
func (s *Service) form(ctx context.Context, e *event.Event) (*guestform.Form, error) {
	set := &eventtype.FieldSet{}
	if e.EventTypeID != nil {
		var err error
		if set, err = s.Fields.GetFields(ctx, e.SchoolID, *e.EventTypeID); err != nil {
			return nil, err
		}
	}
	return guestform.Render(set)
}

func (s *Service) newCode(ctx context.Context) (string, error) {
	for i := 0; i < 5; i++ {
		code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
		exists, err := s.Repo.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}

// toRows converts the submitted field-value list into stored rows.
func toRows(values []guestform.FieldValue) []GuestFieldValue {
	rows := make([]GuestFieldValue, 0, len(values))
	for _, v := range values {
		row := GuestFieldValue{FieldID: v.FieldID}
		switch x := v.Value.(type) {
		case []string:
			row.ValueJSON = x
		case string:
			text := x
			row.ValueText = &text
		}
		rows = append(rows, row)
	}
	return rows
}

func toStored(rows []GuestFieldValue) []guestform.Stored {
	out := make([]guestform.Stored, 0, len(rows))
	for _, r := range rows {
		out = append(out, guestform.Stored{FieldID: r.FieldID, Text: r.ValueText, List: r.ValueJSON})
	}
	return out
}

// answersByKey exposes stored answers keyed by field key.
func answersByKey(form *guestform.Form, rows []GuestFieldValue) map[string]interface{} {
	out := map[string]interface{}{}
	for id, v := range form.Prefill(toStored(rows)) {
		if in, ok := form.Input(id); ok {
			out[in.Key] = v.Interface()
		}
	}
	return out
}

func (s *Service) decorate(g *Guest) {
	if s.Photos != nil && g.PhotoPath != nil {
		g.PhotoURL = s.Photos.URL(*g.PhotoPath)
	}
}

func applyRequest(g *Guest, req *GuestRequest) {
	g.FullName = strings.TrimSpace(req.FullName)
	g.Phone = strings.TrimSpace(req.Phone)
	if req.GuestType != "" {
		g.GuestType = req.GuestType
	}
	if req.InviteCount > 0 {
		g.InviteCount = req.InviteCount
	}
	if req.Status != "" {
		g.Status = req.Status
	}
}

// ===========================
// 🎯 Create Guest
func (s *Service) CreateGuest(ctx context.Context, eventID uint, req *GuestRequest, ac middleware.AccessContext, schoolID uint, ip string) (*Guest, error) {
	if !ac.CanWrite() {
		s.audit(ctx, ac, schoolID, "GUEST_CREATED", map[string]interface{}{"event_id": eventID, "error": "write access denied"}, ip, auditlog.StatusFailure)
		return nil, ErrWriteDenied
	}
	g, err := s.create(ctx, schoolID, eventID, req, ac.UserID)
	if err != nil {
		s.audit(ctx, ac, schoolID, "GUEST_CREATED", map[string]interface{}{"event_id": eventID, "full_name": req.FullName, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}
	s.audit(ctx, ac, schoolID, "GUEST_CREATED", map[string]interface{}{"event_id": eventID, "guest_id": g.ID, "guest_code": g.GuestCode}, ip, auditlog.StatusSuccess)
	return g, nil
}

func (s *Service) create(ctx context.Context, schoolID, eventID uint, req *GuestRequest, actorID uint) (*Guest, error) {
	e, err := s.Events.GetEvent(ctx, schoolID, eventID)
	if err != nil {
		return nil, err
	}
	form, err := s.form(ctx, e)
	if err != nil {
		return nil, err
	}
	answers, err := form.DecodeAll(rawAnswers(req.FieldValues))
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, e, form, req, answers, actorID)
}

// insert validates answers against form and stores a new guest of e.
func (s *Service) insert(ctx context.Context, e *event.Event, form *guestform.Form, req *GuestRequest, answers guestform.Answers, actorID uint) (*Guest, error) {
	if err := form.Validate(answers); err != nil {
		return nil, err
	}
	code, err := s.newCode(ctx)
	if err != nil {
		return nil, err
	}
	g := &Guest{
		SchoolID:    e.SchoolID,
		EventID:     e.ID,
		GuestType:   TypeExternal,
		InviteCount: 1,
		Status:      StatusInvited,
		GuestCode:   code,
		QRToken:     uuid.NewString(),
		CreatedBy:   actorID,
	}
	applyRequest(g, req)
	rows := toRows(form.Transform(answers))
	if err := s.Repo.Create(ctx, g, rows); err != nil {
		return nil, err
	}
	g.FieldValues = answersByKey(form, rows)
	s.decorate(g)
	return g, nil
}

func rawAnswers(in map[uint]json.RawMessage) map[uint][]byte {
	out := make(map[uint][]byte, len(in))
	for id, raw := range in {
		out[id] = raw
	}
	return out
}

// ===========================
// 🔍 Get Guest with answers
func (s *Service) GetGuest(ctx context.Context, schoolID, eventID, id uint) (*Guest, error) {
	e, err := s.Events.GetEvent(ctx, schoolID, eventID)
	if err != nil {
		return nil, err
	}
	g, err := s.Repo.GetByID(ctx, schoolID, eventID, id)
	if err != nil {
		return nil, err
	}
	form, err := s.form(ctx, e)
	if err != nil {
		return nil, err
	}
	rows, err := s.Repo.Values(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	g.FieldValues = answersByKey(form, rows)
	s.decorate(g)
	return g, nil
}

// Form returns the rendered guest form of an event.
func (s *Service) Form(ctx context.Context, schoolID, eventID uint) (*guestform.Form, error) {
	e, err := s.Events.GetEvent(ctx, schoolID, eventID)
	if err != nil {
		return nil, err
	}
	return s.form(ctx, e)
}

// ===========================
// 📄 List Guests
func (s *Service) ListGuests(ctx context.Context, schoolID, eventID uint, f ListFilter) (*ListResult, error) {
	if _, err := s.Events.GetEvent(ctx, schoolID, eventID); err != nil {
		return nil, err
	}
	f.Normalize()
	guests, total, err := s.Repo.List(ctx, schoolID, eventID, f)
	if err != nil {
		return nil, err
	}
	for i := range guests {
		s.decorate(&guests[i])
	}
	return &ListResult{
		Data:       guests,
		Total:      total,
		Page:       f.Page,
		PerPage:    f.PerPage,
		TotalPages: int(math.Ceil(float64(total) / float64(f.PerPage))),
	}, nil
}

// ===========================
// 🛠 Update Guest
func (s *Service) UpdateGuest(ctx context.Context, eventID, id uint, req *GuestRequest, ac middleware.AccessContext, schoolID uint, ip string) (*Guest, error) {
	fail := func(err error) (*Guest, error) {
		s.audit(ctx, ac, schoolID, "GUEST_UPDATED", map[string]interface{}{"event_id": eventID, "guest_id": id, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}
	if !ac.CanWrite() {
		return fail(ErrWriteDenied)
	}
	e, err := s.Events.GetEvent(ctx, schoolID, eventID)
	if err != nil {
		return fail(err)
	}
	g, err := s.Repo.GetByID(ctx, schoolID, eventID, id)
	if err != nil {
		return fail(err)
	}
	form, err := s.form(ctx, e)
	if err != nil {
		return fail(err)
	}
	answers, err := form.DecodeAll(rawAnswers(req.FieldValues))
	if err != nil {
		return fail(err)
	}
	stored, err := s.Repo.Values(ctx, g.ID)
	if err != nil {
		return fail(err)
	}
	// Required fields may be satisfied by earlier answers.
	merged := form.Prefill(toStored(stored))
	for fid, v := range answers {
		if !v.IsEmpty() {
			merged[fid] = v
		}
	}
	if err := form.Validate(merged); err != nil {
		return fail(err)
	}

	applyRequest(g, req)
	if err := s.Repo.Update(ctx, g, toRows(form.Transform(answers))); err != nil {
		return fail(err)
	}
	s.audit(ctx, ac, schoolID, "GUEST_UPDATED", map[string]interface{}{"event_id": eventID, "guest_id": id}, ip, auditlog.StatusSuccess)
	return s.GetGuest(ctx, schoolID, eventID, id)
}

// ===========================
// ❌ Delete Guest
func (s *Service) DeleteGuest(ctx context.Context, eventID, id uint, ac middleware.AccessContext, schoolID uint, ip string) error {
	if !ac.CanWrite() {
		s.audit(ctx, ac, schoolID, "GUEST_DELETED", map[string]interface{}{"guest_id": id, "error": "write access denied"}, ip, auditlog.StatusFailure)
		return ErrWriteDenied
	}
	g, err := s.Repo.GetByID(ctx, schoolID, eventID, id)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, schoolID, eventID, id); err != nil {
		s.audit(ctx, ac, schoolID, "GUEST_DELETED", map[string]interface{}{"guest_id": id, "error": err.Error()}, ip, auditlog.StatusFailure)
		return err
	}
	if s.Photos != nil && g.PhotoPath != nil {
		if err := s.Photos.Remove(*g.PhotoPath); err != nil {
			log.Printf("⚠️ guest %d photo cleanup: %v", id, err)
		}
	}
	s.audit(ctx, ac, schoolID, "GUEST_DELETED", map[string]interface{}{"guest_id": id, "event_id": eventID}, ip, auditlog.StatusSuccess)
	return nil
}

// ===========================
// ✅ Check-in by guest code or QR token
func (s *Service) CheckIn(ctx context.Context, eventID uint, req *CheckInRequest, ac middleware.AccessContext, schoolID uint, ip string) (*Guest, error) {
	count := req.Count
	if count < 1 {
		count = 1
	}
	g, err := s.Repo.FindByCode(ctx, schoolID, req.Code)
	if err == nil && g.EventID != eventID {
		err = ErrNotFound
	}
	if err == nil && g.Status == StatusBlocked {
		err = ErrBlocked
	}
	if err == nil {
		var ok bool
		ok, err = s.Repo.AddArrivals(ctx, g.ID, count, time.Now())
		if err == nil && !ok {
			err = ErrFullyArrived
		}
	}
	if err != nil {
		s.audit(ctx, ac, schoolID, "GUEST_CHECKED_IN", map[string]interface{}{"event_id": eventID, "code": req.Code, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}

	g, err = s.Repo.GetByID(ctx, schoolID, eventID, g.ID)
	if err != nil {
		return nil, err
	}
	s.decorate(g)
	s.audit(ctx, ac, schoolID, "GUEST_CHECKED_IN", map[string]interface{}{"event_id": eventID, "guest_id": g.ID, "count": count}, ip, auditlog.StatusSuccess)
	utils.PublishAsync(s.Publisher, utils.DomainEvent{
		Type:     utils.EventGuestCheckedIn,
		SchoolID: schoolID,
		ActorID:  ac.UserID,
		Payload: map[string]interface{}{
			"event_id":      eventID,
			"guest_id":      g.ID,
			"full_name":     g.FullName,
			"arrived_count": g.ArrivedCount,
			"invite_count":  g.InviteCount,
		},
		OccurredAt: time.Now(),
	})
	return g, nil
}

// ===========================
// 📷 Photo upload
// The guest record is never touched when processing fails.
func (s *Service) UploadPhoto(ctx context.Context, eventID, id uint, filename string, r io.Reader, ac middleware.AccessContext, schoolID uint, ip string) (*Guest, error) {
	fail := func(err error) (*Guest, error) {
		s.audit(ctx, ac, schoolID, "GUEST_PHOTO_UPLOADED", map[string]interface{}{"guest_id": id, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}
	if !ac.CanWrite() {
		return fail(ErrWriteDenied)
	}
	if s.Photos == nil {
		return fail(ErrNoPhotoStore)
	}
	g, err := s.Repo.GetByID(ctx, schoolID, eventID, id)
	if err != nil {
		return fail(err)
	}
	rel, err := s.Photos.Save(eventID, filename, r)
	if err != nil {
		return fail(err)
	}
	if err := s.Repo.SetPhoto(ctx, g.ID, &rel); err != nil {
		_ = s.Photos.Remove(rel)
		return fail(err)
	}
	if g.PhotoPath != nil {
		if err := s.Photos.Remove(*g.PhotoPath); err != nil {
			log.Printf("⚠️ guest %d old photo: %v", id, err)
		}
	}
	g.PhotoPath = &rel
	s.decorate(g)
	s.audit(ctx, ac, schoolID, "GUEST_PHOTO_UPLOADED", map[string]interface{}{"guest_id": id, "path": rel}, ip, auditlog.StatusSuccess)
	return g, nil
}

// ReapPhotos removes stored photo files no guest points at.
func (s *Service) ReapPhotos(ctx context.Context) (int, error) {
	if s.Photos == nil {
		return 0, nil
	}
	files, err := s.Photos.Stored()
	if err != nil {
		return 0, err
	}
	used, err := s.Repo.PhotoPaths(ctx)
	if err != nil {
		return 0, err
	}
	keep := make(map[string]bool, len(used))
	for _, p := range used {
		keep[p] = true
	}
	removed := 0
	for _, f := range files {
		if keep[f] {
			continue
		}
		if err := s.Photos.Remove(f); err != nil {
			log.Printf("⚠️ reap %s: %v", f, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// ===========================
// 📤 Export guest list through the report renderer
func (s *Service) Export(ctx context.Context, eventID uint, format string, ac middleware.AccessContext, schoolID uint, ip string) (*reports.Output, error) {
	e, err := s.Events.GetEvent(ctx, schoolID, eventID)
	if err != nil {
		return nil, err
	}
	form, err := s.form(ctx, e)
	if err != nil {
		return nil, err
	}
	guests, err := s.Repo.ListAll(ctx, schoolID, eventID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, len(guests))
	for i, g := range guests {
		ids[i] = g.ID
	}
	values, err := s.Repo.Values(ctx, ids...)
	if err != nil {
		return nil, err
	}
	byGuest := map[uint][]GuestFieldValue{}
	for _, v := range values {
		byGuest[v.GuestID] = append(byGuest[v.GuestID], v)
	}

	columns := []interface{}{
		map[string]interface{}{"key": "guest_code", "label": "Code"},
		map[string]interface{}{"key": "full_name", "label": "Name"},
		map[string]interface{}{"key": "phone", "label": "Phone"},
		map[string]interface{}{"key": "guest_type", "label": "Type"},
		map[string]interface{}{"key": "invite_count", "label": "Invited"},
		map[string]interface{}{"key": "arrived_count", "label": "Arrived"},
		map[string]interface{}{"key": "status", "label": "Status"},
	}
	for _, in := range form.Inputs() {
		columns = append(columns, map[string]interface{}{"key": in.Key, "label": in.Label})
	}

	rows := make([]map[string]interface{}, 0, len(guests))
	for _, g := range guests {
		row := map[string]interface{}{
			"guest_code":    g.GuestCode,
			"full_name":     g.FullName,
			"phone":         g.Phone,
			"guest_type":    g.GuestType,
			"invite_count":  g.InviteCount,
			"arrived_count": g.ArrivedCount,
			"status":        g.Status,
		}
		for k, v := range answersByKey(form, byGuest[g.ID]) {
			if _, taken := row[k]; !taken {
				row[k] = v
			}
		}
		rows = append(rows, row)
	}

	notes := []string{e.StartsAt.Format("02 Jan 2006 15:04")}
	if e.Venue != "" {
		notes = append(notes, e.Venue)
	}
	payload := reports.Payload{
		"title":        fmt.Sprintf("Guest List - %s", e.Title),
		"header_notes": notes,
		"columns":      columns,
		"rows":         rows,
	}
	return s.Reports.Render(ctx, schoolID, reports.ReportTypeGuestList, format, payload, ac, ip)
}
