package event

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("event not found")

type Repository struct {
	DB *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{DB: db}
}

// ===========================
// 🎯 Create Event
func (r *Repository) CreateEvent(ctx context.Context, e *Event) error {
	return errors.Wrap(r.DB.WithContext(ctx).Create(e).Error, "create event")
}

// ===========================
// 🔍 Get Event scoped to its school
func (r *Repository) GetEvent(ctx context.Context, schoolID, id uint) (*Event, error) {
	var e Event
	err := r.DB.WithContext(ctx).Where("id = ? AND school_id = ?", id, schoolID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load event %d", id)
	}
	e.GuestCount = r.countGuests(ctx, e.ID)
	return &e, nil
}

// ===========================
// 📄 List Events With Pagination & Search
func (r *Repository) ListEvents(ctx context.Context, schoolID uint, f ListFilter) ([]Event, int64, error) {
	q := r.DB.WithContext(ctx).Model(&Event{}).Where("school_id = ?", schoolID)
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(venue) LIKE ?", like, like)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count events")
	}
	events := []Event{}
	if err := q.Order("starts_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&events).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list events")
	}
	for i := range events {
		events[i].GuestCount = r.countGuests(ctx, events[i].ID)
	}
	return events, total, nil
}

// ===========================
// 🛠 Update Event
func (r *Repository) UpdateEvent(ctx context.Context, e *Event) error {
	return errors.Wrap(r.DB.WithContext(ctx).Save(e).Error, "update event")
}

// ===========================
// ❌ Delete Event with its guests
func (r *Repository) DeleteEvent(ctx context.Context, schoolID, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND school_id = ?", id, schoolID).Delete(&Event{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete event")
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if tx.Migrator().HasTable("guests") {
			if err := tx.Exec("DELETE FROM guest_field_values WHERE guest_id IN (SELECT id FROM guests WHERE event_id = ?)", id).Error; err != nil {
				return errors.Wrap(err, "delete guest answers")
			}
			if err := tx.Exec("DELETE FROM guests WHERE event_id = ?", id).Error; err != nil {
				return errors.Wrap(err, "delete guests")
			}
		}
		return nil
	})
}

func (r *Repository) countGuests(ctx context.Context, eventID uint) int {
	var n int64
	if err := r.DB.WithContext(ctx).Table("guests").Where("event_id = ?", eventID).Count(&n).Error; err != nil {
		return 0
	}
	return int(n)
}

// ===========================
// 📊 Guest statistics for one event
func (r *Repository) GuestStats(ctx context.Context, eventID uint) (*Stats, error) {
	st := &Stats{EventID: eventID, ByStatus: map[string]int{}, ByGuestType: map[string]int{}}

	var totals struct {
		Guests  int64
		Invited int64
		Arrived int64
	}
	err := r.DB.WithContext(ctx).Table("guests").
		Select("COUNT(*) AS guests, COALESCE(SUM(invite_count), 0) AS invited, COALESCE(SUM(arrived_count), 0) AS arrived").
		Where("event_id = ?", eventID).
		Scan(&totals).Error
	if err != nil {
		return nil, errors.Wrap(err, "guest totals")
	}
	st.GuestCount, st.TotalInvited, st.TotalArrived = totals.Guests, totals.Invited, totals.Arrived

	type bucket struct {
		Bucket string
		Total  int
	}
	group := func(column string, into map[string]int) error {
		var rows []bucket
		if err := r.DB.WithContext(ctx).Table("guests").
			Select(column + " AS bucket, COUNT(*) AS total").
			Where("event_id = ?", eventID).
			Group(column).
			Scan(&rows).Error; err != nil {
			return errors.Wrapf(err, "guests by %s", column)
		}
		for _, b := range rows {
			into[b.Bucket] = b.Total
		}
		return nil
	}
	if err := group("status", st.ByStatus); err != nil {
		return nil, err
	}
	if err := group("guest_type", st.ByGuestType); err != nil {
		return nil, err
	}
	return st, nil
}
