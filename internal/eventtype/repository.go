package eventtype

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	Create(ctx context.Context, et *EventType) error
	GetByID(ctx context.Context, schoolID, id uint) (*EventType, error)
	List(ctx context.Context, schoolID uint, activeOnly bool) ([]EventType, error)
	Update(ctx context.Context, et *EventType) error
	Delete(ctx context.Context, schoolID, id uint) error
	GetFields(ctx context.Context, eventTypeID uint) (*FieldSet, error)
	SaveFields(ctx context.Context, eventTypeID uint, req *SaveFieldsRequest) (*FieldSet, error)
	PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

var fieldUpsertColumns = []string{
	"field_group_id", "key", "label", "field_type", "is_required", "is_enabled",
	"sort_order", "placeholder", "help_text", "validation_rules", "options", "updated_at",
}

// ===========================
// 🎯 Event types
func (r *repository) Create(ctx context.Context, et *EventType) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(et).Error, "create event type")
}

func (r *repository) GetByID(ctx context.Context, schoolID, id uint) (*EventType, error) {
	var et EventType
	err := r.db.WithContext(ctx).Where("id = ? AND school_id = ?", id, schoolID).First(&et).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get event type %d", id)
	}
	return &et, nil
}

func (r *repository) List(ctx context.Context, schoolID uint, activeOnly bool) ([]EventType, error) {
	var types []EventType
	q := r.db.WithContext(ctx).Where("school_id = ?", schoolID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Order("name ASC").Find(&types).Error; err != nil {
		return nil, errors.Wrap(err, "list event types")
	}
	if len(types) == 0 {
		return types, nil
	}

	ids := make([]uint, len(types))
	for i := range types {
		ids[i] = types[i].ID
	}
	var counts []struct {
		EventTypeID uint
		N           int
	}
	err := r.db.WithContext(ctx).Model(&Field{}).
		Select("event_type_id, count(*) as n").
		Where("event_type_id IN ?", ids).
		Group("event_type_id").
		Scan(&counts).Error
	if err != nil {
		return nil, errors.Wrap(err, "count fields")
	}
	byType := make(map[uint]int, len(counts))
	for _, c := range counts {
		byType[c.EventTypeID] = c.N
	}
	for i := range types {
		types[i].FieldCount = byType[types[i].ID]
	}
	return types, nil
}

func (r *repository) Update(ctx context.Context, et *EventType) error {
	err := r.db.WithContext(ctx).Model(&EventType{}).
		Where("id = ? AND school_id = ?", et.ID, et.SchoolID).
		Updates(map[string]interface{}{
			"name":        et.Name,
			"description": et.Description,
			"is_active":   et.IsActive,
			"updated_at":  time.Now(),
		}).Error
	return errors.Wrapf(err, "update event type %d", et.ID)
}

// Delete soft-deletes; events keep pointing at the row.
func (r *repository) Delete(ctx context.Context, schoolID, id uint) error {
	res := r.db.WithContext(ctx).Where("id = ? AND school_id = ?", id, schoolID).Delete(&EventType{})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "delete event type %d", id)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ===========================
// 🧩 Field set
func (r *repository) GetFields(ctx context.Context, eventTypeID uint) (*FieldSet, error) {
	return loadFieldSet(r.db.WithContext(ctx), eventTypeID)
}

func loadFieldSet(db *gorm.DB, eventTypeID uint) (*FieldSet, error) {
	set := &FieldSet{FieldGroups: []FieldGroup{}, Fields: []Field{}}
	if err := db.Where("event_type_id = ?", eventTypeID).Order("sort_order ASC, id ASC").Find(&set.FieldGroups).Error; err != nil {
		return nil, errors.Wrap(err, "load field groups")
	}
	if err := db.Where("event_type_id = ?", eventTypeID).Order("sort_order ASC, id ASC").Find(&set.Fields).Error; err != nil {
		return nil, errors.Wrap(err, "load fields")
	}
	return set, nil
}

// SaveFields replaces the whole field set of an event type in one transaction.
// Groups and fields absent from req are deleted, groups referenced by TempID are
// created first and their ids substituted into the fields that point at them.
func (r *repository) SaveFields(ctx context.Context, eventTypeID uint, req *SaveFieldsRequest) (*FieldSet, error) {
	var out *FieldSet
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var groupIDs []uint
		if err := tx.Model(&FieldGroup{}).Where("event_type_id = ?", eventTypeID).Pluck("id", &groupIDs).Error; err != nil {
			return errors.Wrap(err, "load group ids")
		}
		existingGroups := make(map[uint]bool, len(groupIDs))
		for _, id := range groupIDs {
			existingGroups[id] = true
		}

		var existing []Field
		if err := tx.Select("id", "key").Where("event_type_id = ?", eventTypeID).Find(&existing).Error; err != nil {
			return errors.Wrap(err, "load field keys")
		}
		existingKeys := make(map[uint]string, len(existing))
		for _, f := range existing {
			existingKeys[f.ID] = f.Key
		}

		keepGroups := make([]uint, 0, len(req.FieldGroups))
		for _, g := range req.FieldGroups {
			if g.ID == 0 {
				continue
			}
			if !existingGroups[g.ID] {
				return errors.Wrapf(ErrUnknownGroup, "group %d", g.ID)
			}
			keepGroups = append(keepGroups, g.ID)
		}
		keepFields := make([]uint, 0, len(req.Fields))
		for _, f := range req.Fields {
			if f.ID == 0 {
				continue
			}
			if _, ok := existingKeys[f.ID]; !ok {
				return errors.Wrapf(ErrUnknownField, "field %d", f.ID)
			}
			keepFields = append(keepFields, f.ID)
		}

		// Fields first, so freed keys can be reused by the upserts below.
		del := tx.Where("event_type_id = ?", eventTypeID)
		if len(keepFields) > 0 {
			del = del.Where("id NOT IN ?", keepFields)
		}
		if err := del.Delete(&Field{}).Error; err != nil {
			return errors.Wrap(err, "delete removed fields")
		}

		// Park renamed keys so swaps do not trip the unique index.
		for _, f := range req.Fields {
			if f.ID != 0 && existingKeys[f.ID] != f.Key {
				if err := tx.Model(&Field{}).Where("id = ?", f.ID).Update("key", fmt.Sprintf("__tmp_%d", f.ID)).Error; err != nil {
					return errors.Wrapf(err, "park key of field %d", f.ID)
				}
			}
		}

		groupIDMap := make(map[string]uint)
		for _, g := range req.FieldGroups {
			row := FieldGroup{ID: g.ID, EventTypeID: eventTypeID, Title: g.Title, SortOrder: g.SortOrder}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"title", "sort_order", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return errors.Wrapf(err, "save group %q", g.Title)
			}
			if g.TempID != "" {
				groupIDMap[g.TempID] = row.ID
			}
			if g.ID == 0 {
				keepGroups = append(keepGroups, row.ID)
			}
		}

		var dropped []uint
		dq := tx.Model(&FieldGroup{}).Where("event_type_id = ?", eventTypeID)
		if len(keepGroups) > 0 {
			dq = dq.Where("id NOT IN ?", keepGroups)
		}
		if err := dq.Pluck("id", &dropped).Error; err != nil {
			return errors.Wrap(err, "find removed groups")
		}
		if len(dropped) > 0 {
			if err := tx.Model(&Field{}).Where("field_group_id IN ?", dropped).Update("field_group_id", nil).Error; err != nil {
				return errors.Wrap(err, "ungroup fields")
			}
			if err := tx.Where("id IN ?", dropped).Delete(&FieldGroup{}).Error; err != nil {
				return errors.Wrap(err, "delete removed groups")
			}
		}

		kept := make(map[uint]bool, len(keepGroups))
		for _, id := range keepGroups {
			kept[id] = true
		}
		for _, f := range req.Fields {
			groupID, err := resolveGroup(f.Group, kept, groupIDMap)
			if err != nil {
				return err
			}
			row := Field{
				ID:              f.ID,
				EventTypeID:     eventTypeID,
				FieldGroupID:    groupID,
				Key:             f.Key,
				Label:           f.Label,
				FieldType:       f.FieldType,
				IsRequired:      f.IsRequired,
				IsEnabled:       f.IsEnabled,
				SortOrder:       f.SortOrder,
				Placeholder:     f.Placeholder,
				HelpText:        f.HelpText,
				ValidationRules: f.ValidationRules,
			}
			if f.FieldType.HasOptions() {
				row.Options = f.Options
			}
			err = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns(fieldUpsertColumns),
			}).Create(&row).Error
			if err != nil {
				return errors.Wrapf(err, "save field %q", f.Key)
			}
		}

		set, err := loadFieldSet(tx, eventTypeID)
		if err != nil {
			return err
		}
		out = set
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func resolveGroup(ref *GroupRef, kept map[uint]bool, created map[string]uint) (*uint, error) {
	if ref == nil {
		return nil, nil
	}
	if ref.TempID != "" {
		id, ok := created[ref.TempID]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownGroup, "temp group %q", ref.TempID)
		}
		return &id, nil
	}
	if ref.ID == 0 {
		return nil, nil
	}
	if !kept[ref.ID] {
		return nil, errors.Wrapf(ErrUnknownGroup, "group %d", ref.ID)
	}
	id := ref.ID
	return &id, nil
}

// PurgeDeleted hard-deletes event types soft-deleted before cutoff, with their groups and fields.
func (r *repository) PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Unscoped().Model(&EventType{}).
			Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
			Pluck("id", &ids).Error; err != nil {
			return errors.Wrap(err, "find purgeable event types")
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("event_type_id IN ?", ids).Delete(&Field{}).Error; err != nil {
			return errors.Wrap(err, "purge fields")
		}
		if err := tx.Where("event_type_id IN ?", ids).Delete(&FieldGroup{}).Error; err != nil {
			return errors.Wrap(err, "purge groups")
		}
		res := tx.Unscoped().Where("id IN ?", ids).Delete(&EventType{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "purge event types")
		}
		purged = res.RowsAffected
		return nil
	})
	return purged, err
}
