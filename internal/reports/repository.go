package reports

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Branding is the school's default report decoration. Payload keys override it.
type Branding struct {
	SchoolName        string `gorm:"column:name"`
	LogoURL           string `gorm:"column:logo_url"`
	SecondaryLogoURL  string `gorm:"column:secondary_logo_url"`
	LogoPosition      string `gorm:"column:logo_position"`
	WatermarkText     string `gorm:"column:watermark_text"`
	WatermarkImageURL string `gorm:"column:watermark_image_url"`
	ReportHeaderText  string `gorm:"column:report_header_text"`
}

// Repository reads what reports need from other modules' tables.
type Repository interface {
	GetBranding(ctx context.Context, schoolID uint) (*Branding, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetBranding(ctx context.Context, schoolID uint) (*Branding, error) {
	var b Branding
	res := r.db.WithContext(ctx).Table("schools").
		Select("name, logo_url, secondary_logo_url, logo_position, watermark_text, watermark_image_url, report_header_text").
		Where("id = ? AND deleted_at IS NULL", schoolID).
		Limit(1).
		Scan(&b)
	if res.Error != nil {
		return nil, errors.Wrapf(res.Error, "load branding for school %d", schoolID)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &b, nil
}

// Apply fills payload keys the caller left out.
func (b *Branding) Apply(p Payload) Payload {
	if b == nil {
		return p
	}
	out := make(Payload, len(p)+6)
	for k, v := range p {
		out[k] = v
	}
	setDefault := func(key, value string, aliases ...string) {
		if value == "" || out.Get(append([]string{key}, aliases...)...) != nil {
			return
		}
		out[key] = value
	}
	setDefault("school_name", b.SchoolName, "SCHOOL_NAME")
	setDefault("primary_logo", b.LogoURL, "PRIMARY_LOGO", "logo_url", "logo")
	setDefault("secondary_logo", b.SecondaryLogoURL, "SECONDARY_LOGO")
	setDefault("logo_position", b.LogoPosition)
	setDefault("header_text", b.ReportHeaderText, "HEADER_TEXT")
	if out.Get("watermark", "WATERMARK") == nil && (b.WatermarkText != "" || b.WatermarkImageURL != "") {
		out["watermark"] = map[string]interface{}{"text": b.WatermarkText, "image_url": b.WatermarkImageURL}
	}
	return out
}
