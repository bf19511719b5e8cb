package reports

import (
	"net/url"
	"strings"
)

// Watermark is drawn behind every page. Text wins over an image.
type Watermark struct {
	Text     string
	ImageURL string
	Opacity  float64
	Rotation float64
}

func (w *Watermark) IsText() bool { return w.Text != "" }

// Sections holds the optional decorations of a report. A zero field means the
// matching node is left out of the markup entirely.
type Sections struct {
	SchoolName    string
	Title         string
	HeaderText    string
	HeaderNotes   []string
	BodyNotes     []string
	FooterNotes   []string
	Watermark     *Watermark
	PrimaryLogo   string
	LogoPosition  string // left | right
	SecondaryLogo string
}

// LeftLogo and RightLogo place the primary logo by position and the
// secondary logo on the other side.
func (s Sections) LeftLogo() string {
	if s.LogoPosition == "right" {
		return s.SecondaryLogo
	}
	return s.PrimaryLogo
}

func (s Sections) RightLogo() string {
	if s.LogoPosition == "right" {
		return s.PrimaryLogo
	}
	return s.SecondaryLogo
}

func (s Sections) HasHeader() bool {
	return s.SchoolName != "" || s.Title != "" || s.HeaderText != "" || s.PrimaryLogo != "" || s.SecondaryLogo != ""
}

// SectionsFrom reads decorations from p, accepting the upper-case spellings
// older clients send.
func SectionsFrom(p Payload, defaultTitle string) Sections {
	s := Sections{
		SchoolName:    p.String("school_name", "SCHOOL_NAME"),
		Title:         p.String("title", "TABLE_TITLE"),
		HeaderText:    p.String("header_text", "HEADER_TEXT"),
		HeaderNotes:   p.Strings("header_notes"),
		BodyNotes:     p.Strings("body_notes"),
		FooterNotes:   p.Strings("footer_notes"),
		PrimaryLogo:   safeURL(p.String("primary_logo", "PRIMARY_LOGO", "logo_url")),
		SecondaryLogo: safeURL(p.String("secondary_logo", "SECONDARY_LOGO")),
		LogoPosition:  "left",
	}
	if s.Title == "" {
		s.Title = defaultTitle
	}

	if logo := p.Map("logo", "LOGO"); logo != nil {
		if u := safeURL(logo.String("url", "src")); u != "" {
			s.PrimaryLogo = u
		}
		if pos := strings.ToLower(logo.String("position")); pos == "left" || pos == "right" {
			s.LogoPosition = pos
		}
	}
	if pos := strings.ToLower(p.String("logo_position")); pos == "left" || pos == "right" {
		s.LogoPosition = pos
	}

	if wm := p.Map("watermark", "WATERMARK"); wm != nil {
		w := &Watermark{
			Text:     wm.String("text"),
			ImageURL: safeURL(wm.String("image_url")),
			Opacity:  wm.Float("opacity", 0.08),
			Rotation: wm.Float("rotation_deg", 35),
		}
		if w.Text != "" || w.ImageURL != "" {
			if w.Text != "" {
				w.ImageURL = ""
			}
			s.Watermark = w
		}
	}
	return s
}

// safeURL keeps http(s) and data:image URLs and drops anything else.
func safeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "data:image/") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "http", "https":
		return raw
	case "":
		if strings.HasPrefix(raw, "/") {
			return raw
		}
	}
	return ""
}
