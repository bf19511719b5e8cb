package reports

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// contentTemplates maps a report type to the file defining its "content".
var contentTemplates = map[string]string{
	ReportTypeRollSlips:      "roll_slips.html",
	ReportTypeSecretLabels:   "secret_labels.html",
	ReportTypeStudentHistory: "student_history.html",
	ReportTypeGuestList:      "table.html",
	ReportTypeTable:          "table.html",
}

var templateFuncs = template.FuncMap{
	// url marks an address already checked by safeURL; data:image logos
	// would otherwise be rewritten by the escaper.
	"url": func(s string) template.URL { return template.URL(s) },
}

// HTMLRenderer renders documents with the embedded templates.
type HTMLRenderer struct {
	sets map[string]*template.Template
}

func NewHTMLRenderer() (*HTMLRenderer, error) {
	r := &HTMLRenderer{sets: make(map[string]*template.Template, len(contentTemplates))}
	for reportType, file := range contentTemplates {
		t, err := template.New("report").Funcs(templateFuncs).ParseFS(templateFS, "templates/base.html", "templates/"+file)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", reportType, err)
		}
		r.sets[reportType] = t
	}
	return r, nil
}

// MustHTMLRenderer panics when the embedded templates do not parse.
func MustHTMLRenderer() *HTMLRenderer {
	r, err := NewHTMLRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

func (r *HTMLRenderer) Render(doc *Document) ([]byte, error) {
	t, ok := r.sets[doc.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReportType, doc.Type)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", doc); err != nil {
		return nil, fmt.Errorf("render %s: %w", doc.Type, err)
	}
	return buf.Bytes(), nil
}
