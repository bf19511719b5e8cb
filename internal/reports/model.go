package reports

import (
	"errors"
	"time"
)

// Report types
const (
	ReportTypeRollSlips      = "roll_slips"
	ReportTypeSecretLabels   = "secret_labels"
	ReportTypeStudentHistory = "student_history"
	ReportTypeGuestList      = "guest_list"
	ReportTypeTable          = "table"
)

// Output formats
const (
	FormatHTML  = "html"
	FormatPDF   = "pdf"
	FormatExcel = "xlsx"
	FormatCSV   = "csv"
)

// Page sizes of the printed grids
const (
	RollSlipsPerPage    = 4
	RollSlipColumns     = 2
	SecretLabelColumns  = 7
	SecretLabelRows     = 5
	SecretLabelsPerPage = SecretLabelColumns * SecretLabelRows
)

var (
	ErrUnknownReportType = errors.New("unknown report type")
	ErrUnsupportedFormat = errors.New("unsupported report format")
)

// ReportTypes lists every renderable report type.
func ReportTypes() []string {
	return []string{ReportTypeRollSlips, ReportTypeSecretLabels, ReportTypeStudentHistory, ReportTypeGuestList, ReportTypeTable}
}

// NormalizeFormat maps accepted aliases to a format constant.
func NormalizeFormat(format string) (string, error) {
	switch format {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	case FormatExcel, "excel":
		return FormatExcel, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Line is one label/value pair printed on a slip or info card.
type Line struct {
	Label string
	Value string
}

// Slip is one cell of a roll slip or secret label grid.
type Slip struct {
	Heading  string
	Code     string
	Lines    []Line
	PhotoURL string
	QR       *QR
}

// Document is the presentation model every format is rendered from.
type Document struct {
	Type         string
	Sections     Sections
	Info         []Line
	Columns      []Column
	Rows         [][]string
	Pages        []Page[Slip]
	GridColumns  int
	EmptyMessage string
	GeneratedAt  time.Time
}

// ItemCount is the number of real rows or slips.
func (d *Document) ItemCount() int {
	if d.Pages != nil {
		return len(Flatten(d.Pages))
	}
	return len(d.Rows)
}

// Headers returns the column labels.
func (d *Document) Headers() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Label
	}
	return out
}

// Output is a rendered report ready to be written to the client.
type Output struct {
	Data        []byte
	Filename    string
	ContentType string
	Items       int
}

// RenderRequest is the body of POST /reports/:type/render.
type RenderRequest struct {
	Payload Payload `json:"payload"`
}
