package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestCellZeroIsNotEmpty(t *testing.T) {
	var nilStr *string
	zero := 0
	cases := []struct {
		name string
		in   interface{}
		want string
	}{
		{"int zero", 0, "0"},
		{"float zero", 0.0, "0"},
		{"pointer to zero", &zero, "0"},
		{"false", false, "false"},
		{"empty string", "", Placeholder},
		{"whitespace", "  \t", Placeholder},
		{"nil", nil, Placeholder},
		{"nil pointer", nilStr, Placeholder},
		{"nil slice", []string(nil), Placeholder},
		{"text", "Asha", "Asha"},
		{"decimal", 12.5, "12.5"},
		{"whole float", float64(42), "42"},
		{"uint", uint(7), "7"},
		{"date", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "2024-03-01"},
		{"zero time", time.Time{}, Placeholder},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Cell(tc.in))
		})
	}
}

func TestCellSerializesNonScalars(t *testing.T) {
	assert.Equal(t, `["a","b"]`, Cell([]interface{}{"a", "b"}))
	assert.Equal(t, `{"a":1,"b":2}`, Cell(map[string]interface{}{"b": 2, "a": 1}), "keys are sorted")
	assert.Equal(t, `[]`, Cell([]int{}))
	assert.Equal(t, `{"X":1}`, Cell(struct{ X int }{1}))
}

func TestCoalesceAndLookup(t *testing.T) {
	assert.Equal(t, "0", Coalesce(nil, "", 0, "later"))
	assert.Equal(t, "later", Coalesce(nil, " ", "later"))
	assert.Equal(t, Placeholder, Coalesce())

	row := map[string]interface{}{"phone": "", "guardian_phone": nil, "alt_phone": "555"}
	assert.Equal(t, "555", Lookup(row, "guardian_phone", "phone", "alt_phone"))
	assert.Equal(t, Placeholder, Lookup(row, "missing"))
	assert.Equal(t, Placeholder, Lookup(nil, "missing"))
}

func TestChunkProperties(t *testing.T) {
	for _, n := range []int{0, 1, 3, 4, 5, 8, 9, 35, 36, 71} {
		for _, size := range []int{1, 4, 35} {
			items := make([]int, n)
			for i := range items {
				items[i] = i
			}
			pages := Chunk(items, size)

			assert.Len(t, pages, (n+size-1)/size, "n=%d size=%d", n, size)
			for i, p := range pages {
				assert.Len(t, p.Slots, size)
				assert.Equal(t, i+1, p.Number)
				if i < len(pages)-1 {
					assert.Zero(t, p.Placeholders(), "only the last page is padded")
				}
			}
			got := Flatten(pages)
			if n == 0 {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, items, got)
			}
		}
	}
}

func TestNineRollSlipsMakeThreePages(t *testing.T) {
	pages := Chunk(make([]Slip, 9), RollSlipsPerPage)
	require.Len(t, pages, 3)

	var real, pad []int
	for _, p := range pages {
		real = append(real, len(p.Items()))
		pad = append(pad, p.Placeholders())
	}
	assert.Equal(t, []int{4, 4, 1}, real)
	assert.Equal(t, []int{0, 0, 3}, pad)
}

func TestPageRows(t *testing.T) {
	page := Chunk(make([]Slip, 3), SecretLabelsPerPage)[0]
	rows := page.Rows(SecretLabelColumns)
	require.Len(t, rows, SecretLabelRows)
	for _, r := range rows {
		assert.Len(t, r, SecretLabelColumns)
	}
	assert.Equal(t, 32, page.Placeholders())
}

func decodePayload(t *testing.T, raw string) Payload {
	t.Helper()
	var p Payload
	require.NoError(t, sonic.UnmarshalString(raw, &p))
	return p
}

func rollSlipPayload(n int) Payload {
	items := make([]interface{}, n)
	for i := range items {
		items[i] = map[string]interface{}{
			"student_name": fmt.Sprintf("Student %d", i+1),
			"roll_no":      fmt.Sprintf("R-%03d", i+1),
			"class_name":   "10",
			"section":      "B",
		}
	}
	return Payload{"items": items, "exam_name": "Finals"}
}

func TestBuildRollSlips(t *testing.T) {
	doc, err := Build(ReportTypeRollSlips, rollSlipPayload(9), "https://qr.example.com/v1/create/")
	require.NoError(t, err)

	require.Len(t, doc.Pages, 3)
	assert.Equal(t, 9, doc.ItemCount())
	first := doc.Pages[0].Slots[0].Item
	assert.Equal(t, "Student 1", first.Heading)
	assert.Equal(t, "R-001", first.Code, "roll_no is an alternate spelling of roll_number")
	assert.Contains(t, first.Lines, Line{Label: "Class", Value: "10 - B"})
	assert.Contains(t, first.Lines, Line{Label: "Exam", Value: "Finals"})
	assert.Contains(t, first.Lines, Line{Label: "Father Name", Value: Placeholder})
	require.NotNil(t, first.QR)
	assert.Equal(t, "R-001", first.QR.Code)
	assert.Contains(t, first.QR.URL, "data=R-001")
	assert.Len(t, doc.Rows, 9)
}

func TestBuildUnknownType(t *testing.T) {
	_, err := Build("report_card", Payload{}, "")
	assert.ErrorIs(t, err, ErrUnknownReportType)
}

func TestSectionsOmittedWithoutData(t *testing.T) {
	s := SectionsFrom(Payload{}, "Report")
	assert.Equal(t, "Report", s.Title)
	assert.Nil(t, s.Watermark)
	assert.Empty(t, s.LeftLogo())
	assert.Empty(t, s.RightLogo())
	assert.Nil(t, s.HeaderNotes)

	s = SectionsFrom(decodePayload(t, `{
		"watermark": {"text": "DRAFT", "image_url": "https://cdn.example.com/w.png"},
		"logo": {"url": "https://cdn.example.com/logo.png", "position": "right"},
		"secondary_logo": "javascript:alert(1)",
		"header_notes": ["  ", "Bring your ID"],
		"body_notes": "Single note"
	}`), "Report")
	require.NotNil(t, s.Watermark)
	assert.True(t, s.Watermark.IsText())
	assert.Empty(t, s.Watermark.ImageURL, "text wins over image")
	assert.Equal(t, "https://cdn.example.com/logo.png", s.RightLogo())
	assert.Empty(t, s.LeftLogo(), "unsafe secondary logo is dropped")
	assert.Equal(t, []string{"Bring your ID"}, s.HeaderNotes)
	assert.Equal(t, []string{"Single note"}, s.BodyNotes)
}

func renderHTML(t *testing.T, reportType string, p Payload) string {
	t.Helper()
	doc, err := Build(reportType, p, "https://qr.example.com/v1/create/")
	require.NoError(t, err)
	out, err := NewExporter(MustHTMLRenderer()).Export(doc, FormatHTML)
	require.NoError(t, err)
	return string(out.Data)
}

func TestHTMLRollSlipsPadLastPage(t *testing.T) {
	html := renderHTML(t, ReportTypeRollSlips, rollSlipPayload(9))

	assert.Equal(t, 3, strings.Count(html, `<section class="page">`))
	assert.Equal(t, 3, strings.Count(html, `class="slip slip-placeholder"`))
	assert.Equal(t, 9, strings.Count(html, `<div class="slip">`))
	assert.Contains(t, html, "onerror=")
	assert.Contains(t, html, `<span class="qr-fallback" style="display:none">R-009</span>`)
	assert.NotContains(t, html, `class="watermark"`)
	assert.NotContains(t, html, `class="header-left"`)
	assert.NotContains(t, html, `class="notes header-notes"`)
}

func TestHTMLSecretLabelsGrid(t *testing.T) {
	items := make([]interface{}, 36)
	for i := range items {
		items[i] = map[string]interface{}{"secret_number": 1000 + i}
	}
	html := renderHTML(t, ReportTypeSecretLabels, Payload{"items": items})

	assert.Equal(t, 2, strings.Count(html, `<section class="page">`))
	assert.Equal(t, 34, strings.Count(html, `class="label slip-placeholder"`))
	assert.Equal(t, 10, strings.Count(html, `<div class="label-row">`))
	assert.Contains(t, html, `<div class="label-code">1035</div>`)
}

func TestHTMLTableCellsAndSections(t *testing.T) {
	p := decodePayload(t, `{
		"title": "Fees",
		"school_name": "Green Valley",
		"columns": [{"key": "name", "label": "Name"}, {"key": "due"}, {"key": "tags"}],
		"rows": [
			{"name": "Asha", "due": 0, "tags": ["a", "b"]},
			{"name": "", "due": null}
		],
		"watermark": {"image_url": "https://cdn.example.com/w.png"},
		"footer_notes": ["Generated by the office"]
	}`)
	html := renderHTML(t, ReportTypeTable, p)

	assert.Contains(t, html, "<td>0</td>")
	assert.Contains(t, html, "<td>—</td>")
	assert.Contains(t, html, `<th>Due</th>`)
	assert.Contains(t, html, `<td>[&#34;a&#34;,&#34;b&#34;]</td>`)
	assert.Contains(t, html, `class="watermark-image"`)
	assert.Contains(t, html, `<div class="school-name">Green Valley</div>`)
	assert.Contains(t, html, `class="notes footer-notes"`)
	assert.NotContains(t, html, `class="notes body-notes"`)
}

func TestHTMLEmptyStateMessages(t *testing.T) {
	html := renderHTML(t, ReportTypeGuestList, Payload{})
	assert.Contains(t, html, "No guests registered")

	html = renderHTML(t, ReportTypeRollSlips, Payload{"empty_message": "Nothing to print"})
	assert.Contains(t, html, `<div class="empty-state">Nothing to print</div>`)
}

func TestCSVAndExcelExports(t *testing.T) {
	p := Payload{"rows": []interface{}{
		map[string]interface{}{"full_name": "Asha", "invite_count": float64(0), "status": "invited"},
	}}
	doc, err := Build(ReportTypeGuestList, p, "")
	require.NoError(t, err)
	exp := NewExporter(MustHTMLRenderer())

	out, err := exp.Export(doc, FormatCSV)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out.Filename, ".csv"))
	records, err := csv.NewReader(bytes.NewReader(out.Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"Code", "Name", "Phone", "Type", "Invited", "Arrived", "Status"}, records[0])
	assert.Equal(t, []string{Placeholder, "Asha", Placeholder, Placeholder, "0", Placeholder, "invited"}, records[1])

	out, err = exp.Export(doc, "excel")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Items)
	f, err := excelize.OpenReader(bytes.NewReader(out.Data))
	require.NoError(t, err)
	defer f.Close()
	name, err := f.GetCellValue("Guest List", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Asha", name)

	_, err = exp.Export(doc, "docx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestPDFExport(t *testing.T) {
	exp := NewExporter(MustHTMLRenderer())
	for _, reportType := range ReportTypes() {
		p := rollSlipPayload(5)
		p["watermark"] = map[string]interface{}{"text": "CONFIDENTIAL"}
		doc, err := Build(reportType, p, "")
		require.NoError(t, err)
		out, err := exp.Export(doc, FormatPDF)
		require.NoError(t, err, reportType)
		assert.True(t, bytes.HasPrefix(out.Data, []byte("%PDF")), reportType)
	}
}

func TestBrandingFillsOnlyMissingKeys(t *testing.T) {
	b := &Branding{SchoolName: "Green Valley", LogoURL: "https://cdn.example.com/gv.png", WatermarkText: "GV"}
	p := b.Apply(Payload{"school_name": "Override"})
	assert.Equal(t, "Override", p["school_name"])
	assert.Equal(t, "https://cdn.example.com/gv.png", p["primary_logo"])
	assert.NotNil(t, p["watermark"])

	var none *Branding
	assert.Equal(t, Payload{"a": 1}, none.Apply(Payload{"a": 1}))
}

func TestDateRange(t *testing.T) {
	now := time.Date(2024, 5, 15, 10, 30, 0, 0, time.UTC)

	start, end, err := DateRange(DateRangeMonthly, "", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 5, 31, 23, 59, 59, 0, time.UTC), end)

	start, end, err = DateRange(DateRangeCustom, "2024-01-01", "2024-01-31", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC), end)

	_, _, err = DateRange(DateRangeCustom, "2024-02-01", "2024-01-01", now)
	assert.Error(t, err)

	start, _, err = DateRange("", "", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC), start)
}
