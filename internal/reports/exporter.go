package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// Exporter writes a Document in one output format.
type Exporter interface {
	Export(doc *Document, format string) (*Output, error)
}

type exporter struct {
	html *HTMLRenderer
}

func NewExporter(html *HTMLRenderer) Exporter {
	return &exporter{html: html}
}

func (e *exporter) Export(doc *Document, format string) (*Output, error) {
	format, err := NormalizeFormat(format)
	if err != nil {
		return nil, err
	}
	base := fmt.Sprintf("%s_%s", doc.Type, time.Now().Format("20060102_150405"))

	var (
		data []byte
		mime string
	)
	switch format {
	case FormatHTML:
		data, err = e.html.Render(doc)
		mime = "text/html; charset=utf-8"
	case FormatPDF:
		data, err = exportPDF(doc)
		mime = "application/pdf"
	case FormatExcel:
		data, err = exportExcel(doc)
		mime = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		data, err = exportCSV(doc)
		mime = "text/csv"
	}
	if err != nil {
		return nil, err
	}
	return &Output{Data: data, Filename: base + "." + format, ContentType: mime, Items: doc.ItemCount()}, nil
}

// ===========================
// 📄 CSV / Excel

func exportCSV(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(doc.Headers()); err != nil {
		return nil, err
	}
	for _, row := range doc.Rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportExcel(doc *Document) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(doc.Sections.Title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"0056B3"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}

	for i, h := range doc.Headers() {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, bold)
	}
	for r, row := range doc.Rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue(sheet, cell, v)
		}
	}
	if n := len(doc.Columns); n > 0 {
		last, _ := excelize.ColumnNumberToName(n)
		f.SetColWidth(sheet, "A", last, 20)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sheetName trims a title to Excel's 31 character limit and strips the
// characters sheet names may not contain.
func sheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return -1
		}
		return r
	}, title)
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	if strings.TrimSpace(name) == "" {
		return "Report"
	}
	return name
}

// ===========================
// 🖨️ PDF

func exportPDF(doc *Document) ([]byte, error) {
	orientation := "P"
	if doc.Pages == nil && len(doc.Columns) > 6 {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(12, 12, 12)
	pdf.SetAutoPageBreak(doc.Pages == nil, 15)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		for _, note := range doc.Sections.FooterNotes {
			pdf.CellFormat(0, 4, tr(note), "", 1, "C", false, 0, "")
		}
		pdf.CellFormat(0, 4, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	if len(doc.Pages) > 0 {
		for _, page := range doc.Pages {
			pdf.AddPage()
			pdfWatermark(pdf, doc.Sections, tr)
			pdfHeader(pdf, doc.Sections, tr)
			pdfNotes(pdf, doc.Sections.HeaderNotes, tr)
			pdfGrid(pdf, page, doc.GridColumns, tr)
		}
	} else {
		pdf.AddPage()
		pdfWatermark(pdf, doc.Sections, tr)
		pdfHeader(pdf, doc.Sections, tr)
		pdfNotes(pdf, doc.Sections.HeaderNotes, tr)
		for _, l := range doc.Info {
			pdf.SetFont("Arial", "B", 9)
			pdf.CellFormat(40, 6, tr(l.Label), "", 0, "L", false, 0, "")
			pdf.SetFont("Arial", "", 9)
			pdf.CellFormat(0, 6, tr(l.Value), "", 1, "L", false, 0, "")
		}
		if len(doc.Info) > 0 {
			pdf.Ln(3)
		}
		pdfNotes(pdf, doc.Sections.BodyNotes, tr)
		pdfTable(pdf, doc, tr)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pdfHeader prints only the parts of the header that have data. Logos are
// remote images and are left to the HTML format.
func pdfHeader(pdf *gofpdf.Fpdf, s Sections, tr func(string) string) {
	if s.SchoolName != "" {
		pdf.SetFont("Arial", "B", 16)
		pdf.CellFormat(0, 8, tr(s.SchoolName), "", 1, "C", false, 0, "")
	}
	if s.Title != "" {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 7, tr(s.Title), "", 1, "C", false, 0, "")
	}
	if s.HeaderText != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(0, 5, tr(s.HeaderText), "", "C", false)
	}
	pdf.Ln(3)
}

func pdfNotes(pdf *gofpdf.Fpdf, notes []string, tr func(string) string) {
	if len(notes) == 0 {
		return
	}
	pdf.SetFont("Arial", "", 9)
	for _, n := range notes {
		pdf.MultiCell(0, 5, tr(n), "", "L", false)
	}
	pdf.Ln(2)
}

// pdfWatermark draws the text variant only; image watermarks are HTML only.
func pdfWatermark(pdf *gofpdf.Fpdf, s Sections, tr func(string) string) {
	if s.Watermark == nil || !s.Watermark.IsText() {
		return
	}
	w, h := pdf.GetPageSize()
	pdf.SetFont("Arial", "B", 60)
	pdf.SetTextColor(120, 120, 120)
	pdf.SetAlpha(s.Watermark.Opacity, "Normal")
	pdf.TransformBegin()
	pdf.TransformRotate(s.Watermark.Rotation, w/2, h/2)
	text := tr(s.Watermark.Text)
	pdf.Text(w/2-pdf.GetStringWidth(text)/2, h/2, text)
	pdf.TransformEnd()
	pdf.SetAlpha(1, "Normal")
	pdf.SetTextColor(0, 0, 0)
}

func pdfTable(pdf *gofpdf.Fpdf, doc *Document, tr func(string) string) {
	if len(doc.Columns) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 8, tr(doc.EmptyMessage), "", 1, "C", false, 0, "")
		return
	}
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colW := (pageW - left - right) / float64(len(doc.Columns))

	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(0, 86, 179)
		pdf.SetTextColor(255, 255, 255)
		for _, c := range doc.Columns {
			pdf.CellFormat(colW, 7, fit(pdf, tr(c.Label), colW), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Arial", "", 8)
	}
	header()

	if len(doc.Rows) == 0 {
		pdf.CellFormat(colW*float64(len(doc.Columns)), 8, tr(doc.EmptyMessage), "1", 1, "C", false, 0, "")
		return
	}
	_, pageH := pdf.GetPageSize()
	for _, row := range doc.Rows {
		if pdf.GetY()+6 > pageH-20 {
			pdf.AddPage()
			header()
		}
		for _, v := range row {
			pdf.CellFormat(colW, 6, fit(pdf, tr(v), colW), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

// pdfGrid lays out one page of slips. Placeholder slots take their space but
// draw nothing, so every page has the same grid.
func pdfGrid(pdf *gofpdf.Fpdf, page Page[Slip], cols int, tr func(string) string) {
	if cols < 1 {
		cols = 1
	}
	rows := page.Rows(cols)
	pageW, pageH := pdf.GetPageSize()
	left, _, right, bottom := pdf.GetMargins()
	top := pdf.GetY()
	cellW := (pageW - left - right) / float64(cols)
	cellH := (pageH - top - bottom - 10) / float64(len(rows))
	small := cols > 4

	for r, row := range rows {
		for c, slot := range row {
			if slot.Placeholder {
				continue
			}
			x := left + float64(c)*cellW
			y := top + float64(r)*cellH
			pdf.SetDrawColor(80, 80, 80)
			pdf.Rect(x+1, y+1, cellW-2, cellH-2, "D")

			s := slot.Item
			inner := cellW - 6
			pdf.SetXY(x+3, y+3)
			if small {
				pdf.SetFont("Arial", "", 6)
				pdf.CellFormat(inner, 4, fit(pdf, tr(s.Heading), inner), "", 2, "C", false, 0, "")
				pdf.SetFont("Arial", "B", 12)
				pdf.CellFormat(inner, 8, fit(pdf, tr(s.Code), inner), "", 2, "C", false, 0, "")
				continue
			}
			pdf.SetFont("Arial", "B", 11)
			pdf.CellFormat(inner, 6, fit(pdf, tr(s.Heading), inner), "", 2, "L", false, 0, "")
			for _, l := range s.Lines {
				pdf.SetFont("Arial", "B", 8)
				pdf.CellFormat(25, 5, tr(l.Label), "", 0, "L", false, 0, "")
				pdf.SetFont("Arial", "", 8)
				pdf.CellFormat(inner-25, 5, fit(pdf, tr(l.Value), inner-25), "", 2, "L", false, 0, "")
				pdf.SetX(x + 3)
			}
			if s.QR != nil {
				pdf.Ln(2)
				pdf.SetX(x + 3)
				pdf.SetFont("Courier", "B", 10)
				pdf.CellFormat(inner, 6, fit(pdf, tr(s.QR.Code), inner), "1", 2, "C", false, 0, "")
			}
		}
	}
	pdf.SetXY(left, top+cellH*float64(len(rows)))
}

// fit shortens s with an ellipsis until it fits in width w.
func fit(pdf *gofpdf.Fpdf, s string, w float64) string {
	if pdf.GetStringWidth(s) <= w-2 {
		return s
	}
	// s is already cp1252, one byte per glyph.
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > w-2 {
		s = s[:len(s)-1]
	}
	return s + "..."
}
