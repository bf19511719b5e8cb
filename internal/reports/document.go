package reports

import (
	"fmt"
	"strings"
	"time"
)

// Builder turns a payload into a Document. qrService is the base URL of the
// QR image service.
type Builder func(p Payload, qrService string) *Document

var builders = map[string]Builder{
	ReportTypeRollSlips:      buildRollSlips,
	ReportTypeSecretLabels:   buildSecretLabels,
	ReportTypeStudentHistory: buildStudentHistory,
	ReportTypeGuestList:      buildGuestList,
	ReportTypeTable:          buildTable,
}

// Build projects p into the document for reportType.
func Build(reportType string, p Payload, qrService string) (*Document, error) {
	build, ok := builders[reportType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReportType, reportType)
	}
	if p == nil {
		p = Payload{}
	}
	doc := build(p, qrService)
	doc.Type = reportType
	doc.GeneratedAt = time.Now()
	if msg := p.String("empty_message"); msg != "" {
		doc.EmptyMessage = msg
	}
	if doc.EmptyMessage == "" {
		doc.EmptyMessage = "No records found"
	}
	return doc, nil
}

func tableRows(rows []map[string]interface{}, cols []Column) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = Lookup(row, c.Keys...)
		}
		out = append(out, cells)
	}
	return out
}

// withSection appends " - section" when the row has one.
func withSection(row map[string]interface{}, classKeys ...string) string {
	class := Lookup(row, classKeys...)
	if sec := Lookup(row, "section", "section_name"); sec != Placeholder && class != Placeholder {
		return class + " - " + sec
	}
	return class
}

// ===========================
// 🎫 Roll slips

var rollSlipColumns = []Column{
	{Label: "Roll No", Keys: []string{"roll_number", "roll_no"}},
	{Label: "Student Name", Keys: []string{"student_name", "full_name", "name"}},
	{Label: "Father Name", Keys: []string{"father_name"}},
	{Label: "Class", Keys: []string{"class_name", "class"}},
	{Label: "Section", Keys: []string{"section", "section_name"}},
	{Label: "Exam", Keys: []string{"exam_name", "exam"}},
}

func buildRollSlips(p Payload, qrService string) *Document {
	rows := p.Rows("items", "slips", "students")
	perPage := p.Int("per_page", RollSlipsPerPage)
	if perPage < 1 {
		perPage = RollSlipsPerPage
	}
	examName := p.String("exam_name")

	slips := make([]Slip, 0, len(rows))
	for _, row := range rows {
		code := Lookup(row, "roll_number", "roll_no")
		exam := Lookup(row, "exam_name", "exam")
		if exam == Placeholder && examName != "" {
			exam = examName
		}
		slips = append(slips, Slip{
			Heading: Lookup(row, "student_name", "full_name", "name"),
			Code:    code,
			Lines: []Line{
				{Label: "Roll No", Value: code},
				{Label: "Father Name", Value: Lookup(row, "father_name")},
				{Label: "Class", Value: withSection(row, "class_name", "class")},
				{Label: "Exam", Value: exam},
				{Label: "Exam Date", Value: Lookup(row, "exam_date")},
			},
			PhotoURL: safeURL(rawString(row, "photo_url", "picture_path")),
			QR:       NewQR(qrService, Lookup(row, "qr_code", "qr_payload", "roll_number", "roll_no"), 120),
		})
	}
	return &Document{
		Sections:    SectionsFrom(p, "Roll Number Slips"),
		Columns:     rollSlipColumns,
		Rows:        tableRows(rows, rollSlipColumns),
		Pages:       Chunk(slips, perPage),
		GridColumns: RollSlipColumns,
	}
}

// ===========================
// 🔢 Secret number labels

var secretLabelColumns = []Column{
	{Label: "Secret No", Keys: []string{"secret_number", "secret_no", "code"}},
	{Label: "Roll No", Keys: []string{"roll_number", "roll_no"}},
	{Label: "Exam", Keys: []string{"exam_name", "exam"}},
}

func buildSecretLabels(p Payload, qrService string) *Document {
	rows := p.Rows("items", "labels")
	slips := make([]Slip, 0, len(rows))
	for _, row := range rows {
		code := Lookup(row, "secret_number", "secret_no", "code")
		slips = append(slips, Slip{
			Heading: Lookup(row, "exam_name", "exam"),
			Code:    code,
			QR:      NewQR(qrService, Lookup(row, "qr_code", "secret_number", "secret_no", "code"), 80),
		})
	}
	return &Document{
		Sections:    SectionsFrom(p, "Secret Number Labels"),
		Columns:     secretLabelColumns,
		Rows:        tableRows(rows, secretLabelColumns),
		Pages:       Chunk(slips, SecretLabelsPerPage),
		GridColumns: SecretLabelColumns,
	}
}

// ===========================
// 📚 Student history

var studentInfo = []struct {
	label string
	keys  []string
}{
	{"Full Name", []string{"full_name", "name"}},
	{"Admission No", []string{"admission_no", "admission_number"}},
	{"Father Name", []string{"father_name"}},
	{"Current Class", []string{"current_class", "class_name"}},
	{"Date of Birth", []string{"birth_date", "dob"}},
	{"Status", []string{"status"}},
	{"Phone", []string{"guardian_phone", "phone"}},
	{"Student Code", []string{"student_code"}},
	{"Nationality", []string{"nationality"}},
	{"Address", []string{"home_address", "address"}},
}

var historyColumns = []Column{
	{Label: "Academic Year", Keys: []string{"academic_year"}},
	{Label: "Class", Keys: []string{"class", "class_name"}},
	{Label: "Admission Date", Keys: []string{"admission_date"}},
	{Label: "Status", Keys: []string{"enrollment_status", "status"}},
	{Label: "Attendance %", Keys: []string{"attendance_rate"}},
	{Label: "Exam Average", Keys: []string{"exam_average"}},
}

func buildStudentHistory(p Payload, _ string) *Document {
	student := p.Map("student")
	info := make([]Line, 0, len(studentInfo))
	for _, f := range studentInfo {
		info = append(info, Line{Label: f.label, Value: Lookup(student, f.keys...)})
	}
	rows := p.Rows("history", "records", "admissions")
	cols := p.Columns(rows, historyColumns)
	return &Document{
		Sections:     SectionsFrom(p, "Student Lifetime History Report"),
		Info:         info,
		Columns:      cols,
		Rows:         tableRows(rows, cols),
		EmptyMessage: "No history records found",
	}
}

// ===========================
// 👥 Guest list and generic tables

var guestColumns = []Column{
	{Label: "Code", Keys: []string{"guest_code"}},
	{Label: "Name", Keys: []string{"full_name", "name"}},
	{Label: "Phone", Keys: []string{"phone"}},
	{Label: "Type", Keys: []string{"guest_type"}},
	{Label: "Invited", Keys: []string{"invite_count"}},
	{Label: "Arrived", Keys: []string{"arrived_count"}},
	{Label: "Status", Keys: []string{"status"}},
}

func buildGuestList(p Payload, _ string) *Document {
	rows := p.Rows("rows", "guests", "items")
	cols := p.Columns(rows, guestColumns)
	return &Document{
		Sections:     SectionsFrom(p, "Guest List"),
		Columns:      cols,
		Rows:         tableRows(rows, cols),
		EmptyMessage: "No guests registered",
	}
}

func buildTable(p Payload, _ string) *Document {
	rows := p.Rows("rows", "items")
	cols := p.Columns(rows, nil)
	return &Document{
		Sections: SectionsFrom(p, "Report"),
		Columns:  cols,
		Rows:     tableRows(rows, cols),
	}
}

// rawString reads a string from row without placeholder substitution.
func rawString(row map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := row[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
