package guest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sharath018/school-management-backend/internal/auditlog"
	"github.com/sharath018/school-management-backend/internal/eventtype"
	"github.com/sharath018/school-management-backend/internal/guestform"
	"github.com/sharath018/school-management-backend/middleware"
	"github.com/xuri/excelize/v2"
)

const maxImportRows = 5000

var baseColumns = []string{"full_name", "phone", "guest_type", "invite_count", "status"}

// readTable returns the header and data rows of a CSV or XLSX upload.
func readTable(filename string, r io.Reader) ([]string, [][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read import file")
	}

	var records [][]string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, nil, errors.Wrap(err, "open workbook")
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil, errors.New("workbook has no sheets")
		}
		if records, err = f.GetRows(sheets[0]); err != nil {
			return nil, nil, errors.Wrap(err, "read sheet")
		}
	default:
		cr := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		if records, err = cr.ReadAll(); err != nil {
			return nil, nil, errors.Wrap(err, "parse csv")
		}
	}
	if len(records) == 0 {
		return nil, nil, ErrInvalidCSVHead
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = eventtype.DeriveKey(h)
	}
	return header, records[1:], nil
}

// supportedColumns lists the base columns then the form's field keys.
func supportedColumns(form *guestform.Form) []string {
	cols := append([]string{}, baseColumns...)
	for _, in := range form.Inputs() {
		cols = append(cols, in.Key)
	}
	return cols
}

// ===========================
// 📥 Import guests from CSV or XLSX
// Rows are created one by one; a bad row is reported and skipped.
func (s *Service) Import(ctx context.Context, eventID uint, filename string, r io.Reader, ac middleware.AccessContext, schoolID uint, ip string) (*ImportResult, error) {
	if !ac.CanWrite() {
		return nil, ErrWriteDenied
	}
	e, err := s.Events.GetEvent(ctx, schoolID, eventID)
	if err != nil {
		return nil, err
	}
	form, err := s.form(ctx, e)
	if err != nil {
		return nil, err
	}
	result := &ImportResult{Errors: []ImportError{}, SupportedColumns: supportedColumns(form)}

	header, rows, err := readTable(filename, r)
	if err != nil {
		return nil, err
	}
	nameCol := -1
	for i, h := range header {
		if h == "full_name" || (h == "name" && nameCol < 0) {
			nameCol = i
		}
	}
	if nameCol < 0 {
		return nil, ErrInvalidCSVHead
	}
	if len(rows) > maxImportRows {
		return nil, fmt.Errorf("import is limited to %d rows", maxImportRows)
	}

	for i, rec := range rows {
		line := i + 2
		cell := func(col string) string {
			for j, h := range header {
				if h == col && j < len(rec) {
					return strings.TrimSpace(rec[j])
				}
			}
			return ""
		}
		if blankRecord(rec) {
			continue
		}

		req, answers, err := parseRow(form, header, rec, cell)
		if err == nil && nameCol < len(rec) {
			req.FullName = strings.TrimSpace(rec[nameCol])
		}
		if err == nil && req.FullName == "" {
			err = errors.New("full_name is required")
		}
		if err == nil {
			_, err = s.insert(ctx, e, form, req, answers, ac.UserID)
		}
		if err != nil {
			result.Errors = append(result.Errors, ImportError{Row: line, Message: err.Error()})
			continue
		}
		result.Created++
	}

	status := auditlog.StatusSuccess
	if result.Created == 0 && len(result.Errors) > 0 {
		status = auditlog.StatusFailure
	}
	s.audit(ctx, ac, schoolID, "GUESTS_IMPORTED", map[string]interface{}{"event_id": eventID, "created": result.Created, "failed": len(result.Errors)}, ip, status)
	return result, nil
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseRow(form *guestform.Form, header, rec []string, cell func(string) string) (*GuestRequest, guestform.Answers, error) {
	req := &GuestRequest{Phone: cell("phone")}
	if len(req.Phone) > 20 {
		return nil, nil, errors.New("phone is longer than 20 characters")
	}
	if t := strings.ToLower(cell("guest_type")); t != "" {
		if !validType(t) {
			return nil, nil, fmt.Errorf("unknown guest_type %q", t)
		}
		req.GuestType = t
	}
	if n := cell("invite_count"); n != "" {
		v, err := strconv.Atoi(n)
		if err != nil || v < 1 || v > 100 {
			return nil, nil, fmt.Errorf("invite_count %q must be between 1 and 100", n)
		}
		req.InviteCount = v
	}
	if st := strings.ToLower(cell("status")); st != "" {
		if st != StatusInvited && st != StatusBlocked {
			return nil, nil, fmt.Errorf("status %q cannot be imported", st)
		}
		req.Status = st
	}

	answers := guestform.Answers{}
	for j, h := range header {
		in, ok := form.InputByKey(h)
		if !ok || j >= len(rec) {
			continue
		}
		raw := strings.TrimSpace(rec[j])
		var v guestform.Value
		var err error
		if in.Shape == guestform.ShapeChoices {
			v, err = guestform.DecodeAny(in, splitList(raw))
		} else {
			v, err = guestform.DecodeAny(in, raw)
		}
		if err != nil {
			return nil, nil, err
		}
		answers[in.FieldID] = v
	}
	return req, answers, nil
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == ',' || r == '|' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validType(t string) bool {
	for _, g := range guestTypes {
		if g == t {
			return true
		}
	}
	return false
}
