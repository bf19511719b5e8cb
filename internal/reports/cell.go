package reports

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// Placeholder is shown for a value that is missing, null or blank.
const Placeholder = "—"

// Cell renders one display value. Missing, null and blank values become
// Placeholder; 0 and false are values and render as "0" and "false".
// Maps, slices and structs render as JSON instead of failing.
func Cell(v interface{}) string {
	if s, ok := display(v); ok {
		return s
	}
	return Placeholder
}

// Present reports whether v would render as something other than Placeholder.
func Present(v interface{}) bool {
	_, ok := display(v)
	return ok
}

// Coalesce renders the first present value, or Placeholder.
func Coalesce(values ...interface{}) string {
	for _, v := range values {
		if s, ok := display(v); ok {
			return s
		}
	}
	return Placeholder
}

// Lookup renders the first present value among keys of row. Later keys are
// alternate spellings of the first.
func Lookup(row map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := display(row[k]); ok {
			return s
		}
	}
	return Placeholder
}

func display(v interface{}) (string, bool) {
	if v == nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, strings.TrimSpace(x) != ""
	case time.Time:
		if x.IsZero() {
			return "", false
		}
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 {
			return x.Format("2006-01-02"), true
		}
		return x.Format("2006-01-02 15:04"), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "", false
		}
		return display(rv.Elem().Interface())
	case reflect.String:
		s := rv.String()
		return s, strings.TrimSpace(s) != ""
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	case reflect.Slice, reflect.Map:
		if rv.IsNil() {
			return "", false
		}
	case reflect.Func, reflect.Chan:
		return fmt.Sprintf("%T", v), true
	}

	// ConfigStd sorts map keys so the same payload always renders the same cell.
	b, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v), true
	}
	return string(b), true
}
