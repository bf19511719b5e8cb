package guestform

import (
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

type kind uint8

const (
	kindNull kind = iota
	kindText
	kindNumber
	kindBool
	kindList
)

// Value is one decoded answer. The zero Value is null.
type Value struct {
	kind kind
	text string
	num  float64
	b    bool
	list []string
}

func Null() Value                { return Value{} }
func Text(s string) Value        { return Value{kind: kindText, text: s} }
func Number(f float64) Value     { return Value{kind: kindNumber, num: f} }
func Bool(b bool) Value          { return Value{kind: kindBool, b: b} }
func List(items ...string) Value { return Value{kind: kindList, list: append([]string{}, items...)} }

func (v Value) IsNull() bool { return v.kind == kindNull }

// IsEmpty reports whether the answer counts as not answered: null, blank or
// whitespace-only text, or an empty list. Zero and false are answers.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case kindNull:
		return true
	case kindText:
		return strings.TrimSpace(v.text) == ""
	case kindList:
		return len(v.list) == 0
	default:
		return false
	}
}

// Submitted is the wire form of the answer: a string, or a list of strings
// for multi-choice answers. Booleans become "true"/"false".
func (v Value) Submitted() interface{} {
	switch v.kind {
	case kindText:
		return v.text
	case kindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case kindBool:
		return strconv.FormatBool(v.b)
	case kindList:
		return append([]string{}, v.list...)
	default:
		return nil
	}
}

// Interface returns the in-memory form used by clients: string, float64,
// bool, []string or nil.
func (v Value) Interface() interface{} {
	switch v.kind {
	case kindText:
		return v.text
	case kindNumber:
		return v.num
	case kindBool:
		return v.b
	case kindList:
		return append([]string{}, v.list...)
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(v.Interface())
}
