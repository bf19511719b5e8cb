package eventtype

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound     = errors.New("event type not found")
	ErrUnknownGroup = errors.New("field group does not belong to event type")
	ErrUnknownField = errors.New("field does not belong to event type")
	ErrDuplicateKey = errors.New("duplicate field key")
	ErrWriteDenied  = errors.New("write access denied")
)

// ValidationError carries per-field messages keyed by a JSON path such as
// "fields[2].label".
type ValidationError struct {
	Fields map[string]string
	cause  error
}

func newValidationError(cause error) *ValidationError {
	return &ValidationError{Fields: map[string]string{}, cause: cause}
}

func (e *ValidationError) add(path, msg string) {
	if _, ok := e.Fields[path]; !ok {
		e.Fields[path] = msg
	}
}

func (e *ValidationError) empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	paths := make([]string, 0, len(e.Fields))
	for p := range e.Fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		parts = append(parts, fmt.Sprintf("%s: %s", p, e.Fields[p]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return e.cause }

// NewValidationError builds a ValidationError from path -> message pairs.
// cause may be nil or one of the package sentinels.
func NewValidationError(fields map[string]string, cause error) *ValidationError {
	ve := newValidationError(cause)
	for path, msg := range fields {
		ve.Fields[path] = msg
	}
	return ve
}
