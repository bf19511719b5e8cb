package guestform

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sharath018/school-management-backend/internal/eventtype"
)

// Input is one rendered field.
type Input struct {
	FieldID     uint                    `json:"field_id"`
	Key         string                  `json:"key"`
	Label       string                  `json:"label"`
	FieldType   eventtype.FieldType     `json:"field_type"`
	Control     Control                 `json:"control"`
	Shape       Shape                   `json:"shape"`
	Required    bool                    `json:"required"`
	Placeholder string                  `json:"placeholder,omitempty"`
	HelpText    string                  `json:"help_text,omitempty"`
	Options     []eventtype.FieldOption `json:"options,omitempty"`
}

func (in Input) hasOption(value string) bool {
	for _, o := range in.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// Section is a group's inputs; the ungrouped section has no GroupID.
type Section struct {
	GroupID *uint   `json:"group_id,omitempty"`
	Title   string  `json:"title,omitempty"`
	Inputs  []Input `json:"inputs"`
}

type Form struct {
	Sections []Section `json:"sections"`

	byID map[uint]Input
}

// Answers maps field id to answer. A field id that is absent was not provided.
type Answers map[uint]Value

// FieldValue is one entry of the submitted field-value list.
type FieldValue struct {
	FieldID uint        `json:"field_id"`
	Value   interface{} `json:"value"`
}

// Stored is a persisted answer as read back from the database.
type Stored struct {
	FieldID uint
	Text    *string
	List    []string
}

// Render builds the form from enabled fields only: one section per group in
// group order, then the ungrouped fields. Inputs follow sort_order.
func Render(set *eventtype.FieldSet) (*Form, error) {
	groups := append([]eventtype.FieldGroup(nil), set.FieldGroups...)
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].SortOrder < groups[j].SortOrder })

	fields := make([]eventtype.Field, 0, len(set.Fields))
	for _, f := range set.Fields {
		if f.IsEnabled {
			fields = append(fields, f)
		}
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].SortOrder < fields[j].SortOrder })

	form := &Form{Sections: []Section{}, byID: make(map[uint]Input, len(fields))}
	bySection := make(map[uint][]Input)
	var ungrouped []Input
	known := make(map[uint]bool, len(groups))
	for _, g := range groups {
		known[g.ID] = true
	}

	for _, f := range fields {
		b, err := BindingFor(f.FieldType)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		in := Input{
			FieldID:   f.ID,
			Key:       f.Key,
			Label:     f.Label,
			FieldType: f.FieldType,
			Control:   b.Control,
			Shape:     b.Shape,
			Required:  f.IsRequired,
		}
		if f.Placeholder != nil {
			in.Placeholder = *f.Placeholder
		}
		if f.HelpText != nil {
			in.HelpText = *f.HelpText
		}
		if f.FieldType.HasOptions() {
			in.Options = []eventtype.FieldOption(f.Options)
		}
		form.byID[f.ID] = in

		if f.FieldGroupID != nil && known[*f.FieldGroupID] {
			bySection[*f.FieldGroupID] = append(bySection[*f.FieldGroupID], in)
		} else {
			ungrouped = append(ungrouped, in)
		}
	}

	for _, g := range groups {
		inputs := bySection[g.ID]
		if len(inputs) == 0 {
			continue
		}
		id := g.ID
		form.Sections = append(form.Sections, Section{GroupID: &id, Title: g.Title, Inputs: inputs})
	}
	if len(ungrouped) > 0 {
		form.Sections = append(form.Sections, Section{Inputs: ungrouped})
	}
	return form, nil
}

// Inputs lists every input in display order.
func (f *Form) Inputs() []Input {
	var out []Input
	for _, s := range f.Sections {
		out = append(out, s.Inputs...)
	}
	return out
}

func (f *Form) Input(fieldID uint) (Input, bool) {
	in, ok := f.byID[fieldID]
	return in, ok
}

func (f *Form) InputByKey(key string) (Input, bool) {
	for _, in := range f.byID {
		if in.Key == key {
			return in, true
		}
	}
	return Input{}, false
}

// Decode converts a JSON wire value into the typed answer for the input's shape.
func Decode(in Input, raw []byte) (Value, error) {
	var v interface{}
	if len(raw) == 0 {
		return Null(), nil
	}
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return Value{}, fmt.Errorf("%s: invalid JSON value", in.Key)
	}
	return DecodeAny(in, v)
}

// DecodeAny is Decode for an already unmarshalled value (string, float64,
// bool, []interface{}, nil). CSV imports call it with plain strings.
func DecodeAny(in Input, v interface{}) (Value, error) {
	if v == nil {
		return Null(), nil
	}
	switch in.Shape {
	case ShapeString:
		switch x := v.(type) {
		case string:
			return Text(x), nil
		case float64:
			return Text(strconv.FormatFloat(x, 'f', -1, 64)), nil
		}
	case ShapeNumber:
		switch x := v.(type) {
		case float64:
			return Number(x), nil
		case string:
			s := strings.TrimSpace(x)
			if s == "" {
				return Null(), nil
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return Value{}, fmt.Errorf("%s: %q is not a number", in.Key, x)
			}
			return Number(f), nil
		}
	case ShapeDate:
		if x, ok := v.(string); ok {
			s := strings.TrimSpace(x)
			if s == "" {
				return Text(""), nil
			}
			if _, err := time.Parse("2006-01-02", s); err != nil {
				return Value{}, fmt.Errorf("%s: %q is not a YYYY-MM-DD date", in.Key, x)
			}
			return Text(s), nil
		}
	case ShapeChoice:
		if x, ok := v.(string); ok {
			if x == "" {
				return Text(""), nil
			}
			if !in.hasOption(x) {
				return Value{}, fmt.Errorf("%s: %q is not one of the options", in.Key, x)
			}
			return Text(x), nil
		}
	case ShapeChoices:
		var items []string
		switch x := v.(type) {
		case []interface{}:
			for _, item := range x {
				s, ok := item.(string)
				if !ok {
					return Value{}, fmt.Errorf("%s: options must be strings", in.Key)
				}
				items = append(items, s)
			}
		case []string:
			items = x
		case string:
			if strings.TrimSpace(x) != "" {
				items = []string{x}
			}
		default:
			return Value{}, fmt.Errorf("%s: expected a list", in.Key)
		}
		for _, s := range items {
			if !in.hasOption(s) {
				return Value{}, fmt.Errorf("%s: %q is not one of the options", in.Key, s)
			}
		}
		return List(items...), nil
	case ShapeBool:
		switch x := v.(type) {
		case bool:
			return Bool(x), nil
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true", "yes", "1":
				return Bool(true), nil
			case "false", "no", "0":
				return Bool(false), nil
			case "":
				return Null(), nil
			}
		}
	}
	return Value{}, fmt.Errorf("%s: unexpected %T for a %s field", in.Key, v, in.FieldType)
}

// DecodeAll decodes a raw answer map keyed by field id. Unknown field ids and
// undecodable values are reported per field.
func (f *Form) DecodeAll(raw map[uint][]byte) (Answers, error) {
	answers := make(Answers, len(raw))
	fields := map[string]string{}
	for id, r := range raw {
		in, ok := f.Input(id)
		if !ok {
			fields[fmt.Sprintf("field_values.%d", id)] = "is not an enabled field of this event type"
			continue
		}
		v, err := Decode(in, r)
		if err != nil {
			fields["field_values."+in.Key] = err.Error()
			continue
		}
		answers[id] = v
	}
	if len(fields) > 0 {
		return nil, eventtype.NewValidationError(fields, nil)
	}
	return answers, nil
}

// Validate checks required inputs before anything is dropped by Transform.
func (f *Form) Validate(answers Answers) error {
	fields := map[string]string{}
	for _, in := range f.Inputs() {
		if !in.Required {
			continue
		}
		if v, ok := answers[in.FieldID]; !ok || v.IsEmpty() {
			fields["field_values."+in.Key] = in.Label + " is required"
		}
	}
	for id := range answers {
		if _, ok := f.byID[id]; !ok {
			fields[fmt.Sprintf("field_values.%d", id)] = "is not an enabled field of this event type"
		}
	}
	if len(fields) > 0 {
		return eventtype.NewValidationError(fields, nil)
	}
	return nil
}

// Transform produces the field-value list to submit. Unanswered fields
// (absent, null, blank, whitespace-only, empty list) are left out so a
// re-submit never blanks an earlier answer; 0 and false are kept.
func (f *Form) Transform(answers Answers) []FieldValue {
	out := []FieldValue{}
	for _, in := range f.Inputs() {
		v, ok := answers[in.FieldID]
		if !ok || v.IsEmpty() {
			continue
		}
		out = append(out, FieldValue{FieldID: in.FieldID, Value: v.Submitted()})
	}
	return out
}

// Prefill rebuilds answers from stored values for editing a guest.
func (f *Form) Prefill(stored []Stored) Answers {
	answers := make(Answers, len(stored))
	for _, s := range stored {
		in, ok := f.Input(s.FieldID)
		if !ok {
			continue
		}
		if in.Shape == ShapeChoices {
			answers[s.FieldID] = List(s.List...)
			continue
		}
		if s.Text == nil {
			continue
		}
		v, err := DecodeAny(in, *s.Text)
		if err != nil {
			v = Text(*s.Text)
		}
		answers[s.FieldID] = v
	}
	return answers
}
