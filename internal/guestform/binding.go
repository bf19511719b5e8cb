// Package guestform turns an event type's field definitions into a guest
// intake form and converts submitted answers into stored field values.
package guestform

import (
	"fmt"

	"github.com/sharath018/school-management-backend/internal/eventtype"
)

// Control is the input widget a client renders for a field.
type Control string

const (
	ControlSingleLine   Control = "single_line"
	ControlMultiLine    Control = "multi_line"
	ControlNumeric      Control = "numeric"
	ControlDatePicker   Control = "date_picker"
	ControlSingleChoice Control = "single_choice"
	ControlMultiChoice  Control = "multi_choice"
	ControlSwitch       Control = "switch"
)

// Shape is the in-memory type of an answer.
type Shape string

const (
	ShapeString  Shape = "string"  // free text
	ShapeNumber  Shape = "number"  // number or null
	ShapeDate    Shape = "date"    // YYYY-MM-DD or ''
	ShapeChoice  Shape = "choice"  // one option value
	ShapeChoices Shape = "choices" // option values
	ShapeBool    Shape = "bool"    // "true"/"false" once submitted
)

type Binding struct {
	Control Control `json:"control"`
	Shape   Shape   `json:"shape"`
}

// BindingFor maps every field type to exactly one control and value shape.
// Adding a FieldType without a case here fails TestBindingCoversAllFieldTypes.
func BindingFor(ft eventtype.FieldType) (Binding, error) {
	switch ft {
	case eventtype.FieldText, eventtype.FieldPhone, eventtype.FieldEmail, eventtype.FieldIDNumber:
		return Binding{ControlSingleLine, ShapeString}, nil
	case eventtype.FieldTextarea, eventtype.FieldAddress:
		return Binding{ControlMultiLine, ShapeString}, nil
	case eventtype.FieldNumber:
		return Binding{ControlNumeric, ShapeNumber}, nil
	case eventtype.FieldDate:
		return Binding{ControlDatePicker, ShapeDate}, nil
	case eventtype.FieldSelect:
		return Binding{ControlSingleChoice, ShapeChoice}, nil
	case eventtype.FieldMultiselect:
		return Binding{ControlMultiChoice, ShapeChoices}, nil
	case eventtype.FieldToggle:
		return Binding{ControlSwitch, ShapeBool}, nil
	default:
		return Binding{}, fmt.Errorf("no form binding for field type %q", ft)
	}
}
