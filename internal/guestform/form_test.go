package guestform

import (
	"testing"

	"github.com/sharath018/school-management-backend/internal/eventtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindingCoversAllFieldTypes(t *testing.T) {
	seen := map[eventtype.FieldType]Binding{}
	for _, ft := range eventtype.AllFieldTypes() {
		b, err := BindingFor(ft)
		require.NoError(t, err, "field type %q has no binding", ft)
		assert.NotEmpty(t, b.Control)
		assert.NotEmpty(t, b.Shape)
		seen[ft] = b
	}
	assert.Equal(t, Binding{ControlSwitch, ShapeBool}, seen[eventtype.FieldToggle])
	assert.Equal(t, Binding{ControlMultiChoice, ShapeChoices}, seen[eventtype.FieldMultiselect])
	assert.Equal(t, seen[eventtype.FieldText], seen[eventtype.FieldIDNumber])
	assert.Equal(t, seen[eventtype.FieldTextarea], seen[eventtype.FieldAddress])

	_, err := BindingFor("signature")
	assert.Error(t, err)
}

func ptr(s string) *string { return &s }
func uptr(u uint) *uint    { return &u }

// sampleSet has one field of every type plus a disabled one.
func sampleSet() *eventtype.FieldSet {
	opts := []eventtype.FieldOption{{Value: "a", Label: "A"}, {Value: "b", Label: "B"}}
	return &eventtype.FieldSet{
		FieldGroups: []eventtype.FieldGroup{
			{ID: 20, Title: "Second", SortOrder: 1},
			{ID: 10, Title: "First", SortOrder: 0},
			{ID: 30, Title: "Empty", SortOrder: 2},
		},
		Fields: []eventtype.Field{
			{ID: 1, Key: "name", Label: "Name", FieldType: eventtype.FieldText, IsEnabled: true, IsRequired: true, FieldGroupID: uptr(10), SortOrder: 1},
			{ID: 2, Key: "phone", Label: "Phone", FieldType: eventtype.FieldPhone, IsEnabled: true, FieldGroupID: uptr(10), SortOrder: 0, Placeholder: ptr("+91")},
			{ID: 3, Key: "age", Label: "Age", FieldType: eventtype.FieldNumber, IsEnabled: true, FieldGroupID: uptr(20)},
			{ID: 4, Key: "size", Label: "Size", FieldType: eventtype.FieldSelect, IsEnabled: true, Options: opts},
			{ID: 5, Key: "diet", Label: "Diet", FieldType: eventtype.FieldMultiselect, IsEnabled: true, Options: opts, SortOrder: 1},
			{ID: 6, Key: "vip", Label: "VIP", FieldType: eventtype.FieldToggle, IsEnabled: true, SortOrder: 2},
			{ID: 7, Key: "dob", Label: "DOB", FieldType: eventtype.FieldDate, IsEnabled: true, SortOrder: 3},
			{ID: 8, Key: "hidden", Label: "Hidden", FieldType: eventtype.FieldText, IsEnabled: false, IsRequired: true},
			{ID: 9, Key: "notes", Label: "Notes", FieldType: eventtype.FieldTextarea, IsEnabled: true, SortOrder: 4, Options: opts},
		},
	}
}

func TestRenderOrdersSectionsAndSkipsDisabled(t *testing.T) {
	form, err := Render(sampleSet())
	require.NoError(t, err)

	require.Len(t, form.Sections, 3, "empty groups are not rendered")
	assert.Equal(t, "First", form.Sections[0].Title)
	assert.Equal(t, "Second", form.Sections[1].Title)
	assert.Nil(t, form.Sections[2].GroupID, "ungrouped section comes last")

	var keys []string
	for _, in := range form.Inputs() {
		keys = append(keys, in.Key)
	}
	assert.Equal(t, []string{"phone", "name", "age", "size", "diet", "vip", "dob", "notes"}, keys)

	_, ok := form.Input(8)
	assert.False(t, ok, "disabled fields are not part of the form")

	notes, _ := form.Input(9)
	assert.Empty(t, notes.Options, "options only travel with choice fields")
	phone, _ := form.Input(2)
	assert.Equal(t, "+91", phone.Placeholder)
	assert.Equal(t, ControlSingleLine, phone.Control)
}

func TestTransformOmitsUnansweredButKeepsZeroAndFalse(t *testing.T) {
	form, err := Render(sampleSet())
	require.NoError(t, err)

	cases := []struct {
		name    string
		field   uint
		value   *Value // nil means the key is absent
		present bool
		want    interface{}
	}{
		{"empty string", 1, &Value{kind: kindText}, false, nil},
		{"whitespace", 1, func() *Value { v := Text("   "); return &v }(), false, nil},
		{"null", 3, func() *Value { v := Null(); return &v }(), false, nil},
		{"undefined", 3, nil, false, nil},
		{"empty list", 5, func() *Value { v := List(); return &v }(), false, nil},
		{"zero", 3, func() *Value { v := Number(0); return &v }(), true, "0"},
		{"false", 6, func() *Value { v := Bool(false); return &v }(), true, "false"},
		{"true", 6, func() *Value { v := Bool(true); return &v }(), true, "true"},
		{"decimal", 3, func() *Value { v := Number(12.5); return &v }(), true, "12.5"},
		{"list", 5, func() *Value { v := List("a", "b"); return &v }(), true, []string{"a", "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			answers := Answers{}
			if tc.value != nil {
				answers[tc.field] = *tc.value
			}
			out := form.Transform(answers)
			if !tc.present {
				for _, fv := range out {
					assert.NotEqual(t, tc.field, fv.FieldID)
				}
				return
			}
			require.Len(t, out, 1)
			assert.Equal(t, tc.field, out[0].FieldID)
			assert.Equal(t, tc.want, out[0].Value)
		})
	}
}

func TestValidateRunsBeforeOmission(t *testing.T) {
	form, err := Render(sampleSet())
	require.NoError(t, err)

	answers := Answers{1: Text("  "), 3: Number(0)}
	err = form.Validate(answers)
	var ve *eventtype.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "field_values.name")
	assert.NotContains(t, ve.Fields, "field_values.hidden", "disabled required fields are not enforced")

	answers[1] = Text("Asha")
	assert.NoError(t, form.Validate(answers))

	answers[8] = Text("not rendered")
	assert.Error(t, form.Validate(answers))
}

func TestDecode(t *testing.T) {
	form, err := Render(sampleSet())
	require.NoError(t, err)
	in := func(id uint) Input { i, _ := form.Input(id); return i }

	cases := []struct {
		name  string
		field uint
		raw   string
		want  interface{}
		err   bool
	}{
		{"text", 1, `"Asha"`, "Asha", false},
		{"text from number", 2, `9876543210`, "9876543210", false},
		{"null", 1, `null`, nil, false},
		{"number", 3, `0`, float64(0), false},
		{"numeric string", 3, `"42"`, float64(42), false},
		{"blank number", 3, `""`, nil, false},
		{"bad number", 3, `"forty"`, nil, true},
		{"nan", 3, `"NaN"`, nil, true},
		{"infinity", 3, `"Inf"`, nil, true},
		{"negative infinity", 3, `"-infinity"`, nil, true},
		{"choice", 4, `"a"`, "a", false},
		{"unknown choice", 4, `"z"`, nil, true},
		{"choices", 5, `["a","b"]`, []string{"a", "b"}, false},
		{"empty choices", 5, `[]`, []string{}, false},
		{"bad choices", 5, `["a","z"]`, nil, true},
		{"toggle", 6, `false`, false, false},
		{"toggle string", 6, `"true"`, true, false},
		{"date", 7, `"2024-03-01"`, "2024-03-01", false},
		{"blank date", 7, `""`, "", false},
		{"bad date", 7, `"01/03/2024"`, nil, true},
		{"wrong type", 6, `[1]`, nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Decode(in(tc.field), []byte(tc.raw))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, v.Interface())
		})
	}
}

func TestPrefillRoundTrip(t *testing.T) {
	form, err := Render(sampleSet())
	require.NoError(t, err)

	answers := Answers{1: Text("Asha"), 3: Number(7), 5: List("b"), 6: Bool(false), 7: Text("2024-01-31")}
	var stored []Stored
	for _, fv := range form.Transform(answers) {
		s := Stored{FieldID: fv.FieldID}
		switch v := fv.Value.(type) {
		case string:
			s.Text = &v
		case []string:
			s.List = v
		}
		stored = append(stored, s)
	}

	back := form.Prefill(stored)
	for id, want := range answers {
		assert.Equal(t, want.Interface(), back[id].Interface(), "field %d", id)
	}
}

func TestGraduationSubmitKeepsOnlyAnsweredField(t *testing.T) {
	set := &eventtype.FieldSet{
		FieldGroups: []eventtype.FieldGroup{{ID: 1, Title: "Contact"}},
		Fields: []eventtype.Field{
			{ID: 11, FieldGroupID: uptr(1), Key: eventtype.DeriveKey("Phone Number"), Label: "Phone Number", FieldType: eventtype.FieldPhone, IsEnabled: true},
			{ID: 12, Key: eventtype.DeriveKey("T-Shirt Size"), Label: "T-Shirt Size", FieldType: eventtype.FieldSelect, IsEnabled: true,
				Options: []eventtype.FieldOption{{Value: "M", Label: "Medium"}}},
		},
	}
	assert.Equal(t, "phone_number", set.Fields[0].Key)

	form, err := Render(set)
	require.NoError(t, err)
	answers, err := form.DecodeAll(map[uint][]byte{11: []byte(`""`), 12: []byte(`"M"`)})
	require.NoError(t, err)
	require.NoError(t, form.Validate(answers))

	assert.Equal(t, []FieldValue{{FieldID: 12, Value: "M"}}, form.Transform(answers))
}
