package eventtype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveKey(t *testing.T) {
	cases := []struct {
		label string
		want  string
	}{
		{"Phone Number", "phone_number"},
		{"T-Shirt Size", "tshirt_size"},
		{"  Leading and trailing  ", "_leading_and_trailing_"},
		{"Multiple   spaces\tand\ttabs", "multiple_spaces_and_tabs"},
		{"Already_snake_case", "already_snake_case"},
		{"Année 2024!", "anne_2024"},
		{"ID #", "id_"},
		{"", ""},
		{"!!!", ""},
		{"Email / Phone", "email__phone"},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveKey(tc.label))
		})
	}
}

func TestDeriveKeyOutputAlphabet(t *testing.T) {
	labels := []string{"Guest Name", "Email / Phone", "Dietary (veg?)", "Size: S|M|L", "Ünïcödé Tëxt", "a\n\nb"}
	for _, l := range labels {
		k := DeriveKey(l)
		for _, r := range k {
			ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
			assert.Truef(t, ok, "key %q from %q has %q", k, l, r)
		}
		assert.Equal(t, k, DeriveKey(k), "derivation is idempotent")
	}
}

func TestValidKey(t *testing.T) {
	assert.True(t, ValidKey("phone_number"))
	assert.False(t, ValidKey(""))
	assert.False(t, ValidKey("Phone"))
	assert.False(t, ValidKey("has space"))
	long := make([]byte, 51)
	for i := range long {
		long[i] = 'a'
	}
	assert.False(t, ValidKey(string(long)))
	assert.True(t, ValidKey(string(long[:50])))
}
