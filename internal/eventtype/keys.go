package eventtype

import (
	"strings"
	"unicode"
)

const maxKeyLen = 50

// DeriveKey turns a label into a storage key: lowercase, whitespace runs become
// a single underscore, anything outside [a-z0-9_] is dropped.
func DeriveKey(label string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range strings.ToLower(label) {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
				inSpace = true
			}
			continue
		}
		inSpace = false
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidKey reports whether key is already in derived form and within length.
func ValidKey(key string) bool {
	return key != "" && len(key) <= maxKeyLen && DeriveKey(key) == key
}
