// Package identity canonicalizes raw phone-like user keys.
package identity

import "strings"

// Length is the number of trailing digits kept in a normalized identity.
const Length = 10

// Normalize strips every non-digit character from raw and keeps the last
// Length digits. Empty or digit-free input yields "".
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > Length {
		digits = digits[len(digits)-Length:]
	}
	return digits
}

// NormalizeAll normalizes every entry of raw, dropping empties and duplicates
// while keeping first-seen order.
func NormalizeAll(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		id := Normalize(r)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Valid reports whether id is a non-empty normalized identity.
func Valid(id string) bool {
	return id != "" && Normalize(id) == id
}
