package model

import (
	"fmt"
	"strings"
)

// unknownName is the text form of any value outside an enumeration.
const unknownName = "UNKNOWN"

// enumName returns the text form of v, where names[0] belongs to value 1.
// The zero value of every enumeration is deliberately unnamed so that an
// uninitialised field can never be mistaken for a real state.
func enumName[T ~int](v T, names []string) string {
	i := int(v) - 1
	if i < 0 || i >= len(names) {
		return unknownName
	}
	return names[i]
}

// parseEnum resolves s (case-insensitive, '-' and ' ' accepted for '_')
// against names.
func parseEnum[T ~int](kind, s string, names []string) (T, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	for i, n := range names {
		if n == norm {
			return T(i + 1), nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", kind, s)
}
