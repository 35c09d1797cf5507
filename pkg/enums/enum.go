package enums

import (
	"fmt"
	"slices"
)

// parse maps value onto one of allowed, naming kind in the error.
func parse[T ~string](kind, value string, allowed []T) (T, error) {
	if v := T(value); slices.Contains(allowed, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
