package lineage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Separator replaces every run of whitespace or hyphens in a normalized sequence.
// Whitespace is Unicode whitespace, so non-breaking and other wide spaces count.
const Separator = "..."

// ErrInvalidInput is returned when a required value is empty or malformed.
var ErrInvalidInput = errors.New("invalid input")

var (
	gapRun       = regexp.MustCompile(`[\s\v\x{85}\p{Z}-]+`)
	separatorRun = regexp.MustCompile(`(?:\.\.\.){2,}`)
)

// NormalizeSequence canonicalizes a raw sequence for hashing and comparison.
// The input is uppercased, whitespace/hyphen runs become Separator and repeated
// separators collapse to one. The result is stable under repeated application.
func NormalizeSequence(seq string) (string, error) {
	if strings.TrimSpace(seq) == "" {
		return "", fmt.Errorf("%w: sequence is empty", ErrInvalidInput)
	}
	out := strings.ToUpper(seq)
	out = gapRun.ReplaceAllString(out, Separator)
	out = separatorRun.ReplaceAllString(out, Separator)
	return out, nil
}

// HasSequence reports whether seq carries anything NormalizeSequence would accept.
func HasSequence(seq string) bool {
	return strings.TrimSpace(seq) != ""
}
