package lineage

import (
	"regexp"
	"strings"
)

var mutationDelimiters = regexp.MustCompile(`[,;\s\v\x{85}\p{Z}]+`)

// ParseMutations splits a free-text mutation annotation into ordered tokens.
// Tokens are accepted verbatim; grammar such as L72F is not validated.
func ParseMutations(raw string) []string {
	out := []string{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	for _, token := range mutationDelimiters.Split(raw, -1) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		out = append(out, token)
	}
	return out
}

// DedupeMutations drops repeated tokens, keeping the first occurrence in place.
func DedupeMutations(mutations []string) []string {
	out := make([]string, 0, len(mutations))
	seen := make(map[string]struct{}, len(mutations))
	for _, m := range mutations {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// JoinMutations renders a mutation list in the canonical hashed form.
func JoinMutations(mutations []string) string {
	return strings.Join(mutations, ",")
}

// MutationSet is an unordered view over a mutation list used for scoring.
type MutationSet map[string]struct{}

// NewMutationSet builds a set from the supplied tokens.
func NewMutationSet(mutations []string) MutationSet {
	set := make(MutationSet, len(mutations))
	for _, m := range mutations {
		set[m] = struct{}{}
	}
	return set
}

// Equal reports whether both sets hold exactly the same tokens.
func (s MutationSet) Equal(other MutationSet) bool {
	if len(s) != len(other) {
		return false
	}
	for m := range s {
		if _, ok := other[m]; !ok {
			return false
		}
	}
	return true
}

// Intersects reports whether the sets share at least one token.
func (s MutationSet) Intersects(other MutationSet) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for m := range small {
		if _, ok := large[m]; ok {
			return true
		}
	}
	return false
}
