package domain

import (
	"fmt"

	"dbtlineage/pkg/lineage"
)

// Lineage carries the content-addressed versioning fields shared by designs and
// builds. NormalizedSequence, LineageHash and Generation are derived by Rehash
// and are overwritten whenever the entity is persisted.
type Lineage struct {
	Sequence           string   `json:"sequence"`
	NormalizedSequence string   `json:"normalized_sequence"`
	Mutations          []string `json:"mutations"`
	ParentID           *string  `json:"parent_id,omitempty"`
	LineageHash        string   `json:"lineage_hash"`
	Generation         int      `json:"generation"`
}

// Rehash recomputes the derived fields against parent, which must be nil for
// roots and the resolved parent lineage otherwise.
func (l *Lineage) Rehash(parent *Lineage) error {
	normalized, err := lineage.NormalizeSequence(l.Sequence)
	if err != nil {
		return err
	}
	if (l.ParentID != nil) != (parent != nil) {
		return fmt.Errorf("%w: parent reference and resolved parent disagree", ErrInvalidInput)
	}
	l.Mutations = lineage.DedupeMutations(l.Mutations)
	l.NormalizedSequence = normalized
	parentHash := ""
	l.Generation = 0
	if parent != nil {
		parentHash = parent.LineageHash
		l.Generation = parent.Generation + 1
	}
	l.LineageHash = lineage.Hash(parentHash, l.Mutations, normalized)
	return nil
}

// SameContent reports whether the hashed inputs of two lineages are identical.
func (l Lineage) SameContent(other Lineage) bool {
	if l.Sequence != other.Sequence || !equalStrings(l.Mutations, other.Mutations) {
		return false
	}
	switch {
	case l.ParentID == nil && other.ParentID == nil:
		return true
	case l.ParentID == nil || other.ParentID == nil:
		return false
	default:
		return *l.ParentID == *other.ParentID
	}
}

// CloneLineage returns a deep copy safe to hand across store boundaries.
func CloneLineage(l Lineage) Lineage {
	cp := l
	if l.Mutations != nil {
		cp.Mutations = append([]string(nil), l.Mutations...)
	}
	if l.ParentID != nil {
		id := *l.ParentID
		cp.ParentID = &id
	}
	return cp
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
