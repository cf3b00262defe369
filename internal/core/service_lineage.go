package core

import (
	"fmt"

	"dbtlineage/pkg/domain"
	"dbtlineage/pkg/lineage"
)

// LineageCheck is the outcome of re-deriving one stored lineage hash.
type LineageCheck struct {
	Kind     EntityType `json:"kind"`
	ID       string     `json:"id"`
	Stored   string     `json:"stored"`
	Expected string     `json:"expected"`
	Valid    bool       `json:"valid"`
}

// LineageOf walks parent pointers from the entity to its root. The entity is
// the first element and the root the last.
func (s *Service) LineageOf(kind EntityType, id string) ([]Candidate, error) {
	var chain []Candidate
	seen := make(map[string]struct{})
	for next := &id; next != nil; {
		if _, loop := seen[*next]; loop {
			return nil, fmt.Errorf("%w: %s %s has a parent cycle", domain.ErrInvalidInput, kind, *next)
		}
		seen[*next] = struct{}{}
		switch kind {
		case EntityDesign:
			d, err := s.GetDesign(*next)
			if err != nil {
				return nil, err
			}
			chain = append(chain, domain.DesignCandidate(d))
			next = d.ParentID
		case EntityBuild:
			b, err := s.GetBuild(*next)
			if err != nil {
				return nil, err
			}
			chain = append(chain, domain.BuildCandidate(b))
			next = b.ParentID
		default:
			return nil, fmt.Errorf("%w: %s has no lineage", domain.ErrInvalidInput, kind)
		}
	}
	return chain, nil
}

// VerifyLineage recomputes every stored hash of kind from the stored content and
// the parent's stored hash.
func (s *Service) VerifyLineage(kind EntityType) ([]LineageCheck, error) {
	type stored struct {
		id string
		l  domain.Lineage
	}
	var entries []stored
	hashes := make(map[string]string)
	switch kind {
	case EntityDesign:
		for _, d := range s.store.ListDesigns() {
			entries = append(entries, stored{d.ID, d.Lineage})
			hashes[d.ID] = d.LineageHash
		}
	case EntityBuild:
		for _, b := range s.store.ListBuilds() {
			entries = append(entries, stored{b.ID, b.Lineage})
			hashes[b.ID] = b.LineageHash
		}
	default:
		return nil, fmt.Errorf("%w: %s has no lineage", domain.ErrInvalidInput, kind)
	}

	checks := make([]LineageCheck, 0, len(entries))
	for _, e := range entries {
		check := LineageCheck{Kind: kind, ID: e.id, Stored: e.l.LineageHash}
		parentHash := ""
		parentOK := true
		if e.l.ParentID != nil {
			parentHash, parentOK = hashes[*e.l.ParentID]
		}
		normalized, err := lineage.NormalizeSequence(e.l.Sequence)
		if err == nil && parentOK {
			check.Expected = lineage.Hash(parentHash, e.l.Mutations, normalized)
			check.Valid = check.Expected == check.Stored
		}
		if !check.Valid {
			s.logger.Warn("lineage hash mismatch", "entity", kind, "id", e.id, "stored", check.Stored, "expected", check.Expected)
		}
		checks = append(checks, check)
	}
	return checks, nil
}
