package domain

import "time"

// Candidate is the single winner of an entity lookup: exactly one of Design or
// Build is set, as named by Kind.
type Candidate struct {
	Kind   EntityType
	Design *Design
	Build  *Build
}

// DesignCandidate wraps a design.
func DesignCandidate(d Design) Candidate {
	return Candidate{Kind: EntityDesign, Design: &d}
}

// BuildCandidate wraps a build.
func BuildCandidate(b Build) Candidate {
	return Candidate{Kind: EntityBuild, Build: &b}
}

// ID returns the wrapped entity identifier.
func (c Candidate) ID() string {
	switch c.Kind {
	case EntityDesign:
		if c.Design != nil {
			return c.Design.ID
		}
	case EntityBuild:
		if c.Build != nil {
			return c.Build.ID
		}
	}
	return ""
}

// Alias returns the wrapped entity alias.
func (c Candidate) Alias() string {
	switch {
	case c.Kind == EntityDesign && c.Design != nil:
		return c.Design.Alias
	case c.Kind == EntityBuild && c.Build != nil:
		return c.Build.Alias
	}
	return ""
}

// Lineage returns the wrapped entity lineage fields.
func (c Candidate) Lineage() Lineage {
	switch {
	case c.Kind == EntityDesign && c.Design != nil:
		return c.Design.Lineage
	case c.Kind == EntityBuild && c.Build != nil:
		return c.Build.Lineage
	}
	return Lineage{}
}

// CreatedAt returns the wrapped entity creation time.
func (c Candidate) CreatedAt() time.Time {
	switch {
	case c.Kind == EntityDesign && c.Design != nil:
		return c.Design.CreatedAt
	case c.Kind == EntityBuild && c.Build != nil:
		return c.Build.CreatedAt
	}
	return time.Time{}
}

// IsZero reports whether the candidate wraps nothing.
func (c Candidate) IsZero() bool {
	return c.ID() == ""
}
