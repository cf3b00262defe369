// Package domain defines the persistent design/build/test entities, value types,
// and rule evaluation primitives used by dbtlineage.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence tables.
const (
	// EntityDesign identifies an abstract engineered sequence.
	EntityDesign EntityType = "design"
	// EntityBuild identifies a physical construct realizing a design.
	EntityBuild EntityType = "build"
	// EntityTest identifies an experimental result.
	EntityTest EntityType = "test"
)

// SequenceKind classifies the alphabet of a stored sequence.
type SequenceKind string

// Supported sequence kinds.
const (
	SequenceProtein SequenceKind = "protein"
	SequenceDNA     SequenceKind = "dna"
)

// BuildStatus enumerates the build workflow states.
type BuildStatus string

// Build workflow states: planned -> in_progress -> completed | failed.
const (
	BuildStatusPlanned    BuildStatus = "planned"
	BuildStatusInProgress BuildStatus = "in_progress"
	BuildStatusCompleted  BuildStatus = "completed"
	BuildStatusFailed     BuildStatus = "failed"
)

// MatchConfidence is the qualitative label assigned to a matching tier outcome.
type MatchConfidence string

// Confidence labels, weakest first.
const (
	ConfidenceNone   MatchConfidence = "none"
	ConfidenceLow    MatchConfidence = "low"
	ConfidenceMedium MatchConfidence = "medium"
	ConfidenceHigh   MatchConfidence = "high"
)

// MatchMethod names the tier that produced a match.
type MatchMethod string

// Match methods in tier order.
const (
	MethodNone     MatchMethod = "none"
	MethodSequence MatchMethod = "sequence"
	MethodMutation MatchMethod = "mutation"
	MethodAlias    MatchMethod = "alias"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Design is the abstract biological design concept.
type Design struct {
	Base
	Lineage
	Name         string       `json:"name"`
	Alias        string       `json:"alias,omitempty"`
	Description  string       `json:"description,omitempty"`
	SequenceKind SequenceKind `json:"sequence_kind"`
	Active       bool         `json:"active"`
}

// Build is a physical construct realizing exactly one Design. Its lineage chains
// against other builds, never designs.
type Build struct {
	Base
	Lineage
	Name          string      `json:"name"`
	Alias         string      `json:"alias,omitempty"`
	DesignID      string      `json:"design_id"`
	ConstructType string      `json:"construct_type,omitempty"`
	Status        BuildStatus `json:"status"`
	Active        bool        `json:"active"`
}

// Test is an experimental result attached to a design and/or build.
// The match fields are written once when the test is created.
type Test struct {
	Base
	Name            string          `json:"name"`
	Alias           string          `json:"alias,omitempty"`
	TestType        string          `json:"test_type,omitempty"`
	AssayName       string          `json:"assay_name,omitempty"`
	Protocol        string          `json:"protocol,omitempty"`
	ResultValue     *float64        `json:"result_value,omitempty"`
	ResultUnit      string          `json:"result_unit,omitempty"`
	ResultType      string          `json:"result_type,omitempty"`
	DesignID        *string         `json:"design_id,omitempty"`
	BuildID         *string         `json:"build_id,omitempty"`
	MatchConfidence MatchConfidence `json:"match_confidence"`
	MatchMethod     MatchMethod     `json:"match_method"`
	MatchScore      float64         `json:"match_score"`
	Technician      string          `json:"technician,omitempty"`
	LabConditions   map[string]any  `json:"lab_conditions,omitempty"`
	Active          bool            `json:"active"`
}

// Change describes a mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions. Entities are never hard-deleted, so deactivation is an update.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
	// Cause optionally classifies the violation with a sentinel error.
	Cause error
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}

// Is reports whether any blocking violation carries target as its cause.
func (e RuleViolationError) Is(target error) bool {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock && v.Cause != nil && v.Cause == target {
			return true
		}
	}
	return false
}
