package core

import (
	"context"
	"fmt"

	"dbtlineage/pkg/domain"
)

// ImmutabilityRule blocks updates to fields that are fixed once written: a
// build's design, a test's match metadata, and the lineage content of any design
// or build that already has tests attached.
func ImmutabilityRule() domain.Rule {
	return immutabilityRule{}
}

type immutabilityRule struct{}

func (immutabilityRule) Name() string { return "immutability" }

func (immutabilityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	var tested map[string]struct{}
	testedIndex := func() map[string]struct{} {
		if tested == nil {
			tested = make(map[string]struct{})
			for _, t := range view.ListTests() {
				if t.DesignID != nil {
					tested["design:"+*t.DesignID] = struct{}{}
				}
				if t.BuildID != nil {
					tested["build:"+*t.BuildID] = struct{}{}
				}
			}
		}
		return tested
	}

	for _, change := range changes {
		if change.Action != domain.ActionUpdate || change.Before == nil || change.After == nil {
			continue
		}
		switch before := change.Before.(type) {
		case domain.Design:
			after, ok := change.After.(domain.Design)
			if !ok {
				continue
			}
			if _, ok := testedIndex()["design:"+before.ID]; ok && lineageChanged(before.Lineage, after.Lineage) {
				res.Violations = append(res.Violations, immutabilityViolation(domain.EntityDesign, before.ID, fmt.Sprintf("design %s has tests attached; its sequence, mutations and parent are fixed", before.ID)))
			}
		case domain.Build:
			after, ok := change.After.(domain.Build)
			if !ok {
				continue
			}
			if before.DesignID != after.DesignID {
				res.Violations = append(res.Violations, immutabilityViolation(domain.EntityBuild, before.ID, fmt.Sprintf("build %s cannot move from design %s to %s", before.ID, before.DesignID, after.DesignID)))
			}
			if _, ok := testedIndex()["build:"+before.ID]; ok && lineageChanged(before.Lineage, after.Lineage) {
				res.Violations = append(res.Violations, immutabilityViolation(domain.EntityBuild, before.ID, fmt.Sprintf("build %s has tests attached; its sequence, mutations and parent are fixed", before.ID)))
			}
		case domain.Test:
			after, ok := change.After.(domain.Test)
			if !ok {
				continue
			}
			if matchChanged(before, after) {
				res.Violations = append(res.Violations, immutabilityViolation(domain.EntityTest, before.ID, fmt.Sprintf("test %s match metadata is immutable", before.ID)))
			}
		}
	}
	return res, nil
}

func lineageChanged(before, after domain.Lineage) bool {
	return !before.SameContent(after) || before.LineageHash != after.LineageHash
}

func matchChanged(before, after domain.Test) bool {
	return !equalOptional(before.DesignID, after.DesignID) ||
		!equalOptional(before.BuildID, after.BuildID) ||
		before.MatchConfidence != after.MatchConfidence ||
		before.MatchMethod != after.MatchMethod ||
		before.MatchScore != after.MatchScore
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func immutabilityViolation(kind domain.EntityType, id, message string) domain.Violation {
	return domain.Violation{
		Rule:     "immutability",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   kind,
		EntityID: id,
		Cause:    domain.ErrImmutable,
	}
}
