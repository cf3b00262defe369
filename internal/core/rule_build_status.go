package core

import (
	"context"
	"fmt"

	"dbtlineage/pkg/domain"
)

// BuildStatusTransitionRule blocks illegal build workflow transitions.
func BuildStatusTransitionRule() domain.Rule {
	return buildStatusTransitionRule{}
}

type buildStatusTransitionRule struct{}

type lifecycleMachine struct {
	label    string
	valid    map[string]struct{}
	terminal map[string]struct{}
	next     map[string]map[string]struct{}
}

var buildLifecycle = lifecycleMachine{
	label: "build",
	valid: toSet(
		string(domain.BuildStatusPlanned),
		string(domain.BuildStatusInProgress),
		string(domain.BuildStatusCompleted),
		string(domain.BuildStatusFailed),
	),
	terminal: toSet(string(domain.BuildStatusCompleted), string(domain.BuildStatusFailed)),
	next: map[string]map[string]struct{}{
		string(domain.BuildStatusPlanned):    toSet(string(domain.BuildStatusInProgress), string(domain.BuildStatusFailed)),
		string(domain.BuildStatusInProgress): toSet(string(domain.BuildStatusCompleted), string(domain.BuildStatusFailed)),
	},
}

func (buildStatusTransitionRule) Name() string { return "build_status_transition" }

func (buildStatusTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	m := buildLifecycle
	for _, change := range changes {
		if change.Entity != domain.EntityBuild {
			continue
		}
		after, ok := change.After.(domain.Build)
		if !ok {
			continue
		}
		to := string(after.Status)
		if _, valid := m.valid[to]; !valid {
			res.Violations = append(res.Violations, transitionViolation(after.ID, fmt.Sprintf("%s %s is set to invalid status %s", m.label, after.ID, to)))
			continue
		}
		before, ok := change.Before.(domain.Build)
		if !ok {
			continue
		}
		from := string(before.Status)
		if from == to {
			continue
		}
		if _, terminal := m.terminal[from]; terminal {
			res.Violations = append(res.Violations, transitionViolation(after.ID, fmt.Sprintf("cannot move %s %s from terminal status %s to %s", m.label, after.ID, from, to)))
			continue
		}
		if _, allowed := m.next[from][to]; !allowed {
			res.Violations = append(res.Violations, transitionViolation(after.ID, fmt.Sprintf("%s %s cannot move from %s to %s", m.label, after.ID, from, to)))
		}
	}
	return res, nil
}

func transitionViolation(id, message string) domain.Violation {
	return domain.Violation{
		Rule:     "build_status_transition",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityBuild,
		EntityID: id,
		Cause:    domain.ErrInvalidTransition,
	}
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
