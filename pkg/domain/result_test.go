package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	assert.False(t, result.HasBlocking())

	result.Merge(Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock, Message: "stale hash"}}})
	assert.True(t, result.HasBlocking())

	err := RuleViolationError{Result: result}
	assert.Contains(t, err.Error(), "stale hash")
}

func TestRuleViolationErrorMatchesCause(t *testing.T) {
	err := error(RuleViolationError{Result: Result{Violations: []Violation{
		{Rule: "immutability", Severity: SeverityBlock, Cause: ErrImmutable},
		{Rule: "status", Severity: SeverityWarn, Cause: ErrInvalidTransition},
	}}})
	assert.ErrorIs(t, err, ErrImmutable)
	assert.False(t, errors.Is(err, ErrInvalidTransition), "warnings never classify the error")

	var rv RuleViolationError
	require.ErrorAs(t, err, &rv)
	assert.Len(t, rv.Result.Violations, 2)
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	require.Len(t, original.Violations, 1)
	assert.Equal(t, "existing", original.Violations[0].Rule)
}

func TestRulesEngineEvaluate(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{"warn"})
	res, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Violations, 1)
	assert.Len(t, engine.Rules(), 1)
}

func TestRulesEngineEvaluateError(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(errorRule{})
	_, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	assert.Error(t, err)
}

func TestNotFoundErrorMatchesSentinel(t *testing.T) {
	err := error(NotFoundError{Entity: EntityDesign, ID: "d1"})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "design d1 not found", err.Error())
}

type staticRule struct{ name string }

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return Result{Violations: []Violation{{Rule: r.name, Severity: SeverityWarn}}}, nil
}

type emptyView struct{}

func (emptyView) ListDesigns() []Design            { return nil }
func (emptyView) ListBuilds() []Build              { return nil }
func (emptyView) ListTests() []Test                { return nil }
func (emptyView) FindDesign(string) (Design, bool) { return Design{}, false }
func (emptyView) FindBuild(string) (Build, bool)   { return Build{}, false }
func (emptyView) FindTest(string) (Test, bool)     { return Test{}, false }

type errorRule struct{}

func (errorRule) Name() string { return "error" }

func (errorRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return Result{}, errors.New("boom")
}
