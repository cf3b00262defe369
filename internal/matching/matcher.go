// Package matching resolves an incoming result row to the design or build it
// most likely describes. Tiers run in a fixed order (sequence, then mutation,
// then alias) and the first tier that clears its threshold wins.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dbtlineage/pkg/domain"
	"dbtlineage/pkg/lineage"
)

// Tier scores.
const (
	ScoreSequence         = 1.0
	ScoreMutationExact    = 0.8
	ScoreMutationPartial  = 0.6
	ScoreMutationDisjoint = 0.4
	ScoreAlias            = 0.7

	// MutationThreshold is the minimum mutation score admitted as a match.
	MutationThreshold = 0.5
)

// lookupKinds is the order entity kinds are searched within each tier.
var lookupKinds = []domain.EntityType{domain.EntityDesign, domain.EntityBuild}

// Repository is the read side of the entity store the matcher depends on.
type Repository interface {
	FindBySequence(ctx context.Context, kind domain.EntityType, normalized string) (domain.Candidate, bool, error)
	FindByMutationTokens(ctx context.Context, kind domain.EntityType, tokens []string) (domain.Candidate, bool, error)
	FindByAlias(ctx context.Context, kind domain.EntityType, alias string) (domain.Candidate, bool, error)
}

// Row carries the identifying fields of an incoming record.
type Row struct {
	Sequence  string
	Mutations string
	Alias     string
}

// MatchResult is the single winning tier for a row. DesignID and BuildID are
// set according to the kind of the matched entity.
type MatchResult struct {
	Matched    bool
	Candidate  domain.Candidate
	DesignID   *string
	BuildID    *string
	Confidence domain.MatchConfidence
	Method     domain.MatchMethod
	Score      float64
}

// NoMatch is returned when no tier clears its threshold.
func NoMatch() MatchResult {
	return MatchResult{Confidence: domain.ConfidenceNone, Method: domain.MethodNone}
}

func newMatch(c domain.Candidate, confidence domain.MatchConfidence, method domain.MatchMethod, score float64) MatchResult {
	res := MatchResult{
		Matched:    true,
		Candidate:  c,
		Confidence: confidence,
		Method:     method,
		Score:      score,
	}
	id := c.ID()
	switch c.Kind {
	case domain.EntityDesign:
		res.DesignID = &id
	case domain.EntityBuild:
		res.BuildID = &id
		if c.Build != nil && c.Build.DesignID != "" {
			designID := c.Build.DesignID
			res.DesignID = &designID
		}
	}
	return res
}

// Matcher runs the tiered strategy against a Repository.
type Matcher struct {
	repo Repository
}

// New returns a Matcher reading from repo.
func New(repo Repository) *Matcher {
	return &Matcher{repo: repo}
}

// Match resolves row. A lookup failure aborts the row and is returned wrapped
// with domain.ErrStorage; an unmatched row is not an error.
func (m *Matcher) Match(ctx context.Context, row Row) (MatchResult, error) {
	tiers := []func(context.Context, Row) (MatchResult, bool, error){
		m.matchSequence,
		m.matchMutations,
		m.matchAlias,
	}
	for _, tier := range tiers {
		res, ok, err := tier(ctx, row)
		if err != nil {
			if errors.Is(err, domain.ErrStorage) {
				return MatchResult{}, err
			}
			return MatchResult{}, fmt.Errorf("%w: %w", domain.ErrStorage, err)
		}
		if ok {
			return res, nil
		}
	}
	return NoMatch(), nil
}

func (m *Matcher) matchSequence(ctx context.Context, row Row) (MatchResult, bool, error) {
	if !lineage.HasSequence(row.Sequence) {
		return MatchResult{}, false, nil
	}
	normalized, err := lineage.NormalizeSequence(row.Sequence)
	if err != nil {
		return MatchResult{}, false, nil
	}
	for _, kind := range lookupKinds {
		c, ok, err := m.repo.FindBySequence(ctx, kind, normalized)
		if err != nil || ok {
			return newMatch(c, domain.ConfidenceHigh, domain.MethodSequence, ScoreSequence), ok, err
		}
	}
	return MatchResult{}, false, nil
}

func (m *Matcher) matchMutations(ctx context.Context, row Row) (MatchResult, bool, error) {
	tokens := lineage.ParseMutations(row.Mutations)
	if len(tokens) == 0 {
		return MatchResult{}, false, nil
	}
	incoming := lineage.NewMutationSet(tokens)
	for _, kind := range lookupKinds {
		c, ok, err := m.repo.FindByMutationTokens(ctx, kind, tokens)
		if err != nil {
			return MatchResult{}, false, err
		}
		if !ok {
			continue
		}
		score := MutationScore(incoming, lineage.NewMutationSet(c.Lineage().Mutations))
		if score < MutationThreshold {
			// A located but disjoint candidate ends the tier; the next
			// kind is not consulted.
			return MatchResult{}, false, nil
		}
		return newMatch(c, domain.ConfidenceMedium, domain.MethodMutation, score), true, nil
	}
	return MatchResult{}, false, nil
}

// MutationScore scores two parsed mutation sets: 0.8 when equal, 0.6 when they
// share an element, 0.4 otherwise.
func MutationScore(incoming, candidate lineage.MutationSet) float64 {
	switch {
	case incoming.Equal(candidate):
		return ScoreMutationExact
	case incoming.Intersects(candidate):
		return ScoreMutationPartial
	default:
		return ScoreMutationDisjoint
	}
}

func (m *Matcher) matchAlias(ctx context.Context, row Row) (MatchResult, bool, error) {
	alias := strings.TrimSpace(row.Alias)
	if alias == "" {
		return MatchResult{}, false, nil
	}
	for _, kind := range lookupKinds {
		c, ok, err := m.repo.FindByAlias(ctx, kind, alias)
		if err != nil || ok {
			return newMatch(c, domain.ConfidenceLow, domain.MethodAlias, ScoreAlias), ok, err
		}
	}
	return MatchResult{}, false, nil
}
