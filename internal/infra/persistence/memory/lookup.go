package memory

import (
	"context"
	"fmt"
	"strings"

	"dbtlineage/pkg/domain"
	"dbtlineage/pkg/lineage"
)

// activeCandidates returns the active entities of kind in deterministic
// creation order.
func (s *Store) activeCandidates(ctx context.Context, kind domain.EntityType) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case domain.EntityDesign:
		designs := sortedDesigns(s.state.designs)
		out := make([]domain.Candidate, 0, len(designs))
		for _, d := range designs {
			if d.Active {
				out = append(out, domain.DesignCandidate(d))
			}
		}
		return out, nil
	case domain.EntityBuild:
		builds := sortedBuilds(s.state.builds)
		out := make([]domain.Candidate, 0, len(builds))
		for _, b := range builds {
			if b.Active {
				out = append(out, domain.BuildCandidate(b))
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported lookup kind %q", domain.ErrInvalidInput, kind)
	}
}

func firstCandidate(candidates []domain.Candidate, match func(domain.Candidate) bool) (domain.Candidate, bool) {
	for _, c := range candidates {
		if match(c) {
			return c, true
		}
	}
	return domain.Candidate{}, false
}

// FindBySequence returns the earliest active entity with the exact normalized sequence.
func (s *Store) FindBySequence(ctx context.Context, kind domain.EntityType, normalized string) (domain.Candidate, bool, error) {
	if normalized == "" {
		return domain.Candidate{}, false, nil
	}
	candidates, err := s.activeCandidates(ctx, kind)
	if err != nil {
		return domain.Candidate{}, false, err
	}
	c, ok := firstCandidate(candidates, func(c domain.Candidate) bool {
		return c.Lineage().NormalizedSequence == normalized
	})
	return c, ok, nil
}

// FindByMutationTokens first looks for an entity whose joined mutation list
// contains every token as a substring, then for one sharing any exact token.
func (s *Store) FindByMutationTokens(ctx context.Context, kind domain.EntityType, tokens []string) (domain.Candidate, bool, error) {
	if len(tokens) == 0 {
		return domain.Candidate{}, false, nil
	}
	candidates, err := s.activeCandidates(ctx, kind)
	if err != nil {
		return domain.Candidate{}, false, err
	}
	if c, ok := firstCandidate(candidates, func(c domain.Candidate) bool {
		return ContainsAllTokens(c.Lineage().Mutations, tokens)
	}); ok {
		return c, true, nil
	}
	want := lineage.NewMutationSet(tokens)
	c, ok := firstCandidate(candidates, func(c domain.Candidate) bool {
		return want.Intersects(lineage.NewMutationSet(c.Lineage().Mutations))
	})
	return c, ok, nil
}

// FindByAlias tries a case-insensitive exact alias first, then a substring
// match in either direction. Entities without an alias never match.
func (s *Store) FindByAlias(ctx context.Context, kind domain.EntityType, alias string) (domain.Candidate, bool, error) {
	needle := strings.ToLower(strings.TrimSpace(alias))
	if needle == "" {
		return domain.Candidate{}, false, nil
	}
	candidates, err := s.activeCandidates(ctx, kind)
	if err != nil {
		return domain.Candidate{}, false, err
	}
	if c, ok := firstCandidate(candidates, func(c domain.Candidate) bool {
		return strings.ToLower(c.Alias()) == needle
	}); ok {
		return c, true, nil
	}
	c, ok := firstCandidate(candidates, func(c domain.Candidate) bool {
		stored := strings.ToLower(c.Alias())
		if stored == "" {
			return false
		}
		return strings.Contains(stored, needle) || strings.Contains(needle, stored)
	})
	return c, ok, nil
}

// FindByLineageHash resolves an entity of kind by lineage hash. Inactive
// entities are included so create-or-fetch callers never duplicate a hash.
func (s *Store) FindByLineageHash(ctx context.Context, kind domain.EntityType, hash string) (domain.Candidate, bool, error) {
	if hash == "" {
		return domain.Candidate{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.Candidate{}, false, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case domain.EntityDesign:
		for _, d := range sortedDesigns(s.state.designs) {
			if d.LineageHash == hash {
				return domain.DesignCandidate(d), true, nil
			}
		}
	case domain.EntityBuild:
		for _, b := range sortedBuilds(s.state.builds) {
			if b.LineageHash == hash {
				return domain.BuildCandidate(b), true, nil
			}
		}
	default:
		return domain.Candidate{}, false, fmt.Errorf("%w: unsupported lookup kind %q", domain.ErrInvalidInput, kind)
	}
	return domain.Candidate{}, false, nil
}

// ContainsAllTokens reports whether the comma-joined mutation list contains
// each token as a substring.
func ContainsAllTokens(mutations, tokens []string) bool {
	if len(mutations) == 0 || len(tokens) == 0 {
		return false
	}
	joined := lineage.JoinMutations(mutations)
	for _, tok := range tokens {
		if !strings.Contains(joined, tok) {
			return false
		}
	}
	return true
}
