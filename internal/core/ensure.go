package core

import (
	"context"
	"fmt"

	"dbtlineage/pkg/domain"
)

// EnsureDesign returns the design whose lineage hash matches d, creating it when
// none exists. Concurrent callers with the same content are serialized through
// the service locker so exactly one of them creates the record.
func (s *Service) EnsureDesign(ctx context.Context, d Design) (Design, bool, error) {
	var (
		out     Design
		created bool
	)
	err := s.instrument(ctx, "ensure_design", EntityDesign, func(ctx context.Context) (string, error) {
		draft := domain.CloneLineage(d.Lineage)
		var parent *domain.Lineage
		if draft.ParentID != nil {
			p, ok := s.store.GetDesign(*draft.ParentID)
			if !ok {
				return "", domain.NotFoundError{Entity: EntityDesign, ID: *draft.ParentID}
			}
			parent = &p.Lineage
		}
		if err := draft.Rehash(parent); err != nil {
			return "", err
		}

		unlock, err := s.locker.Lock(ctx, "design:"+draft.LineageHash)
		if err != nil {
			return "", fmt.Errorf("lock lineage %s: %w", draft.LineageHash, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release lineage lock", "hash", draft.LineageHash, "error", err)
			}
		}()

		existing, ok, err := s.store.FindByLineageHash(ctx, EntityDesign, draft.LineageHash)
		if err != nil {
			return "", err
		}
		if ok {
			out = *existing.Design
			return out.ID, nil
		}

		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			for _, candidate := range tx.Snapshot().ListDesigns() {
				if candidate.LineageHash == draft.LineageHash {
					out = candidate
					return nil
				}
			}
			var err error
			out, err = tx.CreateDesign(d)
			created = err == nil
			return err
		})
		s.logViolations("ensure_design", res)
		return out.ID, err
	})
	if err != nil {
		return Design{}, false, err
	}
	return out, created, nil
}
