package core

import (
	"context"
	"fmt"

	"dbtlineage/pkg/domain"
	"dbtlineage/pkg/lineage"
)

// LineageIntegrityRule re-derives the lineage of every design and build touched
// by a transaction and blocks commits that would leave the chain inconsistent.
func LineageIntegrityRule() domain.Rule {
	return lineageIntegrityRule{}
}

type lineageIntegrityRule struct{}

func (lineageIntegrityRule) Name() string { return "lineage_integrity" }

func (lineageIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	touched := touchedIDs(changes)
	if len(touched[domain.EntityDesign]) == 0 && len(touched[domain.EntityBuild]) == 0 {
		return res, nil
	}

	designs := view.ListDesigns()
	designHashes := make(map[string][]string, len(designs))
	for _, d := range designs {
		designHashes[d.LineageHash] = append(designHashes[d.LineageHash], d.ID)
	}
	for _, d := range designs {
		if _, ok := touched[domain.EntityDesign][d.ID]; !ok {
			continue
		}
		var parent *domain.Lineage
		if d.ParentID != nil {
			p, ok := view.FindDesign(*d.ParentID)
			if ok {
				parent = &p.Lineage
			}
		}
		checkLineage(&res, domain.EntityDesign, d.ID, d.Lineage, parent, designHashes[d.LineageHash])
	}

	builds := view.ListBuilds()
	buildHashes := make(map[string][]string, len(builds))
	for _, b := range builds {
		buildHashes[b.LineageHash] = append(buildHashes[b.LineageHash], b.ID)
	}
	for _, b := range builds {
		if _, ok := touched[domain.EntityBuild][b.ID]; !ok {
			continue
		}
		if _, ok := view.FindDesign(b.DesignID); !ok {
			res.Violations = append(res.Violations, lineageViolation(domain.EntityBuild, b.ID, fmt.Sprintf("build %s references missing design %s", b.ID, b.DesignID)))
		}
		var parent *domain.Lineage
		if b.ParentID != nil {
			p, ok := view.FindBuild(*b.ParentID)
			if ok {
				parent = &p.Lineage
			}
		}
		checkLineage(&res, domain.EntityBuild, b.ID, b.Lineage, parent, buildHashes[b.LineageHash])
	}
	return res, nil
}

func checkLineage(res *domain.Result, kind domain.EntityType, id string, l domain.Lineage, parent *domain.Lineage, sameHash []string) {
	if l.ParentID != nil {
		switch {
		case *l.ParentID == id:
			res.Violations = append(res.Violations, lineageViolation(kind, id, fmt.Sprintf("%s %s references itself as a parent", kind, id)))
			return
		case parent == nil:
			res.Violations = append(res.Violations, lineageViolation(kind, id, fmt.Sprintf("%s %s references missing parent %s", kind, id, *l.ParentID)))
			return
		}
	}

	normalized, err := lineage.NormalizeSequence(l.Sequence)
	if err != nil || normalized != l.NormalizedSequence {
		res.Violations = append(res.Violations, lineageViolation(kind, id, fmt.Sprintf("%s %s has a stale normalized sequence", kind, id)))
		return
	}

	parentHash, generation := "", 0
	if parent != nil {
		parentHash = parent.LineageHash
		generation = parent.Generation + 1
	}
	if !lineage.Verify(l.LineageHash, parentHash, l.Mutations, l.NormalizedSequence) {
		res.Violations = append(res.Violations, lineageViolation(kind, id, fmt.Sprintf("%s %s lineage hash does not match its content", kind, id)))
	}
	if l.Generation != generation {
		res.Violations = append(res.Violations, lineageViolation(kind, id, fmt.Sprintf("%s %s has generation %d, expected %d", kind, id, l.Generation, generation)))
	}
	if len(sameHash) > 1 {
		for _, other := range sameHash {
			if other != id {
				res.Violations = append(res.Violations, lineageViolation(kind, id, fmt.Sprintf("%s %s duplicates the lineage hash of %s", kind, id, other)))
				break
			}
		}
	}
}

func lineageViolation(kind domain.EntityType, entityID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "lineage_integrity",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   kind,
		EntityID: entityID,
	}
}

// touchedIDs indexes the entity IDs carried by a change set. Final state is
// read from the view, so only identity matters here.
func touchedIDs(changes []domain.Change) map[domain.EntityType]map[string]struct{} {
	out := map[domain.EntityType]map[string]struct{}{
		domain.EntityDesign: {},
		domain.EntityBuild:  {},
		domain.EntityTest:   {},
	}
	for _, change := range changes {
		ids, ok := out[change.Entity]
		if !ok {
			continue
		}
		if id := changeID(change.After); id != "" {
			ids[id] = struct{}{}
		}
	}
	return out
}

func changeID(payload any) string {
	switch v := payload.(type) {
	case domain.Design:
		return v.ID
	case domain.Build:
		return v.ID
	case domain.Test:
		return v.ID
	}
	return ""
}
