package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbtlineage/pkg/domain"
	"dbtlineage/pkg/lineage"
)

type blockingRule struct{}

func (blockingRule) Name() string { return "blocker" }

func (blockingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, c := range changes {
		if d, ok := c.After.(domain.Design); ok && d.Name == "forbidden" {
			res.Violations = append(res.Violations, domain.Violation{Rule: "blocker", Severity: domain.SeverityBlock, Message: "forbidden name", Entity: domain.EntityDesign, EntityID: d.ID})
		}
	}
	return res, nil
}

func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(nil)
	store.SetNowFunc(steppingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	return store
}

func createDesign(t *testing.T, store *Store, d Design) Design {
	t.Helper()
	var created Design
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateDesign(d)
		return err
	})
	require.NoError(t, err)
	return created
}

func createBuild(t *testing.T, store *Store, b Build) Build {
	t.Helper()
	var created Build
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateBuild(b)
		return err
	})
	require.NoError(t, err)
	return created
}

func TestCreateDesignDerivesLineage(t *testing.T) {
	store := newTestStore(t)
	root := createDesign(t, store, Design{Name: "wt", Lineage: domain.Lineage{Sequence: "mgt-k"}})

	require.NotEmpty(t, root.ID)
	assert.True(t, root.Active)
	assert.Equal(t, domain.SequenceProtein, root.SequenceKind)
	assert.Equal(t, "MGT...K", root.NormalizedSequence)
	assert.Equal(t, 0, root.Generation)
	assert.Equal(t, lineage.Hash("", nil, "MGT...K"), root.LineageHash)

	parentID := root.ID
	child := createDesign(t, store, Design{Name: "v1", Lineage: domain.Lineage{
		Sequence:  "MGT-L72F-K",
		Mutations: []string{"L72F", "L72F", "A10V"},
		ParentID:  &parentID,
	}})
	assert.Equal(t, 1, child.Generation)
	assert.Equal(t, []string{"L72F", "A10V"}, child.Mutations)
	assert.Equal(t, lineage.Hash(root.LineageHash, []string{"L72F", "A10V"}, "MGT...L72F...K"), child.LineageHash)
}

func TestCreateDesignRejectsMissingParentAndEmptySequence(t *testing.T) {
	store := newTestStore(t)
	missing := "nope"
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateDesign(Design{Name: "orphan", Lineage: domain.Lineage{Sequence: "A", ParentID: &missing}})
		return err
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateDesign(Design{Name: "blank", Lineage: domain.Lineage{Sequence: "  "}})
		return err
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, store.ListDesigns())
}

func TestUpdateDesignCascadesToDescendants(t *testing.T) {
	store := newTestStore(t)
	root := createDesign(t, store, Design{Name: "root", Lineage: domain.Lineage{Sequence: "AAA"}})
	rootID := root.ID
	child := createDesign(t, store, Design{Name: "child", Lineage: domain.Lineage{Sequence: "AAB", ParentID: &rootID}})
	childID := child.ID
	grandchild := createDesign(t, store, Design{Name: "grandchild", Lineage: domain.Lineage{Sequence: "ABB", ParentID: &childID}})

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateDesign(root.ID, func(d *Design) error {
			d.Sequence = "AAC"
			return nil
		})
		return err
	})
	require.NoError(t, err)

	updatedRoot, _ := store.GetDesign(root.ID)
	updatedChild, _ := store.GetDesign(child.ID)
	updatedGrand, _ := store.GetDesign(grandchild.ID)
	assert.NotEqual(t, root.LineageHash, updatedRoot.LineageHash)
	assert.Equal(t, lineage.Hash(updatedRoot.LineageHash, nil, "AAB"), updatedChild.LineageHash)
	assert.Equal(t, lineage.Hash(updatedChild.LineageHash, nil, "ABB"), updatedGrand.LineageHash)
	assert.Equal(t, 2, updatedGrand.Generation)
}

func TestUpdateDesignRejectsCycles(t *testing.T) {
	store := newTestStore(t)
	root := createDesign(t, store, Design{Name: "root", Lineage: domain.Lineage{Sequence: "AAA"}})
	rootID := root.ID
	child := createDesign(t, store, Design{Name: "child", Lineage: domain.Lineage{Sequence: "AAB", ParentID: &rootID}})

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateDesign(root.ID, func(d *Design) error {
			id := child.ID
			d.ParentID = &id
			return nil
		})
		return err
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateDesign(root.ID, func(d *Design) error {
			id := root.ID
			d.ParentID = &id
			return nil
		})
		return err
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateDesign(Design{Name: "temp", Lineage: domain.Lineage{Sequence: "A"}}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, store.ListDesigns())
}

func TestRunInTransactionBlockingRule(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := NewStore(engine)

	res, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateDesign(Design{Name: "forbidden", Lineage: domain.Lineage{Sequence: "A"}})
		return err
	})
	var violation domain.RuleViolationError
	require.ErrorAs(t, err, &violation)
	assert.True(t, res.HasBlocking())
	assert.Contains(t, err.Error(), "forbidden name")
	assert.Empty(t, store.ListDesigns())
}

func TestCreateBuildAndTestReferences(t *testing.T) {
	store := newTestStore(t)
	design := createDesign(t, store, Design{Name: "d", Lineage: domain.Lineage{Sequence: "A"}})

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateBuild(Build{Name: "b", DesignID: "missing", Lineage: domain.Lineage{Sequence: "A"}})
		return err
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	build := createBuild(t, store, Build{Name: "b", DesignID: design.ID, Lineage: domain.Lineage{Sequence: "A"}})
	assert.Equal(t, domain.BuildStatusPlanned, build.Status)

	missing := "missing"
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateTest(Test{Name: "t", BuildID: &missing})
		return err
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	buildID := build.ID
	var created Test
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateTest(Test{Name: "t", BuildID: &buildID, LabConditions: map[string]any{"temp": 37}})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceNone, created.MatchConfidence)
	assert.Equal(t, domain.MethodNone, created.MatchMethod)

	stored, ok := store.GetTest(created.ID)
	require.True(t, ok)
	stored.LabConditions["temp"] = 42
	again, _ := store.GetTest(created.ID)
	assert.Equal(t, 37, again.LabConditions["temp"])
}

func TestExportImportStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	design := createDesign(t, store, Design{Name: "d", Lineage: domain.Lineage{Sequence: "A", Mutations: []string{"X1Y"}}})

	snapshot := store.ExportState()
	other := NewStore(nil)
	other.ImportState(snapshot)

	got, ok := other.GetDesign(design.ID)
	require.True(t, ok)
	assert.Equal(t, design.LineageHash, got.LineageHash)

	snapshot.Designs[design.ID] = Design{}
	got, _ = other.GetDesign(design.ID)
	assert.Equal(t, design.Name, got.Name)
}

func TestViewSeesCommittedState(t *testing.T) {
	store := newTestStore(t)
	createDesign(t, store, Design{Name: "a", Lineage: domain.Lineage{Sequence: "A"}})
	createDesign(t, store, Design{Name: "b", Lineage: domain.Lineage{Sequence: "B"}})

	var names []string
	require.NoError(t, store.View(context.Background(), func(view TransactionView) error {
		for _, d := range view.ListDesigns() {
			names = append(names, d.Name)
		}
		return nil
	}))
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestApplyWithHidesStateUntilPersisted(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	readerDone := make(chan bool, 1)
	var readEarly bool

	_, _, err := store.ApplyWith(ctx, func(tx Transaction) error {
		_, err := tx.CreateDesign(Design{Name: "gfp", Lineage: domain.Lineage{Sequence: "MGT"}})
		return err
	}, func(ctx context.Context, changes []Change) error {
		if len(changes) != 1 {
			return errors.New("unexpected change count")
		}
		go func() {
			_, found, _ := store.FindBySequence(ctx, domain.EntityDesign, "MGT")
			readerDone <- found
		}()
		select {
		case <-readerDone:
			readEarly = true
		case <-time.After(50 * time.Millisecond):
		}
		return errors.New("disk full")
	})
	require.EqualError(t, err, "disk full")
	require.False(t, readEarly, "lookup completed while the transaction was being persisted")
	assert.False(t, <-readerDone, "a transaction whose write failed must stay invisible")
	assert.Empty(t, store.ListDesigns())

	var persisted []Change
	_, _, err = store.ApplyWith(ctx, func(tx Transaction) error {
		_, err := tx.CreateDesign(Design{Name: "gfp", Lineage: domain.Lineage{Sequence: "MGT"}})
		return err
	}, func(_ context.Context, changes []Change) error {
		persisted = changes
		return nil
	})
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	_, found, err := store.FindBySequence(ctx, domain.EntityDesign, "MGT")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestApplyWithSkipsPersistOnBlockingRule(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := NewStore(engine)
	called := false
	_, _, err := store.ApplyWith(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateDesign(Design{Name: "forbidden", Lineage: domain.Lineage{Sequence: "MGT"}})
		return err
	}, func(context.Context, []Change) error {
		called = true
		return nil
	})
	var violation domain.RuleViolationError
	require.ErrorAs(t, err, &violation)
	assert.False(t, called)
}
