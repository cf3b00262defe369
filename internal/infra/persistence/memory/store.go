// Package memory provides an in-memory implementation of the core persistence
// store used for tests, ephemeral environments, and as the transactional engine
// underneath the relational backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dbtlineage/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Design aliases domain.Design for in-memory persistence operations.
	Design = domain.Design
	// Build aliases domain.Build.
	Build = domain.Build
	// Test aliases domain.Test.
	Test = domain.Test
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	designs map[string]Design
	builds  map[string]Build
	tests   map[string]Test
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Designs map[string]Design `json:"designs"`
	Builds  map[string]Build  `json:"builds"`
	Tests   map[string]Test   `json:"tests"`
}

func newMemoryState() memoryState {
	return memoryState{
		designs: make(map[string]Design),
		builds:  make(map[string]Build),
		tests:   make(map[string]Test),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.designs {
		cloned.designs[k] = cloneDesign(v)
	}
	for k, v := range s.builds {
		cloned.builds[k] = cloneBuild(v)
	}
	for k, v := range s.tests {
		cloned.tests[k] = cloneTest(v)
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{Designs: cloned.designs, Builds: cloned.builds, Tests: cloned.tests}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Designs {
		state.designs[k] = cloneDesign(v)
	}
	for k, v := range s.Builds {
		state.builds[k] = cloneBuild(v)
	}
	for k, v := range s.Tests {
		state.tests[k] = cloneTest(v)
	}
	return state
}

func cloneDesign(d Design) Design {
	cp := d
	cp.Lineage = domain.CloneLineage(d.Lineage)
	return cp
}

func cloneBuild(b Build) Build {
	cp := b
	cp.Lineage = domain.CloneLineage(b.Lineage)
	return cp
}

func cloneTest(t Test) Test {
	cp := t
	if t.ResultValue != nil {
		v := *t.ResultValue
		cp.ResultValue = &v
	}
	if t.DesignID != nil {
		id := *t.DesignID
		cp.DesignID = &id
	}
	if t.BuildID != nil {
		id := *t.BuildID
		cp.BuildID = &id
	}
	if t.LabConditions != nil {
		cp.LabConditions = make(map[string]any, len(t.LabConditions))
		for k, v := range t.LabConditions {
			cp.LabConditions[k] = v
		}
	}
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the clock used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListDesigns() []Design { return sortedDesigns(v.state.designs) }
func (v transactionView) ListBuilds() []Build   { return sortedBuilds(v.state.builds) }
func (v transactionView) ListTests() []Test     { return sortedTests(v.state.tests) }

func (v transactionView) FindDesign(id string) (Design, bool) {
	d, ok := v.state.designs[id]
	if !ok {
		return Design{}, false
	}
	return cloneDesign(d), true
}

func (v transactionView) FindBuild(id string) (Build, bool) {
	b, ok := v.state.builds[id]
	if !ok {
		return Build{}, false
	}
	return cloneBuild(b), true
}

func (v transactionView) FindTest(id string) (Test, bool) {
	t, ok := v.state.tests[id]
	if !ok {
		return Test{}, false
	}
	return cloneTest(t), true
}

// RunInTransaction executes fn against a cloned state. The clone replaces the
// committed state only when fn succeeds and no blocking rule violation is found.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	_, res, err := s.Apply(ctx, fn)
	return res, err
}

// Apply behaves like RunInTransaction and also returns the recorded changes.
func (s *Store) Apply(ctx context.Context, fn func(tx Transaction) error) ([]Change, Result, error) {
	return s.ApplyWith(ctx, fn, nil)
}

// PersistFunc writes the changes of an accepted transaction to durable storage.
type PersistFunc func(ctx context.Context, changes []Change) error

// ApplyWith runs fn like Apply. When the transaction passes the rules, persist
// is called with the recorded changes while the write lock is still held; the
// new state becomes visible to readers only after persist succeeds. A persist
// error discards the transaction.
func (s *Store) ApplyWith(ctx context.Context, fn func(tx Transaction) error, persist PersistFunc) ([]Change, Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return nil, Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return nil, Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return nil, res, domain.RuleViolationError{Result: res}
		}
	}

	if persist != nil {
		if err := persist(ctx, tx.changes); err != nil {
			return nil, result, err
		}
	}
	s.state = tx.state
	return tx.changes, result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) FindDesign(id string) (Design, bool) {
	return newTransactionView(&tx.state).FindDesign(id)
}

func (tx *transaction) FindBuild(id string) (Build, bool) {
	return newTransactionView(&tx.state).FindBuild(id)
}

func (tx *transaction) FindTest(id string) (Test, bool) {
	return newTransactionView(&tx.state).FindTest(id)
}

// CreateDesign stores a new active design and derives its lineage fields.
func (tx *transaction) CreateDesign(d Design) (Design, error) {
	if d.ID == "" {
		d.ID = newID()
	}
	if _, exists := tx.state.designs[d.ID]; exists {
		return Design{}, fmt.Errorf("%w: design %q", domain.ErrAlreadyExists, d.ID)
	}
	if err := tx.rehashDesign(&d); err != nil {
		return Design{}, err
	}
	if d.SequenceKind == "" {
		d.SequenceKind = domain.SequenceProtein
	}
	d.Active = true
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.designs[d.ID] = cloneDesign(d)
	tx.recordChange(Change{Entity: domain.EntityDesign, Action: domain.ActionCreate, After: cloneDesign(d)})
	return cloneDesign(d), nil
}

// UpdateDesign mutates a design, recomputing its lineage and that of every
// descendant design whose parent hash changed as a result.
func (tx *transaction) UpdateDesign(id string, mutator func(*Design) error) (Design, error) {
	current, ok := tx.state.designs[id]
	if !ok {
		return Design{}, domain.NotFoundError{Entity: domain.EntityDesign, ID: id}
	}
	before := cloneDesign(current)
	if err := mutator(&current); err != nil {
		return Design{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if err := tx.rehashDesign(&current); err != nil {
		return Design{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.designs[id] = cloneDesign(current)
	tx.recordChange(Change{Entity: domain.EntityDesign, Action: domain.ActionUpdate, Before: before, After: cloneDesign(current)})
	if before.LineageHash != current.LineageHash || before.Generation != current.Generation {
		if err := tx.cascadeDesign(id); err != nil {
			return Design{}, err
		}
	}
	return cloneDesign(current), nil
}

func (tx *transaction) rehashDesign(d *Design) error {
	if d.ParentID == nil {
		return d.Rehash(nil)
	}
	if *d.ParentID == d.ID {
		return fmt.Errorf("%w: design %s cannot be its own parent", domain.ErrInvalidInput, d.ID)
	}
	parent, ok := tx.state.designs[*d.ParentID]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityDesign, ID: *d.ParentID}
	}
	for cursor := parent; cursor.ParentID != nil; {
		if *cursor.ParentID == d.ID {
			return fmt.Errorf("%w: design %s would become its own ancestor", domain.ErrInvalidInput, d.ID)
		}
		next, ok := tx.state.designs[*cursor.ParentID]
		if !ok {
			break
		}
		cursor = next
	}
	return d.Rehash(&parent.Lineage)
}

func (tx *transaction) cascadeDesign(rootID string) error {
	queue := []string{rootID}
	for len(queue) > 0 {
		parentID := queue[0]
		queue = queue[1:]
		for _, child := range sortedDesigns(tx.state.designs) {
			if child.ParentID == nil || *child.ParentID != parentID {
				continue
			}
			before := cloneDesign(child)
			if err := tx.rehashDesign(&child); err != nil {
				return err
			}
			child.UpdatedAt = tx.now
			tx.state.designs[child.ID] = cloneDesign(child)
			tx.recordChange(Change{Entity: domain.EntityDesign, Action: domain.ActionUpdate, Before: before, After: cloneDesign(child)})
			queue = append(queue, child.ID)
		}
	}
	return nil
}

// CreateBuild stores a new active build for an existing design.
func (tx *transaction) CreateBuild(b Build) (Build, error) {
	if b.ID == "" {
		b.ID = newID()
	}
	if _, exists := tx.state.builds[b.ID]; exists {
		return Build{}, fmt.Errorf("%w: build %q", domain.ErrAlreadyExists, b.ID)
	}
	if b.DesignID == "" {
		return Build{}, fmt.Errorf("%w: build requires a design", domain.ErrInvalidInput)
	}
	if _, ok := tx.state.designs[b.DesignID]; !ok {
		return Build{}, domain.NotFoundError{Entity: domain.EntityDesign, ID: b.DesignID}
	}
	if err := tx.rehashBuild(&b); err != nil {
		return Build{}, err
	}
	if b.Status == "" {
		b.Status = domain.BuildStatusPlanned
	}
	b.Active = true
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.builds[b.ID] = cloneBuild(b)
	tx.recordChange(Change{Entity: domain.EntityBuild, Action: domain.ActionCreate, After: cloneBuild(b)})
	return cloneBuild(b), nil
}

// UpdateBuild mutates a build and recomputes the lineage of it and its descendants.
func (tx *transaction) UpdateBuild(id string, mutator func(*Build) error) (Build, error) {
	current, ok := tx.state.builds[id]
	if !ok {
		return Build{}, domain.NotFoundError{Entity: domain.EntityBuild, ID: id}
	}
	before := cloneBuild(current)
	if err := mutator(&current); err != nil {
		return Build{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if err := tx.rehashBuild(&current); err != nil {
		return Build{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.builds[id] = cloneBuild(current)
	tx.recordChange(Change{Entity: domain.EntityBuild, Action: domain.ActionUpdate, Before: before, After: cloneBuild(current)})
	if before.LineageHash != current.LineageHash || before.Generation != current.Generation {
		if err := tx.cascadeBuild(id); err != nil {
			return Build{}, err
		}
	}
	return cloneBuild(current), nil
}

func (tx *transaction) rehashBuild(b *Build) error {
	if b.ParentID == nil {
		return b.Rehash(nil)
	}
	if *b.ParentID == b.ID {
		return fmt.Errorf("%w: build %s cannot be its own parent", domain.ErrInvalidInput, b.ID)
	}
	parent, ok := tx.state.builds[*b.ParentID]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityBuild, ID: *b.ParentID}
	}
	for cursor := parent; cursor.ParentID != nil; {
		if *cursor.ParentID == b.ID {
			return fmt.Errorf("%w: build %s would become its own ancestor", domain.ErrInvalidInput, b.ID)
		}
		next, ok := tx.state.builds[*cursor.ParentID]
		if !ok {
			break
		}
		cursor = next
	}
	return b.Rehash(&parent.Lineage)
}

func (tx *transaction) cascadeBuild(rootID string) error {
	queue := []string{rootID}
	for len(queue) > 0 {
		parentID := queue[0]
		queue = queue[1:]
		for _, child := range sortedBuilds(tx.state.builds) {
			if child.ParentID == nil || *child.ParentID != parentID {
				continue
			}
			before := cloneBuild(child)
			if err := tx.rehashBuild(&child); err != nil {
				return err
			}
			child.UpdatedAt = tx.now
			tx.state.builds[child.ID] = cloneBuild(child)
			tx.recordChange(Change{Entity: domain.EntityBuild, Action: domain.ActionUpdate, Before: before, After: cloneBuild(child)})
			queue = append(queue, child.ID)
		}
	}
	return nil
}

// CreateTest stores a new active test. Referenced designs and builds must exist.
func (tx *transaction) CreateTest(t Test) (Test, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	if _, exists := tx.state.tests[t.ID]; exists {
		return Test{}, fmt.Errorf("%w: test %q", domain.ErrAlreadyExists, t.ID)
	}
	if t.DesignID != nil {
		if _, ok := tx.state.designs[*t.DesignID]; !ok {
			return Test{}, domain.NotFoundError{Entity: domain.EntityDesign, ID: *t.DesignID}
		}
	}
	if t.BuildID != nil {
		if _, ok := tx.state.builds[*t.BuildID]; !ok {
			return Test{}, domain.NotFoundError{Entity: domain.EntityBuild, ID: *t.BuildID}
		}
	}
	if t.MatchConfidence == "" {
		t.MatchConfidence = domain.ConfidenceNone
	}
	if t.MatchMethod == "" {
		t.MatchMethod = domain.MethodNone
	}
	t.Active = true
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.tests[t.ID] = cloneTest(t)
	tx.recordChange(Change{Entity: domain.EntityTest, Action: domain.ActionCreate, After: cloneTest(t)})
	return cloneTest(t), nil
}

// UpdateTest mutates a test. Match metadata immutability is enforced by rules.
func (tx *transaction) UpdateTest(id string, mutator func(*Test) error) (Test, error) {
	current, ok := tx.state.tests[id]
	if !ok {
		return Test{}, domain.NotFoundError{Entity: domain.EntityTest, ID: id}
	}
	before := cloneTest(current)
	if err := mutator(&current); err != nil {
		return Test{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.tests[id] = cloneTest(current)
	tx.recordChange(Change{Entity: domain.EntityTest, Action: domain.ActionUpdate, Before: before, After: cloneTest(current)})
	return cloneTest(current), nil
}

// Read helpers ---------------------------------------------------------------

// GetDesign retrieves a design by ID from committed state.
func (s *Store) GetDesign(id string) (Design, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindDesign(id)
}

// GetBuild retrieves a build by ID from committed state.
func (s *Store) GetBuild(id string) (Build, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindBuild(id)
}

// GetTest retrieves a test by ID from committed state.
func (s *Store) GetTest(id string) (Test, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindTest(id)
}

// ListDesigns returns all designs ordered by creation.
func (s *Store) ListDesigns() []Design {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedDesigns(s.state.designs)
}

// ListBuilds returns all builds ordered by creation.
func (s *Store) ListBuilds() []Build {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedBuilds(s.state.builds)
}

// ListTests returns all tests ordered by creation.
func (s *Store) ListTests() []Test {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedTests(s.state.tests)
}

func sortedDesigns(in map[string]Design) []Design {
	out := make([]Design, 0, len(in))
	for _, d := range in {
		out = append(out, cloneDesign(d))
	}
	sort.Slice(out, func(i, j int) bool { return earlier(out[i].Base, out[j].Base) })
	return out
}

func sortedBuilds(in map[string]Build) []Build {
	out := make([]Build, 0, len(in))
	for _, b := range in {
		out = append(out, cloneBuild(b))
	}
	sort.Slice(out, func(i, j int) bool { return earlier(out[i].Base, out[j].Base) })
	return out
}

func sortedTests(in map[string]Test) []Test {
	out := make([]Test, 0, len(in))
	for _, t := range in {
		out = append(out, cloneTest(t))
	}
	sort.Slice(out, func(i, j int) bool { return earlier(out[i].Base, out[j].Base) })
	return out
}

func earlier(a, b domain.Base) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
