package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. There are no delete operations: entities
// are deactivated through the update mutators.
type Transaction interface {
	Snapshot() TransactionView
	CreateDesign(Design) (Design, error)
	UpdateDesign(id string, mutator func(*Design) error) (Design, error)
	CreateBuild(Build) (Build, error)
	UpdateBuild(id string, mutator func(*Build) error) (Build, error)
	CreateTest(Test) (Test, error)
	UpdateTest(id string, mutator func(*Test) error) (Test, error)
	FindDesign(id string) (Design, bool)
	FindBuild(id string) (Build, bool)
	FindTest(id string) (Test, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListDesigns() []Design
	ListBuilds() []Build
	ListTests() []Test
	FindDesign(id string) (Design, bool)
	FindBuild(id string) (Build, bool)
	FindTest(id string) (Test, bool)
}

// EntityLookup resolves active designs and builds for the matcher. Each finder
// returns the earliest created hit (ties broken by ID) and false when nothing
// qualifies.
type EntityLookup interface {
	// FindBySequence looks up an exact normalized sequence.
	FindBySequence(ctx context.Context, kind EntityType, normalized string) (Candidate, bool, error)
	// FindByMutationTokens looks for an entity whose mutation list contains
	// every token as a substring, falling back to one sharing any exact token.
	FindByMutationTokens(ctx context.Context, kind EntityType, tokens []string) (Candidate, bool, error)
	// FindByAlias tries a case-insensitive exact alias, then a substring match
	// in either direction.
	FindByAlias(ctx context.Context, kind EntityType, alias string) (Candidate, bool, error)
	// FindByLineageHash resolves a design or build by its lineage hash.
	FindByLineageHash(ctx context.Context, kind EntityType, hash string) (Candidate, bool, error)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	EntityLookup
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetDesign(id string) (Design, bool)
	GetBuild(id string) (Build, bool)
	GetTest(id string) (Test, bool)
	ListDesigns() []Design
	ListBuilds() []Build
	ListTests() []Test
}
