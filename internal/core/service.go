package core

import (
	"context"
	"fmt"
	"time"

	"dbtlineage/internal/infra/lock"
	"dbtlineage/internal/infra/persistence/memory"
	"dbtlineage/pkg/domain"
)

// Clock supplies timestamps for audit entries.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Service exposes higher-level transactional operations over designs, builds and
// tests.
type Service struct {
	store   domain.PersistentStore
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	locker  lock.KeyedLocker
	clock   Clock
}

// Option configures a Service.
type Option func(*Service)

// WithLogger routes service logs to l.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAuditRecorder records an AuditEntry per operation.
func WithAuditRecorder(r AuditRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.audit = r
		}
	}
}

// WithMetricsRecorder observes operation durations and outcomes.
func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithTracer wraps every operation in a span.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithLocker sets the locker EnsureDesign serializes through. Defaults to an
// in-process locker.
func WithLocker(l lock.KeyedLocker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithClock overrides the audit clock.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		locker:  lock.NewLocal(),
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// Logger returns the configured service logger.
func (s *Service) Logger() Logger {
	return s.logger
}

func (s *Service) instrument(ctx context.Context, op string, kind EntityType, fn func(context.Context) (string, error)) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	id, err := fn(ctx)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{
		Operation:  op,
		Status:     AuditStatusSuccess,
		EntityType: kind,
		EntityID:   id,
		Duration:   duration,
		At:         s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Warn("operation failed", "operation", op, "entity", kind, "id", id, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", op, "entity", kind, "id", id, "duration", duration)
	}
	s.audit.Record(ctx, entry)
	return err
}

func (s *Service) logViolations(op string, res Result) {
	for _, v := range res.Violations {
		if v.Severity == SeverityBlock {
			continue
		}
		s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", v.Severity, "entity", v.Entity, "id", v.EntityID, "message", v.Message)
	}
}

func (s *Service) transact(ctx context.Context, op string, kind EntityType, fn func(tx Transaction) (string, error)) (Result, error) {
	var res Result
	err := s.instrument(ctx, op, kind, func(ctx context.Context) (string, error) {
		var id string
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var txErr error
			id, txErr = fn(tx)
			return txErr
		})
		return id, err
	})
	s.logViolations(op, res)
	return res, err
}

// CreateDesign persists a new design, deriving its lineage fields.
func (s *Service) CreateDesign(ctx context.Context, design Design) (Design, Result, error) {
	var created Design
	res, err := s.transact(ctx, "create_design", EntityDesign, func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateDesign(design)
		return created.ID, err
	})
	return created, res, err
}

// UpdateDesign mutates a design. Lineage fields are re-derived and changes
// cascade to descendant designs.
func (s *Service) UpdateDesign(ctx context.Context, id string, mutator func(*Design) error) (Design, Result, error) {
	var updated Design
	res, err := s.transact(ctx, "update_design", EntityDesign, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateDesign(id, mutator)
		return id, err
	})
	return updated, res, err
}

// DeactivateDesign soft-deletes a design. It stays resolvable by ID and lineage
// hash but is no longer a match candidate.
func (s *Service) DeactivateDesign(ctx context.Context, id string) (Result, error) {
	return s.transact(ctx, "deactivate_design", EntityDesign, func(tx Transaction) (string, error) {
		_, err := tx.UpdateDesign(id, func(d *Design) error {
			d.Active = false
			return nil
		})
		return id, err
	})
}

// CreateBuild persists a new build for an existing design.
func (s *Service) CreateBuild(ctx context.Context, build Build) (Build, Result, error) {
	var created Build
	res, err := s.transact(ctx, "create_build", EntityBuild, func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateBuild(build)
		return created.ID, err
	})
	return created, res, err
}

// UpdateBuild mutates a build.
func (s *Service) UpdateBuild(ctx context.Context, id string, mutator func(*Build) error) (Build, Result, error) {
	var updated Build
	res, err := s.transact(ctx, "update_build", EntityBuild, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateBuild(id, mutator)
		return id, err
	})
	return updated, res, err
}

// UpdateBuildStatus moves a build through its workflow. Illegal transitions
// fail with an error matching domain.ErrInvalidTransition.
func (s *Service) UpdateBuildStatus(ctx context.Context, id string, status BuildStatus) (Build, Result, error) {
	var updated Build
	res, err := s.transact(ctx, "update_build_status", EntityBuild, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateBuild(id, func(b *Build) error {
			b.Status = status
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// DeactivateBuild soft-deletes a build.
func (s *Service) DeactivateBuild(ctx context.Context, id string) (Result, error) {
	return s.transact(ctx, "deactivate_build", EntityBuild, func(tx Transaction) (string, error) {
		_, err := tx.UpdateBuild(id, func(b *Build) error {
			b.Active = false
			return nil
		})
		return id, err
	})
}

// CreateTest persists a test record. Match metadata is fixed from here on.
func (s *Service) CreateTest(ctx context.Context, test Test) (Test, Result, error) {
	var created Test
	res, err := s.transact(ctx, "create_test", EntityTest, func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateTest(test)
		return created.ID, err
	})
	return created, res, err
}

// DeactivateTest soft-deletes a test.
func (s *Service) DeactivateTest(ctx context.Context, id string) (Result, error) {
	return s.transact(ctx, "deactivate_test", EntityTest, func(tx Transaction) (string, error) {
		_, err := tx.UpdateTest(id, func(t *Test) error {
			t.Active = false
			return nil
		})
		return id, err
	})
}

// GetDesign returns a design by ID regardless of its active flag.
func (s *Service) GetDesign(id string) (Design, error) {
	d, ok := s.store.GetDesign(id)
	if !ok {
		return Design{}, domain.NotFoundError{Entity: EntityDesign, ID: id}
	}
	return d, nil
}

// GetBuild returns a build by ID regardless of its active flag.
func (s *Service) GetBuild(id string) (Build, error) {
	b, ok := s.store.GetBuild(id)
	if !ok {
		return Build{}, domain.NotFoundError{Entity: EntityBuild, ID: id}
	}
	return b, nil
}

// GetTest returns a test by ID regardless of its active flag.
func (s *Service) GetTest(id string) (Test, error) {
	t, ok := s.store.GetTest(id)
	if !ok {
		return Test{}, domain.NotFoundError{Entity: EntityTest, ID: id}
	}
	return t, nil
}

// ListTestsFor returns the tests attached to a design or build, oldest first.
func (s *Service) ListTestsFor(kind EntityType, id string) ([]Test, error) {
	if kind != EntityDesign && kind != EntityBuild {
		return nil, fmt.Errorf("%w: tests attach to designs or builds, not %s", domain.ErrInvalidInput, kind)
	}
	var out []Test
	for _, t := range s.store.ListTests() {
		ref := t.DesignID
		if kind == EntityBuild {
			ref = t.BuildID
		}
		if ref != nil && *ref == id {
			out = append(out, t)
		}
	}
	return out, nil
}
