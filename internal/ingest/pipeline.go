// Package ingest runs batches of experimental result rows through the matcher,
// stages a test per matched row, and commits the batch in one transaction.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dbtlineage/internal/core"
	"dbtlineage/internal/matching"
	"dbtlineage/pkg/domain"
	"dbtlineage/pkg/lineage"
)

// Store is the persistence surface the pipeline needs: matcher lookups plus a
// transaction for the final commit.
type Store interface {
	matching.Repository
	RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error)
}

// DesignEnsurer creates or fetches a design by lineage hash.
type DesignEnsurer interface {
	EnsureDesign(ctx context.Context, d domain.Design) (domain.Design, bool, error)
}

// Pipeline ingests row batches.
type Pipeline struct {
	store       Store
	matcher     *matching.Matcher
	ensurer     DesignEnsurer
	concurrency int
	logger      core.Logger
	metrics     core.MetricsRecorder
	tracer      core.Tracer
	now         func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConcurrency matches up to n rows in parallel. Aggregation and staging
// still happen in input order. Values below 2 keep matching sequential.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithCreateMissing enables fallback creation: an unmatched row carrying both
// an alias and a sequence creates (or fetches) a root design through e. The
// row is still reported as unmatched.
func WithCreateMissing(e DesignEnsurer) Option {
	return func(p *Pipeline) {
		p.ensurer = e
	}
}

// WithLogger routes pipeline logs to l.
func WithLogger(l core.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetricsRecorder observes batch outcomes. Recorders that also implement
// core.MatchObserver receive one call per matched row.
func WithMetricsRecorder(m core.MetricsRecorder) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithTracer wraps each batch in a span.
func WithTracer(t core.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithClock overrides the report clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New constructs a pipeline over store.
func New(store Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:       store,
		matcher:     matching.New(store),
		concurrency: 1,
		logger:      nopLogger{},
		metrics:     nopMetrics{},
		tracer:      nopTracer{},
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type rowOutcome struct {
	done    bool
	result  matching.MatchResult
	err     error
	created *domain.Design
}

type stagedTest struct {
	index int
	test  domain.Test
}

// Ingest processes rows and commits every matched row's test at the end.
//
// Per-row failures never abort the batch. A commit failure returns the report
// with Committed=false and a *CommitError. If ctx is cancelled mid-batch the
// staged tests are discarded, only rows processed so far are reported, and the
// context error is returned wrapped.
func (p *Pipeline) Ingest(ctx context.Context, rows []Row) (Report, error) {
	if rows == nil {
		return Report{}, ErrNilRows
	}
	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "ingest")
	report := newReport(newBatchID(), p.now())
	err := p.ingest(ctx, rows, &report)
	report.FinishedAt = p.now()
	span.End(err)
	p.metrics.Observe(ctx, "ingest", err == nil, time.Since(started))

	fields := []any{
		"batch", report.BatchID,
		"total", report.TotalRows,
		"matched", report.MatchedRows,
		"unmatched", report.UnmatchedRows,
		"committed", report.Committed,
	}
	if err != nil {
		p.logger.Error("ingest failed", append(fields, "error", err)...)
	} else {
		p.logger.Info("ingest completed", fields...)
	}
	return report, err
}

func (p *Pipeline) ingest(ctx context.Context, rows []Row, report *Report) error {
	outcomes := p.matchAll(ctx, rows)

	var staged []stagedTest
	for i, out := range outcomes {
		if !out.done {
			continue
		}
		row := rows[i]
		if out.created != nil {
			report.CreatedDesigns = append(report.CreatedDesigns, out.created.ID)
		}
		if out.err != nil {
			report.addError(i, row.Alias, out.err)
			continue
		}
		if !out.result.Matched {
			report.addError(i, row.Alias, ErrNoMatch)
			continue
		}
		test, err := row.Test(out.result)
		if err != nil {
			report.addError(i, row.Alias, err)
			continue
		}
		test.ID = newTestID()
		staged = append(staged, stagedTest{index: i, test: test})
		report.addMatch(MatchRecord{
			RowIndex:   i,
			Alias:      row.Alias,
			Confidence: out.result.Confidence,
			Method:     out.result.Method,
			Score:      out.result.Score,
			TestID:     test.ID,
		})
		if obs, ok := p.metrics.(core.MatchObserver); ok {
			obs.ObserveMatch(ctx, out.result.Method, out.result.Confidence)
		}
	}

	if err := ctx.Err(); err != nil {
		p.logger.Warn("ingest cancelled; batch rolled back", "batch", report.BatchID, "processed", report.TotalRows, "rows", len(rows))
		return fmt.Errorf("ingest cancelled: %w", err)
	}

	if _, err := p.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, s := range staged {
			if _, err := tx.CreateTest(s.test); err != nil {
				return fmt.Errorf("row %d: %w", s.index, err)
			}
		}
		return nil
	}); err != nil {
		return &CommitError{BatchID: report.BatchID, Err: err}
	}
	report.Committed = true
	return nil
}

// matchAll resolves every row, in parallel when configured. Rows skipped
// because ctx was cancelled are left with done=false.
func (p *Pipeline) matchAll(ctx context.Context, rows []Row) []rowOutcome {
	outcomes := make([]rowOutcome, len(rows))
	if p.concurrency < 2 {
		for i := range rows {
			if ctx.Err() != nil {
				break
			}
			outcomes[i] = p.matchRow(ctx, rows[i])
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i := range rows {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcomes[i] = p.matchRow(ctx, rows[i])
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (p *Pipeline) matchRow(ctx context.Context, row Row) rowOutcome {
	res, err := p.matcher.Match(ctx, row.Query())
	if err != nil {
		if ctx.Err() != nil {
			return rowOutcome{}
		}
		return rowOutcome{done: true, err: err}
	}
	out := rowOutcome{done: true, result: res}
	if res.Matched {
		p.logAliasConflict(row, res)
		return out
	}
	if p.ensurer != nil && strings.TrimSpace(row.Alias) != "" && lineage.HasSequence(row.Sequence) {
		d, created, err := p.ensurer.EnsureDesign(ctx, domain.Design{
			Name:    row.Alias,
			Alias:   row.Alias,
			Lineage: domain.Lineage{Sequence: row.Sequence, Mutations: lineage.ParseMutations(row.Mutations)},
		})
		switch {
		case err != nil:
			out.err = fmt.Errorf("%w; fallback design creation failed: %w", ErrNoMatch, err)
		case created:
			out.created = &d
			p.logger.Info("created design for unmatched row", "design", d.ID, "alias", row.Alias)
		}
	}
	return out
}

func (p *Pipeline) logAliasConflict(row Row, res matching.MatchResult) {
	if res.Method != domain.MethodSequence || row.Alias == "" {
		return
	}
	stored := strings.ToLower(res.Candidate.Alias())
	given := strings.ToLower(strings.TrimSpace(row.Alias))
	if stored == "" || strings.Contains(stored, given) || strings.Contains(given, stored) {
		return
	}
	p.logger.Debug("row alias disagrees with sequence match", "alias", row.Alias, "matched", res.Candidate.ID(), "matched_alias", res.Candidate.Alias())
}

// RecordTest matches a single row and, when it matches, persists its test in
// its own transaction. An unmatched row returns the no-match result and no test.
func (p *Pipeline) RecordTest(ctx context.Context, row Row) (domain.Test, matching.MatchResult, error) {
	res, err := p.matcher.Match(ctx, row.Query())
	if err != nil {
		return domain.Test{}, matching.MatchResult{}, err
	}
	if !res.Matched {
		return domain.Test{}, res, nil
	}
	p.logAliasConflict(row, res)
	test, err := row.Test(res)
	if err != nil {
		return domain.Test{}, res, err
	}
	var created domain.Test
	if _, err := p.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		created, txErr = tx.CreateTest(test)
		return txErr
	}); err != nil {
		if errors.Is(err, domain.ErrStorage) {
			return domain.Test{}, res, err
		}
		return domain.Test{}, res, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	if obs, ok := p.metrics.(core.MatchObserver); ok {
		obs.ObserveMatch(ctx, res.Method, res.Confidence)
	}
	return created, res, nil
}

func newBatchID() string {
	return "batch-" + newTestID()
}

func newTestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type nopMetrics struct{}

func (nopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type nopTracer struct{}

func (nopTracer) Start(ctx context.Context, _ string) (context.Context, core.TraceSpan) {
	return ctx, nopSpan{}
}

type nopSpan struct{}

func (nopSpan) End(error) {}
