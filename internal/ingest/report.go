package ingest

import (
	"errors"
	"fmt"
	"time"

	"dbtlineage/pkg/domain"
)

var (
	// ErrNilRows is returned when Ingest is called without a row collection.
	ErrNilRows = errors.New("ingest: rows must not be nil")
	// ErrNoMatch is recorded for rows no tier could resolve.
	ErrNoMatch = errors.New("no matching design or build")
)

// CommitError reports that the batch's staged tests could not be persisted.
// It is distinct from per-row failures, which only appear in Report.Errors.
type CommitError struct {
	BatchID string
	Err     error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit batch %s: %v", e.BatchID, e.Err)
}

// Unwrap exposes the storage failure and its cause.
func (e *CommitError) Unwrap() []error {
	return []error{domain.ErrStorage, e.Err}
}

// MatchRecord describes one row that produced a test.
type MatchRecord struct {
	RowIndex   int                    `json:"row_index"`
	Alias      string                 `json:"alias"`
	Confidence domain.MatchConfidence `json:"confidence"`
	Method     domain.MatchMethod     `json:"method"`
	Score      float64                `json:"score"`
	TestID     string                 `json:"test_id"`
}

// ErrorRecord describes one row that did not produce a test.
type ErrorRecord struct {
	RowIndex int    `json:"row_index"`
	Alias    string `json:"alias"`
	Error    string `json:"error_message"`
}

// Report summarizes a batch. MatchedRows + UnmatchedRows == TotalRows and the
// three confidence counters sum to MatchedRows.
type Report struct {
	BatchID          string        `json:"batch_id"`
	TotalRows        int           `json:"total_rows"`
	MatchedRows      int           `json:"matched_rows"`
	UnmatchedRows    int           `json:"unmatched_rows"`
	HighConfidence   int           `json:"high_confidence"`
	MediumConfidence int           `json:"medium_confidence"`
	LowConfidence    int           `json:"low_confidence"`
	Matches          []MatchRecord `json:"matches"`
	Errors           []ErrorRecord `json:"errors"`
	CreatedDesigns   []string      `json:"created_designs,omitempty"`
	Committed        bool          `json:"committed"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
}

func newReport(batchID string, started time.Time) Report {
	return Report{
		BatchID:   batchID,
		Matches:   []MatchRecord{},
		Errors:    []ErrorRecord{},
		StartedAt: started,
	}
}

func (r *Report) addMatch(rec MatchRecord) {
	r.TotalRows++
	r.MatchedRows++
	switch rec.Confidence {
	case domain.ConfidenceHigh:
		r.HighConfidence++
	case domain.ConfidenceMedium:
		r.MediumConfidence++
	case domain.ConfidenceLow:
		r.LowConfidence++
	}
	r.Matches = append(r.Matches, rec)
}

func (r *Report) addError(index int, alias string, err error) {
	r.TotalRows++
	r.UnmatchedRows++
	r.Errors = append(r.Errors, ErrorRecord{RowIndex: index, Alias: alias, Error: err.Error()})
}
