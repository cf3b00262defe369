// Package relational holds the table layout and row codecs shared by the SQLite
// and Postgres stores. Each entity row keeps its indexed columns next to a JSON
// payload carrying the full record.
package relational

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"dbtlineage/internal/infra/persistence/memory"
	"dbtlineage/pkg/domain"
)

// Dialect captures the few syntax differences between supported engines.
type Dialect struct {
	Name        string
	PayloadType string
	Placeholder func(n int) string
}

// SQLite uses positional question-mark placeholders and TEXT payloads.
var SQLite = Dialect{
	Name:        "sqlite",
	PayloadType: "TEXT",
	Placeholder: func(int) string { return "?" },
}

// Postgres uses numbered placeholders and JSONB payloads.
var Postgres = Dialect{
	Name:        "postgres",
	PayloadType: "JSONB",
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
}

type table struct {
	name    string
	columns []string
	unique  string
}

var (
	designsTable = table{name: "designs", columns: []string{"id", "lineage_hash", "normalized_sequence", "alias", "parent_id", "active", "payload"}, unique: "lineage_hash"}
	buildsTable  = table{name: "builds", columns: []string{"id", "lineage_hash", "normalized_sequence", "alias", "parent_id", "design_id", "active", "payload"}, unique: "lineage_hash"}
	testsTable   = table{name: "tests", columns: []string{"id", "design_id", "build_id", "match_confidence", "match_method", "active", "payload"}}
)

// Schema returns the DDL statements for d.
func Schema(d Dialect) []string {
	stmts := make([]string, 0, 6)
	for _, t := range []table{designsTable, buildsTable, testsTable} {
		cols := make([]string, 0, len(t.columns))
		for _, c := range t.columns {
			switch c {
			case "id":
				cols = append(cols, "id TEXT PRIMARY KEY")
			case "active":
				cols = append(cols, "active BOOLEAN NOT NULL")
			case "payload":
				cols = append(cols, "payload "+d.PayloadType+" NOT NULL")
			case "lineage_hash":
				cols = append(cols, "lineage_hash TEXT NOT NULL UNIQUE")
			default:
				cols = append(cols, c+" TEXT")
			}
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.name, strings.Join(cols, ", ")))
	}
	stmts = append(stmts,
		"CREATE INDEX IF NOT EXISTS designs_normalized_sequence_idx ON designs (normalized_sequence)",
		"CREATE INDEX IF NOT EXISTS builds_normalized_sequence_idx ON builds (normalized_sequence)",
		"CREATE INDEX IF NOT EXISTS tests_design_build_idx ON tests (design_id, build_id)",
	)
	return stmts
}

// Migrate applies Schema(d) to db.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range Schema(d) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func upsertStatement(t table, d Dialect) string {
	placeholders := make([]string, len(t.columns))
	updates := make([]string, 0, len(t.columns)-1)
	for i, c := range t.columns {
		placeholders[i] = d.Placeholder(i + 1)
		if c != "id" {
			updates = append(updates, c+"=excluded."+c)
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		t.name, strings.Join(t.columns, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Write upserts every entity touched by changes inside a single SQL transaction.
// Later changes to the same entity win.
func Write(ctx context.Context, db *sql.DB, d Dialect, changes []domain.Change) (retErr error) {
	if len(changes) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, change := range changes {
		if err := writeChange(ctx, tx, d, change); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func writeChange(ctx context.Context, tx *sql.Tx, d Dialect, change domain.Change) error {
	switch after := change.After.(type) {
	case domain.Design:
		payload, err := json.Marshal(after)
		if err != nil {
			return fmt.Errorf("encode design %s: %w", after.ID, err)
		}
		_, err = tx.ExecContext(ctx, upsertStatement(designsTable, d),
			after.ID, after.LineageHash, after.NormalizedSequence, nullableString(after.Alias), nullable(after.ParentID), after.Active, string(payload))
		if err != nil {
			return fmt.Errorf("upsert design %s: %w", after.ID, err)
		}
	case domain.Build:
		payload, err := json.Marshal(after)
		if err != nil {
			return fmt.Errorf("encode build %s: %w", after.ID, err)
		}
		_, err = tx.ExecContext(ctx, upsertStatement(buildsTable, d),
			after.ID, after.LineageHash, after.NormalizedSequence, nullableString(after.Alias), nullable(after.ParentID), after.DesignID, after.Active, string(payload))
		if err != nil {
			return fmt.Errorf("upsert build %s: %w", after.ID, err)
		}
	case domain.Test:
		payload, err := json.Marshal(after)
		if err != nil {
			return fmt.Errorf("encode test %s: %w", after.ID, err)
		}
		_, err = tx.ExecContext(ctx, upsertStatement(testsTable, d),
			after.ID, nullable(after.DesignID), nullable(after.BuildID), string(after.MatchConfidence), string(after.MatchMethod), after.Active, string(payload))
		if err != nil {
			return fmt.Errorf("upsert test %s: %w", after.ID, err)
		}
	default:
		return fmt.Errorf("unsupported change payload %T for %s", change.After, change.Entity)
	}
	return nil
}

// Load hydrates a snapshot from every entity table.
func Load(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	snapshot := memory.Snapshot{
		Designs: map[string]domain.Design{},
		Builds:  map[string]domain.Build{},
		Tests:   map[string]domain.Test{},
	}
	if err := loadTable(ctx, db, designsTable.name, func(payload []byte) error {
		var d domain.Design
		if err := json.Unmarshal(payload, &d); err != nil {
			return err
		}
		snapshot.Designs[d.ID] = d
		return nil
	}); err != nil {
		return memory.Snapshot{}, err
	}
	if err := loadTable(ctx, db, buildsTable.name, func(payload []byte) error {
		var b domain.Build
		if err := json.Unmarshal(payload, &b); err != nil {
			return err
		}
		snapshot.Builds[b.ID] = b
		return nil
	}); err != nil {
		return memory.Snapshot{}, err
	}
	if err := loadTable(ctx, db, testsTable.name, func(payload []byte) error {
		var t domain.Test
		if err := json.Unmarshal(payload, &t); err != nil {
			return err
		}
		snapshot.Tests[t.ID] = t
		return nil
	}); err != nil {
		return memory.Snapshot{}, err
	}
	return snapshot, nil
}

func loadTable(ctx context.Context, db *sql.DB, name string, decode func([]byte) error) error {
	rows, err := db.QueryContext(ctx, "SELECT payload FROM "+name)
	if err != nil {
		return fmt.Errorf("select %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan %s: %w", name, err)
		}
		if err := decode(payload); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", name, err)
	}
	return nil
}
