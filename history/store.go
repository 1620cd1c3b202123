// SPDX-License-Identifier: MIT

package history

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by LoadRun for unknown ids.
var ErrRunNotFound = errors.New("history: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	algorithm   TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	state       TEXT NOT NULL,
	iterations  INTEGER NOT NULL,
	objective   REAL,
	elapsed_ns  INTEGER NOT NULL,
	n_rows      INTEGER NOT NULL,
	n_cols      INTEGER NOT NULL,
	solution    BLOB
);

CREATE TABLE IF NOT EXISTS run_entries (
	run_id        TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	iteration     INTEGER NOT NULL,
	time_ns       INTEGER NOT NULL,
	computing_ns  INTEGER NOT NULL,
	functional    REAL,
	residual      REAL,
	dual_residual REAL,
	dist_opt      REAL,
	max_delay     INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// Run is a finished solve as persisted by Store.
type Run struct {
	ID         string
	Algorithm  string
	StartedAt  time.Time
	State      string
	Iterations int
	Objective  float64
	Elapsed    time.Duration
	Rows, Cols int
	Solution   []float64 // row-major Rows×Cols
	Entries    []Entry   // empty in ListRuns results
}

// Store keeps runs in a SQLite database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the database at path and migrates it.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun inserts run and its entries in one transaction. An empty run.ID is
// replaced by a fresh UUID; the id is returned.
func (s *Store) SaveRun(ctx context.Context, run *Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, algorithm, started_at, state, iterations, objective, elapsed_ns, n_rows, n_cols, solution)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Algorithm, run.StartedAt.UTC().Format(time.RFC3339Nano), run.State, run.Iterations,
		nullable(run.Objective), int64(run.Elapsed), run.Rows, run.Cols, encodeVector(run.Solution),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	for seq, e := range run.Entries {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_entries (run_id, seq, iteration, time_ns, computing_ns, functional, residual, dual_residual, dist_opt, max_delay)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, seq, e.Iteration, int64(e.Time), int64(e.ComputingTime),
			nullable(e.Functional), nullable(e.Residual), nullable(e.DualResidual), nullable(e.DistOpt), e.MaxDelay,
		)
		if err != nil {
			return "", fmt.Errorf("insert entry %d: %w", seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	return run.ID, nil
}

// LoadRun returns the run with the given id, entries included.
func (s *Store) LoadRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, algorithm, started_at, state, iterations, objective, elapsed_ns, n_rows, n_cols, solution
		 FROM runs WHERE run_id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT iteration, time_ns, computing_ns, functional, residual, dual_residual, dist_opt, max_delay
		 FROM run_entries WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e                          Entry
			tns, cns                   int64
			fun, res, dualRes, distOpt sql.NullFloat64
		)
		if err := rows.Scan(&e.Iteration, &tns, &cns, &fun, &res, &dualRes, &distOpt, &e.MaxDelay); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Time, e.ComputingTime = time.Duration(tns), time.Duration(cns)
		e.Functional, e.Residual = orNaN(fun), orNaN(res)
		e.DualResidual, e.DistOpt = orNaN(dualRes), orNaN(distOpt)
		run.Entries = append(run.Entries, e)
	}

	return run, rows.Err()
}

// ListRuns returns every run without entries, most recent first.
func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, algorithm, started_at, state, iterations, objective, elapsed_ns, n_rows, n_cols, solution
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}

	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run       Run
		started   string
		objective sql.NullFloat64
		elapsed   int64
		blob      []byte
	)
	err := sc.Scan(&run.ID, &run.Algorithm, &started, &run.State, &run.Iterations, &objective, &elapsed, &run.Rows, &run.Cols, &blob)
	if err != nil {
		return nil, err
	}
	run.StartedAt, err = time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	run.Objective = orNaN(objective)
	run.Elapsed = time.Duration(elapsed)
	run.Solution = decodeVector(blob)

	return &run, nil
}

// nullable maps NaN to SQL NULL (SQLite cannot store NaN).
func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}

	return v
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}

	return v.Float64
}

// encodeVector packs float64 values little-endian.
func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(f))
	}

	return buf
}

func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}

	return v
}
