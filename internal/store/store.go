// Package store persists planner runs, their epochs and the provenance log
// in SQLite.
package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	config_json     TEXT NOT NULL,
	navigation_json TEXT,
	policy_json     TEXT,
	initial_params  BLOB,
	status          TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	finished_at     TEXT
);

CREATE TABLE IF NOT EXISTS epochs (
	run_id           TEXT NOT NULL,
	epoch            INTEGER NOT NULL,
	action           TEXT NOT NULL,
	reason           TEXT,
	candidate_return REAL,
	best_return      REAL,
	mean_log_prob    REAL,
	delta_norm       REAL,
	params           BLOB,
	elapsed_ms       INTEGER NOT NULL,
	created_at       TEXT NOT NULL,
	PRIMARY KEY (run_id, epoch),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	epoch         INTEGER NOT NULL,
	trigger_type  TEXT NOT NULL,
	record_json   TEXT,
	decision      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// #endregion schema

// #region store-struct
// Store manages planner runs in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Connection-scoped pragmas must hold for every statement.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-migrated database.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema on db.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region runs
// CreateRun inserts a run with a fresh id and running status.
func (s *Store) CreateRun(run Run) (Run, error) {
	run.RunID = uuid.New().String()
	run.Status = StatusRunning
	run.CreatedAt = time.Now().UTC()
	run.FinishedAt = time.Time{}

	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, kind, config_json, navigation_json, policy_json, initial_params, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Kind, run.ConfigJSON, nullIfEmpty(run.NavigationJSON), nullIfEmpty(run.PolicyJSON),
		encodeParams(run.InitialParams), run.Status, run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun marks a run finished or failed.
func (s *Store) FinishRun(runID, status string) error {
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, finished_at = ? WHERE run_id = ?`,
		status, time.Now().UTC().Format(time.RFC3339Nano), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrNotFound)
	}
	return nil
}

const runColumns = `run_id, kind, config_json, navigation_json, policy_json, initial_params, status, created_at, finished_at`

// GetRun retrieves a run by id.
func (s *Store) GetRun(id string) (Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var nav, pol, finished sql.NullString
	var params []byte
	var created string
	if err := row.Scan(&run.RunID, &run.Kind, &run.ConfigJSON, &nav, &pol, &params, &run.Status, &created, &finished); err != nil {
		return Run{}, err
	}
	run.NavigationJSON = nav.String
	run.PolicyJSON = pol.String
	run.InitialParams = decodeParams(params)
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if finished.Valid {
		run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
	}
	return run, nil
}

// #endregion runs

// #region epochs
// RecordEpoch inserts one epoch of a run.
func (s *Store) RecordEpoch(e Epoch) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO epochs (run_id, epoch, action, reason, candidate_return, best_return, mean_log_prob, delta_norm, params, elapsed_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Epoch, e.Action, nullIfEmpty(e.Reason), nullIfNaN(e.CandidateReturn), nullIfNaN(e.BestReturn),
		nullIfNaN(e.MeanLogProb), nullIfNaN(e.DeltaNorm), encodeParams(e.Params), e.ElapsedMs, e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert epoch %d: %w", e.Epoch, err)
	}
	return nil
}

const epochColumns = `run_id, epoch, action, reason, candidate_return, best_return, mean_log_prob, delta_norm, params, elapsed_ms, created_at`

// ListEpochs returns every epoch of a run in order.
func (s *Store) ListEpochs(runID string) ([]Epoch, error) {
	rows, err := s.db.Query(`SELECT `+epochColumns+` FROM epochs WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, fmt.Errorf("list epochs: %w", err)
	}
	defer rows.Close()

	var epochs []Epoch
	for rows.Next() {
		e, err := scanEpoch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan epoch: %w", err)
		}
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}

// BestEpoch returns the earliest epoch holding the run's highest incumbent return.
func (s *Store) BestEpoch(runID string) (Epoch, error) {
	row := s.db.QueryRow(
		`SELECT `+epochColumns+` FROM epochs WHERE run_id = ? ORDER BY best_return DESC, epoch ASC LIMIT 1`, runID,
	)
	e, err := scanEpoch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Epoch{}, fmt.Errorf("best epoch of %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Epoch{}, fmt.Errorf("best epoch of %s: %w", runID, err)
	}
	return e, nil
}

func scanEpoch(row scanner) (Epoch, error) {
	var e Epoch
	var reason sql.NullString
	var candidate, best, logProb, delta sql.NullFloat64
	var params []byte
	var created string
	err := row.Scan(&e.RunID, &e.Epoch, &e.Action, &reason, &candidate, &best,
		&logProb, &delta, &params, &e.ElapsedMs, &created)
	if err != nil {
		return Epoch{}, err
	}
	e.CandidateReturn = nanIfNull(candidate)
	e.BestReturn = nanIfNull(best)
	e.MeanLogProb = nanIfNull(logProb)
	e.DeltaNorm = nanIfNull(delta)
	e.Reason = reason.String
	e.Params = decodeParams(params)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return e, nil
}

// #endregion epochs

// #region params-encoding
func encodeParams(v []float64) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeParams(b []byte) []float64 {
	if len(b) < 8 {
		return nil
	}
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}

// SQLite stores NaN as NULL; map it explicitly both ways.
func nullIfNaN(f float64) interface{} {
	if math.IsNaN(f) {
		return nil
	}
	return f
}

func nanIfNull(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion params-encoding
