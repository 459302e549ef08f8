package sqlite

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/canopy.report/internal/timeutil"
)

// Run describes one processing run over a height raster.
type Run struct {
	RunID      string    `json:"run_id"`
	CHMPath    string    `json:"chm_path"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	ParamsJSON []byte    `json:"params_json"`
	TopHeight  float64   `json:"top_height"` // NaN when no treetops were found
	CreatedAt  time.Time `json:"created_at"`
}

// RunStore provides persistence for runs.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore creates a new RunStore stamping runs with the wall clock.
func NewRunStore(db *sql.DB) *RunStore {
	return NewRunStoreWithClock(db, timeutil.RealClock{})
}

// NewRunStoreWithClock creates a RunStore that takes CreatedAt from clock.
func NewRunStoreWithClock(db *sql.DB, clock timeutil.Clock) *RunStore {
	return &RunStore{db: db, clock: clock}
}

// Insert creates a run. If run.RunID is empty a new UUID is generated, and a
// zero CreatedAt is set to the store's clock.
func (s *RunStore) Insert(run *Run) error {
	return insertRun(s.db, run, s.clock)
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func insertRun(db execer, run *Run, clock timeutil.Clock) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = clock.Now()
	}
	if len(run.ParamsJSON) == 0 {
		run.ParamsJSON = []byte("{}")
	}

	_, err := db.Exec(`
		INSERT INTO canopy_runs (
			run_id, chm_path, raster_rows, raster_cols, params_json, top_height, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID,
		run.CHMPath,
		run.Rows,
		run.Cols,
		string(run.ParamsJSON),
		nullFloat64(run.TopHeight),
		run.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = `run_id, chm_path, raster_rows, raster_cols, params_json, top_height, created_at_ns`

func scanRun(sc interface{ Scan(...interface{}) error }) (*Run, error) {
	r := &Run{}
	var params string
	var top sql.NullFloat64
	var created int64
	if err := sc.Scan(&r.RunID, &r.CHMPath, &r.Rows, &r.Cols, &params, &top, &created); err != nil {
		return nil, err
	}
	r.ParamsJSON = []byte(params)
	r.TopHeight = floatOrNaN(top)
	r.CreatedAt = time.Unix(0, created)
	return r, nil
}

// Get returns a run by id, or sql.ErrNoRows.
func (s *RunStore) Get(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM canopy_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// List returns runs newest first. A limit of 0 or less returns all runs.
func (s *RunStore) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM canopy_runs ORDER BY created_at_ns DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Delete removes a run and, through the foreign keys, everything recorded
// for it.
func (s *RunStore) Delete(runID string) error {
	result, err := s.db.Exec("DELETE FROM canopy_runs WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
