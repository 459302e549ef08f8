package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
	"github.com/banshee-data/canopy.report/internal/canopy/l2treetops"
)

// TreetopStore provides persistence for detected treetops.
type TreetopStore struct {
	db *sql.DB
}

// NewTreetopStore creates a new TreetopStore.
func NewTreetopStore(db *sql.DB) *TreetopStore {
	return &TreetopStore{db: db}
}

// InsertBatch stores treetops for a run in one transaction.
func (s *TreetopStore) InsertBatch(runID string, treetops []l2treetops.Treetop) error {
	return inTx(s.db, "treetops", func(tx *sql.Tx) error {
		return insertTreetops(tx, runID, treetops)
	})
}

func insertTreetops(tx *sql.Tx, runID string, treetops []l2treetops.Treetop) error {
	stmt, err := tx.Prepare(`
		INSERT INTO canopy_treetops (run_id, tree_id, x, y, cell_row, cell_col, height, win_radius)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert treetop: %w", err)
	}
	defer stmt.Close()

	for _, tt := range treetops {
		var radius interface{}
		if r, ok := tt.Attr(l1grid.AttrWindowRadius); ok {
			radius = nullFloat64(r)
		}
		if _, err := stmt.Exec(runID, tt.ID, tt.X, tt.Y, tt.Row, tt.Col, tt.Height(), radius); err != nil {
			return fmt.Errorf("insert treetop %d: %w", tt.ID, err)
		}
	}
	return nil
}

// ListByRun returns the treetops of a run ordered by id.
func (s *TreetopStore) ListByRun(runID string) ([]l2treetops.Treetop, error) {
	rows, err := s.db.Query(`
		SELECT tree_id, x, y, cell_row, cell_col, height, win_radius
		FROM canopy_treetops
		WHERE run_id = ?
		ORDER BY tree_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list treetops: %w", err)
	}
	defer rows.Close()

	var out []l2treetops.Treetop
	for rows.Next() {
		var tt l2treetops.Treetop
		var x, y, h float64
		var radius sql.NullFloat64
		if err := rows.Scan(&tt.ID, &x, &y, &tt.Row, &tt.Col, &h, &radius); err != nil {
			return nil, fmt.Errorf("scan treetop: %w", err)
		}
		tt.Point = l1grid.NewPoint(x, y)
		tt.Attrs[l1grid.AttrHeight] = h
		if radius.Valid {
			tt.Attrs[l1grid.AttrWindowRadius] = radius.Float64
		}
		out = append(out, tt)
	}
	return out, rows.Err()
}

// inTx runs fn in a transaction, rolling back on error.
func inTx(db *sql.DB, what string, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin %s tx: %w", what, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s tx: %w", what, err)
	}
	return nil
}
