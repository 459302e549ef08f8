package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/banshee-data/canopy.report/internal/canopy/l3crowns"
)

// Crown is the stored summary of one crown. Cell membership is not stored;
// the label raster written next to the run holds it.
type Crown struct {
	TreeID    int     `json:"tree_id"`
	CellCount int     `json:"cell_count"`
	Area      float64 `json:"area"`
	Diameter  float64 `json:"diameter"`
	CentroidX float64 `json:"centroid_x"`
	CentroidY float64 `json:"centroid_y"`
	MaxHeight float64 `json:"max_height"`
}

// CrownStore provides persistence for crown summaries.
type CrownStore struct {
	db *sql.DB
}

// NewCrownStore creates a new CrownStore.
func NewCrownStore(db *sql.DB) *CrownStore {
	return &CrownStore{db: db}
}

// InsertBatch stores every region, empty ones included.
func (s *CrownStore) InsertBatch(runID string, regions []l3crowns.Region) error {
	return inTx(s.db, "crowns", func(tx *sql.Tx) error {
		return insertCrowns(tx, runID, regions)
	})
}

func insertCrowns(tx *sql.Tx, runID string, regions []l3crowns.Region) error {
	stmt, err := tx.Prepare(`
		INSERT INTO canopy_crowns (run_id, tree_id, cell_count, area, diameter, centroid_x, centroid_y, max_height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert crown: %w", err)
	}
	defer stmt.Close()

	for _, reg := range regions {
		_, err := stmt.Exec(runID, reg.TreetopID, reg.CellCount, reg.Area, reg.Diameter,
			nullFloat64(reg.CentroidX), nullFloat64(reg.CentroidY), nullFloat64(reg.MaxHeight))
		if err != nil {
			return fmt.Errorf("insert crown %d: %w", reg.TreetopID, err)
		}
	}
	return nil
}

// ListByRun returns the crowns of a run ordered by tree id.
func (s *CrownStore) ListByRun(runID string) ([]Crown, error) {
	rows, err := s.db.Query(`
		SELECT tree_id, cell_count, area, diameter, centroid_x, centroid_y, max_height
		FROM canopy_crowns
		WHERE run_id = ?
		ORDER BY tree_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list crowns: %w", err)
	}
	defer rows.Close()

	var out []Crown
	for rows.Next() {
		var c Crown
		var cx, cy, mh sql.NullFloat64
		if err := rows.Scan(&c.TreeID, &c.CellCount, &c.Area, &c.Diameter, &cx, &cy, &mh); err != nil {
			return nil, fmt.Errorf("scan crown: %w", err)
		}
		c.CentroidX, c.CentroidY, c.MaxHeight = floatOrNaN(cx), floatOrNaN(cy), floatOrNaN(mh)
		out = append(out, c)
	}
	return out, rows.Err()
}
