package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/banshee-data/canopy.report/internal/canopy/l4zonal"
)

// ZoneStat is one statistic for one zone.
type ZoneStat struct {
	Layer     string  `json:"layer"`
	ZoneIndex int     `json:"zone_index"`
	ZoneID    string  `json:"zone_id"`
	Count     int     `json:"count"`
	Value     float64 `json:"value"` // NaN for no data
}

// ZoneStatStore provides persistence for zonal summaries.
type ZoneStatStore struct {
	db *sql.DB
}

// NewZoneStatStore creates a new ZoneStatStore.
func NewZoneStatStore(db *sql.DB) *ZoneStatStore {
	return &ZoneStatStore{db: db}
}

// InsertSummary stores every layer of res, one row per zone.
func (s *ZoneStatStore) InsertSummary(runID string, res *l4zonal.Result) error {
	return inTx(s.db, "zone stats", func(tx *sql.Tx) error {
		return insertZoneStats(tx, runID, res)
	})
}

func insertZoneStats(tx *sql.Tx, runID string, res *l4zonal.Result) error {
	stmt, err := tx.Prepare(`
		INSERT INTO canopy_zone_stats (run_id, layer, zone_index, zone_id, obs_count, value)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert zone stat: %w", err)
	}
	defer stmt.Close()

	for _, layer := range res.Layers {
		for z, v := range layer.Values {
			if _, err := stmt.Exec(runID, layer.Name, z, res.Zones.ZoneID(z), res.Count[z], nullFloat64(v)); err != nil {
				return fmt.Errorf("insert zone stat %s/%d: %w", layer.Name, z, err)
			}
		}
	}
	return nil
}

// ListByRun returns the stats of a run ordered by layer and zone. An empty
// layer selects all layers.
func (s *ZoneStatStore) ListByRun(runID, layer string) ([]ZoneStat, error) {
	query := `
		SELECT layer, zone_index, zone_id, obs_count, value
		FROM canopy_zone_stats
		WHERE run_id = ?
	`
	args := []interface{}{runID}
	if layer != "" {
		query += " AND layer = ?"
		args = append(args, layer)
	}
	query += " ORDER BY layer, zone_index"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list zone stats: %w", err)
	}
	defer rows.Close()

	var out []ZoneStat
	for rows.Next() {
		var zs ZoneStat
		var v sql.NullFloat64
		if err := rows.Scan(&zs.Layer, &zs.ZoneIndex, &zs.ZoneID, &zs.Count, &v); err != nil {
			return nil, fmt.Errorf("scan zone stat: %w", err)
		}
		zs.Value = floatOrNaN(v)
		out = append(out, zs)
	}
	return out, rows.Err()
}
