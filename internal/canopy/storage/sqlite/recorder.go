package sqlite

import (
	"database/sql"

	"github.com/banshee-data/canopy.report/internal/canopy/l4zonal"
	"github.com/banshee-data/canopy.report/internal/canopy/pipeline"
)

// SaveOutput records a run and all of its products in one transaction.
// run.RunID is filled in when empty.
func SaveOutput(db *sql.DB, run *Run, out *pipeline.Output) error {
	return NewRunStore(db).SaveOutput(run, out)
}

// SaveOutput records a run and all of its products in one transaction,
// stamping the run with the store's clock.
func (s *RunStore) SaveOutput(run *Run, out *pipeline.Output) error {
	run.TopHeight = out.TopHeight
	return inTx(s.db, "save run", func(tx *sql.Tx) error {
		if err := insertRun(tx, run, s.clock); err != nil {
			return err
		}
		if err := insertTreetops(tx, run.RunID, out.Treetops); err != nil {
			return err
		}
		if out.Crowns != nil {
			if err := insertCrowns(tx, run.RunID, out.Crowns.Regions); err != nil {
				return err
			}
		}
		for _, res := range []*l4zonal.Result{out.TreetopSummary, out.CrownSummary} {
			if res == nil {
				continue
			}
			if err := insertZoneStats(tx, run.RunID, res); err != nil {
				return err
			}
		}
		return nil
	})
}
