package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
	"github.com/banshee-data/canopy.report/internal/canopy/l2treetops"
	"github.com/banshee-data/canopy.report/internal/canopy/l3crowns"
	"github.com/banshee-data/canopy.report/internal/canopy/l4zonal"
	"github.com/banshee-data/canopy.report/internal/canopy/pipeline"
	"github.com/banshee-data/canopy.report/internal/canopy/rasterio"
	"github.com/banshee-data/canopy.report/internal/canopy/render"
	"github.com/banshee-data/canopy.report/internal/canopy/storage/sqlite"
	"github.com/banshee-data/canopy.report/internal/canopy/vector"
	"github.com/banshee-data/canopy.report/internal/config"
	"github.com/banshee-data/canopy.report/internal/db"
	"github.com/banshee-data/canopy.report/internal/version"
)

const defaultDBPath = "canopy.db"

var errUsage = errors.New("usage")

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: canopy <command> [flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  treetops    Detect treetops and write them as GeoJSON points")
	fmt.Fprintln(out, "  crowns      Delineate crowns and write the crown label raster")
	fmt.Fprintln(out, "  summarize   Summarise treetops and crowns per zone")
	fmt.Fprintln(out, "  run         Run every stage and optionally record the run")
	fmt.Fprintln(out, "  runs        List recorded runs")
	fmt.Fprintln(out, "  migrate     Manage database migrations")
	fmt.Fprintln(out, "  version     Print build information")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Run 'canopy <command> -h' for command flags.")
}

// run dispatches args[0] to its command.
func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		printUsage(out)
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "treetops":
		return runTreetops(rest, out)
	case "crowns":
		return runCrowns(rest, out)
	case "summarize":
		return runPipeline(ctx, "summarize", rest, out)
	case "run":
		return runPipeline(ctx, "run", rest, out)
	case "runs":
		return runList(rest, out)
	case "migrate":
		return runMigrate(rest, out)
	case "version":
		fmt.Fprintln(out, version.String())
		return nil
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		printUsage(out)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// commonFlags are shared by every command that processes a raster.
type commonFlags struct {
	chm     *string
	cfgPath *string
	workers *int
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		chm:     fs.String("chm", "", "Canopy height raster (ESRI ASCII grid)"),
		cfgPath: fs.String("config", "", "Tuning config JSON (built-in defaults when empty)"),
		workers: fs.Int("workers", -1, "Worker goroutines, 0 = GOMAXPROCS (overrides config when >= 0)"),
	}
}

// load reads the tuning config and the height raster.
func (c commonFlags) load() (*config.TuningConfig, pipeline.Config, *l1grid.Raster, error) {
	if *c.chm == "" {
		return nil, pipeline.Config{}, nil, fmt.Errorf("-chm is required")
	}
	tuning, err := loadTuning(*c.cfgPath, *c.workers)
	if err != nil {
		return nil, pipeline.Config{}, nil, err
	}
	cfg, err := pipeline.ConfigFromTuning(tuning)
	if err != nil {
		return nil, pipeline.Config{}, nil, err
	}
	chm, err := rasterio.ReadFile(*c.chm)
	if err != nil {
		return nil, pipeline.Config{}, nil, err
	}
	return tuning, cfg, chm, nil
}

// loadTuning loads path, or the built-in defaults when path is empty, and
// applies a non-negative workers override.
func loadTuning(path string, workers int) (*config.TuningConfig, error) {
	var tuning *config.TuningConfig
	if path == "" {
		tuning = config.DefaultTuningConfig()
	} else {
		var err error
		if tuning, err = config.LoadTuningConfig(path); err != nil {
			return nil, err
		}
	}
	if workers >= 0 {
		tuning.Workers = &workers
	}
	return tuning, nil
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func runTreetops(args []string, out io.Writer) error {
	fs := newFlagSet("treetops", out)
	common := addCommonFlags(fs)
	outPath := fs.String("out", "treetops.geojson", "Output GeoJSON path")
	plotPath := fs.String("plot", "", "Optional PNG heatmap of the raster with treetops")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, cfg, chm, err := common.load()
	if err != nil {
		return err
	}
	tp := cfg.Treetops
	tp.Workers = cfg.Workers
	start := time.Now()
	treetops, err := l2treetops.Detect(chm, tp)
	if err != nil {
		return err
	}
	if err := vector.WriteFile(*outPath, vector.TreetopCollection(treetops)); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d treetops written to %s (%v)\n", len(treetops), *outPath, time.Since(start).Round(time.Millisecond))

	if *plotPath != "" {
		if err := render.SaveCHMPlot(*plotPath, chm, treetops, "Canopy height"); err != nil {
			return err
		}
		fmt.Fprintf(out, "plot written to %s\n", *plotPath)
	}
	return nil
}

func runCrowns(args []string, out io.Writer) error {
	fs := newFlagSet("crowns", out)
	common := addCommonFlags(fs)
	outPath := fs.String("out", "crowns.asc", "Output crown label raster")
	geoPath := fs.String("geojson", "", "Optional GeoJSON of crown points at each treetop with the crown bbox (no outlines)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, cfg, chm, err := common.load()
	if err != nil {
		return err
	}
	tp := cfg.Treetops
	tp.Workers = cfg.Workers
	treetops, err := l2treetops.Detect(chm, tp)
	if err != nil {
		return err
	}
	res, err := l3crowns.Delineate(chm, treetops, cfg.Crowns)
	if err != nil {
		return err
	}
	if err := rasterio.WriteFile(*outPath, res.LabelRaster(l1grid.DefaultNoData)); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d crowns covering %d cells written to %s\n", len(res.Regions), res.Claimed(), *outPath)

	if *geoPath != "" {
		if err := vector.WriteFile(*geoPath, vector.CrownCollection(res)); err != nil {
			return err
		}
		fmt.Fprintf(out, "crown features written to %s\n", *geoPath)
	}
	return nil
}

// runPipeline backs both summarize and run. summarize writes the zonal
// products only; run adds treetops, crowns, plots and persistence.
func runPipeline(ctx context.Context, name string, args []string, out io.Writer) error {
	full := name == "run"

	fs := newFlagSet(name, out)
	common := addCommonFlags(fs)
	outDir := fs.String("out", "canopy-out", "Output directory; run writes treetop and crown points as GeoJSON, crown labels as a raster")
	zonesPath := fs.String("zones", "", "Zone polygons (GeoJSON); grid zones when empty")
	zoneID := fs.String("zone-id", "", "Feature property holding the zone id")
	res := fs.Float64("res", 0, "Grid zone size in ground units (overrides config when > 0)")
	var plot *bool
	var dbPath *string
	if full {
		plot = fs.Bool("plot", false, "Write chm.png and report.html")
		dbPath = fs.String("db", "", "Record the run in this SQLite database")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	tuning, cfg, chm, err := common.load()
	if err != nil {
		return err
	}
	if *res > 0 {
		cfg.ZoneResolution = *res
	}
	var zones l4zonal.ZoneSpec
	if *zonesPath != "" {
		pz, err := vector.LoadZones(*zonesPath, *zoneID)
		if err != nil {
			return err
		}
		zones = pz
	}

	start := time.Now()
	result, err := pipeline.Run(ctx, chm, zones, cfg)
	if err != nil {
		return err
	}
	w, err := newOutputWriter(*outDir, out)
	if err != nil {
		return err
	}
	if err := w.writeZonal(result); err != nil {
		return err
	}

	if full {
		if err := w.writeFeatures(result); err != nil {
			return err
		}
		if *plot {
			if err := w.writePlots(chm, result); err != nil {
				return err
			}
		}
		if *dbPath != "" {
			runID, err := recordRun(*dbPath, *common.chm, tuning, chm, result)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "run %s recorded in %s\n", runID, *dbPath)
		}
	}

	fmt.Fprintf(out, "%d treetops, %d zones, top height %s in %v\n",
		len(result.Treetops), result.Zones.NumZones(), formatHeight(result.TopHeight), time.Since(start).Round(time.Millisecond))
	return nil
}

func runList(args []string, out io.Writer) error {
	fs := newFlagSet("runs", out)
	dbPath := fs.String("db", defaultDBPath, "SQLite database")
	limit := fs.Int("limit", 20, "Maximum runs to list, 0 = all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	runs, err := sqlite.NewRunStore(database.DB).List(*limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%s  %s  %dx%d  top=%s  %s\n",
			r.RunID, r.CreatedAt.Format(time.RFC3339), r.Rows, r.Cols, formatHeight(r.TopHeight), r.CHMPath)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
	}
	return nil
}

func runMigrate(args []string, out io.Writer) error {
	fs := newFlagSet("migrate", out)
	dbPath := fs.String("db", defaultDBPath, "SQLite database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return db.RunMigrateCommand(fs.Args(), *dbPath, out)
}
