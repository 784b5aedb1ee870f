package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/banshee-data/canopy.report/internal/batch"
	"github.com/banshee-data/canopy.report/internal/config"
	"github.com/banshee-data/canopy.report/internal/db"
	"github.com/banshee-data/canopy.report/internal/fsutil"
	"github.com/banshee-data/canopy.report/internal/fuels"
	"github.com/banshee-data/canopy.report/internal/monitoring"
	"github.com/banshee-data/canopy.report/internal/profile"
	"github.com/banshee-data/canopy.report/internal/report"
)

const (
	recordsFile = "cbh_records.csv"
	layersFile  = "fuel_layers.csv"
	summaryFile = "summary.html"
	plotsDir    = "plots"
)

type options struct {
	input  string
	outDir string
	dbPath string
	plots  bool
	html   bool
	fs     fsutil.FileSystem // nil uses the OS
}

// run loads the profiles, analyses them and writes every requested
// output. Per-tree failures are reported in the outputs; only setup and
// I/O errors are returned.
func run(ctx context.Context, cfg *config.FuelConfig, o options) (batch.Summary, error) {
	fsys := o.fs
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	monitoring.SetVerbose(cfg.GetVerbose())

	f, err := os.Open(o.input)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("open input: %w", err)
	}
	profiles, err := profile.ReadCSV(f)
	f.Close()
	if err != nil {
		return batch.Summary{}, fmt.Errorf("read %s: %w", o.input, err)
	}
	monitoring.Logf("loaded %d trees from %s", len(profiles), o.input)

	params := cfg.Params()
	results, err := batch.NewRunner(params, cfg.GetWorkers()).Run(ctx, profiles)
	if err != nil {
		return batch.Summarize(results), fmt.Errorf("analysis interrupted: %w", err)
	}
	summary := batch.Summarize(results)

	if err := writeTable(fsys, o.outDir, recordsFile, results, report.WriteRecordsCSV); err != nil {
		return summary, err
	}
	if err := writeTable(fsys, o.outDir, layersFile, results, report.WriteLayersCSV); err != nil {
		return summary, err
	}

	if o.plots {
		dir := filepath.Join(o.outDir, plotsDir)
		for i, p := range profiles {
			if err := results[i].Err; err != nil && !errors.Is(err, fuels.ErrNoLayers) {
				continue
			}
			if _, err := report.PlotProfile(fsys, dir, p, results[i]); err != nil {
				return summary, err
			}
		}
	}

	if o.html {
		w, err := fsutil.CreateIn(fsys, o.outDir, summaryFile)
		if err != nil {
			return summary, fmt.Errorf("create %s: %w", summaryFile, err)
		}
		title := fmt.Sprintf("Crown base height summary - %s", filepath.Base(o.input))
		if err := report.WriteSummaryHTML(w, results, report.SummaryOptions{Title: title}); err != nil {
			w.Close()
			return summary, err
		}
		if err := w.Close(); err != nil {
			return summary, fmt.Errorf("close %s: %w", summaryFile, err)
		}
	}

	if o.dbPath != "" {
		database, err := db.NewDB(o.dbPath)
		if err != nil {
			return summary, fmt.Errorf("open database: %w", err)
		}
		defer database.Close()
		analysisRun := &db.Run{Params: params, Source: o.input}
		if err := db.NewStore(database).SaveRun(analysisRun, results); err != nil {
			return summary, fmt.Errorf("save run: %w", err)
		}
		monitoring.Logf("stored run %s in %s", analysisRun.RunID, o.dbPath)
	}

	return summary, nil
}

func writeTable(fsys fsutil.FileSystem, dir, name string, results []fuels.Result, write func(io.Writer, []fuels.Result) error) error {
	w, err := fsutil.CreateIn(fsys, dir, name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if err := write(w, results); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}
