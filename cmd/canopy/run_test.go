package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/canopy.report/internal/batch"
	"github.com/banshee-data/canopy.report/internal/config"
	"github.com/banshee-data/canopy.report/internal/db"
	"github.com/banshee-data/canopy.report/internal/fsutil"
	"github.com/banshee-data/canopy.report/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

// writeProfiles writes a two-tree profile table: tree A has two clean
// layers, tree E has no LAD at all.
func writeProfiles(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("treeID,height,lad\n")
	for h := 2; h < 12; h++ {
		lad := "0"
		switch {
		case h < 5:
			lad = "1"
		case h >= 8:
			lad = "1.75"
		}
		b.WriteString("A," + strconv.Itoa(h) + "," + lad + "\n")
		b.WriteString("E," + strconv.Itoa(h) + ",0\n")
	}
	path := filepath.Join(t.TempDir(), "profiles.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func TestRun_WritesAllOutputs(t *testing.T) {
	input := writeProfiles(t)
	outDir := filepath.Join(t.TempDir(), "out")
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	summary, err := run(context.Background(), config.EmptyFuelConfig(), options{
		input:  input,
		outDir: outDir,
		dbPath: dbPath,
		plots:  true,
		html:   true,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	want := batch.Summary{Trees: 2, WithLayers: 1, NoLayers: 1}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	for _, name := range []string{
		recordsFile,
		layersFile,
		summaryFile,
		filepath.Join(plotsDir, "A_lad.png"),
		filepath.Join(plotsDir, "E_lad.png"),
	} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("expected output %s: %v", name, err)
		}
	}

	records, err := os.ReadFile(filepath.Join(outDir, recordsFile))
	if err != nil {
		t.Fatalf("read records: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(records)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], "A,2,8,") {
		t.Errorf("unexpected record for A: %s", lines[1])
	}

	database, err := db.NewDB(dbPath)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer database.Close()
	runs, err := db.NewStore(database).ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].TreeCount != 2 || runs[0].Source != input {
		t.Errorf("unexpected stored runs: %+v", runs)
	}
}

func TestRun_MemoryFileSystemOnlyTables(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	_, err := run(context.Background(), config.EmptyFuelConfig(), options{
		input:  writeProfiles(t),
		outDir: "out",
		fs:     mfs,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	got := mfs.Files("out")
	want := []string{filepath.Join("out", recordsFile), filepath.Join("out", layersFile)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_BadTreeDoesNotSinkBatch(t *testing.T) {
	var b strings.Builder
	b.WriteString("treeID,height,lad\n")
	for h := 2; h < 12; h++ {
		lad := "0"
		if h < 5 || h >= 8 {
			lad = "1"
		}
		b.WriteString("A," + strconv.Itoa(h) + "," + lad + "\n")
	}
	b.WriteString("B,1.5,0.3\nB,1.5,0.4\nB,2.5,0.2\n")
	path := filepath.Join(t.TempDir(), "mixed.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	mfs := fsutil.NewMemoryFileSystem()
	summary, err := run(context.Background(), config.EmptyFuelConfig(), options{input: path, outDir: "out", fs: mfs})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	want := batch.Summary{Trees: 2, WithLayers: 1, Failed: 1}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	records, err := mfs.ReadFile(filepath.Join("out", recordsFile))
	if err != nil {
		t.Fatalf("read records: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(records)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], "A,2,") {
		t.Errorf("unexpected record for A: %s", lines[1])
	}
	if !strings.HasPrefix(lines[2], "B,") || !strings.Contains(lines[2], "malformed profile") {
		t.Errorf("expected failure marker for B, got %s", lines[2])
	}
}

func TestRun_Errors(t *testing.T) {
	t.Run("missing input", func(t *testing.T) {
		_, err := run(context.Background(), config.EmptyFuelConfig(), options{input: filepath.Join(t.TempDir(), "none.csv")})
		if err == nil || !strings.Contains(err.Error(), "open input") {
			t.Errorf("expected open error, got %v", err)
		}
	})

	t.Run("malformed table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.csv")
		os.WriteFile(path, []byte("tree,height\nA,1\n"), 0644)
		_, err := run(context.Background(), config.EmptyFuelConfig(), options{input: path})
		if err == nil || !strings.Contains(err.Error(), "missing column") {
			t.Errorf("expected column error, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := run(ctx, config.EmptyFuelConfig(), options{input: writeProfiles(t), fs: fsutil.NewMemoryFileSystem()})
		if err == nil || !strings.Contains(err.Error(), "interrupted") {
			t.Errorf("expected interruption error, got %v", err)
		}
	})
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fuels.json")
	if err := os.WriteFile(path, []byte(`{"min_height": 2, "min_fraction": 5, "workers": 2}`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(path, map[string]bool{})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.GetMinHeight() != 2 || cfg.GetMinFraction() != 5 || cfg.GetWorkers() != 2 {
		t.Errorf("file values not applied: %+v", cfg.Params())
	}

	cfg, err = loadConfig(path, map[string]bool{"min-height": true, "min-fraction": true})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.GetMinHeight() != *minHeight {
		t.Errorf("min-height flag not applied: %v", cfg.GetMinHeight())
	}
	if cfg.GetMinFraction() != *minFraction {
		t.Errorf("min-fraction flag not applied: %v", cfg.GetMinFraction())
	}
	if cfg.GetWorkers() != 2 {
		t.Errorf("unset flag overrode file value: %d", cfg.GetWorkers())
	}
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig("", map[string]bool{})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if diff := cmp.Diff(config.DefaultFuelConfig().Params(), cfg.Params()); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestFlagDefaultsMatchConfigDefaults(t *testing.T) {
	d := config.DefaultFuelConfig()
	if *minHeight != d.GetMinHeight() {
		t.Errorf("min-height default %v, config default %v", *minHeight, d.GetMinHeight())
	}
	if *minStep != d.GetMinStep() {
		t.Errorf("min-step default %v, config default %v", *minStep, d.GetMinStep())
	}
	if *minFraction != d.GetMinFraction() {
		t.Errorf("min-fraction default %v, config default %v", *minFraction, d.GetMinFraction())
	}
	if *hdepth1 != d.GetHDepth1Height() {
		t.Errorf("hdepth1 default %v, config default %v", *hdepth1, d.GetHDepth1Height())
	}
}
