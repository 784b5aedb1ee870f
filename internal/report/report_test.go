package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canopy.report/internal/fsutil"
	"github.com/banshee-data/canopy.report/internal/fuels"
	"github.com/banshee-data/canopy.report/internal/monitoring"
	"github.com/banshee-data/canopy.report/internal/profile"
	"github.com/banshee-data/canopy.report/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

type fixture struct {
	profiles []profile.Profile
	results  []fuels.Result
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	profiles := []profile.Profile{
		testutil.BandProfile("two layers", 2, 12, 1,
			testutil.Band{From: 2, To: 5, LAD: 1},
			testutil.Band{From: 8, To: 12, LAD: 1.75},
		),
		testutil.BandProfile("thin-bottom", 1.5, 15, 0.5,
			testutil.Band{From: 1.5, To: 2.5, LAD: 2.0},
			testutil.Band{From: 4, To: 10, LAD: 3.5 / 12},
			testutil.Band{From: 12, To: 15, LAD: 2.5 / 6},
		),
		testutil.BandProfile("single", 1.5, 20, 0.5,
			testutil.Band{From: 1.5, To: 6, LAD: 0.1},
			testutil.Band{From: 6, To: 20, LAD: 0.5},
		),
		testutil.BandProfile("empty", 2, 10, 1),
	}
	f := fixture{profiles: profiles}
	for _, p := range profiles {
		res, err := fuels.Run(p, fuels.DefaultParams())
		require.NoError(t, err)
		f.results = append(f.results, res)
	}
	f.results = append(f.results, fuels.Result{
		TreeID: "broken",
		Record: fuels.CBHRecord{TreeID: "broken"},
		Err:    fmt.Errorf("tree %q: %w", "broken", profile.ErrMalformed),
	})
	return f
}

func readCSV(t *testing.T, data []byte) []map[string]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	var out []map[string]string
	for _, row := range rows[1:] {
		m := make(map[string]string, len(row))
		for i, col := range rows[0] {
			m[col] = row[i]
		}
		out = append(out, m)
	}
	return out
}

func TestWriteRecordsCSV(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var buf bytes.Buffer
	require.NoError(t, WriteRecordsCSV(&buf, f.results))
	assert.True(t, strings.HasPrefix(buf.String(), strings.Join(RecordsHeader, ",")+"\n"))

	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 5)

	two := rows[0]
	assert.Equal(t, "two layers", two["treeID"])
	assert.Equal(t, "2", two["nlayers"])
	assert.Equal(t, "8", two["maxlad_Hcbh"])
	assert.Equal(t, "70.00", two["maxlad_lad"])
	assert.Equal(t, "8", two["max_Hcbh"])
	assert.Equal(t, "3", two["max_Hdist"])
	assert.Equal(t, "8", two["last_Hcbh"])
	assert.Empty(t, two["maxlad1_Hcbh"])
	assert.Empty(t, two["bp_Hcbh"])
	assert.Empty(t, two["error"])

	thin := rows[1]
	assert.Equal(t, "1.5", thin["maxlad_Hcbh"])
	assert.Equal(t, "4", thin["maxlad1_Hcbh"])
	assert.Equal(t, "1.5", thin["maxlad1_Hdist"])

	single := rows[2]
	assert.Equal(t, "1", single["nlayers"])
	assert.NotEmpty(t, single["bp_Hcbh"])
	assert.NotEmpty(t, single["bp_lad_below"])

	empty := rows[3]
	assert.Equal(t, "0", empty["nlayers"])
	assert.Empty(t, empty["maxlad_Hcbh"])
	assert.Empty(t, empty["last_Hcbh"])
	assert.Contains(t, empty["error"], "no fuel layers")

	broken := rows[4]
	assert.Equal(t, "0", broken["nlayers"])
	assert.Contains(t, broken["error"], "malformed")
}

func TestWriteLayersCSV(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var buf bytes.Buffer
	require.NoError(t, WriteLayersCSV(&buf, f.results))
	rows := readCSV(t, buf.Bytes())

	total := 0
	for _, res := range f.results {
		total += len(res.Layers)
	}
	require.Len(t, rows, total)

	assert.Equal(t, map[string]string{
		"treeID":   "two layers",
		"layer":    "1",
		"Hcbh":     "2",
		"Htop":     "5",
		"Hdepth":   "3",
		"Hdist":    "3",
		"raw_dist": "3",
		"lad":      "3",
		"lad_pct":  "30.00",
	}, rows[0])
	assert.Equal(t, "2", rows[1]["layer"])
	assert.Equal(t, "0", rows[1]["Hdist"])
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteCSV_PropagatesWriteErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	assert.Error(t, WriteRecordsCSV(failingWriter{}, f.results))
	assert.Error(t, WriteLayersCSV(failingWriter{}, f.results))
}

func TestPlotFileName(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"T01":         "T01_lad.png",
		"two layers":  "two_layers_lad.png",
		"../etc/pass": "etc_pass_lad.png",
		"plot-3.a_b":  "plot-3.a_b_lad.png",
		"":            "tree_lad.png",
	}
	for in, want := range tests {
		assert.Equal(t, want, PlotFileName(in), "input %q", in)
	}
}

func TestPlotProfile(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	mfs := fsutil.NewMemoryFileSystem()

	for i, p := range f.profiles {
		path, err := PlotProfile(mfs, "plots", p, f.results[i])
		require.NoError(t, err, "tree %s", p.TreeID)
		assert.Equal(t, filepath.Join("plots", PlotFileName(p.TreeID)), path)

		data, err := mfs.ReadFile(path)
		require.NoError(t, err)
		require.Greater(t, len(data), 8)
		assert.Equal(t, "\x89PNG\r\n\x1a\n", string(data[:8]), "tree %s is not a PNG", p.TreeID)
	}
	assert.Len(t, mfs.Files("plots"), len(f.profiles))
}

func TestCBHLines(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	labels := func(rec fuels.CBHRecord) []string {
		var out []string
		for _, l := range cbhLines(rec) {
			out = append(out, l.label)
		}
		return out
	}
	assert.Equal(t, []string{"max LAD", "max distance", "last"}, labels(f.results[0].Record))
	assert.Equal(t, []string{"max LAD", "max LAD (L2)", "max distance", "last"}, labels(f.results[1].Record))
	assert.Equal(t, []string{"max LAD", "max distance", "last", "breakpoint"}, labels(f.results[2].Record))
	assert.Empty(t, labels(f.results[3].Record))
}

func TestWriteSummaryHTML(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var buf bytes.Buffer
	require.NoError(t, WriteSummaryHTML(&buf, f.results, SummaryOptions{Title: "Plot 7 summary"}))
	html := buf.String()

	assert.Contains(t, html, "Plot 7 summary")
	assert.Contains(t, html, "two layers")
	assert.Contains(t, html, "thin-bottom")
	assert.Contains(t, html, "Single-layer breakpoints")
	assert.Contains(t, html, "Fuel layers per tree")
	assert.Contains(t, html, "trees=5 with layers=3 failed=1")
}

func TestWriteSummaryHTML_DefaultTitleNoBreakpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var buf bytes.Buffer
	require.NoError(t, WriteSummaryHTML(&buf, f.results[:1], SummaryOptions{}))
	html := buf.String()
	assert.Contains(t, html, "Crown base height summary")
	assert.NotContains(t, html, "Single-layer breakpoints")
}
