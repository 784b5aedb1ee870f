// Package report writes fuel layer analysis results as CSV tables, PNG
// profile plots and an HTML summary page.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/banshee-data/canopy.report/internal/fuels"
)

// RecordsHeader is the column order of WriteRecordsCSV.
var RecordsHeader = []string{
	"treeID", "nlayers",
	"maxlad_Hcbh", "maxlad_Hdepth", "maxlad_Hdist", "maxlad_lad",
	"maxlad1_Hcbh", "maxlad1_Hdepth", "maxlad1_Hdist", "maxlad1_lad",
	"max_Hcbh", "max_Hdepth", "max_Hdist", "max_lad",
	"last_Hcbh", "last_Hdepth", "last_Hdist", "last_lad",
	"bp_Hcbh", "bp_lad_below", "bp_lad_above",
	"error",
}

// LayersHeader is the column order of WriteLayersCSV.
var LayersHeader = []string{
	"treeID", "layer", "Hcbh", "Htop", "Hdepth", "Hdist", "raw_dist", "lad", "lad_pct",
}

// WriteRecordsCSV writes one row per tree. Candidates that do not apply
// (no layers, no second-layer override, no breakpoint) are left empty.
func WriteRecordsCSV(w io.Writer, results []fuels.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RecordsHeader); err != nil {
		return fmt.Errorf("write records header: %w", err)
	}
	for _, res := range results {
		rec := res.Record
		row := []string{res.TreeID, strconv.Itoa(rec.NLayers)}
		hasLayers := rec.NLayers > 0
		row = append(row, candidateCells(&rec.MaxLAD, hasLayers)...)
		row = append(row, candidateCells(rec.MaxLAD1, rec.MaxLAD1 != nil)...)
		row = append(row, candidateCells(&rec.MaxDist, hasLayers)...)
		row = append(row, candidateCells(&rec.Last, hasLayers)...)
		if bp := rec.Breakpoint; bp != nil {
			row = append(row, formatHeight(bp.Height), formatPercent(bp.BelowPercent), formatPercent(bp.AbovePercent))
		} else {
			row = append(row, "", "", "")
		}
		errMsg := ""
		if res.Err != nil {
			errMsg = res.Err.Error()
		}
		row = append(row, errMsg)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record for tree %q: %w", res.TreeID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteLayersCSV writes one row per final fuel layer.
func WriteLayersCSV(w io.Writer, results []fuels.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LayersHeader); err != nil {
		return fmt.Errorf("write layers header: %w", err)
	}
	for _, res := range results {
		for _, l := range res.Layers {
			row := []string{
				res.TreeID,
				strconv.Itoa(l.Index),
				formatHeight(l.BaseHeight),
				formatHeight(l.TopHeight),
				formatHeight(l.Depth),
				formatHeight(l.Distance),
				formatHeight(l.RawDistance),
				strconv.FormatFloat(l.LAD, 'g', 6, 64),
				formatPercent(l.LADFraction),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write layer %d for tree %q: %w", l.Index, res.TreeID, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func candidateCells(c *fuels.Candidate, ok bool) []string {
	if !ok || c == nil {
		return []string{"", "", "", ""}
	}
	return []string{
		formatHeight(c.BaseHeight),
		formatHeight(c.Depth),
		formatHeight(c.Distance),
		formatPercent(c.LADFraction),
	}
}

// Heights are multiples of the bin width; print them without noise.
func formatHeight(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e6)/1e6, 'f', -1, 64)
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
