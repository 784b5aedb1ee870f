package fuels

import (
	"errors"
	"fmt"
)

var (
	// ErrNoLayers means no non-negligible LAD interval exists above the
	// minimum height. It is a per-tree outcome, not a batch failure.
	ErrNoLayers = errors.New("no fuel layers found")

	// ErrConvergence means a merge loop exceeded its iteration bound.
	// Each merge removes a layer so this indicates an internal bug.
	ErrConvergence = errors.New("layer correction did not converge")
)

// cmpTol absorbs floating point error when comparing heights that are
// sums of bin widths.
const cmpTol = 1e-9

// Gap is a half-open height interval [Start, End) of negligible LAD.
type Gap struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Span returns End-Start.
func (g Gap) Span() float64 { return g.End - g.Start }

// Layer is a contiguous fuel layer [BaseHeight, TopHeight).
type Layer struct {
	// Index is the 1-based position of the layer in the final table.
	// It is zero on intermediate results.
	Index      int     `json:"layer"`
	BaseHeight float64 `json:"base_height"`
	TopHeight  float64 `json:"top_height"`
	Depth      float64 `json:"depth"`
	// Distance is the effective gap to the next layer up, 0 for the
	// topmost layer. It is recomputed after every merge or removal.
	Distance float64 `json:"distance"`
	// RawDistance is the span of the detected gap directly above the
	// layer. Diagnostic only; it is not updated when layers are removed.
	RawDistance float64 `json:"raw_distance"`
	LAD         float64 `json:"lad"`
	// LADFraction is LAD as a percentage of the tree's total LAD.
	LADFraction float64 `json:"lad_fraction"`
}

// Candidate is the layer chosen by one crown base height criterion.
type Candidate struct {
	Index      int     `json:"layer"`
	BaseHeight float64 `json:"base_height"`
	Depth      float64 `json:"depth"`
	// Distance is the effective gap directly below the layer, 0 for the
	// lowest layer.
	Distance    float64 `json:"distance"`
	LADFraction float64 `json:"lad_fraction"`
}

// Breakpoint is the changepoint of the cumulative LAD curve.
type Breakpoint struct {
	// Height is rounded to 0.1 m.
	Height       float64 `json:"height"`
	BelowPercent float64 `json:"below_percent"`
	AbovePercent float64 `json:"above_percent"`
	RSS          float64 `json:"rss"`
}

// CBHRecord is the per-tree summary. NLayers == 0 marks a tree for which
// no layer was found; every other field is then zero.
type CBHRecord struct {
	TreeID  string     `json:"tree_id"`
	NLayers int        `json:"nlayers"`
	MaxLAD  Candidate  `json:"maxlad"`
	MaxLAD1 *Candidate `json:"maxlad1,omitempty"`
	MaxDist Candidate  `json:"max"`
	Last    Candidate  `json:"last"`
	// Breakpoint is only attempted when a single layer survives and is
	// nil when the regression could not be fitted.
	Breakpoint *Breakpoint `json:"bp,omitempty"`
}

// Result bundles everything produced for one tree.
type Result struct {
	TreeID string    `json:"tree_id"`
	Record CBHRecord `json:"record"`
	Layers []Layer   `json:"layers"`
	// Err is the reason the record is empty or missing, if any.
	Err error `json:"-"`
}

// Params controls the pipeline. All fields may be overridden per call.
type Params struct {
	// MinHeight drops samples below it as ground noise (m).
	MinHeight float64 `json:"min_height"`
	// MinStep is the smallest acceptable depth and distance (m).
	// Zero derives it from the profile's bin width.
	MinStep float64 `json:"min_step"`
	// MinFraction is the smallest LAD share (%) a layer may keep.
	MinFraction float64 `json:"min_fraction"`
	// HDepth1Height is the depth (m) at or below which a lowest layer
	// holding the maximum LAD defers to the layer above.
	HDepth1Height float64 `json:"hdepth1_height"`
	// GapEpsilon is the LAD at or below which a bin counts as empty.
	GapEpsilon float64 `json:"gap_epsilon"`
	// GapPercentile, when positive, raises the empty-bin threshold to
	// this percentile of the tree's LAD values.
	GapPercentile float64 `json:"gap_percentile"`
	// Verbose sends this call's per-stage diagnostics, merges and drops
	// included, to monitoring.Logf even when global verbosity is off.
	Verbose bool `json:"verbose"`
}

// DefaultParams returns the standard settings.
func DefaultParams() Params {
	return Params{
		MinHeight:     1.5,
		MinStep:       0,
		MinFraction:   10,
		HDepth1Height: 2.5,
		GapEpsilon:    0.001,
	}
}

// Validate rejects out-of-range settings.
func (p Params) Validate() error {
	switch {
	case p.MinHeight < 0:
		return fmt.Errorf("min_height must be non-negative, got %v", p.MinHeight)
	case p.MinStep < 0:
		return fmt.Errorf("min_step must be non-negative, got %v", p.MinStep)
	case p.MinFraction < 0 || p.MinFraction > 100:
		return fmt.Errorf("min_fraction must be between 0 and 100, got %v", p.MinFraction)
	case p.HDepth1Height < 0:
		return fmt.Errorf("hdepth1_height must be non-negative, got %v", p.HDepth1Height)
	case p.GapEpsilon < 0:
		return fmt.Errorf("gap_epsilon must be non-negative, got %v", p.GapEpsilon)
	case p.GapPercentile < 0 || p.GapPercentile >= 100:
		return fmt.Errorf("gap_percentile must be in [0, 100), got %v", p.GapPercentile)
	}
	return nil
}
