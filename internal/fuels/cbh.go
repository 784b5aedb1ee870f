package fuels

import (
	"fmt"
	"math"

	"github.com/banshee-data/canopy.report/internal/changepoint"
	"github.com/banshee-data/canopy.report/internal/profile"
)

// SelectCBH derives the crown base height candidates from the final
// layer table. Layers must be ordered bottom-up with LADFraction set.
// TreeID and Breakpoint are left for the caller.
func SelectCBH(layers []Layer, hdepth1 float64) CBHRecord {
	rec := CBHRecord{NLayers: len(layers)}
	if len(layers) == 0 {
		return rec
	}

	maxLAD := pickMaxLAD(layers)
	rec.MaxLAD = candidateAt(layers, maxLAD)
	if needsSecondLayerOverride(layers, maxLAD, hdepth1) {
		c := candidateAt(layers, 1)
		rec.MaxLAD1 = &c
	}
	rec.MaxDist = candidateAt(layers, pickMaxDistance(layers))
	rec.Last = candidateAt(layers, len(layers)-1)
	return rec
}

func candidateAt(layers []Layer, i int) Candidate {
	l := layers[i]
	c := Candidate{
		Index:       i + 1,
		BaseHeight:  l.BaseHeight,
		Depth:       l.Depth,
		LADFraction: l.LADFraction,
	}
	if i > 0 {
		c.Distance = layers[i-1].Distance
	}
	return c
}

// CumulativeBreakpoint fits a two-phase regression to cumulative LAD
// against height and reports where the slope changes. The curve starts
// at (lowest bin height, 0) and adds one point per bin at the bin's top.
func CumulativeBreakpoint(p profile.Profile) (*Breakpoint, error) {
	if p.Len() == 0 {
		return nil, fmt.Errorf("empty profile: %w", changepoint.ErrInsufficientData)
	}
	step := p.Step()
	xs := make([]float64, 0, p.Len()+1)
	ys := make([]float64, 0, p.Len()+1)
	xs = append(xs, p.Samples[0].Height)
	ys = append(ys, 0)
	cum := 0.0
	for _, s := range p.Samples {
		cum += s.LAD
		xs = append(xs, s.Height+step)
		ys = append(ys, cum)
	}
	if cum <= 0 {
		return nil, fmt.Errorf("tree %q has no lad: %w", p.TreeID, changepoint.ErrInsufficientData)
	}

	fit, err := changepoint.Fit(xs, ys, changepoint.Options{})
	if err != nil {
		return nil, err
	}
	below := interpolate(xs, ys, fit.Breakpoint) / cum * 100
	return &Breakpoint{
		Height:       math.Round(fit.Breakpoint*10) / 10,
		BelowPercent: below,
		AbovePercent: 100 - below,
		RSS:          fit.RSS,
	}, nil
}

// interpolate evaluates the piecewise linear curve through (xs, ys) at x.
// xs must be increasing; values outside the range are clamped.
func interpolate(xs, ys []float64, x float64) float64 {
	if x <= xs[0] {
		return ys[0]
	}
	for i := 1; i < len(xs); i++ {
		if x <= xs[i] {
			f := (x - xs[i-1]) / (xs[i] - xs[i-1])
			return ys[i-1] + f*(ys[i]-ys[i-1])
		}
	}
	return ys[len(ys)-1]
}
