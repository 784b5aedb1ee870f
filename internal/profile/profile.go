// Package profile holds the per-tree vertical Leaf Area Density profile
// consumed by the fuel layer pipeline, together with its validation and
// the CSV loader used by the command line tools.
package profile

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformed reports a profile that cannot be analysed: empty input,
// non-increasing heights, heights off the bin grid, or negative/non-finite
// LAD values.
var ErrMalformed = errors.New("malformed profile")

// gridTol is how far, in steps, a height may sit from the bin grid.
const gridTol = 1e-6

// Sample is one height bin of a LAD profile. The bin covers
// [Height, Height+step) where step is the profile's bin width.
type Sample struct {
	Height float64 `json:"height"`
	LAD    float64 `json:"lad"`
}

// Profile is the height-ordered LAD profile of a single tree.
// Values are treated as immutable once constructed.
type Profile struct {
	TreeID  string   `json:"tree_id"`
	Samples []Sample `json:"samples"`

	// BinWidth overrides the step derived from the samples. Zero means
	// use the smallest spacing between consecutive heights.
	BinWidth float64 `json:"bin_width,omitempty"`
}

// New copies samples into a Profile and validates it.
func New(treeID string, samples []Sample) (Profile, error) {
	p := Profile{TreeID: treeID, Samples: append([]Sample(nil), samples...)}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks the ordering and value constraints. Heights must lie on
// a grid of one step: consecutive heights may skip whole bins (rows left
// out for empty bins) but never part of one.
func (p Profile) Validate() error {
	if len(p.Samples) == 0 {
		return fmt.Errorf("tree %q: no samples: %w", p.TreeID, ErrMalformed)
	}
	if p.BinWidth < 0 {
		return fmt.Errorf("tree %q: negative bin width %v: %w", p.TreeID, p.BinWidth, ErrMalformed)
	}
	for i, s := range p.Samples {
		if math.IsNaN(s.Height) || math.IsInf(s.Height, 0) {
			return fmt.Errorf("tree %q: sample %d has non-finite height: %w", p.TreeID, i, ErrMalformed)
		}
		if math.IsNaN(s.LAD) || math.IsInf(s.LAD, 0) || s.LAD < 0 {
			return fmt.Errorf("tree %q: sample %d has invalid lad %v: %w", p.TreeID, i, s.LAD, ErrMalformed)
		}
		if i > 0 && s.Height <= p.Samples[i-1].Height {
			return fmt.Errorf("tree %q: height %v at sample %d does not increase: %w", p.TreeID, s.Height, i, ErrMalformed)
		}
	}
	step := p.Step()
	for i := 1; i < len(p.Samples); i++ {
		k := (p.Samples[i].Height - p.Samples[i-1].Height) / step
		if k < 1-gridTol || math.Abs(k-math.Round(k)) > gridTol {
			return fmt.Errorf("tree %q: height %v at sample %d is off the %v m bin grid: %w",
				p.TreeID, p.Samples[i].Height, i, step, ErrMalformed)
		}
	}
	return nil
}

// Len returns the number of samples.
func (p Profile) Len() int { return len(p.Samples) }

// Step returns the bin width, taken from BinWidth when set and from the
// smallest spacing between consecutive samples otherwise. A
// single-sample profile has a nominal step of 1.
func (p Profile) Step() float64 {
	if p.BinWidth > 0 {
		return p.BinWidth
	}
	step := 0.0
	for i := 1; i < len(p.Samples); i++ {
		if d := p.Samples[i].Height - p.Samples[i-1].Height; d > 0 && (step == 0 || d < step) {
			step = d
		}
	}
	if step == 0 {
		return 1
	}
	return step
}

// Fill returns a copy of p with a zero-LAD sample for every bin skipped
// between consecutive heights, so each sample sits one step above the
// previous. BinWidth is set to the step. p must be valid.
func Fill(p Profile) Profile {
	step := p.Step()
	out := Profile{TreeID: p.TreeID, BinWidth: step, Samples: make([]Sample, 0, len(p.Samples))}
	for i, s := range p.Samples {
		if i > 0 {
			prev := p.Samples[i-1].Height
			missing := int(math.Round((s.Height-prev)/step)) - 1
			for k := 1; k <= missing; k++ {
				out.Samples = append(out.Samples, Sample{Height: roundHeight(prev + float64(k)*step)})
			}
		}
		out.Samples = append(out.Samples, s)
	}
	return out
}

func roundHeight(h float64) float64 {
	return math.Round(h*1e9) / 1e9
}

// Top returns the upper edge of the highest bin.
func (p Profile) Top() float64 {
	if len(p.Samples) == 0 {
		return 0
	}
	return p.Samples[len(p.Samples)-1].Height + p.Step()
}

// Heights returns the sample heights as a new slice.
func (p Profile) Heights() []float64 {
	out := make([]float64, len(p.Samples))
	for i, s := range p.Samples {
		out[i] = s.Height
	}
	return out
}

// LADs returns the sample LAD values as a new slice.
func (p Profile) LADs() []float64 {
	out := make([]float64, len(p.Samples))
	for i, s := range p.Samples {
		out[i] = s.LAD
	}
	return out
}

// groundAlignedHeight is where the first bin is placed when the caller
// asks for no ground cut-off at all.
const groundAlignedHeight = 0.5

// Trim returns a new profile with every sample below minHeight removed.
//
// minHeight == 0 is special: nothing is dropped, and if the first sample
// sits below 0.5 m the whole profile is shifted up so it starts at 0.5 m.
// The step is measured before trimming so a single surviving bin keeps
// the profile's resolution.
func Trim(p Profile, minHeight float64) Profile {
	out := Profile{TreeID: p.TreeID, BinWidth: p.Step()}
	if len(p.Samples) == 0 {
		return out
	}
	if minHeight == 0 {
		shift := 0.0
		if first := p.Samples[0].Height; first < groundAlignedHeight {
			shift = groundAlignedHeight - first
		}
		out.Samples = make([]Sample, len(p.Samples))
		for i, s := range p.Samples {
			out.Samples[i] = Sample{Height: s.Height + shift, LAD: s.LAD}
		}
		return out
	}
	for _, s := range p.Samples {
		if s.Height >= minHeight {
			out.Samples = append(out.Samples, s)
		}
	}
	return out
}
