// Package testutil provides shared test utilities and fixtures.
//
// Profiles built here use integer bin indices so heights stay exact for
// the bin widths used in tests (0.5 m and 1 m).
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/canopy.report/internal/profile"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Band is a constant-LAD height interval [From, To).
type Band struct {
	From, To float64
	LAD      float64
}

// BandProfile builds a profile with bins of width step starting at from
// and stopping before to. A bin takes the LAD of the first band containing
// its lower edge and zero otherwise.
func BandProfile(treeID string, from, to, step float64, bands ...Band) profile.Profile {
	p := profile.Profile{TreeID: treeID}
	n := int(math.Round((to - from) / step))
	for i := 0; i < n; i++ {
		h := roundHeight(from + float64(i)*step)
		lad := 0.0
		for _, b := range bands {
			if h >= b.From-1e-9 && h < b.To-1e-9 {
				lad = b.LAD
				break
			}
		}
		p.Samples = append(p.Samples, profile.Sample{Height: h, LAD: lad})
	}
	return p
}

// MustProfile builds a validated profile from parallel height and LAD
// slices and panics on malformed input.
func MustProfile(treeID string, heights, lads []float64) profile.Profile {
	if len(heights) != len(lads) {
		panic("testutil: heights and lads differ in length")
	}
	samples := make([]profile.Sample, len(heights))
	for i := range heights {
		samples[i] = profile.Sample{Height: heights[i], LAD: lads[i]}
	}
	p, err := profile.New(treeID, samples)
	if err != nil {
		panic(err)
	}
	return p
}

func roundHeight(h float64) float64 {
	return math.Round(h*1e6) / 1e6
}
