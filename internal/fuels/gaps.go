package fuels

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/canopy.report/internal/profile"
)

// GapThreshold returns the LAD at or below which a bin is treated as
// empty: GapEpsilon, raised to the GapPercentile-th empirical quantile of
// the profile's LAD values when GapPercentile is positive.
func GapThreshold(p profile.Profile, params Params) float64 {
	threshold := params.GapEpsilon
	if params.GapPercentile <= 0 || p.Len() == 0 {
		return threshold
	}
	lads := p.LADs()
	sort.Float64s(lads)
	if q := stat.Quantile(params.GapPercentile/100, stat.Empirical, lads, nil); q > threshold {
		threshold = q
	}
	return threshold
}

// DetectGaps returns the runs of consecutive bins whose LAD is at or
// below threshold, bottom to top. A gap ends at the height of the next
// non-empty bin, or at the top of the profile for a trailing run.
func DetectGaps(p profile.Profile, threshold float64) []Gap {
	var gaps []Gap
	start := -1
	for i, s := range p.Samples {
		if s.LAD <= threshold {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			gaps = append(gaps, Gap{Start: p.Samples[start].Height, End: s.Height})
			start = -1
		}
	}
	if start >= 0 {
		gaps = append(gaps, Gap{Start: p.Samples[start].Height, End: p.Top()})
	}
	return gaps
}
