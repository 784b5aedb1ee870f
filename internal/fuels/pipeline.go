package fuels

import (
	"errors"
	"fmt"

	"github.com/banshee-data/canopy.report/internal/monitoring"
	"github.com/banshee-data/canopy.report/internal/profile"
)

type logFunc func(format string, v ...interface{})

func debugLogf(format string, v ...interface{}) {
	monitoring.Debugf("[fuels] "+format, v...)
}

// Run processes one tree end to end. Heights skipped between rows are
// analysed as empty bins.
//
// A returned error is fatal for the tree: malformed input, invalid
// params, or a merge loop that failed to converge. A tree without any
// fuel layer is not an error; its Result has an empty record, no layers
// and Err set to a wrapped ErrNoLayers. A failed changepoint fit leaves
// Record.Breakpoint nil.
func Run(p profile.Profile, params Params) (Result, error) {
	res := Result{TreeID: p.TreeID, Record: CBHRecord{TreeID: p.TreeID}}
	var logf logFunc = debugLogf
	if params.Verbose {
		logf = func(format string, v ...interface{}) { monitoring.Logf("[fuels] "+format, v...) }
	}

	if err := params.Validate(); err != nil {
		return res, fmt.Errorf("invalid params: %w", err)
	}
	if err := p.Validate(); err != nil {
		return res, err
	}

	trimmed := profile.Trim(profile.Fill(p), params.MinHeight)
	if trimmed.Len() == 0 {
		res.Err = fmt.Errorf("tree %q: no bins at or above %.2f m: %w", p.TreeID, params.MinHeight, ErrNoLayers)
		return res, nil
	}
	minStep := params.MinStep
	if minStep <= 0 {
		minStep = trimmed.Step()
	}

	threshold := GapThreshold(trimmed, params)
	gaps := DetectGaps(trimmed, threshold)
	layers, err := AssembleLayers(trimmed, gaps)
	if err != nil {
		return softFail(res, err)
	}
	logf("tree %q: %d gaps, %d layers (threshold %.4g, min step %.2f)", p.TreeID, len(gaps), len(layers), threshold, minStep)

	corrected, err := correctLayers(layers, minStep, logf)
	if err != nil {
		return res, fmt.Errorf("tree %q: %w", p.TreeID, err)
	}
	filtered, err := filterByLAD(corrected, trimmed, params.MinFraction, minStep, logf)
	if err != nil {
		return softFail(res, fmt.Errorf("tree %q: %w", p.TreeID, err))
	}
	for i := range filtered {
		filtered[i].Index = i + 1
	}
	logf("tree %q: %d layers after correction, %d after lad filter", p.TreeID, len(corrected), len(filtered))

	rec := SelectCBH(filtered, params.HDepth1Height)
	rec.TreeID = p.TreeID
	if len(filtered) == 1 {
		bp, err := CumulativeBreakpoint(trimmed)
		if err != nil {
			logf("tree %q: no breakpoint: %v", p.TreeID, err)
		} else {
			rec.Breakpoint = bp
		}
	}

	res.Record = rec
	res.Layers = filtered
	return res, nil
}

// softFail records ErrNoLayers on the result; any other error is fatal.
func softFail(res Result, err error) (Result, error) {
	if errors.Is(err, ErrNoLayers) {
		res.Err = err
		return res, nil
	}
	return res, err
}
