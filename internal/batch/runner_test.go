package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canopy.report/internal/fuels"
	"github.com/banshee-data/canopy.report/internal/monitoring"
	"github.com/banshee-data/canopy.report/internal/profile"
	"github.com/banshee-data/canopy.report/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func twoLayerTree(id string) profile.Profile {
	return testutil.BandProfile(id, 2, 12, 1,
		testutil.Band{From: 2, To: 5, LAD: 1},
		testutil.Band{From: 8, To: 12, LAD: 1.75},
	)
}

func TestRunner_ResultsInInputOrder(t *testing.T) {
	t.Parallel()

	var profiles []profile.Profile
	for i := 0; i < 20; i++ {
		profiles = append(profiles, twoLayerTree(fmt.Sprintf("t%02d", i)))
	}
	r := NewRunner(fuels.DefaultParams(), 4)
	results, err := r.Run(context.Background(), profiles)
	require.NoError(t, err)
	require.Len(t, results, len(profiles))
	for i, res := range results {
		assert.Equal(t, profiles[i].TreeID, res.TreeID)
		assert.Equal(t, profiles[i].TreeID, res.Record.TreeID)
		assert.NoError(t, res.Err)
		assert.Equal(t, 2, res.Record.NLayers)
	}
}

func TestRunner_IsolatesFailures(t *testing.T) {
	t.Parallel()

	bad := profile.Profile{TreeID: "bad", Samples: []profile.Sample{{Height: 3, LAD: 1}, {Height: 2, LAD: 1}}}
	empty := testutil.BandProfile("empty", 2, 10, 1)
	profiles := []profile.Profile{twoLayerTree("a"), bad, empty, twoLayerTree("b")}

	results, err := NewRunner(fuels.DefaultParams(), 2).Run(context.Background(), profiles)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.NoError(t, results[0].Err)
	assert.True(t, errors.Is(results[1].Err, profile.ErrMalformed), "got %v", results[1].Err)
	assert.Equal(t, "bad", results[1].Record.TreeID)
	assert.Equal(t, 0, results[1].Record.NLayers)
	assert.True(t, errors.Is(results[2].Err, fuels.ErrNoLayers), "got %v", results[2].Err)
	assert.NoError(t, results[3].Err)

	s := Summarize(results)
	assert.Equal(t, Summary{Trees: 4, WithLayers: 2, NoLayers: 1, Failed: 1}, s)
	assert.Equal(t, "4 trees: 2 with layers, 1 without layers, 1 failed", s.String())
}

func TestRunner_RespectsWorkerLimit(t *testing.T) {
	t.Parallel()

	var active, peak int32
	r := NewRunner(fuels.DefaultParams(), 3)
	r.process = func(p profile.Profile, params fuels.Params) (fuels.Result, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return fuels.Result{TreeID: p.TreeID}, nil
	}

	profiles := make([]profile.Profile, 12)
	for i := range profiles {
		profiles[i] = profile.Profile{TreeID: fmt.Sprint(i)}
	}
	_, err := r.Run(context.Background(), profiles)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&peak), int32(1))
}

func TestRunner_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	profiles := []profile.Profile{twoLayerTree("a"), twoLayerTree("b")}
	results, err := NewRunner(fuels.DefaultParams(), 1).Run(ctx, profiles)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	for i, res := range results {
		assert.Equal(t, profiles[i].TreeID, res.TreeID)
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
}

func TestRunner_CancelMidBatch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	r := NewRunner(fuels.DefaultParams(), 1)
	r.process = func(p profile.Profile, params fuels.Params) (fuels.Result, error) {
		once.Do(cancel)
		return fuels.Result{TreeID: p.TreeID, Record: fuels.CBHRecord{TreeID: p.TreeID, NLayers: 1}}, nil
	}

	profiles := make([]profile.Profile, 10)
	for i := range profiles {
		profiles[i] = profile.Profile{TreeID: fmt.Sprint(i)}
	}
	results, err := r.Run(ctx, profiles)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 10)

	assert.NoError(t, results[0].Err, "the tree that was running completes")
	skipped := 0
	for _, res := range results[1:] {
		if errors.Is(res.Err, context.Canceled) {
			skipped++
		}
	}
	assert.Positive(t, skipped)
}

func TestRunner_DefaultsWorkersToCPUCount(t *testing.T) {
	t.Parallel()

	r := &Runner{Params: fuels.DefaultParams()}
	assert.Positive(t, r.workers())
	results, err := r.Run(context.Background(), []profile.Profile{twoLayerTree("x")})
	require.NoError(t, err)
	assert.NoError(t, results[0].Err)
}
