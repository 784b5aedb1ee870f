package report

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/canopy.report/internal/fuels"
)

// SummaryOptions tunes WriteSummaryHTML.
type SummaryOptions struct {
	Title string
	// AssetsHost overrides where the echarts JavaScript is loaded from.
	// Empty uses the go-echarts default CDN.
	AssetsHost string
}

// WriteSummaryHTML renders a self-contained HTML page comparing the CBH
// candidates of every tree that produced layers, with a histogram of
// layer counts underneath.
func WriteSummaryHTML(w io.Writer, results []fuels.Result, o SummaryOptions) error {
	if o.Title == "" {
		o.Title = "Crown base height summary"
	}

	var (
		ids                   []string
		maxLAD, maxDist, last []opts.BarData
		breakpoints           []opts.ScatterData
		failed                int
	)
	layerCounts := make(map[int]int)
	for _, res := range results {
		rec := res.Record
		if rec.NLayers == 0 {
			if res.Err != nil && !errors.Is(res.Err, fuels.ErrNoLayers) {
				failed++
			}
			layerCounts[0]++
			continue
		}
		layerCounts[rec.NLayers]++
		ids = append(ids, res.TreeID)
		maxLAD = append(maxLAD, opts.BarData{Value: rec.MaxLAD.BaseHeight})
		maxDist = append(maxDist, opts.BarData{Value: rec.MaxDist.BaseHeight})
		last = append(last, opts.BarData{Value: rec.Last.BaseHeight})
		if rec.Breakpoint != nil {
			breakpoints = append(breakpoints, opts.ScatterData{Value: []interface{}{res.TreeID, rec.Breakpoint.Height}})
		}
	}

	initOpts := opts.Initialization{PageTitle: o.Title, Width: "100%", Height: "560px"}
	if o.AssetsHost != "" {
		initOpts.AssetsHost = o.AssetsHost
	}

	cbh := charts.NewBar()
	cbh.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: o.Title, Subtitle: fmt.Sprintf("trees=%d with layers=%d failed=%d", len(results), len(ids), failed)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Tree", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "CBH (m)", NameLocation: "middle", NameGap: 35}),
	)
	cbh.SetXAxis(ids).
		AddSeries("max LAD", maxLAD).
		AddSeries("max distance", maxDist).
		AddSeries("last", last)

	page := components.NewPage()
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}
	page.AddCharts(cbh)

	if len(breakpoints) > 0 {
		bp := charts.NewScatter()
		bp.SetGlobalOptions(
			charts.WithInitializationOpts(initOpts),
			charts.WithTitleOpts(opts.Title{Title: "Single-layer breakpoints", Subtitle: fmt.Sprintf("trees=%d", len(breakpoints))}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "Tree"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "Breakpoint (m)"}),
		)
		bp.AddSeries("breakpoint", breakpoints, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
		page.AddCharts(bp)
	}

	counts := make([]int, 0, len(layerCounts))
	for n := range layerCounts {
		counts = append(counts, n)
	}
	sort.Ints(counts)
	labels := make([]string, len(counts))
	bars := make([]opts.BarData, len(counts))
	for i, n := range counts {
		labels[i] = fmt.Sprintf("%d", n)
		bars[i] = opts.BarData{Value: layerCounts[n]}
	}
	hist := charts.NewBar()
	hist.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: "Fuel layers per tree"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	hist.SetXAxis(labels).
		AddSeries("trees", bars,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	page.AddCharts(hist)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	return nil
}
