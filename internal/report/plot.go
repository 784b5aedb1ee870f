package report

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/canopy.report/internal/fsutil"
	"github.com/banshee-data/canopy.report/internal/fuels"
	"github.com/banshee-data/canopy.report/internal/profile"
	"github.com/banshee-data/canopy.report/internal/security"
)

var (
	profileColor = color.RGBA{R: 34, G: 120, B: 60, A: 255}
	layerColor   = color.RGBA{R: 120, G: 190, B: 120, A: 90}
	cbhColors    = map[string]color.Color{
		"max LAD":      color.RGBA{R: 200, G: 40, B: 40, A: 255},
		"max LAD (L2)": color.RGBA{R: 230, G: 120, B: 40, A: 255},
		"max distance": color.RGBA{R: 40, G: 80, B: 200, A: 255},
		"last":         color.RGBA{R: 110, G: 110, B: 110, A: 255},
		"breakpoint":   color.RGBA{R: 150, G: 50, B: 170, A: 255},
	}
)

// PlotFileName returns the PNG file name used for a tree.
func PlotFileName(treeID string) string {
	return security.SanitizeFilename(treeID, "tree") + "_lad.png"
}

// NewProfilePlot draws a tree's LAD profile (LAD on x, height on y) with
// the final fuel layers shaded and each CBH candidate as a horizontal
// line.
func NewProfilePlot(p profile.Profile, res fuels.Result) (*plot.Plot, error) {
	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Tree %s - LAD profile (%d layers)", p.TreeID, res.Record.NLayers)
	pl.X.Label.Text = "LAD (m²/m³)"
	pl.Y.Label.Text = "Height (m)"

	step := p.Step()
	maxLAD := 0.0
	pts := make(plotter.XYs, 0, 2*p.Len())
	for _, s := range p.Samples {
		pts = append(pts, plotter.XY{X: s.LAD, Y: s.Height}, plotter.XY{X: s.LAD, Y: s.Height + step})
		if s.LAD > maxLAD {
			maxLAD = s.LAD
		}
	}
	if maxLAD == 0 {
		maxLAD = 1
	}

	for _, l := range res.Layers {
		band, err := plotter.NewPolygon(plotter.XYs{
			{X: 0, Y: l.BaseHeight}, {X: maxLAD, Y: l.BaseHeight},
			{X: maxLAD, Y: l.TopHeight}, {X: 0, Y: l.TopHeight},
		})
		if err != nil {
			return nil, err
		}
		band.Color = layerColor
		band.LineStyle.Width = 0
		pl.Add(band)
	}

	if len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = profileColor
		line.Width = vg.Points(1.5)
		pl.Add(line)
		pl.Legend.Add("LAD", line)
	}

	for _, c := range cbhLines(res.Record) {
		line, err := plotter.NewLine(plotter.XYs{{X: 0, Y: c.height}, {X: maxLAD, Y: c.height}})
		if err != nil {
			return nil, err
		}
		line.Color = cbhColors[c.label]
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		pl.Add(line)
		pl.Legend.Add(fmt.Sprintf("%s %.1f m", c.label, c.height), line)
	}

	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10
	return pl, nil
}

type cbhLine struct {
	label  string
	height float64
}

func cbhLines(rec fuels.CBHRecord) []cbhLine {
	if rec.NLayers == 0 {
		return nil
	}
	lines := []cbhLine{{"max LAD", rec.MaxLAD.BaseHeight}}
	if rec.MaxLAD1 != nil {
		lines = append(lines, cbhLine{"max LAD (L2)", rec.MaxLAD1.BaseHeight})
	}
	lines = append(lines,
		cbhLine{"max distance", rec.MaxDist.BaseHeight},
		cbhLine{"last", rec.Last.BaseHeight},
	)
	if rec.Breakpoint != nil {
		lines = append(lines, cbhLine{"breakpoint", rec.Breakpoint.Height})
	}
	return lines
}

// PlotProfile renders NewProfilePlot as a PNG in dir and returns the
// file path.
func PlotProfile(fsys fsutil.FileSystem, dir string, p profile.Profile, res fuels.Result) (string, error) {
	pl, err := NewProfilePlot(p, res)
	if err != nil {
		return "", fmt.Errorf("tree %q: build plot: %w", p.TreeID, err)
	}
	wt, err := pl.WriterTo(6*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return "", fmt.Errorf("tree %q: render plot: %w", p.TreeID, err)
	}

	name := PlotFileName(p.TreeID)
	f, err := fsutil.CreateIn(fsys, dir, name)
	if err != nil {
		return "", fmt.Errorf("tree %q: create plot file: %w", p.TreeID, err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return "", fmt.Errorf("tree %q: save plot: %w", p.TreeID, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("tree %q: save plot: %w", p.TreeID, err)
	}
	return filepath.Join(dir, name), nil
}
