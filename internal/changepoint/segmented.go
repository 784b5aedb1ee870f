// Package changepoint fits continuous two-phase (segmented) linear
// regressions and reports the height at which the slope changes.
//
// The fit starts from an ordinary least squares line, seeds the
// breakpoint with a grid search over interior observations, and refines
// it with Muggeo's iterative linearisation.
package changepoint

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientData is returned when there are too few distinct x
	// values to support two segments.
	ErrInsufficientData = errors.New("insufficient data for segmented regression")

	// ErrNoConvergence is returned when the breakpoint iteration does not
	// settle, leaves the data range, or finds no change in slope.
	ErrNoConvergence = errors.New("segmented regression did not converge")
)

// Options tunes Fit. Zero values select the defaults.
type Options struct {
	// MinDistinct is the minimum number of distinct x values. Default 6.
	MinDistinct int
	// MaxIter bounds the refinement iterations. Default 30.
	MaxIter int
	// Tol is the convergence tolerance on the breakpoint, as a fraction
	// of the x range. Default 1e-6.
	Tol float64
}

func (o Options) withDefaults() Options {
	if o.MinDistinct <= 0 {
		o.MinDistinct = 6
	}
	if o.MaxIter <= 0 {
		o.MaxIter = 30
	}
	if o.Tol <= 0 {
		o.Tol = 1e-6
	}
	return o
}

// Result describes a fitted two-phase model
// y = Intercept + LeftSlope*x + (RightSlope-LeftSlope)*max(0, x-Breakpoint).
type Result struct {
	Breakpoint float64
	Intercept  float64
	LeftSlope  float64
	RightSlope float64
	RSS        float64
	// LinearRSS is the residual sum of squares of the single-line fit.
	LinearRSS  float64
	Iterations int
}

// Predict evaluates the fitted model at x.
func (r Result) Predict(x float64) float64 {
	y := r.Intercept + r.LeftSlope*x
	if x > r.Breakpoint {
		y += (r.RightSlope - r.LeftSlope) * (x - r.Breakpoint)
	}
	return y
}

// Fit estimates a single breakpoint for the points (xs[i], ys[i]).
// Inputs need not be sorted; they are not modified.
func Fit(xs, ys []float64, opts Options) (Result, error) {
	opts = opts.withDefaults()
	if len(xs) != len(ys) {
		return Result{}, fmt.Errorf("length mismatch: %d x values, %d y values", len(xs), len(ys))
	}
	x, y := sortedCopy(xs, ys)
	distinct := distinctValues(x)
	if len(distinct) < opts.MinDistinct {
		return Result{}, fmt.Errorf("%d distinct x values, need %d: %w", len(distinct), opts.MinDistinct, ErrInsufficientData)
	}
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) || math.IsInf(x[i], 0) || math.IsInf(y[i], 0) {
			return Result{}, fmt.Errorf("non-finite observation at index %d: %w", i, ErrInsufficientData)
		}
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	linRSS := 0.0
	for i := range x {
		r := y[i] - alpha - beta*x[i]
		linRSS += r * r
	}

	// Seed: every interior distinct x leaving at least two points on the
	// right and three (including the hinge) on the left.
	seed, seedRSS := math.NaN(), math.Inf(1)
	for k := 2; k <= len(distinct)-3; k++ {
		_, rss, err := fitHinge(x, y, distinct[k])
		if err != nil {
			continue
		}
		if rss < seedRSS {
			seed, seedRSS = distinct[k], rss
		}
	}
	if math.IsNaN(seed) {
		return Result{}, fmt.Errorf("no admissible breakpoint: %w", ErrNoConvergence)
	}

	xmin, xmax := distinct[0], distinct[len(distinct)-1]
	tol := opts.Tol * (xmax - xmin)
	psi := seed
	iter := 0
	converged := false
	for iter < opts.MaxIter {
		iter++
		coef, err := fitMuggeo(x, y, psi)
		if err != nil {
			return Result{}, fmt.Errorf("iteration %d: %v: %w", iter, err, ErrNoConvergence)
		}
		slopeChange, gamma := coef[2], coef[3]
		if math.Abs(slopeChange) < 1e-9*math.Max(1, math.Abs(coef[1])) {
			return Result{}, fmt.Errorf("no change in slope: %w", ErrNoConvergence)
		}
		next := psi + gamma/slopeChange
		if next <= xmin || next >= xmax {
			return Result{}, fmt.Errorf("breakpoint %.4f left data range [%.4f, %.4f]: %w", next, xmin, xmax, ErrNoConvergence)
		}
		step := math.Abs(next - psi)
		psi = next
		if step <= tol {
			converged = true
			break
		}
	}
	if !converged {
		return Result{}, fmt.Errorf("breakpoint still moving after %d iterations: %w", iter, ErrNoConvergence)
	}

	coef, rss, err := fitHinge(x, y, psi)
	if err != nil || rss > seedRSS {
		// The linearisation can settle on a slightly worse local optimum
		// than the grid seed; keep whichever explains the data better.
		psi = seed
		coef, rss, err = fitHinge(x, y, psi)
		if err != nil {
			return Result{}, fmt.Errorf("refit at seed: %v: %w", err, ErrNoConvergence)
		}
	}
	return Result{
		Breakpoint: psi,
		Intercept:  coef[0],
		LeftSlope:  coef[1],
		RightSlope: coef[1] + coef[2],
		RSS:        rss,
		LinearRSS:  linRSS,
		Iterations: iter,
	}, nil
}

// fitHinge solves y = b0 + b1*x + b2*(x-psi)+ by least squares.
func fitHinge(x, y []float64, psi float64) ([]float64, float64, error) {
	n := len(x)
	design := mat.NewDense(n, 3, nil)
	for i, xi := range x {
		design.Set(i, 0, 1)
		design.Set(i, 1, xi)
		design.Set(i, 2, math.Max(0, xi-psi))
	}
	coef, err := solve(design, y)
	if err != nil {
		return nil, 0, err
	}
	return coef, residualSS(design, y, coef), nil
}

// fitMuggeo solves y = b0 + b1*x + b2*(x-psi)+ + g*(-I(x>psi)).
func fitMuggeo(x, y []float64, psi float64) ([]float64, error) {
	n := len(x)
	design := mat.NewDense(n, 4, nil)
	for i, xi := range x {
		design.Set(i, 0, 1)
		design.Set(i, 1, xi)
		if xi > psi {
			design.Set(i, 2, xi-psi)
			design.Set(i, 3, -1)
		}
	}
	return solve(design, y)
}

func solve(design *mat.Dense, y []float64) ([]float64, error) {
	var b mat.VecDense
	if err := b.SolveVec(design, mat.NewVecDense(len(y), append([]float64(nil), y...))); err != nil {
		return nil, err
	}
	return mat.Col(nil, 0, &b), nil
}

func residualSS(design *mat.Dense, y, coef []float64) float64 {
	var fitted mat.VecDense
	fitted.MulVec(design, mat.NewVecDense(len(coef), coef))
	res := make([]float64, len(y))
	floats.SubTo(res, y, fitted.RawVector().Data)
	return floats.Dot(res, res)
}

func sortedCopy(xs, ys []float64) ([]float64, []float64) {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	x := make([]float64, len(xs))
	y := make([]float64, len(ys))
	for i, j := range idx {
		x[i], y[i] = xs[j], ys[j]
	}
	return x, y
}

func distinctValues(sorted []float64) []float64 {
	var out []float64
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
