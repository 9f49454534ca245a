package idf

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// IDFParams are the coefficients of I(t,T) = a·T^b / (t+c)^d with t in
// minutes, T in years and I in mm/h, plus fit diagnostics.
type IDFParams struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
	// R2 is NaN when every intensity in the grid is equal.
	R2          float64 `json:"r2"`
	NumYears    int     `json:"num_years"`
	Evaluations int     `json:"evaluations"`
}

// Intensity evaluates the fitted curve for duration t (min) and return period T (years).
func (p IDFParams) Intensity(t, T float64) float64 {
	return idfModel([4]float64{p.A, p.B, p.C, p.D}, t, T)
}

func idfModel(x [4]float64, t, T float64) float64 {
	return x[0] * math.Pow(T, x[1]) * math.Pow(t+x[2], -x[3])
}

type gridPoint struct {
	t, T, i float64
}

func flatten(m IntensityMatrix) []gridPoint {
	pts := make([]gridPoint, 0, len(m.ReturnPeriods)*len(m.Durations))
	for r, T := range m.ReturnPeriods {
		for c, t := range m.Durations {
			pts = append(pts, gridPoint{t: t, T: T, i: m.Values[r][c]})
		}
	}
	return pts
}

// RSquared computes the coefficient of determination of p over the matrix.
// It returns NaN when the matrix has zero total variance.
func RSquared(m IntensityMatrix, p IDFParams) float64 {
	pts := flatten(m)
	obs := make([]float64, len(pts))
	for k, pt := range pts {
		obs[k] = pt.i
	}
	mean := stat.Mean(obs, nil)

	var ssRes, ssTot float64
	for k, pt := range pts {
		r := pt.i - p.Intensity(pt.t, pt.T)
		ssRes += r * r
		dev := obs[k] - mean
		ssTot += dev * dev
	}
	if ssTot == 0 {
		return math.NaN()
	}
	return 1 - ssRes/ssTot
}

// FitCurve fits the IDF equation to every cell of the matrix at once. The
// starting point is the better of the configured initial guess and a grid of
// log-linear fits over c; it is then polished by a bounded Levenberg-Marquardt
// that holds parameters pinned at a bound fixed. Every residual evaluation
// counts against CurveMaxEvaluations. Running out of evaluations, or stalling
// at a point that is not stationary within the bounds, is reported as
// ErrCurveFitNotConverged; a converged fit with a poor R² is not an error.
func FitCurve(m IntensityMatrix, opts Options) (IDFParams, error) {
	pts := flatten(m)
	x0, evals, err := startingPoint(pts, opts)
	if err != nil {
		return IDFParams{Evaluations: evals}, err
	}
	x, used, err := levenbergMarquardt(pts, x0, opts, opts.CurveMaxEvaluations-evals)
	evals += used
	if err != nil {
		return IDFParams{Evaluations: evals}, err
	}
	p := IDFParams{A: x[0], B: x[1], C: x[2], D: x[3], Evaluations: evals}
	p.R2 = RSquared(m, p)
	return p, nil
}

// seedSteps is the number of intervals in the c grid of startingPoint.
const seedSteps = 200

// startingPoint returns the clamped candidate with the lowest residual sum of
// squares. With c fixed, ln I = ln a + b·ln T - d·ln(t+c) is linear in
// (ln a, b, d), so each grid value of c yields a candidate by least squares.
func startingPoint(pts []gridPoint, opts Options) ([4]float64, int, error) {
	bounds := opts.ParamBounds
	res := make([]float64, len(pts))

	var best [4]float64
	bestCost := math.Inf(1)
	evals := 0
	try := func(x [4]float64) {
		for k := range x {
			x[k] = bounds[k].clamp(x[k])
		}
		evals++
		if c := residuals(pts, x, res); finite(c) && c < bestCost {
			best, bestCost = x, c
		}
	}

	try(opts.InitialGuess)
	for _, c := range seedOffsets(bounds[2]) {
		if x, ok := logLinearFit(pts, c); ok {
			try(x)
		}
	}

	if evals > opts.CurveMaxEvaluations {
		return best, evals, newError(StageCurveFit, KindNonConvergence, ErrCurveFitNotConverged,
			"evaluation limit %d reached while choosing a starting point", opts.CurveMaxEvaluations)
	}
	if math.IsInf(bestCost, 1) {
		return best, evals, newError(StageCurveFit, KindNonConvergence, ErrCurveFitNotConverged,
			"model is not finite at any starting point")
	}
	return best, evals, nil
}

// seedOffsets spreads seedSteps+1 values of c over its bounds, capped at
// 200 minutes above the lower bound.
func seedOffsets(b Bounds) []float64 {
	hi := math.Min(b.Upper, b.Lower+200)
	if hi <= b.Lower {
		return []float64{b.Lower}
	}
	out := make([]float64, seedSteps+1)
	for k := range out {
		out[k] = b.Lower + (hi-b.Lower)*float64(k)/seedSteps
	}
	return out
}

// logLinearFit solves the log-space least-squares problem for a fixed c.
// Cells with a non-positive intensity are skipped.
func logLinearFit(pts []gridPoint, c float64) ([4]float64, bool) {
	var xs, ys []float64
	for _, pt := range pts {
		if pt.i <= 0 || pt.T <= 0 || pt.t+c <= 0 {
			continue
		}
		xs = append(xs, 1, math.Log(pt.T), -math.Log(pt.t+c))
		ys = append(ys, math.Log(pt.i))
	}
	if len(ys) < 3 {
		return [4]float64{}, false
	}
	var beta mat.VecDense
	if err := beta.SolveVec(mat.NewDense(len(ys), 3, xs), mat.NewVecDense(len(ys), ys)); err != nil {
		return [4]float64{}, false
	}
	x := [4]float64{math.Exp(beta.AtVec(0)), beta.AtVec(1), c, beta.AtVec(2)}
	return x, finite(x[:]...)
}

func levenbergMarquardt(pts []gridPoint, x [4]float64, opts Options, budget int) ([4]float64, int, error) {
	const (
		lambdaMin = 1e-12
		lambdaMax = 1e16
		dampFloor = 1e-6
	)
	n := len(pts)
	bounds := opts.ParamBounds
	tol := opts.CurveTolerance
	gtol := math.Sqrt(tol)

	evals := 0
	notConverged := func(format string, args ...any) ([4]float64, int, error) {
		return x, evals, newError(StageCurveFit, KindNonConvergence, ErrCurveFitNotConverged, format, args...)
	}
	if budget <= 0 {
		return notConverged("no evaluations left for refinement")
	}

	// A residual sum of squares this small is rounding noise.
	var sumSq float64
	for _, pt := range pts {
		sumSq += pt.i * pt.i
	}
	negligible := 1e-20 * 0.5 * sumSq

	res := make([]float64, n)
	cost := residuals(pts, x, res)
	evals++
	if !finite(cost) {
		return notConverged("model is not finite at the starting point")
	}

	J := mat.NewDense(n, 4, nil)
	trialRes := make([]float64, n)
	lambda := 1e-3
	settled := false

	for {
		if cost <= negligible {
			return x, evals, nil
		}
		jacobian(pts, x, J)

		var jtj mat.SymDense
		jtj.SymOuterK(1, J.T())
		var grad mat.VecDense
		grad.MulVec(J.T(), mat.NewVecDense(n, res))
		g := grad.RawVector().Data

		free := freeParams(x, g, bounds)
		cos := gradientCosine(J, g, free, cost)
		if cos <= tol || (settled && cos <= gtol) {
			return x, evals, nil
		}

		rhs := mat.NewVecDense(4, nil)
		var maxDiag float64
		for k := range free {
			if free[k] {
				rhs.SetVec(k, g[k])
				maxDiag = math.Max(maxDiag, jtj.At(k, k))
			}
		}
		floor := dampFloor * maxDiag
		if floor == 0 {
			floor = 1
		}

		for {
			if evals >= budget {
				return notConverged("no convergence after %d evaluations", evals)
			}
			if lambda > lambdaMax {
				if cos <= gtol {
					return x, evals, nil
				}
				return notConverged("stalled at a non-stationary point (gradient cosine %.3g)", cos)
			}

			damped := mat.NewSymDense(4, nil)
			for i := 0; i < 4; i++ {
				if !free[i] {
					damped.SetSym(i, i, 1)
					continue
				}
				for j := i + 1; j < 4; j++ {
					if free[j] {
						damped.SetSym(i, j, jtj.At(i, j))
					}
				}
				damped.SetSym(i, i, jtj.At(i, i)+lambda*math.Max(jtj.At(i, i), floor))
			}
			evals++

			var chol mat.Cholesky
			var step mat.VecDense
			if !chol.Factorize(damped) || chol.SolveVecTo(&step, rhs) != nil {
				lambda *= 10
				continue
			}

			var trial [4]float64
			for k := range trial {
				trial[k] = bounds[k].clamp(x[k] - step.AtVec(k))
			}
			trialCost := residuals(pts, trial, trialRes)
			if !finite(trialCost) || trialCost >= cost {
				lambda *= 10
				continue
			}

			moved := math.Sqrt(sqDist(trial, x))
			drop := (cost - trialCost) / cost
			x, cost = trial, trialCost
			copy(res, trialRes)
			lambda = math.Max(lambda/10, lambdaMin)
			settled = drop < tol || moved < tol*(norm(x)+tol)
			break
		}
	}
}

// residuals fills res with model-minus-observed and returns half the sum of squares.
func residuals(pts []gridPoint, x [4]float64, res []float64) float64 {
	for k, pt := range pts {
		res[k] = idfModel(x, pt.t, pt.T) - pt.i
	}
	return 0.5 * floats.Dot(res, res)
}

func jacobian(pts []gridPoint, x [4]float64, J *mat.Dense) {
	for k, pt := range pts {
		base := math.Pow(pt.T, x[1]) * math.Pow(pt.t+x[2], -x[3])
		f := x[0] * base
		J.Set(k, 0, base)
		J.Set(k, 1, f*math.Log(pt.T))
		J.Set(k, 2, -x[3]*f/(pt.t+x[2]))
		J.Set(k, 3, -f*math.Log(pt.t+x[2]))
	}
}

// freeParams marks the parameters the next step may move: a parameter at a
// bound whose descent direction points out of the box stays fixed.
func freeParams(x [4]float64, g []float64, bounds [4]Bounds) [4]bool {
	var free [4]bool
	for k, gk := range g {
		free[k] = !(x[k] <= bounds[k].Lower && gk > 0) && !(x[k] >= bounds[k].Upper && gk < 0)
	}
	return free
}

// gradientCosine is the largest cosine between the residual vector and a free
// Jacobian column. It is zero at a stationary point within the bounds.
func gradientCosine(J *mat.Dense, g []float64, free [4]bool, cost float64) float64 {
	rnorm := math.Sqrt(2 * cost)
	if rnorm == 0 {
		return 0
	}
	var m float64
	for k, gk := range g {
		if !free[k] {
			continue
		}
		cnorm := floats.Norm(mat.Col(nil, k, J), 2)
		if cnorm == 0 {
			continue
		}
		m = math.Max(m, math.Abs(gk)/(cnorm*rnorm))
	}
	return m
}

func sqDist(a, b [4]float64) float64 {
	var s float64
	for k := range a {
		d := a[k] - b[k]
		s += d * d
	}
	return s
}

func norm(a [4]float64) float64 {
	return math.Sqrt(sqDist(a, [4]float64{}))
}
