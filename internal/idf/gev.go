package idf

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/optimize"
)

const eulerGamma = 0.5772156649015329

// GEVParams are the fitted Generalized Extreme Value parameters. Shape follows
// the hydrological sign convention, F(x) = exp(-(1+ξz)^(-1/ξ)), so a positive
// shape means a heavy upper tail.
type GEVParams struct {
	Shape    float64 `json:"shape"`
	Location float64 `json:"location"`
	Scale    float64 `json:"scale"`
}

// CDF evaluates the GEV cumulative distribution function.
func (p GEVParams) CDF(x float64) float64 {
	z := (x - p.Location) / p.Scale
	if p.Shape == 0 {
		return math.Exp(-math.Exp(-z))
	}
	t := p.Shape * z
	if t <= -1 {
		if p.Shape > 0 {
			return 0
		}
		return 1
	}
	return math.Exp(-math.Exp(-math.Log1p(t) / p.Shape))
}

// Quantile returns the depth whose non-exceedance probability is prob.
// Shapes within tol of zero use the Gumbel closed form.
func (p GEVParams) Quantile(prob, tol float64) float64 {
	y := -math.Log(prob)
	if math.Abs(p.Shape) < tol {
		return gumbelQuantile(p.Location, p.Scale, y)
	}
	return gevQuantile(p.Shape, p.Location, p.Scale, y)
}

// gevQuantile is μ + (σ/ξ)(y^-ξ - 1) with y = -ln F, written with Expm1 so it
// stays accurate as ξ approaches zero.
func gevQuantile(shape, loc, scale, y float64) float64 {
	return loc + scale*math.Expm1(-shape*math.Log(y))/shape
}

func gumbelQuantile(loc, scale, y float64) float64 {
	return loc - scale*math.Log(y)
}

// gevNegLogLikelihood returns +Inf outside the support so the simplex search
// treats infeasible parameters as arbitrarily bad.
func gevNegLogLikelihood(sample []float64, shape, loc, scale float64) float64 {
	if scale <= 0 || math.IsNaN(scale) {
		return math.Inf(1)
	}
	n := float64(len(sample))
	sum := n * math.Log(scale)
	for _, x := range sample {
		z := (x - loc) / scale
		if shape == 0 {
			sum += z + math.Exp(-z)
			continue
		}
		t := shape * z
		if t <= -1 {
			return math.Inf(1)
		}
		l := math.Log1p(t)
		sum += (1+1/shape)*l + math.Exp(-l/shape)
	}
	if math.IsNaN(sum) {
		return math.Inf(1)
	}
	return sum
}

// momentStart returns Gumbel method-of-moments location and scale, the usual
// starting point for extreme-value likelihood searches.
func momentStart(sample []float64) (loc, scale float64, err error) {
	mean, err := stats.Mean(sample)
	if err != nil {
		return 0, 0, err
	}
	sd, err := stats.StandardDeviationSample(sample)
	if err != nil {
		return 0, 0, err
	}
	scale = sd * math.Sqrt(6) / math.Pi
	return mean - eulerGamma*scale, scale, nil
}

// FitGEV estimates (shape, location, scale) by maximum likelihood. The search
// runs over (ξ, (μ-μ0)/σ0, ln(σ/σ0)) so all three coordinates are O(1) and σ
// stays positive.
func FitGEV(sample []float64, opts Options) (GEVParams, error) {
	if len(sample) < opts.MinYears {
		return GEVParams{}, newError(StageGEVFit, KindInsufficient, ErrInsufficientData,
			"found %d values, need at least %d", len(sample), opts.MinYears)
	}
	loc0, scale0, err := momentStart(sample)
	if err != nil {
		return GEVParams{}, newError(StageGEVFit, KindNonConvergence, ErrGEVNotConverged, "starting values: %v", err)
	}
	if !(scale0 > 0) || math.IsInf(scale0, 0) {
		return GEVParams{}, newError(StageGEVFit, KindNonConvergence, ErrGEVNotConverged,
			"sample of %d values has no spread", len(sample))
	}

	unpack := func(x []float64) GEVParams {
		return GEVParams{Shape: x[0], Location: loc0 + x[1]*scale0, Scale: scale0 * math.Exp(x[2])}
	}
	nll := func(x []float64) float64 {
		if x[0] <= opts.ShapeBounds.Lower || x[0] >= opts.ShapeBounds.Upper {
			return math.Inf(1)
		}
		p := unpack(x)
		return gevNegLogLikelihood(sample, p.Shape, p.Location, p.Scale)
	}

	x, err := minimize(nll, []float64{0, 0, 0}, opts.GEVMaxIterations)
	if err != nil {
		return GEVParams{}, newError(StageGEVFit, KindNonConvergence, ErrGEVNotConverged, "%v", err)
	}
	p := unpack(x)
	if !finite(p.Shape, p.Location, p.Scale) || p.Scale <= 0 {
		return GEVParams{}, newError(StageGEVFit, KindNonConvergence, ErrGEVNotConverged,
			"solver returned shape=%g location=%g scale=%g", p.Shape, p.Location, p.Scale)
	}
	return p, nil
}

// minimize runs a bounded Nelder-Mead search and reports hitting the
// iteration cap as an error.
func minimize(f func([]float64) float64, x0 []float64, maxIter int) ([]float64, error) {
	settings := &optimize.Settings{
		MajorIterations: maxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 100,
		},
	}
	res, err := optimize.Minimize(optimize.Problem{Func: f}, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit, optimize.Failure:
		return nil, &limitError{status: res.Status, iterations: res.Stats.MajorIterations}
	}
	if math.IsInf(res.F, 0) || math.IsNaN(res.F) {
		return nil, &limitError{status: res.Status, iterations: res.Stats.MajorIterations, infeasible: true}
	}
	return res.X, nil
}

type limitError struct {
	status     optimize.Status
	iterations int
	infeasible bool
}

func (e *limitError) Error() string {
	if e.infeasible {
		return "no feasible parameters found"
	}
	return fmt.Sprintf("stopped with status %v after %d iterations", e.status, e.iterations)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
