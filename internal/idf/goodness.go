package idf

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Anderson-Darling critical values for the Gumbel family (Stephens 1977),
// before the small-sample correction 1/(1+0.2/√n).
var (
	adGumbelCritical     = []float64{0.474, 0.637, 0.757, 0.877, 1.038}
	adGumbelSignificance = []float64{25, 10, 5, 2.5, 1}
)

// GoodnessOfFit holds the informational fit diagnostics. The Anderson-Darling
// statistic is always computed against a Gumbel distribution fitted to the
// sample, whatever shape the GEV fit found; that is the convention of the
// regional IDF studies this service reproduces.
type GoodnessOfFit struct {
	KSStatistic float64 `json:"ks_statistic"`
	KSPValue    float64 `json:"ks_p_value"`

	ADStatistic      float64   `json:"ad_statistic"`
	ADCriticalValues []float64 `json:"ad_critical_values"`
	ADSignificance   []float64 `json:"ad_significance_levels"`
	GumbelLocation   float64   `json:"gumbel_location"`
	GumbelScale      float64   `json:"gumbel_scale"`
}

// EvaluateFit computes the KS test against the fitted GEV and the AD
// statistic against a fitted Gumbel. A Gumbel fit that fails leaves the AD
// fields NaN; these diagnostics never fail the run.
func EvaluateFit(sample []float64, p GEVParams, opts Options) GoodnessOfFit {
	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)

	d := ksStatistic(sorted, p.CDF)
	gof := GoodnessOfFit{
		KSStatistic:      d,
		KSPValue:         1 - kolmogorovCDF(len(sorted), d),
		ADStatistic:      math.NaN(),
		GumbelLocation:   math.NaN(),
		GumbelScale:      math.NaN(),
		ADSignificance:   append([]float64(nil), adGumbelSignificance...),
		ADCriticalValues: make([]float64, len(adGumbelCritical)),
	}
	corr := 1 + 0.2/math.Sqrt(float64(len(sorted)))
	for i, c := range adGumbelCritical {
		gof.ADCriticalValues[i] = c / corr
	}

	g, err := fitGumbel(sorted, opts)
	if err != nil {
		return gof
	}
	gof.GumbelLocation, gof.GumbelScale = g.Mu, g.Beta
	gof.ADStatistic = andersonDarling(sorted, g.CDF, g.Survival)
	return gof
}

// ksStatistic is the two-sided Kolmogorov-Smirnov distance of a sorted
// sample from cdf.
func ksStatistic(sorted []float64, cdf func(float64) float64) float64 {
	n := float64(len(sorted))
	var d float64
	for i, x := range sorted {
		f := cdf(x)
		d = math.Max(d, math.Max(float64(i+1)/n-f, f-float64(i)/n))
	}
	return d
}

// andersonDarling computes A² for a sorted sample.
func andersonDarling(sorted []float64, cdf, survival func(float64) float64) float64 {
	n := len(sorted)
	nf := float64(n)
	var s float64
	for i := 0; i < n; i++ {
		w := float64(2*i + 1)
		s += w * (math.Log(cdf(sorted[i])) + math.Log(survival(sorted[n-1-i])))
	}
	return -nf - s/nf
}

// fitGumbel estimates Gumbel (right-skewed) parameters by maximum likelihood.
func fitGumbel(sample []float64, opts Options) (distuv.GumbelRight, error) {
	loc0, scale0, err := momentStart(sample)
	if err != nil {
		return distuv.GumbelRight{}, err
	}
	if !(scale0 > 0) {
		return distuv.GumbelRight{}, ErrInsufficientData
	}
	nll := func(x []float64) float64 {
		return gevNegLogLikelihood(sample, 0, loc0+x[0]*scale0, scale0*math.Exp(x[1]))
	}
	x, err := minimize(nll, []float64{0, 0}, opts.GEVMaxIterations)
	if err != nil {
		return distuv.GumbelRight{}, err
	}
	return distuv.GumbelRight{Mu: loc0 + x[0]*scale0, Beta: scale0 * math.Exp(x[1])}, nil
}

// kolmogorovCDF returns P(D_n < d) for the two-sided one-sample statistic,
// using Marsaglia, Tsang and Wang (2003). Far in the right tail it switches to
// their asymptotic expression, which is accurate to about seven digits there.
func kolmogorovCDF(n int, d float64) float64 {
	if n <= 0 || d <= 0 {
		return 0
	}
	if d >= 1 {
		return 1
	}
	nf := float64(n)
	s := d * d * nf
	if s > 7.24 || (s > 3.76 && n > 99) {
		return 1 - 2*math.Exp(-(2.000071+0.331/math.Sqrt(nf)+1.409/nf)*s)
	}

	k := int(nf*d) + 1
	m := 2*k - 1
	h := float64(k) - nf*d

	H := mat.NewDense(m, m, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			if i-j+1 >= 0 {
				H.Set(i, j, 1)
			}
		}
	}
	for i := 0; i < m; i++ {
		H.Set(i, 0, H.At(i, 0)-math.Pow(h, float64(i+1)))
		H.Set(m-1, i, H.At(m-1, i)-math.Pow(h, float64(m-i)))
	}
	if 2*h-1 > 0 {
		H.Set(m-1, 0, H.At(m-1, 0)+math.Pow(2*h-1, float64(m)))
	}
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			if i-j+1 > 0 {
				v := H.At(i, j)
				for g := 1; g <= i-j+1; g++ {
					v /= float64(g)
				}
				H.Set(i, j, v)
			}
		}
	}

	Q, eQ := scaledPow(H, n)
	p := Q.At(k-1, k-1)
	for i := 1; i <= n; i++ {
		p = p * float64(i) / nf
		if p < 1e-140 {
			p *= 1e140
			eQ -= 140
		}
	}
	p *= math.Pow(10, float64(eQ))
	return math.Min(math.Max(p, 0), 1)
}

// scaledPow returns (M, e) with A^n = M·10^e, rescaling whenever the centre
// element grows past 1e140.
func scaledPow(A *mat.Dense, n int) (*mat.Dense, int) {
	if n == 1 {
		return mat.DenseCopyOf(A), 0
	}
	half, e := scaledPow(A, n/2)
	var sq mat.Dense
	sq.Mul(half, half)
	e *= 2

	out := &sq
	if n%2 == 1 {
		var odd mat.Dense
		odd.Mul(A, &sq)
		out = &odd
	}
	r, _ := out.Dims()
	if out.At(r/2, r/2) > 1e140 {
		out.Scale(1e-140, out)
		e += 140
	}
	return out, e
}
