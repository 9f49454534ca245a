package idf

// Bounds is a closed interval for one curve parameter.
type Bounds struct {
	Lower float64
	Upper float64
}

func (b Bounds) clamp(v float64) float64 {
	if v < b.Lower {
		return b.Lower
	}
	if v > b.Upper {
		return b.Upper
	}
	return v
}

// Options holds every constant the analysis depends on. Use DefaultOptions
// and override individual fields in tests.
type Options struct {
	// ReturnPeriods in years, in output order.
	ReturnPeriods []float64
	// Durations in minutes, in output order. Must line up with CoefficientColumns.
	Durations []float64
	// CoefficientColumns are the labels of the coefficient table columns, one per duration.
	CoefficientColumns []string

	// MinYears is the fewest annual maxima a fit accepts.
	MinYears int
	// ReliableYears is the record length below which a short_record warning is raised.
	ReliableYears int

	// GEVMaxIterations caps the Nelder-Mead iterations of the likelihood fit.
	GEVMaxIterations int
	// ShapeBounds restricts the GEV shape to the region where the likelihood is regular.
	ShapeBounds Bounds
	// GumbelTolerance routes |shape| below it to the Gumbel closed forms.
	GumbelTolerance float64

	// InitialGuess is (a, b, c, d) for the curve fit.
	InitialGuess [4]float64
	// ParamBounds are the (a, b, c, d) bounds of the curve fit.
	ParamBounds [4]Bounds
	// CurveMaxEvaluations caps model evaluations in the curve fit.
	CurveMaxEvaluations int
	// CurveTolerance is the relative cost and step tolerance of the curve fit.
	CurveTolerance float64
}

// DefaultOptions returns the standard Brazilian IDF configuration: six return
// periods, eleven durations from one day down to ten minutes, and the
// bounds used by the regional studies.
func DefaultOptions() Options {
	return Options{
		ReturnPeriods: []float64{2, 5, 10, 25, 50, 100},
		Durations:     []float64{1440, 720, 360, 240, 120, 60, 45, 30, 20, 15, 10},
		CoefficientColumns: []string{
			"P24/dia", "720min", "360min", "240min", "120min", "60min",
			"45min", "30min", "20min", "15min", "10min",
		},
		MinYears:         3,
		ReliableYears:    10,
		GEVMaxIterations: 5000,
		ShapeBounds:      Bounds{Lower: -1, Upper: 1},
		GumbelTolerance:  1e-6,
		InitialGuess:     [4]float64{1, 0.2, 10, 0.7},
		ParamBounds: [4]Bounds{
			{Lower: 0, Upper: 1e4},
			{Lower: -5, Upper: 5},
			{Lower: 0, Upper: 500},
			{Lower: 0, Upper: 5},
		},
		CurveMaxEvaluations: 10000,
		CurveTolerance:      1e-10,
	}
}
