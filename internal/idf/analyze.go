package idf

import (
	"fmt"
	"math"
)

// Warning codes for results that are valid but should be read with care.
const (
	WarnShortRecord = "short_record"
	WarnR2Undefined = "r2_undefined"
)

// Input is everything one analysis needs besides the coefficient table.
type Input struct {
	Table        Table
	State        string
	Municipality string
	// SourceLabel names the input (usually the uploaded file) on the result only.
	SourceLabel string
}

// Warning flags a non-terminal problem with an otherwise valid result.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the full output of a successful analysis.
type Result struct {
	SourceLabel  string
	StationID    string
	State        string
	Municipality string

	RowsDropped  int
	AnnualMaxima []AnnualMaximum

	GEV GEVParams
	Fit GoodnessOfFit

	ReturnPeriods []float64
	Durations     []float64
	// DailyDepths holds the design daily depth (mm) per return period.
	DailyDepths  []float64
	Coefficients []float64
	Intensity    IntensityMatrix

	IDF      IDFParams
	Warnings []Warning
}

// Run executes the whole analysis: records → annual maxima → GEV fit →
// goodness of fit → return-period depths → coefficients → intensity matrix →
// IDF curve fit. It never panics; every failure comes back as an *Error
// naming the stage that stopped the run.
func Run(in Input, lookup CoefficientLookup, opts Options) (res *Result, err error) {
	stage := StageColumns
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = newError(stage, KindInternal, ErrInternal, "%v", r)
		}
	}()

	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	recs, err := ParseRecords(in.Table)
	if err != nil {
		return nil, err
	}

	stage = StageDates
	if len(recs.Observations) == 0 {
		return nil, newError(StageDates, KindInsufficient, ErrInsufficientData,
			"no row has a valid date and depth (%d dropped)", recs.Dropped)
	}

	stage = StageAnnualMaxima
	years := AnnualMaxima(recs.Observations)
	if len(years) < opts.MinYears {
		return nil, newError(StageAnnualMaxima, KindInsufficient, ErrInsufficientData,
			"found %d years of annual maxima, need at least %d", len(years), opts.MinYears)
	}
	sample := depths(years)

	stage = StageGEVFit
	gev, err := FitGEV(sample, opts)
	if err != nil {
		return nil, err
	}
	fit := EvaluateFit(sample, gev, opts)

	stage = StageQuantiles
	daily := ReturnPeriodDepths(gev, opts.ReturnPeriods, opts.GumbelTolerance)

	stage = StageCoefficients
	coeffs, err := ResolveCoefficients(lookup, in.State, in.Municipality, opts)
	if err != nil {
		return nil, err
	}

	stage = StageIntensity
	matrix := Disaggregate(daily, coeffs, opts)

	stage = StageCurveFit
	params, err := FitCurve(matrix, opts)
	if err != nil {
		return nil, err
	}
	params.NumYears = len(years)

	res = &Result{
		SourceLabel:   in.SourceLabel,
		StationID:     recs.StationID,
		State:         in.State,
		Municipality:  in.Municipality,
		RowsDropped:   recs.Dropped,
		AnnualMaxima:  years,
		GEV:           gev,
		Fit:           fit,
		ReturnPeriods: matrix.ReturnPeriods,
		Durations:     matrix.Durations,
		DailyDepths:   daily,
		Coefficients:  coeffs,
		Intensity:     matrix,
		IDF:           params,
	}
	if len(years) < opts.ReliableYears {
		res.Warnings = append(res.Warnings, Warning{
			Code:    WarnShortRecord,
			Message: fmt.Sprintf("only %d years of annual maxima; fewer than %d makes the fit unreliable", len(years), opts.ReliableYears),
		})
	}
	if math.IsNaN(params.R2) {
		res.Warnings = append(res.Warnings, Warning{
			Code:    WarnR2Undefined,
			Message: "all intensities are equal, R² is undefined",
		})
	}
	return res, nil
}

func validateOptions(opts Options) error {
	if len(opts.Durations) == 0 || len(opts.ReturnPeriods) == 0 {
		return newError(StageColumns, KindInternal, ErrInternal, "options need return periods and durations")
	}
	for _, T := range opts.ReturnPeriods {
		if !(T > 1) {
			return newError(StageColumns, KindInternal, ErrInternal, "return period %g must exceed one year", T)
		}
	}
	for _, d := range opts.Durations {
		if !(d > 0) {
			return newError(StageColumns, KindInternal, ErrInternal, "duration %g must be positive", d)
		}
	}
	if opts.MinYears < 3 {
		return newError(StageColumns, KindInternal, ErrInternal, "at least 3 years are needed for a fit, got MinYears=%d", opts.MinYears)
	}
	return nil
}
