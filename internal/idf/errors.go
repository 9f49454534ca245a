package idf

import (
	"errors"
	"fmt"
	"strings"
)

// Stage identifies a step of the analysis. A failed run reports the stage it
// stopped in.
type Stage string

const (
	StageColumns      Stage = "columns"
	StageDates        Stage = "dates"
	StageAnnualMaxima Stage = "annual_maxima"
	StageGEVFit       Stage = "gev_fit"
	StageQuantiles    Stage = "quantiles"
	StageCoefficients Stage = "coefficients"
	StageIntensity    Stage = "intensity"
	StageCurveFit     Stage = "curve_fit"
)

// Kind classifies a failure for callers that react differently to bad input,
// bad reference data and solver trouble.
type Kind string

const (
	KindStructural     Kind = "structural"
	KindInsufficient   Kind = "insufficient_data"
	KindReferenceData  Kind = "reference_data"
	KindNonConvergence Kind = "non_convergence"
	KindInternal       Kind = "internal"
)

var (
	ErrMissingColumns        = errors.New("missing required columns")
	ErrInsufficientData      = errors.New("insufficient data")
	ErrMunicipalityNotFound  = errors.New("municipality not found")
	ErrCoefficientConversion = errors.New("coefficient conversion failed")
	ErrGEVNotConverged       = errors.New("gev fit did not converge")
	ErrCurveFitNotConverged  = errors.New("curve fit did not converge")
	ErrInternal              = errors.New("internal error")
)

// Error is the diagnostic returned by Run. Its message is the human-readable
// diagnostic shown to users; Stage and Kind are for programmatic handling.
type Error struct {
	Stage  Stage
	Kind   Kind
	Detail string
	// Missing lists absent column names for structural errors.
	Missing []string
	// Key is the offending identifier for reference-data errors.
	Key string
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Stage))
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(stage Stage, kind Kind, sentinel error, format string, args ...any) *Error {
	return &Error{
		Stage:  stage,
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
		Err:    sentinel,
	}
}
