package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/couchcryptid/rainfall-idf-service/internal/idf"
)

// Failure kinds that originate outside the analysis itself.
const (
	KindInvalidRequest = "invalid_request"
	KindUnsupported    = "unsupported"
	KindInternal       = string(idf.KindInternal)
)

var (
	ErrInvalidRequest    = errors.New("invalid analysis request")
	ErrUnsupportedSeries = errors.New("series type not supported yet")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseRawEvent deserializes a RawEvent's value into an AnalysisRequest. A
// request without an ID takes the message key, or a fresh UUID when the
// message has none.
func ParseRawEvent(raw RawEvent) (AnalysisRequest, error) {
	var req AnalysisRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return AnalysisRequest{}, fmt.Errorf("parse analysis request: %w", err)
	}
	if req.RequestID == "" {
		req.RequestID = string(raw.Key)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	return NormalizeRequest(req), nil
}

// NormalizeRequest trims identifiers and fills in the default series type.
func NormalizeRequest(req AnalysisRequest) AnalysisRequest {
	req.State = strings.ToUpper(strings.TrimSpace(req.State))
	req.Municipality = strings.TrimSpace(req.Municipality)
	req.SeriesType = strings.ToLower(strings.TrimSpace(req.SeriesType))
	if req.SeriesType == "" {
		req.SeriesType = SeriesDaily
	}
	return req
}

// ValidateRequest checks the request's shape. The returned error wraps
// ErrInvalidRequest and names each offending field.
func ValidateRequest(req AnalysisRequest) error {
	err := validate.Struct(req)
	if err == nil {
		if req.SeriesType != SeriesDaily {
			return fmt.Errorf("%w: %q", ErrUnsupportedSeries, req.SeriesType)
		}
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

// RequestKey is a deterministic digest of everything that affects the
// analysis result. Replaying the same request yields the same key, which
// doubles as the report ID and the result-cache key.
func RequestKey(req AnalysisRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s\n", req.SeriesType, req.State, req.Municipality)
	writeRecord(h, req.Columns)
	for _, row := range req.Rows {
		writeRecord(h, row)
	}
	sum := h.Sum(nil)
	return "idf-" + hex.EncodeToString(sum[:12])
}

func writeRecord(h io.Writer, fields []string) {
	for _, f := range fields {
		fmt.Fprintf(h, "%d:%s", len(f), f)
	}
	io.WriteString(h, "\n") //nolint:errcheck // hash writes never fail
}

// BuildReport converts an analysis outcome into a report. Exactly one of res
// and err is expected to be non-nil.
func BuildReport(req AnalysisRequest, res *idf.Result, err error) AnalysisReport {
	report := AnalysisReport{
		ID:           RequestKey(req),
		RequestID:    req.RequestID,
		SourceLabel:  req.SourceLabel,
		State:        req.State,
		Municipality: req.Municipality,
		ProcessedAt:  Now(),
	}
	if err != nil || res == nil {
		report.Status = StatusFailed
		report.Failure = NewFailure(err)
		return report
	}

	report.Status = StatusSucceeded
	report.StationID = res.StationID
	report.RowsDropped = res.RowsDropped
	report.AnnualMaxima = res.AnnualMaxima
	gev := res.GEV
	report.GEV = &gev
	report.Fit = &FitReport{
		KSStatistic:      res.Fit.KSStatistic,
		KSPValue:         res.Fit.KSPValue,
		ADStatistic:      nullable(res.Fit.ADStatistic),
		ADCriticalValues: res.Fit.ADCriticalValues,
		ADSignificance:   res.Fit.ADSignificance,
		GumbelLocation:   nullable(res.Fit.GumbelLocation),
		GumbelScale:      nullable(res.Fit.GumbelScale),
	}
	report.ReturnPeriods = res.ReturnPeriods
	report.Durations = res.Durations
	report.DailyDepths = res.DailyDepths
	report.Coefficients = res.Coefficients
	report.Intensity = res.Intensity.Values
	report.Curve = &CurveReport{
		A:           res.IDF.A,
		B:           res.IDF.B,
		C:           res.IDF.C,
		D:           res.IDF.D,
		R2:          nullable(res.IDF.R2),
		NumYears:    res.IDF.NumYears,
		Evaluations: res.IDF.Evaluations,
	}
	report.Warnings = res.Warnings
	return report
}

// NewFailure classifies an error for a failed report.
func NewFailure(err error) *Failure {
	if err == nil {
		return &Failure{Kind: KindInternal, Message: "analysis returned no result"}
	}

	var ierr *idf.Error
	switch {
	case errors.As(err, &ierr):
		return &Failure{
			Stage:   string(ierr.Stage),
			Kind:    string(ierr.Kind),
			Message: ierr.Error(),
			Missing: ierr.Missing,
			Key:     ierr.Key,
		}
	case errors.Is(err, ErrUnsupportedSeries):
		return &Failure{Kind: KindUnsupported, Message: err.Error()}
	case errors.Is(err, ErrInvalidRequest):
		return &Failure{Kind: KindInvalidRequest, Message: err.Error()}
	default:
		return &Failure{Kind: KindInternal, Message: err.Error()}
	}
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
