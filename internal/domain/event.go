package domain

import (
	"context"
	"time"

	"github.com/couchcryptid/rainfall-idf-service/internal/idf"
)

// Report statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// SeriesDaily is the only series type the analysis supports. Hidroweb also
// exports hourly and sub-hourly series; those are rejected with a failed report.
const SeriesDaily = "daily"

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// AnalysisRequest asks for the IDF analysis of one station record against one
// municipality's disaggregation coefficients. Columns and Rows carry the
// station export as text, exactly as read from the file.
type AnalysisRequest struct {
	RequestID    string     `json:"request_id,omitempty" validate:"omitempty,max=128"`
	SourceLabel  string     `json:"source_label,omitempty" validate:"max=256"`
	SeriesType   string     `json:"series_type,omitempty" validate:"omitempty,oneof=daily hourly 5min 1min"`
	State        string     `json:"state,omitempty" validate:"omitempty,len=2,alpha"`
	Municipality string     `json:"municipality" validate:"required,max=128"`
	Columns      []string   `json:"columns" validate:"required,min=1,dive,max=128"`
	Rows         [][]string `json:"rows" validate:"required,min=1"`
}

// Table returns the request's rows in the analysis input format.
func (r AnalysisRequest) Table() idf.Table {
	return idf.Table{Columns: r.Columns, Rows: r.Rows}
}

// Failure describes why an analysis produced no curve.
type Failure struct {
	Stage   string   `json:"stage,omitempty"`
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Missing []string `json:"missing_columns,omitempty"`
	Key     string   `json:"key,omitempty"`
}

// FitReport is the JSON-safe form of idf.GoodnessOfFit; undefined statistics are null.
type FitReport struct {
	KSStatistic      float64   `json:"ks_statistic"`
	KSPValue         float64   `json:"ks_p_value"`
	ADStatistic      *float64  `json:"ad_statistic"`
	ADCriticalValues []float64 `json:"ad_critical_values"`
	ADSignificance   []float64 `json:"ad_significance_levels"`
	GumbelLocation   *float64  `json:"gumbel_location"`
	GumbelScale      *float64  `json:"gumbel_scale"`
}

// CurveReport is the fitted IDF equation I = a·T^b / (t+c)^d.
type CurveReport struct {
	A           float64  `json:"a"`
	B           float64  `json:"b"`
	C           float64  `json:"c"`
	D           float64  `json:"d"`
	R2          *float64 `json:"r2"`
	NumYears    int      `json:"num_years"`
	Evaluations int      `json:"evaluations"`
}

// AnalysisReport is the outcome of one request, published whether the
// analysis succeeded or failed.
type AnalysisReport struct {
	ID           string `json:"id"`
	RequestID    string `json:"request_id,omitempty"`
	Status       string `json:"status"`
	SourceLabel  string `json:"source_label,omitempty"`
	StationID    string `json:"station_id,omitempty"`
	State        string `json:"state,omitempty"`
	Municipality string `json:"municipality"`

	Failure *Failure `json:"failure,omitempty"`

	RowsDropped   int                 `json:"rows_dropped"`
	AnnualMaxima  []idf.AnnualMaximum `json:"annual_maxima,omitempty"`
	GEV           *idf.GEVParams      `json:"gev,omitempty"`
	Fit           *FitReport          `json:"goodness_of_fit,omitempty"`
	ReturnPeriods []float64           `json:"return_periods,omitempty"`
	Durations     []float64           `json:"durations_min,omitempty"`
	DailyDepths   []float64           `json:"daily_depths_mm,omitempty"`
	Coefficients  []float64           `json:"coefficients,omitempty"`
	Intensity     [][]float64         `json:"intensity_mm_h,omitempty"`
	Curve         *CurveReport        `json:"curve,omitempty"`
	Warnings      []idf.Warning       `json:"warnings,omitempty"`

	// Cached is set when the report was served from the result cache.
	Cached      bool      `json:"cached,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Succeeded reports whether the analysis produced a curve.
func (r AnalysisReport) Succeeded() bool { return r.Status == StatusSucceeded }

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
