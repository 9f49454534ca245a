package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/rainfall-idf-service/internal/domain"
	"github.com/couchcryptid/rainfall-idf-service/internal/idf"
	"github.com/couchcryptid/rainfall-idf-service/internal/observability"
)

// Analyzer runs validated requests through idf.Run and turns every outcome,
// including failures, into a report. It is safe for concurrent use.
type Analyzer struct {
	lookup  idf.CoefficientLookup
	opts    idf.Options
	cache   *ReportCache
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAnalyzer creates an Analyzer. A nil cache disables result caching.
func NewAnalyzer(lookup idf.CoefficientLookup, opts idf.Options, cache *ReportCache, logger *slog.Logger, metrics *observability.Metrics) *Analyzer {
	return &Analyzer{
		lookup:  lookup,
		opts:    opts,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}
}

// Analyze produces the report for req. It never returns an error: invalid
// requests and failed analyses become reports with status "failed".
func (a *Analyzer) Analyze(ctx context.Context, req domain.AnalysisRequest) domain.AnalysisReport {
	req = domain.NormalizeRequest(req)

	if err := domain.ValidateRequest(req); err != nil {
		report := domain.BuildReport(req, nil, err)
		a.observe(ctx, req, report)
		return report
	}

	key := domain.RequestKey(req)
	if cached, ok := a.cache.Get(key); ok {
		a.metrics.ResultCache.WithLabelValues("hit").Inc()
		cached.RequestID = req.RequestID
		cached.SourceLabel = req.SourceLabel
		cached.Cached = true
		cached.ProcessedAt = domain.Now()
		return cached
	}
	a.metrics.ResultCache.WithLabelValues("miss").Inc()

	start := time.Now()
	res, err := idf.Run(idf.Input{
		Table:        req.Table(),
		State:        req.State,
		Municipality: req.Municipality,
		SourceLabel:  req.SourceLabel,
	}, a.lookup, a.opts)
	a.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())

	report := domain.BuildReport(req, res, err)
	a.observe(ctx, req, report)
	a.cache.Put(key, report)
	return report
}

func (a *Analyzer) observe(ctx context.Context, req domain.AnalysisRequest, report domain.AnalysisReport) {
	if report.Succeeded() {
		a.metrics.Analyses.WithLabelValues(domain.StatusSucceeded, "").Inc()
		if report.Curve != nil && report.Curve.R2 != nil {
			a.metrics.CurveFitR2.Observe(*report.Curve.R2)
		}
		a.logger.DebugContext(ctx, "analysis succeeded",
			"request_id", req.RequestID,
			"municipality", req.Municipality,
			"years", report.Curve.NumYears,
			"warnings", len(report.Warnings),
		)
		return
	}

	a.metrics.Analyses.WithLabelValues(domain.StatusFailed, report.Failure.Stage).Inc()
	a.logger.InfoContext(ctx, "analysis failed",
		"request_id", req.RequestID,
		"municipality", req.Municipality,
		"stage", report.Failure.Stage,
		"kind", report.Failure.Kind,
		"error", report.Failure.Message,
	)
}
