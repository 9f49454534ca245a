package pipeline

import (
	"context"

	"github.com/couchcryptid/rainfall-idf-service/internal/domain"
)

// AnalysisTransformer implements Transformer by decoding the request and
// handing it to an Analyzer.
type AnalysisTransformer struct {
	analyzer *Analyzer
}

// NewTransformer creates an AnalysisTransformer.
func NewTransformer(analyzer *Analyzer) *AnalysisTransformer {
	return &AnalysisTransformer{analyzer: analyzer}
}

// Transform returns an error only when the message is not a request at all;
// such messages are skipped. Every decodable request yields a report.
func (t *AnalysisTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.AnalysisReport, error) {
	req, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.AnalysisReport{}, err
	}
	return t.analyzer.Analyze(ctx, req), nil
}
