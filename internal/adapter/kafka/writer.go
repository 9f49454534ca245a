package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/rainfall-idf-service/internal/config"
	"github.com/couchcryptid/rainfall-idf-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
)

// ErrSinkUnavailable is returned while the circuit breaker is open.
var ErrSinkUnavailable = errors.New("report sink unavailable")

// messageWriter is the subset of kafkago.Writer the Writer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces reports to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer  messageWriter
	circuit *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic. After
// five consecutive failed writes the breaker opens and writes fail fast for
// thirty seconds; the pipeline's backoff keeps the batch uncommitted meanwhile.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchBytes:   16 << 20,
	}
	return newWriter(w, logger)
}

func newWriter(w messageWriter, logger *slog.Logger) *Writer {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka-sink",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Writer{writer: w, circuit: cb, logger: logger}
}

// LoadBatch serializes and publishes the reports in a single WriteMessages
// call. Reports are keyed by their ID, so replays of a request land on the
// same partition.
func (w *Writer) LoadBatch(ctx context.Context, reports []domain.AnalysisReport) error {
	if len(reports) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(reports))
	for i := range reports {
		msg, err := serializeToMessage(reports[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	_, err := w.circuit.Execute(func() (interface{}, error) {
		return nil, w.writer.WriteMessages(ctx, msgs...)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	return err
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a report into a Kafka message.
func serializeToMessage(report domain.AnalysisReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize analysis report: %w", err)
	}
	headers := []kafkago.Header{
		{Key: "status", Value: []byte(report.Status)},
		{Key: "processed_at", Value: []byte(report.ProcessedAt.Format(time.RFC3339))},
	}
	if report.RequestID != "" {
		headers = append(headers, kafkago.Header{Key: "request_id", Value: []byte(report.RequestID)})
	}
	if report.Failure != nil {
		headers = append(headers, kafkago.Header{Key: "failure_kind", Value: []byte(report.Failure.Kind)})
	}
	return kafkago.Message{
		Key:     []byte(report.ID),
		Value:   data,
		Headers: headers,
	}, nil
}
