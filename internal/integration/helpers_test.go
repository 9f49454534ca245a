//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/rainfall-idf-service/internal/domain"
	"github.com/couchcryptid/rainfall-idf-service/internal/idf"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

// startKafka runs a single-node Kafka container and returns its broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	ctr, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("rainfall-idf-test"))
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start kafka container")

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testCoefficients is a coefficient table with one well-formed municipality.
func testCoefficients() *idf.MapTable {
	return idf.NewMapTable([]idf.CoefficientRow{{
		State:        "MG",
		Municipality: "Belo Horizonte",
		Values:       []string{"1", "0,85", "0,82", "0,78", "0,72", "0,60", "0,52", "0,42", "0,31", "0,25", "0,17"},
	}})
}

// stationRequest builds a daily-series request with one monthly row per
// month over the given number of years. Annual maxima vary smoothly so the
// fits converge.
func stationRequest(id string, years int) domain.AnalysisRequest {
	req := domain.AnalysisRequest{
		RequestID:    id,
		SourceLabel:  "chuvas_C_99999999.csv",
		SeriesType:   domain.SeriesDaily,
		State:        "MG",
		Municipality: "Belo Horizonte",
		Columns:      []string{"EstacaoCodigo", "Data", "Maxima"},
	}
	for y := 0; y < years; y++ {
		peak := 80 + 25*math.Sin(float64(y)*1.7) + float64(y%7)*4
		for m := 1; m <= 12; m++ {
			v := peak * (0.2 + 0.05*float64(m%6))
			if m == 1+y%12 {
				v = peak
			}
			date := time.Date(1990+y, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
			req.Rows = append(req.Rows, []string{"99999999", date.Format("02/01/2006"), fmt.Sprintf("%.1f", v)})
		}
	}
	return req
}
