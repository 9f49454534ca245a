package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/rainfall-idf-service/internal/idf"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Coefficient workbook.
	CoefficientsPath  string
	CoefficientsSheet string

	ResultCacheSize     int
	AnalysisConcurrency int

	// Solver caps.
	GEVMaxIterations       int
	CurveFitMaxEvaluations int
}

// LoadDotEnv reads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseInt("RESULT_CACHE_SIZE", 256, 0, 1_000_000)
	if err != nil {
		return nil, err
	}
	concurrency, err := parseInt("ANALYSIS_CONCURRENCY", 4, 1, 256)
	if err != nil {
		return nil, err
	}
	gevIter, err := parseInt("GEV_MAX_ITERATIONS", 5000, 100, 1_000_000)
	if err != nil {
		return nil, err
	}
	curveEvals, err := parseInt("CURVE_FIT_MAX_EVALUATIONS", 10000, 10, 10_000_000)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "precipitation-analysis-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "idf-curve-reports"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "rainfall-idf"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		CoefficientsPath:  sharedcfg.EnvOrDefault("COEFFICIENTS_PATH", "data/Coeficientes.xlsx"),
		CoefficientsSheet: os.Getenv("COEFFICIENTS_SHEET"),

		ResultCacheSize:     cacheSize,
		AnalysisConcurrency: concurrency,

		GEVMaxIterations:       gevIter,
		CurveFitMaxEvaluations: curveEvals,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}

	return cfg, nil
}

// AnalysisOptions returns the default analysis options with the configured
// solver caps applied.
func (c *Config) AnalysisOptions() idf.Options {
	opts := idf.DefaultOptions()
	opts.GEVMaxIterations = c.GEVMaxIterations
	opts.CurveMaxEvaluations = c.CurveFitMaxEvaluations
	return opts
}

func parseInt(key string, def, minVal, maxVal int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minVal || n > maxVal {
		return 0, fmt.Errorf("invalid %s: must be %d-%d", key, minVal, maxVal)
	}
	return n, nil
}
