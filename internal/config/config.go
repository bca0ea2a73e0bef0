package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Output formats accepted by OUTPUT_FORMAT.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	SourcesFile  string
	OutputDir    string
	OutputFormat string

	// Analysis tuning.
	CadenceDays         int
	ClusterDistanceKm   float64
	ClusterDateBudget   time.Duration
	SpatialGridMinSites int
	MaxParallelSources  int
	RankingSize         int
	ExitAfterRun        bool

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka result publishing.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	// Mapbox reverse geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Stride returns the expected interval between observations.
func (c *Config) Stride() time.Duration {
	return time.Duration(c.CadenceDays) * 24 * time.Hour
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s"))
	if err != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	budget, err := time.ParseDuration(sharedcfg.EnvOrDefault("CLUSTER_DATE_BUDGET", "0s"))
	if err != nil || budget < 0 {
		return nil, errors.New("invalid CLUSTER_DATE_BUDGET")
	}

	cadenceDays, err := positiveInt("CADENCE_DAYS", 7)
	if err != nil {
		return nil, err
	}
	parallel, err := positiveInt("MAX_PARALLEL_SOURCES", 4)
	if err != nil {
		return nil, err
	}
	rankingSize, err := nonNegativeInt("RANKING_SIZE", 10)
	if err != nil {
		return nil, err
	}
	gridMin, err := nonNegativeInt("SPATIAL_GRID_MIN_SITES", 64)
	if err != nil {
		return nil, err
	}

	distance, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("CLUSTER_DISTANCE_KM", "100"), 64)
	if err != nil || distance < 0 {
		return nil, errors.New("invalid CLUSTER_DISTANCE_KM")
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		SourcesFile:         sharedcfg.EnvOrDefault("SOURCES_FILE", "sources.yaml"),
		OutputDir:           sharedcfg.EnvOrDefault("OUTPUT_DIR", "results"),
		OutputFormat:        sharedcfg.EnvOrDefault("OUTPUT_FORMAT", FormatCSV),
		CadenceDays:         cadenceDays,
		ClusterDistanceKm:   distance,
		ClusterDateBudget:   budget,
		SpatialGridMinSites: gridMin,
		MaxParallelSources:  parallel,
		RankingSize:         rankingSize,
		ExitAfterRun:        sharedcfg.EnvOrDefault("EXIT_AFTER_RUN", "true") == "true",

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:   os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "monitoring-gaps"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	if cfg.SourcesFile == "" {
		return nil, errors.New("SOURCES_FILE is required")
	}
	if cfg.OutputFormat != FormatCSV && cfg.OutputFormat != FormatJSON {
		return nil, fmt.Errorf("invalid OUTPUT_FORMAT %q: want %s or %s", cfg.OutputFormat, FormatCSV, FormatJSON)
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func positiveInt(key string, def int) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func nonNegativeInt(key string, def int) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, strconv.Itoa(def)))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: must be zero or a positive integer", key)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
