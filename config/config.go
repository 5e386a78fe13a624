package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// CLIOptions carries the values parsed from the command line.
type CLIOptions struct {
	SeedDir    string   // -s <dir>
	OutputDir  string   // -o <dir>
	DictPath   string   // -x <file>, optional
	TargetArgs []string // target command line, passed through verbatim
}

type AppConfig struct {
	RunID       string
	SeedDir     string
	OutputDir   string
	DictPath    string
	TargetArgs  []string
	LogLevel    string
	ServiceName string

	FuzzConfig FuzzConfig

	DatabaseURL      string
	RedisUrl         string
	RabbitMQURL      string
	MetricsAddr      string
	TelemetryEnabled bool
}

type FuzzConfig struct {
	ExecTimeout   time.Duration
	MapSize       int
	MaxInputSize  int
	StatsInterval time.Duration
	RNGSeed       int64
	SeedSync      bool
}

func LoadConfig(opts CLIOptions) (*AppConfig, error) {
	// use a temporary logger for now
	logger := zap.NewExample().Named("config")

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", zap.Error(err))
	}

	config := &AppConfig{
		RunID:       uuid.New().String(),
		SeedDir:     opts.SeedDir,
		OutputDir:   opts.OutputDir,
		DictPath:    opts.DictPath,
		TargetArgs:  opts.TargetArgs,
		LogLevel:    os.Getenv("LOG_LEVEL"),
		ServiceName: os.Getenv("SERVICE_NAME"),
		FuzzConfig: FuzzConfig{
			ExecTimeout:   parseDuration(os.Getenv("EXEC_TIMEOUT"), time.Second),
			MapSize:       parseInt(os.Getenv("MAP_SIZE"), 1<<16),
			MaxInputSize:  parseInt(os.Getenv("MAX_INPUT_SIZE"), 1<<20),
			StatsInterval: parseDuration(os.Getenv("STATS_INTERVAL"), 5*time.Second),
			RNGSeed:       parseInt64(os.Getenv("RNG_SEED"), time.Now().UnixNano()),
			SeedSync:      parseBool(os.Getenv("SEED_SYNC"), false),
		},
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisUrl:         os.Getenv("REDIS_URL"),
		RabbitMQURL:      os.Getenv("RABBITMQ_URL"),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
		TelemetryEnabled: parseBool(os.Getenv("OTEL_ENABLED"), false),
	}

	if config.LogLevel == "" {
		config.LogLevel = "info" // Set default log level
	}
	if config.ServiceName == "" {
		config.ServiceName = "covfuzz" // Default service name
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *AppConfig) validate() error {
	if c.SeedDir == "" {
		return errors.New("seed directory (-s) is required")
	}
	if c.OutputDir == "" {
		return errors.New("output directory (-o) is required")
	}
	if len(c.TargetArgs) == 0 {
		return errors.New("target command line is required")
	}
	if c.FuzzConfig.ExecTimeout <= 0 {
		return fmt.Errorf("invalid EXEC_TIMEOUT %s", c.FuzzConfig.ExecTimeout)
	}
	if c.FuzzConfig.MapSize <= 0 {
		return fmt.Errorf("invalid MAP_SIZE %d", c.FuzzConfig.MapSize)
	}
	if c.FuzzConfig.MaxInputSize <= 0 {
		return fmt.Errorf("invalid MAX_INPUT_SIZE %d", c.FuzzConfig.MaxInputSize)
	}
	return nil
}

func parseDuration(val string, defaultVal time.Duration) time.Duration {
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func parseInt(val string, defaultVal int) int {
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func parseInt64(val string, defaultVal int64) int64 {
	if val == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func parseBool(val string, defaultVal bool) bool {
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
