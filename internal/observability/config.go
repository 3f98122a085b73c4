package observability

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/revshare/internal/config"
	"go.uber.org/zap/zapcore"
)

// Config holds observability configuration derived from environment variables.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  zapcore.Level
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig reads the LOG_* and OTEL_* variables. Values that are set but
// unparseable fail startup like the billing rates do.
func LoadConfig(cfg config.Config) (Config, error) {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "revshare"
	}

	level, err := zapcore.ParseLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, invalid("LOG_LEVEL", err)
	}
	format := strings.ToLower(getenv("LOG_FORMAT", "json"))
	if format != "json" && format != "console" {
		return Config{}, invalid("LOG_FORMAT", fmt.Errorf("want json or console, got %q", format))
	}

	protocol, err := otlpProtocol()
	if err != nil {
		return Config{}, err
	}
	enabled := cfg.IsProduction()
	if raw := getenv("OTEL_ENABLED", ""); raw != "" {
		if enabled, err = strconv.ParseBool(raw); err != nil {
			return Config{}, invalid("OTEL_ENABLED", err)
		}
	}
	ratio, err := strconv.ParseFloat(getenv("OTEL_SAMPLING_RATIO", "0.1"), 64)
	if err != nil {
		return Config{}, invalid("OTEL_SAMPLING_RATIO", err)
	}
	if ratio < 0 || ratio > 1 {
		return Config{}, invalid("OTEL_SAMPLING_RATIO", fmt.Errorf("%v outside [0, 1]", ratio))
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          getenv("DEPLOYMENT_ENV", strings.TrimSpace(cfg.Environment)),
		Version:              getenv("SERVICE_VERSION", strings.TrimSpace(cfg.AppVersion)),
		LogLevel:             level,
		LogFormat:            format,
		OtelEnabled:          enabled,
		OtelExporterEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    ratio,
	}, nil
}

// otlpProtocol prefers the traces-specific variable and folds the
// "/protobuf" spellings into grpc or http.
func otlpProtocol() (string, error) {
	key := "OTEL_EXPORTER_OTLP_PROTOCOL"
	if getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "") != "" {
		key = "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"
	}
	switch raw := strings.ToLower(getenv(key, "grpc")); raw {
	case "grpc", "grpc/protobuf":
		return "grpc", nil
	case "http", "http/protobuf":
		return "http", nil
	default:
		return "", invalid(key, fmt.Errorf("unsupported protocol %q", raw))
	}
}

// Debug is true for an explicit debug level or a development environment.
func (c Config) Debug() bool {
	if c.LogLevel == zapcore.DebugLevel {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func invalid(key string, err error) error {
	return fmt.Errorf("%w: %s: %w", config.ErrInvalidConfig, key, err)
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}
