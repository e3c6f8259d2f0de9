package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/larrybwosi/workspace-sub003/internal/config"
)

// Config holds the logging, tracing and metrics settings. Identity fields
// come from the application config; the rest from OTEL_* and LOG_* variables.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	env := envReader(os.Getenv)

	out := Config{
		ServiceName:          firstNonEmpty(cfg.AppName, "workspace"),
		Environment:          env.str("DEPLOYMENT_ENV", cfg.Environment),
		Version:              env.str("SERVICE_VERSION", cfg.AppVersion),
		LogLevel:             strings.ToLower(env.str("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(env.str("LOG_FORMAT", "json")),
		OtelEnabled:          env.boolean("OTEL_ENABLED", true),
		OtelExporterEndpoint: env.str("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(env.str("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", env.str("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		OtelSamplingRatio:    env.ratio("OTEL_SAMPLING_RATIO", 0.1),
	}
	if out.OtelExporterEndpoint == "" {
		out.OtelEnabled = false
	}
	return out
}

// Debug reports whether verbose request logging is on: an explicit debug
// level or a non-production environment.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

type envReader func(string) string

func (r envReader) str(key, def string) string {
	return firstNonEmpty(r(key), def)
}

func (r envReader) boolean(key string, def bool) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(r(key)))
	if err != nil {
		return def
	}
	return parsed
}

// ratio reads a sampling ratio clamped to [0, 1].
func (r envReader) ratio(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(r(key)), 64)
	if err != nil {
		return def
	}
	return min(max(parsed, 0), 1)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
