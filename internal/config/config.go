// Package config loads geocode-csv's settings from CLI flags,
// environment variables, and (when present) a config file, using
// viper's layered precedence: flag > env > config file > default.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every setting a geocode-csv run needs, whichever
// transport (CSV, Kafka, HTTP server) ends up driving the pipeline.
type Config struct {
	Spec             string            `mapstructure:"spec"`
	Match            string            `mapstructure:"match"`
	DuplicateColumns string            `mapstructure:"duplicate_columns"`
	Geocoder         string            `mapstructure:"geocoder"`
	Normalize        bool              `mapstructure:"normalize"`
	MaxRetries       int               `mapstructure:"max_retries"`
	MetricsLabels    map[string]string `mapstructure:"-"`

	Smarty    SmartyConfig    `mapstructure:",squash"`
	Libpostal LibpostalConfig `mapstructure:",squash"`
	Cache     CacheConfig     `mapstructure:",squash"`
	RateLimit RateLimitConfig `mapstructure:",squash"`
	Kafka     KafkaConfig     `mapstructure:",squash"`
	Server    ServerConfig    `mapstructure:",squash"`
	Log       LogConfig       `mapstructure:",squash"`
}

// SmartyConfig holds Smarty US Street API credentials and options.
type SmartyConfig struct {
	AuthID    string `mapstructure:"smarty_auth_id"`
	AuthToken string        `mapstructure:"smarty_auth_token"`
	License   string        `mapstructure:"smarty_license"`
	Timeout   time.Duration `mapstructure:"smarty_timeout"`
}

// LibpostalConfig holds the libpostal sidecar's HTTP address.
type LibpostalConfig struct {
	BaseURL string        `mapstructure:"libpostal_url"`
	Timeout time.Duration `mapstructure:"libpostal_timeout"`
}

// CacheConfig holds the --cache-* flag group.
type CacheConfig struct {
	URL         string `mapstructure:"cache_url"`
	HitsOnly    bool   `mapstructure:"cache_hits_only"`
	OutputKeys  bool   `mapstructure:"cache_output_keys"`
	KeyPrefix   string `mapstructure:"cache_key_prefix"`
}

// RateLimitConfig holds the Smarty client's leaky-bucket settings.
type RateLimitConfig struct {
	MaxAddressesPerSecond float64 `mapstructure:"max_addresses_per_second"`
}

// KafkaConfig holds the Kafka transport's settings. Left zero-valued,
// CSV-over-stdin remains the default transport.
type KafkaConfig struct {
	Brokers     []string `mapstructure:"kafka_brokers"`
	SourceTopic string   `mapstructure:"kafka_source_topic"`
	SinkTopic   string   `mapstructure:"kafka_sink_topic"`
	GroupID     string   `mapstructure:"kafka_group_id"`
}

// ServerConfig holds the `server` subcommand's settings.
type ServerConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"log_level"`
	Format string `mapstructure:"log_format"`
}

// UsesKafka reports whether enough Kafka flags were given to select the
// Kafka transport over the default CSV-over-stdio one.
func (c *Config) UsesKafka() bool {
	return c.Kafka.SourceTopic != "" || c.Kafka.SinkTopic != ""
}

// BindFlags registers every geocode-csv flag onto flags and binds each
// one to viper so Load can later read it back merged with environment
// and config-file values, the same PersistentFlags-then-BindPFlag
// pairing the research-cli root command uses.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	flags.String("spec", "", "path to the address column spec JSON file")
	flags.String("match", "strict", "Smarty match strategy: strict, range, invalid, or enhanced")
	flags.String("duplicate-columns", "error", "policy for input columns colliding with geocoder output columns: error, replace, or append")
	flags.String("geocoder", "smarty", "geocoder backend: smarty or libpostal")
	flags.String("smarty-license", "us-standard-cloud", "Smarty license type")
	flags.Duration("smarty-timeout", 10*time.Second, "Smarty HTTP request timeout")
	flags.String("libpostal-url", "http://localhost:8080", "libpostal HTTP sidecar base URL")
	flags.Duration("libpostal-timeout", 5*time.Second, "libpostal HTTP request timeout")
	flags.String("cache", "", "cache backend URL: redis://... or bigtable://project/instance/table")
	flags.Bool("cache-hits-only", false, "never call the geocoder on a cache miss")
	flags.Bool("cache-output-keys", false, "log every cache key computed (at debug log level), for troubleshooting")
	flags.String("cache-key-prefix", "", "namespace prefix applied to every cache key")
	flags.Bool("normalize", false, "normalize street addresses before geocoding")
	flags.Float64("max-addresses-per-second", 0, "rate limit applied to the external geocoder, 0 disables it")
	flags.Int("max-retries", 4, "maximum retries per chunk on a transient geocoder error")
	flags.StringSlice("metrics-label", nil, "KEY=VALUE metrics label, repeatable")
	flags.StringSlice("kafka-brokers", nil, "Kafka broker addresses")
	flags.String("kafka-source-topic", "", "Kafka topic to read input rows from")
	flags.String("kafka-sink-topic", "", "Kafka topic to write output rows to")
	flags.String("kafka-group-id", "geocode-csv", "Kafka consumer group id")
	flags.String("listen-address", "127.0.0.1:8787", "address the server subcommand listens on")
	flags.String("log-level", "info", "log level: debug, info, warn, or error")
	flags.String("log-format", "json", "log format: json or text")

	bindings := map[string]string{
		"spec":                     "spec",
		"match":                    "match",
		"duplicate-columns":        "duplicate_columns",
		"geocoder":                 "geocoder",
		"smarty-license":           "smarty_license",
		"smarty-timeout":           "smarty_timeout",
		"libpostal-url":            "libpostal_url",
		"libpostal-timeout":        "libpostal_timeout",
		"cache":                    "cache_url",
		"cache-hits-only":          "cache_hits_only",
		"cache-output-keys":        "cache_output_keys",
		"cache-key-prefix":         "cache_key_prefix",
		"normalize":                "normalize",
		"max-addresses-per-second": "max_addresses_per_second",
		"max-retries":              "max_retries",
		"metrics-label":            "metrics_label",
		"kafka-brokers":            "kafka_brokers",
		"kafka-source-topic":       "kafka_source_topic",
		"kafka-sink-topic":         "kafka_sink_topic",
		"kafka-group-id":           "kafka_group_id",
		"listen-address":           "listen_address",
		"log-level":                "log_level",
		"log-format":               "log_format",
	}
	for flag, key := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("config: bind flag %q: %w", flag, err)
		}
	}
	return nil
}

// Load merges bound flags, environment variables, and defaults into a
// Config. v must already have had BindFlags applied to the same flag
// set cmd.Flags() exposes. requireSpec is false for the `server`
// subcommand, which geocodes whatever address a request carries
// instead of resolving columns against a spec file.
func Load(v *viper.Viper, requireSpec bool) (*Config, error) {
	v.SetEnvPrefix("GEOCODE_CSV")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Smarty's own historical env var names, bound to the same config
	// keys the --smarty-* flags use, so existing deployments that set
	// SMARTY_AUTH_ID/SMARTY_AUTH_TOKEN (or the legacy SMARTYSTREETS_*
	// names) keep working unmodified.
	_ = v.BindEnv("smarty_auth_id", "SMARTY_AUTH_ID", "SMARTYSTREETS_AUTH_ID")
	_ = v.BindEnv("smarty_auth_token", "SMARTY_AUTH_TOKEN", "SMARTYSTREETS_AUTH_TOKEN")

	v.SetConfigName("geocode-csv")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	labels, err := parseMetricsLabels(v.GetStringSlice("metrics_label"))
	if err != nil {
		return nil, err
	}
	cfg.MetricsLabels = labels

	if requireSpec && cfg.Spec == "" {
		return nil, fmt.Errorf("config: --spec is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseMetricsLabels(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	labels := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("config: --metrics-label %q: expected KEY=VALUE", p)
		}
		labels[k] = v
	}
	return labels, nil
}

// validate checks configuration invariants that hold for every
// subcommand, independent of which transport ends up running.
func (c *Config) validate() error {
	switch c.Match {
	case "strict", "range", "invalid", "enhanced":
	default:
		return fmt.Errorf("config: --match: unknown strategy %q", c.Match)
	}
	switch c.Geocoder {
	case "smarty":
		if c.Smarty.AuthID == "" || c.Smarty.AuthToken == "" {
			return fmt.Errorf("config: smarty geocoder requires SMARTY_AUTH_ID and SMARTY_AUTH_TOKEN")
		}
	case "libpostal":
		if c.Libpostal.BaseURL == "" {
			return fmt.Errorf("config: libpostal geocoder requires --libpostal-url")
		}
	default:
		return fmt.Errorf("config: --geocoder: unknown backend %q", c.Geocoder)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: --max-retries must be >= 0")
	}
	return nil
}
