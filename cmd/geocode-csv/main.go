// Command geocode-csv batch-geocodes CSV rows (or Kafka messages, or
// one-off HTTP requests) against Smarty or libpostal, optionally
// normalizing and caching addresses along the way.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	csvadapter "github.com/couchcryptid/geocode-csv/internal/adapter/csv"
	httpadapter "github.com/couchcryptid/geocode-csv/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/geocode-csv/internal/adapter/kafka"
	"github.com/couchcryptid/geocode-csv/internal/cachecodec"
	"github.com/couchcryptid/geocode-csv/internal/config"
	"github.com/couchcryptid/geocode-csv/internal/domain"
	"github.com/couchcryptid/geocode-csv/internal/geocoder"
	"github.com/couchcryptid/geocode-csv/internal/geocoder/libpostal"
	"github.com/couchcryptid/geocode-csv/internal/geocoder/smarty"
	"github.com/couchcryptid/geocode-csv/internal/kvstore"
	"github.com/couchcryptid/geocode-csv/internal/observability"
	"github.com/couchcryptid/geocode-csv/internal/pipeline"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "geocode-csv",
	Short: "Batch-geocode CSV rows against Smarty or libpostal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(v, true)
		if err != nil {
			return err
		}
		return runPipeline(cmd.Context(), cfg)
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve geocoding over HTTP instead of batch-processing CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(v, false)
		if err != nil {
			return err
		}
		return runServer(cmd.Context(), cfg)
	},
}

func init() {
	if err := config.BindFlags(rootCmd.PersistentFlags(), v); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(serverCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadSpec reads the address column spec file named by --spec.
func loadSpec(path string) (domain.AddressColumnSpec[string], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec file: %w", err)
	}
	var spec domain.AddressColumnSpec[string]
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse spec file: %w", err)
	}
	return spec, nil
}

// headerFromSpec derives a row header for the Kafka transport, which has
// no header record of its own: every column key the spec references, in
// sorted-prefix order, deduplicated in first-seen order.
func headerFromSpec(spec domain.AddressColumnSpec[string]) []string {
	var header []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		header = append(header, name)
	}

	for _, prefix := range spec.SortedPrefixes() {
		keys := spec[prefix]
		for _, k := range keys.Street.Keys {
			add(k)
		}
		if keys.City != nil {
			add(*keys.City)
		}
		if keys.State != nil {
			add(*keys.State)
		}
		if keys.Zipcode != nil {
			add(*keys.Zipcode)
		}
	}
	return header
}

// smartyLimiterConfig derives the leaky-bucket settings for a configured
// --max-addresses-per-second limit. The burst must cover one full
// GeocodeSize chunk, or rate.Limiter.WaitN rejects every request once
// the configured limit falls below GeocodeSize addresses/sec.
func smartyLimiterConfig(perSecond float64) smarty.LimiterConfig {
	initial := int(perSecond)
	if initial < pipeline.GeocodeSize {
		initial = pipeline.GeocodeSize
	}
	return smarty.LimiterConfig{
		Initial:   initial,
		Max:       initial * 2,
		PerSecond: perSecond,
	}
}

// buildGeocoder assembles the decorator stack
// InvalidSkipper(Normalizer(Cache(backend))), each layer present only
// when its flag was given.
func buildGeocoder(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (domain.Geocoder, error) {
	var backend domain.Geocoder
	switch cfg.Geocoder {
	case "smarty":
		opts := []smarty.Option{
			smarty.WithMetrics(metrics),
			smarty.WithMatchStrategy(smarty.MatchStrategy(cfg.Match)),
		}
		if cfg.RateLimit.MaxAddressesPerSecond > 0 {
			limiter := smarty.NewLimiter(smartyLimiterConfig(cfg.RateLimit.MaxAddressesPerSecond), clockwork.NewRealClock())
			opts = append(opts, smarty.WithLimiter(limiter))
		}
		backend = smarty.New(cfg.Smarty.AuthID, cfg.Smarty.AuthToken, cfg.Smarty.Timeout, opts...)
	case "libpostal":
		backend = libpostal.New(cfg.Libpostal.BaseURL, cfg.Libpostal.Timeout)
	default:
		return nil, fmt.Errorf("unknown geocoder backend %q", cfg.Geocoder)
	}

	var g domain.Geocoder = backend
	if cfg.Cache.URL != "" {
		store, err := kvstore.Open(ctx, cfg.Cache.URL, cfg.Cache.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		g = &geocoder.Cache{
			Next:       g,
			Store:      store,
			Compressor: cachecodec.CompressorZstd,
			HitsOnly:   cfg.Cache.HitsOnly,
			KeyPrefix:  cfg.Cache.KeyPrefix,
			LogKeys:    cfg.Cache.OutputKeys,
			Logger:     observability.NewLogger(cfg.Log.Level, cfg.Log.Format),
		}
	}
	if cfg.Normalize {
		g = &geocoder.Normalizer{Next: g, Parser: &libpostal.HeuristicParser{}}
	}
	return &geocoder.InvalidSkipper{Next: g}, nil
}

func runPipeline(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	metrics := observability.NewMetrics()

	spec, err := loadSpec(cfg.Spec)
	if err != nil {
		return err
	}

	g, err := buildGeocoder(ctx, cfg, metrics)
	if err != nil {
		return err
	}

	duplicatePolicy, err := pipeline.ParseDuplicatePolicy(cfg.DuplicateColumns)
	if err != nil {
		return err
	}

	var src pipeline.RowSource
	var sink pipeline.RowSink
	if cfg.UsesKafka() {
		reader := kafkago.NewReader(kafkago.ReaderConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.SourceTopic,
			GroupID: cfg.Kafka.GroupID,
		})
		writer := &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.SinkTopic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireAll,
		}
		src = kafkaadapter.NewSource(reader, headerFromSpec(spec))
		sink = kafkaadapter.NewSink(writer)
	} else {
		src = csvadapter.NewSource(os.Stdin)
		sink = csvadapter.NewSink(os.Stdout)
	}

	report := pipeline.Run(ctx, src, sink, pipeline.Options{
		Spec:             spec,
		Geocoder:         g,
		MaxRetries:       cfg.MaxRetries,
		DuplicateColumns: duplicatePolicy,
		Logger:           logger,
		Metrics:          metrics,
	})
	if report.Failed() {
		return fmt.Errorf("pipeline failed: reader=%v geocode=%v writer=%v", report.ReaderErr, report.GeocodeErr, report.WriterErr)
	}
	return nil
}

type alwaysReady struct{}

func (alwaysReady) CheckReadiness(context.Context) error { return nil }

func runServer(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	metrics := observability.NewMetrics()

	g, err := buildGeocoder(ctx, cfg, metrics)
	if err != nil {
		return err
	}

	srv := httpadapter.NewServer(cfg.Server.ListenAddress, g, alwaysReady{}, logger)
	return srv.Start()
}
