// Package main is the entry point for the ledgerpulse XRPL payment observer.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ledgerpulse/engine/internal/config"
	"github.com/ledgerpulse/engine/internal/detector"
	"github.com/ledgerpulse/engine/internal/ingest"
	"github.com/ledgerpulse/engine/internal/metrics"
	"github.com/ledgerpulse/engine/internal/pipeline"
	"github.com/ledgerpulse/engine/internal/publish"
	"github.com/ledgerpulse/engine/internal/server"
	"github.com/ledgerpulse/engine/internal/sink"
	"github.com/ledgerpulse/engine/internal/store"
	"github.com/ledgerpulse/engine/internal/ui"
	"github.com/ledgerpulse/engine/internal/window"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		slog.Error("engine_failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// The TUI owns stdout, so logs go to a file while it runs.
	var logOut io.Writer = os.Stdout
	if cfg.EnableTUI {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	slog.SetDefault(setupLogger(cfg.LogLevel, logOut))

	slog.Info("ledgerpulse starting", "version", version)
	slog.Info("config_loaded",
		"ws_urls", strings.Join(cfg.WSURLs, ","),
		"rest_url", cfg.RESTURL,
		"window", cfg.WindowLength,
		"whale_threshold_xrp", ingest.FormatXRP(cfg.WhaleThreshold),
		"publish_interval", cfg.PublishInterval,
		"poll_interval", cfg.PollInterval,
		"strict_addresses", cfg.StrictAddresses,
		"http_addr", cfg.HTTPAddr,
		"kafka_brokers", strings.Join(cfg.KafkaBrokers, ","),
		"redis_addr", cfg.RedisAddr,
		"redis_password", cfg.MaskedRedisPassword(),
		"enable_tui", cfg.EnableTUI,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prom := metrics.NewCollectors("ledgerpulse")
	tracker := metrics.NewTracker(prom)

	agg := window.New(cfg.WindowLength)
	dec := ingest.NewDecoder(ingest.WithStrictAddresses(cfg.StrictAddresses))
	det := detector.NewDetector(cfg.WhaleThreshold)

	// The publisher reads health from the manager and the pipeline queues
	// whales on the publisher, so the handler is bound after both exist.
	var pipe *pipeline.Pipeline
	handle := func(raw []byte, transport store.Transport) { pipe.Handle(raw, transport) }

	mgr := ingest.NewManager(ingest.ManagerConfig{
		ConnectTimeout:      cfg.ConnectTimeout,
		PollInterval:        cfg.PollInterval,
		InitialBackoff:      cfg.InitialBackoff,
		MaxBackoff:          cfg.MaxBackoff,
		MaxImmediateRetries: cfg.MaxImmediateRetries,
	},
		ingest.NewWSTransport(cfg.WSURLs, cfg.LivenessTimeout),
		ingest.NewHTTPPoller(cfg.RESTURL),
		handle,
	)

	pub := publish.New(publish.Config{
		Interval:         cfg.PublishInterval,
		MaxPendingWhales: cfg.MaxPendingWhales,
	}, agg, mgr, tracker, prom)

	pipe = pipeline.New(dec, agg, det, pub, tracker)
	mgr.OnTransition(tracker.SetState)
	mgr.OnTransition(prom.ObserveTransition)

	g, gctx := errgroup.WithContext(ctx)

	if err := startSinks(gctx, g, cfg, pub); err != nil {
		stop()
		g.Wait()
		return err
	}

	g.Go(func() error { return mgr.Run(gctx) })
	g.Go(func() error { return pub.Run(gctx) })

	srv := server.New(cfg.HTTPAddr, pub, mgr, prom, cfg.RecentEventsLimit)
	g.Go(func() error { return srv.Run(gctx) })

	if cfg.EnableTUI {
		tuiCtx, cancel := context.WithCancel(gctx)
		app := ui.NewApp(pub.Subscribe(), stop)
		g.Go(func() error {
			defer cancel()
			return app.Run(tuiCtx)
		})
	}

	slog.Info("engine_started",
		"status", "observing payments",
		"window", cfg.WindowLength,
		"tui_enabled", cfg.EnableTUI,
	)

	err = g.Wait()
	slog.Info("shutdown_complete")
	return err
}

// startSinks connects the configured Kafka and Redis sinks and forwards
// publisher updates to them. A sink that cannot connect at start-up fails
// the engine.
func startSinks(ctx context.Context, g *errgroup.Group, cfg *config.Config, pub *publish.Publisher) error {
	if len(cfg.KafkaBrokers) > 0 {
		ks, err := sink.NewKafkaWhaleSink(cfg.KafkaBrokers, cfg.KafkaWhaleTopic, nil)
		if err != nil {
			return err
		}
		sub := pub.Subscribe()
		g.Go(func() error {
			defer ks.Close()
			return sink.Forward(ctx, "kafka", sub, ks.Consume)
		})
		slog.Info("sink_started", "sink", "kafka", "brokers", strings.Join(cfg.KafkaBrokers, ","), "topic", cfg.KafkaWhaleTopic)
	}

	if cfg.RedisAddr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rs, err := sink.NewRedisStatsSink(pingCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChannel, cfg.RecentEventsLimit)
		cancel()
		if err != nil {
			return err
		}
		sub := pub.Subscribe()
		g.Go(func() error {
			defer rs.Close()
			return sink.Forward(ctx, "redis", sub, rs.Consume)
		})
		slog.Info("sink_started", "sink", "redis", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}
	return nil
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 level=INFO msg=message key=value
func setupLogger(levelStr string, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	return slog.New(slog.NewTextHandler(w, opts))
}
