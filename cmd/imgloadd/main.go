package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/imagepipeline/internal/config"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/diskcache"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/httpclient"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/memcache"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/metrics"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/pipeline"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/ratelimit"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/resumable"
	"github.com/ManuGH/imagepipeline/internal/imagepipeline/stdcodec"
	imglog "github.com/ManuGH/imagepipeline/internal/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	metricsAddr := flag.String("metrics-addr", ":9102", "address to serve /metrics on")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	imglog.Configure(imglog.Config{Level: "info", Service: "imgloadd", Version: version})
	logger := imglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("config_path", *configPath).Msg("failed to load configuration")
	}

	imglog.Configure(imglog.Config{Level: cfg.LogLevel, Service: "imgloadd", Version: version})
	logger = imglog.WithComponent("daemon")
	logger.Info().Str("config_path", *configPath).Msg("configuration loaded")

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	deps, closeDeps, err := buildDependencies(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build pipeline dependencies")
	}
	defer closeDeps()

	p := pipeline.New(cfg.ToOptions(), deps)
	defer p.Close()

	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{Addr: *metricsAddr, Handler: promhttp.Handler()}
	g.Go(func() error {
		logger.Info().Str("addr", *metricsAddr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}

type closerFunc func()

func buildDependencies(cfg config.PipelineConfig, logger zerolog.Logger) (pipeline.Dependencies, closerFunc, error) {
	var closers []func()
	closeAll := closerFunc(func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	})

	deps := pipeline.Dependencies{
		DataLoader:     httpclient.New("imgloadd-origin", httpclient.Options{}),
		DecoderFactory: stdcodec.NewFactory(),
		Metrics:        metrics.NewPrometheusSink(),
	}

	if cfg.DiskCache.Path != "" {
		dc, err := diskcache.Open(cfg.ToDiskCacheConfig())
		if err != nil {
			return pipeline.Dependencies{}, closeAll, fmt.Errorf("open disk cache: %w", err)
		}
		deps.DataCache = dc
		closers = append(closers, func() {
			if err := dc.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing disk cache")
			}
		})
	}

	if cfg.MemoryCache.TTL > 0 {
		mc := memcache.NewTTLCache(cfg.MemoryCache.TTL, cfg.MemoryCache.CleanupInterval)
		deps.ImageCache = mc
		closers = append(closers, mc.Stop)
	}

	if cfg.ResumableData {
		store, err := buildResumableStore(cfg.ResumableStore.Path)
		if err != nil {
			return pipeline.Dependencies{}, closeAll, fmt.Errorf("build resumable store: %w", err)
		}
		deps.ResumableStore = store
		closers = append(closers, func() {
			if err := store.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing resumable store")
			}
		})
	}

	if cfg.RateLimiter {
		deps.Limiter = ratelimit.New(cfg.RateLimiterCapacity, cfg.RateLimiterRefill)
	}

	return deps, closeAll, nil
}

func buildResumableStore(path string) (resumable.Store, error) {
	if path == "" {
		return resumable.NewMemoryStore(), nil
	}
	return resumable.NewSQLiteStore(path)
}
