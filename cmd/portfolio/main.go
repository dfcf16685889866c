package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"portfolio/internal/amqp"
	"portfolio/internal/cache"
	"portfolio/internal/cli"
	"portfolio/internal/config"
	"portfolio/internal/content/memory"
	"portfolio/internal/contrib"
	"portfolio/internal/core"
	"portfolio/internal/github"
	apphttp "portfolio/internal/http"
	"portfolio/internal/log"
)

const calendarCacheSize = 64

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.MustLoadConfig(logger, (*config.Config).Validate)

	store, err := memory.Load(cfg.ContentFile)
	if err != nil {
		logger.Error("Failed to load content catalog", log.FieldError, err, "path", cfg.ContentFile)
		os.Exit(1)
	}

	var registry *prometheus.Registry
	if cfg.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	calendars := github.NewCalendarClient(github.CalendarConfig{
		Endpoint:  cfg.GitHubGraphQLURL,
		Token:     cfg.GitHubToken,
		RateLimit: cfg.GitHubRateLimit,
		Timeout:   cfg.FetchTimeout,
	}, logger.WithComponent(log.ComponentGitHub))
	profiles := github.NewProfileClient(cfg.GitHubToken, cfg.GitHubRateLimit, &http.Client{Timeout: cfg.FetchTimeout})

	opts := []contrib.Option{contrib.WithLogger(logger.WithComponent(log.ComponentContrib))}
	if registry != nil {
		opts = append(opts, contrib.WithMetrics(contrib.NewMetrics(registry)))
	}

	caches := cache.NewManager(logger.WithComponent(log.ComponentCache))
	defer caches.Stop()
	if cfg.ContribCacheTTL > 0 {
		c := cache.NewLRUCache[core.ContributionCalendar](calendarCacheSize, cfg.ContribCacheTTL)
		caches.Register(c)
		caches.StartCleanup(cfg.ContribCacheTTL)
		opts = append(opts, contrib.WithCalendarCache(c))
		logger.Info("Contribution calendar cache enabled", "ttl", cfg.ContribCacheTTL.String())
	}

	if cfg.AMQPURL != "" {
		publisher, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(log.ComponentAMQP))
		if err != nil {
			// Snapshots are optional; the site runs without a broker.
			logger.Warn("AMQP unavailable, snapshot publishing disabled", log.FieldError, err)
		} else {
			defer publisher.Close()
			opts = append(opts, contrib.WithPublisher(publisher))
			logger.Info("Snapshot publishing enabled", "exchange", cfg.AMQPExchange, log.FieldQueue, cfg.AMQPQueue)
		}
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		Identity:       cfg.GitHubLogin,
		Contributions:  contrib.NewService(calendars, opts...),
		Content:        store,
		Stats:          profiles,
		Registry:       registry,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		FetchTimeout:   cfg.FetchTimeout,
		Logger:         logger.WithComponent(log.ComponentHTTP),
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting portfolio server", "port", cfg.Port, log.FieldIdentity, cfg.GitHubLogin)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
