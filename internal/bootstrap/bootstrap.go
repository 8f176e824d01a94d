// Package bootstrap wires configuration into the concrete adapters and
// pipeline stages shared by the commands.
package bootstrap

import (
	"context"
	"fmt"

	"cryptoDataPipeline/config"
	"cryptoDataPipeline/internal/adapters/binanceclient"
	"cryptoDataPipeline/internal/adapters/sqlite"
	"cryptoDataPipeline/internal/app"
	"cryptoDataPipeline/internal/engine"
	"cryptoDataPipeline/internal/ingest"
	"cryptoDataPipeline/internal/metrics"
	"cryptoDataPipeline/internal/ports"
	"cryptoDataPipeline/internal/retry"
)

// Components are the wired parts of one process.
type Components struct {
	Repository *sqlite.Repository
	Exchange   *binanceclient.Client
	Fetcher    *ingest.Fetcher
	Loader     *ingest.Loader
	Engine     *engine.Engine
	Pipeline   *app.Pipeline
	Metrics    *metrics.Metrics

	cfg    *config.Config
	logger ports.Logger
}

// New opens the database and builds every stage from cfg.
// The caller must Close the returned Components.
func New(cfg *config.Config, logger ports.Logger) (*Components, error) {
	return NewWithMode(cfg, logger, cfg.IndicatorMode)
}

// NewWithMode is New with an indicator mode override.
func NewWithMode(cfg *config.Config, logger ports.Logger, mode engine.Mode) (*Components, error) {
	m := metrics.NewMetrics()

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database repository: %w", err)
	}

	c := &Components{Repository: repo, Metrics: m, cfg: cfg, logger: logger}
	if err := c.build(mode); err != nil {
		repo.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) build(mode engine.Mode) error {
	cfg := c.cfg
	exchange, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		BaseURL:    cfg.BaseURL,
		UseTestnet: cfg.IsTestnet,
		Timeout:    cfg.RequestTimeout,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Binance client: %w", err)
	}
	c.Exchange = exchange

	c.Fetcher, err = ingest.NewFetcher(ingest.FetcherConfig{
		Exchange:   exchange,
		Watermarks: c.Repository,
		Retry:      RetryPolicy(cfg),
		PageLimit:  cfg.PageLimit,
		MaxPages:   cfg.MaxPages,
		Logger:     c.logger,
		Metrics:    c.Metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize fetcher: %w", err)
	}

	c.Loader, err = ingest.NewLoader(ingest.LoaderConfig{
		Resolver: c.Repository,
		Writer:   c.Repository,
		Logger:   c.logger,
		Metrics:  c.Metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize loader: %w", err)
	}

	c.Engine, err = engine.New(engine.Config{
		Repository:    c.Repository,
		Window:        cfg.IndicatorWindow,
		Mode:          mode,
		PartialPolicy: cfg.PartialPolicy,
		Workers:       cfg.IndicatorWorkers,
		Logger:        c.logger,
		Metrics:       c.Metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize indicator engine: %w", err)
	}

	c.Pipeline, err = app.NewPipeline(app.PipelineConfig{
		Resolver:      c.Repository,
		Fetcher:       c.Fetcher,
		Loader:        c.Loader,
		Engine:        c.Engine,
		SeedSymbols:   cfg.Symbols,
		SeedIntervals: cfg.Intervals,
		PageLimit:     cfg.PageLimit,
		Logger:        c.logger,
		Metrics:       c.Metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	return nil
}

// RetryPolicy builds the fetch retry policy described by cfg.
func RetryPolicy(cfg *config.Config) retry.Policy {
	delay := retry.FixedDelay(cfg.RetryDelay)
	if cfg.RetryBackoff == config.BackoffExponential {
		delay = retry.ExponentialDelay(cfg.RetryDelay, cfg.RetryMaxDelay)
	}
	return retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		Delay:       delay,
		Sleep:       retry.ContextSleep,
	}
}

// CheckExchange pings the exchange once. Ingestion still runs when it fails,
// each pair then retries on its own.
func (c *Components) CheckExchange(ctx context.Context) {
	if err := c.Exchange.Ping(ctx); err != nil {
		c.logger.Warn(ctx, "Exchange ping failed", map[string]interface{}{"baseURL": c.cfg.BaseURL, "error": err.Error()})
		return
	}
	c.logger.Info(ctx, "Exchange reachable", map[string]interface{}{"baseURL": c.cfg.BaseURL})
}

// PushMetrics sends the run's metrics to the configured Pushgateway.
// It does nothing when no gateway is configured.
func (c *Components) PushMetrics(ctx context.Context) {
	if c.cfg.PushgatewayURL == "" {
		return
	}
	if err := c.Metrics.Push(ctx, c.cfg.PushgatewayURL, c.cfg.MetricsJob); err != nil {
		c.logger.Error(ctx, err, "Failed to push metrics", map[string]interface{}{"gateway": c.cfg.PushgatewayURL})
		return
	}
	c.logger.Debug(ctx, "Metrics pushed", map[string]interface{}{"gateway": c.cfg.PushgatewayURL, "job": c.cfg.MetricsJob})
}

// Close releases the database.
func (c *Components) Close() error {
	return c.Repository.Close()
}
