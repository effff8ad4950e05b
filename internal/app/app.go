// Package app wires configuration, storage and integrations into a running
// Mkulima service.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mkulima/internal/cache"
	"mkulima/internal/config"
	"mkulima/internal/envdata"
	"mkulima/internal/httpx"
	"mkulima/internal/integrations/llm"
	slackbot "mkulima/internal/integrations/slack"
	"mkulima/internal/metrics"
	"mkulima/internal/profit"
	"mkulima/internal/scheduler"
	"mkulima/internal/server"
	"mkulima/internal/storage/influx"
	"mkulima/internal/storage/sqlite"
	"mkulima/internal/yield"
)

const shutdownTimeout = 5 * time.Second

// App holds every long-lived component. Build it with New and release it
// with Close.
type App struct {
	Config     config.Config
	Fetcher    envdata.Fetcher
	Predictor  *yield.Predictor
	Calculator *profit.Calculator
	Cache      cache.Store
	Generator  *llm.Generator
	DB         *sql.DB
	Influx     *influx.Recorder
	Sharer     *slackbot.Sharer
	Metrics    *metrics.Metrics

	memory   *cache.MemoryStore
	redis    *cache.RedisStore
	reloader envdata.Reloader
}

func New(cfg config.Config) (*App, error) {
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. Addr=%s ModelsDir=%s EnvDataCSV=%s EnvDataURL=%s LLMProvider=%s CacheBackend=%s DB=%s Influx=%t Slack=%t ExternalHTTPTimeout=%s",
		cfg.HTTPAddr,
		cfg.ModelsDir,
		cfg.EnvDataCSVPath,
		cfg.EnvDataURL,
		cfg.LLMProvider,
		cfg.CacheBackend,
		cfg.DBPath,
		cfg.InfluxConfigured(),
		cfg.SlackConfigured(),
		appliedHTTPTimeout,
	)

	a := &App{Config: cfg, Metrics: metrics.New()}

	catalog, err := profit.LoadCatalog(cfg.CropCatalogPath)
	if err != nil {
		return nil, err
	}
	a.Calculator = profit.NewCalculator(catalog)

	models, err := yield.LoadModels(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("load yield models: %w", err)
	}
	a.Predictor = yield.NewPredictor(models, catalog)
	log.Printf("Loaded %d yield models: %v", len(models), a.Predictor.Crops())

	if err := a.initEnvData(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initCache(); err != nil {
		a.Close()
		return nil, err
	}

	client, err := llm.NewClient(cfg)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		log.Printf("LLM disabled: %v", err)
	case err != nil:
		a.Close()
		return nil, err
	}
	a.Generator = llm.NewGenerator(client, cfg.ChatTemperature, cfg.ChatMaxTokens)
	a.Generator.SetObserver(func(op string, elapsed time.Duration, usage llm.Usage, err error) {
		a.Metrics.ObserveLLM(op, elapsed, usage.InputTokens, usage.OutputTokens, err)
	})

	a.DB, err = sqlite.InitDB(cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	log.Printf("Database initialized at %s", cfg.DBPath)

	if cfg.InfluxConfigured() {
		a.Influx = influx.NewRecorder(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		log.Printf("InfluxDB recording enabled bucket=%s", cfg.InfluxBucket)
	}
	if cfg.SlackConfigured() {
		a.Sharer = slackbot.NewSharer(cfg.SlackBotToken, cfg.SlackChannelID)
		log.Printf("Slack sharing enabled channel=%s", cfg.SlackChannelID)
	}
	return a, nil
}

func (a *App) initEnvData() error {
	csvFetcher, csvErr := envdata.NewCSVFetcher(a.Config.EnvDataCSVPath)
	if csvErr != nil && a.Config.EnvDataURL == "" {
		return fmt.Errorf("load county data: %w", csvErr)
	}
	if a.Config.EnvDataURL == "" {
		a.Fetcher, a.reloader = csvFetcher, csvFetcher
		log.Printf("County data loaded from %s (%d counties)", a.Config.EnvDataCSVPath, len(csvFetcher.Counties()))
		return nil
	}

	remote := envdata.NewHTTPFetcher(a.Config.EnvDataURL, a.Config.EnvDataRetries)
	if csvErr != nil {
		log.Printf("County table unavailable, using %s only: %v", a.Config.EnvDataURL, csvErr)
		a.Fetcher = remote
		return nil
	}
	fallback := envdata.FallbackFetcher{Primary: remote, Secondary: csvFetcher}
	a.Fetcher, a.reloader = fallback, fallback
	log.Printf("County data from %s with fallback to %s", a.Config.EnvDataURL, a.Config.EnvDataCSVPath)
	return nil
}

func (a *App) initCache() error {
	switch a.Config.CacheBackend {
	case config.CacheBackendRedis:
		store, err := cache.NewRedisStore(a.Config.RedisURL, a.Config.CacheTTL())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return fmt.Errorf("connect redis: %w", err)
		}
		a.redis, a.Cache = store, store
		log.Printf("Prediction cache: redis ttl=%s", a.Config.CacheTTL())
	default:
		store := cache.NewMemoryStore(a.Config.CacheTTL())
		a.memory, a.Cache = store, store
		log.Printf("Prediction cache: memory ttl=%s", a.Config.CacheTTL())
	}
	return nil
}

// Server builds the HTTP API over the app's components.
func (a *App) Server() *server.Server {
	deps := server.Deps{
		Fetcher:    a.Fetcher,
		Predictor:  a.Predictor,
		Calculator: a.Calculator,
		Cache:      a.Cache,
		Generator:  a.Generator,
		DB:         a.DB,
		Influx:     a.Influx,
		Metrics:    a.Metrics,
	}
	if a.Sharer != nil {
		deps.Sharer = a.Sharer
	}
	return server.New(deps)
}

// Maintenance returns the housekeeping job wired to the app's storage.
func (a *App) Maintenance() scheduler.Maintenance {
	m := scheduler.Maintenance{
		DB:        a.DB,
		Retention: a.Config.HistoryRetention(),
		EnvData:   a.reloader,
	}
	if a.memory != nil {
		m.Cache = a.memory
	}
	if a.Sharer != nil {
		m.Notify = func(summary string) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.Sharer.PostText(ctx, summary); err != nil {
				log.Printf("maintenance notify error: %v", err)
			}
		}
	}
	return m
}

// Serve runs the HTTP server and maintenance job until ctx is cancelled,
// then shuts the server down gracefully.
func (a *App) Serve(ctx context.Context) error {
	scheduler.Start(ctx, a.Config.HistoryPruneSchedule, a.Maintenance())

	srv := &http.Server{
		Addr:              a.Config.HTTPAddr,
		Handler:           a.Server().Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Mkulima API listening on %s", a.Config.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Println("Server exited")
	return nil
}

func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.Influx.Close()
}

// Main loads config, serves until SIGINT or SIGTERM and exits.
func Main() {
	cfg := config.LoadConfig()
	a, err := New(cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	log.Println("Starting Mkulima crop advisory service...")
	err = a.Serve(ctx)
	stop()
	a.Close()
	if err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
