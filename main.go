package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"utmtracker/api/config"
	"utmtracker/api/database"
	"utmtracker/api/handlers"
	"utmtracker/api/logger"
	"utmtracker/api/metrics"
	"utmtracker/api/middleware"
	"utmtracker/api/store"
	"utmtracker/api/tracking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", false)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.Server.GinMode != "" {
		gin.SetMode(cfg.Server.GinMode)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	events, closeStore, err := openEventStore(ctx, cfg.Store, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to initialize event store")
	}
	defer closeStore()

	limiter := tracking.NewRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	sessions := tracking.NewSessionTracker(cfg.Session.Timeout, cfg.Session.MaxEntries)
	go limiter.Run(ctx, cfg.RateLimit.SweepInterval)
	go sessions.Run(ctx, cfg.Session.SweepInterval)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	metrics.RegisterGauges(reg, sessions.Len, limiter.Clients)

	r := NewRouter(cfg, RouterDeps{
		Limiter:    limiter,
		Normalizer: tracking.NewNormalizer(sessions, log),
		Events:     events,
		Metrics:    m,
		Gatherer:   reg,
		Logger:     log,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("store", events.Name()).Msg("tracking server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("tracking server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server exiting")
}

// RouterDeps carries the collaborators wired into the HTTP router.
type RouterDeps struct {
	Limiter    *tracking.RateLimiter
	Normalizer *tracking.Normalizer
	Events     store.EventRepository
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Logger     zerolog.Logger
}

func NewRouter(cfg config.Config, deps RouterDeps) *gin.Engine {
	trackHandlers := handlers.NewTrackHandlers(deps.Limiter, deps.Normalizer, deps.Events, deps.Metrics, cfg.Store.WriteTimeout, deps.Logger)
	eventsHandlers := handlers.NewEventsHandlers(deps.Events, deps.Logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(deps.Logger, deps.Metrics))
	r.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))

	r.GET("/track", trackHandlers.Track)
	r.POST("/track", trackHandlers.Track)
	r.OPTIONS("/track", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	api := r.Group("/api")
	{
		api.GET("/events", eventsHandlers.ListEvents)
		api.GET("/events/filters", eventsHandlers.ListFilters)
	}

	r.GET("/health", eventsHandlers.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	return r
}

// openEventStore connects the configured backend. With fallback enabled, a
// backend that cannot be reached at startup is replaced by the memory store.
func openEventStore(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (store.EventRepository, func(), error) {
	events, closeFn, err := openBackend(ctx, cfg, log)
	if err == nil {
		return events, closeFn, nil
	}
	if !cfg.Fallback || cfg.Backend == "memory" {
		return nil, nil, err
	}

	log.Warn().Err(err).Str("backend", cfg.Backend).Msg("event store unavailable, falling back to memory store")
	mem, memErr := store.NewMemoryEventStore(cfg.SnapshotPath, log)
	if memErr != nil {
		return nil, nil, memErr
	}
	return mem, func() {}, nil
}

func openBackend(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (store.EventRepository, func(), error) {
	switch cfg.Backend {
	case "clickhouse":
		chClient, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, log)
		if err != nil {
			return nil, nil, err
		}
		s := store.NewClickHouseEventStore(chClient)
		if err := s.EnsureSchema(ctx); err != nil {
			chClient.Close()
			return nil, nil, err
		}
		return s, chClient.Close, nil

	case "postgres":
		dbClient, err := database.NewPostgresDB(ctx, cfg.PostgresURL, log)
		if err != nil {
			return nil, nil, err
		}
		s := store.NewPostgresEventStore(dbClient.DB)
		if err := s.EnsureSchema(ctx); err != nil {
			dbClient.Close()
			return nil, nil, err
		}
		return s, dbClient.Close, nil

	default:
		s, err := store.NewMemoryEventStore(cfg.SnapshotPath, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}
