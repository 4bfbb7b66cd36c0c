package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/pms/pms/internal/config"
	"github.com/pms/pms/internal/domain/patient"
	"github.com/pms/pms/internal/platform/db"
	"github.com/pms/pms/internal/platform/events"
	"github.com/pms/pms/internal/platform/middleware"
	"github.com/pms/pms/internal/platform/openapi"
	"github.com/pms/pms/internal/platform/websocket"
)

const version = "0.1.0"

// app holds everything a command needs: the store backend, the optional
// database pool behind it, the event publisher and the patient service.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	backend   patient.Backend
	pool      *pgxpool.Pool
	publisher events.Publisher
	hub       *websocket.Hub
	svc       *patient.Service
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

// newApp opens the configured backend. The live event feed and Kafka are
// only set up when withEvents is set, so maintenance commands never need a
// broker.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, withEvents bool) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, publisher: events.NopPublisher{}}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			DatabaseURL: cfg.DatabaseURL,
			MaxConns:    cfg.DBMaxConns,
			MinConns:    cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.backend = patient.NewPGStore(pool, cfg.StoreCollection)
		logger.Info().Str("collection", cfg.StoreCollection).Msg("connected to database")
	default:
		fs := patient.NewFileStore(cfg.StorePath)
		a.backend = fs
		logger.Info().Str("path", fs.Path()).Msg("using patient file")
	}

	if cfg.StoreAutoInit {
		created, err := a.backend.Init(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initialize store: %w", err)
		}
		if created {
			logger.Info().Str("backend", a.backend.Name()).Msg("created empty patient store")
		}
	}

	if withEvents {
		a.hub = websocket.NewHub(logger)
		fanout := events.Fanout{a.hub}
		if cfg.KafkaEnabled() {
			pub, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
			if err != nil {
				a.Close()
				return nil, err
			}
			fanout = append(fanout, pub)
			logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing patient events")
		}
		a.publisher = fanout
	}

	a.svc = patient.NewService(a.backend, a.publisher, logger)
	return a, nil
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close event publisher")
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) poolStats() func() *db.PoolStats {
	if a.pool == nil {
		return nil
	}
	return func() *db.PoolStats { return db.GetPoolStats(a.pool) }
}

func newServer(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(a.logger)

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(a.cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))
	if a.cfg.RateLimitRPS > 0 {
		e.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: a.cfg.RateLimitRPS,
			BurstSize:         a.cfg.RateLimitBurst,
		}))
	}

	e.GET("/health", db.HealthHandler(a.backend, a.poolStats()))

	root := e.Group("")
	patient.NewHandler(a.svc).RegisterRoutes(root)
	openapi.NewGenerator(version, fmt.Sprintf("http://localhost:%s", a.cfg.Port)).RegisterRoutes(root)
	if a.hub != nil {
		websocket.NewHandler(a.hub, a.cfg.CORSOrigins).RegisterRoutes(root)
	}

	return e
}
