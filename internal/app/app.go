package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/qrdine/core/internal/config"
	"github.com/qrdine/core/internal/database"
	"github.com/qrdine/core/internal/middleware"
	"github.com/qrdine/core/internal/modules/gateway/gateway"
	"github.com/qrdine/core/internal/modules/gateway/webhook"
	pkgcron "github.com/qrdine/core/internal/pkg/cron"
	"github.com/qrdine/core/internal/pkg/jwt"
	"github.com/qrdine/core/internal/pkg/metrics"
	pkgredis "github.com/qrdine/core/internal/pkg/redis"
	"github.com/qrdine/core/internal/pkg/telemetry"
	"github.com/qrdine/core/internal/store/gormstore"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg        *config.AppConfig
	router     *gin.Engine
	db         *gorm.DB
	rc         *pkgredis.Client
	store      *gormstore.Store
	tokens     *jwt.Manager
	hub        *gateway.Hub
	dispatcher *webhook.Dispatcher
	sched      *pkgcron.Scheduler
	logger     *zap.Logger
	cancel     context.CancelFunc
	tracing    telemetry.ShutdownFunc
	startedAt  time.Time
}

// New initializes the application: config → DB → Redis → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := applyRuntimeSettings(cfg); err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	var rc *pkgredis.Client
	if !cfg.Redis.Disabled {
		if rc, err = pkgredis.Connect(cfg.RedisURL); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
	} else {
		logger.Warn("redis disabled, idempotence and rate limiting are off")
	}

	tokens, err := newTokenManager(cfg, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	tracing := telemetry.Setup(ctx, cfg.Telemetry, logger)

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	if cfg.Telemetry.Metrics {
		router.Use(metrics.Middleware())
	}

	router.Use(cors.New(newCORSConfig(cfg)))

	st := gormstore.New(db)

	hub := gateway.NewHub(rc, logger, func(token string) (string, bool) {
		claims, err := tokens.Parse(token)
		if err != nil {
			return "", false
		}
		return claims.OrganizationID, true
	})
	go hub.Run(ctx)

	dispatcher := webhook.NewDispatcher(st, cfg.Webhook, logger)
	dispatcher.Start()

	app := &App{
		cfg:        cfg,
		router:     router,
		db:         db,
		rc:         rc,
		store:      st,
		tokens:     tokens,
		hub:        hub,
		dispatcher: dispatcher,
		sched:      pkgcron.New(logger),
		logger:     logger,
		cancel:     cancel,
		tracing:    tracing,
		startedAt:  time.Now(),
	}
	app.registerRoutes()
	app.sched.Start(ctx)

	return app, nil
}

func newTokenManager(cfg *config.AppConfig, logger *zap.Logger) (*jwt.Manager, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		if !cfg.IsDev() {
			return nil, errors.New("jwt_secret is required outside development")
		}
		secret = uuid.New().String()
		logger.Warn("jwt_secret is empty, using an ephemeral secret; staff tokens will not survive a restart")
	}
	return jwt.New(secret, 0)
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler with a server span per request.
func (a *App) Router() http.Handler { return telemetry.Handler(a.router, "qrdine") }

// Shutdown stops background work and releases connections. Queued webhook
// deliveries are drained until ctx expires.
func (a *App) Shutdown(ctx context.Context) {
	a.cancel()
	if err := a.dispatcher.Shutdown(ctx); err != nil {
		a.logger.Warn("webhook queue not drained", zap.Error(err))
	}
	if err := a.tracing(ctx); err != nil {
		a.logger.Warn("tracer shutdown failed", zap.Error(err))
	}
	if err := a.rc.Close(); err != nil {
		a.logger.Warn("redis close failed", zap.Error(err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
