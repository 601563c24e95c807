package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qrdine/core/internal/middleware"
	"github.com/qrdine/core/internal/modules/auth/staff"
	"github.com/qrdine/core/internal/modules/gateway/gateway"
	"github.com/qrdine/core/internal/modules/gateway/webhook"
	"github.com/qrdine/core/internal/modules/ordering/order"
	"github.com/qrdine/core/internal/modules/ordering/tablecall"
	"github.com/qrdine/core/internal/modules/processing/ai"
	"github.com/qrdine/core/internal/modules/stats/analytics"
	"github.com/qrdine/core/internal/pkg/metrics"
	"github.com/qrdine/core/internal/pkg/response"
)

const (
	apiPrefix       = "/api/v1"
	aiChatRateLimit = 5
	healthTimeout   = 2 * time.Second
)

func (a *App) registerRoutes() {
	r := a.router
	st := a.store
	logger := a.logger
	rdb := a.rc.Raw()
	authMW := middleware.StaffAuth(a.tokens)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{
			"ok":      0,
			"code":    http.StatusMethodNotAllowed,
			"message": "Method not allowed",
		})
	})

	r.GET("/healthz", a.health)
	if a.cfg.Telemetry.Metrics {
		r.GET("/metrics", metrics.Handler())
	}

	recorder := analytics.NewRecorder(st, logger)
	webhookSvc := webhook.NewService(st, a.dispatcher, logger)

	numbers := order.NewNumberGenerator(nil, logger)
	if a.rc != nil {
		numbers = order.NewNumberGenerator(a.rc, logger)
	}
	orderSvc := order.NewService(st, numbers, recorder, a.dispatcher, a.hub, logger)
	tableCallSvc := tablecall.NewService(st, recorder, a.hub, logger)
	chatSvc := ai.NewService(st, ai.NewProviderCompleter(), recorder, a.cfg.AI, logger)

	api := r.Group(apiPrefix)
	staff.NewHandler(staff.NewService(st, a.tokens, logger), logger).RegisterRoutes(api, authMW)
	order.NewHandler(orderSvc, logger).RegisterRoutes(api, middleware.Idempotence(rdb))
	tablecall.NewHandler(tableCallSvc, logger).RegisterRoutes(api, authMW)
	analytics.NewHandler(analytics.NewService(st), logger).RegisterRoutes(api, authMW)
	webhook.NewHandler(webhookSvc, logger).RegisterRoutes(api, authMW)
	ai.NewHandler(chatSvc, logger).RegisterRoutes(api, middleware.RateLimit(rdb, aiChatRateLimit, logger))
	api.GET("/system/jobs", authMW, func(c *gin.Context) {
		response.OK(c, a.sched.List())
	})

	gateway.RegisterRoutes(r.Group(""), a.hub, authMW)

	registerCronJobs(a.sched, orderSvc, webhookSvc, a.cfg.Webhook.RetentionDays)
}

func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{"database": "ok"}
	if sqlDB, err := a.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if rdb := a.rc.Raw(); rdb != nil {
		checks["redis"] = "ok"
		if err := rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, gin.H{
		"status": http.StatusText(status),
		"checks": checks,
		"uptime": humanizeDuration(time.Since(a.startedAt)),
	})
}
