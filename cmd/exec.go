package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"

	"qsmart/config"
	"qsmart/internal/handlers"
	"qsmart/internal/ledger"
	"qsmart/internal/notifier"
	"qsmart/internal/services"
	"qsmart/internal/store"
	"qsmart/monitoring"
	"qsmart/security"
	"qsmart/utils"

	_ "qsmart/migrations"
)

// Start wires the whole service together and runs the PocketBase app.
func Start() error {
	app := pocketbase.New()
	cfg := config.Load()

	redisClient, err := utils.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey
	pnConfig.UUID = cfg.PubNubUUID
	pn := pubnub.NewPubNub(pnConfig)

	st := store.New(app)
	push := notifier.New(notifier.NewPubNubPublisher(pn))
	dispatcher := notifier.NewDispatcher(push)
	queueLedger := ledger.New(st, dispatcher)

	statsCache := services.NewStatsCache(st, redisClient, cfg.StatsCacheTTL)
	positionService := services.NewPositionService(st, redisClient, push, cfg.PositionUpdateInterval)
	analyticsService := services.NewAnalyticsService(app, st)

	queueHandler := handlers.NewQueueHandler(st, queueLedger, statsCache, analyticsService, dispatcher, cfg)
	ticketHandler := handlers.NewTicketHandler(st, queueLedger, statsCache, positionService)
	parentHandler := handlers.NewParentHandler(st, queueLedger, statsCache)
	adminHandler := handlers.NewAdminHandler(st)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)

	rateLimiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute)
	monitor := monitoring.NewMonitor(st, cfg.MetricsInterval)

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: !cfg.IsProduction(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel, positionService, monitor)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		positionService.Start(ctx)
		if cfg.EnableMetrics {
			monitor.Start(ctx)
		}

		api := e.Router.Group("/api")
		api.BindFunc(rateLimiter.Middleware())

		// Queue endpoints
		api.GET("/queues", queueHandler.List).Bind(apis.RequireAuth())
		api.POST("/queues", queueHandler.Create).Bind(apis.RequireAuth())
		api.GET("/queues/teacher/my-queues", queueHandler.MyQueues).Bind(apis.RequireAuth())
		api.GET("/queues/service-types/options", queueHandler.ServiceTypes).Bind(apis.RequireAuth())
		api.GET("/queues/{id}", queueHandler.Get).Bind(apis.RequireAuth())
		api.PUT("/queues/{id}", queueHandler.Update).Bind(apis.RequireAuth())
		api.DELETE("/queues/{id}", queueHandler.Delete).Bind(apis.RequireAuth())
		api.POST("/queues/{id}/join", queueHandler.Join).Bind(apis.RequireAuth())
		api.POST("/queues/{id}/call-next", queueHandler.CallNext).Bind(apis.RequireAuth())
		api.GET("/queues/{id}/analytics", queueHandler.Analytics).Bind(apis.RequireAuth())

		// Ticket endpoints
		api.GET("/tickets/my-tickets", ticketHandler.MyTickets).Bind(apis.RequireAuth())
		api.GET("/tickets/my-ticket", ticketHandler.MyTicket).Bind(apis.RequireAuth())
		api.GET("/tickets/queue/{queueId}", ticketHandler.QueueTickets).Bind(apis.RequireAuth())
		api.GET("/tickets/{id}", ticketHandler.Get).Bind(apis.RequireAuth())
		api.PATCH("/tickets/{id}/status", ticketHandler.UpdateStatus).Bind(apis.RequireAuth())
		api.PATCH("/tickets/{id}/cancel", ticketHandler.Cancel).Bind(apis.RequireAuth())

		// Parent endpoints
		api.GET("/parent/children", parentHandler.Children).Bind(apis.RequireAuth())
		api.POST("/parent/children", parentHandler.AddChild).Bind(apis.RequireAuth())
		api.GET("/parent/children/tickets", parentHandler.ChildTickets).Bind(apis.RequireAuth())
		api.POST("/parent/queues/{id}/join", parentHandler.JoinForChild).Bind(apis.RequireAuth())

		// Admin endpoints
		api.GET("/admin/stats", adminHandler.Stats).Bind(apis.RequireAuth())
		api.GET("/admin/users", adminHandler.ListUsers).Bind(apis.RequireAuth())
		api.POST("/admin/users", adminHandler.CreateUser).Bind(apis.RequireAuth())
		api.PATCH("/admin/users/{id}", adminHandler.UpdateUser).Bind(apis.RequireAuth())

		// Role dashboards
		api.GET("/analytics/teacher", analyticsHandler.Teacher).Bind(apis.RequireAuth())
		api.GET("/analytics/student", analyticsHandler.Student).Bind(apis.RequireAuth())
		api.GET("/analytics/parent", analyticsHandler.Parent).Bind(apis.RequireAuth())

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		// /api/health is built in; this probe also covers Redis.
		e.Router.GET("/api/healthz", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"redis":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "ok"})
		})

		slog.Info("server routes registered", "environment", cfg.Environment)
		return e.Next()
	})

	return app.Start()
}

func handleShutdown(cancel context.CancelFunc, position *services.PositionService, monitor *monitoring.Monitor) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("shutdown signal received, cleaning up")
	position.Stop()
	monitor.Stop()
	cancel()
}
