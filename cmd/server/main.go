package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"escalafin-messaging/internal/api"
	"escalafin-messaging/internal/automation"
	"escalafin-messaging/internal/config"
	"escalafin-messaging/internal/conversation"
	"escalafin-messaging/internal/database"
	"escalafin-messaging/internal/notification"
	"escalafin-messaging/internal/scheduler"
	"escalafin-messaging/internal/templating"
	"escalafin-messaging/internal/webhook"
	"escalafin-messaging/internal/whatsapp"
	"escalafin-messaging/internal/ws"
	"escalafin-messaging/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Logging.Level, cfg.Logging.Format))
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	db, err := database.Open(cfg.Database, baseLogger.Named("db"))
	if err != nil {
		baseLogger.Fatal("failed to open database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		baseLogger.Fatal("failed to migrate database", zap.Error(err))
	}
	if err := database.SeedProviderConfig(db, cfg.WhatsApp, baseLogger.Named("db")); err != nil {
		baseLogger.Fatal("failed to seed provider configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(baseLogger)
	go hub.Run(ctx)

	store := conversation.NewStore(db, baseLogger, conversation.WithNotifier(hub))
	configCache := whatsapp.NewCachedLoader(whatsapp.NewDBLoader(db))
	gateway := whatsapp.NewGateway(
		whatsapp.NewClient(cfg.WhatsApp.RequestTimeout, baseLogger),
		configCache,
		store,
		whatsapp.GatewayOptions{DefaultCountryCode: cfg.WhatsApp.DefaultCountryCode, ChatSuffix: cfg.WhatsApp.ChatSuffix},
		baseLogger,
	)
	engine := automation.NewEngine(db, templating.NewRenderer(db), store, baseLogger)
	dispatcher := notification.NewDispatcher(db, gateway, baseLogger)
	sweeper := scheduler.NewSweeper(db, dispatcher, store, scheduler.Options{
		ReminderLeadDays: cfg.Scheduler.ReminderLeadDays,
		RetentionDays:    cfg.Scheduler.MessageRetentionDays,
		Location:         cfg.Location(),
	}, baseLogger)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Deps{
		DB:         db,
		Store:      store,
		Gateway:    gateway,
		Cache:      configCache,
		Dispatcher: dispatcher,
		Queue:      scheduler.NewQueue(db),
		Sweeper:    sweeper,
		Webhook:    webhook.NewHandler(store, engine, gateway, cfg.Server.WebhookToken, baseLogger),
		Hub:        hub,
	}, baseLogger)

	if cfg.Scheduler.Enabled {
		sched := scheduler.NewScheduler(sweeper, cfg.Scheduler.SweepSchedule, cfg.Scheduler.RetentionSchedule, cfg.Location(), baseLogger)
		if err := sched.Start(); err != nil {
			baseLogger.Fatal("failed to start scheduler", zap.Error(err))
		}
		defer sched.Stop()
	} else {
		baseLogger.Info("scheduler disabled, use POST /api/sweep or cmd/sweep")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
