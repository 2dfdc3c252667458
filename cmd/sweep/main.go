// Command sweep runs one pass of the scheduled-message and payment-reminder sweep
// followed by the retention purge, for deployments that trigger it externally.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"escalafin-messaging/internal/config"
	"escalafin-messaging/internal/conversation"
	"escalafin-messaging/internal/database"
	"escalafin-messaging/internal/notification"
	"escalafin-messaging/internal/scheduler"
	"escalafin-messaging/internal/whatsapp"
	"escalafin-messaging/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env", "", "optional .env file")
	skipPurge := flag.Bool("skip-purge", false, "do not delete expired conversation messages")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		panic(err)
	}

	log := logger.Must(logger.New(cfg.Logging.Level, cfg.Logging.Format))
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg.Database, log.Named("db"))
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := conversation.NewStore(db, log)
	gateway := whatsapp.NewGateway(
		whatsapp.NewClient(cfg.WhatsApp.RequestTimeout, log),
		whatsapp.NewDBLoader(db),
		store,
		whatsapp.GatewayOptions{DefaultCountryCode: cfg.WhatsApp.DefaultCountryCode, ChatSuffix: cfg.WhatsApp.ChatSuffix},
		log,
	)
	sweeper := scheduler.NewSweeper(db, notification.NewDispatcher(db, gateway, log), store, scheduler.Options{
		ReminderLeadDays: cfg.Scheduler.ReminderLeadDays,
		RetentionDays:    cfg.Scheduler.MessageRetentionDays,
		Location:         cfg.Location(),
	}, log)

	report, err := sweeper.Run(ctx)
	if err != nil {
		log.Fatal("sweep failed", zap.Error(err))
	}
	log.Info("sweep report",
		zap.Int("scheduled_sent", report.ScheduledSent),
		zap.Int("scheduled_skipped", report.ScheduledSkipped),
		zap.Int("scheduled_failed", report.ScheduledFailed),
		zap.Int("reminders_sent", report.RemindersSent),
		zap.Int("reminders_skipped", report.RemindersSkipped),
		zap.Int("reminders_failed", report.RemindersFailed),
	)

	if *skipPurge {
		return
	}
	purged, err := sweeper.PurgeExpired(ctx)
	if err != nil {
		log.Fatal("retention purge failed", zap.Error(err))
	}
	log.Info("retention purge finished", zap.Int64("deleted", purged))
}
