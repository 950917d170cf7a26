package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/app"
	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/events"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
	"github.com/hackgods/clinic-slot-scheduling/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("reminder-worker starting up",
		zap.String("env", cfg.Env),
		zap.String("queue", cfg.BookingEventsQueue),
		zap.Duration("reminder_gap", cfg.ReminderGap),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := app.Connect(rootCtx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer infra.Close()

	if infra.Events == nil {
		log.Fatal("RABBITMQ_URL must point at a reachable broker")
	}

	sender := notify.NewSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
	}, log)
	dispatcher := notify.NewDispatcher(sender, cfg.ReminderGap, log)

	err = events.Consume(rootCtx, infra.Events, cfg.BookingEventsQueue, dispatcher.Handle, log)
	signalled := rootCtx.Err() != nil

	// Pending reminders are abandoned rather than holding up exit.
	stop()
	dispatcher.Wait()

	switch {
	case err != nil:
		log.Error("consumer stopped", zap.Error(err))
	case !signalled:
		log.Error("delivery channel closed by broker")
	default:
		log.Info("shutdown signal received, reminder-worker stopped")
	}
}
