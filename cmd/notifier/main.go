package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/nvago/printshop/internal/config"
	"github.com/nvago/printshop/internal/events"
	"github.com/nvago/printshop/internal/notify"
)

// notifier bridges the notification topics to the external messaging sink.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg := config.Load("notifier")

	dispatcher := notify.NewWebhookDispatcher(cfg.WebhookURL, logger)

	consumer, err := events.NewNotificationConsumer(cfg.KafkaBrokers, "notifier-group", dispatcher, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create notification consumer")
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Fatal("Consumer stopped with error")
		}
	}()

	logger.WithField("webhook_url", cfg.WebhookURL).Info("Notifier started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down notifier...")
	cancel()

	metrics := consumer.GetMetrics()
	logger.WithFields(logrus.Fields{
		"processed": metrics.ProcessedCount,
		"delivered": metrics.SuccessCount,
		"retries":   metrics.RetryCount,
		"dlq":       metrics.DLQCount,
	}).Info("Notifier stopped")
}
