package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/nvago/printshop/internal/config"
	"github.com/nvago/printshop/internal/events"
)

// dlq-monitor tails the notification dead-letter topic so staff can see which
// customer notifications were never delivered.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load("dlq-monitor")

	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Version = sarama.V2_6_0_0

	consumer, err := sarama.NewConsumerGroup(strings.Split(cfg.KafkaBrokers, ","), "dlq-monitor-group", saramaConfig)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create DLQ consumer")
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := &dlqHandler{logger: logger}

	go func() {
		for {
			if ctx.Err() != nil {
				return
			}
			if err := consumer.Consume(ctx, []string{events.NotificationsDLQTopic}, handler); err != nil {
				logger.WithError(err).Error("Error consuming from DLQ")
				return
			}
		}
	}()

	logger.WithField("topic", events.NotificationsDLQTopic).Info("DLQ monitor started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down DLQ monitor...")
}

type dlqHandler struct {
	logger *logrus.Logger
}

func (h *dlqHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *dlqHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *dlqHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		fields := logrus.Fields{
			"partition": message.Partition,
			"offset":    message.Offset,
			"order_id":  string(message.Key),
		}
		for _, header := range message.Headers {
			fields[string(header.Key)] = string(header.Value)
		}

		var event events.NotificationEvent
		if err := json.Unmarshal(message.Value, &event); err == nil {
			fields["customer_id"] = event.CustomerID
			fields["status"] = event.Status
			fields["message"] = event.Message
		}

		h.logger.WithFields(fields).Warn("Undelivered notification")

		session.MarkMessage(message, "")
	}
	return nil
}
