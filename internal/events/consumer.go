package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	MaxRetries        = 3
	InitialRetryDelay = 1 * time.Second
	MaxRetryDelay     = 30 * time.Second
)

// NotificationHandler delivers a notification to the external messaging sink.
type NotificationHandler interface {
	HandleNotification(topic string, event NotificationEvent) error
	IsRetryable(err error) bool
}

// ConsumerMetrics counters are updated atomically; the group handler runs one
// ConsumeClaim per claimed partition.
type ConsumerMetrics struct {
	ProcessedCount int64
	RetryCount     int64
	DLQCount       int64
	SuccessCount   int64
	FailureCount   int64
}

// NotificationConsumer consumes the notification topics as a consumer group,
// retries delivery with exponential backoff and dead-letters what still fails.
type NotificationConsumer struct {
	consumerGroup sarama.ConsumerGroup
	producer      sarama.SyncProducer
	handler       NotificationHandler
	logger        *logrus.Logger
	topics        []string
	metrics       *ConsumerMetrics
}

func NewNotificationConsumer(brokers, groupID string, handler NotificationHandler, logger *logrus.Logger) (*NotificationConsumer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerConfig.Version = sarama.V2_6_0_0

	consumerGroup, err := sarama.NewConsumerGroup(strings.Split(brokers, ","), groupID, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(strings.Split(brokers, ","), producerConfig)
	if err != nil {
		consumerGroup.Close()
		return nil, fmt.Errorf("failed to create producer for DLQ: %w", err)
	}

	return &NotificationConsumer{
		consumerGroup: consumerGroup,
		producer:      producer,
		handler:       handler,
		logger:        logger,
		topics:        NotificationTopics,
		metrics:       &ConsumerMetrics{},
	}, nil
}

func (c *NotificationConsumer) Start(ctx context.Context) error {
	handler := &notificationGroupHandler{
		handler:    c.handler,
		producer:   c.producer,
		logger:     c.logger,
		metrics:    c.metrics,
		retryDelay: InitialRetryDelay,
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Kafka consumer context cancelled")
			return nil
		default:
			if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
				c.logger.WithError(err).Error("Error consuming from Kafka")
				return err
			}
		}
	}
}

func (c *NotificationConsumer) Close() error {
	if err := c.producer.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close producer")
	}
	return c.consumerGroup.Close()
}

func (c *NotificationConsumer) GetMetrics() ConsumerMetrics {
	return c.metrics.snapshot()
}

func (m *ConsumerMetrics) snapshot() ConsumerMetrics {
	return ConsumerMetrics{
		ProcessedCount: atomic.LoadInt64(&m.ProcessedCount),
		RetryCount:     atomic.LoadInt64(&m.RetryCount),
		DLQCount:       atomic.LoadInt64(&m.DLQCount),
		SuccessCount:   atomic.LoadInt64(&m.SuccessCount),
		FailureCount:   atomic.LoadInt64(&m.FailureCount),
	}
}

type notificationGroupHandler struct {
	handler    NotificationHandler
	producer   sarama.SyncProducer
	logger     *logrus.Logger
	metrics    *ConsumerMetrics
	retryDelay time.Duration
}

func (h *notificationGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session setup")
	return nil
}

func (h *notificationGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session cleanup")
	return nil
}

func (h *notificationGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			atomic.AddInt64(&h.metrics.ProcessedCount, 1)

			if err := h.handleWithRetry(message); err != nil {
				h.logger.WithError(err).Error("Failed to deliver notification after retries")
				atomic.AddInt64(&h.metrics.FailureCount, 1)

				if dlqErr := h.sendToDLQ(message, err); dlqErr != nil {
					h.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
				} else {
					atomic.AddInt64(&h.metrics.DLQCount, 1)
				}
			} else {
				atomic.AddInt64(&h.metrics.SuccessCount, 1)
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			h.logger.Info("Consumer group session context cancelled")
			return nil
		}
	}
}

func (h *notificationGroupHandler) handleWithRetry(message *sarama.ConsumerMessage) error {
	h.logger.WithFields(logrus.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
		"key":       string(message.Key),
	}).Info("Processing notification message")

	var event NotificationEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		h.logger.WithError(err).Error("Failed to unmarshal notification event")
		return err // malformed payload, retrying cannot help
	}

	retryDelay := h.retryDelay

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			h.logger.WithFields(logrus.Fields{
				"order_id": event.OrderID,
				"attempt":  attempt,
				"delay":    retryDelay,
			}).Info("Retrying notification delivery")

			time.Sleep(retryDelay)
			atomic.AddInt64(&h.metrics.RetryCount, 1)

			retryDelay = retryDelay * 2
			if retryDelay > MaxRetryDelay {
				retryDelay = MaxRetryDelay
			}
		}

		err := h.handler.HandleNotification(message.Topic, event)
		if err == nil {
			h.logger.WithFields(logrus.Fields{
				"order_id": event.OrderID,
				"topic":    message.Topic,
			}).Info("Notification delivered")
			return nil
		}

		if !h.handler.IsRetryable(err) {
			h.logger.WithError(err).Error("Non-retryable delivery error")
			return err
		}

		h.logger.WithError(err).WithField("attempt", attempt).Warn("Notification delivery failed")
	}

	return fmt.Errorf("delivery failed after %d retries", MaxRetries)
}

func (h *notificationGroupHandler) sendToDLQ(message *sarama.ConsumerMessage, cause error) error {
	msg := &sarama.ProducerMessage{
		Topic: NotificationsDLQTopic,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("original_topic"), Value: []byte(message.Topic)},
			{Key: []byte("error_message"), Value: []byte(cause.Error())},
			{Key: []byte("failure_time"), Value: []byte(time.Now().Format(time.RFC3339))},
			{Key: []byte("retry_count"), Value: []byte(strconv.Itoa(MaxRetries))},
		},
	}

	partition, offset, err := h.producer.SendMessage(msg)
	if err != nil {
		return err
	}

	h.logger.WithFields(logrus.Fields{
		"dlq_topic": NotificationsDLQTopic,
		"partition": partition,
		"offset":    offset,
		"key":       string(message.Key),
	}).Warn("Notification dead-lettered")

	return nil
}
