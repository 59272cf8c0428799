package events

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/nvago/printshop/pkg/models"
)

const (
	OrderCreatedTopic      = "orders.created"
	ApprovalRequestedTopic = "orders.approval-requested"
	PickupReadyTopic       = "orders.pickup-ready"
	OrderFinishedTopic     = "orders.finished"

	NotificationsDLQTopic = "orders.notifications.dlq"
)

// NotificationTopics are the topics the notifier bridges to the external
// messaging sink.
var NotificationTopics = []string{
	ApprovalRequestedTopic,
	PickupReadyTopic,
	OrderFinishedTopic,
}

type OrderCreatedEvent struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	Category   string    `json:"category"`
	Total      float64   `json:"total"`
	CreatedAt  time.Time `json:"created_at"`
	EventTime  time.Time `json:"event_time"`
}

// NotificationEvent is the payload for every customer-facing notification
// implied by a status transition. LayoutURL is set only on approval requests.
type NotificationEvent struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	LayoutURL  string    `json:"layout_url,omitempty"`
	EventTime  time.Time `json:"event_time"`
}

type KafkaProducer struct {
	producer sarama.SyncProducer
	logger   *logrus.Logger
}

func NewKafkaProducer(brokers string, logger *logrus.Logger) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(strings.Split(brokers, ","), config)
	if err != nil {
		return nil, err
	}

	return &KafkaProducer{
		producer: producer,
		logger:   logger,
	}, nil
}

func (p *KafkaProducer) PublishOrderCreated(order *models.Order) error {
	event := OrderCreatedEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Category:   order.Category,
		Total:      order.Total,
		CreatedAt:  order.CreatedAt,
		EventTime:  time.Now(),
	}
	return p.publish(OrderCreatedTopic, event.OrderID, event)
}

func (p *KafkaProducer) PublishApprovalRequested(order *models.Order, layoutURL string) error {
	return p.publishNotification(ApprovalRequestedTopic, order,
		"Your layout is ready for approval", layoutURL)
}

func (p *KafkaProducer) PublishPickupReady(order *models.Order) error {
	return p.publishNotification(PickupReadyTopic, order,
		"Your order is ready for pickup", "")
}

func (p *KafkaProducer) PublishOrderFinished(order *models.Order) error {
	return p.publishNotification(OrderFinishedTopic, order,
		"Your order is complete. Thank you!", "")
}

func (p *KafkaProducer) publishNotification(topic string, order *models.Order, message, layoutURL string) error {
	event := NotificationEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		Message:    message,
		LayoutURL:  layoutURL,
		EventTime:  time.Now(),
	}
	return p.publish(topic, event.OrderID, event)
}

func (p *KafkaProducer) publish(topic, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithField("topic", topic).Error("Failed to send message to Kafka")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
		"order_id":  key,
	}).Info("Event published to Kafka")

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}
