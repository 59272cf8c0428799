package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nvago/printshop/internal/circuitbreaker"
	"github.com/nvago/printshop/internal/events"
)

// WebhookDispatcher forwards notification events to the external messaging
// sink over HTTP. The sink itself (SMS gateway, push service, chat bot) is an
// external collaborator; all we own is delivery to its webhook.
type WebhookDispatcher struct {
	webhookURL string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logrus.Logger
}

type webhookPayload struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	LayoutURL  string `json:"layout_url,omitempty"`
	Topic      string `json:"topic"`
}

func NewWebhookDispatcher(webhookURL string, logger *logrus.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:        "notification-sink",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			MaxRequests: 1,
		}, logger),
		logger: logger,
	}
}

// HandleNotification implements events.NotificationHandler.
func (d *WebhookDispatcher) HandleNotification(topic string, event events.NotificationEvent) error {
	return d.breaker.Execute(func() error {
		return d.post(topic, event)
	})
}

// IsRetryable implements events.NotificationHandler. Network failures, an
// open breaker and 5xx responses are worth retrying; a 4xx means the payload
// will never be accepted.
func (d *WebhookDispatcher) IsRetryable(err error) bool {
	var status *sinkStatusError
	if errors.As(err, &status) {
		return status.code >= 500
	}
	return true
}

func (d *WebhookDispatcher) post(topic string, event events.NotificationEvent) error {
	payload := webhookPayload{
		OrderID:    event.OrderID,
		CustomerID: event.CustomerID,
		Status:     event.Status,
		Message:    event.Message,
		LayoutURL:  event.LayoutURL,
		Topic:      topic,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	req, err := http.NewRequest("POST", d.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach notification sink: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &sinkStatusError{code: resp.StatusCode}
	}

	d.logger.WithFields(logrus.Fields{
		"order_id": event.OrderID,
		"topic":    topic,
		"status":   resp.StatusCode,
	}).Info("Notification forwarded to sink")

	return nil
}

type sinkStatusError struct {
	code int
}

func (e *sinkStatusError) Error() string {
	return fmt.Sprintf("notification sink returned status %d", e.code)
}
