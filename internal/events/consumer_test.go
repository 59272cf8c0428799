package events

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

type fakeSink struct {
	mu        sync.Mutex
	failures  int
	retryable bool
	calls     int
}

func (f *fakeSink) HandleNotification(topic string, event NotificationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("sink unavailable")
	}
	return nil
}

func (f *fakeSink) IsRetryable(err error) bool {
	return f.retryable
}

func (f *fakeSink) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func notificationMessage(t *testing.T) *sarama.ConsumerMessage {
	t.Helper()
	value, err := json.Marshal(NotificationEvent{
		OrderID:    "ord-1",
		CustomerID: "cust-1",
		Status:     "For Pickup",
		Message:    "Your order is ready for pickup",
		EventTime:  time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}
	return &sarama.ConsumerMessage{
		Topic: PickupReadyTopic,
		Key:   []byte("ord-1"),
		Value: value,
	}
}

func TestHandleWithRetry(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		retryable   bool
		wantErr     bool
		wantCalls   int
		wantRetries int64
	}{
		{"delivers_first_try", 0, true, false, 1, 0},
		{"retries_then_succeeds", 2, true, false, 3, 2},
		{"non_retryable_short_circuits", 10, false, true, 1, 0},
		{"gives_up_after_max_retries", 10, true, true, MaxRetries + 1, MaxRetries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{failures: tt.failures, retryable: tt.retryable}
			metrics := &ConsumerMetrics{}
			h := &notificationGroupHandler{
				handler:    sink,
				logger:     testLogger(),
				metrics:    metrics,
				retryDelay: time.Millisecond,
			}

			err := h.handleWithRetry(notificationMessage(t))
			if tt.wantErr && err == nil {
				t.Error("Expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if got := sink.callCount(); got != tt.wantCalls {
				t.Errorf("Delivery attempts = %d, want %d", got, tt.wantCalls)
			}
			if got := atomic.LoadInt64(&metrics.RetryCount); got != tt.wantRetries {
				t.Errorf("RetryCount = %d, want %d", got, tt.wantRetries)
			}
		})
	}
}

func TestHandleWithRetryRejectsMalformedPayload(t *testing.T) {
	sink := &fakeSink{retryable: true}
	h := &notificationGroupHandler{
		handler:    sink,
		logger:     testLogger(),
		metrics:    &ConsumerMetrics{},
		retryDelay: time.Millisecond,
	}

	err := h.handleWithRetry(&sarama.ConsumerMessage{
		Topic: PickupReadyTopic,
		Value: []byte("not json"),
	})
	if err == nil {
		t.Fatal("Expected an error for a malformed payload")
	}
	if sink.callCount() != 0 {
		t.Error("Malformed payloads must not reach the sink")
	}
}

func TestMetricsCountConcurrentRetries(t *testing.T) {
	const workers = 8

	sink := &fakeSink{failures: 1 << 30, retryable: true}
	metrics := &ConsumerMetrics{}
	message := notificationMessage(t)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := &notificationGroupHandler{
				handler:    sink,
				logger:     testLogger(),
				metrics:    metrics,
				retryDelay: time.Millisecond,
			}
			if err := h.handleWithRetry(message); err == nil {
				t.Error("Expected delivery to fail")
			}
		}()
	}
	wg.Wait()

	want := int64(workers * MaxRetries)
	if got := metrics.snapshot().RetryCount; got != want {
		t.Errorf("RetryCount = %d, want %d", got, want)
	}
}
