package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestBreaker() *CircuitBreaker {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	return New(Config{
		Name:        "test",
		MaxFailures: 3,
		Timeout:     100 * time.Millisecond,
		MaxRequests: 1,
	}, logger)
}

func failing() error { return errors.New("sink failure") }
func succeeding() error { return nil }

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name        string
		scenario    func(t *testing.T, cb *CircuitBreaker)
		expectedEnd State
	}{
		{
			name: "closed_to_open_after_max_failures",
			scenario: func(t *testing.T, cb *CircuitBreaker) {
				for i := 0; i < 3; i++ {
					if err := cb.Execute(failing); err == nil {
						t.Error("Expected failure")
					}
				}
			},
			expectedEnd: StateOpen,
		},
		{
			name: "open_rejects_until_timeout",
			scenario: func(t *testing.T, cb *CircuitBreaker) {
				for i := 0; i < 3; i++ {
					cb.Execute(failing)
				}
				if err := cb.Execute(succeeding); err != ErrCircuitBreakerOpen {
					t.Errorf("Expected ErrCircuitBreakerOpen, got %v", err)
				}
			},
			expectedEnd: StateOpen,
		},
		{
			name: "half_open_to_closed_on_success",
			scenario: func(t *testing.T, cb *CircuitBreaker) {
				for i := 0; i < 3; i++ {
					cb.Execute(failing)
				}
				time.Sleep(110 * time.Millisecond)
				if err := cb.Execute(succeeding); err != nil {
					t.Errorf("Expected success, got %v", err)
				}
			},
			expectedEnd: StateClosed,
		},
		{
			name: "half_open_to_open_on_failure",
			scenario: func(t *testing.T, cb *CircuitBreaker) {
				for i := 0; i < 3; i++ {
					cb.Execute(failing)
				}
				time.Sleep(110 * time.Millisecond)
				cb.Execute(failing)
			},
			expectedEnd: StateOpen,
		},
		{
			name: "closed_remains_closed_with_successes",
			scenario: func(t *testing.T, cb *CircuitBreaker) {
				for i := 0; i < 10; i++ {
					if err := cb.Execute(succeeding); err != nil {
						t.Errorf("Expected success, got %v", err)
					}
				}
			},
			expectedEnd: StateClosed,
		},
		{
			name: "success_resets_failure_count",
			scenario: func(t *testing.T, cb *CircuitBreaker) {
				cb.Execute(failing)
				cb.Execute(failing)
				cb.Execute(succeeding)
				cb.Execute(failing)
				cb.Execute(failing)
			},
			expectedEnd: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := newTestBreaker()
			tt.scenario(t, cb)
			if cb.State() != tt.expectedEnd {
				t.Errorf("Expected end state %s, got %s", tt.expectedEnd, cb.State())
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cb := New(Config{}, logger)
	if cb.name != "unnamed" {
		t.Errorf("Expected default name, got %q", cb.name)
	}
	if cb.maxFailures != 5 {
		t.Errorf("Expected default MaxFailures 5, got %d", cb.maxFailures)
	}
	if cb.timeout != 30*time.Second {
		t.Errorf("Expected default Timeout 30s, got %v", cb.timeout)
	}
	if cb.maxRequests != 1 {
		t.Errorf("Expected default MaxRequests 1, got %d", cb.maxRequests)
	}
}

func TestReset(t *testing.T) {
	cb := newTestBreaker()
	for i := 0; i < 3; i++ {
		cb.Execute(failing)
	}
	if cb.State() != StateOpen {
		t.Fatalf("Expected StateOpen, got %s", cb.State())
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("Expected StateClosed after reset, got %s", cb.State())
	}
	if err := cb.Execute(succeeding); err != nil {
		t.Errorf("Expected success after reset, got %v", err)
	}
}

func TestConcurrentExecute(t *testing.T) {
	cb := newTestBreaker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb.Execute(succeeding)
		}()
	}
	wg.Wait()

	metrics := cb.Metrics()
	if got := metrics["total_successes"].(int64); got != 50 {
		t.Errorf("Expected 50 successes, got %d", got)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected StateClosed, got %s", cb.State())
	}
}
