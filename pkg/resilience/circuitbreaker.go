package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"research-chat/backend/pkg/logger"
)

// ErrCircuitOpen is returned by Execute while the circuit rejects calls
var ErrCircuitOpen = errors.New("circuit open")

// CircuitBreakerState represents the current state of a circuit breaker
type CircuitBreakerState string

const (
	// StateClosed means the circuit is closed and requests are allowed to pass through
	StateClosed CircuitBreakerState = "closed"
	// StateOpen means the circuit is open and requests are being short-circuited
	StateOpen CircuitBreakerState = "open"
	// StateHalfOpen means the circuit is allowing a limited number of test requests
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreaker stops calling a failing downstream for RetryTimeout after
// FailureThreshold consecutive failures, then lets probe calls through until
// SuccessThreshold of them succeed.
type CircuitBreaker struct {
	name             string
	state            CircuitBreakerState
	failureThreshold uint
	successThreshold uint
	timeout          time.Duration
	retryTimeout     time.Duration
	now              func() time.Time
	mutex            sync.Mutex
	failureCount     uint
	successCount     uint
	inFlightProbes   uint
	lastFailureTime  time.Time
	nextAttemptTime  time.Time
	log              *logger.Logger

	totalFailures    uint64
	totalSuccesses   uint64
	totalRejected    uint64
	totalRequests    uint64
	openCircuitCount uint64
}

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold uint
	SuccessThreshold uint
	// Timeout bounds each call; zero leaves the caller's deadline alone
	Timeout      time.Duration
	RetryTimeout time.Duration
	// Now is the clock, time.Now when nil
	Now func() time.Time
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
		RetryTimeout:     60 * time.Second,
	}
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig, log *logger.Logger) *CircuitBreaker {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		name:             config.Name,
		state:            StateClosed,
		failureThreshold: config.FailureThreshold,
		successThreshold: config.SuccessThreshold,
		timeout:          config.Timeout,
		retryTimeout:     config.RetryTimeout,
		now:              now,
		log:              log.With("breaker", config.Name),
	}
}

// Execute runs fn through the circuit breaker
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, ok := cb.allowRequest()
	if !ok {
		cb.log.Warn("Circuit breaker preventing request", "state", string(cb.GetState()))
		return ErrCircuitOpen
	}

	if cb.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cb.timeout)
		defer cancel()
	}

	start := cb.now()
	err := fn(ctx)
	if err != nil {
		cb.recordFailure(probe)
		cb.log.Warn("Circuit breaker recorded failure",
			"error", err.Error(),
			"duration", cb.now().Sub(start).String(),
		)
		return err
	}

	cb.recordSuccess(probe)
	return nil
}

// allowRequest reports whether a call may proceed and whether it is a half-open probe
func (cb *CircuitBreaker) allowRequest() (probe bool, ok bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Before(cb.nextAttemptTime) {
			cb.totalRejected++
			return false, false
		}
		cb.toHalfOpen()
		fallthrough

	case StateHalfOpen:
		if cb.successCount+cb.inFlightProbes >= cb.successThreshold {
			cb.totalRejected++
			return false, false
		}
		cb.inFlightProbes++
		cb.totalRequests++
		return true, true
	}

	cb.totalRequests++
	return false, true
}

func (cb *CircuitBreaker) recordSuccess(probe bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalSuccesses++
	if probe && cb.inFlightProbes > 0 {
		cb.inFlightProbes--
	}

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.toClosed()
		}
	}
}

func (cb *CircuitBreaker) recordFailure(probe bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalFailures++
	cb.lastFailureTime = cb.now()
	if probe && cb.inFlightProbes > 0 {
		cb.inFlightProbes--
	}

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.toOpen()
		}

	case StateHalfOpen:
		cb.toOpen()
	}
}

func (cb *CircuitBreaker) toOpen() {
	cb.state = StateOpen
	cb.openCircuitCount++
	cb.successCount = 0
	cb.nextAttemptTime = cb.now().Add(cb.retryTimeout)

	cb.log.Info("Circuit breaker opened",
		"failures", cb.failureCount,
		"nextAttempt", cb.nextAttemptTime.Format(time.RFC3339),
	)
}

func (cb *CircuitBreaker) toHalfOpen() {
	cb.state = StateHalfOpen
	cb.successCount = 0
	cb.inFlightProbes = 0

	cb.log.Info("Circuit breaker half-open")
}

func (cb *CircuitBreaker) toClosed() {
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0

	cb.log.Info("Circuit breaker closed")
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.state
}

// GetMetrics returns the current metrics of the circuit breaker
func (cb *CircuitBreaker) GetMetrics() map[string]any {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return map[string]any{
		"name":               cb.name,
		"state":              string(cb.state),
		"total_requests":     cb.totalRequests,
		"total_failures":     cb.totalFailures,
		"total_successes":    cb.totalSuccesses,
		"total_rejected":     cb.totalRejected,
		"open_circuit_count": cb.openCircuitCount,
		"last_failure_time":  cb.lastFailureTime,
	}
}
