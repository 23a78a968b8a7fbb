package client

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-trade-client/types"
)

type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
	BreakerDisabled
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	case BreakerDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// CircuitBreaker short-circuits calls to a service after repeated transport
// or 5xx failures. A nil or disabled breaker always allows.
type CircuitBreaker struct {
	config    *types.CircuitBreakerConfig
	logger    types.Logger
	service   string
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time
	mu        sync.Mutex
}

func NewCircuitBreaker(config *types.CircuitBreakerConfig, logger types.Logger, service string) *CircuitBreaker {
	cb := &CircuitBreaker{
		config:  config,
		logger:  logger,
		service: service,
		now:     time.Now,
	}

	if config == nil || !config.Enabled {
		cb.state = BreakerDisabled
	}

	return cb
}

func (cb *CircuitBreaker) Allow() bool {
	if cb == nil {
		return true
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) >= cb.config.RecoveryTimeout {
			cb.transition(BreakerHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failures = 0
	case BreakerHalfOpen:
		cb.successes++
		if cb.successes >= max(cb.config.HalfOpenRequests, 1) {
			cb.transition(BreakerClosed)
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failures++
		if cb.failures >= max(cb.config.FailureThreshold, 1) {
			cb.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		cb.transition(BreakerOpen)
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	if cb == nil {
		return BreakerDisabled
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != BreakerDisabled {
		cb.transition(BreakerClosed)
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to BreakerState) {
	from := cb.state
	cb.state = to
	cb.successes = 0

	switch to {
	case BreakerOpen:
		cb.openedAt = cb.now()
		cb.logger.Warn("Circuit breaker opened",
			zap.String("service", cb.service),
			zap.Int("failures", cb.failures),
			zap.Int("threshold", cb.config.FailureThreshold))
	case BreakerClosed:
		cb.failures = 0
		cb.logger.Info("Circuit breaker closed", zap.String("service", cb.service))
	case BreakerHalfOpen:
		cb.logger.Info("Circuit breaker half-open", zap.String("service", cb.service))
	}

	cb.logger.Debug("Circuit breaker transition",
		zap.String("service", cb.service),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}

// countsAsBreakerFailure mirrors the retry rule: only transport errors and
// 5xx responses say anything about service health.
func countsAsBreakerFailure(kind Kind) bool {
	return kind.Retryable()
}
