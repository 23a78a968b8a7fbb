package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrCacheNotFound         = errors.New("cache not found")
	ErrCacheKeyEmpty         = errors.New("cache key empty")
	ErrCacheConnectionFailed = errors.New("cache connection failed")
	ErrCacheBackendUnknown   = errors.New("cache backend unknown")
	ErrCacheDriverUnknown    = errors.New("cache driver unknown")
	ErrCacheOperationFailed  = errors.New("cache operation failed")
	ErrCacheClosed           = errors.New("cache store is closed")
)

var (
	ErrClientNotFound        = errors.New("client not found")
	ErrClientResponseInvalid = errors.New("client response invalid")
	ErrCircuitBreakerOpen    = errors.New("circuit breaker open")
	ErrOperationExists       = errors.New("operation already registered")
	ErrMissingPathParam      = errors.New("missing path parameter")
)

var (
	ErrChannelNotConnected   = errors.New("channel not connected")
	ErrChannelAlreadyRunning = errors.New("channel already running")
	ErrChannelNotRunning     = errors.New("channel not running")
	ErrChannelSendFailed     = errors.New("channel send failed")
	ErrInvalidTransition     = errors.New("invalid connection state transition")
)

var (
	ErrSessionKeyInvalid   = errors.New("session encryption key invalid")
	ErrSessionSealFailed   = errors.New("session seal failed")
	ErrSessionOpenFailed   = errors.New("session open failed")
	ErrPollerJobInvalid    = errors.New("poller job invalid")
	ErrPollerAlreadyActive = errors.New("poller already running")
)

var (
	ErrLogFileIsEmpty      = errors.New("log file is empty")
	ErrLogFileWrongFormat  = errors.New("log file wrong format")
	ErrLoggerTypeUnknown   = errors.New("logger type unknown")
	ErrLoggerConfigInvalid = errors.New("logger config invalid")
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNotRunning       = errors.New("component is not running")
	ErrAlreadyRunning   = errors.New("component is already running")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
