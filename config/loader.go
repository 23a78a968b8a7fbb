package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-trade-client/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ClientConfig, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, types.WrapError(types.ErrConfigNotFound, "file not found: "+configPath)
	}

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	return l.LoadFromBytes(data)
}

// LoadFromBytes parses YAML over Defaults and validates the result.
func (l *Loader) LoadFromBytes(data []byte) (*types.ClientConfig, error) {
	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, types.WrapError(types.ErrConfigParseFailed, err.Error())
	}

	if err := l.Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func (l *Loader) Validate(config *types.ClientConfig) error {
	if config == nil {
		return types.ErrConfigIsNil
	}

	if err := l.validator.Struct(config); err != nil {
		return types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	for name, op := range config.Client.Operations {
		if _, ok := config.Services[op.Service]; !ok {
			return types.Errorf(types.ErrConfigValidateFailed, "operation %s references unknown service %s", name, op.Service)
		}
	}

	return nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ClientConfig {
	return &types.ClientConfig{
		Name:    "sai-trade-client",
		Version: "dev",
		Logger: &types.LoggerConfig{
			Level: "info",
		},
		Cache: &types.CacheConfig{
			DefaultTTL: 5 * time.Minute,
			Memory: &types.MemoryCacheConfig{
				MaxEntries: 10000,
			},
			Session: &types.SessionCacheConfig{
				Enabled: true,
			},
			Persistent: &types.PersistentCacheConfig{
				Enabled: true,
				Driver:  "sqlite",
				Origin:  "default",
			},
		},
		Services: map[string]*types.ServiceConfig{},
		Client: &types.DispatcherConfig{
			DefaultTimeout: 30 * time.Second,
			RetryBackoff:   0,
			CircuitBreaker: &types.CircuitBreakerConfig{
				Enabled:          false,
				FailureThreshold: 5,
				RecoveryTimeout:  60 * time.Second,
				HalfOpenRequests: 3,
			},
		},
		Session: &types.SessionConfig{
			ClearCacheOnLogout: true,
		},
		Channel: &types.ChannelConfig{
			Enabled:        false,
			ReconnectDelay: 5 * time.Second,
			MaxRetries:     10,
			PingInterval:   54 * time.Second,
			PongWait:       60 * time.Second,
			WriteWait:      10 * time.Second,
			CoalesceDelay:  250 * time.Millisecond,
		},
		Poller: &types.PollerConfig{
			Enabled: false,
		},
		Metrics: &types.MetricsConfig{
			Enabled:   true,
			Namespace: "sai_trade_client",
		},
	}
}
