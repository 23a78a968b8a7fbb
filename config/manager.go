package config

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-trade-client/types"
)

type ConfigurationManager struct {
	ctx         context.Context
	config      atomic.Pointer[types.ClientConfig]
	parser      atomic.Pointer[Parser]
	configPath  string
	loader      *Loader
	loadTimeout time.Duration
}

// NewConfigurationManager loads configPath immediately; an empty path yields
// the defaults.
func NewConfigurationManager(ctx context.Context, configPath string) (*ConfigurationManager, error) {
	cm := &ConfigurationManager{
		ctx:         ctx,
		configPath:  configPath,
		loader:      NewLoader(),
		loadTimeout: 30 * time.Second,
	}

	if err := cm.Load(); err != nil {
		return nil, types.WrapError(err, "failed to load initial configuration")
	}

	return cm, nil
}

// NewStaticManager wraps an already built config, validating it first.
func NewStaticManager(config *types.ClientConfig) (*ConfigurationManager, error) {
	cm := &ConfigurationManager{
		ctx:         context.Background(),
		loader:      NewLoader(),
		loadTimeout: 30 * time.Second,
	}

	if err := cm.loader.Validate(config); err != nil {
		return nil, err
	}

	cm.store(config)

	return cm, nil
}

func (cm *ConfigurationManager) Load() error {
	if cm.configPath == "" {
		config := cm.loader.Defaults()
		if err := cm.loader.Validate(config); err != nil {
			return err
		}
		cm.store(config)
		return nil
	}

	loadCtx, cancel := context.WithTimeout(cm.ctx, cm.loadTimeout)
	defer cancel()

	config, err := cm.loader.LoadFromFile(loadCtx, cm.configPath)
	if err != nil {
		return types.WrapError(err, "failed to load configuration from file")
	}

	cm.store(config)

	return nil
}

func (cm *ConfigurationManager) GetConfig() *types.ClientConfig {
	return cm.config.Load()
}

func (cm *ConfigurationManager) GetValue(path string, defaultValue interface{}) interface{} {
	parser := cm.parser.Load()
	if parser == nil {
		return defaultValue
	}
	return parser.GetValue(path, defaultValue)
}

func (cm *ConfigurationManager) GetAs(path string, target interface{}) error {
	parser := cm.parser.Load()
	if parser == nil {
		return types.ErrConfigIsNil
	}
	return parser.GetAs(path, target)
}

func (cm *ConfigurationManager) store(config *types.ClientConfig) {
	cm.config.Store(config)
	cm.parser.Store(NewParser(config))
}
