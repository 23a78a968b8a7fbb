package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ClientConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ClientConfig struct {
	Name     string                    `yaml:"name" json:"name" validate:"required"`
	Version  string                    `yaml:"version" json:"version" validate:"required"`
	Logger   *LoggerConfig             `yaml:"logger" json:"logger" validate:"required"`
	Cache    *CacheConfig              `yaml:"cache" json:"cache" validate:"required"`
	Services map[string]*ServiceConfig `yaml:"services" json:"services" validate:"dive"`
	Client   *DispatcherConfig         `yaml:"client" json:"client" validate:"required"`
	Session  *SessionConfig            `yaml:"session" json:"session"`
	Channel  *ChannelConfig            `yaml:"channel" json:"channel"`
	Poller   *PollerConfig             `yaml:"poller" json:"poller"`
	Metrics  *MetricsConfig            `yaml:"metrics" json:"metrics"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn warning error fatal"`
	Config interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	DefaultTTL time.Duration          `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
	Memory     *MemoryCacheConfig     `yaml:"memory" json:"memory"`
	Session    *SessionCacheConfig    `yaml:"session" json:"session"`
	Persistent *PersistentCacheConfig `yaml:"persistent" json:"persistent"`
}

type MemoryCacheConfig struct {
	MaxEntries int `yaml:"max_entries" json:"max_entries" validate:"min=0"`
}

type SessionCacheConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir" json:"dir"`
}

type PersistentCacheConfig struct {
	Enabled bool         `yaml:"enabled" json:"enabled"`
	Driver  string       `yaml:"driver" json:"driver" validate:"omitempty,oneof=sqlite redis"`
	Origin  string       `yaml:"origin" json:"origin"`
	Path    string       `yaml:"path" json:"path"`
	Redis   *RedisConfig `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Host         string        `yaml:"host" json:"host"`
	Port         int           `yaml:"port" json:"port" validate:"omitempty,min=1,max=65535"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db" validate:"min=0"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

type ServiceConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"min=0"`
}

type DispatcherConfig struct {
	DefaultTimeout time.Duration              `yaml:"default_timeout" json:"default_timeout" validate:"min=0"`
	RetryBackoff   time.Duration              `yaml:"retry_backoff" json:"retry_backoff" validate:"min=0"`
	CircuitBreaker *CircuitBreakerConfig      `yaml:"circuit_breaker" json:"circuit_breaker"`
	Operations     map[string]OperationConfig `yaml:"operations" json:"operations" validate:"dive"`
}

type OperationConfig struct {
	Service string `yaml:"service" json:"service" validate:"required"`
	Method  string `yaml:"method" json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Path    string `yaml:"path" json:"path" validate:"required,startswith=/"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" validate:"min=0"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout" validate:"min=0"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests" validate:"min=0"`
}

type SessionConfig struct {
	EncryptionKey      string `yaml:"encryption_key" json:"encryption_key" validate:"omitempty,hexadecimal,len=64"`
	ClearCacheOnLogout bool   `yaml:"clear_cache_on_logout" json:"clear_cache_on_logout"`
}

type ChannelConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	URL            string        `yaml:"url" json:"url" validate:"required_if=Enabled true"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" json:"reconnect_delay" validate:"min=0"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries" validate:"min=0"`
	PingInterval   time.Duration `yaml:"ping_interval" json:"ping_interval" validate:"min=0"`
	PongWait       time.Duration `yaml:"pong_wait" json:"pong_wait" validate:"min=0"`
	WriteWait      time.Duration `yaml:"write_wait" json:"write_wait" validate:"min=0"`

	// Invalidate maps a push channel to cache key patterns cleared when a
	// message arrives on it. Bursts are coalesced over CoalesceDelay.
	Invalidate    map[string][]string `yaml:"invalidate" json:"invalidate"`
	CoalesceDelay time.Duration       `yaml:"coalesce_delay" json:"coalesce_delay" validate:"min=0"`
}

type PollerConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Jobs    []PollerJobConfig `yaml:"jobs" json:"jobs" validate:"dive"`
}

type PollerJobConfig struct {
	Operation string                 `yaml:"operation" json:"operation" validate:"required"`
	Schedule  string                 `yaml:"schedule" json:"schedule" validate:"required"`
	Params    map[string]interface{} `yaml:"params" json:"params"`
	TTL       time.Duration          `yaml:"ttl" json:"ttl" validate:"min=0"`
	Backend   string                 `yaml:"backend" json:"backend" validate:"omitempty,oneof=memory session persistent"`
}

type MetricsConfig struct {
	Enabled   bool              `yaml:"enabled" json:"enabled"`
	Namespace string            `yaml:"namespace" json:"namespace"`
	Labels    map[string]string `yaml:"labels" json:"labels"`
}
