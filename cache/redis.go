package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-trade-client/types"
)

const redisScanCount = 200

// RedisDriver is the alternative persistent scope. Keys are namespaced by
// origin so several origins can share one Redis database.
type RedisDriver struct {
	ctx     context.Context
	logger  types.Logger
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

func NewRedisDriver(ctx context.Context, logger types.Logger, config *types.PersistentCacheConfig) (*RedisDriver, error) {
	redisConfig := &types.RedisConfig{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	origin := "default"
	if config != nil {
		if config.Origin != "" {
			origin = config.Origin
		}
		if config.Redis != nil {
			mergeRedisConfig(redisConfig, config.Redis)
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         redisConfig.Host + ":" + strconv.Itoa(redisConfig.Port),
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		DialTimeout:  redisConfig.DialTimeout,
		ReadTimeout:  redisConfig.ReadTimeout,
		WriteTimeout: redisConfig.WriteTimeout,
	})

	d := &RedisDriver{
		ctx:     ctx,
		logger:  logger,
		client:  client,
		prefix:  "sai-trade-client:" + origin + ":",
		timeout: redisConfig.ReadTimeout + redisConfig.WriteTimeout,
	}

	if err := d.ping(); err != nil {
		_ = client.Close()
		return nil, types.Errorf(types.ErrCacheConnectionFailed, "redis: %v", err)
	}

	logger.Debug("Redis persistent cache connected",
		zap.String("addr", client.Options().Addr),
		zap.String("prefix", d.prefix))

	return d, nil
}

func mergeRedisConfig(dst, src *types.RedisConfig) {
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.Password != "" {
		dst.Password = src.Password
	}
	if src.DB != 0 {
		dst.DB = src.DB
	}
	if src.PoolSize != 0 {
		dst.PoolSize = src.PoolSize
	}
	if src.DialTimeout != 0 {
		dst.DialTimeout = src.DialTimeout
	}
	if src.ReadTimeout != 0 {
		dst.ReadTimeout = src.ReadTimeout
	}
	if src.WriteTimeout != 0 {
		dst.WriteTimeout = src.WriteTimeout
	}
}

func (r *RedisDriver) ping() error {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisDriver) Get(key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if types.IsError(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, types.WrapError(err, "failed to get redis cache entry")
	}

	return value, true, nil
}

// Set stores without a Redis expiry; freshness is decided by the entry itself.
func (r *RedisDriver) Set(key string, value []byte) error {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return types.WrapError(err, "failed to set redis cache entry")
	}
	return nil
}

func (r *RedisDriver) Delete(key string) error {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return types.WrapError(err, "failed to delete redis cache entry")
	}
	return nil
}

func (r *RedisDriver) Keys() ([]string, error) {
	fullKeys, err := r.scan()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(fullKeys))
	for _, fullKey := range fullKeys {
		keys = append(keys, strings.TrimPrefix(fullKey, r.prefix))
	}

	return keys, nil
}

func (r *RedisDriver) Len() (int, error) {
	fullKeys, err := r.scan()
	if err != nil {
		return 0, err
	}
	return len(fullKeys), nil
}

func (r *RedisDriver) Clear() error {
	fullKeys, err := r.scan()
	if err != nil {
		return err
	}
	if len(fullKeys) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	if err = r.client.Del(ctx, fullKeys...).Err(); err != nil {
		return types.WrapError(err, "failed to clear redis cache")
	}

	return nil
}

func (r *RedisDriver) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close redis client", zap.Error(err))
		return types.WrapError(err, "failed to close redis client")
	}
	return nil
}

func (r *RedisDriver) scan() ([]string, error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	var (
		keys   []string
		cursor uint64
	)

	for {
		batch, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", redisScanCount).Result()
		if err != nil {
			return nil, types.WrapError(err, "failed to scan redis cache keys")
		}
		keys = append(keys, batch...)

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}
