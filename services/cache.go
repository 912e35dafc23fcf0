package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"tempmon/config"
)

const (
	LiveChannel = "tempmon:live"

	// LatestSamplesKey caches the default GET /samples page.
	LatestSamplesKey = "samples:latest"
	// SamplesVersionKey is bumped on every new sample. A cached page is only
	// served while its recorded version is still current.
	SamplesVersionKey = "samples:version"
)

// ErrCacheMiss is returned by Get when the key is absent or caching is off.
var ErrCacheMiss = errors.New("cache miss")

var _ Notifier = (*CacheService)(nil)

// CacheService wraps redis. A CacheService without a client is a no-op,
// which is what runs when REDIS_HOST is empty or redis never answered.
type CacheService struct {
	client *redis.Client
}

func NewCacheService(cfg config.RedisConfig) (*CacheService, error) {
	if !cfg.Enabled() {
		return NewDisabledCache(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	var lastErr error
	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lastErr = client.Ping(ctx).Err()
		cancel()
		if lastErr == nil {
			return &CacheService{client: client}, nil
		}
		log.Printf("Redis ping attempt %d/10 failed: %v", i+1, lastErr)
		time.Sleep(2 * time.Second)
	}

	_ = client.Close()
	return NewDisabledCache(), fmt.Errorf("redis ping failed after 10 attempts: %w", lastErr)
}

// NewCacheServiceFromClient wraps an already configured client.
func NewCacheServiceFromClient(client *redis.Client) *CacheService {
	return &CacheService{client: client}
}

func NewDisabledCache() *CacheService {
	return &CacheService{}
}

func (s *CacheService) Available() bool {
	return s.client != nil
}

func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) error {
	if s.client == nil {
		return ErrCacheMiss
	}
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// Version reads a counter written by BumpVersion. Missing counters and a
// disabled cache read as 0.
func (s *CacheService) Version(ctx context.Context, key string) (int64, error) {
	if s.client == nil {
		return 0, nil
	}
	v, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

func (s *CacheService) BumpVersion(ctx context.Context, key string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Incr(ctx, key).Err()
}

func (s *CacheService) Publish(ctx context.Context, channel string, message interface{}) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channel, data).Err()
}

// Subscribe returns nil when caching is disabled.
func (s *CacheService) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	if s.client == nil {
		return nil
	}
	return s.client.Subscribe(ctx, channels...)
}

func (s *CacheService) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
