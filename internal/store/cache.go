package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flakefi/flake-backend/internal/metrics"
)

type Cache struct {
	// When Redis is available, use client for all operations
	client *redis.Client
	// When Redis is unavailable, fall back to an in-memory store
	memStore *memoryStore
	// In-memory pubsub hub for when Redis is unavailable
	pubsubHub *PubSubHub

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewCache(addr string, logger *zap.SugaredLogger, metrics *metrics.Metrics) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		// Redis unavailable: fall back to in-memory cache
		if logger != nil {
			logger.Warnw("Redis unavailable; using in-memory cache with local pubsub", "error", err)
		}
		return &Cache{
			client:    nil,
			memStore:  newMemoryStore(time.Minute),
			pubsubHub: NewPubSubHub(),
			logger:    logger,
			metrics:   metrics,
		}, nil
	}

	return &Cache{
		client:  client,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Cache key prefixes
const (
	KeyFactory  = "flake:factory"
	KeyPairList = "flake:pairs"
	KeyPair     = "flake:pair"
	KeyQuote    = "flake:quote"

	// ChannelEvents carries engine events to the WebSocket hub.
	ChannelEvents = "flake:events"
)

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	// Redis mode
	if c.client != nil {
		val, err := c.client.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				if c.metrics != nil {
					c.metrics.RecordCacheMiss(ctx, key)
				}
				return ErrCacheMiss
			}
			if c.logger != nil {
				c.logger.Errorw("Cache get error", "key", key, "error", err)
			}
			return fmt.Errorf("cache get error: %w", err)
		}
		if c.metrics != nil {
			c.metrics.RecordCacheHit(ctx, key)
		}
		if err := json.Unmarshal([]byte(val), dest); err != nil {
			return fmt.Errorf("cache unmarshal error: %w", err)
		}
		return nil
	}

	// In-memory mode
	data, err := c.memStore.Get(ctx, key)
	if err != nil {
		if err == ErrNotFound {
			if c.metrics != nil {
				c.metrics.RecordCacheMiss(ctx, key)
			}
			return ErrCacheMiss
		}
		return fmt.Errorf("cache get error: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RecordCacheHit(ctx, key)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if c.client != nil {
		if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
			if c.logger != nil {
				c.logger.Errorw("Cache set error", "key", key, "error", err)
			}
			return fmt.Errorf("cache set error: %w", err)
		}
		return nil
	}
	if err := c.memStore.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if c.client != nil {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			if c.logger != nil {
				c.logger.Errorw("Cache delete error", "keys", keys, "error", err)
			}
			return fmt.Errorf("cache delete error: %w", err)
		}
		return nil
	}
	if _, err := c.memStore.Del(ctx, keys...); err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if c.client != nil {
		count, err := c.client.Exists(ctx, key).Result()
		if err != nil {
			return false, fmt.Errorf("cache exists error: %w", err)
		}
		return count > 0, nil
	}
	count, err := c.memStore.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache exists error: %w", err)
	}
	return count > 0, nil
}

// Specialized cache methods
func (c *Cache) GetFactory(ctx context.Context, dest interface{}) error {
	return c.Get(ctx, KeyFactory, dest)
}

func (c *Cache) SetFactory(ctx context.Context, value interface{}) error {
	return c.Set(ctx, KeyFactory, value, 3*time.Second)
}

func (c *Cache) GetPairList(ctx context.Context, dest interface{}) error {
	return c.Get(ctx, KeyPairList, dest)
}

func (c *Cache) SetPairList(ctx context.Context, value interface{}) error {
	return c.Set(ctx, KeyPairList, value, 2*time.Second)
}

func (c *Cache) GetPair(ctx context.Context, creationNumber uint64, dest interface{}) error {
	key := fmt.Sprintf("%s:%d", KeyPair, creationNumber)
	return c.Get(ctx, key, dest)
}

func (c *Cache) SetPair(ctx context.Context, creationNumber uint64, value interface{}) error {
	key := fmt.Sprintf("%s:%d", KeyPair, creationNumber)
	return c.Set(ctx, key, value, 2*time.Second)
}

// InvalidatePair evicts a pair's cached detail and the shared list after a
// state-changing operation.
func (c *Cache) InvalidatePair(ctx context.Context, creationNumber uint64) error {
	key := fmt.Sprintf("%s:%d", KeyPair, creationNumber)
	return c.Delete(ctx, key, KeyPairList)
}

// Quote cache, keyed by pair, side and amount.
func (c *Cache) GetQuote(ctx context.Context, creationNumber uint64, side string, amountIn uint64, dest interface{}) error {
	key := fmt.Sprintf("%s:%d:%s:%d", KeyQuote, creationNumber, side, amountIn)
	return c.Get(ctx, key, dest)
}

func (c *Cache) SetQuote(ctx context.Context, creationNumber uint64, side string, amountIn uint64, value interface{}) error {
	key := fmt.Sprintf("%s:%d:%s:%d", KeyQuote, creationNumber, side, amountIn)
	return c.Set(ctx, key, value, 2*time.Second)
}

// Pub/Sub methods for real-time updates
func (c *Cache) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("pubsub marshal error: %w", err)
	}

	if c.client != nil {
		// Redis mode
		if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
			if c.logger != nil {
				c.logger.Errorw("Publish error", "channel", channel, "error", err)
			}
			return fmt.Errorf("pubsub publish error: %w", err)
		}
		return nil
	}

	// In-memory mode
	if c.pubsubHub != nil {
		c.pubsubHub.Publish(channel, string(data))
		if c.logger != nil {
			c.logger.Debugw("Published to in-memory pubsub", "channel", channel)
		}
	}
	return nil
}

func (c *Cache) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	if c.client != nil {
		// Redis mode
		return c.client.Subscribe(ctx, channels...)
	}

	// In-memory mode - callers fall back to SubscribeInMemory
	if c.logger != nil {
		c.logger.Debugw("Redis unavailable; local pubsub active", "channels", channels)
	}
	return nil
}

// SubscribeInMemory subscribes to channels using the in-memory pubsub hub.
func (c *Cache) SubscribeInMemory(ctx context.Context, channels ...string) *LocalPubSub {
	if c.pubsubHub != nil {
		return c.pubsubHub.Subscribe(ctx, channels...)
	}
	return nil
}

// IsInMemoryMode returns true if the cache is running in in-memory mode
func (c *Cache) IsInMemoryMode() bool {
	return c.client == nil
}

// Health check
func (c *Cache) Ping(ctx context.Context) error {
	if c.client != nil {
		return c.client.Ping(ctx).Err()
	}
	// In-memory mode considered healthy
	return nil
}

// Close connection
func (c *Cache) Close() error {
	var err error
	if c.client != nil {
		err = c.client.Close()
	}
	if c.memStore != nil {
		if closeErr := c.memStore.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

// Error types
var (
	ErrCacheMiss = fmt.Errorf("cache miss")
)
