package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/kendall-kelly/delivery-tracking-api/models"
)

// DeliveryCache stores delivery summaries (delivery, sender, agent, status history)
// keyed by id and by tracking id. A miss returns (nil, nil).
type DeliveryCache interface {
	GetDelivery(ctx context.Context, id uint) (*models.Delivery, error)
	GetDeliveryByTracking(ctx context.Context, trackingID string) (*models.Delivery, error)
	SetDelivery(ctx context.Context, delivery *models.Delivery) error
	Invalidate(ctx context.Context, delivery *models.Delivery) error
}

// RedisDeliveryCache implements DeliveryCache on Redis
type RedisDeliveryCache struct {
	client *redis.Client
	ttl    time.Duration
}

var deliveryCacheInstance DeliveryCache = NoopDeliveryCache{}

// NewRedisDeliveryCache connects to Redis and verifies the connection
func NewRedisDeliveryCache(redisURL string, ttl time.Duration) (*RedisDeliveryCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisDeliveryCache{client: client, ttl: ttl}, nil
}

// GetDeliveryCache returns the process-wide cache (a no-op cache unless one was set)
func GetDeliveryCache() DeliveryCache {
	return deliveryCacheInstance
}

// SetDeliveryCache sets the process-wide cache
func SetDeliveryCache(cache DeliveryCache) {
	if cache == nil {
		cache = NoopDeliveryCache{}
	}
	deliveryCacheInstance = cache
}

// Close releases the Redis connection pool
func (c *RedisDeliveryCache) Close() error {
	return c.client.Close()
}

func (c *RedisDeliveryCache) GetDelivery(ctx context.Context, id uint) (*models.Delivery, error) {
	return c.get(ctx, deliveryKey(id))
}

func (c *RedisDeliveryCache) GetDeliveryByTracking(ctx context.Context, trackingID string) (*models.Delivery, error) {
	return c.get(ctx, trackingKey(trackingID))
}

func (c *RedisDeliveryCache) SetDelivery(ctx context.Context, delivery *models.Delivery) error {
	data, err := json.Marshal(delivery)
	if err != nil {
		return err
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, deliveryKey(delivery.ID), data, c.ttl)
	if delivery.TrackingID != nil {
		pipe.Set(ctx, trackingKey(*delivery.TrackingID), data, c.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisDeliveryCache) Invalidate(ctx context.Context, delivery *models.Delivery) error {
	keys := []string{deliveryKey(delivery.ID)}
	if delivery.TrackingID != nil {
		keys = append(keys, trackingKey(*delivery.TrackingID))
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *RedisDeliveryCache) get(ctx context.Context, key string) (*models.Delivery, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var delivery models.Delivery
	if err := json.Unmarshal(data, &delivery); err != nil {
		return nil, err
	}
	return &delivery, nil
}

func deliveryKey(id uint) string {
	return fmt.Sprintf("delivery:%d", id)
}

func trackingKey(trackingID string) string {
	return fmt.Sprintf("tracking:%s", trackingID)
}

// NoopDeliveryCache is used when no Redis is configured; every lookup misses
type NoopDeliveryCache struct{}

func (NoopDeliveryCache) GetDelivery(context.Context, uint) (*models.Delivery, error) {
	return nil, nil
}

func (NoopDeliveryCache) GetDeliveryByTracking(context.Context, string) (*models.Delivery, error) {
	return nil, nil
}

func (NoopDeliveryCache) SetDelivery(context.Context, *models.Delivery) error { return nil }

func (NoopDeliveryCache) Invalidate(context.Context, *models.Delivery) error { return nil }
