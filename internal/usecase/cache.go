package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/mpox-check/internal/classifier"
)

// DefaultCacheNamespace prefixes every key the wizard writes to Redis.
const DefaultCacheNamespace = "mpox"

// Cache stores serialized predictions keyed by image digest.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache keeps predictions in Redis under a namespace so several
// deployments can share one instance. A missing key yields redis.Nil.
type RedisCache struct {
	client    redis.Cmdable
	namespace string
}

// NewRedisCache wraps client. An empty namespace selects DefaultCacheNamespace.
func NewRedisCache(client redis.Cmdable, namespace string) *RedisCache {
	if namespace == "" {
		namespace = DefaultCacheNamespace
	}
	return &RedisCache{client: client, namespace: namespace}
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, c.namespaced(key), value, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, c.namespaced(key)).Result()
}

func (c *RedisCache) namespaced(key string) string {
	return c.namespace + ":" + key
}

// Identical images share a prediction regardless of session.
func predictionCacheKey(imageSHA1 string) string {
	return "prediction:" + imageSHA1
}

func encodePrediction(p classifier.Prediction) (string, error) {
	raw, err := json.Marshal(p.Probabilities)
	if err != nil {
		return "", fmt.Errorf("encode prediction: %w", err)
	}
	return string(raw), nil
}

// decodePrediction rebuilds a prediction from its cached probabilities,
// rejecting entries that no longer match the model's class layout.
func decodePrediction(cached string) (classifier.Prediction, error) {
	var probs []float32
	if err := json.Unmarshal([]byte(cached), &probs); err != nil {
		return classifier.Prediction{}, fmt.Errorf("decode cached prediction: %w", err)
	}
	prediction, err := classifier.NewPrediction(probs)
	if err != nil {
		return classifier.Prediction{}, fmt.Errorf("invalid cached prediction: %w", err)
	}
	return prediction, nil
}
