package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const embeddingTTL = 7 * 24 * time.Hour

func embeddingKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embedding:" + model + ":" + hex.EncodeToString(sum[:])
}

// EmbeddingCache memoizes embedding vectors keyed by model and input text.
type EmbeddingCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewEmbeddingCache creates a Redis-backed EmbeddingCache. A zero ttl uses
// the default of one week.
func NewEmbeddingCache(client redis.Cmdable, ttl time.Duration) *EmbeddingCache {
	if ttl == 0 {
		ttl = embeddingTTL
	}
	return &EmbeddingCache{client: client, ttl: ttl}
}

// Get returns the cached vector and true, or nil and false on a miss.
func (c *EmbeddingCache) Get(ctx context.Context, model, text string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, embeddingKey(model, text)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get embedding: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached embedding: %w", err)
	}
	return vec, true, nil
}

func (c *EmbeddingCache) Set(ctx context.Context, model, text string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	if err := c.client.Set(ctx, embeddingKey(model, text), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set embedding: %w", err)
	}
	return nil
}
