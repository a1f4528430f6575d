package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ai-diagnostics-service/internal/domain"
)

// CacheClient wraps the Redis client with caching for drug-interaction
// lookups. Interaction knowledge changes slowly, so responses are safe to
// reuse across requests that share a medication set.
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCacheClient creates a new cache client
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &CacheClient{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// CachedInteractions represents cached interaction results with metadata
type CachedInteractions struct {
	Results   []domain.InteractionResult `json:"results"`
	CachedAt  time.Time                  `json:"cached_at"`
	ExpiresAt time.Time                  `json:"expires_at"`
}

// GetInteractions retrieves cached interaction results for a medication set
func (c *CacheClient) GetInteractions(ctx context.Context, medicationNames []string) ([]domain.InteractionResult, bool, error) {
	key := c.interactionKey(medicationNames)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get interaction cache: %w", err)
	}

	var cached CachedInteractions
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Results, true, nil
}

// SetInteractions caches interaction results for a medication set
func (c *CacheClient) SetInteractions(ctx context.Context, medicationNames []string, results []domain.InteractionResult, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := CachedInteractions{
		Results:   results,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction cache data: %w", err)
	}

	return c.redis.Set(ctx, c.interactionKey(medicationNames), jsonData, ttl).Err()
}

// InvalidateInteractions removes a cached medication set
func (c *CacheClient) InvalidateInteractions(ctx context.Context, medicationNames []string) error {
	return c.redis.Del(ctx, c.interactionKey(medicationNames)).Err()
}

// Health checks the Redis connection
func (c *CacheClient) Health(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.redis.Close()
}

// interactionKey creates a stable cache key for a normalized medication set
func (c *CacheClient) interactionKey(medicationNames []string) string {
	joined := strings.Join(normalizeMedicationNames(medicationNames), ",")
	hash := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("interactions:%x", hash[:16])
}
