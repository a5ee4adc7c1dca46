package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
)

// DefaultCacheTTL is used when the store is built with a negative TTL.
const DefaultCacheTTL = 7 * 24 * time.Hour

// scanBatch bounds the number of keys deleted per round trip in Clear.
const scanBatch = 100

// Store is the Redis-backed domain.CacheStore.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a cache store. A ttl of 0 keeps entries forever.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl < 0 {
		ttl = DefaultCacheTTL
	}
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a cached website, (nil, nil) on a miss
func (s *Store) Get(ctx context.Context, url string) (*domain.Website, error) {
	data, err := s.client.Get(ctx, CacheKey(domain.NormalizeURL(url))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached website: %w", err)
	}

	var website domain.Website
	if err := json.Unmarshal(data, &website); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached website: %w", err)
	}
	return &website, nil
}

// Save stores website under its normalized URL
func (s *Store) Save(ctx context.Context, website domain.Website) (domain.Website, error) {
	data, err := json.Marshal(website)
	if err != nil {
		return domain.Website{}, fmt.Errorf("failed to marshal website: %w", err)
	}

	if err := s.client.Set(ctx, CacheKey(website.Key()), data, s.ttl).Err(); err != nil {
		return domain.Website{}, fmt.Errorf("failed to cache website: %w", err)
	}
	return website, nil
}

// Clear removes all cached websites
func (s *Store) Clear(ctx context.Context) error {
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	iter := s.client.Scan(ctx, 0, KeyPrefixCache+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to flush cache: %w", err)
	}
	return flush()
}

// Ping reports whether Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
