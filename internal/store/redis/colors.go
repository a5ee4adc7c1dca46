package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
)

// ColorStore keeps host colors in a single hash. Colors never expire.
type ColorStore struct {
	client *redis.Client
}

func NewColorStore(client *redis.Client) *ColorStore {
	return &ColorStore{client: client}
}

// Get returns the stored color of host, NoColor when unknown
func (s *ColorStore) Get(ctx context.Context, host string) (domain.Color, error) {
	raw, err := s.client.HGet(ctx, KeyColors, host).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.NoColor, nil
		}
		return domain.NoColor, fmt.Errorf("failed to get color: %w", err)
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return domain.NoColor, fmt.Errorf("invalid stored color %q for %s: %w", raw, host, err)
	}
	color := domain.Color(v)
	if !color.Valid() {
		return domain.NoColor, nil
	}
	return color, nil
}

// Save records color for host. A non-concrete color removes the entry.
func (s *ColorStore) Save(ctx context.Context, host string, color domain.Color) (domain.WebColor, error) {
	if !color.Valid() {
		if err := s.client.HDel(ctx, KeyColors, host).Err(); err != nil {
			return domain.NoWebColor, fmt.Errorf("failed to delete color: %w", err)
		}
		return domain.WebColor{Host: host, Color: domain.NoColor}, nil
	}

	if err := s.client.HSet(ctx, KeyColors, host, strconv.FormatInt(int64(color), 10)).Err(); err != nil {
		return domain.NoWebColor, fmt.Errorf("failed to save color: %w", err)
	}
	return domain.WebColor{Host: host, Color: color}, nil
}
