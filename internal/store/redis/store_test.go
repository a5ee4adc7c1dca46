package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStoreSaveAndGet(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	store := NewStore(client, time.Hour)

	got, err := store.Get(ctx, "https://example.com")
	require.NoError(t, err)
	require.Nil(t, got, "expected a miss on an empty cache")

	website := domain.Website{
		URL:        "https://Example.com/",
		Title:      "Example",
		ThemeColor: domain.RGB(0x33, 0x66, 0x99),
		VisitCount: 3,
	}
	_, err = store.Save(ctx, website)
	require.NoError(t, err)

	require.True(t, mr.Exists(CacheKey("https://example.com")))
	require.Equal(t, time.Hour, mr.TTL(CacheKey("https://example.com")))

	got, err = store.Get(ctx, "https://example.com/#fragment")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Example", got.Title)
	require.Equal(t, domain.RGB(0x33, 0x66, 0x99), got.ThemeColor)
	require.Equal(t, int64(3), got.VisitCount)
}

func TestStoreZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	store := NewStore(client, 0)

	_, err := store.Save(ctx, domain.Website{URL: "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, time.Duration(0), mr.TTL(CacheKey("https://example.com")))
}

func TestStoreEntriesExpire(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	store := NewStore(client, time.Minute)

	_, err := store.Save(ctx, domain.Website{URL: "https://example.com"})
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	got, err := store.Get(ctx, "https://example.com")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreGetCorruptValue(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	store := NewStore(client, time.Hour)

	require.NoError(t, mr.Set(CacheKey("https://example.com"), "{not json"))

	got, err := store.Get(ctx, "https://example.com")
	require.Error(t, err)
	require.Nil(t, got)
}

func TestStoreClearOnlyTouchesCacheKeys(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	store := NewStore(client, time.Hour)
	colors := NewColorStore(client)

	for i := 0; i < 250; i++ {
		_, err := store.Save(ctx, domain.Website{URL: fmt.Sprintf("https://site%d.example", i)})
		require.NoError(t, err)
	}
	_, err := colors.Save(ctx, "example.com", domain.RGB(1, 2, 3))
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx))

	require.Len(t, mr.Keys(), 1)
	require.True(t, mr.Exists(KeyColors))
}

func TestStoreFailsWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	store := NewStore(client, time.Hour)
	mr.Close()

	_, err := store.Get(ctx, "https://example.com")
	require.Error(t, err)

	_, err = store.Save(ctx, domain.Website{URL: "https://example.com"})
	require.Error(t, err)

	require.Error(t, store.Ping(ctx))
}

func TestColorStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	colors := NewColorStore(client)

	got, err := colors.Get(ctx, "example.com")
	require.NoError(t, err)
	require.Equal(t, domain.NoColor, got)

	saved, err := colors.Save(ctx, "example.com", domain.RGB(0x33, 0x66, 0x99))
	require.NoError(t, err)
	require.Equal(t, domain.WebColor{Host: "example.com", Color: domain.RGB(0x33, 0x66, 0x99)}, saved)
	require.Equal(t, "4281558681", mr.HGet(KeyColors, "example.com"))

	got, err = colors.Get(ctx, "example.com")
	require.NoError(t, err)
	require.Equal(t, domain.RGB(0x33, 0x66, 0x99), got)

	_, err = colors.Save(ctx, "example.com", domain.NoColor)
	require.NoError(t, err)
	got, err = colors.Get(ctx, "example.com")
	require.NoError(t, err)
	require.Equal(t, domain.NoColor, got)
}

func TestColorStoreRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	colors := NewColorStore(client)

	mr.HSet(KeyColors, "example.com", "teal")

	got, err := colors.Get(ctx, "example.com")
	require.Error(t, err)
	require.Equal(t, domain.NoColor, got)
}
