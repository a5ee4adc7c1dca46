package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/sitemeta/internal/config"
	"github.com/MrSnakeDoc/sitemeta/internal/logger"
)

func testOptions(addr string) ConnectOptions {
	return ConnectOptions{
		Addr:           addr,
		DialTimeout:    50 * time.Millisecond,
		ReadTimeout:    50 * time.Millisecond,
		WriteTimeout:   50 * time.Millisecond,
		PoolSize:       2,
		ConnectTimeout: 300 * time.Millisecond,
		RetryInterval:  10 * time.Millisecond,
		MaxWait:        40 * time.Millisecond,
		PingTimeout:    50 * time.Millisecond,
		WarnThreshold:  1,
	}
}

func TestNewConnects(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := New(context.Background(), testOptions(mr.Addr()), logger.New("error", false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestNewGivesUpAfterTimeout(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	start := time.Now()
	client, err := New(context.Background(), testOptions(addr), logger.New("error", false))
	require.Error(t, err)
	require.Nil(t, client)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ConnectOptions)
	}{
		{"connect timeout", func(o *ConnectOptions) { o.ConnectTimeout = 0 }},
		{"retry interval", func(o *ConnectOptions) { o.RetryInterval = 0 }},
		{"max wait", func(o *ConnectOptions) { o.MaxWait = -time.Second }},
		{"ping timeout", func(o *ConnectOptions) { o.PingTimeout = 0 }},
		{"warn threshold", func(o *ConnectOptions) { o.WarnThreshold = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions("localhost:0")
			tt.mutate(&opts)
			_, err := New(context.Background(), opts, logger.New("error", false))
			require.Error(t, err)
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.RedisConfig{
		Addr:           "redis:6379",
		Username:       "user",
		Password:       "secret",
		DB:             2,
		PoolSize:       5,
		ConnectTimeout: time.Second,
	})

	require.Equal(t, "redis:6379", opts.Addr)
	require.Equal(t, "user", opts.User)
	require.Equal(t, 2, opts.RedisDB)
	require.Equal(t, 5, opts.PoolSize)
	require.Equal(t, time.Second, opts.ConnectTimeout)
}
