//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"devcompliance/internal/platform/config"
	"devcompliance/internal/platform/redis"
	"devcompliance/pkg/testutil/containers"
)

func TestNew(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	rc := containers.GetManager().GetRedis(t)

	client, err := redis.New(ctx, config.RedisConfig{URL: rc.URL, PoolSize: 4, DialTimeout: time.Second})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Ping(ctx).Err())

	_, err = redis.New(ctx, config.RedisConfig{})
	require.Error(t, err)

	_, err = redis.New(ctx, config.RedisConfig{URL: "not a url"})
	require.Error(t, err)
}
