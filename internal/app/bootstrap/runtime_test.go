package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/northstaff/hragent/internal/config"
	"github.com/northstaff/hragent/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	cfg := &config.Config{RedisAddr: "  "}
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logging.Default(), false))
	assert.Nil(t, BuildRedisClient(context.Background(), nil, logging.Default(), false))
}

func TestBuildRedisClientUnverified(t *testing.T) {
	cfg := &config.Config{RedisAddr: "localhost:6379"}
	client := BuildRedisClient(context.Background(), cfg, logging.Default(), false)
	assert.NotNil(t, client)
	_ = client.Close()
}

func TestRedisTLS(t *testing.T) {
	assert.Nil(t, redisTLS(&config.Config{RedisAddr: "localhost:6379"}))
	assert.NotNil(t, redisTLS(&config.Config{RedisAddr: "cache.example.net:6380"}))
}
