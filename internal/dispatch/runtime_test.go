package dispatch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptforge/internal/config"
	"promptforge/internal/keypool"
	"promptforge/internal/logging"
	"promptforge/internal/ratelimit"
)

func runtimeConfig() *config.Config {
	return &config.Config{
		Provider:  config.ProviderConfig{Type: "gemini", RequestTimeout: time.Second},
		Dispatch:  config.DispatchConfig{RetryFactor: 3, BaseDelay: time.Second, MinDelay: 100 * time.Millisecond, ExpectJSON: true, ResponseField: "prompt"},
		Discovery: config.DiscoveryConfig{CacheSize: 8, CacheTTL: time.Minute},
		Redis:     config.RedisConfig{PoolSize: 2, DialTimeout: time.Second},
		AttemptLog: config.AttemptLogConfig{
			Backend:          "file",
			RedisKey:         "test:attempts",
			RedisMaxEntries:  10,
			MaxSize:          1 << 20,
			MaxFiles:         2,
			BufferSize:       4,
			FlushInterval:    10 * time.Millisecond,
			FilePathTemplate: "attempts-%s.jsonl",
		},
	}
}

func TestNewRuntime_Defaults(t *testing.T) {
	rt, err := NewRuntime(runtimeConfig())
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.Equal(t, "gemini", rt.Deps.Provider.Type())
	assert.IsType(t, &ratelimit.NoopLimiter{}, rt.Deps.Limiter)
	assert.IsType(t, &logging.NoopSink{}, rt.Deps.Sink)
	assert.Equal(t, keypool.Shape{Prefix: "AIza", MinLength: 30}, rt.Shape)
	assert.Equal(t, 3, rt.Options.RetryFactor)
	assert.NotNil(t, rt.Validator)

	pool, err := keypool.NewPool([]string{"AIza-one", "AIza-two"})
	require.NoError(t, err)
	session, err := rt.NewSession(pool)
	require.NoError(t, err)
	assert.Zero(t, session.Cursor())
}

func TestNewRuntime_FileAttemptLog(t *testing.T) {
	cfg := runtimeConfig()
	cfg.AttemptLog.Enabled = true
	cfg.AttemptLog.FilePathTemplate = filepath.Join(t.TempDir(), "attempts-%s.jsonl")

	rt, err := NewRuntime(cfg)
	require.NoError(t, err)
	assert.IsType(t, &logging.FileSink{}, rt.Deps.Sink)
	assert.NoError(t, rt.Close(context.Background()))
}

func TestNewRuntime_RedisBackedCollaborators(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := runtimeConfig()
	cfg.Redis.Address = mr.Addr()
	cfg.Limits.RequestsPerMinute = 30
	cfg.AttemptLog.Enabled = true
	cfg.AttemptLog.Backend = "redis"

	rt, err := NewRuntime(cfg)
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.IsType(t, &ratelimit.RateLimiter{}, rt.Deps.Limiter)
	sink, ok := rt.Deps.Sink.(*logging.RedisSink)
	require.True(t, ok)

	require.NoError(t, sink.Enqueue(&logging.AttemptRecord{RunID: "r", Outcome: "success"}))
	recent, err := sink.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestNewRuntime_UnknownProvider(t *testing.T) {
	cfg := runtimeConfig()
	cfg.Provider.Type = "vertexai"

	_, err := NewRuntime(cfg)
	assert.Error(t, err)
}

func TestNewRuntime_RedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := runtimeConfig()
	cfg.Redis.Address = addr
	cfg.Redis.DialTimeout = 200 * time.Millisecond
	cfg.Limits.RequestsPerMinute = 10

	_, err = NewRuntime(cfg)
	assert.Error(t, err)
}
