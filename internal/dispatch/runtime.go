package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"promptforge/internal/config"
	"promptforge/internal/discovery"
	"promptforge/internal/keypool"
	"promptforge/internal/logging"
	"promptforge/internal/prompt"
	"promptforge/internal/providers"
	"promptforge/internal/ratelimit"
	"promptforge/internal/storage"
)

// Runtime holds the long-lived collaborators shared by every Session a
// process starts: provider, caches, limiter and attempt sink.
//
// Provider calls made through Run and Validate are serialised: at most one
// call is in flight per process, whatever the number of callers.
type Runtime struct {
	Deps      Dependencies
	Validator *keypool.Validator
	Options   Options
	Shape     keypool.Shape

	callMu sync.Mutex
	redis  *storage.RedisClient
}

// NewRuntime wires collaborators from configuration. Redis is only dialled
// when the limiter or the attempt log needs it.
func NewRuntime(cfg *config.Config) (*Runtime, error) {
	provider, err := providers.NewProviderFactory().CreateProvider(providers.Config{
		Type:         cfg.Provider.Type,
		BaseURL:      cfg.Provider.BaseURL,
		DefaultModel: cfg.Provider.DefaultModel,
		Timeout:      cfg.Provider.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Options: OptionsFromConfig(cfg.Dispatch),
		Shape:   keypool.ShapeFor(cfg.Provider.Type),
	}

	needRedis := cfg.Redis.Address != "" &&
		(cfg.Limits.RequestsPerMinute > 0 || (cfg.AttemptLog.Enabled && cfg.AttemptLog.Backend == "redis"))
	if needRedis {
		rt.redis, err = storage.NewRedisClient(cfg.Redis)
		if err != nil {
			provider.Close()
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
	}

	var limiter ratelimit.Limiter = ratelimit.NewNoopLimiter()
	if rt.redis != nil && cfg.Limits.RequestsPerMinute > 0 {
		limiter = ratelimit.NewRateLimiter(rt.redis.Client(), cfg.Limits.RequestsPerMinute, time.Minute)
	}

	var sink logging.Sink = logging.NewNoopSink()
	if cfg.AttemptLog.Enabled {
		switch cfg.AttemptLog.Backend {
		case "redis":
			sink = logging.NewRedisSink(rt.redis.Client(), cfg.AttemptLog.RedisKey, cfg.AttemptLog.RedisMaxEntries)
		default:
			sink, err = logging.NewFileSink(
				cfg.AttemptLog.FilePathTemplate,
				cfg.AttemptLog.MaxSize,
				cfg.AttemptLog.MaxFiles,
				cfg.AttemptLog.BufferSize,
				cfg.AttemptLog.FlushInterval,
			)
			if err != nil {
				rt.closeRedis()
				provider.Close()
				return nil, fmt.Errorf("failed to initialize attempt log: %w", err)
			}
		}
	}

	discoverer := discovery.New(provider, cfg.Discovery.CacheSize, cfg.Discovery.CacheTTL)
	rt.Validator = keypool.NewValidator(provider, discoverer, cfg.Discovery.CacheSize, cfg.Discovery.CacheTTL)
	rt.Deps = Dependencies{
		Provider:   provider,
		Discoverer: discoverer,
		Limiter:    limiter,
		Sink:       sink,
	}
	return rt, nil
}

// NewSession starts a batch run over pool with the runtime's collaborators.
func (rt *Runtime) NewSession(pool *keypool.Pool) (*Session, error) {
	return NewSession(pool, rt.Deps, rt.Options)
}

// Run executes one batch over pool. A batch started while another one is
// running waits for it to finish.
func (rt *Runtime) Run(ctx context.Context, pool *keypool.Pool, items []prompt.WorkItem) (*Session, []Result, error) {
	session, err := rt.NewSession(pool)
	if err != nil {
		return nil, nil, err
	}

	rt.callMu.Lock()
	defer rt.callMu.Unlock()

	results, err := session.Run(ctx, items)
	return session, results, err
}

// Validate checks keys, waiting for any running batch first.
func (rt *Runtime) Validate(ctx context.Context, keys []string) []keypool.Credential {
	rt.callMu.Lock()
	defer rt.callMu.Unlock()
	return rt.Validator.Validate(ctx, keys)
}

// Close flushes the attempt sink and releases connections.
func (rt *Runtime) Close(ctx context.Context) error {
	var firstErr error
	if rt.Deps.Sink != nil {
		if err := rt.Deps.Sink.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("attempt log shutdown: %w", err)
		}
	}
	if rt.Deps.Provider != nil {
		if err := rt.Deps.Provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := rt.closeRedis(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (rt *Runtime) closeRedis() error {
	if rt.redis == nil {
		return nil
	}
	err := rt.redis.Close()
	rt.redis = nil
	return err
}
