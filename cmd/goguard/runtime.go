package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal/config"
	"github.com/MrEthical07/goGuard/internal/logging"
	"github.com/MrEthical07/goGuard/secretbox"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/store/memory"
	"github.com/MrEthical07/goGuard/store/pgstore"
	"github.com/MrEthical07/goGuard/store/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// runtime is everything a command needs after startup. close releases it in
// reverse order of acquisition.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	engine  *goGuard.Engine
	redis   redis.UniversalClient
	closers []func()
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Env:     cfg.App.Env,
		Level:   cfg.Log.Level,
		Service: cfg.App.Name,
	})
}

// openRuntime connects the configured backends and builds the engine.
func openRuntime(ctx context.Context, flags *globalFlags) (_ *runtime, err error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger}
	rt.closers = append(rt.closers, func() { _ = logger.Sync() })
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	if flags.dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		rt.closers = append(rt.closers, mr.Close)
		cfg.Redis.Addr = mr.Addr()
		cfg.Redis.Password = ""
		logger.Warn("using in-process redis; state is lost on exit", zap.String("addr", mr.Addr()))
	}

	if cfg.UsesRedis() || flags.dev {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		rt.redis = client
	}

	sealer, err := newSealer(cfg)
	if err != nil {
		return nil, err
	}

	builder := goGuard.New().
		WithConfig(cfg.Engine).
		WithLogger(logger)
	if rt.redis != nil {
		builder = builder.WithRedis(rt.redis)
	}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		store := memory.New()
		builder = builder.WithMFAStore(store).WithKeyStore(store)
		logger.Warn("memory storage: MFA records and client keys are lost on exit")
	case config.DriverRedis:
		store, err := redisstore.New(rt.redis, sealer, redisstore.WithPrefix(cfg.Redis.Prefix))
		if err != nil {
			return nil, err
		}
		builder = builder.WithMFAStore(store).WithKeyStore(store)
	case config.DriverPostgres:
		store, err := openPostgres(ctx, rt, sealer)
		if err != nil {
			return nil, err
		}
		builder = builder.WithMFAStore(store).WithKeyStore(store)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	engine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	rt.engine = engine
	rt.closers = append(rt.closers, engine.Close)
	return rt, nil
}

func newSealer(cfg *config.Config) (secretbox.Sealer, error) {
	if cfg.Secrets.MFAKey == "" {
		return secretbox.Plaintext{}, nil
	}
	box, err := secretbox.NewFromString(cfg.Secrets.MFAKey)
	if err != nil {
		return nil, fmt.Errorf("secrets.mfa_key: %w", err)
	}
	return box, nil
}

func openPostgres(ctx context.Context, rt *runtime, sealer secretbox.Sealer) (*pgstore.Store, error) {
	pc, err := pgxpool.ParseConfig(rt.cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	if rt.cfg.Postgres.MaxConns > 0 {
		pc.MaxConns = rt.cfg.Postgres.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	rt.closers = append(rt.closers, pool.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	store, err := pgstore.New(pool, sealer)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return store, nil
}

// newResolver builds the session resolver, wrapped in a short-lived cache
// when session.cache_ttl is set.
func newResolver(rt *runtime) (session.Resolver, error) {
	cfg := rt.cfg.Session

	var (
		inner session.Resolver
		key   session.KeyFunc
	)
	switch cfg.Kind {
	case config.SessionJWT:
		jc := session.JWTConfig{
			SigningMethod: session.SigningMethod(cfg.JWT.Method),
			Issuer:        cfg.JWT.Issuer,
			Audience:      cfg.JWT.Audience,
			Leeway:        cfg.JWT.Leeway,
			CookieName:    cfg.CookieName,
			Clock:         rt.engine.Now,
		}
		switch jc.SigningMethod {
		case session.MethodHS256:
			jc.PrivateKey = []byte(cfg.JWT.Secret)
		case session.MethodEd25519:
			pub, err := os.ReadFile(cfg.JWT.PublicKeyFile)
			if err != nil {
				return nil, fmt.Errorf("session.jwt.public_key_file: %w", err)
			}
			jc.PublicKey = pub
			if cfg.JWT.PrivateKeyFile != "" {
				priv, err := os.ReadFile(cfg.JWT.PrivateKeyFile)
				if err != nil {
					return nil, fmt.Errorf("session.jwt.private_key_file: %w", err)
				}
				jc.PrivateKey = priv
			}
		}
		jr, err := session.NewJWTResolver(jc)
		if err != nil {
			return nil, err
		}
		inner = jr
		key = session.BearerKey
		if cfg.CookieName != "" {
			key = func(r *http.Request) string {
				if k := session.BearerKey(r); k != "" {
					return k
				}
				return session.CookieKey(cfg.CookieName)(r)
			}
		}
	case config.SessionRedis:
		if rt.redis == nil {
			return nil, errors.New("redis sessions need a redis client")
		}
		store := session.NewRedisStore(rt.redis, rt.cfg.Redis.Prefix+":sess")
		inner = session.NewRedisResolver(store, cfg.CookieName)
		key = session.CookieKey(cfg.CookieName)
	default:
		return nil, fmt.Errorf("unknown session kind %q", cfg.Kind)
	}

	if cfg.CacheTTL <= 0 {
		return inner, nil
	}
	return session.NewCachingResolver(inner, key, cfg.CacheTTL), nil
}
