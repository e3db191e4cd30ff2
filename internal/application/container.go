package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"entitlement-service/internal/config"
	"entitlement-service/internal/domain/ports/adapter"
	"entitlement-service/internal/domain/ports/repository"
	"entitlement-service/internal/infra/db/memstore"
	"entitlement-service/internal/infra/db/mongodb"
	pg "entitlement-service/internal/infra/db/postgres"
	"entitlement-service/internal/infra/db/retry"
	"entitlement-service/internal/infra/ratelimit"
	red "entitlement-service/internal/infra/redis"
	"entitlement-service/internal/infra/worker"
	"entitlement-service/internal/pkg/clock"
	"entitlement-service/internal/usecase"
)

// Stores is the repository set of one storage backend.
type Stores struct {
	Codes    repository.CodeRepository
	Ledger   repository.RedemptionRepository
	Accounts repository.AccountRepository
	Tx       repository.TransactionManager
}

// Container composes the storage backend, limiters and use cases from config.
// cmd/app serves it over HTTP; cmd/issue drives the admin use case directly.
type Container struct {
	Redeem   usecase.RedeemUseCase
	Admin    usecase.CodeAdminUseCase
	Accounts repository.AccountRepository
	Clock    clock.Clock

	ready   []func(ctx context.Context) error
	closers []func(ctx context.Context) error
}

// Build connects to every configured backend. Call Close when done.
func Build(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Container, error) {
	c := &Container{Clock: clock.NewRealClock()}
	stores, err := c.openStores(ctx, cfg, logger)
	if err != nil {
		_ = c.Close(context.Background())
		return nil, err
	}

	var redisClient *red.Client
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			_ = c.Close(context.Background())
			return nil, fmt.Errorf("redis: %w", err)
		}
		c.ready = append(c.ready, redisClient.Ping)
		c.closers = append(c.closers, func(context.Context) error { return redisClient.Close() })
		stores.Accounts = red.NewAccountRepoCacheDecorator(stores.Accounts, redisClient, cfg.Redis.CacheTTL, logger)
		logger.Info().Dur("ttl", cfg.Redis.CacheTTL).Msg("account cache enabled")
	}

	limiters, err := newLimiters(cfg.RateLimit, redisClient, c.Clock)
	if err != nil {
		_ = c.Close(context.Background())
		return nil, err
	}

	benefits := usecase.NewBenefitApplier(stores.Accounts)
	pending := c.startRetrier(cfg.Redeem, benefits, logger)
	c.Redeem = usecase.NewRedeemUseCase(stores.Codes, stores.Ledger, stores.Tx, benefits, limiters, c.Clock,
		usecase.RedeemOptions{
			MaxCommitAttempts: cfg.Redeem.MaxCommitAttempts,
			BenefitTimeout:    cfg.Redeem.BenefitTimeout,
			CommitBackoff:     cfg.Redeem.CommitBackoff,
			Dev:               cfg.Runtime.Dev,
			Pending:           pending,
		}, logger)
	c.Admin = usecase.NewCodeAdminUseCase(stores.Codes, stores.Ledger, benefits, nil, cfg.Issue.CollisionRetries, c.Clock, logger)
	c.Accounts = stores.Accounts
	return c, nil
}

// startRetrier runs the background benefit retry pool until Close. It is
// registered after the stores so it stops before they are released.
func (c *Container) startRetrier(cfg config.RedeemConfig, applier worker.Applier, logger *zerolog.Logger) *worker.BenefitRetrier {
	pool := worker.NewPool(cfg.PendingWorkers, 0, logger)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	c.closers = append(c.closers, func(context.Context) error { cancel(); pool.Stop(); return nil })
	return worker.NewBenefitRetrier(pool, applier, worker.RetrierOptions{MaxElapsed: cfg.PendingMaxElapsed}, logger)
}

// openStores picks the backend named by store.driver and wraps it in the retry decorators.
func (c *Container) openStores(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (Stores, error) {
	var s Stores
	switch cfg.Store.Driver {
	case "mongo":
		db, err := mongodb.Connect(ctx, cfg.Store.MongoURI, cfg.Store.MongoDB)
		if err != nil {
			return s, fmt.Errorf("mongo: %w", err)
		}
		c.ready = append(c.ready, func(ctx context.Context) error { return db.Client.Ping(ctx, nil) })
		c.closers = append(c.closers, db.Disconnect)
		s = Stores{
			Codes:    mongodb.NewCodeRepo(db.Database),
			Ledger:   mongodb.NewRedemptionRepo(db.Database),
			Accounts: mongodb.NewAccountRepo(db.Database),
			Tx:       mongodb.NewTxManager(db.Client),
		}
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.Store)
		if err != nil {
			return s, fmt.Errorf("postgres: %w", err)
		}
		statsCtx, stop := context.WithCancel(context.Background())
		go pg.ReportPoolStats(statsCtx, pool, 15*time.Second, logger)
		c.ready = append(c.ready, pool.Ping)
		c.closers = append(c.closers, func(context.Context) error { stop(); pool.Close(); return nil })
		s = Stores{
			Codes:    pg.NewCodeRepo(pool),
			Ledger:   pg.NewRedemptionRepo(pool),
			Accounts: pg.NewAccountRepo(pool),
			Tx:       pg.NewTxManager(pool),
		}
	case "memory":
		logger.Warn().Msg("using the in-memory store; data is lost on exit")
		return MemoryStores(memstore.New()), nil
	default:
		return s, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	p := retry.Policy{MaxElapsed: cfg.Store.RetryMaxElapsed}
	return Stores{
		Codes:    retry.NewCodeRepo(s.Codes, p, logger),
		Ledger:   retry.NewRedemptionRepo(s.Ledger, p, logger),
		Accounts: retry.NewAccountRepo(s.Accounts, p, logger),
		Tx:       retry.NewTxManager(s.Tx, p, logger),
	}, nil
}

// MemoryStores exposes an in-process store through the repository ports.
func MemoryStores(s *memstore.Store) Stores {
	return Stores{
		Codes:    memstore.NewCodeRepo(s),
		Ledger:   memstore.NewRedemptionRepo(s),
		Accounts: memstore.NewAccountRepo(s),
		Tx:       memstore.NewTxManager(s),
	}
}

func newLimiters(cfg config.RateLimitConfig, client *red.Client, clk clock.Clock) (usecase.Limiters, error) {
	perCode := ratelimit.Policy{MaxFailures: cfg.MaxFailures, Window: cfg.Window, Cooldown: cfg.Cooldown}
	perAccount := ratelimit.Policy{MaxFailures: cfg.AccountMaxFailures, Window: cfg.Window, Cooldown: cfg.Cooldown}

	var build func(ratelimit.Policy) adapter.RateLimiter
	switch cfg.Backend {
	case "memory":
		build = func(p ratelimit.Policy) adapter.RateLimiter { return ratelimit.NewMemory(p, clk) }
	case "redis":
		if client == nil {
			return usecase.Limiters{}, errors.New("redis rate limiter needs redis.url")
		}
		build = func(p ratelimit.Policy) adapter.RateLimiter { return red.NewRateLimiter(client, p) }
	default:
		return usecase.Limiters{}, fmt.Errorf("unsupported rate limit backend %q", cfg.Backend)
	}
	return usecase.Limiters{PerCode: build(perCode), PerAccount: build(perAccount)}, nil
}

// Ready pings every backend.
func (c *Container) Ready(ctx context.Context) error {
	for _, f := range c.ready {
		if err := f(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases backends in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
