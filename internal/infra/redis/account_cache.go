package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
	"entitlement-service/internal/infra/metrics"
)

var _ repository.AccountRepository = (*accountRepoCacheDecorator)(nil)

const defaultAccountTTL = 10 * time.Minute

// accountRepoCacheDecorator caches FindByID lookups. Codes are never cached:
// a stale current_uses would only make the commit CAS fail again.
type accountRepoCacheDecorator struct {
	inner  repository.AccountRepository
	cache  RedisClient
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewAccountRepoCacheDecorator(inner repository.AccountRepository, cache RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.AccountRepository {
	if ttl <= 0 {
		ttl = defaultAccountTTL
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &accountRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func accountKey(id string) string { return "account:id:" + id }

// Writes invalidate before and after the inner call so a concurrent reader
// cannot repopulate the entry with the pre-grant roles.
func (d *accountRepoCacheDecorator) GrantRole(ctx context.Context, tx repository.Tx, accountID, role string) error {
	d.invalidate(ctx, accountID)
	if err := d.inner.GrantRole(ctx, tx, accountID, role); err != nil {
		return err
	}
	d.invalidate(ctx, accountID)
	return nil
}

func (d *accountRepoCacheDecorator) GrantSubscription(ctx context.Context, tx repository.Tx, g *model.SubscriptionGrant) error {
	d.invalidate(ctx, g.AccountID)
	if err := d.inner.GrantSubscription(ctx, tx, g); err != nil {
		return err
	}
	d.invalidate(ctx, g.AccountID)
	return nil
}

func (d *accountRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, accountID string) (*model.Account, error) {
	// reads inside a transaction must see the transaction's own writes
	if tx != nil {
		metrics.IncCacheRequest("account", "bypass")
		return d.inner.FindByID(ctx, tx, accountID)
	}

	key := accountKey(accountID)
	val, err := d.cache.Get(ctx, key)
	switch {
	case err == nil:
		var acc model.Account
		if json.Unmarshal([]byte(val), &acc) == nil {
			metrics.IncCacheRequest("account", "hit")
			return &acc, nil
		}
	case !errors.Is(err, redis.Nil):
		metrics.IncCacheRequest("account", "error")
		d.logger.Warn().Err(err).Str("key", key).Msg("account cache read failed")
	}

	metrics.IncCacheRequest("account", "miss")
	acc, err := d.inner.FindByID(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(acc); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.logger.Warn().Err(err).Str("key", key).Msg("account cache write failed")
		}
	}
	return acc, nil
}

// ListSubscriptions is a pass-through; grants carry expiry instants that a
// cached copy would have to re-evaluate anyway.
func (d *accountRepoCacheDecorator) ListSubscriptions(ctx context.Context, tx repository.Tx, accountID string) ([]*model.SubscriptionGrant, error) {
	return d.inner.ListSubscriptions(ctx, tx, accountID)
}

func (d *accountRepoCacheDecorator) invalidate(ctx context.Context, accountID string) {
	if err := d.cache.Del(ctx, accountKey(accountID)); err != nil {
		d.logger.Warn().Err(err).Str("account_id", accountID).Msg("account cache invalidation failed")
	}
}
