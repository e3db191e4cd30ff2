package redis

import (
	"context"

	"github.com/go-redis/redis/v8"

	"entitlement-service/internal/domain/ports/adapter"
	"entitlement-service/internal/infra/ratelimit"
)

// RateLimiter is the shared-deployment variant of ratelimit.Memory: same policy,
// state kept in redis so every replica sees the same counters.
type RateLimiter struct {
	client *Client
	policy ratelimit.Policy
}

var _ adapter.RateLimiter = (*RateLimiter)(nil)

func NewRateLimiter(client *Client, p ratelimit.Policy) *RateLimiter {
	return &RateLimiter{client: client, policy: p.WithDefaults()}
}

func (r *RateLimiter) Check(ctx context.Context, key string) (adapter.Decision, error) {
	ttl, err := r.client.PTTL(ctx, BlockKey(key))
	if err != nil {
		return adapter.Decision{}, err
	}
	if ttl > 0 {
		return adapter.Decision{Allowed: false, RetryAfter: ttl}, nil
	}
	return adapter.Decision{Allowed: true}, nil
}

// luaRecordFailure bumps the failure counter and converts it into a block key
// once it reaches the limit, atomically. The counter expires one window after
// the latest failure.
var luaRecordFailure = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[1])
if n >= tonumber(ARGV[2]) then
	redis.call("SET", KEYS[2], "1", "PX", ARGV[3])
	redis.call("DEL", KEYS[1])
end
return n`)

func (r *RateLimiter) Record(ctx context.Context, key string, outcome adapter.Outcome) error {
	if outcome == adapter.OutcomeSuccess {
		return r.client.Del(ctx, FailureKey(key))
	}
	return luaRecordFailure.Run(ctx, r.client.cli,
		[]string{FailureKey(key), BlockKey(key)},
		r.policy.Window.Milliseconds(), r.policy.MaxFailures, r.policy.Cooldown.Milliseconds(),
	).Err()
}

func FailureKey(key string) string { return "rate_limit:fail:" + key }

func BlockKey(key string) string { return "rate_limit:block:" + key }
