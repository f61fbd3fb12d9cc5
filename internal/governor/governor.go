// Package governor is the credit and rate governor: per-tier credit
// accounting with atomic check-and-decrement, and a sliding-window rate
// limit per endpoint and tier. It uses a dedicated Redis client (distinct
// from the analysis cache's) so governor traffic never contends with
// cache traffic on the same connection pool.
package governor

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"

	"github.com/hannah-ric/esg-scraper/internal/apperr"
)

// Tier names a subscription level.
type Tier string

const (
	TierAnonymous  Tier = "anonymous"
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierGrowth     Tier = "growth"
	TierEnterprise Tier = "enterprise"
)

// Endpoint names a rate-limited operation.
type Endpoint string

const (
	EndpointAnalyze     Endpoint = "analyze"
	EndpointCompare     Endpoint = "compare"
	EndpointExportDaily Endpoint = "export_daily"
)

// limits maps endpoint -> tier -> requests allowed per window.
var limits = map[Endpoint]map[Tier]int{
	EndpointAnalyze: {
		TierAnonymous: 5, TierFree: 20, TierStarter: 100, TierGrowth: 500, TierEnterprise: 2000,
	},
	EndpointCompare: {
		TierAnonymous: 5, TierFree: 10, TierStarter: 50, TierGrowth: 200, TierEnterprise: 1000,
	},
	EndpointExportDaily: {
		TierAnonymous: 1, TierFree: 5, TierStarter: 20, TierGrowth: 100, TierEnterprise: 1000,
	},
}

var windowFor = map[Endpoint]time.Duration{
	EndpointAnalyze:     time.Hour,
	EndpointCompare:     time.Hour,
	EndpointExportDaily: 24 * time.Hour,
}

// CacheHitCost is what a cached analyze call debits regardless of the
// request's own cost policy: the hit is metered, not priced.
const CacheHitCost = 1

// Governor enforces credit balances and sliding-window rate limits.
type Governor struct {
	client *redis.Client

	mu       sync.Mutex
	fallback map[string]*rate.Limiter
}

func New(addr string) *Governor {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &Governor{client: client, fallback: make(map[string]*rate.Limiter)}
}

// CheckRate enforces the sliding-window limit for (endpoint, tier, subject)
// using a Redis sorted set keyed by subject: each call adds a timestamped
// member and trims entries older than the window before counting.
func (g *Governor) CheckRate(ctx context.Context, endpoint Endpoint, tier Tier, subjectID string) error {
	limit, ok := limits[endpoint][tier]
	if !ok {
		limit = limits[endpoint][TierFree]
	}
	window := windowFor[endpoint]
	key := fmt.Sprintf("ratelimit:%s:%s:%s", endpoint, tier, subjectID)

	count, member, err := g.slidingWindowCount(ctx, key, window)
	if err != nil {
		return g.fallbackAllow(key, limit, window)
	}

	if count > int64(limit) {
		// The rejected request must not occupy a window slot, or a burst of
		// rejections would extend the lockout indefinitely.
		g.client.ZRem(ctx, key, member)
		return apperr.RateLimited(string(tier), limit, g.retryAfter(ctx, key, window))
	}
	return nil
}

// slidingWindowCount trims entries older than the window, records the
// current request and returns how many requests now occupy the window,
// along with the member just added so a rejection can remove it again.
func (g *Governor) slidingWindowCount(ctx context.Context, key string, window time.Duration) (int64, interface{}, error) {
	now := time.Now()
	cutoff := now.Add(-window).UnixNano()
	member := now.UnixNano()

	pipe := g.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff))
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(member), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, member, err
	}
	return card.Val(), member, nil
}

// retryAfter reports the seconds until the oldest counted request ages out
// of the window, falling back to the full window when the set is empty or
// unreadable.
func (g *Governor) retryAfter(ctx context.Context, key string, window time.Duration) int {
	oldest, err := g.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return int(window.Seconds())
	}
	until := time.Until(time.Unix(0, int64(oldest[0].Score)).Add(window))
	if until < time.Second {
		return 1
	}
	return int(until.Seconds())
}

// fallbackAllow degrades to an in-memory token bucket when Redis is
// unreachable, so the governor still bounds request rate best-effort
// when the backend is down (fail open on rate, fail closed on credits).
func (g *Governor) fallbackAllow(key string, limit int, window time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	limiter, ok := g.fallback[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
		g.fallback[key] = limiter
	}
	if !limiter.Allow() {
		return apperr.RateLimited("fallback", limit, int(window.Seconds()))
	}
	return nil
}

// maxCreditTxRetries bounds the standard go-redis optimistic-lock retry
// loop around WATCH/MULTI/EXEC: a TxFailedErr means another debit on the
// same key committed between our GET and EXEC, so the balance must be
// re-read and re-checked, not surfaced as a dependency failure.
const maxCreditTxRetries = 10

// CheckAndDebitCredits atomically verifies the subject has at least cost
// credits available and decrements by cost, using a WATCH/MULTI/EXEC Redis
// transaction so concurrent callers never both succeed on the last
// credit. cost is the caller's policy-determined price. It returns the
// balance remaining after the debit.
func (g *Governor) CheckAndDebitCredits(ctx context.Context, tier Tier, subjectID string, cost int) (int, error) {
	if tier == TierAnonymous {
		return 0, nil // anonymous tier has no persisted balance.
	}

	key := fmt.Sprintf("credits:%s", subjectID)
	var remaining int

	txf := func(tx *redis.Tx) error {
		balance, err := tx.Get(ctx, key).Int()
		if err != nil && err != redis.Nil {
			return err
		}
		if balance < cost {
			return apperr.InsufficientCredits("insufficient credits for this operation")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.DecrBy(ctx, key, int64(cost))
			return nil
		})
		remaining = balance - cost
		return err
	}

	for i := 0; i < maxCreditTxRetries; i++ {
		err := g.client.Watch(ctx, txf, key)
		if err == nil {
			return remaining, nil
		}
		if err == redis.TxFailedErr {
			// Optimistic lock lost to a concurrent debit on the same key;
			// retry with a fresh GET rather than failing the request.
			continue
		}
		if ae, ok := apperr.As(err); ok {
			return 0, ae
		}
		return 0, apperr.Dependency("credit governor unavailable", err)
	}
	return 0, apperr.Dependency("credit governor unavailable", redis.TxFailedErr)
}

// RefundCredits reverses a prior debit by cost, used both by the
// orchestrator's compensation path when an analysis fails after credits
// were already debited, and by the cache-hit path that refunds the
// difference between the provisional full cost and the cache-hit cost.
// It returns the balance remaining after the refund.
func (g *Governor) RefundCredits(ctx context.Context, tier Tier, subjectID string, cost int) (int, error) {
	if tier == TierAnonymous {
		return 0, nil
	}
	key := fmt.Sprintf("credits:%s", subjectID)
	v, err := g.client.IncrBy(ctx, key, int64(cost)).Result()
	if err != nil {
		return 0, apperr.Dependency("credit refund failed", err)
	}
	return int(v), nil
}

// SetInitialBalance seeds a new subject's credit balance; the free tier
// default comes from config.CreditConfig.FreeTierCredits.
func (g *Governor) SetInitialBalance(ctx context.Context, subjectID string, credits int) error {
	key := fmt.Sprintf("credits:%s", subjectID)
	return g.client.SetNX(ctx, key, credits, 0).Err()
}

// Balance returns the subject's current credit balance.
func (g *Governor) Balance(ctx context.Context, subjectID string) (int, error) {
	key := fmt.Sprintf("credits:%s", subjectID)
	v, err := g.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// Usage reports a subject's current sliding-window usage for an
// endpoint: how many calls count within the active window,
// the tier's limit, and when the oldest counted call ages out of the
// window. Best-effort: a Redis error reports zero usage rather than
// failing the request, matching the governor's fail-open rate-limit
// posture.
func (g *Governor) Usage(ctx context.Context, endpoint Endpoint, tier Tier, subjectID string) (used, limit int, resetAt time.Time) {
	limit, ok := limits[endpoint][tier]
	if !ok {
		limit = limits[endpoint][TierFree]
	}
	window := windowFor[endpoint]
	key := fmt.Sprintf("ratelimit:%s:%s:%s", endpoint, tier, subjectID)

	now := time.Now()
	cutoff := now.Add(-window).UnixNano()
	g.client.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff))
	count, err := g.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, limit, now.Add(window)
	}

	oldest, err := g.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	reset := now.Add(window)
	if err == nil && len(oldest) > 0 {
		reset = time.Unix(0, int64(oldest[0].Score)).Add(window)
	}
	return int(count), limit, reset
}

// Close releases the underlying Redis connection.
func (g *Governor) Close() error {
	return g.client.Close()
}
