package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-b2b/internal/common"
)

// FixedWindow adapts a ulule limiter store to Allower. Counters reset at the
// end of each window instead of sliding.
type FixedWindow struct {
	Store limiter.Store
}

func (f FixedWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (Decision, error) {
	lc, err := f.Store.Get(ctx, key, limiter.Rate{Period: window, Limit: int64(max)})
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !lc.Reached,
		Limit:     int(lc.Limit),
		Remaining: int(lc.Remaining),
		ResetAt:   time.Unix(lc.Reset, 0),
	}, nil
}

// NewGlobal builds a per-client-IP fixed window limit for the whole API.
// rate uses ulule's "<limit>-<period>" format, e.g. "600-M".
func NewGlobal(client redis.UniversalClient, rate, prefix string, onError func(error)) (Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return Handler{}, fmt.Errorf("ratelimit: global rate %q: %w", rate, err)
	}
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return Handler{}, err
	}
	return Handler{
		Limiter: FixedWindow{Store: store},
		Config:  Config{Key: IPKey("global"), Window: parsed.Period, Max: int(parsed.Limit)},
		OnError: onError,
	}, nil
}

// IPKey keys limits by client address.
func IPKey(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":ip:" + common.ClientIP(r)
	}
}
