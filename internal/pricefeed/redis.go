package pricefeed

import (
	fpmath "LendingAggregator/internal/math"
	"LendingAggregator/internal/poolerr"
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is prepended to the asset to form the price key.
const DefaultKeyPrefix = "lagg:price:"

// RedisFeed reads prices written by an external oracle relay as decimal
// strings under {prefix}{asset}.
type RedisFeed struct {
	client redis.Cmdable
	prefix string
}

func NewRedisFeed(client redis.Cmdable, prefix string) *RedisFeed {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisFeed{client: client, prefix: prefix}
}

// Connect opens a client and verifies it with PING.
func Connect(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

// Ping verifies the Redis connection. Used as a readiness check.
func (f *RedisFeed) Ping(ctx context.Context) error {
	if err := f.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (f *RedisFeed) Price(ctx context.Context, asset string) (int64, error) {
	raw, err := f.client.Get(ctx, f.prefix+asset).Result()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: no price for %s", poolerr.ErrPriceUnavailable, asset)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read price of %s: %v", poolerr.ErrPriceUnavailable, asset, err)
	}

	price, err := fpmath.ParseDecimal(raw, fpmath.PriceConfig)
	if err != nil {
		return 0, fmt.Errorf("%w: price of %s: %v", poolerr.ErrPriceUnavailable, asset, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: non-positive price %s for %s", poolerr.ErrPriceUnavailable, raw, asset)
	}
	return price, nil
}
