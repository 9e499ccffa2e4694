// Package pricefeed provides risk.PriceFeed implementations.
package pricefeed

import (
	"LendingAggregator/internal/poolerr"
	"context"
	"fmt"
	"sync"
)

// StaticFeed serves prices set from configuration or by tests.
type StaticFeed struct {
	mu     sync.RWMutex
	prices map[string]int64
}

func NewStaticFeed(prices map[string]int64) *StaticFeed {
	f := &StaticFeed{prices: make(map[string]int64, len(prices))}
	for asset, p := range prices {
		f.prices[asset] = p
	}
	return f
}

// Set replaces the price of asset.
func (f *StaticFeed) Set(asset string, price int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[asset] = price
}

// Delete removes the price of asset.
func (f *StaticFeed) Delete(asset string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.prices, asset)
}

func (f *StaticFeed) Price(_ context.Context, asset string) (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p, ok := f.prices[asset]
	if !ok {
		return 0, fmt.Errorf("%w: no static price for %s", poolerr.ErrPriceUnavailable, asset)
	}
	return p, nil
}
