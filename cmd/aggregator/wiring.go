package main

import (
	"LendingAggregator/internal/config"
	"LendingAggregator/internal/custody"
	"LendingAggregator/internal/ledger"
	fpmath "LendingAggregator/internal/math"
	"LendingAggregator/internal/pool"
	"LendingAggregator/internal/poolerr"
	"LendingAggregator/internal/pricefeed"
	"LendingAggregator/internal/provider"
	"LendingAggregator/internal/risk"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

func newPriceFeed(ctx context.Context, cfg config.Config, cat config.Catalogue) (risk.PriceFeed, func(), error) {
	if cfg.PriceFeedKind == config.PriceFeedRedis {
		client, err := pricefeed.Connect(ctx, &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Printf("INFO: Redis price feed connected (%s)", cfg.RedisAddr)
		return pricefeed.NewRedisFeed(client, cfg.PriceKeyPrefix), func() { client.Close() }, nil
	}

	table, err := cat.PriceTable()
	if err != nil {
		return nil, nil, err
	}
	return pricefeed.NewStaticFeed(table), func() {}, nil
}

// newRegistry registers every configured provider with its reserve. A
// provider id listed under several reserves is one pool serving each.
func newRegistry(cat config.Catalogue, nc *nats.Conn, vault *custody.MemoryVault, timeout time.Duration) (*provider.Registry, error) {
	registry := provider.NewRegistry()
	memory := make(map[string]*provider.MemoryPool)
	remote := make(map[string]*provider.NATSPool)

	for _, rc := range cat.Reserves {
		for _, pc := range rc.Providers {
			var adapter provider.Adapter
			switch pc.Kind {
			case config.ProviderNATS:
				if nc == nil {
					return nil, fmt.Errorf("provider %s needs LAGG_NATS_URL", pc.ID)
				}
				p, ok := remote[pc.ID]
				if !ok {
					p = provider.NewNATSPool(pc.ID, pc.SubjectPrefix, nc, timeout)
					remote[pc.ID] = p
				}
				adapter = p
			default:
				p, ok := memory[pc.ID]
				if !ok {
					p = provider.NewMemoryPool(pc.ID).WithPayout(vault.Credit).WithFunding(vault.Release)
					memory[pc.ID] = p
				}
				rates, err := pc.Rates()
				if err != nil {
					return nil, fmt.Errorf("provider %s: %w", pc.ID, err)
				}
				p.SetReserve(rc.Asset, rates)
				adapter = p
			}
			if err := registry.Register(rc.Asset, adapter); err != nil {
				return nil, err
			}
		}
	}
	return registry, nil
}

// createReserves registers configured reserves that the ledger does not
// know yet. Existing reserves keep their stored state.
func createReserves(ctx context.Context, orch *pool.Orchestrator, store ledger.Store, cat config.Catalogue) error {
	for _, rc := range cat.Reserves {
		if _, err := store.QueryReserve(ctx, rc.Asset); err == nil {
			log.Printf("INFO: reserve %s already in ledger", rc.Asset)
			continue
		} else if !errors.Is(err, poolerr.ErrReserveNotFound) {
			return err
		}

		r, err := rc.Reserve()
		if err != nil {
			return fmt.Errorf("%s: %w", rc.Asset, err)
		}
		if err := orch.CreateReserve(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func parseTolerance(s string) (int64, error) {
	return fpmath.ParseDecimal(s, fpmath.AmountConfig)
}

func custodyVault(cfg config.Config, vault *custody.MemoryVault) custody.Vault {
	if cfg.DevFaucet {
		log.Println("WARN: dev faucet enabled, custody pulls are funded automatically")
		return custody.NewFaucet(vault)
	}
	return vault
}
