package config

import (
	"LendingAggregator/internal/ledger"
	fpmath "LendingAggregator/internal/math"
	"LendingAggregator/internal/provider"
	"LendingAggregator/internal/risk"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	ProviderMemory = "memory"
	ProviderNATS   = "nats"
)

// Catalogue is the reserves file: the supported reserves, the providers
// serving each one and, for the static feed, asset prices.
type Catalogue struct {
	Reserves []ReserveConfig   `yaml:"reserves"`
	Prices   map[string]string `yaml:"prices"`
}

// ReserveConfig describes one reserve. Ratios are decimals such as "0.75".
type ReserveConfig struct {
	Asset                string           `yaml:"asset"`
	Symbol               string           `yaml:"symbol"`
	TokenID              string           `yaml:"token_id"`
	LoanToValue          string           `yaml:"loan_to_value"`
	LiquidationThreshold string           `yaml:"liquidation_threshold"`
	LiquidationBonus     string           `yaml:"liquidation_bonus"`
	Active               *bool            `yaml:"active"`
	Providers            []ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes one provider of a reserve. Memory providers are
// seeded with rates and liquidity; NATS providers are reached under
// SubjectPrefix.
type ProviderConfig struct {
	ID            string `yaml:"id"`
	Kind          string `yaml:"kind"`
	SubjectPrefix string `yaml:"subject_prefix"`
	LiquidityRate string `yaml:"liquidity_rate"`
	BorrowRate    string `yaml:"borrow_rate"`
	Liquidity     string `yaml:"liquidity"`
}

// LoadCatalogue reads, normalizes and validates the reserves file.
func LoadCatalogue(path string) (Catalogue, error) {
	if path == "" {
		return Catalogue{}, fmt.Errorf("reserves file path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return Catalogue{}, fmt.Errorf("open reserves file: %w", err)
	}
	defer file.Close()

	var cat Catalogue
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cat); err != nil {
		return Catalogue{}, fmt.Errorf("decode reserves file: %w", err)
	}

	cat.normalize()
	if err := cat.validate(); err != nil {
		return Catalogue{}, err
	}
	return cat, nil
}

func (c *Catalogue) normalize() {
	for i := range c.Reserves {
		c.Reserves[i].normalize()
	}
	prices := make(map[string]string, len(c.Prices))
	for asset, p := range c.Prices {
		prices[strings.ToUpper(strings.TrimSpace(asset))] = strings.TrimSpace(p)
	}
	c.Prices = prices
}

func (c Catalogue) validate() error {
	if len(c.Reserves) == 0 {
		return fmt.Errorf("at least one reserve must be configured")
	}
	seen := make(map[string]struct{}, len(c.Reserves))
	for _, rc := range c.Reserves {
		if _, dup := seen[rc.Asset]; dup {
			return fmt.Errorf("reserve %s configured twice", rc.Asset)
		}
		seen[rc.Asset] = struct{}{}
		if err := rc.validate(); err != nil {
			return fmt.Errorf("reserve %s: %w", rc.Asset, err)
		}
	}
	if _, err := c.PriceTable(); err != nil {
		return err
	}
	return nil
}

// PriceTable converts the configured prices into fixed-point.
func (c Catalogue) PriceTable() (map[string]int64, error) {
	out := make(map[string]int64, len(c.Prices))
	for asset, p := range c.Prices {
		v, err := fpmath.ParseDecimal(p, fpmath.PriceConfig)
		if err != nil {
			return nil, fmt.Errorf("price %s: %w", asset, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("price %s must be > 0", asset)
		}
		out[asset] = v
	}
	return out, nil
}

func (rc *ReserveConfig) normalize() {
	rc.Asset = strings.ToUpper(strings.TrimSpace(rc.Asset))
	rc.Symbol = strings.TrimSpace(rc.Symbol)
	if rc.Symbol == "" {
		rc.Symbol = rc.Asset
	}
	rc.TokenID = strings.TrimSpace(rc.TokenID)
	if rc.TokenID == "" && rc.Asset != "" {
		rc.TokenID = "agg" + rc.Asset
	}
	if rc.LiquidationBonus == "" {
		rc.LiquidationBonus = "0"
	}
	for i := range rc.Providers {
		p := &rc.Providers[i]
		p.ID = strings.TrimSpace(p.ID)
		p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
		if p.Kind == "" {
			p.Kind = ProviderMemory
		}
		p.SubjectPrefix = strings.TrimSpace(p.SubjectPrefix)
		if p.Kind == ProviderNATS && p.SubjectPrefix == "" {
			p.SubjectPrefix = "lagg.providers." + p.ID
		}
	}
}

func (rc ReserveConfig) validate() error {
	if rc.Asset == "" {
		return fmt.Errorf("asset is required")
	}
	if _, err := rc.Reserve(); err != nil {
		return err
	}

	ids := make(map[string]struct{}, len(rc.Providers))
	for _, p := range rc.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider id is required")
		}
		if _, dup := ids[p.ID]; dup {
			return fmt.Errorf("provider %s listed twice", p.ID)
		}
		ids[p.ID] = struct{}{}

		switch p.Kind {
		case ProviderMemory:
			if _, err := p.Rates(); err != nil {
				return fmt.Errorf("provider %s: %w", p.ID, err)
			}
		case ProviderNATS:
		default:
			return fmt.Errorf("provider %s: kind must be %q or %q, got %q", p.ID, ProviderMemory, ProviderNATS, p.Kind)
		}
	}
	return nil
}

// Reserve converts the configuration into a fresh ledger reserve.
func (rc ReserveConfig) Reserve() (ledger.Reserve, error) {
	ltv, err := fraction("loan_to_value", rc.LoanToValue)
	if err != nil {
		return ledger.Reserve{}, err
	}
	threshold, err := fraction("liquidation_threshold", rc.LiquidationThreshold)
	if err != nil {
		return ledger.Reserve{}, err
	}
	bonus, err := fraction("liquidation_bonus", rc.LiquidationBonus)
	if err != nil {
		return ledger.Reserve{}, err
	}

	active := true
	if rc.Active != nil {
		active = *rc.Active
	}
	r := ledger.Reserve{
		Asset:                rc.Asset,
		Symbol:               rc.Symbol,
		LoanToValue:          ltv,
		LiquidationThreshold: threshold,
		LiquidationBonus:     bonus,
		TokenID:              rc.TokenID,
		Active:               active,
	}
	if err := risk.ValidateReserveParams(r); err != nil {
		return ledger.Reserve{}, err
	}
	return r, nil
}

// Rates converts a memory provider's seed quote into fixed-point.
func (p ProviderConfig) Rates() (provider.Rates, error) {
	var (
		rates provider.Rates
		err   error
	)
	if rates.LiquidityRate, err = optional(p.LiquidityRate, fpmath.RateConfig); err != nil {
		return provider.Rates{}, fmt.Errorf("liquidity_rate: %w", err)
	}
	if rates.BorrowRate, err = optional(p.BorrowRate, fpmath.RateConfig); err != nil {
		return provider.Rates{}, fmt.Errorf("borrow_rate: %w", err)
	}
	if rates.AvailableLiquidity, err = optional(p.Liquidity, fpmath.AmountConfig); err != nil {
		return provider.Rates{}, fmt.Errorf("liquidity: %w", err)
	}
	if rates.AvailableLiquidity < 0 {
		return provider.Rates{}, fmt.Errorf("liquidity must be >= 0")
	}
	return rates, nil
}

func fraction(field, s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	v, err := fpmath.FractionFromDecimal(d)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func optional(s string, cfg fpmath.DecimalConfig) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return fpmath.ParseDecimal(s, cfg)
}
