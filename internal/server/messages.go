package server

import (
	"LendingAggregator/internal/ledger"
	fpmath "LendingAggregator/internal/math"
	"LendingAggregator/internal/pool"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Amounts, rates and values travel as decimal strings in whole units.

type WorkflowRequest struct {
	Asset          string `json:"asset"`
	UserID         string `json:"user_id"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type Leg struct {
	ProviderID string          `json:"provider_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type Entry struct {
	Sequence   int64           `json:"sequence"`
	EntryID    string          `json:"entry_id"`
	Kind       string          `json:"kind"`
	ProviderID string          `json:"provider_id"`
	Amount     decimal.Decimal `json:"amount"`
	Timestamp  time.Time       `json:"timestamp"`
}

type ReceiptResponse struct {
	RequestKey string          `json:"request_key"`
	Asset      string          `json:"asset"`
	UserID     string          `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	Legs       []Leg           `json:"legs"`
	Entries    []Entry         `json:"entries"`
}

type GetReserveInfoRequest struct {
	Asset string `json:"asset"`
}

type ListReservesRequest struct{}

type ReserveInfoResponse struct {
	Asset                string          `json:"asset"`
	Symbol               string          `json:"symbol"`
	TotalLiquidity       decimal.Decimal `json:"total_liquidity"`
	AvailableLiquidity   decimal.Decimal `json:"available_liquidity"`
	LoanToValue          decimal.Decimal `json:"loan_to_value"`
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"`
	LiquidationBonus     decimal.Decimal `json:"liquidation_bonus"`
	BestDepositRate      decimal.Decimal `json:"best_deposit_rate"`
	BestBorrowRate       decimal.Decimal `json:"best_borrow_rate"`
	TokenID              string          `json:"token_id"`
	Active               bool            `json:"active"`
	Providers            []string        `json:"providers"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type ListReservesResponse struct {
	Reserves []ReserveInfoResponse `json:"reserves"`
}

type GetUserBalanceRequest struct {
	Asset  string `json:"asset"`
	UserID string `json:"user_id"`
}

type UserBalanceResponse struct {
	Asset     string          `json:"asset"`
	UserID    string          `json:"user_id"`
	Deposited decimal.Decimal `json:"deposited"`
	Borrowed  decimal.Decimal `json:"borrowed"`
}

type GetUserAccountRequest struct {
	UserID string `json:"user_id"`
}

type UserAccountResponse struct {
	UserID          string                `json:"user_id"`
	Balances        []UserBalanceResponse `json:"balances"`
	CollateralValue decimal.Decimal       `json:"collateral_value"`
	DebtValue       decimal.Decimal       `json:"debt_value"`
	MaxBorrowValue  decimal.Decimal       `json:"max_borrow_value"`
}

type SetReserveActiveRequest struct {
	Asset  string `json:"asset"`
	Active bool   `json:"active"`
}

type SetReserveActiveResponse struct {
	Asset  string `json:"asset"`
	Active bool   `json:"active"`
}

func amount(v int64) decimal.Decimal {
	return fpmath.ToDecimal(v, fpmath.AmountConfig)
}

func value(v int64) decimal.Decimal {
	return fpmath.ToDecimal(v, fpmath.ValueConfig)
}

func toReceipt(r *pool.Receipt) *ReceiptResponse {
	resp := &ReceiptResponse{
		RequestKey: r.RequestKey,
		Asset:      r.Asset,
		UserID:     r.UserID.String(),
		Amount:     amount(r.Amount),
		Legs:       make([]Leg, 0, len(r.Legs)),
		Entries:    make([]Entry, 0, len(r.Entries)),
	}
	for _, l := range r.Legs {
		resp.Legs = append(resp.Legs, Leg{ProviderID: l.ProviderID, Amount: amount(l.Amount)})
	}
	for _, e := range r.Entries {
		resp.Entries = append(resp.Entries, Entry{
			Sequence:   e.Sequence,
			EntryID:    e.EntryID.String(),
			Kind:       e.Kind.String(),
			ProviderID: e.ProviderID,
			Amount:     amount(e.Amount),
			Timestamp:  e.Timestamp,
		})
	}
	return resp
}

func toReserveInfo(info pool.ReserveInfo) ReserveInfoResponse {
	return ReserveInfoResponse{
		Asset:                info.Asset,
		Symbol:               info.Symbol,
		TotalLiquidity:       amount(info.TotalLiquidity),
		AvailableLiquidity:   amount(info.AvailableLiquidity),
		LoanToValue:          fpmath.FractionToDecimal(info.LoanToValue),
		LiquidationThreshold: fpmath.FractionToDecimal(info.LiquidationThreshold),
		LiquidationBonus:     fpmath.FractionToDecimal(info.LiquidationBonus),
		BestDepositRate:      fpmath.ToDecimal(info.BestDepositRate, fpmath.RateConfig),
		BestBorrowRate:       fpmath.ToDecimal(info.BestBorrowRate, fpmath.RateConfig),
		TokenID:              info.TokenID,
		Active:               info.Active,
		Providers:            info.Providers,
		UpdatedAt:            info.UpdatedAt,
	}
}

func toUserBalance(b ledger.UserBalance) UserBalanceResponse {
	return UserBalanceResponse{
		Asset:     b.Asset,
		UserID:    b.UserID.String(),
		Deposited: amount(b.Deposited),
		Borrowed:  amount(b.Borrowed),
	}
}

func toUserAccount(a pool.UserAccount) *UserAccountResponse {
	resp := &UserAccountResponse{
		UserID:          a.UserID.String(),
		Balances:        make([]UserBalanceResponse, 0, len(a.Balances)),
		CollateralValue: value(a.CollateralValue),
		DebtValue:       value(a.DebtValue),
		MaxBorrowValue:  value(a.MaxBorrowValue),
	}
	for _, b := range a.Balances {
		resp.Balances = append(resp.Balances, toUserBalance(b))
	}
	return resp
}

func parseUser(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
