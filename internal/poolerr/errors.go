// Package poolerr defines the error kinds shared by every layer of the
// aggregator. Callers classify failures with errors.Is; the server maps them
// to transport status codes through Code.
package poolerr

import "errors"

var (
	ErrReserveInactive        = errors.New("reserve inactive")
	ErrReserveNotFound        = errors.New("reserve not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInsufficientLiquidity  = errors.New("insufficient liquidity")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrAdapterFailure         = errors.New("provider adapter failure")
	ErrPriceUnavailable       = errors.New("price unavailable")
	ErrNoProviderAvailable    = errors.New("no provider available")

	ErrDuplicateRequest      = errors.New("duplicate request")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrLedgerInvariant       = errors.New("ledger invariant violated")
	ErrTokenIssuer           = errors.New("derivative token issuer failure")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrReserveInactive, "RESERVE_INACTIVE"},
	{ErrReserveNotFound, "RESERVE_NOT_FOUND"},
	{ErrInvalidAmount, "INVALID_AMOUNT"},
	{ErrInsufficientLiquidity, "INSUFFICIENT_LIQUIDITY"},
	{ErrInsufficientCollateral, "INSUFFICIENT_COLLATERAL"},
	{ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
	{ErrAdapterFailure, "ADAPTER_FAILURE"},
	{ErrPriceUnavailable, "PRICE_UNAVAILABLE"},
	{ErrNoProviderAvailable, "NO_PROVIDER_AVAILABLE"},
	{ErrDuplicateRequest, "DUPLICATE_REQUEST"},
	{ErrInsufficientAllowance, "INSUFFICIENT_ALLOWANCE"},
	{ErrLedgerInvariant, "LEDGER_INVARIANT"},
	{ErrTokenIssuer, "TOKEN_ISSUER"},
}

// Code returns the stable string code of the first known kind err wraps,
// or "INTERNAL" when it matches none.
func Code(err error) string {
	if err == nil {
		return "OK"
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}
