package server

import (
	"LendingAggregator/internal/pool"
	"LendingAggregator/internal/poolerr"
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var grpcCodes = map[string]codes.Code{
	"INVALID_AMOUNT":          codes.InvalidArgument,
	"RESERVE_NOT_FOUND":       codes.NotFound,
	"RESERVE_INACTIVE":        codes.FailedPrecondition,
	"INSUFFICIENT_LIQUIDITY":  codes.FailedPrecondition,
	"INSUFFICIENT_COLLATERAL": codes.FailedPrecondition,
	"INSUFFICIENT_BALANCE":    codes.FailedPrecondition,
	"INSUFFICIENT_ALLOWANCE":  codes.FailedPrecondition,
	"DUPLICATE_REQUEST":       codes.AlreadyExists,
	"ADAPTER_FAILURE":         codes.Unavailable,
	"PRICE_UNAVAILABLE":       codes.Unavailable,
	"NO_PROVIDER_AVAILABLE":   codes.Unavailable,
	"TOKEN_ISSUER":            codes.Unavailable,
	"LEDGER_INVARIANT":        codes.Internal,
}

// toStatus converts a workflow or query error into a gRPC status error.
// The message is prefixed with the stable poolerr code.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	code := poolerr.Code(err)
	if _, partial := pool.IsPartialDelivery(err); partial {
		// Some legs were committed; the caller must not blindly retry.
		return status.Errorf(codes.Aborted, "%s: %v", code, err)
	}
	grpcCode, ok := grpcCodes[code]
	if !ok {
		grpcCode = codes.Internal
	}
	return status.Errorf(grpcCode, "%s: %v", code, err)
}

func invalidArgument(field string, err error) error {
	return status.Errorf(codes.InvalidArgument, "INVALID_ARGUMENT: %s: %v", field, err)
}
