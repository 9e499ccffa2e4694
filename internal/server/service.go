package server

import (
	"LendingAggregator/internal/ledger"
	fpmath "LendingAggregator/internal/math"
	"LendingAggregator/internal/observability"
	"LendingAggregator/internal/pool"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const serviceName = "lendingaggregator.v1.PoolService"

// Pool is the part of the orchestrator the service exposes.
type Pool interface {
	Deposit(ctx context.Context, req pool.Request) (*pool.Receipt, error)
	Borrow(ctx context.Context, req pool.Request) (*pool.Receipt, error)
	RedeemUnderlying(ctx context.Context, req pool.Request) (*pool.Receipt, error)
	Repay(ctx context.Context, req pool.Request) (*pool.Receipt, error)
	GetReserveInfo(ctx context.Context, asset string) (pool.ReserveInfo, error)
	ListReserves(ctx context.Context) ([]pool.ReserveInfo, error)
	GetUserBalance(ctx context.Context, asset string, userID uuid.UUID) (ledger.UserBalance, error)
	GetUserAccount(ctx context.Context, userID uuid.UUID) (pool.UserAccount, error)
	SetReserveActive(ctx context.Context, asset string, active bool) error
}

// PoolServiceServer is the server API of lendingaggregator.v1.PoolService.
type PoolServiceServer interface {
	Deposit(context.Context, *WorkflowRequest) (*ReceiptResponse, error)
	Borrow(context.Context, *WorkflowRequest) (*ReceiptResponse, error)
	RedeemUnderlying(context.Context, *WorkflowRequest) (*ReceiptResponse, error)
	Repay(context.Context, *WorkflowRequest) (*ReceiptResponse, error)
	GetReserveInfo(context.Context, *GetReserveInfoRequest) (*ReserveInfoResponse, error)
	ListReserves(context.Context, *ListReservesRequest) (*ListReservesResponse, error)
	GetUserBalance(context.Context, *GetUserBalanceRequest) (*UserBalanceResponse, error)
	GetUserAccount(context.Context, *GetUserAccountRequest) (*UserAccountResponse, error)
	SetReserveActive(context.Context, *SetReserveActiveRequest) (*SetReserveActiveResponse, error)
}

// PoolService implements PoolServiceServer over a Pool. Every method returns
// gRPC status errors; the HTTP gateway calls the same methods.
type PoolService struct {
	pool    Pool
	metrics *observability.Metrics
}

func NewPoolService(p Pool, metrics *observability.Metrics) *PoolService {
	return &PoolService{pool: p, metrics: metrics}
}

func (s *PoolService) observe(method string, start time.Time, err error) {
	s.metrics.QueryRequests.WithLabelValues(method, status.Code(err).String()).Inc()
	s.metrics.QueryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (s *PoolService) workflow(ctx context.Context, in *WorkflowRequest,
	run func(context.Context, pool.Request) (*pool.Receipt, error)) (*ReceiptResponse, error) {
	userID, err := parseUser(in.UserID)
	if err != nil {
		return nil, invalidArgument("user_id", err)
	}
	if in.Amount == "" {
		return nil, invalidArgument("amount", errors.New("required"))
	}
	amt, err := fpmath.ParseDecimal(in.Amount, fpmath.AmountConfig)
	if err != nil {
		return nil, invalidArgument("amount", err)
	}

	receipt, err := run(ctx, pool.Request{
		Asset:          in.Asset,
		UserID:         userID,
		Amount:         amt,
		IdempotencyKey: in.IdempotencyKey,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toReceipt(receipt), nil
}

func (s *PoolService) Deposit(ctx context.Context, in *WorkflowRequest) (resp *ReceiptResponse, err error) {
	defer func(start time.Time) { s.observe("Deposit", start, err) }(time.Now())
	return s.workflow(ctx, in, s.pool.Deposit)
}

func (s *PoolService) Borrow(ctx context.Context, in *WorkflowRequest) (resp *ReceiptResponse, err error) {
	defer func(start time.Time) { s.observe("Borrow", start, err) }(time.Now())
	return s.workflow(ctx, in, s.pool.Borrow)
}

func (s *PoolService) RedeemUnderlying(ctx context.Context, in *WorkflowRequest) (resp *ReceiptResponse, err error) {
	defer func(start time.Time) { s.observe("RedeemUnderlying", start, err) }(time.Now())
	return s.workflow(ctx, in, s.pool.RedeemUnderlying)
}

func (s *PoolService) Repay(ctx context.Context, in *WorkflowRequest) (resp *ReceiptResponse, err error) {
	defer func(start time.Time) { s.observe("Repay", start, err) }(time.Now())
	return s.workflow(ctx, in, s.pool.Repay)
}

func (s *PoolService) GetReserveInfo(ctx context.Context, in *GetReserveInfoRequest) (resp *ReserveInfoResponse, err error) {
	defer func(start time.Time) { s.observe("GetReserveInfo", start, err) }(time.Now())

	info, err := s.pool.GetReserveInfo(ctx, in.Asset)
	if err != nil {
		return nil, toStatus(err)
	}
	out := toReserveInfo(info)
	return &out, nil
}

func (s *PoolService) ListReserves(ctx context.Context, _ *ListReservesRequest) (resp *ListReservesResponse, err error) {
	defer func(start time.Time) { s.observe("ListReserves", start, err) }(time.Now())

	infos, err := s.pool.ListReserves(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	resp = &ListReservesResponse{Reserves: make([]ReserveInfoResponse, 0, len(infos))}
	for _, info := range infos {
		resp.Reserves = append(resp.Reserves, toReserveInfo(info))
	}
	return resp, nil
}

func (s *PoolService) GetUserBalance(ctx context.Context, in *GetUserBalanceRequest) (resp *UserBalanceResponse, err error) {
	defer func(start time.Time) { s.observe("GetUserBalance", start, err) }(time.Now())

	userID, err := parseUser(in.UserID)
	if err != nil {
		return nil, invalidArgument("user_id", err)
	}
	b, err := s.pool.GetUserBalance(ctx, in.Asset, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := toUserBalance(b)
	return &out, nil
}

func (s *PoolService) GetUserAccount(ctx context.Context, in *GetUserAccountRequest) (resp *UserAccountResponse, err error) {
	defer func(start time.Time) { s.observe("GetUserAccount", start, err) }(time.Now())

	userID, err := parseUser(in.UserID)
	if err != nil {
		return nil, invalidArgument("user_id", err)
	}
	acct, err := s.pool.GetUserAccount(ctx, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toUserAccount(acct), nil
}

func (s *PoolService) SetReserveActive(ctx context.Context, in *SetReserveActiveRequest) (resp *SetReserveActiveResponse, err error) {
	defer func(start time.Time) { s.observe("SetReserveActive", start, err) }(time.Now())

	if err := s.pool.SetReserveActive(ctx, in.Asset, in.Active); err != nil {
		return nil, toStatus(err)
	}
	return &SetReserveActiveResponse{Asset: in.Asset, Active: in.Active}, nil
}

// ============================================================================
// Service descriptor
// ============================================================================

func unaryHandler[Req, Resp any](method string, call func(PoolServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PoolServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + serviceName + "/" + method,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(PoolServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// PoolServiceDesc describes lendingaggregator.v1.PoolService.
var PoolServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PoolServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Deposit", PoolServiceServer.Deposit),
		unaryHandler("Borrow", PoolServiceServer.Borrow),
		unaryHandler("RedeemUnderlying", PoolServiceServer.RedeemUnderlying),
		unaryHandler("Repay", PoolServiceServer.Repay),
		unaryHandler("GetReserveInfo", PoolServiceServer.GetReserveInfo),
		unaryHandler("ListReserves", PoolServiceServer.ListReserves),
		unaryHandler("GetUserBalance", PoolServiceServer.GetUserBalance),
		unaryHandler("GetUserAccount", PoolServiceServer.GetUserAccount),
		unaryHandler("SetReserveActive", PoolServiceServer.SetReserveActive),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lendingaggregator/v1/pool.proto",
}

// RegisterPoolServiceServer registers srv on s.
func RegisterPoolServiceServer(s grpc.ServiceRegistrar, srv PoolServiceServer) {
	s.RegisterService(&PoolServiceDesc, srv)
}

// ============================================================================
// Client
// ============================================================================

// PoolServiceClient calls lendingaggregator.v1.PoolService with the JSON codec.
type PoolServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewPoolServiceClient(cc grpc.ClientConnInterface) *PoolServiceClient {
	return &PoolServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *PoolServiceClient, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PoolServiceClient) Deposit(ctx context.Context, in *WorkflowRequest, opts ...grpc.CallOption) (*ReceiptResponse, error) {
	return invoke[ReceiptResponse](ctx, c, "Deposit", in, opts)
}

func (c *PoolServiceClient) Borrow(ctx context.Context, in *WorkflowRequest, opts ...grpc.CallOption) (*ReceiptResponse, error) {
	return invoke[ReceiptResponse](ctx, c, "Borrow", in, opts)
}

func (c *PoolServiceClient) RedeemUnderlying(ctx context.Context, in *WorkflowRequest, opts ...grpc.CallOption) (*ReceiptResponse, error) {
	return invoke[ReceiptResponse](ctx, c, "RedeemUnderlying", in, opts)
}

func (c *PoolServiceClient) Repay(ctx context.Context, in *WorkflowRequest, opts ...grpc.CallOption) (*ReceiptResponse, error) {
	return invoke[ReceiptResponse](ctx, c, "Repay", in, opts)
}

func (c *PoolServiceClient) GetReserveInfo(ctx context.Context, in *GetReserveInfoRequest, opts ...grpc.CallOption) (*ReserveInfoResponse, error) {
	return invoke[ReserveInfoResponse](ctx, c, "GetReserveInfo", in, opts)
}

func (c *PoolServiceClient) ListReserves(ctx context.Context, in *ListReservesRequest, opts ...grpc.CallOption) (*ListReservesResponse, error) {
	return invoke[ListReservesResponse](ctx, c, "ListReserves", in, opts)
}

func (c *PoolServiceClient) GetUserBalance(ctx context.Context, in *GetUserBalanceRequest, opts ...grpc.CallOption) (*UserBalanceResponse, error) {
	return invoke[UserBalanceResponse](ctx, c, "GetUserBalance", in, opts)
}

func (c *PoolServiceClient) GetUserAccount(ctx context.Context, in *GetUserAccountRequest, opts ...grpc.CallOption) (*UserAccountResponse, error) {
	return invoke[UserAccountResponse](ctx, c, "GetUserAccount", in, opts)
}

func (c *PoolServiceClient) SetReserveActive(ctx context.Context, in *SetReserveActiveRequest, opts ...grpc.CallOption) (*SetReserveActiveResponse, error) {
	return invoke[SetReserveActiveResponse](ctx, c, "SetReserveActive", in, opts)
}
