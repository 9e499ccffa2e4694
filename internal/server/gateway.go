package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorBody is the HTTP error payload.
type errorBody struct {
	Code    int32  `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewGateway returns a grpc-gateway mux serving the pool service as
// HTTP/JSON. Handlers call svc in process; errors map through the same
// gRPC status codes the gRPC server returns.
func NewGateway(svc PoolServiceServer) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux(
		runtime.WithMarshalerOption(runtime.MIMEWildcard, &runtime.JSONBuiltin{}),
		runtime.WithErrorHandler(writeError),
	)

	workflows := map[string]func(context.Context, *WorkflowRequest) (*ReceiptResponse, error){
		"deposit": svc.Deposit,
		"borrow":  svc.Borrow,
		"redeem":  svc.RedeemUnderlying,
		"repay":   svc.Repay,
	}
	for name, call := range workflows {
		err := mux.HandlePath(http.MethodPost, "/v1/reserves/{asset}/"+name,
			func(w http.ResponseWriter, r *http.Request, params map[string]string) {
				var in WorkflowRequest
				if !decode(mux, w, r, &in) {
					return
				}
				in.Asset = params["asset"]
				resp, err := call(r.Context(), &in)
				respond(mux, w, r, resp, err)
			})
		if err != nil {
			return nil, fmt.Errorf("register %s route: %w", name, err)
		}
	}

	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{http.MethodGet, "/v1/reserves", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			resp, err := svc.ListReserves(r.Context(), &ListReservesRequest{})
			respond(mux, w, r, resp, err)
		}},
		{http.MethodGet, "/v1/reserves/{asset}", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			resp, err := svc.GetReserveInfo(r.Context(), &GetReserveInfoRequest{Asset: p["asset"]})
			respond(mux, w, r, resp, err)
		}},
		{http.MethodPost, "/v1/reserves/{asset}/active", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			var in SetReserveActiveRequest
			if !decode(mux, w, r, &in) {
				return
			}
			in.Asset = p["asset"]
			resp, err := svc.SetReserveActive(r.Context(), &in)
			respond(mux, w, r, resp, err)
		}},
		{http.MethodGet, "/v1/reserves/{asset}/users/{user_id}", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			resp, err := svc.GetUserBalance(r.Context(), &GetUserBalanceRequest{Asset: p["asset"], UserID: p["user_id"]})
			respond(mux, w, r, resp, err)
		}},
		{http.MethodGet, "/v1/users/{user_id}/account", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			resp, err := svc.GetUserAccount(r.Context(), &GetUserAccountRequest{UserID: p["user_id"]})
			respond(mux, w, r, resp, err)
		}},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.handler); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}

	return mux, nil
}

func decode(mux *runtime.ServeMux, w http.ResponseWriter, r *http.Request, v any) bool {
	inbound, _ := runtime.MarshalerForRequest(mux, r)
	if err := inbound.NewDecoder(r.Body).Decode(v); err != nil {
		runtime.HTTPError(r.Context(), mux, inbound, w, r,
			status.Errorf(codes.InvalidArgument, "INVALID_ARGUMENT: decode body: %v", err))
		return false
	}
	return true
}

func respond(mux *runtime.ServeMux, w http.ResponseWriter, r *http.Request, resp any, err error) {
	_, outbound := runtime.MarshalerForRequest(mux, r)
	if err != nil {
		runtime.HTTPError(r.Context(), mux, outbound, w, r, err)
		return
	}
	data, err := outbound.Marshal(resp)
	if err != nil {
		runtime.HTTPError(r.Context(), mux, outbound, w, r, status.Error(codes.Internal, err.Error()))
		return
	}
	w.Header().Set("Content-Type", outbound.ContentType(resp))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// writeError renders a gRPC status as JSON with the matching HTTP status.
func writeError(_ context.Context, _ *runtime.ServeMux, _ runtime.Marshaler, w http.ResponseWriter, _ *http.Request, err error) {
	s := status.Convert(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(runtime.HTTPStatusFromCode(s.Code()))
	_ = json.NewEncoder(w).Encode(errorBody{
		Code:    int32(s.Code()),
		Status:  s.Code().String(),
		Message: s.Message(),
	})
}
