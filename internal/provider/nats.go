package provider

import (
	fpmath "LendingAggregator/internal/math"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
)

// Requester is the request/reply subset of *nats.Conn.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// NATSPool talks to a pool bridge over NATS request/reply. Subjects are
// {prefix}.deposit, {prefix}.withdraw, {prefix}.reserves and {prefix}.rates.
// Amounts and rates travel as decimal strings.
type NATSPool struct {
	id      string
	prefix  string
	conn    Requester
	timeout time.Duration
}

func NewNATSPool(id, prefix string, conn Requester, timeout time.Duration) *NATSPool {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSPool{id: id, prefix: prefix, conn: conn, timeout: timeout}
}

type natsAmountRequest struct {
	Asset     string `json:"asset"`
	Recipient string `json:"recipient,omitempty"`
	Amount    string `json:"amount"`
}

type natsAssetRequest struct {
	Asset string `json:"asset,omitempty"`
}

type natsReply struct {
	Error              string          `json:"error,omitempty"`
	Reserves           []string        `json:"reserves,omitempty"`
	LiquidityRate      decimal.Decimal `json:"liquidity_rate"`
	BorrowRate         decimal.Decimal `json:"borrow_rate"`
	AvailableLiquidity decimal.Decimal `json:"available_liquidity"`
}

func (p *NATSPool) ID() string { return p.id }

func (p *NATSPool) Deposit(ctx context.Context, asset string, amount int64) error {
	_, err := p.call(ctx, "deposit", natsAmountRequest{
		Asset:  asset,
		Amount: fpmath.ToDecimal(amount, fpmath.AmountConfig).String(),
	})
	return Wrap(p.id, "deposit", asset, err)
}

func (p *NATSPool) Withdraw(ctx context.Context, asset string, recipient uuid.UUID, amount int64) error {
	_, err := p.call(ctx, "withdraw", natsAmountRequest{
		Asset:     asset,
		Recipient: recipient.String(),
		Amount:    fpmath.ToDecimal(amount, fpmath.AmountConfig).String(),
	})
	return Wrap(p.id, "withdraw", asset, err)
}

func (p *NATSPool) Reserves(ctx context.Context) ([]string, error) {
	reply, err := p.call(ctx, "reserves", natsAssetRequest{})
	if err != nil {
		return nil, Wrap(p.id, "reserves", "", err)
	}
	return reply.Reserves, nil
}

func (p *NATSPool) ReserveRates(ctx context.Context, asset string) (Rates, error) {
	reply, err := p.call(ctx, "rates", natsAssetRequest{Asset: asset})
	if err != nil {
		return Rates{}, Wrap(p.id, "rates", asset, err)
	}

	var rates Rates
	if rates.LiquidityRate, err = fpmath.FromDecimal(reply.LiquidityRate, fpmath.RateConfig); err != nil {
		return Rates{}, Wrap(p.id, "rates", asset, fmt.Errorf("liquidity rate: %w", err))
	}
	if rates.BorrowRate, err = fpmath.FromDecimal(reply.BorrowRate, fpmath.RateConfig); err != nil {
		return Rates{}, Wrap(p.id, "rates", asset, fmt.Errorf("borrow rate: %w", err))
	}
	if rates.AvailableLiquidity, err = fpmath.FromDecimal(reply.AvailableLiquidity, fpmath.AmountConfig); err != nil {
		return Rates{}, Wrap(p.id, "rates", asset, fmt.Errorf("available liquidity: %w", err))
	}
	if rates.AvailableLiquidity < 0 {
		return Rates{}, Wrap(p.id, "rates", asset, fmt.Errorf("negative liquidity %s", reply.AvailableLiquidity))
	}
	return rates, nil
}

func (p *NATSPool) call(ctx context.Context, op string, req interface{}) (natsReply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return natsReply{}, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg, err := p.conn.RequestWithContext(ctx, p.prefix+"."+op, data)
	if err != nil {
		return natsReply{}, fmt.Errorf("request %s.%s: %w", p.prefix, op, err)
	}

	var reply natsReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return natsReply{}, fmt.Errorf("decode reply: %w", err)
	}
	if reply.Error != "" {
		return natsReply{}, errors.New(reply.Error)
	}
	return reply, nil
}
