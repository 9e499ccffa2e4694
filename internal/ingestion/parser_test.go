package ingestion_test

import (
	"LendingAggregator/internal/ingestion"
	"encoding/json"
	"testing"
	"time"
)

func rawFromJSON(t *testing.T, subject string, v interface{}) ingestion.RawCommand {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawCommand{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
		TermFunc:  func() {},
	}
}

func TestParseDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"idempotency_key": "dep-42",
		"user_id":         "550e8400-e29b-41d4-a716-446655440000",
		"asset":           "USDC",
		"amount":          "12.5",
	}

	cmd, err := ingestion.ParseCommand(rawFromJSON(t, "lagg.commands.deposit.USDC", payload), ingestion.CommandDeposit)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cmd.Name != ingestion.CommandDeposit {
		t.Errorf("name: got %s, want deposit", cmd.Name)
	}
	if cmd.Request.Amount != 12_500_000 {
		t.Errorf("amount: got %d, want 12_500_000", cmd.Request.Amount)
	}
	if cmd.Request.Asset != "USDC" {
		t.Errorf("asset: got %s, want USDC", cmd.Request.Asset)
	}
	if cmd.Request.IdempotencyKey != "dep-42" {
		t.Errorf("idempotency key: got %s, want dep-42", cmd.Request.IdempotencyKey)
	}
	if cmd.Request.UserID.String() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("user_id: got %s", cmd.Request.UserID)
	}
}

func TestParseAssetFromSubject(t *testing.T) {
	payload := map[string]interface{}{
		"user_id": "550e8400-e29b-41d4-a716-446655440000",
		"amount":  "1",
	}

	cmd, err := ingestion.ParseCommand(rawFromJSON(t, "lagg.commands.borrow.WETH", payload), ingestion.CommandBorrow)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.Request.Asset != "WETH" {
		t.Errorf("asset: got %s, want WETH", cmd.Request.Asset)
	}
	if cmd.Request.IdempotencyKey != "" {
		t.Errorf("idempotency key should be left for the orchestrator to generate")
	}
}

func TestParseKeyFallsBackToMessageID(t *testing.T) {
	payload := map[string]interface{}{
		"user_id": "550e8400-e29b-41d4-a716-446655440000",
		"amount":  "1",
	}
	raw := rawFromJSON(t, "lagg.commands.redeem.USDC", payload)
	raw.MessageID = "LAGG_COMMANDS:17"

	cmd, err := ingestion.ParseCommand(raw, ingestion.CommandRedeem)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.Request.IdempotencyKey != "LAGG_COMMANDS:17" {
		t.Errorf("idempotency key: got %q, want the message id", cmd.Request.IdempotencyKey)
	}

	payload["idempotency_key"] = "red-1"
	raw = rawFromJSON(t, "lagg.commands.redeem.USDC", payload)
	raw.MessageID = "LAGG_COMMANDS:17"
	cmd, err = ingestion.ParseCommand(raw, ingestion.CommandRedeem)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.Request.IdempotencyKey != "red-1" {
		t.Errorf("idempotency key: got %q, want red-1", cmd.Request.IdempotencyKey)
	}
}

func TestParseNegativeAmountIsLeftToValidation(t *testing.T) {
	payload := map[string]interface{}{
		"user_id": "550e8400-e29b-41d4-a716-446655440000",
		"asset":   "USDC",
		"amount":  "-3",
	}

	cmd, err := ingestion.ParseCommand(rawFromJSON(t, "lagg.commands.repay.USDC", payload), ingestion.CommandRepay)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.Request.Amount != -3_000_000 {
		t.Errorf("amount: got %d, want -3_000_000", cmd.Request.Amount)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		command string
		payload map[string]interface{}
	}{
		{
			name:    "unknown command",
			command: "liquidate",
			payload: map[string]interface{}{"user_id": "550e8400-e29b-41d4-a716-446655440000", "amount": "1"},
		},
		{
			name:    "bad user id",
			command: ingestion.CommandDeposit,
			payload: map[string]interface{}{"user_id": "not-a-uuid", "asset": "USDC", "amount": "1"},
		},
		{
			name:    "missing amount",
			command: ingestion.CommandDeposit,
			payload: map[string]interface{}{"user_id": "550e8400-e29b-41d4-a716-446655440000", "asset": "USDC"},
		},
		{
			name:    "too many decimals",
			command: ingestion.CommandRedeem,
			payload: map[string]interface{}{"user_id": "550e8400-e29b-41d4-a716-446655440000", "asset": "USDC", "amount": "0.0000001"},
		},
		{
			name:    "not a number",
			command: ingestion.CommandRedeem,
			payload: map[string]interface{}{"user_id": "550e8400-e29b-41d4-a716-446655440000", "asset": "USDC", "amount": "ten"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ingestion.ParseCommand(rawFromJSON(t, "lagg.commands.x", tt.payload), tt.command)
			if err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseInvalidJSON(t *testing.T) {
	raw := ingestion.RawCommand{Subject: "lagg.commands.deposit.USDC", Data: []byte(`{not json`)}
	if _, err := ingestion.ParseCommand(raw, ingestion.CommandDeposit); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestCommandFromSubject(t *testing.T) {
	tests := []struct {
		subject string
		want    string
		wantErr bool
	}{
		{subject: "lagg.commands.deposit.USDC", want: "deposit"},
		{subject: "lagg.commands.redeem.WETH", want: "redeem"},
		{subject: "lagg.events.deposited.USDC", wantErr: true},
		{subject: "lagg", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ingestion.CommandFromSubject(tt.subject)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.subject)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%s: got %q, %v; want %q", tt.subject, got, err, tt.want)
		}
	}
}
