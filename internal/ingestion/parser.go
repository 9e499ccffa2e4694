package ingestion

import (
	fpmath "LendingAggregator/internal/math"
	"LendingAggregator/internal/pool"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	CommandDeposit = "deposit"
	CommandBorrow  = "borrow"
	CommandRedeem  = "redeem"
	CommandRepay   = "repay"
)

// Command is a parsed workflow request.
type Command struct {
	Name    string
	Request pool.Request
}

// commandJSON is the wire format of every command. Amounts are decimal
// strings in whole asset units, e.g. "12.5".
type commandJSON struct {
	IdempotencyKey string `json:"idempotency_key"`
	UserID         string `json:"user_id"`
	Asset          string `json:"asset"`
	Amount         string `json:"amount"`
}

// ParseCommand decodes raw as the named command. An asset missing from the
// payload is taken from the last subject token, and a missing idempotency
// key from the message id, so a redelivered command keeps its key.
func ParseCommand(raw RawCommand, name string) (Command, error) {
	switch name {
	case CommandDeposit, CommandBorrow, CommandRedeem, CommandRepay:
	default:
		return Command{}, fmt.Errorf("unknown command: %s", name)
	}

	var j commandJSON
	if err := json.Unmarshal(raw.Data, &j); err != nil {
		return Command{}, fmt.Errorf("parse %s: %w", name, err)
	}

	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return Command{}, fmt.Errorf("parse user_id: %w", err)
	}

	asset := j.Asset
	if asset == "" {
		asset = subjectAsset(raw.Subject)
	}
	if asset == "" {
		return Command{}, fmt.Errorf("parse %s: asset is required", name)
	}

	if j.Amount == "" {
		return Command{}, fmt.Errorf("parse %s: amount is required", name)
	}
	amount, err := fpmath.ParseDecimal(j.Amount, fpmath.AmountConfig)
	if err != nil {
		return Command{}, fmt.Errorf("parse amount: %w", err)
	}

	key := j.IdempotencyKey
	if key == "" {
		key = raw.MessageID
	}

	return Command{
		Name: name,
		Request: pool.Request{
			Asset:          asset,
			UserID:         userID,
			Amount:         amount,
			IdempotencyKey: key,
		},
	}, nil
}

// CommandFromSubject extracts the command token of lagg.commands.<command>.<asset>.
func CommandFromSubject(subject string) (string, error) {
	parts := strings.Split(subject, ".")
	if len(parts) < 3 || parts[0] != "lagg" || parts[1] != "commands" {
		return "", fmt.Errorf("not a command subject: %s", subject)
	}
	return parts[2], nil
}

func subjectAsset(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) < 4 {
		return ""
	}
	return parts[len(parts)-1]
}
