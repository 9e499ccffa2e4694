package pool

import (
	"fmt"
)

// PartialDeliveryError reports a waterfall that stopped after delivering
// some chunks. Delivered legs are committed to the ledger; Remaining was
// never sent.
type PartialDeliveryError struct {
	Requested int64
	Delivered int64
	Remaining int64
	Legs      []Leg
	Err       error
}

func (e *PartialDeliveryError) Error() string {
	return fmt.Sprintf("partial delivery: %d of %d delivered over %d legs: %v",
		e.Delivered, e.Requested, len(e.Legs), e.Err)
}

func (e *PartialDeliveryError) Unwrap() error {
	return e.Err
}
