package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one payable unit in a settlement summary: a fulfilled booking
// item for a vendor, a whole booking for a broker. AmountDue is computed
// server-side and treated as given here.
//
// Invariant: IsSettled implies SettledAt is set, and once true it is
// append-only from this client's view; nothing in this codebase flips it
// back to false.
type LineItem struct {
	ID          int             `json:"id"`
	ReferenceId string          `json:"reference_id"`
	AmountDue   decimal.Decimal `json:"amount_due"`
	IsVerified  bool            `json:"is_verified"`
	IsSettled   bool            `json:"is_settled"`
	SettledAt   *time.Time      `json:"settled_at,omitempty"`
}
