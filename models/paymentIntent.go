package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentIntent is the transient result of a prepare call. It lives for one
// payment attempt: created by prepare, consumed by the gateway authorization
// step, exchanged for a verification result, then discarded. An intent is
// used at most once; a cancelled authorization abandons it and a retry
// starts from a fresh prepare.
type PaymentIntent struct {
	OrderId       string          `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	TargetItemIds []int           `json:"target_item_ids"`
	GatewayKeyId  string          `json:"gateway_key_id"`
	Bulk          bool            `json:"bulk"`
	CreatedAt     time.Time       `json:"created_at"`
}

// GatewayResult is the signed triple the payment gateway returns from its
// interactive authorization step. Opaque to this client beyond passing it
// through to verify.
type GatewayResult struct {
	PaymentId string `json:"gateway_payment_id" binding:"required"`
	OrderId   string `json:"gateway_order_id" binding:"required"`
	Signature string `json:"gateway_signature" binding:"required"`
}
