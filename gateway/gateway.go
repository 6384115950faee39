// Package gateway wraps the external payment gateway's interactive
// authorization step. The gateway is untrusted until the backend has
// verified its signature; this package only carries the signed result
// through, it never decides that money moved.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
)

var (
	// ErrCancelled means the user abandoned the authorization step. No
	// server-side cleanup is needed; the unconsumed intent expires.
	ErrCancelled = errors.New("gateway authorization cancelled by user")

	// ErrUnsupported means no interactive gateway integration exists in
	// this process. Callers fail closed; the authorization is delivered
	// out of process (browser overlay) and posted back instead.
	ErrUnsupported = errors.New("interactive gateway authorization not supported")
)

// Authorizer runs the gateway's interactive flow for a prepared intent and
// returns the signed result as a value. No callbacks: the result is consumed
// by verify, so no screen state is captured implicitly.
type Authorizer interface {
	Authorize(ctx context.Context, intent models.PaymentIntent) (models.GatewayResult, error)
}

// Unsupported is the default Authorizer. Settlement flows driven through
// the HTTP facade receive the gateway result from the browser; any attempt
// to authorize in process fails closed rather than silently skipping the
// step.
type Unsupported struct{}

func (Unsupported) Authorize(ctx context.Context, intent models.PaymentIntent) (models.GatewayResult, error) {
	return models.GatewayResult{}, ErrUnsupported
}

// Checkout is what the interactive overlay needs to open: the public key
// identifier, the prepared order and the amount in minor currency units.
type Checkout struct {
	KeyId       string `json:"key_id"`
	OrderId     string `json:"order_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

// BuildCheckout converts a prepared intent into overlay parameters. The
// gateway takes amounts in minor units (paise).
func BuildCheckout(intent models.PaymentIntent) Checkout {
	return Checkout{
		KeyId:       intent.GatewayKeyId,
		OrderId:     intent.OrderId,
		AmountMinor: intent.Amount.Mul(decimal.NewFromInt(100)).IntPart(),
		Currency:    "INR",
	}
}
