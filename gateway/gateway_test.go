package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
)

func TestUnsupportedFailsClosed(t *testing.T) {
	_, err := Unsupported{}.Authorize(context.Background(), models.PaymentIntent{OrderId: "order_1"})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestBuildCheckout(t *testing.T) {
	intent := models.PaymentIntent{
		OrderId:      "order_9",
		GatewayKeyId: "key_live_x",
		Amount:       decimal.RequireFromString("1500.50"),
	}
	c := BuildCheckout(intent)
	if c.OrderId != "order_9" || c.KeyId != "key_live_x" {
		t.Fatalf("checkout = %+v", c)
	}
	if c.AmountMinor != 150050 {
		t.Errorf("amount minor = %d, want 150050", c.AmountMinor)
	}
	if c.Currency != "INR" {
		t.Errorf("currency = %s", c.Currency)
	}
}
