package backend

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
)

// Wire payloads for the settlement endpoints. Every response carries `ok`
// plus a human message; the typed fields below are the contract this client
// depends on. Vendor routes speak in items, broker routes in bookings; the
// decoders below fold both spellings into one shape.

type periodPayload struct {
	Kind  string    `json:"kind"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type lineItemPayload struct {
	Id          int             `json:"id"`
	ReferenceId string          `json:"reference_id"`
	AmountDue   decimal.Decimal `json:"amount_due"`
	IsVerified  bool            `json:"is_verified"`
	IsSettled   bool            `json:"is_settled"`
	SettledAt   *time.Time      `json:"settled_at"`
}

type summaryResponse struct {
	Ok            bool              `json:"ok"`
	Message       string            `json:"message"`
	Period        periodPayload     `json:"period"`
	TotalItems    int               `json:"total_items"`
	TotalBookings int               `json:"total_bookings"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	Items         []lineItemPayload `json:"items"`
	Bookings      []lineItemPayload `json:"bookings"`
}

func (r summaryResponse) toSummary(period models.SettlementPeriod) *models.PaymentSummary {
	raw := r.Items
	total := r.TotalItems
	if len(raw) == 0 && len(r.Bookings) > 0 {
		raw = r.Bookings
		total = r.TotalBookings
	}
	items := make([]models.LineItem, 0, len(raw))
	for _, p := range raw {
		items = append(items, models.LineItem{
			ID:          p.Id,
			ReferenceId: p.ReferenceId,
			AmountDue:   p.AmountDue,
			IsVerified:  p.IsVerified,
			IsSettled:   p.IsSettled,
			SettledAt:   p.SettledAt,
		})
	}
	if total == 0 {
		total = len(items)
	}
	return &models.PaymentSummary{
		Period:      period,
		TotalItems:  total,
		TotalAmount: r.TotalAmount,
		Items:       items,
	}
}

type preparePaymentRequest struct {
	ItemId    int `json:"item_id,omitempty"`
	BookingId int `json:"booking_id,omitempty"`
}

type prepareBulkPaymentRequest struct {
	PayeeId           int       `json:"payee_id"`
	PeriodKind        string    `json:"period_kind"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	IncludeUnverified bool      `json:"include_unverified"`
}

type prepareResponse struct {
	Ok        bool            `json:"ok"`
	Message   string          `json:"message"`
	OrderId   string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	ItemCount int             `json:"item_count"`
	ItemIds   []int           `json:"item_ids"`
}

type paymentData struct {
	GatewayPaymentId string `json:"gateway_payment_id"`
	GatewayOrderId   string `json:"gateway_order_id"`
	GatewaySignature string `json:"gateway_signature"`
}

type verifyPaymentRequest struct {
	OrderId     string      `json:"order_id"`
	ItemIds     []int       `json:"item_ids,omitempty"`
	BookingIds  []int       `json:"booking_ids,omitempty"`
	PaymentData paymentData `json:"payment_data"`
}

type verifyResponse struct {
	Ok           bool   `json:"ok"`
	Message      string `json:"message"`
	SettledCount int    `json:"settled_count"`
}

type settleRequest struct {
	PayeeId    int   `json:"payee_id"`
	ItemIds    []int `json:"item_ids,omitempty"`
	BookingIds []int `json:"booking_ids,omitempty"`
}

type settleResponse struct {
	Ok           bool   `json:"ok"`
	Message      string `json:"message"`
	SettledCount int    `json:"settled_count"`
}

type errorResponse struct {
	Ok      bool   `json:"ok"`
	Message string `json:"message"`
	Error   string `json:"error"`
}
