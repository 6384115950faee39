package models

import "time"

type InconsistencyStatus string

const (
	InconsistencyStatusOpen     InconsistencyStatus = "OPEN"
	InconsistencyStatusResolved InconsistencyStatus = "RESOLVED"
)

// PaymentInconsistency records a payment that the gateway authorized but the
// backend did not confirm settled (verify failed or timed out). This is the
// one failure the client must never lose: the row keeps everything needed to
// retry verify with the original payload. Unique per order id.
type PaymentInconsistency struct {
	ID               int                 `gorm:"primary_key" json:"id"`
	OrderId          string              `gorm:"size:128;not null;uniqueIndex" json:"order_id"`
	PayeeKind        PayeeKind           `gorm:"size:20;not null;index:idx_inconsistency_payee" json:"payee_kind"`
	PayeeId          int                 `gorm:"not null;index:idx_inconsistency_payee" json:"payee_id"`
	Amount           string              `gorm:"size:64;not null" json:"amount"`
	TargetItemIds    string              `gorm:"type:text;not null" json:"target_item_ids"`
	Bulk             bool                `gorm:"not null" json:"bulk"`
	GatewayPaymentId string              `gorm:"size:128;not null" json:"gateway_payment_id"`
	GatewayOrderId   string              `gorm:"size:128;not null" json:"gateway_order_id"`
	GatewaySignature string              `gorm:"size:256;not null" json:"gateway_signature"`
	Status           InconsistencyStatus `gorm:"size:20;not null;index" json:"status"`
	LastError        *string             `gorm:"type:text" json:"last_error"`
	ResolvedAt       *time.Time          `json:"resolved_at"`
	CreatedAt        time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}
