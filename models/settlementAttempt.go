package models

import "time"

type AttemptStatus string

const (
	AttemptStatusStarted   AttemptStatus = "STARTED"
	AttemptStatusSucceeded AttemptStatus = "SUCCEEDED"
	AttemptStatusFailed    AttemptStatus = "FAILED"
)

type AttemptOperation string

const (
	AttemptOperationPrepare     AttemptOperation = "PREPARE"
	AttemptOperationVerify      AttemptOperation = "VERIFY"
	AttemptOperationMarkSettled AttemptOperation = "MARK_SETTLED"
)

// SettlementAttempt is the durable audit row for one prepare/verify/
// mark-settled attempt. Every attempt is recorded STARTED before the network
// call and moved to SUCCEEDED or FAILED after; an attempt never skips
// STARTED.
type SettlementAttempt struct {
	ID            int              `gorm:"primary_key" json:"id"`
	AttemptId     string           `gorm:"size:64;not null;uniqueIndex" json:"attempt_id"`
	PayeeKind     PayeeKind        `gorm:"size:20;not null;index:idx_attempt_payee" json:"payee_kind"`
	PayeeId       int              `gorm:"not null;index:idx_attempt_payee" json:"payee_id"`
	Operation     AttemptOperation `gorm:"size:20;not null" json:"operation"`
	OrderId       string           `gorm:"size:128;default:null;index" json:"order_id"`
	TargetItemIds string           `gorm:"type:text" json:"target_item_ids"`
	Status        AttemptStatus    `gorm:"size:20;not null;index" json:"status"`
	LastError     *string          `gorm:"type:text" json:"last_error"`
	CorrelationId string           `gorm:"size:64;default:null" json:"correlation_id"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}
