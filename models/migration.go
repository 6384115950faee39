package models

import "gorm.io/gorm"

// AutoMigrate creates/updates the tables this client owns. The backend owns
// payees, line items and summaries; only attempt audit rows and
// inconsistency records live locally.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&SettlementAttempt{},
		&PaymentInconsistency{},
	)
}
