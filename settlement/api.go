package settlement

import (
	"context"

	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
)

// PaymentAPI is the slice of the marketplace backend this package drives.
// backend.Client is the production implementation; tests substitute fakes.
type PaymentAPI interface {
	FetchSummary(ctx context.Context, kind models.PayeeKind, payeeId int, period models.SettlementPeriod, opts models.SummaryOptions) (*models.PaymentSummary, error)
	PreparePayment(ctx context.Context, kind models.PayeeKind, itemId int) (*models.PaymentIntent, error)
	PrepareBulkPayment(ctx context.Context, kind models.PayeeKind, payeeId int, period models.SettlementPeriod, includeUnverified bool) (*models.PaymentIntent, error)
	VerifyPayment(ctx context.Context, kind models.PayeeKind, intent models.PaymentIntent, result models.GatewayResult) (int, error)
	MarkSettled(ctx context.Context, kind models.PayeeKind, payeeId int, itemIds []int) (int, error)
}

// InconsistencyRecorder persists post-authorization inconsistencies until
// they are explicitly resolved.
type InconsistencyRecorder interface {
	Record(ctx context.Context, inc models.PaymentInconsistency) error
	Resolve(ctx context.Context, orderId string) error
}

// AttemptRecorder writes the settlement attempt audit trail. Best effort:
// implementations must not fail the settlement operation itself.
type AttemptRecorder interface {
	Begin(ctx context.Context, attempt models.SettlementAttempt)
	MarkSucceeded(ctx context.Context, attemptId string)
	MarkFailed(ctx context.Context, attemptId string, opErr error)
}
