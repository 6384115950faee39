package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lebrqksd-bot/lebrqapp-sub005/appctx"
	"github.com/lebrqksd-bot/lebrqapp-sub005/config"
	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
	"github.com/lebrqksd-bot/lebrqapp-sub005/utils"
)

// Mutator issues the non-gateway settlement path: money already moved
// outside the app (bank transfer) and the backend just records it. One
// atomic bulk mutation; the server treats already-settled ids as no-ops, so
// a duplicate call settles 0.
type Mutator struct {
	api      PaymentAPI
	attempts AttemptRecorder
	logger   *logrus.Logger

	kind    models.PayeeKind
	payeeId int
}

func NewMutator(api PaymentAPI, attempts AttemptRecorder, logger *logrus.Logger, kind models.PayeeKind, payeeId int) *Mutator {
	return &Mutator{api: api, attempts: attempts, logger: logger, kind: kind, payeeId: payeeId}
}

// MarkSettled records the given items as settled. Targets must be drawn
// from currently unsettled items in the caller's loaded summary; any
// failure leaves all targets unsettled (no partial application).
func (m *Mutator) MarkSettled(ctx context.Context, itemIds []int) (int, error) {
	itemIds = utils.UniqueIntSlice(itemIds)
	if len(itemIds) == 0 {
		return 0, utils.NewValidationError("no items selected to mark settled")
	}

	attemptId := uuid.NewString()
	correlationId, _ := appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
	m.attempts.Begin(ctx, models.SettlementAttempt{
		AttemptId:     attemptId,
		PayeeKind:     m.kind,
		PayeeId:       m.payeeId,
		Operation:     models.AttemptOperationMarkSettled,
		TargetItemIds: utils.EncodeIntIds(itemIds),
		CorrelationId: correlationId,
	})

	count, err := m.api.MarkSettled(ctx, m.kind, m.payeeId, itemIds)
	if err != nil {
		m.attempts.MarkFailed(ctx, attemptId, err)
		config.LogError(m.logger, "mutator.go", "MarkSettled", "api.MarkSettled", itemIds, err)
		return 0, err
	}
	m.attempts.MarkSucceeded(ctx, attemptId)
	return count, nil
}
