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

// IntentState is the per-attempt payment protocol state.
//
//	Idle -> Prepared -> Authorized -> Settled
//	         |             |
//	      (cancel)    (verify fails)
//	         v             v
//	        Idle         Failed  --retry verify--> Settled
//
// A failed verify after a real authorization is never resolved by a fresh
// prepare: that would create a second, unrelated money movement. Only
// RetryVerify with the original payload leaves Failed.
type IntentState string

const (
	IntentStateIdle       IntentState = "IDLE"
	IntentStatePrepared   IntentState = "PREPARED"
	IntentStateAuthorized IntentState = "AUTHORIZED"
	IntentStateSettled    IntentState = "SETTLED"
	IntentStateFailed     IntentState = "FAILED"
)

// Negotiator drives the two-phase prepare/verify protocol for one payee.
// Not safe for concurrent use; the owning controller serializes access.
type Negotiator struct {
	api      PaymentAPI
	store    InconsistencyRecorder
	attempts AttemptRecorder
	logger   *logrus.Logger

	kind    models.PayeeKind
	payeeId int

	state  IntentState
	intent *models.PaymentIntent
	result *models.GatewayResult
}

func NewNegotiator(api PaymentAPI, store InconsistencyRecorder, attempts AttemptRecorder, logger *logrus.Logger, kind models.PayeeKind, payeeId int) *Negotiator {
	return &Negotiator{
		api:      api,
		store:    store,
		attempts: attempts,
		logger:   logger,
		kind:     kind,
		payeeId:  payeeId,
		state:    IntentStateIdle,
	}
}

func (n *Negotiator) State() IntentState { return n.state }

// Intent returns the current attempt's intent, or nil when Idle/Settled.
func (n *Negotiator) Intent() *models.PaymentIntent { return n.intent }

// PrepareItem fixes the amount for a single line item. Only valid from Idle:
// a pending intent means a second prepare would race the first for the same
// targets, and a Failed attempt must go through RetryVerify.
func (n *Negotiator) PrepareItem(ctx context.Context, itemId int) (*models.PaymentIntent, error) {
	if err := n.checkIdle(); err != nil {
		return nil, err
	}

	attemptId := uuid.NewString()
	n.beginAttempt(ctx, attemptId, models.AttemptOperationPrepare, "", []int{itemId})
	intent, err := n.api.PreparePayment(ctx, n.kind, itemId)
	if err != nil {
		n.attempts.MarkFailed(ctx, attemptId, err)
		config.LogError(n.logger, "negotiator.go", "PrepareItem", "PreparePayment", itemId, err)
		return nil, err
	}
	n.attempts.MarkSucceeded(ctx, attemptId)

	n.state = IntentStatePrepared
	n.intent = intent
	n.result = nil
	return intent, nil
}

// PrepareBulk fixes the amount for every currently unsettled item in the
// payee's period. The server recomputes and returns the exact target set.
func (n *Negotiator) PrepareBulk(ctx context.Context, period models.SettlementPeriod, includeUnverified bool) (*models.PaymentIntent, error) {
	if err := n.checkIdle(); err != nil {
		return nil, err
	}

	attemptId := uuid.NewString()
	n.beginAttempt(ctx, attemptId, models.AttemptOperationPrepare, "", nil)
	intent, err := n.api.PrepareBulkPayment(ctx, n.kind, n.payeeId, period, includeUnverified)
	if err != nil {
		n.attempts.MarkFailed(ctx, attemptId, err)
		config.LogError(n.logger, "negotiator.go", "PrepareBulk", "PrepareBulkPayment", n.payeeId, err)
		return nil, err
	}
	if len(intent.TargetItemIds) == 0 || !intent.Amount.IsPositive() {
		err := utils.NewValidationError("nothing to pay for this period")
		n.attempts.MarkFailed(ctx, attemptId, err)
		return nil, err
	}
	n.attempts.MarkSucceeded(ctx, attemptId)

	n.state = IntentStatePrepared
	n.intent = intent
	n.result = nil
	return intent, nil
}

// Cancel abandons a prepared intent after the user dismissed the gateway
// step. No server state changed; the unconsumed intent expires on its own.
func (n *Negotiator) Cancel() {
	if n.state != IntentStatePrepared {
		return
	}
	n.state = IntentStateIdle
	n.intent = nil
	n.result = nil
}

// SubmitAuthorization takes the gateway's signed result and runs verify.
// From here on the attempt can no longer be abandoned: the gateway has
// authorized real money, so a verify failure becomes a durable
// POST_AUTHORIZATION inconsistency instead of a discarded error.
func (n *Negotiator) SubmitAuthorization(ctx context.Context, result models.GatewayResult) (int, error) {
	if n.state != IntentStatePrepared || n.intent == nil {
		return 0, utils.NewValidationError("no prepared payment to authorize")
	}
	if result.OrderId != "" && result.OrderId != n.intent.OrderId {
		return 0, utils.NewValidationError("gateway result does not match the prepared order")
	}

	n.state = IntentStateAuthorized
	n.result = &result
	return n.verify(ctx)
}

// RetryVerify re-runs verify with the stored original payload. Verify is
// idempotent per order id server-side, so the identical payload is safe to
// resend; the target set is the stored one, never recomputed.
func (n *Negotiator) RetryVerify(ctx context.Context) (int, error) {
	if n.state != IntentStateFailed || n.intent == nil || n.result == nil {
		return 0, utils.NewValidationError("no failed verification to retry")
	}
	return n.verify(ctx)
}

func (n *Negotiator) verify(ctx context.Context) (int, error) {
	intent := *n.intent
	result := *n.result

	attemptId := uuid.NewString()
	n.beginAttempt(ctx, attemptId, models.AttemptOperationVerify, intent.OrderId, intent.TargetItemIds)
	count, err := n.api.VerifyPayment(ctx, n.kind, intent, result)
	if err != nil {
		n.attempts.MarkFailed(ctx, attemptId, err)
		n.state = IntentStateFailed

		msg := err.Error()
		if recordErr := n.store.Record(ctx, models.PaymentInconsistency{
			OrderId:          intent.OrderId,
			PayeeKind:        n.kind,
			PayeeId:          n.payeeId,
			Amount:           intent.Amount.String(),
			TargetItemIds:    utils.EncodeIntIds(intent.TargetItemIds),
			Bulk:             intent.Bulk,
			GatewayPaymentId: result.PaymentId,
			GatewayOrderId:   result.OrderId,
			GatewaySignature: result.Signature,
			LastError:        &msg,
		}); recordErr != nil {
			config.LogError(n.logger, "negotiator.go", "verify", "Record inconsistency", intent.OrderId, recordErr)
		}
		config.LogError(n.logger, "negotiator.go", "verify", "VerifyPayment", intent.OrderId, err)
		return 0, utils.NewPostAuthorizationError(intent.OrderId, err)
	}
	n.attempts.MarkSucceeded(ctx, attemptId)

	if resolveErr := n.store.Resolve(ctx, intent.OrderId); resolveErr != nil {
		config.LogError(n.logger, "negotiator.go", "verify", "Resolve inconsistency", intent.OrderId, resolveErr)
	}
	n.state = IntentStateSettled
	return count, nil
}

// Reset returns to Idle after a settled attempt (or clears an Idle
// negotiator). A Failed attempt cannot be reset away: the unresolved
// inconsistency must be retried or handled by an operator first.
func (n *Negotiator) Reset() {
	if n.state == IntentStateFailed {
		return
	}
	n.state = IntentStateIdle
	n.intent = nil
	n.result = nil
}

func (n *Negotiator) checkIdle() error {
	switch n.state {
	case IntentStateIdle:
		return nil
	case IntentStateFailed:
		return utils.NewValidationError("an unverified payment needs attention before starting a new one")
	default:
		return utils.NewValidationError("a payment is already in progress")
	}
}

func (n *Negotiator) beginAttempt(ctx context.Context, attemptId string, op models.AttemptOperation, orderId string, targetIds []int) {
	correlationId, _ := appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
	n.attempts.Begin(ctx, models.SettlementAttempt{
		AttemptId:     attemptId,
		PayeeKind:     n.kind,
		PayeeId:       n.payeeId,
		Operation:     op,
		OrderId:       orderId,
		TargetItemIds: utils.EncodeIntIds(targetIds),
		CorrelationId: correlationId,
	})
}
