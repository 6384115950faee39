package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lebrqksd-bot/lebrqapp-sub005/config"
	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
	"github.com/lebrqksd-bot/lebrqapp-sub005/period"
	"github.com/lebrqksd-bot/lebrqapp-sub005/utils"
)

// ScreenState is the settlement screen's lifecycle.
type ScreenState string

const (
	ScreenStateSelectingPayee   ScreenState = "SELECTING_PAYEE"
	ScreenStateSelectingPeriod  ScreenState = "SELECTING_PERIOD"
	ScreenStateSummaryLoaded    ScreenState = "SUMMARY_LOADED"
	ScreenStatePaymentInFlight  ScreenState = "PAYMENT_IN_FLIGHT"
	ScreenStateSettlingInFlight ScreenState = "SETTLING_IN_FLIGHT"
)

// Controller owns one settlement screen: the payee, the period selector,
// the in-memory summary and the sequencing of payment/settlement mutations
// against it. The summary it holds is authoritative only until the next
// mutation; after any successful mutation it is unconditionally re-fetched
// rather than patched, because settled flags and totals are financial data
// that must never drift from the server's record.
//
// At most one mutation is in flight per controller; a second trigger is
// rejected, not queued.
type Controller struct {
	mu sync.Mutex

	api    PaymentAPI
	store  *InconsistencyStore
	guard  *InFlightGuard
	logger *logrus.Logger
	clock  func() time.Time

	kind              models.PayeeKind
	payee             *models.Payee
	periodKind        models.PeriodKind
	includeUnverified bool

	state        ScreenState
	summary      *models.PaymentSummary
	summaryStale bool

	negotiator *Negotiator
	mutator    *Mutator
	attempts   AttemptRecorder

	// opMu serializes the protocol steps that run network calls against the
	// negotiator; opInFlight rejects (never queues) a second trigger.
	opMu        sync.Mutex
	opInFlight  bool
	heldRelease func()
}

type ControllerOption func(*Controller)

// WithClock overrides wall-clock time, for tests.
func WithClock(clock func() time.Time) ControllerOption {
	return func(c *Controller) { c.clock = clock }
}

func WithInFlightGuard(guard *InFlightGuard) ControllerOption {
	return func(c *Controller) { c.guard = guard }
}

func WithInconsistencyStore(store *InconsistencyStore) ControllerOption {
	return func(c *Controller) { c.store = store }
}

func WithAttemptRecorder(attempts AttemptRecorder) ControllerOption {
	return func(c *Controller) { c.attempts = attempts }
}

// noopAttempts is used when no durable attempt log is configured.
type noopAttempts struct{}

func (noopAttempts) Begin(context.Context, models.SettlementAttempt) {}
func (noopAttempts) MarkSucceeded(context.Context, string)           {}
func (noopAttempts) MarkFailed(context.Context, string, error)       {}

func NewController(api PaymentAPI, kind models.PayeeKind, logger *logrus.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		api:      api,
		logger:   logger,
		clock:    time.Now,
		kind:     kind,
		state:    ScreenStateSelectingPayee,
		attempts: noopAttempts{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SelectPayee resets the screen to the given payee. Any previously loaded
// summary belongs to another payee and is discarded.
func (c *Controller) SelectPayee(payee models.Payee) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opInFlight {
		return utils.NewValidationError("cannot switch payee while an operation is in flight")
	}
	c.payee = &payee
	c.summary = nil
	c.summaryStale = false
	c.state = ScreenStateSelectingPeriod
	c.negotiator = NewNegotiator(c.api, c.recorder(), c.attempts, c.logger, c.kind, payee.ID)
	c.mutator = NewMutator(c.api, c.attempts, c.logger, c.kind, payee.ID)
	return nil
}

// SelectPeriod switches the period bucket. The concrete date range is
// recomputed from wall-clock time on every refresh, never cached.
func (c *Controller) SelectPeriod(kind models.PeriodKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.payee == nil {
		return utils.NewValidationError("select a payee first")
	}
	if c.opInFlight {
		return utils.NewValidationError("cannot switch period while an operation is in flight")
	}
	c.periodKind = kind
	c.summary = nil
	c.summaryStale = false
	return nil
}

// SetIncludeUnverified controls whether supplied-but-unverified vendor
// items are shown and bulk-selectable. Takes effect on the next refresh.
func (c *Controller) SetIncludeUnverified(include bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.includeUnverified = include
}

// Refresh re-resolves the period and replaces the whole summary with the
// server's. On failure the previous summary is kept but flagged stale so
// the screen never presents an outdated total as fresh.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.payee == nil || c.periodKind == "" {
		c.mu.Unlock()
		return utils.NewValidationError("select a payee and period first")
	}
	payeeId := c.payee.ID
	p := period.Resolve(c.periodKind, c.clock())
	opts := models.SummaryOptions{IncludeUnverified: c.includeUnverified}
	c.mu.Unlock()

	summary, err := c.api.FetchSummary(ctx, c.kind, payeeId, p, opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.summary != nil {
			c.summaryStale = true
		}
		config.LogError(c.logger, "controller.go", "Refresh", "FetchSummary", payeeId, err)
		return err
	}
	c.summary = summary
	c.summaryStale = false
	if !c.opInFlight {
		c.state = ScreenStateSummaryLoaded
	}
	return nil
}

// PayItem starts the gateway protocol for one line item. The returned
// intent carries what the interactive authorization step needs; the caller
// delivers the signed result to SubmitAuthorization, or Cancel.
func (c *Controller) PayItem(ctx context.Context, itemId int) (*models.PaymentIntent, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	release, err := c.beginMutation(ScreenStatePaymentInFlight)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()

	item := summary.ItemById(itemId)
	if item == nil {
		c.endMutation(release)
		return nil, utils.NewValidationError("item is not in the loaded summary")
	}
	if item.IsSettled {
		c.endMutation(release)
		return nil, utils.NewValidationError("item is already settled")
	}
	if !item.IsVerified {
		c.endMutation(release)
		return nil, utils.NewValidationError("item has not been verified yet")
	}

	intent, err := c.negotiator.PrepareItem(ctx, itemId)
	if err != nil {
		c.endMutation(release)
		return nil, err
	}
	c.holdMutation(release)
	return intent, nil
}

// PayAll starts the gateway protocol for every unsettled (and, unless
// opted in, verified) item in the loaded summary.
func (c *Controller) PayAll(ctx context.Context) (*models.PaymentIntent, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	release, err := c.beginMutation(ScreenStatePaymentInFlight)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	summary := c.summary
	includeUnverified := c.includeUnverified
	c.mu.Unlock()

	targets := summary.UnsettledItemIds(includeUnverified)
	if len(targets) == 0 {
		c.endMutation(release)
		return nil, utils.NewValidationError("no unsettled items to pay")
	}

	intent, err := c.negotiator.PrepareBulk(ctx, summary.Period, includeUnverified)
	if err != nil {
		c.endMutation(release)
		return nil, err
	}
	c.holdMutation(release)
	return intent, nil
}

// SubmitAuthorization delivers the gateway's signed result and verifies it
// with the backend. On success the summary is re-fetched before the settled
// count is returned; local state is never patched optimistically.
func (c *Controller) SubmitAuthorization(ctx context.Context, result models.GatewayResult) (int, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.negotiator == nil || c.state != ScreenStatePaymentInFlight {
		c.mu.Unlock()
		return 0, utils.NewValidationError("no payment awaiting authorization")
	}
	c.mu.Unlock()

	count, err := c.negotiator.SubmitAuthorization(ctx, result)
	if err != nil {
		if utils.IsValidation(err) {
			// Rejected before verify ran (e.g. mismatched order id); the
			// prepared intent is untouched, the user may resubmit or cancel.
			return 0, err
		}
		c.finishPayment(ctx, err)
		return 0, err
	}

	c.negotiator.Reset()
	c.finishPayment(ctx, nil)
	return count, nil
}

// CancelAuthorization abandons the prepared intent after the user dismissed
// the gateway step. No server state changed.
func (c *Controller) CancelAuthorization() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.negotiator != nil {
		c.negotiator.Cancel()
	}
	c.releaseHeld()
	c.opInFlight = false
	if c.summary != nil {
		c.state = ScreenStateSummaryLoaded
	} else {
		c.state = ScreenStateSelectingPeriod
	}
}

// RetryVerify re-sends the stored verify payload for a payment the gateway
// authorized but the backend never confirmed. This is the only way out of
// that state; a fresh prepare would move money twice.
func (c *Controller) RetryVerify(ctx context.Context) (int, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.negotiator == nil || c.negotiator.State() != IntentStateFailed {
		c.mu.Unlock()
		return 0, utils.NewValidationError("no failed verification to retry")
	}
	c.mu.Unlock()

	count, err := c.negotiator.RetryVerify(ctx)
	if err != nil {
		return 0, err
	}

	c.negotiator.Reset()
	c.finishPayment(ctx, nil)
	return count, nil
}

// MarkSettled records out-of-band settlement for the given items (or for
// every eligible unsettled item when none are given).
func (c *Controller) MarkSettled(ctx context.Context, itemIds []int) (int, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	release, err := c.beginMutation(ScreenStateSettlingInFlight)
	if err != nil {
		return 0, err
	}
	defer c.endMutation(release)

	c.mu.Lock()
	summary := c.summary
	includeUnverified := c.includeUnverified
	c.mu.Unlock()

	if len(itemIds) == 0 {
		itemIds = summary.UnsettledItemIds(includeUnverified)
	} else {
		for _, id := range itemIds {
			item := summary.ItemById(id)
			if item == nil {
				return 0, utils.NewValidationError("item is not in the loaded summary")
			}
			if item.IsSettled {
				return 0, utils.NewValidationError("selection includes an already settled item")
			}
		}
	}

	count, mutErr := c.mutator.MarkSettled(ctx, itemIds)
	if mutErr != nil && !utils.IsOutcomeUnknown(mutErr) {
		return 0, mutErr
	}

	// Success, or an aborted call whose outcome is unknown: either way the
	// server's record is the only truth, so re-fetch before reporting.
	if refreshErr := c.Refresh(ctx); refreshErr != nil {
		config.LogError(c.logger, "controller.go", "MarkSettled", "Refresh after mutation", itemIds, refreshErr)
	}
	if mutErr != nil {
		return 0, mutErr
	}
	return count, nil
}

// Snapshot is the read model the screen renders from.
type Snapshot struct {
	State             ScreenState            `json:"state"`
	Payee             *models.Payee          `json:"payee,omitempty"`
	PeriodKind        models.PeriodKind      `json:"period_kind,omitempty"`
	IncludeUnverified bool                   `json:"include_unverified"`
	Summary           *models.PaymentSummary `json:"summary,omitempty"`
	SummaryStale      bool                   `json:"summary_stale"`
	IntentState       IntentState            `json:"intent_state"`
	PendingOrderId    string                 `json:"pending_order_id,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:             c.state,
		Payee:             c.payee,
		PeriodKind:        c.periodKind,
		IncludeUnverified: c.includeUnverified,
		Summary:           c.summary,
		SummaryStale:      c.summaryStale,
		IntentState:       IntentStateIdle,
	}
	if c.negotiator != nil {
		snap.IntentState = c.negotiator.State()
		if intent := c.negotiator.Intent(); intent != nil {
			snap.PendingOrderId = intent.OrderId
		}
	}
	return snap
}

// beginMutation enforces the single-in-flight guard (local, then the
// best-effort distributed one) and requires a loaded summary.
func (c *Controller) beginMutation(next ScreenState) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.payee == nil || c.summary == nil {
		return nil, utils.NewValidationError("no summary loaded")
	}
	if c.summaryStale {
		return nil, utils.NewStaleStateError("summary may be outdated; refresh before settling")
	}
	if c.opInFlight {
		return nil, utils.NewValidationError("another settlement operation is in flight")
	}

	release, ok := c.guard.Acquire(context.Background(), c.kind, c.payee.ID, c.periodKind)
	if !ok {
		return nil, utils.NewStaleStateError("another session is settling this payee and period")
	}

	c.opInFlight = true
	c.state = next
	return release, nil
}

// endMutation closes the guard window and restores the screen state.
func (c *Controller) endMutation(release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	release()
	c.opInFlight = false
	if c.summary != nil {
		c.state = ScreenStateSummaryLoaded
	} else {
		c.state = ScreenStateSelectingPeriod
	}
}

// holdMutation parks the release func while the user is off in the
// interactive gateway step; CancelAuthorization or finishPayment releases.
func (c *Controller) holdMutation(release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heldRelease = release
}

// finishPayment closes out a payment attempt: release the guard, re-fetch
// on success, and restore the screen state. A verify failure leaves the
// negotiator Failed with its retry payload intact.
func (c *Controller) finishPayment(ctx context.Context, opErr error) {
	c.mu.Lock()
	c.releaseHeld()
	c.opInFlight = false
	if c.summary != nil {
		c.state = ScreenStateSummaryLoaded
	} else {
		c.state = ScreenStateSelectingPeriod
	}
	c.mu.Unlock()

	if opErr == nil || utils.IsOutcomeUnknown(opErr) || utils.IsPostAuthorization(opErr) {
		if refreshErr := c.Refresh(ctx); refreshErr != nil {
			config.LogError(c.logger, "controller.go", "finishPayment", "Refresh after mutation", nil, refreshErr)
		}
	}
}

func (c *Controller) releaseHeld() {
	if c.heldRelease != nil {
		c.heldRelease()
		c.heldRelease = nil
	}
}

func (c *Controller) recorder() InconsistencyRecorder {
	if c.store != nil {
		return c.store
	}
	return noopRecorder{}
}

// noopRecorder stands in when no durable store is configured; the
// negotiator still holds the retry payload in memory for this process.
type noopRecorder struct{}

func (noopRecorder) Record(context.Context, models.PaymentInconsistency) error { return nil }
func (noopRecorder) Resolve(context.Context, string) error                     { return nil }
