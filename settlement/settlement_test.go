package settlement

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
	"github.com/lebrqksd-bot/lebrqapp-sub005/utils"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeAPI is a stateful in-memory backend: it owns line items, recomputes
// summaries on fetch, rejects stale prepare targets and settles items on
// verify/markSettled, the way the real backend is contracted to.
type fakeAPI struct {
	mu    sync.Mutex
	items []models.LineItem

	nextOrder    int
	prepareCalls int
	fetchCalls   int
	verifyCalls  []verifyCall
	settleCalls  [][]int

	fetchErr   error
	prepareErr error
	verifyErr  error
	settleErr  error

	// lastPrepare remembers the most recent intent's targets so verify can
	// settle exactly those.
	lastBulkIncludeUnverified *bool
}

type verifyCall struct {
	orderId string
	itemIds []int
}

func newFakeAPI(items ...models.LineItem) *fakeAPI {
	return &fakeAPI{items: items}
}

func unsettledFixture() []models.LineItem {
	return []models.LineItem{
		{ID: 1, ReferenceId: "BK-1", AmountDue: decimal.NewFromInt(500), IsVerified: true},
		{ID: 2, ReferenceId: "BK-2", AmountDue: decimal.NewFromInt(400), IsVerified: true},
		{ID: 3, ReferenceId: "BK-3", AmountDue: decimal.NewFromInt(600), IsVerified: true},
	}
}

func (f *fakeAPI) FetchSummary(ctx context.Context, kind models.PayeeKind, payeeId int, p models.SettlementPeriod, opts models.SummaryOptions) (*models.PaymentSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	total := decimal.Zero
	var items []models.LineItem
	for _, item := range f.items {
		if !opts.IncludeUnverified && !item.IsVerified {
			continue
		}
		items = append(items, item)
		total = total.Add(item.AmountDue)
	}
	return &models.PaymentSummary{
		Period:      p,
		TotalItems:  len(items),
		TotalAmount: total,
		Items:       items,
	}, nil
}

func (f *fakeAPI) PreparePayment(ctx context.Context, kind models.PayeeKind, itemId int) (*models.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepareCalls++
	if f.prepareErr != nil {
		return nil, f.prepareErr
	}
	for _, item := range f.items {
		if item.ID != itemId {
			continue
		}
		if item.IsSettled {
			return nil, utils.NewStaleStateError("item already settled")
		}
		f.nextOrder++
		return &models.PaymentIntent{
			OrderId:       orderName(f.nextOrder),
			Amount:        item.AmountDue,
			TargetItemIds: []int{itemId},
			GatewayKeyId:  "key_test",
			CreatedAt:     time.Now(),
		}, nil
	}
	return nil, utils.NewValidationError("item not found")
}

func (f *fakeAPI) PrepareBulkPayment(ctx context.Context, kind models.PayeeKind, payeeId int, p models.SettlementPeriod, includeUnverified bool) (*models.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepareCalls++
	f.lastBulkIncludeUnverified = &includeUnverified
	if f.prepareErr != nil {
		return nil, f.prepareErr
	}

	total := decimal.Zero
	var ids []int
	for _, item := range f.items {
		if item.IsSettled {
			continue
		}
		// Unverified items are never payable server-side.
		if !item.IsVerified {
			continue
		}
		ids = append(ids, item.ID)
		total = total.Add(item.AmountDue)
	}
	f.nextOrder++
	return &models.PaymentIntent{
		OrderId:       orderName(f.nextOrder),
		Amount:        total,
		TargetItemIds: ids,
		GatewayKeyId:  "key_test",
		Bulk:          true,
		CreatedAt:     time.Now(),
	}, nil
}

func (f *fakeAPI) VerifyPayment(ctx context.Context, kind models.PayeeKind, intent models.PaymentIntent, result models.GatewayResult) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls = append(f.verifyCalls, verifyCall{orderId: intent.OrderId, itemIds: append([]int(nil), intent.TargetItemIds...)})
	if f.verifyErr != nil {
		return 0, f.verifyErr
	}
	return f.settleLocked(intent.TargetItemIds), nil
}

func (f *fakeAPI) MarkSettled(ctx context.Context, kind models.PayeeKind, payeeId int, itemIds []int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settleCalls = append(f.settleCalls, append([]int(nil), itemIds...))
	if f.settleErr != nil {
		return 0, f.settleErr
	}
	return f.settleLocked(itemIds), nil
}

// settleLocked marks targets settled, counting only newly settled items
// (the backend's idempotence contract).
func (f *fakeAPI) settleLocked(itemIds []int) int {
	now := time.Now()
	count := 0
	for _, id := range itemIds {
		for i := range f.items {
			if f.items[i].ID == id && !f.items[i].IsSettled {
				f.items[i].IsSettled = true
				f.items[i].SettledAt = &now
				count++
			}
		}
	}
	return count
}

func orderName(n int) string {
	return fmt.Sprintf("order_%d", n)
}

// fakeRecorder captures durable inconsistency writes.
type fakeRecorder struct {
	mu       sync.Mutex
	recorded []models.PaymentInconsistency
	resolved []string
}

func (r *fakeRecorder) Record(ctx context.Context, inc models.PaymentInconsistency) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, inc)
	return nil
}

func (r *fakeRecorder) Resolve(ctx context.Context, orderId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, orderId)
	return nil
}

// fakeAttempts asserts the STARTED -> terminal ordering.
type fakeAttempts struct {
	mu        sync.Mutex
	started   []models.SettlementAttempt
	succeeded []string
	failed    []string
}

func (a *fakeAttempts) Begin(ctx context.Context, attempt models.SettlementAttempt) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = append(a.started, attempt)
}

func (a *fakeAttempts) MarkSucceeded(ctx context.Context, attemptId string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.succeeded = append(a.succeeded, attemptId)
}

func (a *fakeAttempts) MarkFailed(ctx context.Context, attemptId string, opErr error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed = append(a.failed, attemptId)
}

func (a *fakeAttempts) startedIds() map[string]bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make(map[string]bool, len(a.started))
	for _, att := range a.started {
		ids[att.AttemptId] = true
	}
	return ids
}
