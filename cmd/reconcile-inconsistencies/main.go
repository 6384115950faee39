package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lebrqksd-bot/lebrqapp-sub005/backend"
	"github.com/lebrqksd-bot/lebrqapp-sub005/config"
	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
	"github.com/lebrqksd-bot/lebrqapp-sub005/settlement"
	"github.com/lebrqksd-bot/lebrqapp-sub005/utils"
)

// Operator tool for payments stuck between gateway authorization and backend
// settlement. Default action lists OPEN inconsistency records; -retry re-runs
// verify with the stored payload (never a fresh prepare) and marks the record
// RESOLVED on success.
func main() {
	retryOrderId := flag.String("retry", "", "order id to retry verify for")
	resolveOrderId := flag.String("resolve", "", "order id to mark RESOLVED without verifying (requires -confirm)")
	confirm := flag.String("confirm", "", "type RESOLVE to proceed with -resolve")
	flag.Parse()

	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	store := settlement.NewInconsistencyStore(config.GetDB, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch {
	case strings.TrimSpace(*retryOrderId) != "":
		retryVerify(ctx, store, strings.TrimSpace(*retryOrderId))
	case strings.TrimSpace(*resolveOrderId) != "":
		if strings.TrimSpace(*confirm) != "RESOLVE" {
			fmt.Fprintln(os.Stderr, "set -confirm=RESOLVE to proceed")
			os.Exit(1)
		}
		if err := store.Resolve(ctx, strings.TrimSpace(*resolveOrderId)); err != nil {
			fmt.Fprintln(os.Stderr, "resolve failed: "+err.Error())
			os.Exit(1)
		}
		fmt.Println("resolved", strings.TrimSpace(*resolveOrderId))
	default:
		listOpen(ctx, store)
	}
}

func listOpen(ctx context.Context, store *settlement.InconsistencyStore) {
	incs, err := store.ListOpen(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list failed: "+err.Error())
		os.Exit(1)
	}
	if len(incs) == 0 {
		fmt.Println("no open inconsistencies")
		return
	}
	for _, inc := range incs {
		lastErr := ""
		if inc.LastError != nil {
			lastErr = *inc.LastError
		}
		fmt.Printf("%s  %s/%d  amount=%s  items=%s  since=%s  last_error=%q\n",
			inc.OrderId, inc.PayeeKind, inc.PayeeId, inc.Amount, inc.TargetItemIds,
			inc.CreatedAt.Format(time.RFC3339), lastErr)
	}
}

func retryVerify(ctx context.Context, store *settlement.InconsistencyStore, orderId string) {
	logger := config.GetLogger()

	inc, err := store.GetByOrderId(ctx, orderId)
	if err != nil {
		fmt.Fprintln(os.Stderr, "record not found: "+err.Error())
		os.Exit(1)
	}
	if inc.Status == models.InconsistencyStatusResolved {
		fmt.Println("already resolved at", inc.ResolvedAt.Format(time.RFC3339))
		return
	}

	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	api, err := backend.NewClient(settings, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	amount, err := decimal.NewFromString(inc.Amount)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stored amount is corrupt: "+err.Error())
		os.Exit(1)
	}
	intent := models.PaymentIntent{
		OrderId:       inc.OrderId,
		Amount:        amount,
		TargetItemIds: utils.DecodeIntIds(inc.TargetItemIds),
		GatewayKeyId:  settings.GatewayKeyId,
		Bulk:          inc.Bulk,
		CreatedAt:     inc.CreatedAt,
	}
	result := models.GatewayResult{
		PaymentId: inc.GatewayPaymentId,
		OrderId:   inc.GatewayOrderId,
		Signature: inc.GatewaySignature,
	}

	settled, err := api.VerifyPayment(ctx, inc.PayeeKind, intent, result)
	if err != nil {
		msg := err.Error()
		_ = store.Record(ctx, models.PaymentInconsistency{
			OrderId:          inc.OrderId,
			PayeeKind:        inc.PayeeKind,
			PayeeId:          inc.PayeeId,
			Amount:           inc.Amount,
			TargetItemIds:    inc.TargetItemIds,
			Bulk:             inc.Bulk,
			GatewayPaymentId: inc.GatewayPaymentId,
			GatewayOrderId:   inc.GatewayOrderId,
			GatewaySignature: inc.GatewaySignature,
			LastError:        &msg,
		})
		fmt.Fprintln(os.Stderr, "verify failed: "+msg)
		os.Exit(1)
	}

	if err := store.Resolve(ctx, inc.OrderId); err != nil {
		fmt.Fprintln(os.Stderr, "verify succeeded but resolve failed: "+err.Error())
		os.Exit(1)
	}
	fmt.Printf("verified %s: %d item(s) settled\n", inc.OrderId, settled)
}
