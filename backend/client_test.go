package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lebrqksd-bot/lebrqapp-sub005/config"
	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
	"github.com/lebrqksd-bot/lebrqapp-sub005/utils"
)

func testClient(t *testing.T, baseURL string, timeout time.Duration) *Client {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c, err := NewClient(config.Settings{
		APIBaseURL:      baseURL,
		APIToken:        "test-token",
		GatewayKeyId:    "key_test_abc",
		HTTPTimeout:     timeout,
		RateLimitPerMin: 600000,
	}, logger)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func testPeriod() models.SettlementPeriod {
	return models.SettlementPeriod{
		Kind:  models.PeriodKindMonthly,
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetchSummaryVendor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vendor/payments/summary" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth header = %q", got)
		}
		q := r.URL.Query()
		if q.Get("payee_id") != "42" {
			t.Errorf("payee_id = %s", q.Get("payee_id"))
		}
		if q.Get("include_unverified") != "false" {
			t.Errorf("include_unverified = %s", q.Get("include_unverified"))
		}
		if q.Get("period") != "monthly" {
			t.Errorf("period = %s", q.Get("period"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"ok": true,
			"total_items": 2,
			"total_amount": "1500.00",
			"items": [
				{"id": 1, "reference_id": "BK-1", "amount_due": "1000.00", "is_verified": true, "is_settled": false},
				{"id": 2, "reference_id": "BK-2", "amount_due": "500.00", "is_verified": true, "is_settled": true, "settled_at": "2024-03-10T10:00:00Z"}
			]
		}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 5*time.Second)
	summary, err := c.FetchSummary(context.Background(), models.PayeeKindVendor, 42, testPeriod(), models.SummaryOptions{})
	if err != nil {
		t.Fatalf("FetchSummary: %v", err)
	}
	if summary.TotalItems != 2 || len(summary.Items) != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.TotalAmount.String() != "1500" {
		t.Errorf("total = %s", summary.TotalAmount)
	}
	if !summary.Items[1].IsSettled || summary.Items[1].SettledAt == nil {
		t.Errorf("settled item lost settled_at: %+v", summary.Items[1])
	}
	if summary.Period.Kind != models.PeriodKindMonthly {
		t.Errorf("period kind = %s", summary.Period.Kind)
	}
}

func TestFetchSummaryBrokerBookings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/broker/payments/summary" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Has("include_unverified") {
			t.Error("broker summary must not send include_unverified")
		}
		io.WriteString(w, `{
			"ok": true,
			"total_bookings": 1,
			"total_amount": "250.50",
			"bookings": [{"id": 9, "reference_id": "BKG-9", "amount_due": "250.50", "is_verified": true, "is_settled": false}]
		}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 5*time.Second)
	summary, err := c.FetchSummary(context.Background(), models.PayeeKindBroker, 7, testPeriod(), models.SummaryOptions{})
	if err != nil {
		t.Fatalf("FetchSummary: %v", err)
	}
	if summary.TotalItems != 1 || summary.Items[0].ID != 9 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestPrepareBulkPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vendor/payments/prepare-bulk-payment" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["payee_id"].(float64) != 42 {
			t.Errorf("payee_id = %v", body["payee_id"])
		}
		if body["include_unverified"].(bool) != false {
			t.Errorf("include_unverified = %v", body["include_unverified"])
		}
		io.WriteString(w, `{"ok": true, "order_id": "order_abc", "amount": "1500.00", "item_count": 3, "item_ids": [1, 2, 3]}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 5*time.Second)
	intent, err := c.PrepareBulkPayment(context.Background(), models.PayeeKindVendor, 42, testPeriod(), false)
	if err != nil {
		t.Fatalf("PrepareBulkPayment: %v", err)
	}
	if intent.OrderId != "order_abc" || !intent.Bulk {
		t.Fatalf("intent = %+v", intent)
	}
	if intent.Amount.String() != "1500" {
		t.Errorf("amount = %s", intent.Amount)
	}
	if len(intent.TargetItemIds) != 3 {
		t.Errorf("target ids = %v", intent.TargetItemIds)
	}
	if intent.GatewayKeyId != "key_test_abc" {
		t.Errorf("gateway key = %s", intent.GatewayKeyId)
	}
}

func TestVerifyPaymentSendsOriginalTargets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/broker/payments/verify-bulk-payment" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body verifyPaymentRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.OrderId != "order_xyz" {
			t.Errorf("order_id = %s", body.OrderId)
		}
		if len(body.BookingIds) != 2 || body.BookingIds[0] != 5 {
			t.Errorf("booking_ids = %v", body.BookingIds)
		}
		if len(body.ItemIds) != 0 {
			t.Errorf("broker verify must not send item_ids: %v", body.ItemIds)
		}
		if body.PaymentData.GatewaySignature != "sig" {
			t.Errorf("signature = %s", body.PaymentData.GatewaySignature)
		}
		io.WriteString(w, `{"ok": true, "settled_count": 2}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 5*time.Second)
	intent := models.PaymentIntent{OrderId: "order_xyz", TargetItemIds: []int{5, 6}, Bulk: true}
	result := models.GatewayResult{PaymentId: "pay_1", OrderId: "order_xyz", Signature: "sig"}
	count, err := c.VerifyPayment(context.Background(), models.PayeeKindBroker, intent, result)
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if count != 2 {
		t.Errorf("settled count = %d", count)
	}
}

func TestMarkSettled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vendor/payments/settle" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body settleRequest
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.ItemIds) != 3 {
			t.Errorf("item_ids = %v", body.ItemIds)
		}
		io.WriteString(w, `{"ok": true, "settled_count": 3, "message": "settled"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 5*time.Second)
	count, err := c.MarkSettled(context.Background(), models.PayeeKindVendor, 42, []int{1, 2, 3})
	if err != nil {
		t.Fatalf("MarkSettled: %v", err)
	}
	if count != 3 {
		t.Errorf("settled count = %d", count)
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   utils.ErrorKind
	}{
		{"conflict is stale state", http.StatusConflict, `{"ok":false,"message":"items changed"}`, utils.ErrorKindStaleState},
		{"unprocessable is validation", http.StatusUnprocessableEntity, `{"ok":false,"message":"nothing selected"}`, utils.ErrorKindValidation},
		{"bad request is validation", http.StatusBadRequest, `{"ok":false,"message":"bad payload"}`, utils.ErrorKindValidation},
		{"server error is transient", http.StatusInternalServerError, `boom`, utils.ErrorKindTransient},
		{"bad gateway is transient", http.StatusBadGateway, ``, utils.ErrorKindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := testClient(t, srv.URL, 5*time.Second)
			_, err := c.PreparePayment(context.Background(), models.PayeeKindVendor, 1)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := utils.KindOf(err); got != tt.want {
				t.Errorf("kind = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOkFalseOnMutationIsStaleState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok": false, "message": "already settled"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 5*time.Second)
	_, err := c.PreparePayment(context.Background(), models.PayeeKindVendor, 1)
	if !utils.IsStaleState(err) {
		t.Fatalf("err = %v, want stale state", err)
	}
}

func TestTimeoutOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		io.WriteString(w, `{"ok": true}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 50*time.Millisecond)

	// A timed-out mutation has an unknown server-side outcome.
	_, err := c.MarkSettled(context.Background(), models.PayeeKindVendor, 42, []int{1})
	if !utils.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
	if !utils.IsOutcomeUnknown(err) {
		t.Error("timed-out mutation must report outcome unknown")
	}

	// A timed-out read is just a failed read.
	_, err = c.FetchSummary(context.Background(), models.PayeeKindVendor, 42, testPeriod(), models.SummaryOptions{})
	if !utils.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
	if utils.IsOutcomeUnknown(err) {
		t.Error("timed-out read must not report outcome unknown")
	}
}
