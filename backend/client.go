// Package backend is the REST client for the marketplace backend's
// settlement endpoints: summary reads, the prepare/verify legs of the
// gateway payment protocol, and the out-of-band mark-settled mutation.
//
// The backend owns all durable settlement state. This client never invents
// amounts or flips settled flags locally; it reports what the server said
// and classifies failures so callers know which retry action is safe.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lebrqksd-bot/lebrqapp-sub005/config"
	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
	"github.com/lebrqksd-bot/lebrqapp-sub005/utils"
)

var tracer = otel.Tracer("settlement-backend")

type Client struct {
	baseURL      string
	token        string
	gatewayKeyId string
	http         *http.Client
	limiter      <-chan time.Time
	logger       *logrus.Logger
}

// NewClient builds a settlement API client from explicit settings. The
// bearer token is fixed at construction; nothing is read from ambient
// storage per call.
func NewClient(settings config.Settings, logger *logrus.Logger) (*Client, error) {
	if strings.TrimSpace(settings.APIToken) == "" {
		return nil, errors.New("settlement api token is empty")
	}
	if strings.TrimSpace(settings.APIBaseURL) == "" {
		return nil, errors.New("settlement api base url is empty")
	}
	rateLimitPerMin := settings.RateLimitPerMin
	if rateLimitPerMin <= 0 {
		rateLimitPerMin = 60
	}
	timeout := settings.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:      strings.TrimRight(settings.APIBaseURL, "/"),
		token:        settings.APIToken,
		gatewayKeyId: settings.GatewayKeyId,
		http:         &http.Client{Timeout: timeout},
		limiter:      time.Tick(time.Minute / time.Duration(rateLimitPerMin)),
		logger:       logger,
	}, nil
}

func route(kind models.PayeeKind) string {
	if kind == models.PayeeKindBroker {
		return "broker"
	}
	return "vendor"
}

// FetchSummary is the authoritative reconciliation read: callers replace
// their whole in-memory summary with the result, never merge.
func (c *Client) FetchSummary(ctx context.Context, kind models.PayeeKind, payeeId int, period models.SettlementPeriod, opts models.SummaryOptions) (*models.PaymentSummary, error) {
	params := url.Values{}
	params.Set("payee_id", strconv.Itoa(payeeId))
	params.Set("period", string(period.Kind))
	params.Set("period_start", period.Start.Format(time.RFC3339))
	params.Set("period_end", period.End.Format(time.RFC3339))
	if kind == models.PayeeKindVendor {
		params.Set("include_unverified", strconv.FormatBool(opts.IncludeUnverified))
	}

	var resp summaryResponse
	path := fmt.Sprintf("/%s/payments/summary", route(kind))
	if err := c.do(ctx, http.MethodGet, path, params, nil, &resp, false); err != nil {
		config.LogError(c.logger, "client.go", "FetchSummary", "do", map[string]any{"payee_id": payeeId, "period": period.Kind}, err)
		return nil, err
	}
	return resp.toSummary(period), nil
}

// PreparePayment fixes the amount for a single line item and returns the
// gateway order to authorize. The item must be unsettled in the caller's
// most recently fetched summary; a stale selection is rejected server-side.
func (c *Client) PreparePayment(ctx context.Context, kind models.PayeeKind, itemId int) (*models.PaymentIntent, error) {
	body := preparePaymentRequest{}
	if kind == models.PayeeKindBroker {
		body.BookingId = itemId
	} else {
		body.ItemId = itemId
	}

	var resp prepareResponse
	path := fmt.Sprintf("/%s/payments/prepare-payment", route(kind))
	if err := c.do(ctx, http.MethodPost, path, nil, body, &resp, true); err != nil {
		config.LogError(c.logger, "client.go", "PreparePayment", "do", body, err)
		return nil, err
	}
	itemIds := resp.ItemIds
	if len(itemIds) == 0 {
		itemIds = []int{itemId}
	}
	return &models.PaymentIntent{
		OrderId:       resp.OrderId,
		Amount:        resp.Amount,
		TargetItemIds: itemIds,
		GatewayKeyId:  c.gatewayKeyId,
		Bulk:          false,
		CreatedAt:     time.Now(),
	}, nil
}

// PrepareBulkPayment fixes the amount for every currently unsettled item of
// the payee's period. The server recomputes the target set; the returned
// item ids are the contract for the later verify.
func (c *Client) PrepareBulkPayment(ctx context.Context, kind models.PayeeKind, payeeId int, period models.SettlementPeriod, includeUnverified bool) (*models.PaymentIntent, error) {
	body := prepareBulkPaymentRequest{
		PayeeId:           payeeId,
		PeriodKind:        string(period.Kind),
		PeriodStart:       period.Start,
		PeriodEnd:         period.End,
		IncludeUnverified: includeUnverified,
	}

	var resp prepareResponse
	path := fmt.Sprintf("/%s/payments/prepare-bulk-payment", route(kind))
	if err := c.do(ctx, http.MethodPost, path, nil, body, &resp, true); err != nil {
		config.LogError(c.logger, "client.go", "PrepareBulkPayment", "do", body, err)
		return nil, err
	}
	return &models.PaymentIntent{
		OrderId:       resp.OrderId,
		Amount:        resp.Amount,
		TargetItemIds: resp.ItemIds,
		GatewayKeyId:  c.gatewayKeyId,
		Bulk:          true,
		CreatedAt:     time.Now(),
	}, nil
}

// VerifyPayment exchanges the gateway's signed result for settled items.
// Safe to retry with the identical payload: the server is idempotent per
// order id. Any failure here after a real authorization is surfaced as
// POST_AUTHORIZATION by the caller, not by this method.
func (c *Client) VerifyPayment(ctx context.Context, kind models.PayeeKind, intent models.PaymentIntent, result models.GatewayResult) (int, error) {
	body := verifyPaymentRequest{
		OrderId: intent.OrderId,
		PaymentData: paymentData{
			GatewayPaymentId: result.PaymentId,
			GatewayOrderId:   result.OrderId,
			GatewaySignature: result.Signature,
		},
	}
	if kind == models.PayeeKindBroker {
		body.BookingIds = intent.TargetItemIds
	} else {
		body.ItemIds = intent.TargetItemIds
	}

	endpoint := "verify-payment"
	if intent.Bulk {
		endpoint = "verify-bulk-payment"
	}

	var resp verifyResponse
	path := fmt.Sprintf("/%s/payments/%s", route(kind), endpoint)
	if err := c.do(ctx, http.MethodPost, path, nil, body, &resp, true); err != nil {
		config.LogError(c.logger, "client.go", "VerifyPayment", "do", map[string]any{"order_id": intent.OrderId}, err)
		return 0, err
	}
	return resp.SettledCount, nil
}

// MarkSettled records an out-of-band settlement (e.g. bank transfer) for the
// given items. Single atomic mutation; the server treats already-settled ids
// as no-ops so a duplicate call returns 0.
func (c *Client) MarkSettled(ctx context.Context, kind models.PayeeKind, payeeId int, itemIds []int) (int, error) {
	body := settleRequest{PayeeId: payeeId}
	if kind == models.PayeeKindBroker {
		body.BookingIds = itemIds
	} else {
		body.ItemIds = itemIds
	}

	var resp settleResponse
	path := fmt.Sprintf("/%s/payments/settle", route(kind))
	if err := c.do(ctx, http.MethodPost, path, nil, body, &resp, true); err != nil {
		config.LogError(c.logger, "client.go", "MarkSettled", "do", body, err)
		return 0, err
	}
	return resp.SettledCount, nil
}

// do performs one request and classifies failures. mutation marks requests
// whose abort leaves the server-side outcome unknown.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any, out any, mutation bool) error {
	ctx, span := tracer.Start(ctx, method+" "+path, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Bool("settlement.mutation", mutation),
	))
	defer span.End()

	<-c.limiter

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return utils.NewValidationError("could not encode request: " + err.Error())
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return utils.NewValidationError("could not build request: " + err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(err, mutation)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, raw, mutation)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return utils.NewTransientError("could not decode response", err, false)
	}

	// Some endpoints report rejection as ok=false with a 2xx status. A
	// rejected prepare/settle means the target set changed underneath us.
	var probe errorResponse
	if err := json.Unmarshal(raw, &probe); err == nil && probeSaysNotOk(raw, probe) {
		msg := probe.Message
		if msg == "" {
			msg = probe.Error
		}
		if msg == "" {
			msg = "request rejected"
		}
		if mutation {
			return utils.NewStaleStateError(msg)
		}
		return utils.NewValidationError(msg)
	}

	return nil
}

// probeSaysNotOk only trusts ok=false when the field is actually present.
func probeSaysNotOk(raw []byte, probe errorResponse) bool {
	if probe.Ok {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	_, present := fields["ok"]
	return present
}

func classifyTransportError(err error, mutation bool) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.NewTransientError("request timed out", err, mutation)
	}
	if errors.Is(err, context.Canceled) {
		return utils.NewTransientError("request cancelled", err, mutation)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return utils.NewTransientError("request timed out", err, mutation)
	}
	// Connection-level failures before a response; for idempotent reads the
	// outcome is simply "no data", for mutations we still cannot be sure the
	// request never reached the server.
	return utils.NewTransientError("network failure", err, mutation)
}

func classifyStatus(status int, raw []byte, mutation bool) error {
	var payload errorResponse
	_ = json.Unmarshal(raw, &payload)
	msg := payload.Message
	if msg == "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusConflict:
		return utils.NewStaleStateError(msg)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return utils.NewTransientError(msg, fmt.Errorf("api status %d", status), mutation && status == http.StatusRequestTimeout)
	case status >= 400 && status < 500:
		return utils.NewValidationError(msg)
	default:
		return utils.NewTransientError(fmt.Sprintf("api error %d: %s", status, msg), fmt.Errorf("api status %d", status), false)
	}
}
