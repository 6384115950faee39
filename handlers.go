package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/lebrqksd-bot/lebrqapp-sub005/appctx"
	"github.com/lebrqksd-bot/lebrqapp-sub005/gateway"
	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
	"github.com/lebrqksd-bot/lebrqapp-sub005/settlement"
	"github.com/lebrqksd-bot/lebrqapp-sub005/utils"
)

// writeSettlementError maps the error taxonomy to distinct HTTP statuses so
// the browser can pick the right user action without parsing messages:
// 422 fix your input, 409 reload the summary, 502/504 retry, 500 with a
// POST_AUTHORIZATION code means money moved and only a verify retry helps.
func writeSettlementError(c *gin.Context, err error) {
	var se *utils.SettlementError
	if !errors.As(err, &se) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "code": string(utils.ErrorKindTransient)})
		return
	}

	switch se.Kind {
	case utils.ErrorKindValidation:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": se.Error(), "code": string(se.Kind)})
	case utils.ErrorKindStaleState:
		c.JSON(http.StatusConflict, gin.H{"error": se.Error(), "code": string(se.Kind)})
	case utils.ErrorKindPostAuthorization:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    se.Error(),
			"code":     string(se.Kind),
			"order_id": se.OrderId,
		})
	default:
		status := http.StatusBadGateway
		if se.OutcomeUnknown {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": se.Error(), "code": string(se.Kind), "outcome_unknown": se.OutcomeUnknown})
	}
}

type createSessionRequest struct {
	PayeeKind  string `json:"payee_kind" binding:"required,payeekind"`
	PeriodKind string `json:"period_kind" binding:"required,periodkind"`
	Payee      struct {
		ID                  int             `json:"id" binding:"required"`
		DisplayName         string          `json:"display_name" binding:"required"`
		ContactEmail        string          `json:"contact_email"`
		ContactPhone        string          `json:"contact_phone"`
		BrokeragePercentage decimal.Decimal `json:"brokerage_percentage"`
	} `json:"payee" binding:"required"`
	IncludeUnverified bool `json:"include_unverified"`
}

func createSessionHandler(sessions *SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		payeeKind, err := models.ParsePayeeKind(req.PayeeKind)
		if err != nil {
			writeSettlementError(c, utils.NewValidationError(err.Error()))
			return
		}
		periodKind, err := models.ParsePeriodKind(req.PeriodKind)
		if err != nil {
			writeSettlementError(c, utils.NewValidationError(err.Error()))
			return
		}

		id, ctrl := sessions.Create(payeeKind)
		payee := models.Payee{
			ID:                  req.Payee.ID,
			Kind:                payeeKind,
			DisplayName:         req.Payee.DisplayName,
			ContactEmail:        req.Payee.ContactEmail,
			ContactPhone:        req.Payee.ContactPhone,
			BrokeragePercentage: req.Payee.BrokeragePercentage,
		}
		payee.ContactPhone = payee.NormalizedPhone()
		if err := ctrl.SelectPayee(payee); err != nil {
			sessions.Delete(id)
			writeSettlementError(c, err)
			return
		}
		if err := ctrl.SelectPeriod(periodKind); err != nil {
			sessions.Delete(id)
			writeSettlementError(c, err)
			return
		}
		ctrl.SetIncludeUnverified(req.IncludeUnverified)

		ctx := sessionContext(c.Request.Context(), id, payeeKind, payee.ID)
		if err := ctrl.Refresh(ctx); err != nil {
			// The session is usable even when the first fetch fails; the
			// snapshot carries the stale flag and the client retries refresh.
			c.JSON(http.StatusCreated, gin.H{"session_id": id, "snapshot": ctrl.Snapshot(), "refresh_error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"session_id": id, "snapshot": ctrl.Snapshot()})
	}
}

func withSession(sessions *SessionManager, handle func(c *gin.Context, ctrl *settlement.Controller)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl, ok := sessions.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		handle(c, ctrl)
	}
}

func sessionContext(parent context.Context, sessionId string, kind models.PayeeKind, payeeId int) context.Context {
	ctx := appctx.Set(parent, appctx.ContextKeySessionId, sessionId)
	ctx = appctx.Set(ctx, appctx.ContextKeyPayeeKind, string(kind))
	ctx = appctx.Set(ctx, appctx.ContextKeyPayeeId, payeeId)
	return ctx
}

// requestContext rebuilds the session-scoped context for follow-up calls on
// an existing session.
func requestContext(c *gin.Context, ctrl *settlement.Controller) context.Context {
	snap := ctrl.Snapshot()
	kind := models.PayeeKind("")
	payeeId := 0
	if snap.Payee != nil {
		kind = snap.Payee.Kind
		payeeId = snap.Payee.ID
	}
	return sessionContext(c.Request.Context(), c.Param("id"), kind, payeeId)
}

func summaryHandler(sessions *SessionManager) gin.HandlerFunc {
	return withSession(sessions, func(c *gin.Context, ctrl *settlement.Controller) {
		c.JSON(http.StatusOK, gin.H{"snapshot": ctrl.Snapshot()})
	})
}

type refreshRequest struct {
	IncludeUnverified *bool `json:"include_unverified"`
}

func refreshHandler(sessions *SessionManager) gin.HandlerFunc {
	return withSession(sessions, func(c *gin.Context, ctrl *settlement.Controller) {
		var req refreshRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
				return
			}
		}
		if req.IncludeUnverified != nil {
			ctrl.SetIncludeUnverified(*req.IncludeUnverified)
		}
		if err := ctrl.Refresh(requestContext(c, ctrl)); err != nil {
			writeSettlementError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"snapshot": ctrl.Snapshot()})
	})
}

type payRequest struct {
	ItemId *int `json:"item_id"`
}

func payHandler(sessions *SessionManager) gin.HandlerFunc {
	return withSession(sessions, func(c *gin.Context, ctrl *settlement.Controller) {
		var req payRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
				return
			}
		}

		ctx := requestContext(c, ctrl)
		var intent *models.PaymentIntent
		var err error
		if req.ItemId != nil {
			intent, err = ctrl.PayItem(ctx, *req.ItemId)
		} else {
			intent, err = ctrl.PayAll(ctx)
		}
		if err != nil {
			writeSettlementError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"checkout": gateway.BuildCheckout(*intent),
			"intent":   intent,
			"snapshot": ctrl.Snapshot(),
		})
	})
}

func authorizeResultHandler(sessions *SessionManager) gin.HandlerFunc {
	return withSession(sessions, func(c *gin.Context, ctrl *settlement.Controller) {
		var result models.GatewayResult
		if err := c.ShouldBindJSON(&result); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		settled, err := ctrl.SubmitAuthorization(requestContext(c, ctrl), result)
		if err != nil {
			writeSettlementError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"settled_count": settled, "snapshot": ctrl.Snapshot()})
	})
}

func cancelHandler(sessions *SessionManager) gin.HandlerFunc {
	return withSession(sessions, func(c *gin.Context, ctrl *settlement.Controller) {
		ctrl.CancelAuthorization()
		c.JSON(http.StatusOK, gin.H{"snapshot": ctrl.Snapshot()})
	})
}

func retryVerifyHandler(sessions *SessionManager) gin.HandlerFunc {
	return withSession(sessions, func(c *gin.Context, ctrl *settlement.Controller) {
		settled, err := ctrl.RetryVerify(requestContext(c, ctrl))
		if err != nil {
			writeSettlementError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"settled_count": settled, "snapshot": ctrl.Snapshot()})
	})
}

type markSettledRequest struct {
	ItemIds []int `json:"item_ids"`
}

func markSettledHandler(sessions *SessionManager) gin.HandlerFunc {
	return withSession(sessions, func(c *gin.Context, ctrl *settlement.Controller) {
		var req markSettledRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
				return
			}
		}
		settled, err := ctrl.MarkSettled(requestContext(c, ctrl), req.ItemIds)
		if err != nil {
			writeSettlementError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"settled_count": settled, "snapshot": ctrl.Snapshot()})
	})
}
