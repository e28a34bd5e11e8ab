package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-seat-booking/internal/gateway"
	"github.com/iliyamo/workshop-seat-booking/internal/service"
)

const (
	maxWebhookBody    = 64 << 10
	settlementTimeout = 15 * time.Second
)

// WebhookHandler receives settlement callbacks from the payment gateway.
// Every delivery is acknowledged with 200; failures are recorded for
// reconciliation instead of being reported back to the gateway.
type WebhookHandler struct {
	Verifier   gateway.WebhookVerifier
	Reconciler service.Reconciler
	Log        logrus.FieldLogger
}

func NewWebhookHandler(v gateway.WebhookVerifier, r service.Reconciler, log logrus.FieldLogger) *WebhookHandler {
	if v == nil || r == nil {
		panic("nil dependency passed to NewWebhookHandler")
	}
	return &WebhookHandler{Verifier: v, Reconciler: r, Log: log}
}

var ack = echo.Map{"success": true}

// Probe handles GET on the webhook path.  PayOS checks that the URL answers
// before it accepts it.
func (h *WebhookHandler) Probe(c echo.Context) error {
	return c.JSON(http.StatusOK, ack)
}

// Receive handles POST on the webhook path.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		h.Log.WithError(err).Warn("webhook body unreadable")
		return c.JSON(http.StatusOK, ack)
	}

	ev, err := h.Verifier.ParseWebhook(body)
	switch {
	case errors.Is(err, gateway.ErrInvalidSignature):
		h.Log.WithField("remote_ip", c.RealIP()).Warn("webhook rejected: bad signature")
		return c.JSON(http.StatusOK, ack)
	case errors.Is(err, gateway.ErrUnknownOutcome):
		h.Log.WithError(err).Info("webhook ignored")
		return c.JSON(http.StatusOK, ack)
	case err != nil:
		h.Log.WithError(err).Warn("webhook rejected: malformed")
		return c.JSON(http.StatusOK, ack)
	}

	// The settlement must finish even if the gateway hangs up early.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), settlementTimeout)
	defer cancel()
	if err := h.Reconciler.HandleSettlementEvent(ctx, service.SettlementEvent{
		OrderCode:  ev.OrderCode,
		Outcome:    ev.Outcome,
		RawPayload: string(ev.Raw),
	}); err != nil {
		h.Log.WithError(err).WithField("order_code", ev.OrderCode).Error("webhook settlement failed")
	}
	return c.JSON(http.StatusOK, ack)
}
