package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-seat-booking/internal/model"
	"github.com/iliyamo/workshop-seat-booking/internal/service"
)

// checkoutTimeout covers the store transaction plus the gateway retries.
const checkoutTimeout = 30 * time.Second

// PaymentHandler creates payment intents and reports their status.
type PaymentHandler struct {
	Reconciler service.Reconciler
	Log        logrus.FieldLogger
}

func NewPaymentHandler(r service.Reconciler, log logrus.FieldLogger) *PaymentHandler {
	if r == nil {
		panic("nil reconciler passed to NewPaymentHandler")
	}
	return &PaymentHandler{Reconciler: r, Log: log}
}

type createIntentReq struct {
	SeatNumber  int            `json:"seat_number"`
	HolderToken string         `json:"holder_token"`
	Customer    model.Customer `json:"customer"`
	Amount      int64          `json:"amount"`
}

// intentView is the public status of an intent.  Contact details stay out.
type intentView struct {
	OrderCode     int64              `json:"order_code"`
	SeatNumber    int                `json:"seat_number"`
	Amount        int64              `json:"amount"`
	Status        model.IntentStatus `json:"status"`
	CheckoutURL   *string            `json:"checkout_url,omitempty"`
	ReservationID *string            `json:"reservation_id,omitempty"`
	FailureReason *string            `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// CreateIntent handles POST /v1/payments/intents.
func (h *PaymentHandler) CreateIntent(c echo.Context) error {
	var req createIntentReq
	if err := c.Bind(&req); err != nil {
		return reject(c, http.StatusBadRequest, reasonInvalidBody)
	}
	ctx, cancel := withTimeoutOf(c, checkoutTimeout)
	defer cancel()

	in, err := h.Reconciler.CreateIntent(ctx, service.CreateIntentRequest{
		SeatNumber:  req.SeatNumber,
		HolderToken: holderToken(c, req.HolderToken),
		Customer:    req.Customer,
		Amount:      req.Amount,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	checkout := ""
	if in.CheckoutURL != nil {
		checkout = *in.CheckoutURL
	}
	return c.JSON(http.StatusOK, echo.Map{"checkout_url": checkout, "order_code": in.OrderCode})
}

// GetIntent handles GET /v1/payments/intents/:order_code.  The return page
// polls it until the webhook has settled the intent.
func (h *PaymentHandler) GetIntent(c echo.Context) error {
	code, err := strconv.ParseInt(c.Param("order_code"), 10, 64)
	if err != nil || code <= 0 {
		return reject(c, http.StatusBadRequest, reasonInvalidBody)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	in, err := h.Reconciler.GetIntent(ctx, code)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, intentView{
		OrderCode:     in.OrderCode,
		SeatNumber:    in.SeatNumber,
		Amount:        in.Amount,
		Status:        in.Status,
		CheckoutURL:   in.CheckoutURL,
		ReservationID: in.ReservationRef,
		FailureReason: in.FailureReason,
		UpdatedAt:     in.UpdatedAt,
	})
}
