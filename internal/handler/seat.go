package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-seat-booking/internal/middleware"
	"github.com/iliyamo/workshop-seat-booking/internal/model"
	"github.com/iliyamo/workshop-seat-booking/internal/service"
)

// SeatHandler serves the seat map and the hold endpoints.  Clients are
// anonymous; they identify themselves with a holder token minted by
// CreateSession and sent either in the body or the X-Holder-Token header.
type SeatHandler struct {
	Locks   service.SeatLockManager
	HoldTTL time.Duration
	Log     logrus.FieldLogger
}

// NewSeatHandler constructs a SeatHandler.  locks must be non-nil.
func NewSeatHandler(locks service.SeatLockManager, holdTTL time.Duration, log logrus.FieldLogger) *SeatHandler {
	if locks == nil {
		panic("nil seat lock manager passed to NewSeatHandler")
	}
	return &SeatHandler{Locks: locks, HoldTTL: holdTTL, Log: log}
}

// seatView is the client-facing seat.  Holder tokens never leave the server;
// Mine tells the caller which hold is theirs.
type seatView struct {
	SeatNumber int              `json:"seat_number"`
	Status     model.SeatStatus `json:"status"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	Mine       bool             `json:"mine,omitempty"`
}

func viewOf(s model.Seat, token string) seatView {
	v := seatView{SeatNumber: s.SeatNumber, Status: s.Status}
	if s.Status == model.SeatHeld {
		v.ExpiresAt = s.ExpiresAt
		v.Mine = token != "" && s.HolderToken != nil && *s.HolderToken == token
	}
	return v
}

type selectReq struct {
	SeatNumber         int    `json:"seat_number"`
	HolderToken        string `json:"holder_token"`
	PreviousSeatNumber *int   `json:"previous_seat_number"`
}

type releaseReq struct {
	SeatNumber  int    `json:"seat_number"`
	HolderToken string `json:"holder_token"`
}

func holderToken(c echo.Context, fromBody string) string {
	if t := strings.TrimSpace(fromBody); t != "" {
		return t
	}
	return strings.TrimSpace(c.Request().Header.Get(middleware.HolderTokenHeader))
}

// CreateSession handles POST /v1/sessions.  It mints a fresh holder token.
func (h *SeatHandler) CreateSession(c echo.Context) error {
	return c.JSON(http.StatusCreated, echo.Map{
		"holder_token":     uuid.NewString(),
		"hold_ttl_seconds": int(h.HoldTTL / time.Second),
	})
}

// List handles GET /v1/seats.  An optional holder_token query marks the
// caller's own holds.  The header is ignored here: responses are cached by
// route and query only.
func (h *SeatHandler) List(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	seats, err := h.Locks.Snapshot(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	token := strings.TrimSpace(c.QueryParam("holder_token"))
	out := make([]seatView, 0, len(seats))
	for _, s := range seats {
		out = append(out, viewOf(s, token))
	}
	return c.JSON(http.StatusOK, echo.Map{"seats": out})
}

// Select handles POST /v1/seats/select.  It takes or refreshes a hold; with
// previous_seat_number it first drops the caller's hold on that seat.
func (h *SeatHandler) Select(c echo.Context) error {
	var req selectReq
	if err := c.Bind(&req); err != nil {
		return reject(c, http.StatusBadRequest, reasonInvalidBody)
	}
	token := holderToken(c, req.HolderToken)

	ctx, cancel := withTimeout(c)
	defer cancel()
	var (
		seat *model.Seat
		err  error
	)
	if req.PreviousSeatNumber != nil {
		seat, err = h.Locks.ReassignOnSwap(ctx, *req.PreviousSeatNumber, req.SeatNumber, token)
	} else {
		seat, err = h.Locks.Acquire(ctx, req.SeatNumber, token)
	}
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"seat": viewOf(*seat, token)})
}

// Release handles POST /v1/seats/release.  Releasing a seat the caller does
// not hold still answers 200.
func (h *SeatHandler) Release(c echo.Context) error {
	var req releaseReq
	if err := c.Bind(&req); err != nil {
		return reject(c, http.StatusBadRequest, reasonInvalidBody)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Locks.Release(ctx, req.SeatNumber, holderToken(c, req.HolderToken)); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": true})
}
