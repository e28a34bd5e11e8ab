package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-seat-booking/internal/service"
)

// AdminHandler serves the staff endpoints.  JWTAuth and RequireRole run
// before every method.
type AdminHandler struct {
	Reconciler service.Reconciler
	Locks      service.SeatLockManager
	Log        logrus.FieldLogger
}

func NewAdminHandler(r service.Reconciler, locks service.SeatLockManager, log logrus.FieldLogger) *AdminHandler {
	if r == nil || locks == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{Reconciler: r, Locks: locks, Log: log}
}

// ListReservations handles GET /v1/admin/reservations.
func (h *AdminHandler) ListReservations(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	rs, err := h.Reconciler.ListReservations(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": rs})
}

// VoidReservation handles POST /v1/admin/reservations/:id/void.
func (h *AdminHandler) VoidReservation(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return reject(c, http.StatusBadRequest, reasonInvalidBody)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	res, err := h.Reconciler.VoidBooking(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	h.Log.WithFields(logrus.Fields{"reservation_id": id, "staff": c.Get("user_id")}).Info("reservation voided by staff")
	return c.JSON(http.StatusOK, echo.Map{"reservation": res})
}

// ListFailures handles GET /v1/admin/settlement-failures?limit=N.
func (h *AdminHandler) ListFailures(c echo.Context) error {
	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return reject(c, http.StatusBadRequest, reasonInvalidBody)
		}
		limit = n
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	fs, err := h.Reconciler.ListFailures(ctx, limit)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"failures": fs})
}

// Sweep handles POST /v1/admin/sweep.  It frees lapsed holds immediately
// instead of waiting for the background sweeper.
func (h *AdminHandler) Sweep(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	n, err := h.Locks.SweepExpired(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"swept": n})
}
