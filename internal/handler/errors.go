package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-seat-booking/internal/i18n"
	"github.com/iliyamo/workshop-seat-booking/internal/model"
	"github.com/iliyamo/workshop-seat-booking/internal/service"
)

// requestTimeout bounds the store work a single request may do.
const requestTimeout = 5 * time.Second

const (
	reasonInvalidBody = "INVALID_BODY"
	reasonInternal    = "INTERNAL"
)

// statusByReason maps service reason codes to HTTP statuses.
var statusByReason = map[string]int{
	service.ReasonSeatBooked:       http.StatusConflict,
	service.ReasonSeatHeldByOther:  http.StatusConflict,
	service.ReasonSeatNotFound:     http.StatusNotFound,
	service.ReasonSeatNotHeld:      http.StatusNotFound,
	service.ReasonDuplicateContact: http.StatusConflict,
	service.ReasonCheckout:         http.StatusServiceUnavailable,
	service.ReasonSuperseded:       http.StatusConflict,
	service.ReasonIntentNotFound:   http.StatusNotFound,
	service.ReasonNotFound:         http.StatusNotFound,
	service.ReasonAlreadyVoided:    http.StatusConflict,
}

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return withTimeoutOf(c, requestTimeout)
}

func withTimeoutOf(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), d)
}

// reject writes {"error", "reason"} with the message localized from the
// request's Accept-Language.
func reject(c echo.Context, status int, reason string) error {
	tag := i18n.Negotiate(c.Request().Header.Get("Accept-Language"))
	return c.JSON(status, echo.Map{"error": i18n.Message(tag, reason), "reason": reason})
}

// fail classifies err and writes the matching response.  Anything the
// service layer does not name is logged and reported as 500.
func fail(c echo.Context, log logrus.FieldLogger, err error) error {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return reject(c, http.StatusBadRequest, verr.Code)
	}
	if reason := service.ReasonCode(err); reason != "" {
		return reject(c, statusByReason[reason], reason)
	}
	log.WithError(err).WithField("path", c.Path()).Error("request failed")
	return reject(c, http.StatusInternalServerError, reasonInternal)
}
