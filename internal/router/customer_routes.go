package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/workshop-seat-booking/internal/handler"
)

// RegisterCustomer registers the attendee endpoints under /v1.  Attendees
// are anonymous and carry a holder token instead of a JWT.  Mutations go
// through the rate limiter; seat mutations also invalidate the cached seat
// map.
func RegisterCustomer(e *echo.Echo, s *handler.SeatHandler, p *handler.PaymentHandler, mw Middlewares) {
	g := e.Group("/v1")

	g.POST("/sessions", s.CreateSession, mw.RateLimit)
	g.GET("/seats", s.List, mw.Cache)
	g.POST("/seats/select", s.Select, mw.RateLimit, mw.Invalidate)
	g.POST("/seats/release", s.Release, mw.RateLimit, mw.Invalidate)

	g.POST("/payments/intents", p.CreateIntent, mw.RateLimit)
	g.GET("/payments/intents/:order_code", p.GetIntent)
}
