package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/workshop-seat-booking/internal/handler"
	"github.com/iliyamo/workshop-seat-booking/internal/middleware"
)

// RegisterStaff registers STAFF-scoped endpoints under /v1/admin.  All
// routes require a valid JWT and the STAFF role.
func RegisterStaff(e *echo.Echo, a *handler.AdminHandler, jwtSecret string, mw Middlewares) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleStaff),
	)
	g.GET("/reservations", a.ListReservations)
	g.POST("/reservations/:id/void", a.VoidReservation, mw.Invalidate)
	g.GET("/settlement-failures", a.ListFailures)
	g.POST("/sweep", a.Sweep, mw.Invalidate)
}
