package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/workshop-seat-booking/internal/handler"
)

// Redis-backed middlewares shared by the route groups.  Each one is a
// pass-through when Redis is unavailable.
type Middlewares struct {
	RateLimit  echo.MiddlewareFunc // token bucket on client mutations
	Cache      echo.MiddlewareFunc // seat map response cache
	Invalidate echo.MiddlewareFunc // bumps the seat map cache after a mutation
}

// RegisterRoutes registers routes that do not require authentication and
// do not touch seats.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the staff login.  There is no self-service
// registration; the one staff account comes from the environment.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, mw Middlewares) {
	g := e.Group("/v1/auth")
	g.POST("/login", a.Login, mw.RateLimit)
}

// RegisterWebhooks registers the gateway callbacks.  They are not rate
// limited: the gateway retries on its own schedule and every delivery must
// reach the reconciler.
func RegisterWebhooks(e *echo.Echo, w *handler.WebhookHandler, mw Middlewares) {
	g := e.Group("/v1/webhooks")
	g.GET("/payos", w.Probe)
	g.POST("/payos", w.Receive, mw.Invalidate)
}
