package middleware

// identity.go holds the request identity used by the rate limiter.  Staff
// requests are identified by their JWT subject.  Holder tokens are chosen by
// the client, so a seat client is known only by its address.

import (
	"github.com/labstack/echo/v4"
)

// HolderTokenHeader lets clients present their holder token outside the body.
const HolderTokenHeader = "X-Holder-Token"

// currentUserID returns the staff subject set by JWTAuth, or "anon".
func currentUserID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return "staff:" + s
	}
	return "anon"
}
