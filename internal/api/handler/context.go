package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/commissionhub/commission-api/internal/core/domain"
)

// ctxUserID extracts the caller id injected by the Auth middleware. An empty
// value means the middleware did not run for this route; fail fast with 401.
func ctxUserID(c echo.Context) (string, error) {
	userID, _ := c.Get("user_id").(string)
	if userID == "" {
		return "", domain.ErrUnauthenticated
	}
	return userID, nil
}

// ctxIdempotencyKey returns the key accepted by the IdempotencyKey middleware, if any.
func ctxIdempotencyKey(c echo.Context) string {
	key, _ := c.Get("idempotency_key").(string)
	return key
}
