package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// HeaderIdempotencyKey is the request header clients use to make a create retry-safe.
const HeaderIdempotencyKey = "Idempotency-Key"

const maxIdempotencyKeyLength = 128

// IdempotencyKey validates the optional Idempotency-Key header and exposes it
// as "idempotency_key" in the context.
func IdempotencyKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
			if key == "" {
				return next(c)
			}
			if len(key) > maxIdempotencyKeyLength {
				return echo.NewHTTPError(http.StatusBadRequest, "idempotency key too long")
			}
			for _, r := range key {
				if r < 0x21 || r > 0x7e {
					return echo.NewHTTPError(http.StatusBadRequest, "idempotency key must be printable ASCII")
				}
			}
			c.Set("idempotency_key", key)
			return next(c)
		}
	}
}
