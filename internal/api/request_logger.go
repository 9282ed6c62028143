package api

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// requestLogger writes one structured line per request through zerolog.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == "/health" || p == "/metrics" || strings.HasPrefix(p, "/swagger")
		},
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Status >= 500 {
				evt = log.Error()
			} else if v.Status >= 400 {
				evt = log.Warn()
			}
			if v.Error != nil {
				evt = evt.Err(v.Error)
			}
			userID, _ := c.Get("user_id").(string)
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Str("user_id", userID).
				Msg(fmt.Sprintf("%s %s", v.Method, v.URI))
			return nil
		},
	})
}

// uploadLimit caps the request body of multipart uploads. The extra slack
// covers multipart framing around the file part.
func uploadLimit(maxBytes int64) echo.MiddlewareFunc {
	if maxBytes <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	const slack = 1 << 20
	return echomiddleware.BodyLimit(fmt.Sprintf("%dB", maxBytes+slack))
}
