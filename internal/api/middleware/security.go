package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders adds common security headers to every response. The
// download endpoints serve attachments, so a restrictive CSP costs nothing.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", "default-src 'none'")
			return next(c)
		}
	}
}
