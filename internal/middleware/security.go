package middleware

import (
	"net/textproto"
	"strings"

	"github.com/labstack/echo/v4"

	"permit-gateway/internal/model"
)

// SecurityHeaders returns an Echo middleware that adds security headers
// and strips hop-by-hop headers from incoming requests.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			hdr := c.Request().Header
			for _, v := range hdr.Values("Connection") {
				for _, name := range strings.Split(v, ",") {
					if name = textproto.TrimString(name); name != "" {
						hdr.Del(name)
					}
				}
			}
			for _, h := range model.HopByHopHeaders {
				hdr.Del(h)
			}

			// Set before the handler runs; headers are frozen once the
			// status line is written. Proxied responses may override them.
			c.Response().Header().Set("X-Content-Type-Options", "nosniff")
			c.Response().Header().Set("X-Frame-Options", "SAMEORIGIN")

			return next(c)
		}
	}
}
