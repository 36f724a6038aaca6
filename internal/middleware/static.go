package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"permit-gateway/internal/route"
)

// SPA serves the built front end from root. Paths that match no file and no
// route fall back to index so client-side routing can render the view.
// The /api namespace is never answered from disk.
func SPA(root, index string) echo.MiddlewareFunc {
	return echomw.StaticWithConfig(echomw.StaticConfig{
		Skipper: func(c echo.Context) bool {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead:
			default:
				return true
			}
			return route.IsAPIPath(c.Request().URL.Path)
		},
		Root:  root,
		Index: index,
		HTML5: true,
	})
}
