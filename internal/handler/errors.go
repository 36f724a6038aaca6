package handler

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorHandler returns the central Echo error handler. Client errors keep
// their status with a short JSON message; everything else becomes a 500.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")
	return func(err error, c echo.Context) {
		req := c.Request()
		if c.Response().Committed {
			logger.Error("error after response was committed",
				"err", err,
				"path", req.URL.Path,
			)
			return
		}

		code, body := http.StatusInternalServerError, map[string]string(nil)

		var he *echo.HTTPError
		switch {
		case errors.As(err, &he) && he.Code < http.StatusInternalServerError:
			code = he.Code
			body = map[string]string{"error": httpErrorMessage(he)}
		case errors.Is(err, fs.ErrNotExist):
			code = http.StatusNotFound
			body = map[string]string{"error": http.StatusText(http.StatusNotFound)}
		default:
			logger.Error("gateway error",
				"err", err,
				"method", req.Method,
				"path", req.URL.Path,
			)
			body = map[string]string{
				"error":   "Internal gateway error",
				"message": err.Error(),
			}
		}

		var werr error
		if req.Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, body)
		}
		if werr != nil {
			logger.Error("writing error response", "err", werr)
		}
	}
}

func httpErrorMessage(he *echo.HTTPError) string {
	if msg, ok := he.Message.(string); ok && msg != "" {
		return msg
	}
	return http.StatusText(he.Code)
}
