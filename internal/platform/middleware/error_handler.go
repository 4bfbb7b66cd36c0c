package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorHandler renders every error as {"detail": ...} with the status of the
// underlying echo.HTTPError. Anything else is a 500 whose cause is logged
// but never sent to the client.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if !errors.As(err, &he) {
			he = echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
		}

		if he.Code >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			cause := he.Internal
			if cause == nil {
				cause = err
			}
			logger.Error().
				Err(cause).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Int("status", he.Code).
				Msg("request failed")
		}

		detail := he.Message
		if detail == nil {
			detail = http.StatusText(he.Code)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(he.Code)
		} else {
			werr = c.JSON(he.Code, map[string]interface{}{"detail": detail})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("failed to write error response")
		}
	}
}
