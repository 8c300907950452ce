package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Freeeeeet/scheduler_engine/internal/model"
)

var errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "actor is not authenticated")

// statusFor HTTP-статус для ошибки движка
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrOverlapConflict),
		errors.Is(err, model.ErrVersionConflict),
		errors.Is(err, model.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func newHTTPErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			code int
			body echo.Map
		)

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			code = httpErr.Code
			body = echo.Map{"error": httpErr.Message}
		} else {
			code = statusFor(err)
			if code == http.StatusInternalServerError {
				logger.Error("Request failed",
					zap.String("path", c.Path()),
					zap.Error(err),
				)
				body = echo.Map{"error": http.StatusText(code), "code": "internal"}
			} else {
				body = echo.Map{"error": err.Error(), "code": model.ErrorCode(err)}
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
	}
}
