package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/etlabplus/internal/errors"
	"github.com/hrygo/etlabplus/internal/observability"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const codeInternal = "INTERNAL"

// respondError writes err with the status of its code. Errors without a
// code are reported as internal and their detail is only logged.
func respondError(c echo.Context, err error) error {
	logger := observability.LoggerFrom(c.Request().Context())

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.FromContext(err)
	}
	if appErr == nil {
		logger.Error("request failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Code: codeInternal, Message: "internal error"})
	}

	status := appErr.HTTPStatus()
	attrs := []any{
		slog.String(observability.LogFieldErrorCode, string(appErr.Code)),
		slog.String("error", appErr.Error()),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
	} else {
		logger.Debug("request rejected", attrs...)
	}
	return c.JSON(status, ErrorResponse{Code: string(appErr.Code), Message: appErr.Message})
}
