package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cloudonix/voicerouter/internal/engineerr"
)

// mapEngineError maps engineerr's error taxonomy to HTTP error responses for
// the operator read API. The webhook endpoints never call this — they always
// answer 200 regardless of outcome, per spec.md §6.
func mapEngineError(err error) *echo.HTTPError {
	var validErr *engineerr.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, engineerr.ErrTenantIsolation) {
		return echo.NewHTTPError(http.StatusForbidden, "tenant isolation violation")
	}
	if errors.Is(err, engineerr.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, engineerr.ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	}
	if errors.Is(err, engineerr.ErrStoreUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "shared store unavailable")
	}

	slog.Error("unexpected engine error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
