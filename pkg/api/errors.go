package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/aigateway/pkg/auth"
	"github.com/codeready-toolchain/aigateway/pkg/defense"
	"github.com/codeready-toolchain/aigateway/pkg/query"
)

// mapError maps pipeline errors to HTTP error responses.
func mapError(err error) *echo.HTTPError {
	if errors.Is(err, defense.ErrInvalidInput) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if errors.Is(err, query.ErrUpstream) {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request exceeded the processing time budget")
	}

	// Unexpected error
	slog.Error("Unexpected handler error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// authHTTPError maps verification failures to 401 responses whose message
// names the failure class without echoing any token material.
func authHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return echo.NewHTTPError(http.StatusUnauthorized, "token is expired")
	case errors.Is(err, auth.ErrTokenRevoked):
		return echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
	case errors.Is(err, auth.ErrIssuerMismatch):
		return echo.NewHTTPError(http.StatusUnauthorized, "token issuer is not accepted")
	case errors.Is(err, auth.ErrAudienceMismatch):
		return echo.NewHTTPError(http.StatusUnauthorized, "token audience is not accepted")
	case errors.Is(err, auth.ErrKeyNotFound):
		return echo.NewHTTPError(http.StatusUnauthorized, "token signing key is not recognized")
	case errors.Is(err, auth.ErrBadSignature):
		return echo.NewHTTPError(http.StatusUnauthorized, "token signature is invalid")
	default:
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
}
