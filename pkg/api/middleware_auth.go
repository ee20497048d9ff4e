package api

import (
	"context"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/aigateway/pkg/models"
)

type callerKey struct{}

// callerFrom returns the caller identity stored by the auth gate.
func callerFrom(c *echo.Context) (*models.CallerContext, bool) {
	caller, ok := c.Request().Context().Value(callerKey{}).(*models.CallerContext)
	return caller, ok
}

// authGate returns middleware that authenticates every request: token
// extraction, signature verification against the key set, then the
// revocation check. The caller identity lands on the request context.
//
// Token sources in priority order: the Authorization header, then the
// deprecated token query parameter kept for EventSource clients that
// cannot set headers. The parameter source is logged (never the value).
func (s *Server) authGate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			token := bearerToken(c.Request())
			if token == "" {
				if token = c.QueryParam("token"); token != "" {
					s.logger.Warn("Token supplied via deprecated query parameter",
						"path", c.Request().URL.Path)
				}
			}
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			caller, err := s.verifier.Verify(c.Request().Context(), token)
			if err != nil {
				return authHTTPError(err)
			}

			// Tokens without a jti skip the revocation check. A store error
			// is treated as not-revoked: an unreachable store must not lock
			// every caller out.
			if caller.TokenID != "" {
				revoked, revErr := s.revocations.IsRevoked(c.Request().Context(), caller.TokenID)
				if revErr != nil {
					s.logger.Warn("Revocation check failed, treating token as valid", "error", revErr)
				} else if revoked {
					s.logger.Warn("Revoked token rejected", "user_id", caller.UserID)
					return echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
				}
			}

			ctx := context.WithValue(c.Request().Context(), callerKey{}, caller)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// bearerToken extracts the token from the Authorization header, or "".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
