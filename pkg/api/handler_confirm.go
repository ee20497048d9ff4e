package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// confirmHandler handles POST /api/confirm/:confirmationId, the second
// phase of a write. The envelope is consumed on first take, so a replayed
// confirmation id finds nothing and gets a 404.
func (s *Server) confirmHandler(c *echo.Context) error {
	caller, ok := callerFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	confirmationID := c.Param("confirmationId")
	if confirmationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "confirmation id is required")
	}

	var req ConfirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	env, err := s.confirmations.TakeOnce(c.Request().Context(), confirmationID)
	if err != nil {
		return mapError(err)
	}
	if env == nil {
		return echo.NewHTTPError(http.StatusNotFound, "confirmation not found or expired")
	}

	// The envelope is bound to the user who triggered the proposal.
	if env.UserID != caller.UserID {
		s.logger.Warn("Confirmation attempted by a different user",
			"confirmation_id", confirmationID, "owner", env.UserID, "caller", caller.UserID)
		return echo.NewHTTPError(http.StatusForbidden, "confirmation belongs to a different user")
	}

	if !req.Approved {
		s.logger.Info("Write action cancelled",
			"confirmation_id", confirmationID, "action", env.Action, "server", env.MCPServer)
		return c.JSON(http.StatusOK, &ConfirmCancelledResponse{Status: "cancelled"})
	}

	// The server name travels inside the envelope; validate it against the
	// static registry so a tampered envelope cannot route a write anywhere.
	server, err := s.servers.Get(env.MCPServer)
	if err != nil {
		s.logger.Error("Confirmation envelope names an unknown tool server",
			"confirmation_id", confirmationID, "server", env.MCPServer)
		return echo.NewHTTPError(http.StatusInternalServerError, "confirmation cannot be dispatched")
	}

	result := s.toolClient.Execute(c.Request().Context(), server, env.Action, env.Data, caller,
		requestIDFrom(c.Request().Context()))
	if !result.OK() {
		s.logger.Error("Confirmed write failed",
			"confirmation_id", confirmationID, "server", env.MCPServer, "error", result.Error)
		return echo.NewHTTPError(http.StatusBadGateway, "tool server did not accept the write")
	}

	s.logger.Info("Confirmed write executed",
		"confirmation_id", confirmationID, "action", env.Action, "server", env.MCPServer)
	return writeRawJSON(c, http.StatusOK, result.Payload.Raw)
}
