package api

import (
	echo "github.com/labstack/echo/v5"
)

// ConfirmCancelledResponse is returned when the caller declines a proposed
// write action.
type ConfirmCancelledResponse struct {
	Status string `json:"status"`
}

// HealthCheck reports one component's health.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// writeRawJSON forwards a pre-encoded JSON body verbatim, bypassing
// re-serialization so tool-server responses reach the client byte-exact.
func writeRawJSON(c *echo.Context, status int, body []byte) error {
	c.Response().Header().Set("Content-Type", "application/json")
	c.Response().WriteHeader(status)
	_, err := c.Response().Write(body)
	return err
}
