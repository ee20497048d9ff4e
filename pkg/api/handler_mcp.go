package api

import (
	"net/http"
	"regexp"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/aigateway/pkg/models"
	"github.com/codeready-toolchain/aigateway/pkg/tools"
)

// toolNameRe guards the proxied path segment against traversal and SSRF.
var toolNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// mcpProxyHandler handles GET and POST /api/mcp/:serverName/:toolName,
// forwarding a single tool invocation to the named server. The tool
// server's JSON body is returned verbatim, protocol-level errors included.
func (s *Server) mcpProxyHandler(c *echo.Context) error {
	caller, ok := callerFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	serverName := c.Param("serverName")
	toolName := c.Param("toolName")
	if !toolNameRe.MatchString(toolName) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tool name")
	}

	server, err := s.servers.Get(serverName)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown tool server")
	}
	if !server.AccessibleTo(caller.Roles) {
		s.logger.Warn("Tool server access denied",
			"server", serverName, "user_id", caller.UserID)
		return echo.NewHTTPError(http.StatusForbidden, "access to this tool server is denied")
	}

	var req MCPQueryRequest
	if c.Request().Method == http.MethodGet {
		req.Query = c.QueryParam("q")
		req.Cursor = c.QueryParam("cursor")
	} else if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result := s.toolClient.CallTool(c.Request().Context(), server, toolName, req.Query, caller, tools.QueryOptions{
		Cursor:    req.Cursor,
		RequestID: requestIDFrom(c.Request().Context()),
	})
	if !result.OK() {
		s.logger.Error("Tool invocation failed",
			"server", serverName, "tool", toolName, "error", result.Error)
		if result.Status == models.ToolStatusTimeout {
			return echo.NewHTTPError(http.StatusGatewayTimeout, "tool server did not respond in time")
		}
		return echo.NewHTTPError(http.StatusBadGateway, "tool server request failed")
	}
	return writeRawJSON(c, http.StatusOK, result.Payload.Raw)
}
