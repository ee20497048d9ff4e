package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/aigateway/pkg/query"
)

// queryStreamHandler handles POST /api/query and GET /api/query.
// The response is an event stream; once streaming has started, failures
// surface as error events on the stream instead of HTTP status codes.
func (s *Server) queryStreamHandler(c *echo.Context) error {
	caller, ok := callerFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req QueryRequest
	if c.Request().Method == http.MethodGet {
		req.Query = c.QueryParam("q")
		req.Cursor = c.QueryParam("cursor")
	} else if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	err := s.orchestrator.HandleStream(c.Request().Context(), caller, query.Request{
		RequestID: requestIDFrom(c.Request().Context()),
		SessionID: req.SessionID,
		Query:     req.Query,
		Cursor:    req.Cursor,
	}, newSSEWriter(c.Response()))
	if err != nil {
		return mapError(err)
	}
	return nil
}

// syncQueryHandler handles POST /api/ai/query: the whole reply in a single
// JSON body instead of a stream.
func (s *Server) syncQueryHandler(c *echo.Context) error {
	caller, ok := callerFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req AIQueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	resp, err := s.orchestrator.HandleSync(c.Request().Context(), caller, query.Request{
		RequestID: requestIDFrom(c.Request().Context()),
		SessionID: req.ConversationID,
		Query:     req.Query,
	})
	if err != nil {
		return mapError(err)
	}
	if resp.Passthrough != nil {
		return writeRawJSON(c, http.StatusOK, resp.Passthrough)
	}
	return c.JSON(http.StatusOK, resp)
}
