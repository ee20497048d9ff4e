package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeready-toolchain/aigateway/pkg/config"
	"github.com/codeready-toolchain/aigateway/pkg/models"
)

// Identity headers propagated to every tool-server call.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
	HeaderRequestID = "X-Request-ID"
)

const maxResponseBytes = 10 << 20

// QueryOptions tunes a single tool-server query.
type QueryOptions struct {
	// Cursor resumes a previous query from an opaque position.
	Cursor string

	// AutoPaginate follows hasMore/nextCursor metadata up to the
	// configured page cap.
	AutoPaginate bool

	// IsWrite selects the write timeout budget.
	IsWrite bool

	// RequestID is propagated for cross-service tracing.
	RequestID string
}

// Client issues queries to tool servers. Each page of a query gets its own
// timeout budget; the caller's context bounds the overall call.
type Client struct {
	httpClient   *http.Client
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxPages     int
	logger       *slog.Logger
}

func NewClient(cfg *config.ToolsConfig, logger *slog.Logger) *Client {
	return &Client{
		httpClient:   &http.Client{},
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		maxPages:     cfg.MaxPages,
		logger:       logger.With("component", "tool_client"),
	}
}

type queryRequest struct {
	Query       string             `json:"query"`
	UserContext models.UserContext `json:"userContext"`
	Cursor      string             `json:"cursor,omitempty"`
}

type executeRequest struct {
	Action      string             `json:"action"`
	Data        json.RawMessage    `json:"data"`
	UserContext models.UserContext `json:"userContext"`
}

// Query sends the text to {endpoint}/query and, for sequence-shaped data,
// follows pagination cursors until the server reports no more pages, the
// page cap is reached, or auto-pagination is off. The aggregated envelope
// carries the concatenated records and replacement metadata with the page
// and record counts; a cursor is preserved when pages remain.
//
// Responses whose data is not a JSON array are returned verbatim, as are
// protocol-level error and pending-confirmation bodies.
func (c *Client) Query(ctx context.Context, server *config.ToolServer, text string, caller *models.CallerContext, opts QueryOptions) models.ToolResult {
	start := time.Now()
	timeout := c.timeoutFor(opts.IsWrite)

	var (
		records   []json.RawMessage
		pages     int
		truncated bool
		lastMeta  *models.ResponseMetadata
		cursor    = opts.Cursor
	)

	for {
		body := queryRequest{Query: text, UserContext: caller.ToUserContext(), Cursor: cursor}
		resp, err := c.post(ctx, server.Endpoint+"/query", body, caller, opts.RequestID, timeout)
		if err != nil {
			return c.failureResult(server.Name, err, timeout, start)
		}
		pages++

		seq, isSequence := asSequence(resp)
		if !isSequence {
			if pages == 1 {
				return okResult(server.Name, resp, start)
			}
			c.logger.Warn("Tool server switched to non-sequence data mid-pagination",
				"server", server.Name, "page", pages)
			break
		}

		records = append(records, seq...)
		lastMeta = resp.Metadata
		if lastMeta != nil && lastMeta.Truncated {
			truncated = true
		}

		if !opts.AutoPaginate || lastMeta == nil || !lastMeta.HasMore || lastMeta.NextCursor == "" || pages >= c.maxPages {
			break
		}
		cursor = lastMeta.NextCursor
	}

	return okResult(server.Name, aggregate(records, pages, truncated, lastMeta), start)
}

// CallTool sends the text to {endpoint}/tools/{toolName}. No pagination;
// the response is returned verbatim.
func (c *Client) CallTool(ctx context.Context, server *config.ToolServer, toolName, text string, caller *models.CallerContext, opts QueryOptions) models.ToolResult {
	start := time.Now()
	timeout := c.timeoutFor(opts.IsWrite)

	body := queryRequest{Query: text, UserContext: caller.ToUserContext(), Cursor: opts.Cursor}
	resp, err := c.post(ctx, server.Endpoint+"/tools/"+toolName, body, caller, opts.RequestID, timeout)
	if err != nil {
		return c.failureResult(server.Name, err, timeout, start)
	}
	return okResult(server.Name, resp, start)
}

// Execute replays a confirmed write action against {endpoint}/execute
// under the write timeout budget.
func (c *Client) Execute(ctx context.Context, server *config.ToolServer, action string, data json.RawMessage, caller *models.CallerContext, requestID string) models.ToolResult {
	start := time.Now()

	body := executeRequest{Action: action, Data: data, UserContext: caller.ToUserContext()}
	resp, err := c.post(ctx, server.Endpoint+"/execute", body, caller, requestID, c.writeTimeout)
	if err != nil {
		return c.failureResult(server.Name, err, c.writeTimeout, start)
	}
	return okResult(server.Name, resp, start)
}

func (c *Client) timeoutFor(isWrite bool) time.Duration {
	if isWrite {
		return c.writeTimeout
	}
	return c.readTimeout
}

func (c *Client) post(ctx context.Context, url string, payload any, caller *models.CallerContext, requestID string, timeout time.Duration) (*models.ToolResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderUserID, caller.UserID)
	req.Header.Set(HeaderUserRoles, strings.Join(caller.Roles, ","))
	if requestID != "" {
		req.Header.Set(HeaderRequestID, requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read tool response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("tool server returned status %d", resp.StatusCode)
	}

	var parsed models.ToolResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode tool response: %w", err)
	}
	parsed.Raw = raw
	return &parsed, nil
}

// asSequence extracts the data array from an ok response. Non-ok statuses
// and non-array data are not paginatable.
func asSequence(resp *models.ToolResponse) ([]json.RawMessage, bool) {
	if resp.Status != models.ResponseStatusOK {
		return nil, false
	}
	trimmed := bytes.TrimSpace(resp.Data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var seq []json.RawMessage
	if err := json.Unmarshal(trimmed, &seq); err != nil {
		return nil, false
	}
	return seq, true
}

// aggregate builds the final envelope for a paginated read: concatenated
// records plus replacement metadata. When the last page still had more, the
// cursor and hint survive so the orchestrator can emit a pagination event.
func aggregate(records []json.RawMessage, pages int, truncated bool, lastMeta *models.ResponseMetadata) *models.ToolResponse {
	if records == nil {
		records = []json.RawMessage{}
	}
	data, _ := json.Marshal(records)

	meta := &models.ResponseMetadata{
		ReturnedCount:  len(records),
		TotalCount:     len(records),
		PagesRetrieved: pages,
		Truncated:      truncated,
	}
	if lastMeta != nil && lastMeta.HasMore {
		meta.HasMore = true
		meta.NextCursor = lastMeta.NextCursor
		meta.Hint = lastMeta.Hint
	}

	return &models.ToolResponse{
		Status:   models.ResponseStatusOK,
		Data:     data,
		Metadata: meta,
	}
}

func okResult(server string, resp *models.ToolResponse, start time.Time) models.ToolResult {
	return models.ToolResult{
		Server:     server,
		Status:     models.ToolStatusOK,
		Payload:    resp,
		DurationMs: time.Since(start).Milliseconds(),
	}
}

func (c *Client) failureResult(server string, err error, timeout time.Duration, start time.Time) models.ToolResult {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.ToolResult{
			Server:     server,
			Status:     models.ToolStatusTimeout,
			Error:      fmt.Sprintf("Service did not respond within %dms", timeout.Milliseconds()),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}
	return models.ToolResult{
		Server:     server,
		Status:     models.ToolStatusError,
		Error:      err.Error(),
		DurationMs: time.Since(start).Milliseconds(),
	}
}
