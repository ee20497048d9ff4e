package models

import "encoding/json"

// Transport status of a single tool-server call (ToolResult.Status).
const (
	ToolStatusOK      = "ok"
	ToolStatusTimeout = "timeout"
	ToolStatusError   = "error"
)

// Protocol status of a tool-server response body (ToolResponse.Status).
const (
	ResponseStatusOK                  = "ok"
	ResponseStatusError               = "error"
	ResponseStatusPendingConfirmation = "pending_confirmation"
)

// ToolResult is the per-server envelope produced by the tool client.
// Status describes the transport outcome; protocol-level errors from the
// tool server itself arrive as status "ok" with an error-shaped payload.
type ToolResult struct {
	Server     string        `json:"server"`
	Status     string        `json:"status"`
	Payload    *ToolResponse `json:"payload"`
	Error      string        `json:"error,omitempty"`
	DurationMs int64         `json:"durationMs"`
}

// OK reports whether the call completed at the transport level.
func (r *ToolResult) OK() bool { return r.Status == ToolStatusOK }

// ToolResponse is the body a tool server returns, discriminated by Status.
//
//	ok                   → Data (+ optional Metadata)
//	error                → Code, Message, SuggestedAction
//	pending_confirmation → ConfirmationID, Message, Action, Data
//
// Raw preserves the undecoded body so pending-confirmation payloads can be
// passed through to the client byte-exact.
type ToolResponse struct {
	Status   string            `json:"status"`
	Data     json.RawMessage   `json:"data,omitempty"`
	Metadata *ResponseMetadata `json:"metadata,omitempty"`

	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	SuggestedAction string `json:"suggestedAction,omitempty"`

	ConfirmationID string `json:"confirmationId,omitempty"`
	Action         string `json:"action,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ResponseMetadata carries pagination and truncation hints from a tool
// server. After auto-pagination the tool client replaces it with the
// aggregate counts (ReturnedCount, TotalCount, PagesRetrieved).
type ResponseMetadata struct {
	HasMore        bool   `json:"hasMore,omitempty"`
	NextCursor     string `json:"nextCursor,omitempty"`
	Hint           string `json:"hint,omitempty"`
	Truncated      bool   `json:"truncated,omitempty"`
	ReturnedCount  int    `json:"returnedCount,omitempty"`
	TotalCount     int    `json:"totalCount,omitempty"`
	PagesRetrieved int    `json:"pagesRetrieved,omitempty"`
}
