package models

// Stream event types, carried in the "type" field of each SSE data object.
const (
	EventTypeText               = "text"
	EventTypeServiceUnavailable = "service_unavailable"
	EventTypePagination         = "pagination"
	EventTypeError              = "error"
)

// DoneSentinel terminates every stream: "data: [DONE]\n\n".
const DoneSentinel = "[DONE]"

// TextEvent carries one increment of LLM output.
type TextEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServiceWarning describes one failed tool server in a partial-failure
// notice. Code is TIMEOUT or ERROR.
type ServiceWarning struct {
	Server  string `json:"server"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning codes for ServiceWarning.
const (
	WarningCodeTimeout = "TIMEOUT"
	WarningCodeError   = "ERROR"
)

// ServiceUnavailableEvent notifies the client that some tool servers
// failed while the rest of the request proceeds. Emitted before the first
// text event.
type ServiceUnavailableEvent struct {
	Type              string           `json:"type"`
	Warnings          []ServiceWarning `json:"warnings"`
	SuccessfulServers []string         `json:"successfulServers"`
	FailedServers     []string         `json:"failedServers"`
}

// ServerCursor pairs a tool server with the opaque cursor that resumes its
// pagination.
type ServerCursor struct {
	Server string `json:"server"`
	Cursor string `json:"cursor"`
}

// PaginationEvent is the trailing event emitted when any tool server has
// more pages available.
type PaginationEvent struct {
	Type    string         `json:"type"`
	HasMore bool           `json:"hasMore"`
	Cursors []ServerCursor `json:"cursors"`
	Hint    string         `json:"hint"`
}

// ErrorEvent is the terminal event for fatal failures during streaming.
// The stream still closes with the done sentinel afterwards.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
