package api

// QueryRequest is the HTTP request body for POST /api/query. The GET
// variant carries the same fields as query parameters (q, cursor).
type QueryRequest struct {
	Query     string `json:"query"`
	Cursor    string `json:"cursor,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// AIQueryRequest is the HTTP request body for POST /api/ai/query.
type AIQueryRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ConfirmRequest is the HTTP request body for POST /api/confirm/:confirmationId.
type ConfirmRequest struct {
	Approved bool `json:"approved"`
}

// MCPQueryRequest is the HTTP request body for POST /api/mcp/:serverName/:toolName.
// The GET variant carries the same fields as query parameters (q, cursor).
type MCPQueryRequest struct {
	Query  string `json:"query"`
	Cursor string `json:"cursor,omitempty"`
}
