package models

import "encoding/json"

// ConfirmationEnvelope is the first phase of a two-phase write: a tool
// server proposes an action, the gateway caches the envelope under its id,
// and the initiating caller must confirm before the action executes.
//
// Only the caller whose UserID matches may confirm. The envelope is read
// at most once (retrieve-and-delete) and expires otherwise.
type ConfirmationEnvelope struct {
	ConfirmationID string `json:"confirmationId"`
	Action         string `json:"action"`
	// MCPServer names the tool server that proposed the action. It is
	// validated against the static server registry before dispatch and is
	// never dereferenced into a request URL without that check.
	MCPServer string `json:"mcpServer"`
	UserID    string `json:"userId"`
	CreatedAt int64  `json:"createdAt"` // unix millis
	Message   string `json:"message,omitempty"`

	// Data holds the action-specific fields, opaque to the gateway and
	// forwarded verbatim to the tool server's execute path.
	Data json.RawMessage `json:"data,omitempty"`
}
