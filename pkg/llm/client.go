// Package llm sends assembled prompts to the model provider and exposes
// the reply as a single string or a chunk stream. A mock implementation
// takes over when the configured credential carries the test prefix, so
// integration tests never reach the real provider.
package llm

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/aigateway/pkg/config"
	"github.com/codeready-toolchain/aigateway/pkg/defense"
	"github.com/codeready-toolchain/aigateway/pkg/models"
)

// ChunkKind discriminates streamed chunks.
type ChunkKind string

const (
	ChunkText       ChunkKind = "text"
	ChunkPagination ChunkKind = "pagination"
	ChunkError      ChunkKind = "error"
)

// Chunk is one unit of streamed LLM output. Text chunks arrive in order;
// a pagination chunk, if any, is terminal; an error chunk aborts the
// stream. The done sentinel is the transport's concern, not the client's.
type Chunk struct {
	Kind       ChunkKind
	Text       string
	Pagination *models.PaginationEvent
	Err        string
}

// Request is one question for the model: the sanitised query, the caller
// it came from, the session delimiters to wrap it in, and the tool
// results (in configuration declaration order) backing the answer.
type Request struct {
	Query      string
	Caller     *models.CallerContext
	Delimiters defense.Delimiters
	Results    []models.ToolResult
}

// Usage carries the provider's token accounting, including the
// prompt-cache counters.
type Usage struct {
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
}

// Response is the non-streaming reply.
type Response struct {
	Text  string
	Usage Usage
}

// Client answers queries against the model provider.
type Client interface {
	Query(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// InputRedactor scrubs PII from text before it crosses the provider
// boundary. Satisfied by the defense service.
type InputRedactor interface {
	RedactInput(text string) (string, []defense.RedactionSummary)
}

// New selects the provider client, or the mock when the credential starts
// with the test prefix.
func New(cfg *config.LLMConfig, redactor InputRedactor, logger *slog.Logger) Client {
	if cfg.MockMode() {
		logger.Info("LLM mock mode active, provider will not be contacted")
		return NewMockClient(logger)
	}
	return NewAnthropicClient(cfg, redactor, logger)
}

// PaginationFromResults derives the trailing pagination event from tool
// results that still have pages left. Returns nil when every server is
// exhausted.
func PaginationFromResults(results []models.ToolResult) *models.PaginationEvent {
	var cursors []models.ServerCursor
	for _, r := range results {
		if !r.OK() || r.Payload == nil || r.Payload.Metadata == nil {
			continue
		}
		meta := r.Payload.Metadata
		if meta.HasMore && meta.NextCursor != "" {
			cursors = append(cursors, models.ServerCursor{Server: r.Server, Cursor: meta.NextCursor})
		}
	}
	if len(cursors) == 0 {
		return nil
	}
	return &models.PaginationEvent{
		Type:    models.EventTypePagination,
		HasMore: true,
		Cursors: cursors,
		Hint:    "More results are available; resend the query with a returned cursor to fetch the next page.",
	}
}
