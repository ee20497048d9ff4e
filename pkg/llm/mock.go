package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeready-toolchain/aigateway/pkg/models"
)

// MockClient synthesises deterministic replies without contacting the
// provider. The reply echoes the caller identity, the consulted servers,
// and the tool data verbatim so integration tests can assert on all of
// them. Data never leaves the process, so no redaction happens here.
type MockClient struct {
	logger *slog.Logger
}

func NewMockClient(logger *slog.Logger) *MockClient {
	return &MockClient{logger: logger.With("component", "llm", "provider", "mock")}
}

func (c *MockClient) Query(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.logger.Debug("Serving mock LLM response", "username", req.Caller.Username)
	return &Response{Text: mockText(req)}, nil
}

func (c *MockClient) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	c.logger.Debug("Serving mock LLM stream", "username", req.Caller.Username)

	ch := make(chan Chunk, streamChunkBuffer)
	go func() {
		defer close(ch)
		emit := func(chunk Chunk) bool {
			select {
			case ch <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, line := range strings.SplitAfter(mockText(req), "\n") {
			if line == "" {
				continue
			}
			if !emit(Chunk{Kind: ChunkText, Text: line}) {
				return
			}
		}
		if pg := PaginationFromResults(req.Results); pg != nil {
			emit(Chunk{Kind: ChunkPagination, Pagination: pg})
		}
	}()
	return ch, nil
}

// mockText builds the canned reply. Only transport-OK results with
// protocol-OK payloads contribute data lines, mirroring what the real
// prompt would carry.
func mockText(req Request) string {
	servers := make([]string, 0, len(req.Results))
	for _, r := range req.Results {
		servers = append(servers, r.Server)
	}
	consulted := "none"
	if len(servers) > 0 {
		consulted = strings.Join(servers, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Mock response for %s (roles: %s). Consulted servers: %s.\n\n",
		req.Caller.Username, strings.Join(req.Caller.Roles, ", "), consulted)
	for _, r := range req.Results {
		if !r.OK() || r.Payload == nil || r.Payload.Status != models.ResponseStatusOK || len(r.Payload.Data) == 0 {
			continue
		}
		fmt.Fprintf(&b, "Data from %s: %s\n", r.Server, string(r.Payload.Data))
	}
	return b.String()
}
