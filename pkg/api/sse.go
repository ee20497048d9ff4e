package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/codeready-toolchain/aigateway/pkg/models"
)

// sseWriter frames pipeline events as server-sent events. Writes are
// serialized: heartbeats and drain notices arrive from other goroutines
// than the pipeline's.
type sseWriter struct {
	mu sync.Mutex
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

// Begin commits the event-stream headers and flushes them so the client
// sees the stream open before the first event arrives.
func (s *sseWriter) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	return s.rc.Flush()
}

// Event writes one data frame.
func (s *sseWriter) Event(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.writeFrame(fmt.Sprintf("data: %s\n\n", data))
}

// Comment writes a keep-alive comment frame, invisible to SSE parsers.
func (s *sseWriter) Comment(text string) error {
	return s.writeFrame(fmt.Sprintf(": %s\n\n", text))
}

// Done writes the terminating sentinel frame.
func (s *sseWriter) Done() error {
	return s.writeFrame(fmt.Sprintf("data: %s\n\n", models.DoneSentinel))
}

func (s *sseWriter) writeFrame(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, frame); err != nil {
		return err
	}
	return s.rc.Flush()
}
