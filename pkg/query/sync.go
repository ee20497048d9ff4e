package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/aigateway/pkg/models"
)

// Sync response statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
)

// ErrUpstream marks pipeline failures behind the gateway (LLM provider,
// confirmation store). The API layer maps it to a bad-gateway status.
var ErrUpstream = errors.New("upstream failure")

// SyncResponse is the single-body reply of the non-streaming endpoint.
type SyncResponse struct {
	RequestID string                  `json:"requestId"`
	Response  string                  `json:"response"`
	Status    string                  `json:"status"`
	Metadata  SyncMetadata            `json:"metadata"`
	Warnings  []models.ServiceWarning `json:"warnings,omitempty"`

	// Passthrough, when set, replaces the whole body: pending-confirmation
	// proposals are forwarded to the client verbatim.
	Passthrough json.RawMessage `json:"-"`
}

// SyncMetadata reports which servers served the query and how long the
// whole request took.
type SyncMetadata struct {
	DataSourcesQueried []string `json:"dataSourcesQueried"`
	DataSourcesFailed  []string `json:"dataSourcesFailed"`
	ProcessingTimeMs   int64    `json:"processingTimeMs"`
}

// syncCollector accumulates pipeline events into a single response body.
type syncCollector struct {
	text        strings.Builder
	passthrough json.RawMessage
	errMessage  string
}

func (s *syncCollector) Event(v any) error {
	switch ev := v.(type) {
	case models.TextEvent:
		s.text.WriteString(ev.Text)
	case json.RawMessage:
		s.passthrough = ev
	case models.ErrorEvent:
		s.errMessage = ev.Message
	}
	return nil
}

// HandleSync runs the pipeline and accumulates the reply into one body.
// Pagination chunks are dropped; callers wanting incremental output or
// cursors use the streaming endpoint.
func (o *Orchestrator) HandleSync(parent context.Context, caller *models.CallerContext, req Request) (*SyncResponse, error) {
	start := time.Now()

	if err := o.defense.ValidateInput(req.Query); err != nil {
		o.emitAudit(parent, caller, req, start, runOutcome{reason: reasonInputRejected})
		return nil, err
	}

	ctx, cancel := context.WithTimeout(parent, o.requestTimeout)
	defer cancel()

	collector := &syncCollector{}
	out := o.run(ctx, caller, req, collector)
	o.emitAudit(ctx, caller, req, start, out)

	if out.pending {
		return &SyncResponse{RequestID: req.RequestID, Passthrough: collector.passthrough}, nil
	}
	if !out.success {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, context.DeadlineExceeded
		}
		msg := collector.errMessage
		if msg == "" {
			msg = "query processing failed"
		}
		return nil, fmt.Errorf("%w: %s", ErrUpstream, msg)
	}

	status := StatusSuccess
	if len(out.failed) > 0 {
		status = StatusPartial
	}
	return &SyncResponse{
		RequestID: req.RequestID,
		Response:  collector.text.String(),
		Status:    status,
		Metadata: SyncMetadata{
			DataSourcesQueried: emptyIfNil(out.consulted),
			DataSourcesFailed:  emptyIfNil(out.failed),
			ProcessingTimeMs:   time.Since(start).Milliseconds(),
		},
		Warnings: out.warnings,
	}, nil
}
