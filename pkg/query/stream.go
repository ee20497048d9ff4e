package query

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/codeready-toolchain/aigateway/pkg/models"
)

// EventWriter is the transport side of an event stream. The API layer's
// SSE writer implements it; writes must be safe for concurrent use since
// heartbeats and drain notices arrive from other goroutines.
type EventWriter interface {
	// Begin commits the stream headers and flushes them.
	Begin() error
	// Event writes one data frame.
	Event(v any) error
	// Comment writes a keep-alive comment frame.
	Comment(text string) error
	// Done writes the terminating sentinel frame.
	Done() error
}

// HandleStream runs the pipeline against an event stream. Input
// validation happens before the transport commits to streaming, so a
// validation failure returns as a plain error for the transport to map to
// a status code; once Begin succeeds, failures surface as error events on
// the stream and the return is nil.
func (o *Orchestrator) HandleStream(parent context.Context, caller *models.CallerContext, req Request, w EventWriter) error {
	start := time.Now()

	if err := o.defense.ValidateInput(req.Query); err != nil {
		o.emitAudit(parent, caller, req, start, runOutcome{reason: reasonInputRejected})
		return err
	}

	ctx, cancel := context.WithTimeout(parent, o.requestTimeout)
	defer cancel()

	if err := w.Begin(); err != nil {
		o.emitAudit(parent, caller, req, start, runOutcome{reason: reasonClientDisconnect})
		return nil
	}

	var draining atomic.Bool
	o.streams.Register(req.RequestID, cancel, func() {
		draining.Store(true)
		_ = w.Event(models.ErrorEvent{Type: models.EventTypeError, Message: "Server is shutting down, please retry shortly"})
	})
	defer o.streams.Unregister(req.RequestID)

	if o.heartbeat > 0 {
		go o.heartbeatLoop(ctx, w)
	}

	out := o.run(ctx, caller, req, w)

	switch {
	case parent.Err() != nil:
		// Client went away; the connection is dead, write nothing further.
		out.success = false
		out.reason = reasonClientDisconnect
	case out.reason == reasonClientDisconnect:
		out.success = false
	case out.reason == reasonCancelled:
		out.success = false
		if draining.Load() {
			out.reason = reasonDrained
		} else {
			out.reason = reasonBudgetExceeded
			_ = w.Event(models.ErrorEvent{Type: models.EventTypeError, Message: "Request exceeded the processing time budget"})
		}
		_ = w.Done()
	default:
		_ = w.Done()
	}

	o.emitAudit(ctx, caller, req, start, out)
	return nil
}

// heartbeatLoop writes keep-alive comments until the request ends or the
// transport rejects a write.
func (o *Orchestrator) heartbeatLoop(ctx context.Context, w EventWriter) {
	ticker := time.NewTicker(o.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Comment("heartbeat"); err != nil {
				return
			}
		}
	}
}
