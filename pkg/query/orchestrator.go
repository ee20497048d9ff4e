// Package query drives a user query end to end: input sanitisation,
// role-based routing, concurrent tool-server fan-out, partial-failure
// notices, prompt assembly, and the LLM reply stream. It also owns the
// active-stream registry that shutdown drains and the per-request audit
// trail.
package query

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeready-toolchain/aigateway/pkg/config"
	"github.com/codeready-toolchain/aigateway/pkg/confirm"
	"github.com/codeready-toolchain/aigateway/pkg/defense"
	"github.com/codeready-toolchain/aigateway/pkg/llm"
	"github.com/codeready-toolchain/aigateway/pkg/models"
	"github.com/codeready-toolchain/aigateway/pkg/tools"
)

// Audit reasons for requests that did not complete normally.
const (
	reasonInputRejected     = "input_rejected"
	reasonClientDisconnect  = "client_disconnect"
	reasonBudgetExceeded    = "budget_exceeded"
	reasonDrained           = "server_drained"
	reasonCancelled         = "cancelled"
	reasonLLMUnavailable    = "llm_unavailable"
	reasonLLMFailure        = "llm_failure"
	reasonOutputPolicy      = "output_policy"
	reasonConfirmStoreError = "confirmation_store_error"
)

const auditQueryLimit = 100

// Request is one user query to orchestrate. SessionID scopes the query
// delimiters; Cursor resumes tool-server pagination.
type Request struct {
	RequestID string
	SessionID string
	Query     string
	Cursor    string
}

// Orchestrator wires the pipeline stages together. One instance serves
// all requests.
type Orchestrator struct {
	servers       *config.ToolServerRegistry
	toolClient    *tools.Client
	defense       *defense.Service
	llm           llm.Client
	confirmations confirm.Store
	auditSink     Sink
	streams       *Registry

	requestTimeout time.Duration
	heartbeat      time.Duration
	confirmTTL     time.Duration

	logger *slog.Logger
}

func NewOrchestrator(
	cfg *config.Config,
	toolClient *tools.Client,
	defenseSvc *defense.Service,
	llmClient llm.Client,
	confirmations confirm.Store,
	auditSink Sink,
	streams *Registry,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		servers:        cfg.Servers,
		toolClient:     toolClient,
		defense:        defenseSvc,
		llm:            llmClient,
		confirmations:  confirmations,
		auditSink:      auditSink,
		streams:        streams,
		requestTimeout: cfg.Server.RequestTimeout,
		heartbeat:      cfg.Server.Heartbeat(),
		confirmTTL:     cfg.Confirmation.TTL,
		logger:         logger.With("component", "orchestrator"),
	}
}

// Streams exposes the active-stream registry for lifecycle management.
func (o *Orchestrator) Streams() *Registry {
	return o.streams
}

// eventSink receives pipeline events in order. The streaming entry passes
// its transport writer; the sync entry passes an accumulator.
type eventSink interface {
	Event(v any) error
}

// runOutcome summarises a pipeline run for the audit record and the sync
// response.
type runOutcome struct {
	success   bool
	reason    string
	pending   bool
	consulted []string
	denied    []string
	failed    []string
	warnings  []models.ServiceWarning
}

// run executes the routing, fan-out, classification, notice, and
// LLM-streaming stages. Input validation is the entry points' concern
// since its failure mode differs per transport.
func (o *Orchestrator) run(ctx context.Context, caller *models.CallerContext, req Request, sink eventSink) runOutcome {
	out := runOutcome{}

	routing := tools.Route(o.servers, caller)
	out.consulted = routing.AllowedNames()
	out.denied = routing.Denied
	o.logger.Info("Routing query",
		"request_id", req.RequestID,
		"user_id", caller.UserID,
		"servers_allowed", len(routing.Allowed),
		"servers_denied", len(routing.Denied))

	results := o.fanOut(ctx, routing.Allowed, caller, req)

	var successful, failed []string
	var warnings []models.ServiceWarning
	for _, r := range results {
		if r.OK() {
			successful = append(successful, r.Server)
			continue
		}
		failed = append(failed, r.Server)
		code := models.WarningCodeError
		if r.Status == models.ToolStatusTimeout {
			code = models.WarningCodeTimeout
		}
		warnings = append(warnings, models.ServiceWarning{Server: r.Server, Code: code, Message: r.Error})
	}
	out.failed = failed
	out.warnings = warnings

	if pending := firstPending(results); pending != nil {
		return o.parkConfirmation(ctx, caller, pending, sink, out)
	}

	if len(warnings) > 0 {
		notice := models.ServiceUnavailableEvent{
			Type:              models.EventTypeServiceUnavailable,
			Warnings:          warnings,
			SuccessfulServers: emptyIfNil(successful),
			FailedServers:     emptyIfNil(failed),
		}
		if err := sink.Event(notice); err != nil {
			out.reason = reasonClientDisconnect
			return out
		}
	}

	stream, err := o.llm.Stream(ctx, llm.Request{
		Query:      req.Query,
		Caller:     caller,
		Delimiters: o.defense.DelimitersFor(req.SessionID),
		Results:    results,
	})
	if err != nil {
		o.logger.Error("LLM stream could not be opened", "request_id", req.RequestID, "error", err)
		_ = sink.Event(models.ErrorEvent{Type: models.EventTypeError, Message: "The language model is currently unavailable"})
		out.reason = reasonLLMUnavailable
		return out
	}

	for chunk := range stream {
		if ctx.Err() != nil {
			break
		}
		switch chunk.Kind {
		case llm.ChunkText:
			screened, err := o.defense.ScreenOutput(chunk.Text)
			if err != nil {
				o.logger.Error("Response rejected by output policy", "request_id", req.RequestID)
				_ = sink.Event(models.ErrorEvent{Type: models.EventTypeError, Message: "The response was withheld by the output policy"})
				out.reason = reasonOutputPolicy
				return out
			}
			redacted, _ := o.defense.RedactOutput(screened)
			if err := sink.Event(models.TextEvent{Type: models.EventTypeText, Text: redacted}); err != nil {
				out.reason = reasonClientDisconnect
				return out
			}
		case llm.ChunkPagination:
			if err := sink.Event(chunk.Pagination); err != nil {
				out.reason = reasonClientDisconnect
				return out
			}
		case llm.ChunkError:
			_ = sink.Event(models.ErrorEvent{Type: models.EventTypeError, Message: chunk.Err})
			out.reason = reasonLLMFailure
			return out
		}
	}
	if ctx.Err() != nil {
		out.reason = reasonCancelled
		return out
	}

	out.success = true
	return out
}

// fanOut queries every allowed server concurrently, writing each result
// at its server's declaration index so downstream stages see a
// deterministic order no matter which call finished first. All calls are
// joined before returning.
func (o *Orchestrator) fanOut(ctx context.Context, servers []*config.ToolServer, caller *models.CallerContext, req Request) []models.ToolResult {
	if len(servers) == 0 {
		return nil
	}
	results := make([]models.ToolResult, len(servers))
	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		g.Go(func() error {
			results[i] = o.toolClient.Query(gctx, srv, req.Query, caller, tools.QueryOptions{
				Cursor:       req.Cursor,
				AutoPaginate: true,
				RequestID:    req.RequestID,
			})
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// parkConfirmation caches the proposed write under its confirmation id
// and forwards the proposal verbatim. The LLM never sees a pending write.
func (o *Orchestrator) parkConfirmation(ctx context.Context, caller *models.CallerContext, r *models.ToolResult, sink eventSink, out runOutcome) runOutcome {
	p := r.Payload
	env := &models.ConfirmationEnvelope{
		ConfirmationID: p.ConfirmationID,
		Action:         p.Action,
		MCPServer:      r.Server,
		UserID:         caller.UserID,
		CreatedAt:      time.Now().UnixMilli(),
		Message:        p.Message,
		Data:           p.Data,
	}
	if err := o.confirmations.Put(ctx, env, o.confirmTTL); err != nil {
		o.logger.Error("Failed to store pending confirmation",
			"confirmation_id", p.ConfirmationID, "server", r.Server, "error", err)
		_ = sink.Event(models.ErrorEvent{Type: models.EventTypeError, Message: "The proposed action could not be queued for confirmation"})
		out.reason = reasonConfirmStoreError
		return out
	}
	o.logger.Info("Write proposal pending confirmation",
		"confirmation_id", p.ConfirmationID,
		"server", r.Server,
		"action", p.Action,
		"user_id", caller.UserID)

	if err := sink.Event(p.Raw); err != nil {
		out.reason = reasonClientDisconnect
		return out
	}
	out.success = true
	out.pending = true
	return out
}

// firstPending returns the first pending-confirmation result in
// declaration order, or nil.
func firstPending(results []models.ToolResult) *models.ToolResult {
	for i := range results {
		r := &results[i]
		if r.OK() && r.Payload != nil && r.Payload.Status == models.ResponseStatusPendingConfirmation {
			return r
		}
	}
	return nil
}

func (o *Orchestrator) emitAudit(ctx context.Context, caller *models.CallerContext, req Request, start time.Time, out runOutcome) {
	rec := Record{
		Timestamp:        start,
		RequestID:        req.RequestID,
		UserID:           caller.UserID,
		Username:         caller.Username,
		Roles:            caller.Roles,
		Query:            truncateRunes(o.defense.RedactForLog(req.Query), auditQueryLimit),
		ServersConsulted: out.consulted,
		ServersDenied:    out.denied,
		Success:          out.success,
		DurationMs:       time.Since(start).Milliseconds(),
		Warnings:         out.warnings,
		Reason:           out.reason,
	}
	o.auditSink.Emit(context.WithoutCancel(ctx), rec)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
