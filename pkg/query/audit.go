package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/aigateway/pkg/models"
)

// Record is the per-request accountability entry. Query text is
// PII-redacted and truncated before it reaches a record; raw queries
// never appear in audit output.
type Record struct {
	Timestamp        time.Time               `json:"timestamp"`
	RequestID        string                  `json:"requestId"`
	UserID           string                  `json:"userId"`
	Username         string                  `json:"username"`
	Roles            []string                `json:"roles"`
	Query            string                  `json:"query"`
	ServersConsulted []string                `json:"serversConsulted"`
	ServersDenied    []string                `json:"serversDenied"`
	Success          bool                    `json:"success"`
	DurationMs       int64                   `json:"durationMs"`
	Warnings         []models.ServiceWarning `json:"warnings,omitempty"`
	Reason           string                  `json:"reason,omitempty"`
}

// Sink receives one Record per request. Implementations must tolerate a
// cancelled request context; the record is emitted regardless of how the
// request ended.
type Sink interface {
	Emit(ctx context.Context, rec Record)
}

// SlogSink writes audit records to the structured log. Durable audit
// persistence is a deployment concern; this sink keeps the records in the
// log stream where collectors pick them up.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger.With("component", "audit")}
}

func (s *SlogSink) Emit(_ context.Context, rec Record) {
	attrs := []any{
		"request_id", rec.RequestID,
		"user_id", rec.UserID,
		"username", rec.Username,
		"roles", rec.Roles,
		"query", rec.Query,
		"servers_consulted", rec.ServersConsulted,
		"servers_denied", rec.ServersDenied,
		"success", rec.Success,
		"duration_ms", rec.DurationMs,
	}
	if len(rec.Warnings) > 0 {
		attrs = append(attrs, "warning_count", len(rec.Warnings))
	}
	if rec.Reason != "" {
		attrs = append(attrs, "reason", rec.Reason)
	}
	s.logger.Info("Query audit", attrs...)
}
