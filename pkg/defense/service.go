// Package defense implements the prompt-defense pipeline: input
// validation and keyword blocking before a query reaches the LLM,
// session-scoped delimiters around user text inside prompts, and output
// screening (instruction-leak detection, internal-tag detection, PII
// redaction) before anything reaches the client.
package defense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/aigateway/pkg/config"
)

var (
	// ErrInvalidInput rejects a query at the input layers. Mapped to a 400
	// by the API layer.
	ErrInvalidInput = errors.New("invalid input")

	// ErrOutputPolicy fails a response in strict mode when leaked
	// instructions or internal tags are detected.
	ErrOutputPolicy = errors.New("output failed policy screening")
)

// Service is the process-wide defense component. Created once at startup;
// stateless aside from compiled patterns and the delimiter cache.
type Service struct {
	cfg      *config.DefenseConfig
	redactor *redactor
	delims   *delimiterCache
	logger   *slog.Logger
}

func NewService(cfg *config.DefenseConfig, logger *slog.Logger) *Service {
	log := logger.With("component", "defense")
	s := &Service{
		cfg:      cfg,
		redactor: newRedactor(cfg.AllowedEmailDomains),
		delims:   newDelimiterCache(cfg.DelimiterTTL, log),
		logger:   log,
	}
	log.Info("Defense service initialized",
		"strict_output", cfg.StrictOutput,
		"redact_inputs", cfg.RedactInputsEnabled(),
		"redact_outputs", cfg.RedactOutputsEnabled(),
		"allowed_email_domains", len(cfg.AllowedEmailDomains))
	return s
}

// ValidateInput runs the input layers in order: length and character
// checks, then the injection-phrase blocklist. Safe to run twice on the
// same input.
func (s *Service) ValidateInput(text string) error {
	if err := validateShape(text); err != nil {
		return err
	}
	if phrase := matchBlockedPhrase(text); phrase != "" {
		s.logger.Warn("Query blocked by injection phrase filter", "phrase", phrase)
		return fmt.Errorf("%w: query contains a blocked phrase", ErrInvalidInput)
	}
	return nil
}

// DelimitersFor returns the session's stable delimiter pair, generating
// and caching one on first use. Without a session id the static fallback
// pair is returned.
func (s *Service) DelimitersFor(sessionID string) Delimiters {
	return s.delims.get(sessionID)
}

// ScreenOutput scans LLM output for leaked system instructions and
// internal tags. In strict mode any hit fails the response; otherwise
// each hit is replaced with a redaction marker.
func (s *Service) ScreenOutput(text string) (string, error) {
	screened, hits := screenOutput(text, s.cfg.StrictOutput)
	if hits > 0 {
		if s.cfg.StrictOutput {
			s.logger.Error("Output rejected by policy screen", "hits", hits)
			return "", ErrOutputPolicy
		}
		s.logger.Warn("Output fragments redacted by policy screen", "hits", hits)
	}
	return screened, nil
}

// RedactInput applies PII redaction to text bound for the LLM provider,
// honouring the redact_inputs switch.
func (s *Service) RedactInput(text string) (string, []RedactionSummary) {
	if !s.cfg.RedactInputsEnabled() {
		return text, nil
	}
	return s.redactor.redact(text)
}

// RedactOutput applies PII redaction to text bound for the client,
// honouring the redact_outputs switch.
func (s *Service) RedactOutput(text string) (string, []RedactionSummary) {
	if !s.cfg.RedactOutputsEnabled() {
		return text, nil
	}
	return s.redactor.redact(text)
}

// RedactForLog unconditionally redacts text destined for logs and audit
// records. The caller config switches never disable this path.
func (s *Service) RedactForLog(text string) string {
	redacted, _ := s.redactor.redact(text)
	return redacted
}

// Start launches the delimiter-cache eviction loop.
func (s *Service) Start(ctx context.Context) {
	s.delims.start(ctx)
}

// Stop tears the delimiter cache down. The service must not be used
// afterwards.
func (s *Service) Stop() {
	s.delims.stop()
}
