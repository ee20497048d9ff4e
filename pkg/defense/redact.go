package defense

import (
	"regexp"
	"strings"
)

// RedactionSummary reports how many matches of one PII kind were
// replaced.
type RedactionSummary struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// redactionStep is one ordered stage of the PII sweep. Most stages are
// plain regex replacements; the email stage needs the domain allowlist.
type redactionStep interface {
	kind() string
	apply(text string) (string, int)
}

// redactor applies the ordered PII patterns. Order is significant: the
// more specific, context-anchored patterns run first so the broader ones
// cannot claim their matches.
type redactor struct {
	steps []redactionStep
}

func newRedactor(allowedEmailDomains []string) *redactor {
	allowed := make(map[string]struct{}, len(allowedEmailDomains))
	for _, domain := range allowedEmailDomains {
		allowed[strings.ToLower(domain)] = struct{}{}
	}

	return &redactor{steps: []redactionStep{
		&regexStep{
			name:        "bank-routing",
			re:          regexp.MustCompile(`(?i)\b((?:routing|aba)(?:\s+(?:number|no|num))?\s*[#:]?\s*)(\d{9})\b`),
			replacement: "${1}[BANK-ROUTING-REDACTED]",
		},
		&regexStep{
			name:        "bank-account",
			re:          regexp.MustCompile(`(?i)\b((?:account|acct)(?:\s+(?:number|no|num))?\s*[#:]?\s*)(\d{6,17})\b`),
			replacement: "${1}[BANK-ACCOUNT-REDACTED]",
		},
		&regexStep{
			name:        "ssn",
			re:          regexp.MustCompile(`\b\d{3}[- ]\d{2}[- ]\d{4}\b`),
			replacement: "[SSN-REDACTED]",
		},
		&regexStep{
			name:        "credit-card",
			re:          regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{1,4}\b|\b\d{4}[- ]?\d{6}[- ]?\d{5}\b`),
			replacement: "[CREDIT-CARD-REDACTED]",
		},
		&emailStep{
			re:      regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			allowed: allowed,
		},
		&regexStep{
			name:        "phone",
			re:          regexp.MustCompile(`(?:\+?1[-.\s]?)?(?:\([2-9]\d{2}\)|\b[2-9]\d{2})[-.\s]?[2-9]\d{2}[-.\s]?\d{4}\b`),
			replacement: "[PHONE-REDACTED]",
		},
	}}
}

func (r *redactor) redact(text string) (string, []RedactionSummary) {
	var summary []RedactionSummary
	out := text
	for _, step := range r.steps {
		var n int
		out, n = step.apply(out)
		if n > 0 {
			summary = append(summary, RedactionSummary{Kind: step.kind(), Count: n})
		}
	}
	return out, summary
}

type regexStep struct {
	name        string
	re          *regexp.Regexp
	replacement string
}

func (s *regexStep) kind() string { return s.name }

func (s *regexStep) apply(text string) (string, int) {
	matches := s.re.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text, 0
	}
	return s.re.ReplaceAllString(text, s.replacement), len(matches)
}

// emailStep redacts external email addresses. Addresses whose domain is
// on the allowlist (exact match or subdomain) pass through untouched.
type emailStep struct {
	re      *regexp.Regexp
	allowed map[string]struct{}
}

func (s *emailStep) kind() string { return "email" }

func (s *emailStep) apply(text string) (string, int) {
	count := 0
	out := s.re.ReplaceAllStringFunc(text, func(match string) string {
		at := strings.LastIndex(match, "@")
		domain := strings.ToLower(match[at+1:])
		if s.domainAllowed(domain) {
			return match
		}
		count++
		return "[EMAIL-REDACTED]"
	})
	return out, count
}

func (s *emailStep) domainAllowed(domain string) bool {
	if _, ok := s.allowed[domain]; ok {
		return true
	}
	for allowed := range s.allowed {
		if strings.HasSuffix(domain, "."+allowed) {
			return true
		}
	}
	return false
}
