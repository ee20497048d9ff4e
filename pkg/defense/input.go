package defense

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// maxInputChars caps query length in characters.
	maxInputChars = 2048

	// maxSpecialRatio caps the share of structural characters that are
	// common in injection payloads.
	maxSpecialRatio = 0.10
)

const specialChars = "<>{}[]\\|`"

// blockedPhrases matches known injection-attempt phrasings anywhere in
// the input, case-insensitively: the ignore-previous-instructions family,
// role switching, prompt exfiltration and developer-mode requests.
var blockedPhrases = regexp.MustCompile(`(?i)(` +
	`ignore\s+(?:all\s+|any\s+)?(?:previous|prior|above|earlier)\s+instructions?` +
	`|disregard\s+(?:all\s+|any\s+)?(?:previous|prior|above|earlier)\s+instructions?` +
	`|forget\s+(?:all\s+|any\s+)?(?:previous|prior|your)\s+instructions?` +
	`|override\s+(?:all\s+|any\s+)?(?:previous|prior|your|these)\s+instructions?` +
	`|new\s+instructions?\s*:` +
	`|you\s+are\s+now\s+(?:a|an|in)\b` +
	`|act\s+as\s+(?:a\s+|an\s+)?(?:different|new|unrestricted)` +
	`|pretend\s+(?:to\s+be|you\s+are)` +
	`|roleplay\s+as` +
	`|reveal\s+(?:your|the)\s+(?:system\s+)?prompt` +
	`|show\s+(?:me\s+)?(?:your|the)\s+(?:system\s+)?(?:prompt|instructions)` +
	`|(?:print|repeat|output)\s+(?:your|the)\s+(?:system\s+)?(?:prompt|instructions)` +
	`|what\s+(?:is|are)\s+your\s+(?:system\s+)?(?:prompt|instructions)` +
	`|developer\s+mode` +
	`|\bjailbreak\b` +
	`|\bDAN\s+mode\b` +
	`|do\s+anything\s+now` +
	`)`)

// validateShape enforces the structural input rules: a length cap, a cap
// on the ratio of injection-prone special characters, and a ban on C0
// control characters other than tab, LF and CR.
func validateShape(text string) error {
	total := utf8.RuneCountInString(text)
	if total > maxInputChars {
		return fmt.Errorf("%w: query exceeds %d characters", ErrInvalidInput, maxInputChars)
	}

	special := 0
	for _, r := range text {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return fmt.Errorf("%w: query contains control characters", ErrInvalidInput)
		}
		if strings.ContainsRune(specialChars, r) {
			special++
		}
	}
	if total > 0 && float64(special)/float64(total) > maxSpecialRatio {
		return fmt.Errorf("%w: query contains too many special characters", ErrInvalidInput)
	}
	return nil
}

// matchBlockedPhrase returns the first blocked phrase found, or "".
func matchBlockedPhrase(text string) string {
	return blockedPhrases.FindString(text)
}
