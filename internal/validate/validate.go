// Package validate sanitizes untrusted input arriving over the WebSocket
// connection before it reaches the LLM or is persisted.
//
// Grounded field-for-field on original_source's utils/validation.py:
// sanitize_transcript, validate_session_id, sanitize_system_prompt.
package validate

import (
	"regexp"
	"strings"
)

const (
	maxTranscriptRunes = 1000
	maxPromptRunes     = 2000
	maxSessionIDLen    = 100
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	scriptTagRe   = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	javascriptRe  = regexp.MustCompile(`(?i)javascript:`)
	onEventAttrRe = regexp.MustCompile(`(?i)on\w+\s*=`)
	sessionIDRe   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	promptFilters = []*regexp.Regexp{
		regexp.MustCompile(`(?i)ignore\s+previous\s+instructions`),
		regexp.MustCompile(`(?i)disregard\s+above`),
		regexp.MustCompile(`(?i)new\s+role\s*:`),
		regexp.MustCompile(`(?i)you\s+are\s+now`),
	}
)

// SanitizeTranscript collapses whitespace, truncates to maxTranscriptRunes
// runes with an ellipsis, and strips obvious script-injection patterns.
func SanitizeTranscript(transcript string) string {
	if transcript == "" {
		return ""
	}

	transcript = whitespaceRe.ReplaceAllString(strings.TrimSpace(transcript), " ")

	runes := []rune(transcript)
	if len(runes) > maxTranscriptRunes {
		transcript = string(runes[:maxTranscriptRunes]) + "..."
	}

	transcript = scriptTagRe.ReplaceAllString(transcript, "")
	transcript = javascriptRe.ReplaceAllString(transcript, "")
	transcript = onEventAttrRe.ReplaceAllString(transcript, "")

	return transcript
}

// ValidateSessionID reports whether sessionID is acceptable: empty is
// allowed (one will be generated), otherwise it must be <= 100 characters
// of [a-zA-Z0-9_-].
func ValidateSessionID(sessionID string) bool {
	if sessionID == "" {
		return true
	}
	if len(sessionID) > maxSessionIDLen {
		return false
	}
	return sessionIDRe.MatchString(sessionID)
}

// SanitizeSystemPrompt truncates a caller-supplied system prompt to
// maxPromptRunes runes and filters common prompt-injection phrasings.
func SanitizeSystemPrompt(prompt string) string {
	if prompt == "" {
		return ""
	}

	runes := []rune(prompt)
	if len(runes) > maxPromptRunes {
		prompt = string(runes[:maxPromptRunes])
	}

	for _, re := range promptFilters {
		prompt = re.ReplaceAllString(prompt, "[FILTERED]")
	}

	return strings.TrimSpace(prompt)
}
