// Package segmenter carves a stream of LLM output tokens into complete
// sentences so the TTS adapter can start speaking before the full response
// has finished generating.
//
// Grounded on original_source's SmartSentenceBuffer
// (server/app/utils/sentence_detection.py), which this package follows rule
// for rule: the same abbreviation list, the same decimal/URL/path
// exclusions, and the same forced-break overflow behavior. The teacher
// repo's own CLI loop never carved this out as its own component; the
// convention of giving a stream-processing helper its own small package
// (pkg/audio) is reused here instead.
package segmenter

import (
	"strings"
	"unicode"
)

// MaxBufferSize forces a sentence break once the pending buffer grows past
// this many runes, even with no sentence-ending punctuation in sight.
const MaxBufferSize = 2000

var sentenceEndings = map[rune]bool{'.': true, '!': true, '?': true}

var abbreviations = map[string]bool{
	"mr.": true, "mrs.": true, "ms.": true, "dr.": true, "prof.": true,
	"sr.": true, "jr.": true, "st.": true, "vs.": true, "etc.": true,
	"inc.": true, "ltd.": true, "co.": true, "corp.": true,
	"e.g.": true, "i.e.": true, "a.m.": true, "p.m.": true,
	"u.s.": true, "u.k.": true, "u.s.a.": true,
	"jan.": true, "feb.": true, "mar.": true, "apr.": true, "jun.": true,
	"jul.": true, "aug.": true, "sep.": true, "sept.": true, "oct.": true,
	"nov.": true, "dec.": true,
}

// Buffer accumulates streamed text and extracts complete sentences as soon
// as a boundary is detected.
type Buffer struct {
	pending strings.Builder
}

// New returns an empty sentence Buffer.
func New() *Buffer {
	return &Buffer{}
}

// AddChunk appends a chunk of streamed text and returns any complete
// sentences it now contains (in order). Incomplete trailing text remains
// buffered for the next call.
func (b *Buffer) AddChunk(chunk string) []string {
	b.pending.WriteString(chunk)
	return b.extractComplete()
}

// Flush returns any remaining buffered text as a final "sentence" (used at
// end-of-stream) and clears the buffer. Returns "" if nothing remains.
func (b *Buffer) Flush() string {
	rem := strings.TrimSpace(b.pending.String())
	b.pending.Reset()
	return rem
}

// Remaining returns the currently buffered, not-yet-emitted text without
// clearing it.
func (b *Buffer) Remaining() string {
	return b.pending.String()
}

func (b *Buffer) extractComplete() []string {
	var out []string

	for {
		text := b.pending.String()
		runes := []rune(text)

		if len(runes) > MaxBufferSize {
			idx := forceBreak(runes)
			sentence := strings.TrimSpace(string(runes[:idx]))
			rest := string(runes[idx:])
			b.pending.Reset()
			b.pending.WriteString(rest)
			if sentence != "" {
				out = append(out, sentence)
			}
			continue
		}

		idx := findBoundary(runes)
		if idx < 0 {
			break
		}

		sentence := strings.TrimSpace(string(runes[:idx+1]))
		rest := string(runes[idx+1:])
		b.pending.Reset()
		b.pending.WriteString(rest)
		if sentence != "" {
			out = append(out, sentence)
		}
	}

	return out
}

// findBoundary returns the rune index of the last character of the first
// complete sentence in runes, or -1 if none is found yet.
func findBoundary(runes []rune) int {
	for i, r := range runes {
		if !sentenceEndings[r] {
			continue
		}
		if isSentenceComplete(runes, i) {
			return i
		}
	}
	return -1
}

func isSentenceComplete(runes []rune, i int) bool {
	r := runes[i]

	if r == '!' || r == '?' {
		return true
	}

	// r == '.'
	if isAbbreviation(runes, i) {
		return false
	}
	if isDecimalNumber(runes, i) {
		return false
	}
	if isURLOrPath(runes, i) {
		return false
	}

	if i+1 >= len(runes) {
		// End of buffer: can't yet tell whether more text follows (another
		// digit, another path segment); treat as incomplete so a following
		// chunk can disambiguate, unless indicators already say otherwise.
		return hasSentenceEndingIndicators(runes, i+1)
	}

	next := runes[i+1]
	if next == ' ' || next == '\n' {
		if i+2 < len(runes) {
			afterSpace := runes[i+2]
			if unicode.IsUpper(afterSpace) || afterSpace == '\n' {
				return true
			}
			return hasSentenceEndingIndicators(runes, i+2)
		}
		return true
	}
	// No space after the period at all (e.g. "word.Next") — not a boundary.
	return false
}

func hasSentenceEndingIndicators(runes []rune, from int) bool {
	rest := strings.TrimLeft(string(runes[from:]), " \t")
	if rest == "" {
		return false
	}
	r := []rune(rest)[0]
	return unicode.IsUpper(r) || r == '\n'
}

func isAbbreviation(runes []rune, i int) bool {
	start := i - 10
	if start < 0 {
		start = 0
	}
	lookback := strings.ToLower(string(runes[start : i+1]))
	for abbr := range abbreviations {
		if strings.HasSuffix(lookback, abbr) {
			return true
		}
	}
	// Single capital letter initial, e.g. "J. Smith"
	if i >= 1 {
		prev := runes[i-1]
		if unicode.IsUpper(prev) {
			if i == 1 || runes[i-2] == ' ' {
				return true
			}
		}
	}
	return false
}

func isDecimalNumber(runes []rune, i int) bool {
	if i == 0 || i+1 >= len(runes) {
		return false
	}
	return unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1])
}

func isURLOrPath(runes []rune, i int) bool {
	start := i - 20
	if start < 0 {
		start = 0
	}
	end := i + 20
	if end > len(runes) {
		end = len(runes)
	}
	ctx := strings.ToLower(string(runes[start:end]))

	if strings.Contains(ctx, "http://") || strings.Contains(ctx, "https://") ||
		strings.Contains(ctx, "www.") || strings.Contains(ctx, "://") {
		return true
	}

	// A domain suffix only counts when it starts at this period ("example.com").
	after := strings.ToLower(string(runes[i:end]))
	domainExts := []string{".com", ".org", ".net", ".io", ".ai", ".gov", ".edu"}
	for _, ext := range domainExts {
		if strings.HasPrefix(after, ext) {
			return true
		}
	}

	fileExts := []string{".go", ".py", ".js", ".ts", ".json", ".txt", ".md", ".yaml", ".yml"}
	if strings.ContainsAny(ctx, "/\\") {
		for _, ext := range fileExts {
			if strings.Contains(ctx, ext) {
				return true
			}
		}
	}

	return false
}

// forceBreak finds a break point at or before MaxBufferSize when no natural
// sentence boundary is available, scanning up to 200 runes backward for a
// space or punctuation mark. Falls back to breaking exactly at
// MaxBufferSize.
func forceBreak(runes []rune) int {
	limit := MaxBufferSize
	if limit > len(runes) {
		limit = len(runes)
	}
	breakChars := map[rune]bool{' ': true, '.': true, '!': true, '?': true, ',': true, ';': true}

	lookback := 200
	start := limit - lookback
	if start < 0 {
		start = 0
	}
	for i := limit - 1; i >= start; i-- {
		if breakChars[runes[i]] {
			return i + 1
		}
	}
	return limit
}
