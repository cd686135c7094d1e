package telemetry

import "regexp"

// redactedLimit is the hard upper bound on stored utterance text, in
// runes. Over-long utterances keep their head and tail joined by a
// single-rune marker: the tail often carries the actionable word, so
// trailing context is preserved in full (50 runes) and the head yields
// the rune the marker costs (49 runes).
const (
	redactedLimit = 100
	tailRunes     = 50
	headRunes     = redactedLimit - tailRunes - 1

	ellipsis = "…"
)

// PII patterns scrubbed before storage. Digit runs of four or more are
// treated as identifying (phone fragments, house numbers, card chunks).
var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d \-().]{6,}\d`)
	digitPattern = regexp.MustCompile(`\d{4,}`)
)

// Redact scrubs identifying content from an utterance and bounds its
// length. The returned bool reports whether any PII was replaced. For
// every input, len([]rune(result)) ≤ 100.
func Redact(utterance string) (string, bool) {
	scrubbed := emailPattern.ReplaceAllString(utterance, "[email]")
	scrubbed = phonePattern.ReplaceAllString(scrubbed, "[phone]")
	scrubbed = digitPattern.ReplaceAllString(scrubbed, "[number]")
	pii := scrubbed != utterance

	runes := []rune(scrubbed)
	if len(runes) <= redactedLimit {
		return scrubbed, pii
	}
	head := string(runes[:headRunes])
	tail := string(runes[len(runes)-tailRunes:])
	return head + ellipsis + tail, pii
}
