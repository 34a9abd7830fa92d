package dialogue

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// maxBuyerMessageBytes caps the buyer text forwarded to the model.
	maxBuyerMessageBytes = 500
	// maxTemplateValueLen caps values interpolated into prompt templates.
	maxTemplateValueLen = 200
	// redactedMessage replaces buyer text that tripped the injection filter.
	redactedMessage = "[message redacted]"
)

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(all\s+)?previous|system\s*:|you\s+are\s+now|forget\s+(your|all)|disregard\s+(above|instructions))`,
)

// SanitizeBuyerMessage prepares untrusted buyer text for prompt use:
// truncate to 500 bytes, strip control characters except newline, and
// replace the whole message when a prompt-injection pattern matches.
// The second return reports whether the message was redacted.
func SanitizeBuyerMessage(msg string) (string, bool) {
	msg = truncateBytes(msg, maxBuyerMessageBytes)
	msg = stripControl(msg)
	if injectionPattern.MatchString(msg) {
		return redactedMessage, true
	}
	return msg, false
}

// SanitizeTemplateValue applies the same scrubbing to values interpolated
// into the walk-away and bundle templates, with a tighter 200-char cap.
func SanitizeTemplateValue(v string) string {
	v = stripControl(v)
	if injectionPattern.MatchString(v) {
		return redactedMessage
	}
	if utf8.RuneCountInString(v) > maxTemplateValueLen {
		runes := []rune(v)
		v = string(runes[:maxTemplateValueLen])
	}
	return v
}

// truncateBytes cuts s at the byte limit, backing off to a rune boundary
// so the result stays valid UTF-8.
func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
