package dialogue

import (
	"encoding/json"
	"regexp"
	"strings"
)

var thinkPattern = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// extractThinkAndJSON splits a model completion into an optional
// chain-of-thought block and the first JSON object it carries. Reasoning
// models wrap their deliberation in <think>...</think> before the payload;
// plainer models return bare JSON or JSON buried in prose or code fences.
// Returns an empty map when no parseable object is found.
func extractThinkAndJSON(raw string) (string, map[string]any) {
	reasoning := ""
	if m := thinkPattern.FindStringSubmatch(raw); m != nil {
		reasoning = strings.TrimSpace(m[1])
		raw = thinkPattern.ReplaceAllString(raw, "")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return reasoning, map[string]any{}
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err == nil {
		return reasoning, data
	}

	// Not pure JSON: decode the first object embedded in the text.
	if start := strings.Index(raw, "{"); start >= 0 {
		dec := json.NewDecoder(strings.NewReader(raw[start:]))
		if err := dec.Decode(&data); err == nil && data != nil {
			return reasoning, data
		}
	}
	return reasoning, map[string]any{}
}
