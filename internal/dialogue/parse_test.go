package dialogue

import (
	"strings"
	"testing"
)

func TestExtractThinkAndJSON(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		wantReasoning string
		wantMessage   string
		wantEmpty     bool
	}{
		{
			name:        "plain json",
			raw:         `{"message": "hello", "suggested_price": 500}`,
			wantMessage: "hello",
		},
		{
			name: "think then json",
			raw: "<think>\nThe customer wants a lower price.\nI should hold firm.\n</think>\n" +
				`{"message": "No way", "suggested_price": 900}`,
			wantReasoning: "hold firm",
			wantMessage:   "No way",
		},
		{
			name:        "json in code fence",
			raw:         "Sure, here is your response:\n```json\n{\"message\": \"Arre bhaiya\", \"suggested_price\": 750}\n```",
			wantMessage: "Arre bhaiya",
		},
		{
			name:          "think with no json",
			raw:           "<think>Some reasoning</think>\nNo JSON here at all",
			wantReasoning: "Some reasoning",
			wantEmpty:     true,
		},
		{
			name:      "empty string",
			raw:       "",
			wantEmpty: true,
		},
		{
			name: "multiline think block",
			raw: "<think>\n1. Tactic is hold_firm\n2. Price is 1200\n3. Be empathetic\n</think>\n" +
				`{"message": "Bhai sahab", "suggested_price": 1200, "sentiment": "firm", "tactic": "hold_firm"}`,
			wantReasoning: "hold_firm",
			wantMessage:   "Bhai sahab",
		},
		{
			name:        "json followed by trailing prose",
			raw:         `{"message": "Theek hai"} hope that works!`,
			wantMessage: "Theek hai",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasoning, data := extractThinkAndJSON(tt.raw)
			if tt.wantReasoning != "" && !strings.Contains(reasoning, tt.wantReasoning) {
				t.Errorf("reasoning = %q, want containing %q", reasoning, tt.wantReasoning)
			}
			if tt.wantReasoning == "" && reasoning != "" {
				t.Errorf("reasoning = %q, want empty", reasoning)
			}
			if tt.wantEmpty {
				if len(data) != 0 {
					t.Errorf("data = %v, want empty", data)
				}
				return
			}
			if got, _ := data["message"].(string); got != tt.wantMessage {
				t.Errorf("message = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestExtractThinkAndJSON_KeepsAllFields(t *testing.T) {
	_, data := extractThinkAndJSON(`{"message": "ok", "suggested_price": 1200, "sentiment": "firm", "tactic": "hold_firm"}`)
	if data["sentiment"] != "firm" {
		t.Errorf("sentiment = %v, want firm", data["sentiment"])
	}
	if data["suggested_price"] != 1200.0 {
		t.Errorf("suggested_price = %v, want 1200", data["suggested_price"])
	}
}
