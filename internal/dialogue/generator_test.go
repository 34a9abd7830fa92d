package dialogue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"bargain-engine/internal/engine"
)

func testSession() *engine.Session {
	return &engine.Session{
		SessionID:          "s-dialogue",
		ProductName:        "Wireless Earbuds",
		AnchorPrice:        2000,
		ReservationPrice:   1200,
		CurrentRound:       3,
		MaxRounds:          15,
		CurrentSellerPrice: 1800,
		State:              engine.StateResponding,
		OfferHistory: engine.OfferHistory{Offers: []engine.Offer{
			{Round: 3, Actor: engine.ActorBuyer, Price: 1500},
		}},
	}
}

func testResult() engine.EngineResult {
	return engine.EngineResult{
		CounterPrice: 1700,
		State:        engine.StateResponding,
		Tactic:       engine.TacticConcession,
	}
}

func newTestGenerator(handler http.HandlerFunc) (*Generator, *httptest.Server) {
	srv := httptest.NewServer(handler)
	gen := NewGenerator(Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
	return gen, srv
}

func completionBody(content string) []byte {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return b
}

func userPromptFrom(body []byte) string {
	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &req); err != nil || len(req.Messages) < 2 {
		return ""
	}
	return req.Messages[1].Content
}

func TestGenerateResponse_ExtractsReasoning(t *testing.T) {
	content := "<think>\nCustomer offered 1500, I should concede a bit.\n</think>\n" +
		`{"message": "Dekho bhaiya, ₹1700 — final hai", "suggested_price": 1700, "sentiment": "firm", "tactic": "concession"}`
	gen, srv := newTestGenerator(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(content))
	})
	defer srv.Close()

	resp := gen.GenerateResponse(context.Background(), testSession(), testResult(), "1500 do na", "en")

	if resp.Price != 1700 {
		t.Errorf("Price = %v, want engine price 1700", resp.Price)
	}
	if resp.Sentiment != "firm" {
		t.Errorf("Sentiment = %q, want firm", resp.Sentiment)
	}
	if !strings.Contains(resp.Reasoning, "concede") {
		t.Errorf("Reasoning = %q, want the think block content", resp.Reasoning)
	}
	if !strings.Contains(resp.Message, "1700") {
		t.Errorf("Message = %q, want it to carry the price", resp.Message)
	}
}

func TestGenerateResponse_RetriesWithoutStrictJSON(t *testing.T) {
	var calls atomic.Int32
	gen, srv := newTestGenerator(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if _, strict := req["response_format"]; strict && n == 1 {
			http.Error(w, `{"error": {"message": "response_format not supported"}}`, http.StatusBadRequest)
			return
		}
		w.Write(completionBody("Here is my response:\n" +
			`{"message": "Acha theek hai ₹1700", "suggested_price": 1700, "sentiment": "friendly", "tactic": "concession"}`))
	})
	defer srv.Close()

	resp := gen.GenerateResponse(context.Background(), testSession(), testResult(), "please less", "en")

	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2 (strict rejected, free-form retried)", got)
	}
	if resp.Price != 1700 {
		t.Errorf("Price = %v, want 1700", resp.Price)
	}
	if !strings.Contains(resp.Message, "theek hai") {
		t.Errorf("Message = %q, want the free-form completion parsed", resp.Message)
	}
}

func TestGenerateResponse_FallbackOnServerError(t *testing.T) {
	gen, srv := newTestGenerator(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	})
	defer srv.Close()

	resp := gen.GenerateResponse(context.Background(), testSession(), testResult(), "500 final", "en")

	if resp.Price != 1700 {
		t.Errorf("Price = %v, want 1700", resp.Price)
	}
	if !strings.Contains(resp.Message, "1700") {
		t.Errorf("fallback Message = %q, want it to embed the price", resp.Message)
	}
	if resp.Sentiment != "firm" {
		t.Errorf("fallback Sentiment = %q, want firm", resp.Sentiment)
	}
	if resp.Tactic != engine.TacticConcession {
		t.Errorf("fallback Tactic = %q, want engine tactic", resp.Tactic)
	}
}

func TestGenerateResponse_FallbackOnUnreachableEndpoint(t *testing.T) {
	gen, srv := newTestGenerator(func(w http.ResponseWriter, r *http.Request) {})
	srv.Close() // connection refused from here on

	resp := gen.GenerateResponse(context.Background(), testSession(), testResult(), "hello", "en")

	if resp.Price != 1700 || !strings.Contains(resp.Message, "1700") {
		t.Errorf("fallback response = %+v, want deterministic price-bearing message", resp)
	}
}

func TestGenerateResponse_EnginePriceAlwaysWins(t *testing.T) {
	gen, srv := newTestGenerator(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(`{"message": "Sab free me le lo", "suggested_price": 1, "sentiment": "enthusiastic", "tactic": "concession"}`))
	})
	defer srv.Close()

	resp := gen.GenerateResponse(context.Background(), testSession(), testResult(), "free do", "en")

	if resp.Price != 1700 {
		t.Errorf("Price = %v, want 1700 regardless of model suggestion", resp.Price)
	}
}

func TestGenerateResponse_LanguagePreferenceInPrompt(t *testing.T) {
	var prompt atomic.Value
	gen, srv := newTestGenerator(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		prompt.Store(userPromptFrom(raw))
		w.Write(completionBody(`{"message": "Bhaiya ji", "suggested_price": 1700, "sentiment": "friendly", "tactic": "concession"}`))
	})
	defer srv.Close()

	gen.GenerateResponse(context.Background(), testSession(), testResult(), "kam karo", "hi")

	got, _ := prompt.Load().(string)
	if !strings.Contains(got, "LANGUAGE PREFERENCE") {
		t.Error("user prompt missing LANGUAGE PREFERENCE line")
	}
	if !strings.Contains(got, `"hi"`) {
		t.Error("user prompt missing the requested language")
	}
}

func TestGenerateResponse_EnglishSkipsLanguageLine(t *testing.T) {
	var prompt atomic.Value
	gen, srv := newTestGenerator(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		prompt.Store(userPromptFrom(raw))
		w.Write(completionBody(`{"message": "ok", "suggested_price": 1700, "sentiment": "firm", "tactic": "concession"}`))
	})
	defer srv.Close()

	gen.GenerateResponse(context.Background(), testSession(), testResult(), "less please", "en")

	if got, _ := prompt.Load().(string); strings.Contains(got, "LANGUAGE PREFERENCE") {
		t.Error("english turn should not carry a language preference line")
	}
}

func TestGenerateResponse_PromptCarriesDecision(t *testing.T) {
	var prompt atomic.Value
	gen, srv := newTestGenerator(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		prompt.Store(userPromptFrom(raw))
		w.Write(completionBody(`{"message": "ok", "suggested_price": 1700, "sentiment": "firm", "tactic": "concession"}`))
	})
	defer srv.Close()

	gen.GenerateResponse(context.Background(), testSession(), testResult(), "1500 do na", "en")

	got, _ := prompt.Load().(string)
	for _, want := range []string{
		"USE THIS EXACT PRICE",
		"₹1700",
		"Customer: ₹1500",
		"Round: 3 / 15",
		"Wireless Earbuds",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("user prompt missing %q:\n%s", want, got)
		}
	}
}

func TestGenerateResponse_WalkAwayOverlay(t *testing.T) {
	var prompt atomic.Value
	gen, srv := newTestGenerator(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		prompt.Store(userPromptFrom(raw))
		w.Write(completionBody(`{"message": "ruko bhaiya", "suggested_price": 1710, "sentiment": "reluctant", "tactic": "walk_away_save"}`))
	})
	defer srv.Close()

	result := testResult()
	result.Tactic = engine.TacticWalkAwaySave
	result.CounterPrice = 1710

	gen.GenerateResponse(context.Background(), testSession(), result, "bye", "en")

	got, _ := prompt.Load().(string)
	if !strings.Contains(got, "SPECIAL INSTRUCTION") {
		t.Error("walk-away turn missing SPECIAL INSTRUCTION overlay")
	}
	if !strings.Contains(got, "walk away") {
		t.Error("overlay missing walk-away template text")
	}
}

func TestGenerateResponse_BundleOverlay(t *testing.T) {
	var prompt atomic.Value
	gen, srv := newTestGenerator(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		prompt.Store(userPromptFrom(raw))
		w.Write(completionBody(`{"message": "do lijiye", "suggested_price": 1650, "sentiment": "enthusiastic", "tactic": "quantity_pivot"}`))
	})
	defer srv.Close()

	result := testResult()
	result.Tactic = engine.TacticQuantityPivot
	result.CounterPrice = 1650
	result.Metadata = map[string]any{"quantity": 2, "bundle_total": 3300.0}

	gen.GenerateResponse(context.Background(), testSession(), result, "too much", "en")

	got, _ := prompt.Load().(string)
	if !strings.Contains(got, "SPECIAL INSTRUCTION") {
		t.Error("bundle turn missing SPECIAL INSTRUCTION overlay")
	}
	if !strings.Contains(got, "2 units") {
		t.Errorf("overlay missing bundle quantity:\n%s", got)
	}
	if !strings.Contains(got, "3300") {
		t.Error("overlay missing bundle total")
	}
}

func TestGenerateResponse_MissingFieldsGetDefaults(t *testing.T) {
	gen, srv := newTestGenerator(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(`{"suggested_price": 1700}`))
	})
	defer srv.Close()

	resp := gen.GenerateResponse(context.Background(), testSession(), testResult(), "ok", "en")

	if !strings.Contains(resp.Message, "1700") {
		t.Errorf("default Message = %q, want it to embed the price", resp.Message)
	}
	if resp.Sentiment != "firm" {
		t.Errorf("default Sentiment = %q, want firm", resp.Sentiment)
	}
	if resp.Tactic != engine.TacticConcession {
		t.Errorf("default Tactic = %q, want engine tactic", resp.Tactic)
	}
}
