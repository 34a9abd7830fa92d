package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"bargain-engine/internal/engine"
)

const (
	defaultChatTimeout = 30 * time.Second
	chatTemperature    = 0.8
	chatMaxTokens      = 300
	historyWindow      = 6
)

// Config points the generator at an OpenAI-compatible chat endpoint
// (NVIDIA NIM in production).
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Response is a rendered seller turn. Price always equals the engine's
// counter price, whatever the model suggested.
type Response struct {
	Message   string  `json:"message"`
	Price     float64 `json:"price"`
	Sentiment string  `json:"sentiment"`
	Tactic    string  `json:"tactic"`
	Reasoning string  `json:"reasoning,omitempty"`
	// Fallback reports that the model was unreachable or unparseable and
	// the deterministic message was used instead.
	Fallback bool `json:"-"`
}

// Generator wraps the chat model that turns engine decisions into
// shopkeeper Hinglish. Every failure path degrades to a deterministic
// fallback message, so callers never sit on a broken turn.
type Generator struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

func NewGenerator(cfg Config, log *zap.Logger) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultChatTimeout
	}
	return &Generator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// GenerateResponse renders one seller turn. It never returns an error:
// model faults fall back to a canned line carrying the engine's price.
func (g *Generator) GenerateResponse(ctx context.Context, s *engine.Session, result engine.EngineResult, buyerMessage, language string) Response {
	clean, redacted := SanitizeBuyerMessage(buyerMessage)
	if redacted {
		g.log.Warn("prompt injection attempt redacted",
			zap.String("session_id", s.SessionID))
	}

	userPrompt := g.buildUserPrompt(s, result, clean, language)

	raw, err := g.chat(ctx, userPrompt)
	if err != nil {
		g.log.Warn("chat model call failed, using fallback",
			zap.String("session_id", s.SessionID), zap.Error(err))
		return Response{
			Message:   fmt.Sprintf("Bhaiya, best price for you — ₹%s. Isse kam nahi hoga.", formatPrice(result.CounterPrice)),
			Price:     result.CounterPrice,
			Sentiment: "firm",
			Tactic:    result.Tactic,
			Fallback:  true,
		}
	}

	reasoning, data := extractThinkAndJSON(raw)

	// The model may try to bargain on its own; its price never leaves
	// this function.
	if suggested, ok := suggestedPrice(data); ok {
		validated := engine.ValidatePrice(suggested, s.ReservationPrice, s.AnchorPrice)
		switch {
		case validated.WasOverridden:
			g.log.Warn("model suggested out-of-range price",
				zap.String("session_id", s.SessionID),
				zap.String("reason", validated.OverrideReason))
		case validated.Price != result.CounterPrice:
			g.log.Warn("model suggested different price, keeping engine price",
				zap.String("session_id", s.SessionID),
				zap.Float64("suggested", validated.Price),
				zap.Float64("engine", result.CounterPrice))
		}
	}

	return Response{
		Message:   stringField(data, "message", fmt.Sprintf("₹%s — final offer, bhaiya.", formatPrice(result.CounterPrice))),
		Price:     result.CounterPrice,
		Sentiment: stringField(data, "sentiment", "firm"),
		Tactic:    stringField(data, "tactic", result.Tactic),
		Reasoning: reasoning,
	}
}

func (g *Generator) buildUserPrompt(s *engine.Session, result engine.EngineResult, buyerMessage, language string) string {
	var history []string
	for _, o := range s.OfferHistory.Recent(historyWindow) {
		who := "You"
		if o.Actor == engine.ActorBuyer {
			who = "Customer"
		}
		line := fmt.Sprintf("  %s: ₹%s", who, formatPrice(o.Price))
		if o.Message != "" {
			line += fmt.Sprintf(" — %q", o.Message)
		}
		history = append(history, line)
	}
	historyStr := "  (No history yet)"
	if len(history) > 0 {
		historyStr = strings.Join(history, "\n")
	}

	lastBuyer := "none yet"
	if o := s.OfferHistory.LastBuyerOffer(); o != nil {
		lastBuyer = "₹" + formatPrice(o.Price)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `CURRENT NEGOTIATION STATE:
Product: %s
List price: ₹%s
Round: %d / %d

OFFER HISTORY (recent):
%s

CUSTOMER JUST SAID: %q
CUSTOMER'S OFFER: %s

SYSTEM DECISION:
- Your counter-price is: ₹%s  (USE THIS EXACT PRICE)
- Tactic: %s
- Negotiation state: %s

Generate your Hinglish response. Remember: use EXACTLY ₹%s as your price.`,
		SanitizeTemplateValue(s.ProductName),
		formatPrice(s.AnchorPrice),
		s.CurrentRound, s.MaxRounds,
		historyStr,
		buyerMessage,
		lastBuyer,
		formatPrice(result.CounterPrice),
		result.Tactic,
		result.State,
		formatPrice(result.CounterPrice),
	)

	if language != "" && language != "en" {
		fmt.Fprintf(&b, "\n\nLANGUAGE PREFERENCE: the customer prefers %q. Reply in that language, keeping the bazaar persona.", language)
	}

	switch result.Tactic {
	case engine.TacticWalkAwaySave:
		buyerPrice := "?"
		if o := s.OfferHistory.LastBuyerOffer(); o != nil {
			buyerPrice = formatPrice(o.Price)
		}
		b.WriteString("\n\nSPECIAL INSTRUCTION:\n")
		fmt.Fprintf(&b, walkAwayPrompt,
			SanitizeTemplateValue(s.ProductName),
			buyerPrice,
			formatPrice(s.CurrentSellerPrice),
			formatPrice(result.CounterPrice),
		)
	case engine.TacticQuantityPivot:
		qty := 2
		if v, ok := result.Metadata["quantity"].(int); ok {
			qty = v
		}
		total := 0.0
		if v, ok := result.Metadata["bundle_total"].(float64); ok {
			total = v
		}
		unitPrice := s.CurrentSellerPrice
		if unitPrice == 0 {
			unitPrice = s.AnchorPrice
		}
		b.WriteString("\n\nSPECIAL INSTRUCTION:\n")
		fmt.Fprintf(&b, bundlePrompt,
			SanitizeTemplateValue(s.ProductName),
			formatPrice(unitPrice),
			qty,
			formatPrice(result.CounterPrice),
			formatPrice(total),
		)
	}

	return b.String()
}

// chat tries strict-JSON mode first; some NIM-hosted models reject the
// response_format knob with a 400, so retry free-form and let the parser
// dig the object out.
func (g *Generator) chat(ctx context.Context, userPrompt string) (string, error) {
	content, status, err := g.chatOnce(ctx, userPrompt, true)
	if err != nil && status == http.StatusBadRequest {
		g.log.Debug("strict json mode rejected, retrying free-form")
		content, _, err = g.chatOnce(ctx, userPrompt, false)
	}
	return content, err
}

func (g *Generator) chatOnce(ctx context.Context, userPrompt string, strictJSON bool) (string, int, error) {
	type chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type responseFormat struct {
		Type string `json:"type"`
	}
	type requestPayload struct {
		Model          string          `json:"model"`
		Messages       []chatMessage   `json:"messages"`
		Temperature    float64         `json:"temperature"`
		MaxTokens      int             `json:"max_tokens"`
		ResponseFormat *responseFormat `json:"response_format,omitempty"`
	}
	type responsePayload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	payload := requestPayload{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	}
	if strictJSON {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, err
	}

	endpoint := strings.TrimRight(g.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", resp.StatusCode, fmt.Errorf("chat completion http %d", resp.StatusCode)
	}

	var parsed responsePayload
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", resp.StatusCode, fmt.Errorf("decode chat completion: %w", err)
	}
	if parsed.Error != nil && strings.TrimSpace(parsed.Error.Message) != "" {
		return "", resp.StatusCode, fmt.Errorf("chat completion error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", resp.StatusCode, fmt.Errorf("chat completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, resp.StatusCode, nil
}

func suggestedPrice(data map[string]any) (float64, bool) {
	v, ok := data["suggested_price"]
	if !ok {
		return 0, false
	}
	switch p := v.(type) {
	case float64:
		return p, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func stringField(data map[string]any, key, fallback string) string {
	if v, ok := data[key].(string); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

// formatPrice renders a price the way a person would write it: no
// trailing zeros, no exponent.
func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
