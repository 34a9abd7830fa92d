package negotiation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bargain-engine/internal/dialogue"
	"bargain-engine/internal/engine"
	"bargain-engine/internal/metrics"
	"bargain-engine/internal/protocol"
)

// exitConfidenceThreshold is the minimum exit-intent confidence that
// triggers the walk-away save instead of a normal counter.
const exitConfidenceThreshold = 0.5

// auditMessageLimit caps the buyer text copied into audit entries.
const auditMessageLimit = 500

// Cache is the hot-session store: snapshots with TTL and the per-session
// turn lock. Reads degrade to a miss so the record store can take over.
type Cache interface {
	StoreSession(ctx context.Context, s *engine.Session, ttl time.Duration) error
	LoadSession(ctx context.Context, sessionID string) *engine.Session
	AcquireLock(ctx context.Context, sessionID string) (bool, error)
	ReleaseLock(ctx context.Context, sessionID string) error
}

// Records is the durable mirror: sessions, the product catalogue,
// promotions and the audit log.
type Records interface {
	UpsertSession(ctx context.Context, s *engine.Session) error
	GetSession(ctx context.Context, sessionID string) (*engine.Session, error)
	GetProduct(ctx context.Context, productID string) (*engine.Product, error)
	BestPromotion(ctx context.Context, productID string, price float64, now time.Time) (*engine.Promotion, float64, error)
	AppendAudit(ctx context.Context, e *engine.AuditEntry) error
}

// Dialogue renders an engine decision as a persona message carrying the
// engine's exact price.
type Dialogue interface {
	GenerateResponse(ctx context.Context, s *engine.Session, result engine.EngineResult, buyerMessage, language string) dialogue.Response
}

// Defaults are the strategy parameters stamped onto new sessions.
type Defaults struct {
	Beta       float64
	Alpha      float64
	MaxRounds  int
	TTLSeconds int
}

// Response is one negotiation turn as returned to API callers.
// SessionToken is only populated by Start; it is shown to the buyer once.
type Response struct {
	SessionID       string         `json:"session_id"`
	SessionToken    string         `json:"session_token,omitempty"`
	Message         string         `json:"message"`
	CurrentPrice    float64        `json:"current_price"`
	AnchorPrice     float64        `json:"anchor_price"`
	State           engine.State   `json:"state"`
	Tactic          string         `json:"tactic"`
	Sentiment       string         `json:"sentiment"`
	Round           int            `json:"round"`
	MaxRounds       int            `json:"max_rounds"`
	QuoteTTLSeconds int            `json:"quote_ttl_seconds"`
	AgreedPrice     *float64       `json:"agreed_price,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Service is the negotiation orchestrator. It serialises turns per session
// behind the cache's distributed lock and composes bot detection, exit
// intent, the offer engine, promotions, dialogue and persistence.
//
// Sessions are owned exclusively by the service for the duration of one
// turn; the cache and record store only ever hold copies.
type Service struct {
	cache     Cache
	records   Records
	dialogue  Dialogue
	detectors *engine.DetectorPool
	metrics   *metrics.Collector
	defaults  Defaults
	log       *zap.Logger
}

// NewService wires the orchestrator's collaborators.
func NewService(cache Cache, records Records, dlg Dialogue, m *metrics.Collector, defaults Defaults, log *zap.Logger) *Service {
	return &Service{
		cache:     cache,
		records:   records,
		dialogue:  dlg,
		detectors: engine.NewDetectorPool(),
		metrics:   m,
		defaults:  defaults,
		log:       log,
	}
}

// Start opens a negotiation session for a product and returns the seller's
// anchor offer. The response carries the session token, the only time it
// is ever sent to the buyer.
func (s *Service) Start(ctx context.Context, productID, buyerName, buyerIP, language string) (*Response, error) {
	product, err := s.records.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, engine.ErrNotFound.Wrapf("product %q", productID)
	}

	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expires := now.Add(time.Duration(s.defaults.TTLSeconds) * time.Second)
	session := &engine.Session{
		SessionID:        newHexID(),
		TransactionID:    newHexID(),
		ProductID:        product.ID,
		ProductName:      product.Name,
		AnchorPrice:      product.AnchorPrice,
		ReservationPrice: product.ReservationPrice(),
		Beta:             s.defaults.Beta,
		Alpha:            s.defaults.Alpha,
		MaxRounds:        s.defaults.MaxRounds,
		TTLSeconds:       s.defaults.TTLSeconds,
		State:            engine.StateIdle,
		BuyerIP:          buyerIP,
		BuyerName:        buyerName,
		SessionToken:     token,
		Language:         language,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        &expires,
	}

	eng := engine.NewNegotiationEngine(session)
	result, err := eng.StartNegotiation()
	if err != nil {
		return nil, err
	}

	if buyerName == "" {
		buyerName = "Customer"
	}
	dlg := s.dialogue.GenerateResponse(ctx, session, result, buyerName, session.Language)
	if dlg.Fallback {
		s.metrics.LLMFallbacks.Inc()
	}

	if err := s.persistSession(ctx, session); err != nil {
		return nil, engine.ErrDegraded.Wrapf("persist session %s: %v", session.SessionID, err)
	}

	s.metrics.SessionsStarted.Inc()
	s.log.Info("negotiation started",
		zap.String("session_id", session.SessionID),
		zap.String("product_id", product.ID),
		zap.Float64("anchor_price", product.AnchorPrice))

	resp := s.buildResponse(session, dlg, result)
	resp.SessionToken = session.SessionToken
	return resp, nil
}

// Negotiate processes one buyer turn under the per-session lock: record the
// offer for bot scoring, read exit intent, advance the engine, overlay any
// applicable promotion, render dialogue and persist. Failures of the model,
// the promotion lookup or the audit append never roll back the turn; only a
// persistence failure does.
func (s *Service) Negotiate(ctx context.Context, sessionID, buyerMessage string, buyerPrice float64) (*Response, error) {
	ok, err := s.cache.AcquireLock(ctx, sessionID)
	if err != nil {
		return nil, engine.ErrDegraded.Wrapf("session lock: %v", err)
	}
	if !ok {
		return nil, engine.ErrConflict.Wrapf("session %s turn already in progress", sessionID)
	}
	defer func() {
		if err := s.cache.ReleaseLock(ctx, sessionID); err != nil {
			s.log.Warn("session lock release failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}()

	return s.negotiateLocked(ctx, sessionID, buyerMessage, buyerPrice)
}

func (s *Service) negotiateLocked(ctx context.Context, sessionID, buyerMessage string, buyerPrice float64) (*Response, error) {
	session, err := s.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, engine.ErrNotFound.Wrapf("session %s not found or expired", sessionID)
	}
	if session.Terminal() {
		return nil, engine.ErrTerminal.Wrapf("session %s is already %s", sessionID, session.State)
	}

	now := time.Now().UTC()

	// Bot detection: score the (time, price) stream and harden the curve
	// for this round only. The stored beta stays untouched.
	detector := s.detectors.Get(sessionID)
	detector.Record(now, buyerPrice)
	botScore := detector.Score()
	session.BotScore = botScore
	effectiveBeta := engine.RecommendedBeta(botScore, session.Beta)

	// Exit intent reads the sanitised text so control bytes or injection
	// payloads cannot fake (or mask) a walk-away.
	cleanMessage, _ := dialogue.SanitizeBuyerMessage(buyerMessage)
	exit := engine.DetectExitIntent(cleanMessage)

	eng := engine.NewNegotiationEngine(session)

	var result engine.EngineResult
	if exit.IsLeaving && exit.Confidence >= exitConfidenceThreshold {
		result = eng.HandleWalkAway()
		s.log.Info("walk-away detected",
			zap.String("session_id", sessionID),
			zap.String("trigger", exit.Trigger),
			zap.Float64("confidence", exit.Confidence),
			zap.Bool("angry", exit.IsAngry))
	} else {
		originalBeta := session.Beta
		session.Beta = effectiveBeta
		result, err = eng.ProcessBuyerOffer(buyerPrice)
		session.Beta = originalBeta
		if err != nil {
			return nil, err
		}
	}

	if result.State == engine.StateResponding {
		s.applyPromotion(ctx, session, &result, now)
	}
	if result.State == engine.StateAgreed {
		s.attachAgreement(session, &result, now)
	}

	dlg := s.dialogue.GenerateResponse(ctx, session, result, buyerMessage, session.Language)
	if dlg.Fallback {
		s.metrics.LLMFallbacks.Inc()
	}

	if err := s.persistSession(ctx, session); err != nil {
		return nil, engine.ErrDegraded.Wrapf("persist session %s: %v", sessionID, err)
	}

	if session.Terminal() {
		s.detectors.Evict(sessionID)
		s.metrics.OutcomesTotal.WithLabelValues(string(session.State)).Inc()
	}
	s.metrics.TurnsTotal.WithLabelValues(result.Tactic).Inc()

	// Best-effort: the turn already happened, an unwritten audit row must
	// not undo it.
	audit := &engine.AuditEntry{
		SessionID:    sessionID,
		Round:        session.CurrentRound,
		BuyerMessage: truncateRunesafe(buyerMessage, auditMessageLimit),
		BuyerPrice:   buyerPrice,
		CounterPrice: result.CounterPrice,
		Tactic:       result.Tactic,
		BotScore:     botScore,
		State:        result.State,
		Timestamp:    now,
	}
	if err := s.records.AppendAudit(ctx, audit); err != nil {
		s.log.Warn("audit append failed",
			zap.String("session_id", sessionID), zap.Int("round", audit.Round), zap.Error(err))
	}

	return s.buildResponse(session, dlg, result), nil
}

// LoadSession reads a session, cache first, falling back to the record
// store. Returns nil when it exists in neither.
func (s *Service) LoadSession(ctx context.Context, sessionID string) (*engine.Session, error) {
	if session := s.cache.LoadSession(ctx, sessionID); session != nil {
		return session, nil
	}
	return s.records.GetSession(ctx, sessionID)
}

// applyPromotion overlays the best active promotion onto the counter price.
// The discount is invisible: the stored seller price is untouched, so the
// non-increasing invariant holds, and the dialogue frames it as a favour.
// Promotion lookup failures are logged and skipped.
func (s *Service) applyPromotion(ctx context.Context, session *engine.Session, result *engine.EngineResult, now time.Time) {
	promo, amount, err := s.records.BestPromotion(ctx, session.ProductID, result.CounterPrice, now)
	if err != nil {
		s.log.Warn("promotion lookup failed",
			zap.String("session_id", session.SessionID), zap.Error(err))
		return
	}
	if promo == nil {
		return
	}

	validated := engine.ValidatePrice(result.CounterPrice-amount, session.ReservationPrice, session.AnchorPrice)
	if validated.WasOverridden {
		// Discount would cross the floor; the coupon quietly doesn't apply.
		return
	}

	result.CounterPrice = validated.Price
	if result.Metadata == nil {
		result.Metadata = make(map[string]any)
	}
	result.Metadata["coupon_applied"] = true
	result.Metadata["coupon_discount"] = amount

	s.log.Info("invisible coupon applied",
		zap.String("session_id", session.SessionID),
		zap.String("promo_id", promo.ID),
		zap.Float64("discount", amount))
}

// attachAgreement stamps the agreed deal with the stub digest. Real signing
// is asymmetric crypto; this only makes post-hoc edits detectable in our
// own records.
func (s *Service) attachAgreement(session *engine.Session, result *engine.EngineResult, now time.Time) {
	agreed := result.CounterPrice
	if session.AgreedPrice != nil {
		agreed = *session.AgreedPrice
	}
	agreement := protocol.SignAgreement(session.SessionID, session.ProductID, agreed, now)

	if result.Metadata == nil {
		result.Metadata = make(map[string]any)
	}
	result.Metadata["agreement"] = agreement
	if session.Metadata == nil {
		session.Metadata = make(map[string]any)
	}
	session.Metadata["agreement"] = agreement

	s.log.Warn("agreement signed with stub digest, not real crypto",
		zap.String("session_id", session.SessionID),
		zap.String("algorithm", agreement.Algorithm))
}

// persistSession writes the session to both stores: the cache snapshot
// under a fresh TTL and the durable record. The writes fan out; either
// failing fails the turn.
func (s *Service) persistSession(ctx context.Context, session *engine.Session) error {
	ttl := time.Duration(session.TTLSeconds) * time.Second

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.cache.StoreSession(gctx, session, ttl) })
	g.Go(func() error { return s.records.UpsertSession(gctx, session) })
	return g.Wait()
}

func (s *Service) buildResponse(session *engine.Session, dlg dialogue.Response, result engine.EngineResult) *Response {
	return &Response{
		SessionID:       session.SessionID,
		Message:         dlg.Message,
		CurrentPrice:    result.CounterPrice,
		AnchorPrice:     session.AnchorPrice,
		State:           result.State,
		Tactic:          dlg.Tactic,
		Sentiment:       dlg.Sentiment,
		Round:           session.CurrentRound,
		MaxRounds:       session.MaxRounds,
		QuoteTTLSeconds: session.TTLSeconds,
		AgreedPrice:     session.AgreedPrice,
		Metadata:        result.Metadata,
	}
}

// newHexID returns a 32-char lowercase hex id (uuid4 without dashes),
// matching the ^[a-f0-9]{32}$ shape session and transaction ids use.
func newHexID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// newSessionToken returns an opaque bearer token with 256 bits of entropy.
func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", engine.ErrDegraded.Wrapf("generate session token: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// truncateRunesafe cuts s at the byte limit, backing off to a rune
// boundary.
func truncateRunesafe(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
