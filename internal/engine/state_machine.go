package engine

import (
	"math"
	"time"
)

// Tactic labels handed to the dialogue layer. They describe the move the
// engine chose, not the wording.
const (
	TacticOpening         = "opening"
	TacticAccept          = "accept"
	TacticHoldFirm        = "hold_firm"
	TacticMinorConcession = "minor_concession"
	TacticConcession      = "concession"
	TacticMajorConcession = "major_concession"
	TacticTimeoutFinal    = "timeout_final"
	TacticWalkAwaySave    = "walk_away_save"
	TacticWalkAwayFailed  = "walk_away_failed"
	TacticQuantityPivot   = "quantity_pivot"
)

const (
	// walkAwayConcessionPct is the save-the-deal discount when a buyer
	// signals they are leaving.
	walkAwayConcessionPct = 0.05
	// DefaultBundleDiscountPerUnit is the per-extra-unit discount used by
	// the quantity pivot when the caller passes 0.
	DefaultBundleDiscountPerUnit = 100.0
	// trackerConcessionCapPct sizes the reciprocity cap as a fraction of
	// the negotiable range.
	trackerConcessionCapPct = 0.1
)

// EngineResult is the output of a single negotiation turn.
type EngineResult struct {
	CounterPrice           float64         `json:"counter_price"`
	State                  State           `json:"state"`
	Tactic                 string          `json:"tactic"`
	AcceptanceThresholdMet bool            `json:"acceptance_threshold_met"`
	Validation             *ValidatedPrice `json:"validation,omitempty"`
	Metadata               map[string]any  `json:"metadata,omitempty"`
}

// NegotiationEngine advances one session through the alternating-offers
// protocol. It blends the time-dependent curve with tit-for-tat mirroring
// and answers each buyer move with accept, counter, timeout, walk-away save
// or bundle pivot.
type NegotiationEngine struct {
	session *Session
	tracker *ReciprocityTracker
}

// NewNegotiationEngine wraps a session. Buyer history already on the session
// is replayed into the reciprocity tracker, so reconstructing the engine
// from a stored session is loss-free.
func NewNegotiationEngine(s *Session) *NegotiationEngine {
	tracker := NewReciprocityTracker(
		s.Alpha,
		math.Abs(s.AnchorPrice-s.ReservationPrice)*trackerConcessionCapPct,
	)
	for _, o := range s.OfferHistory.BuyerOffers() {
		tracker.RecordBuyerOffer(o.Price)
	}
	return &NegotiationEngine{session: s, tracker: tracker}
}

// Tracker exposes the reciprocity tracker for trend inspection.
func (e *NegotiationEngine) Tracker() *ReciprocityTracker {
	return e.tracker
}

// StartNegotiation opens the session: the seller anchors at the sticker
// price in round 0.
func (e *NegotiationEngine) StartNegotiation() (EngineResult, error) {
	s := e.session
	if s.State != StateIdle && s.State != "" {
		return EngineResult{}, ErrConflict.Wrapf("cannot start negotiation in state %q", s.State)
	}

	now := time.Now().UTC()
	s.State = StateProposing
	s.CurrentRound = 0
	s.CurrentSellerPrice = s.AnchorPrice
	s.UpdatedAt = now

	s.OfferHistory.Add(Offer{
		Round:     0,
		Actor:     ActorSeller,
		Price:     s.AnchorPrice,
		Timestamp: now,
		Message:   "Opening offer",
	})

	return EngineResult{
		CounterPrice: s.AnchorPrice,
		State:        StateProposing,
		Tactic:       TacticOpening,
	}, nil
}

// ProcessBuyerOffer advances one round on an incoming buyer price and
// returns the engine's move: accept when the buyer meets the curve, final
// floor offer at the deadline, otherwise a validated counter.
func (e *NegotiationEngine) ProcessBuyerOffer(buyerPrice float64) (EngineResult, error) {
	if math.IsNaN(buyerPrice) || math.IsInf(buyerPrice, 0) {
		return EngineResult{}, ErrInvalidInput.Wrap("buyer price must be a finite number")
	}
	if buyerPrice <= 0 {
		return EngineResult{}, ErrInvalidInput.Wrap("buyer price must be positive")
	}

	s := e.session
	now := time.Now().UTC()
	s.CurrentRound++
	s.State = StateResponding
	s.UpdatedAt = now

	buyerOffer := Offer{
		Round:     s.CurrentRound,
		Actor:     ActorBuyer,
		Price:     buyerPrice,
		Timestamp: now,
	}
	if last := s.OfferHistory.LastBuyerOffer(); last != nil {
		buyerOffer.ConcessionDelta = buyerPrice - last.Price
	}
	s.OfferHistory.Add(buyerOffer)
	e.tracker.RecordBuyerOffer(buyerPrice)

	// Acceptance: buyer met or beat the curve price for this round.
	base := ComputeOffer(s.AnchorPrice, s.ReservationPrice, s.CurrentRound, s.MaxRounds, s.Beta, 0)
	if buyerPrice >= base {
		return e.accept(buyerPrice), nil
	}

	// Deadline: last-ditch floor offer, then the window closes.
	if s.CurrentRound >= s.MaxRounds {
		return e.timeout(), nil
	}

	prev := s.CurrentSellerPrice
	if prev == 0 {
		prev = s.AnchorPrice
	}

	counter := e.computeCounter(base)

	s.OfferHistory.Add(Offer{
		Round:           s.CurrentRound,
		Actor:           ActorSeller,
		Price:           counter.Price,
		Timestamp:       now,
		ConcessionDelta: prev - counter.Price,
		Message:         "counter",
	})
	s.CurrentSellerPrice = counter.Price

	return EngineResult{
		CounterPrice: counter.Price,
		State:        StateResponding,
		Tactic:       e.classifyTactic(prev, counter.Price),
		Validation:   &counter,
	}, nil
}

// HandleWalkAway is the save-the-deal response to exit intent: concede 5%
// off the current price if that stays above the floor, otherwise let the
// buyer go and mark the session broken. Does not consume a round.
func (e *NegotiationEngine) HandleWalkAway() EngineResult {
	s := e.session
	now := time.Now().UTC()

	current := s.CurrentSellerPrice
	if current == 0 {
		current = s.AnchorPrice
	}
	newPrice := current * (1 - walkAwayConcessionPct)

	if newPrice < s.ReservationPrice {
		s.State = StateBroken
		s.UpdatedAt = now
		return EngineResult{
			CounterPrice: s.ReservationPrice,
			State:        StateBroken,
			Tactic:       TacticWalkAwayFailed,
		}
	}

	validated := ValidatePrice(newPrice, s.ReservationPrice, s.AnchorPrice)

	s.OfferHistory.Add(Offer{
		Round:           s.CurrentRound,
		Actor:           ActorSeller,
		Price:           validated.Price,
		Timestamp:       now,
		ConcessionDelta: current - validated.Price,
		Message:         "walk_away_save",
	})
	s.CurrentSellerPrice = validated.Price
	s.UpdatedAt = now

	return EngineResult{
		CounterPrice: validated.Price,
		State:        StateResponding,
		Tactic:       TacticWalkAwaySave,
		Validation:   &validated,
	}
}

// HandleQuantityPivot reframes a stuck price negotiation as a bundle:
// same unit price pressure, but a discount spread across extra units.
// Session state and offer history are untouched; the pivot is advisory.
func (e *NegotiationEngine) HandleQuantityPivot(quantity int, discountPerUnit float64) EngineResult {
	s := e.session
	if quantity < 2 {
		quantity = 2
	}
	if discountPerUnit <= 0 {
		discountPerUnit = DefaultBundleDiscountPerUnit
	}

	unitPrice := s.CurrentSellerPrice
	if unitPrice == 0 {
		unitPrice = s.AnchorPrice
	}
	totalDiscount := discountPerUnit * float64(quantity-1)
	bundleUnit := unitPrice - totalDiscount/float64(quantity)

	validated := ValidatePrice(bundleUnit, s.ReservationPrice, s.AnchorPrice)

	return EngineResult{
		CounterPrice: validated.Price,
		State:        s.State,
		Tactic:       TacticQuantityPivot,
		Validation:   &validated,
		Metadata: map[string]any{
			"quantity":     quantity,
			"bundle_total": Round2(validated.Price * float64(quantity)),
		},
	}
}

// computeCounter blends the curve price with a tit-for-tat concession off
// the current price, takes the more generous of the two but never less than
// the curve allows, and clamps the result.
func (e *NegotiationEngine) computeCounter(basePrice float64) ValidatedPrice {
	s := e.session
	tft := e.tracker.AIConcession()

	current := s.CurrentSellerPrice
	if current == 0 {
		current = s.AnchorPrice
	}
	tftPrice := current - tft

	counter := math.Min(current, math.Max(basePrice, tftPrice))

	return ValidatePrice(counter, s.ReservationPrice, s.AnchorPrice)
}

func (e *NegotiationEngine) accept(agreedPrice float64) EngineResult {
	s := e.session
	s.State = StateAgreed
	agreed := agreedPrice
	s.AgreedPrice = &agreed
	s.UpdatedAt = time.Now().UTC()
	return EngineResult{
		CounterPrice:           agreedPrice,
		State:                  StateAgreed,
		Tactic:                 TacticAccept,
		AcceptanceThresholdMet: true,
	}
}

func (e *NegotiationEngine) timeout() EngineResult {
	s := e.session
	s.State = StateTimedOut
	s.UpdatedAt = time.Now().UTC()
	return EngineResult{
		CounterPrice: s.ReservationPrice,
		State:        StateTimedOut,
		Tactic:       TacticTimeoutFinal,
	}
}

// classifyTactic labels the counter by how far it dropped relative to the
// whole negotiable range, measured from the seller price before this turn.
func (e *NegotiationEngine) classifyTactic(prev, counterPrice float64) string {
	s := e.session
	totalRange := s.AnchorPrice - s.ReservationPrice
	if totalRange == 0 {
		return TacticHoldFirm
	}

	dropPct := (prev - counterPrice) / totalRange
	switch {
	case dropPct < 0.01:
		return TacticHoldFirm
	case dropPct < 0.05:
		return TacticMinorConcession
	case dropPct < 0.15:
		return TacticConcession
	default:
		return TacticMajorConcession
	}
}
