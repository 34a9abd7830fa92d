package engine

import (
	"math"
	"time"
)

// Actor identifies which side of the table an offer came from.
type Actor string

const (
	ActorBuyer  Actor = "buyer"
	ActorSeller Actor = "seller"
)

// State is the negotiation lifecycle state.
// IDLE → PROPOSING → RESPONDING → {AGREED | BROKEN | TIMED_OUT}.
type State string

const (
	StateIdle       State = "idle"
	StateProposing  State = "proposing"
	StateResponding State = "responding"
	StateAgreed     State = "agreed"
	StateBroken     State = "broken"
	StateTimedOut   State = "timed_out"
)

// Terminal reports whether the state accepts no further transitions.
func (s State) Terminal() bool {
	return s == StateAgreed || s == StateBroken || s == StateTimedOut
}

// Offer is a single priced move by either party. Round 0 is the seller's
// opening offer; buyer and seller offers within the same round share the
// round index.
type Offer struct {
	Round     int       `json:"round" bson:"round"`
	Actor     Actor     `json:"actor" bson:"actor"`
	Price     float64   `json:"price" bson:"price"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	// ConcessionDelta is signed movement relative to the same actor's
	// previous offer; 0 when there is no previous offer.
	ConcessionDelta float64 `json:"concession_delta" bson:"concession_delta"`
	Message         string  `json:"message,omitempty" bson:"message,omitempty"`
}

// OfferHistory is the append-only offer sequence for one session.
type OfferHistory struct {
	Offers []Offer `json:"offers" bson:"offers"`
}

// Add appends an offer to the history.
func (h *OfferHistory) Add(o Offer) {
	h.Offers = append(h.Offers, o)
}

// LastBuyerOffer returns the most recent buyer offer, or nil.
func (h *OfferHistory) LastBuyerOffer() *Offer {
	for i := len(h.Offers) - 1; i >= 0; i-- {
		if h.Offers[i].Actor == ActorBuyer {
			return &h.Offers[i]
		}
	}
	return nil
}

// LastSellerOffer returns the most recent seller offer, or nil.
func (h *OfferHistory) LastSellerOffer() *Offer {
	for i := len(h.Offers) - 1; i >= 0; i-- {
		if h.Offers[i].Actor == ActorSeller {
			return &h.Offers[i]
		}
	}
	return nil
}

// BuyerOffers returns the buyer-only subsequence in order.
func (h *OfferHistory) BuyerOffers() []Offer {
	var out []Offer
	for _, o := range h.Offers {
		if o.Actor == ActorBuyer {
			out = append(out, o)
		}
	}
	return out
}

// SellerOffers returns the seller-only subsequence in order.
func (h *OfferHistory) SellerOffers() []Offer {
	var out []Offer
	for _, o := range h.Offers {
		if o.Actor == ActorSeller {
			out = append(out, o)
		}
	}
	return out
}

// Recent returns up to the last n offers in order.
func (h *OfferHistory) Recent(n int) []Offer {
	if n <= 0 || len(h.Offers) == 0 {
		return nil
	}
	if len(h.Offers) <= n {
		return h.Offers
	}
	return h.Offers[len(h.Offers)-n:]
}

// Product is a catalogue entry. The negotiable floor is derived from cost
// and minimum margin, never stored, so a margin change re-prices the floor.
type Product struct {
	ID       string `json:"id" bson:"_id"`
	Name     string `json:"name" bson:"name"`
	Category string `json:"category,omitempty" bson:"category,omitempty"`
	// AnchorPrice is the sticker price the seller opens with.
	AnchorPrice float64 `json:"anchor_price" bson:"anchor_price"`
	// CostPrice is what the item costs the seller.
	CostPrice float64 `json:"cost_price" bson:"cost_price"`
	// MinMargin and TargetMargin are fractions in (0, 1].
	MinMargin    float64        `json:"min_margin" bson:"min_margin"`
	TargetMargin float64        `json:"target_margin" bson:"target_margin"`
	Currency     string         `json:"currency,omitempty" bson:"currency,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at,omitempty" bson:"created_at,omitempty"`
}

// ReservationPrice is the floor below which the seller never goes:
// cost × (1 + min_margin), rounded to 2 decimals.
func (p Product) ReservationPrice() float64 {
	return Round2(p.CostPrice * (1 + p.MinMargin))
}

// TargetPrice is the ideal selling price: cost × (1 + target_margin).
func (p Product) TargetPrice() float64 {
	return Round2(p.CostPrice * (1 + p.TargetMargin))
}

// ZOPA returns the negotiable (reservation, anchor) range.
func (p Product) ZOPA() (low, high float64) {
	return p.ReservationPrice(), p.AnchorPrice
}

// Validate checks catalogue invariants before a product is accepted.
func (p Product) Validate() error {
	if p.ID == "" {
		return ErrInvalidInput.Wrap("product id is required")
	}
	if p.Name == "" {
		return ErrInvalidInput.Wrap("product name is required")
	}
	if p.AnchorPrice <= 0 || math.IsNaN(p.AnchorPrice) || math.IsInf(p.AnchorPrice, 0) {
		return ErrInvalidInput.Wrap("anchor_price must be a positive finite number")
	}
	if p.CostPrice <= 0 || math.IsNaN(p.CostPrice) || math.IsInf(p.CostPrice, 0) {
		return ErrInvalidInput.Wrap("cost_price must be a positive finite number")
	}
	if p.CostPrice >= p.AnchorPrice {
		return ErrInvalidInput.Wrap("cost_price must be below anchor_price")
	}
	if p.MinMargin <= 0 || p.MinMargin > 1 {
		return ErrInvalidInput.Wrap("min_margin must be in (0, 1]")
	}
	if p.TargetMargin <= 0 || p.TargetMargin > 1 {
		return ErrInvalidInput.Wrap("target_margin must be in (0, 1]")
	}
	if p.MinMargin > p.TargetMargin {
		return ErrInvalidInput.Wrap("min_margin must not exceed target_margin")
	}
	if p.ReservationPrice() > p.AnchorPrice {
		return ErrInvalidInput.Wrap("derived reservation price exceeds anchor_price")
	}
	return nil
}

// Session is the full negotiation state for one buyer/product pair.
// The orchestrator owns it exclusively for the duration of one turn;
// cache and record store hold serialized copies.
type Session struct {
	SessionID     string `json:"session_id" bson:"_id"`
	TransactionID string `json:"transaction_id" bson:"transaction_id"`
	ProductID     string `json:"product_id" bson:"product_id"`
	ProductName   string `json:"product_name" bson:"product_name"`

	// Strategy parameters, snapshotted at session start.
	AnchorPrice      float64 `json:"anchor_price" bson:"anchor_price"`
	ReservationPrice float64 `json:"reservation_price" bson:"reservation_price"`
	Beta             float64 `json:"beta" bson:"beta"`
	Alpha            float64 `json:"alpha" bson:"alpha"`
	MaxRounds        int     `json:"max_rounds" bson:"max_rounds"`
	CurrentRound     int     `json:"current_round" bson:"current_round"`
	TTLSeconds       int     `json:"ttl_seconds" bson:"ttl_seconds"`

	State              State        `json:"state" bson:"state"`
	OfferHistory       OfferHistory `json:"offer_history" bson:"offer_history"`
	CurrentSellerPrice float64      `json:"current_seller_price" bson:"current_seller_price"`
	AgreedPrice        *float64     `json:"agreed_price,omitempty" bson:"agreed_price,omitempty"`

	BotScore     float64 `json:"bot_score" bson:"bot_score"`
	BuyerIP      string  `json:"buyer_ip,omitempty" bson:"buyer_ip,omitempty"`
	BuyerName    string  `json:"buyer_name,omitempty" bson:"buyer_name,omitempty"`
	SessionToken string  `json:"session_token" bson:"session_token"`
	Language     string  `json:"language,omitempty" bson:"language,omitempty"`

	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Terminal reports whether the session reached a final state.
func (s *Session) Terminal() bool {
	return s.State.Terminal()
}

// PromoAllProducts as a promotion's ProductID makes it store-wide.
const PromoAllProducts = "__all__"

// Promotion is a backend discount rule evaluated against counter prices.
type Promotion struct {
	ID        string `json:"promo_id" bson:"_id"`
	ProductID string `json:"product_id" bson:"product_id"`
	// DiscountType is "flat" (absolute amount) or "percentage" (of price).
	DiscountType  string    `json:"discount_type" bson:"discount_type"`
	DiscountValue float64   `json:"discount_value" bson:"discount_value"`
	MinPrice      float64   `json:"min_price" bson:"min_price"`
	Active        bool      `json:"active" bson:"active"`
	ValidFrom     time.Time `json:"valid_from" bson:"valid_from"`
	ValidUntil    time.Time `json:"valid_until" bson:"valid_until"`
	Description   string    `json:"description,omitempty" bson:"description,omitempty"`
}

// Amount returns the absolute discount for the given price, rounded to
// 2 decimals.
func (p Promotion) Amount(price float64) float64 {
	if p.DiscountType == "percentage" {
		return Round2(price * p.DiscountValue / 100)
	}
	return Round2(p.DiscountValue)
}

// AppliesTo reports whether the promotion is usable for this product and
// price at the given instant.
func (p Promotion) AppliesTo(productID string, price float64, now time.Time) bool {
	if !p.Active {
		return false
	}
	if p.ProductID != productID && p.ProductID != PromoAllProducts {
		return false
	}
	if now.Before(p.ValidFrom) || now.After(p.ValidUntil) {
		return false
	}
	return price >= p.MinPrice
}

// AuditEntry is one negotiation turn in the durable audit log.
type AuditEntry struct {
	SessionID    string    `json:"session_id" bson:"session_id"`
	Round        int       `json:"round" bson:"round"`
	BuyerMessage string    `json:"buyer_message" bson:"buyer_message"`
	BuyerPrice   float64   `json:"buyer_price" bson:"buyer_price"`
	CounterPrice float64   `json:"counter_price" bson:"counter_price"`
	Tactic       string    `json:"tactic" bson:"tactic"`
	BotScore     float64   `json:"bot_score" bson:"bot_score"`
	State        State     `json:"state" bson:"state"`
	Timestamp    time.Time `json:"timestamp" bson:"timestamp"`
}

// Round2 rounds to 2 decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
