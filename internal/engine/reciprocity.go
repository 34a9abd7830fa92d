package engine

// Buyer concession trend labels.
const (
	TrendAccelerating = "accelerating"
	TrendStable       = "stable"
	TrendDecelerating = "decelerating"
	TrendStalled      = "stalled"
)

// defaultReciprocityWindow is the sliding window (in deltas) used for
// averaging buyer movement.
const defaultReciprocityWindow = 3

// ReciprocityTracker mirrors buyer concessions with a damping factor alpha,
// so the seller always concedes less than the buyer did:
//
//	seller_delta = α · avg(buyer_delta),  0 < α < 1
type ReciprocityTracker struct {
	alpha         float64
	maxConcession float64
	window        int
	buyerOffers   []float64
}

// NewReciprocityTracker builds a tracker. maxConcession caps the per-round
// seller concession regardless of how fast the buyer moves.
func NewReciprocityTracker(alpha, maxConcession float64) *ReciprocityTracker {
	return &ReciprocityTracker{
		alpha:         alpha,
		maxConcession: maxConcession,
		window:        defaultReciprocityWindow,
	}
}

// RecordBuyerOffer appends a buyer offer to the history.
func (t *ReciprocityTracker) RecordBuyerOffer(price float64) {
	t.buyerOffers = append(t.buyerOffers, price)
}

// BuyerDeltas returns per-round buyer movement (positive = buyer moved up).
func (t *ReciprocityTracker) BuyerDeltas() []float64 {
	if len(t.buyerOffers) < 2 {
		return nil
	}
	deltas := make([]float64, 0, len(t.buyerOffers)-1)
	for i := 1; i < len(t.buyerOffers); i++ {
		deltas = append(deltas, t.buyerOffers[i]-t.buyerOffers[i-1])
	}
	return deltas
}

// AvgBuyerDelta averages buyer movement over the sliding window.
func (t *ReciprocityTracker) AvgBuyerDelta() float64 {
	deltas := t.BuyerDeltas()
	if len(deltas) == 0 {
		return 0
	}
	recent := deltas
	if len(recent) > t.window {
		recent = recent[len(recent)-t.window:]
	}
	var sum float64
	for _, d := range recent {
		sum += d
	}
	return sum / float64(len(recent))
}

// AIConcession returns how much the seller should concede this round.
// A stalled (or backtracking) buyer earns zero concession.
func (t *ReciprocityTracker) AIConcession() float64 {
	buyerDelta := t.AvgBuyerDelta()
	if buyerDelta <= 0 {
		return 0
	}
	raw := t.alpha * buyerDelta
	if raw > t.maxConcession {
		return t.maxConcession
	}
	return raw
}

// DetectTrend classifies the buyer's concession trend over the window.
func (t *ReciprocityTracker) DetectTrend() string {
	deltas := t.BuyerDeltas()
	if len(deltas) < 2 {
		return TrendStable
	}
	recent := deltas
	if len(recent) > t.window {
		recent = recent[len(recent)-t.window:]
	}
	stalled := true
	for _, d := range recent {
		if d > 0 {
			stalled = false
			break
		}
	}
	if stalled {
		return TrendStalled
	}
	if len(recent) >= 2 {
		slope := recent[len(recent)-1] - recent[0]
		if slope > 5 {
			return TrendAccelerating
		}
		if slope < -5 {
			return TrendDecelerating
		}
	}
	return TrendStable
}

// AdaptiveAlpha interpolates alpha toward 1.0 during the second half of the
// deadline. relativeTime runs 0 (start) to 1 (deadline); below 0.5 the base
// alpha is returned unchanged.
func (t *ReciprocityTracker) AdaptiveAlpha(relativeTime float64) float64 {
	if relativeTime < 0 {
		relativeTime = 0
	}
	if relativeTime > 1 {
		relativeTime = 1
	}
	urgency := relativeTime - 0.5
	if urgency < 0 {
		urgency = 0
	}
	return t.alpha + (1.0-t.alpha)*urgency*2
}
