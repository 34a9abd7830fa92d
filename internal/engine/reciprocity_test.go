package engine

import (
	"math"
	"testing"
)

func TestAIConcession_NoOffersZero(t *testing.T) {
	tr := NewReciprocityTracker(0.6, 200)
	if got := tr.AIConcession(); got != 0 {
		t.Errorf("AIConcession with no offers = %v, want 0", got)
	}
}

func TestAIConcession_BuyerConcedes50AIConcedes30(t *testing.T) {
	tr := NewReciprocityTracker(0.6, 200)
	tr.RecordBuyerOffer(500)
	tr.RecordBuyerOffer(550) // conceded +50
	got := tr.AIConcession()
	if math.Abs(got-30.0) > 0.1 {
		t.Errorf("AIConcession = %v, want ~30 (0.6 × 50)", got)
	}
}

func TestAIConcession_BuyerHoldsFirmAIHolds(t *testing.T) {
	tr := NewReciprocityTracker(0.6, 200)
	tr.RecordBuyerOffer(500)
	tr.RecordBuyerOffer(500)
	if got := tr.AIConcession(); got != 0 {
		t.Errorf("AIConcession after stall = %v, want 0", got)
	}
}

func TestAIConcession_BuyerRetreatsAIHolds(t *testing.T) {
	tr := NewReciprocityTracker(0.6, 200)
	tr.RecordBuyerOffer(500)
	tr.RecordBuyerOffer(480) // negative delta
	if got := tr.AIConcession(); got != 0 {
		t.Errorf("AIConcession after retreat = %v, want 0", got)
	}
}

func TestAIConcession_MaxConcessionCap(t *testing.T) {
	tr := NewReciprocityTracker(0.6, 20)
	tr.RecordBuyerOffer(500)
	tr.RecordBuyerOffer(600) // +100, raw 60 but cap is 20
	if got := tr.AIConcession(); got != 20 {
		t.Errorf("AIConcession = %v, want capped 20", got)
	}
}

func TestAIConcession_SlidingWindow(t *testing.T) {
	tr := &ReciprocityTracker{alpha: 0.6, maxConcession: 200, window: 2}
	tr.RecordBuyerOffer(500)
	tr.RecordBuyerOffer(530) // +30
	tr.RecordBuyerOffer(550) // +20
	tr.RecordBuyerOffer(560) // +10
	// Window of 2: deltas [+20, +10], avg 15, ×0.6 = 9.
	got := tr.AIConcession()
	if math.Abs(got-9.0) > 0.1 {
		t.Errorf("AIConcession = %v, want ~9", got)
	}
}

func TestDetectTrend(t *testing.T) {
	tests := []struct {
		name   string
		offers []float64
		want   string
	}{
		{"single offer stable", []float64{500}, TrendStable},
		{"steady steps stable", []float64{500, 520, 540}, TrendStable},
		{"shrinking steps decelerating", []float64{500, 550, 560, 562}, TrendDecelerating},
		{"growing steps accelerating", []float64{500, 510, 540, 590}, TrendAccelerating},
		{"flat offers stalled", []float64{500, 500, 500, 500}, TrendStalled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewReciprocityTracker(0.6, 200)
			for _, o := range tt.offers {
				tr.RecordBuyerOffer(o)
			}
			if got := tr.DetectTrend(); got != tt.want {
				t.Errorf("DetectTrend() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAdaptiveAlpha_EarlyKeepsBase(t *testing.T) {
	tr := NewReciprocityTracker(0.6, 200)
	if got := tr.AdaptiveAlpha(0.1); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("AdaptiveAlpha(0.1) = %v, want base 0.6", got)
	}
}

func TestAdaptiveAlpha_LateApproachesOne(t *testing.T) {
	tr := NewReciprocityTracker(0.6, 200)
	if got := tr.AdaptiveAlpha(1.0); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("AdaptiveAlpha(1.0) = %v, want 1.0", got)
	}
}

func TestAdaptiveAlpha_ClampsInput(t *testing.T) {
	tr := NewReciprocityTracker(0.6, 200)
	if got := tr.AdaptiveAlpha(2.5); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("AdaptiveAlpha(2.5) = %v, want clamped 1.0", got)
	}
	if got := tr.AdaptiveAlpha(-1); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("AdaptiveAlpha(-1) = %v, want base 0.6", got)
	}
}
