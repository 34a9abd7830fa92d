package engine

import (
	"math"
	"testing"
)

func TestComputeOffer_RoundZeroReturnsAnchor(t *testing.T) {
	if got := ComputeOffer(1000, 700, 0, 10, 5.0, 0); got != 1000 {
		t.Errorf("ComputeOffer(round 0) = %v, want 1000", got)
	}
}

func TestComputeOffer_FinalRoundReturnsReservation(t *testing.T) {
	if got := ComputeOffer(1000, 700, 10, 10, 5.0, 0); got != 700 {
		t.Errorf("ComputeOffer(final round) = %v, want 700", got)
	}
}

func TestComputeOffer_BoulwareHoldsFirmMidNegotiation(t *testing.T) {
	// Beta=5 should barely move at round 5/10.
	got := ComputeOffer(1000, 700, 5, 10, 5.0, 0)
	if got <= 850 {
		t.Errorf("boulware mid price = %v, want > 850", got)
	}
}

func TestComputeOffer_LinearConcedesProportionally(t *testing.T) {
	got := ComputeOffer(1000, 700, 5, 10, 1.0, 0)
	if got < 845 || got > 855 {
		t.Errorf("linear mid price = %v, want ~850", got)
	}
}

func TestComputeOffer_ConcederDropsFastEarly(t *testing.T) {
	// Beta=0.3 at round 3/10: (0.3)^0.3 ≈ 0.697, so the price has already
	// given up 70% of the range while the boulware above barely moved.
	got := ComputeOffer(1000, 700, 3, 10, 0.3, 0)
	if got >= 800 {
		t.Errorf("conceder round-3 price = %v, want < 800", got)
	}
}

func TestComputeOffer_SpotCheckBeta3(t *testing.T) {
	// Pa=1000, Rs=700, β=3, t=5, T=10: (0.5)^3 = 0.125 → 962.50 exactly.
	got := ComputeOffer(1000, 700, 5, 10, 3.0, 0)
	if math.Abs(got-962.5) > 1e-9 {
		t.Errorf("beta=3 spot check = %v, want 962.5", got)
	}
}

func TestComputeOffer_SpotCheckConcederThird(t *testing.T) {
	// β=1/3 at the midpoint: (0.5)^(1/3) ≈ 0.794 → ≈761.89.
	got := ComputeOffer(1000, 700, 5, 10, 1.0/3.0, 0)
	if got < 755 || got > 800 {
		t.Errorf("beta=1/3 spot check = %v, want in [755, 800]", got)
	}
}

func TestComputeOffer_Clamps(t *testing.T) {
	tests := []struct {
		name  string
		round int
		beta  float64
		check func(float64) bool
	}{
		{"never below reservation", 100, 0.1, func(p float64) bool { return p >= 700 }},
		{"never above anchor", 0, 0.1, func(p float64) bool { return p <= 1000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeOffer(1000, 700, tt.round, 10, tt.beta, 0)
			if !tt.check(got) {
				t.Errorf("ComputeOffer = %v violates clamp", got)
			}
		})
	}
}

func TestComputeOffer_MaxRoundsZero(t *testing.T) {
	if got := ComputeOffer(1000, 700, 5, 0, 5.0, 0); got != 1000 {
		t.Errorf("ComputeOffer(T=0) = %v, want anchor 1000", got)
	}
}

func TestComputeOffer_NoiseStaysInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		got := ComputeOffer(1000, 700, 5, 10, 1.0, 0.05)
		if got < 700 || got > 1000 {
			t.Fatalf("noisy offer %v escaped [700, 1000]", got)
		}
	}
}

func TestComputeAspiration_StartsAtOne(t *testing.T) {
	if got := ComputeAspiration(0, 10, 5.0, 0); got != 1.0 {
		t.Errorf("ComputeAspiration(round 0) = %v, want 1.0", got)
	}
}

func TestComputeAspiration_EndsAtReserved(t *testing.T) {
	got := ComputeAspiration(10, 10, 5.0, 0)
	if math.Abs(got) >= 0.01 {
		t.Errorf("ComputeAspiration(deadline) = %v, want ~0", got)
	}
}

func TestComputeAspiration_RespectsReservedUtility(t *testing.T) {
	got := ComputeAspiration(10, 10, 5.0, 0.3)
	if math.Abs(got-0.3) > 1e-9 {
		t.Errorf("ComputeAspiration(deadline, r=0.3) = %v, want 0.3", got)
	}
}
