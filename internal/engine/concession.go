package engine

import (
	"math"
	"math/rand/v2"
)

// Time-dependent concession curve:
//
//	P(t) = Pa + (Rs − Pa) · (t/T)^β
//
// Pa = anchor (sticker) price, Rs = reservation (floor) price, T = deadline
// in rounds. β > 1 concedes late (Boulware), β = 1 is linear, β < 1 concedes
// early.

// ComputeOffer returns the seller's curve price at the given round, clamped
// to [reservation, anchor] and rounded to 2 decimals. Round 0 (and any
// non-positive deadline) is the anchor. noisePct adds symmetric jitter of up
// to noisePct·|Pa−Rs| so sophisticated buyers cannot fingerprint the curve.
func ComputeOffer(anchor, reservation float64, round, maxRounds int, beta, noisePct float64) float64 {
	if maxRounds <= 0 || round <= 0 {
		return anchor
	}

	t := round
	if t > maxRounds {
		t = maxRounds
	}
	ratio := float64(t) / float64(maxRounds)

	price := anchor + (reservation-anchor)*math.Pow(ratio, beta)

	if noisePct > 0 {
		spread := math.Abs(anchor-reservation) * noisePct
		price += (rand.Float64()*2 - 1) * spread
	}

	// Clamp into the negotiable range.
	if price < reservation {
		price = reservation
	}
	if price > anchor {
		price = anchor
	}
	return Round2(price)
}

// ComputeAspiration returns the aspiration level in utility space [0, 1]:
// a(t) = 1 − (1 − r) · (t/T)^β, where r is the reserved utility. Before the
// first round (or with no deadline) aspiration is 1.
func ComputeAspiration(round, maxRounds int, beta, reservedUtility float64) float64 {
	if maxRounds <= 0 || round <= 0 {
		return 1.0
	}
	t := round
	if t > maxRounds {
		t = maxRounds
	}
	ratio := float64(t) / float64(maxRounds)
	return 1.0 - (1.0-reservedUtility)*math.Pow(ratio, beta)
}
