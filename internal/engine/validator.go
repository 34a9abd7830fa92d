package engine

import "fmt"

// ValidatedPrice is the outcome of clamping a proposed price into the
// negotiable range.
type ValidatedPrice struct {
	Price          float64 `json:"price"`
	WasOverridden  bool    `json:"was_overridden"`
	OverrideReason string  `json:"override_reason,omitempty"`
}

// ValidatePrice clamps a proposed price into [reservation, anchor]. The
// dialogue layer runs every LLM-suggested price through this before trusting
// it; the state machine runs its own counters through it as a final guard.
// Non-finite inputs are rejected earlier, at the state-machine boundary:
// this is a clamp, not a finiteness filter.
func ValidatePrice(proposed, reservation, anchor float64) ValidatedPrice {
	if proposed < reservation {
		return ValidatedPrice{
			Price:         reservation,
			WasOverridden: true,
			OverrideReason: fmt.Sprintf(
				"proposed %v is below floor %v, overridden to floor", proposed, reservation),
		}
	}
	if proposed > anchor {
		return ValidatedPrice{
			Price:         anchor,
			WasOverridden: true,
			OverrideReason: fmt.Sprintf(
				"proposed %v exceeds anchor %v, clamped to anchor", proposed, anchor),
		}
	}
	return ValidatedPrice{Price: Round2(proposed)}
}
