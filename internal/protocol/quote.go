package protocol

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Price is a Beckn money value. Value is a decimal string per the ONDC
// schema ("850.00"), never a float.
type Price struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

// BreakupItem is one line of a quote breakup.
type BreakupItem struct {
	Title string `json:"title"`
	Price Price  `json:"price"`
}

// Quote is a Beckn-compliant quote: total, breakup and validity window.
type Quote struct {
	Price   Price         `json:"price"`
	Breakup []BreakupItem `json:"breakup"`
	TTL     string        `json:"ttl"`
}

// SecondsToISODuration renders seconds as an ISO 8601 duration.
// 300 → "PT5M", 3600 → "PT1H", 90 → "PT1M30S", 0 → "PT0S".
func SecondsToISODuration(seconds int) string {
	if seconds <= 0 {
		return "PT0S"
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	out := "PT"
	if hours > 0 {
		out += fmt.Sprintf("%dH", hours)
	}
	if minutes > 0 {
		out += fmt.Sprintf("%dM", minutes)
	}
	if secs > 0 {
		out += fmt.Sprintf("%dS", secs)
	}
	return out
}

// BuildQuote assembles a quote from the negotiated price plus optional
// delivery charge and discount lines. The discount appears negated in the
// breakup, and the total is price + delivery − discount.
func BuildQuote(price float64, ttlSeconds int, deliveryCharge, discount float64) Quote {
	breakup := []BreakupItem{
		{Title: "Item Price", Price: money(price)},
	}
	if deliveryCharge > 0 {
		breakup = append(breakup, BreakupItem{Title: "Delivery Charge", Price: money(deliveryCharge)})
	}
	if discount > 0 {
		breakup = append(breakup, BreakupItem{Title: "Discount", Price: money(-discount)})
	}

	total := decimal.NewFromFloat(price).
		Add(decimal.NewFromFloat(deliveryCharge)).
		Sub(decimal.NewFromFloat(discount))

	return Quote{
		Price:   Price{Currency: "INR", Value: total.StringFixed(2)},
		Breakup: breakup,
		TTL:     SecondsToISODuration(ttlSeconds),
	}
}

func money(v float64) Price {
	return Price{Currency: "INR", Value: decimal.NewFromFloat(v).StringFixed(2)}
}
