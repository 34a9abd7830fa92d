package engine

import (
	"testing"
	"time"
)

func TestProduct_DerivedPrices(t *testing.T) {
	p := Product{
		ID:           "iphone-15",
		Name:         "iPhone 15",
		AnchorPrice:  79900,
		CostPrice:    65000,
		MinMargin:    0.05,
		TargetMargin: 0.15,
	}
	if got := p.ReservationPrice(); got != 68250 {
		t.Errorf("ReservationPrice = %v, want 68250", got)
	}
	if got := p.TargetPrice(); got != 74750 {
		t.Errorf("TargetPrice = %v, want 74750", got)
	}
	low, high := p.ZOPA()
	if low != 68250 || high != 79900 {
		t.Errorf("ZOPA = (%v, %v), want (68250, 79900)", low, high)
	}
}

func TestProduct_Validate(t *testing.T) {
	valid := Product{
		ID:           "nike-air-max",
		Name:         "Nike Air Max",
		AnchorPrice:  12995,
		CostPrice:    7000,
		MinMargin:    0.10,
		TargetMargin: 0.30,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid product rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Product)
	}{
		{"missing id", func(p *Product) { p.ID = "" }},
		{"missing name", func(p *Product) { p.Name = "" }},
		{"zero anchor", func(p *Product) { p.AnchorPrice = 0 }},
		{"zero cost", func(p *Product) { p.CostPrice = 0 }},
		{"cost above anchor", func(p *Product) { p.CostPrice = 13000 }},
		{"min margin zero", func(p *Product) { p.MinMargin = 0 }},
		{"min margin above one", func(p *Product) { p.MinMargin = 1.2 }},
		{"target below min", func(p *Product) { p.TargetMargin = 0.05 }},
		{"floor above anchor", func(p *Product) { p.CostPrice = 12000; p.MinMargin = 0.10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestOfferHistory_Queries(t *testing.T) {
	var h OfferHistory
	h.Add(Offer{Round: 0, Actor: ActorSeller, Price: 1000})
	h.Add(Offer{Round: 1, Actor: ActorBuyer, Price: 600})
	h.Add(Offer{Round: 1, Actor: ActorSeller, Price: 980})
	h.Add(Offer{Round: 2, Actor: ActorBuyer, Price: 700})

	if o := h.LastBuyerOffer(); o == nil || o.Price != 700 {
		t.Errorf("LastBuyerOffer = %+v, want price 700", o)
	}
	if o := h.LastSellerOffer(); o == nil || o.Price != 980 {
		t.Errorf("LastSellerOffer = %+v, want price 980", o)
	}
	if got := len(h.BuyerOffers()); got != 2 {
		t.Errorf("len(BuyerOffers) = %d, want 2", got)
	}
	if got := len(h.SellerOffers()); got != 2 {
		t.Errorf("len(SellerOffers) = %d, want 2", got)
	}
	if got := h.Recent(2); len(got) != 2 || got[0].Price != 980 {
		t.Errorf("Recent(2) = %+v, want last two offers", got)
	}
	if got := h.Recent(10); len(got) != 4 {
		t.Errorf("Recent(10) = %d offers, want all 4", len(got))
	}

	var empty OfferHistory
	if empty.LastBuyerOffer() != nil || empty.LastSellerOffer() != nil {
		t.Error("empty history returned an offer")
	}
}

func TestState_Terminal(t *testing.T) {
	terminal := []State{StateAgreed, StateBroken, StateTimedOut}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	live := []State{StateIdle, StateProposing, StateResponding}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestPromotion_AppliesTo(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	promo := Promotion{
		ID:            "promo-iphone-summer",
		ProductID:     "iphone-15",
		DiscountType:  "percentage",
		DiscountValue: 5,
		Active:        true,
		ValidFrom:     now.AddDate(0, -1, 0),
		ValidUntil:    now.AddDate(0, 1, 0),
	}

	if !promo.AppliesTo("iphone-15", 70000, now) {
		t.Error("active in-window promotion rejected")
	}
	if promo.AppliesTo("nike-air-max", 70000, now) {
		t.Error("promotion applied to the wrong product")
	}
	if promo.AppliesTo("iphone-15", 70000, now.AddDate(0, 3, 0)) {
		t.Error("expired promotion applied")
	}

	inactive := promo
	inactive.Active = false
	if inactive.AppliesTo("iphone-15", 70000, now) {
		t.Error("inactive promotion applied")
	}

	storeWide := promo
	storeWide.ProductID = PromoAllProducts
	if !storeWide.AppliesTo("nike-air-max", 70000, now) {
		t.Error("store-wide promotion rejected")
	}

	gated := promo
	gated.MinPrice = 75000
	if gated.AppliesTo("iphone-15", 70000, now) {
		t.Error("promotion applied below its minimum price")
	}
}

func TestPromotion_Amount(t *testing.T) {
	pct := Promotion{DiscountType: "percentage", DiscountValue: 5}
	if got := pct.Amount(3000); got != 150 {
		t.Errorf("percentage Amount = %v, want 150", got)
	}
	flat := Promotion{DiscountType: "flat", DiscountValue: 100}
	if got := flat.Amount(3000); got != 100 {
		t.Errorf("flat Amount = %v, want 100", got)
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{834.5678, 834.57},
		{834.5612, 834.56},
		{100, 100},
		{0.005, 0.01},
		{-1.005, -1.0},
	}
	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
