package store

import (
	"testing"
	"time"

	"bargain-engine/internal/engine"
)

func TestSelectBestPromotion_PicksLargestDiscount(t *testing.T) {
	promos := []engine.Promotion{
		{ID: "flat-100", DiscountType: "flat", DiscountValue: 100},
		{ID: "pct-5", DiscountType: "percentage", DiscountValue: 5},
	}

	// 5% of 3000 = 150 beats the flat 100.
	best, amount := selectBestPromotion(promos, 3000)
	if best == nil || best.ID != "pct-5" {
		t.Fatalf("best = %+v, want pct-5", best)
	}
	if amount != 150 {
		t.Errorf("amount = %v, want 150", amount)
	}

	// 5% of 1000 = 50 loses to the flat 100.
	best, amount = selectBestPromotion(promos, 1000)
	if best == nil || best.ID != "flat-100" {
		t.Fatalf("best = %+v, want flat-100", best)
	}
	if amount != 100 {
		t.Errorf("amount = %v, want 100", amount)
	}
}

func TestSelectBestPromotion_MinPriceGate(t *testing.T) {
	promos := []engine.Promotion{
		{ID: "big-spender", DiscountType: "flat", DiscountValue: 500, MinPrice: 5000},
		{ID: "always", DiscountType: "flat", DiscountValue: 50},
	}

	best, amount := selectBestPromotion(promos, 1200)
	if best == nil || best.ID != "always" {
		t.Fatalf("best below min price = %+v, want always", best)
	}
	if amount != 50 {
		t.Errorf("amount = %v, want 50", amount)
	}

	best, _ = selectBestPromotion(promos, 6000)
	if best == nil || best.ID != "big-spender" {
		t.Fatalf("best above min price = %+v, want big-spender", best)
	}
}

func TestSelectBestPromotion_NoneApplicable(t *testing.T) {
	best, amount := selectBestPromotion(nil, 1000)
	if best != nil || amount != 0 {
		t.Errorf("empty promos: got %+v / %v, want nil / 0", best, amount)
	}

	promos := []engine.Promotion{
		{ID: "gated", DiscountType: "flat", DiscountValue: 200, MinPrice: 9999},
	}
	best, amount = selectBestPromotion(promos, 1000)
	if best != nil || amount != 0 {
		t.Errorf("all gated: got %+v / %v, want nil / 0", best, amount)
	}
}

func TestProductCache_HitAndMiss(t *testing.T) {
	pc := newProductCache()

	if _, ok := pc.get("missing"); ok {
		t.Fatal("empty cache reported a hit")
	}

	pc.put(&engine.Product{ID: "iphone-15", Name: "iPhone 15"})
	got, ok := pc.get("iphone-15")
	if !ok {
		t.Fatal("cached product not returned")
	}
	if got.Name != "iPhone 15" {
		t.Errorf("Name = %q, want iPhone 15", got.Name)
	}
}

func TestProductCache_ExpiredEntryIsMiss(t *testing.T) {
	pc := newProductCache()
	pc.entries["stale"] = productCacheEntry{
		product: &engine.Product{ID: "stale"},
		expires: time.Now().Add(-time.Minute),
	}
	if _, ok := pc.get("stale"); ok {
		t.Error("expired entry served as a hit")
	}
}
