package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bargain-engine/internal/config"
	"bargain-engine/internal/engine"
	"bargain-engine/internal/logger"
	"bargain-engine/internal/store"
)

// Demo catalogue. Inserts are upserts, so re-running the tool is safe.
func demoProducts(now time.Time) []engine.Product {
	return []engine.Product{
		{
			ID:           "iphone-15",
			Name:         "iPhone 15 (128 GB)",
			Category:     "electronics",
			AnchorPrice:  79900,
			CostPrice:    65000,
			MinMargin:    0.05,
			TargetMargin: 0.15,
			Metadata:     map[string]any{"brand": "Apple", "color": "Black"},
			CreatedAt:    now,
		},
		{
			ID:           "nike-air-max",
			Name:         "Nike Air Max 270",
			Category:     "footwear",
			AnchorPrice:  12995,
			CostPrice:    7000,
			MinMargin:    0.10,
			TargetMargin: 0.30,
			Metadata:     map[string]any{"brand": "Nike", "size": "UK 9"},
			CreatedAt:    now,
		},
		{
			ID:           "samsung-tv-55",
			Name:         `Samsung Crystal 4K 55" Smart TV`,
			Category:     "electronics",
			AnchorPrice:  54990,
			CostPrice:    38000,
			MinMargin:    0.08,
			TargetMargin: 0.20,
			Metadata:     map[string]any{"brand": "Samsung", "display": "4K UHD"},
			CreatedAt:    now,
		},
		{
			ID:           "levis-501",
			Name:         "Levi's 501 Original Jeans",
			Category:     "clothing",
			AnchorPrice:  4999,
			CostPrice:    2200,
			MinMargin:    0.12,
			TargetMargin: 0.35,
			Metadata:     map[string]any{"brand": "Levi's", "fit": "Regular"},
			CreatedAt:    now,
		},
		{
			ID:           "boat-airdopes",
			Name:         "boAt Airdopes 141 TWS Earbuds",
			Category:     "electronics",
			AnchorPrice:  1299,
			CostPrice:    450,
			MinMargin:    0.15,
			TargetMargin: 0.40,
			Metadata:     map[string]any{"brand": "boAt", "type": "TWS"},
			CreatedAt:    now,
		},
	}
}

func demoPromotions() []engine.Promotion {
	validFrom := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	validUntil := time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)
	return []engine.Promotion{
		{
			ID:            "promo-iphone-summer",
			ProductID:     "iphone-15",
			DiscountType:  "percentage",
			DiscountValue: 5,
			Active:        true,
			ValidFrom:     validFrom,
			ValidUntil:    validUntil,
			Description:   "Summer sale — extra 5% off",
		},
		{
			ID:            "promo-boat-launch",
			ProductID:     "boat-airdopes",
			DiscountType:  "percentage",
			DiscountValue: 10,
			Active:        true,
			ValidFrom:     validFrom,
			ValidUntil:    validUntil,
			Description:   "Launch offer — 10% off",
		},
	}
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records, err := store.ConnectRecords(ctx, cfg.MongoDBURL, cfg.MongoDBName, 3, log.Named("records"))
	if err != nil {
		log.Fatal("record store connect failed", zap.Error(err))
	}
	defer records.Close(ctx)

	if err := records.EnsureIndexes(ctx); err != nil {
		log.Fatal("index creation failed", zap.Error(err))
	}

	products := demoProducts(time.Now().UTC())
	promotions := demoPromotions()

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range products {
		g.Go(func() error {
			if err := p.Validate(); err != nil {
				return err
			}
			return records.UpsertProduct(gctx, &p)
		})
	}
	for _, promo := range promotions {
		g.Go(func() error {
			return records.UpsertPromotion(gctx, &promo)
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}

	log.Info("seed complete",
		zap.Int("products", len(products)),
		zap.Int("promotions", len(promotions)))
}
