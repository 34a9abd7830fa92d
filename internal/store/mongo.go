package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"bargain-engine/internal/engine"
)

const (
	colSessions   = "sessions"
	colProducts   = "products"
	colPromotions = "promotions"
	colAuditLog   = "negotiation_logs"

	// productCacheTTL bounds staleness of the in-process product cache.
	// Products are immutable after creation, so this only matters for
	// instances that have not seen a newly created product yet.
	productCacheTTL = 5 * time.Minute
)

// Records is the MongoDB layer: durable sessions, the product catalogue,
// promotions and the per-turn audit log.
type Records struct {
	client   *mongo.Client
	db       *mongo.Database
	log      *zap.Logger
	products *productCache
}

// ConnectRecords dials MongoDB with exponential-backoff retries.
func ConnectRecords(ctx context.Context, url, dbName string, maxRetries int, log *zap.Logger) (*Records, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err = client.Ping(ctx, nil)
		if err == nil {
			log.Info("mongodb connected",
				zap.Int("attempt", attempt), zap.String("database", dbName))
			return &Records{
				client:   client,
				db:       client.Database(dbName),
				log:      log,
				products: newProductCache(),
			}, nil
		}
		if attempt >= maxRetries {
			break
		}
		log.Warn("mongodb ping failed, retrying",
			zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries), zap.Error(err))
		select {
		case <-ctx.Done():
			client.Disconnect(context.Background())
			return nil, ctx.Err()
		case <-time.After(time.Duration(1<<attempt) * time.Second):
		}
	}
	client.Disconnect(context.Background())
	return nil, fmt.Errorf("connect mongodb after %d attempts: %w", maxRetries, err)
}

// EnsureIndexes creates the indexes the hot paths depend on: TTL-based
// session expiry, audit lookup by session and round, promotion lookup.
func (r *Records) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(colSessions).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("sessions ttl index: %w", err)
	}

	_, err = r.db.Collection(colAuditLog).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "round", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("audit index: %w", err)
	}

	_, err = r.db.Collection(colPromotions).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "product_id", Value: 1},
			{Key: "active", Value: 1},
			{Key: "valid_from", Value: 1},
			{Key: "valid_until", Value: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("promotions index: %w", err)
	}
	return nil
}

func (r *Records) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

func (r *Records) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// --- Sessions ---

// UpsertSession writes the durable copy of a session, keyed by its id.
func (r *Records) UpsertSession(ctx context.Context, s *engine.Session) error {
	_, err := r.db.Collection(colSessions).ReplaceOne(ctx,
		bson.M{"_id": s.SessionID}, s, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", s.SessionID, err)
	}
	return nil
}

// GetSession loads a session, or nil when it does not exist.
func (r *Records) GetSession(ctx context.Context, sessionID string) (*engine.Session, error) {
	var s engine.Session
	err := r.db.Collection(colSessions).FindOne(ctx, bson.M{"_id": sessionID}).Decode(&s)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return &s, nil
}

// --- Products ---

// CreateProduct inserts a catalogue entry. A duplicate id is a conflict.
func (r *Records) CreateProduct(ctx context.Context, p *engine.Product) error {
	_, err := r.db.Collection(colProducts).InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return engine.ErrConflict.Wrapf("product %q already exists", p.ID)
	}
	if err != nil {
		return fmt.Errorf("create product %s: %w", p.ID, err)
	}
	r.products.put(p)
	return nil
}

// UpsertProduct writes a catalogue entry, keyed by its id. Used by the
// seed tool; the API path goes through CreateProduct so duplicates conflict.
func (r *Records) UpsertProduct(ctx context.Context, p *engine.Product) error {
	_, err := r.db.Collection(colProducts).ReplaceOne(ctx,
		bson.M{"_id": p.ID}, p, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	r.products.put(p)
	return nil
}

// GetProduct loads a product through the in-process cache. Products are
// read on every negotiation start, so hits skip Mongo entirely and
// concurrent misses for the same id are coalesced.
func (r *Records) GetProduct(ctx context.Context, productID string) (*engine.Product, error) {
	if p, ok := r.products.get(productID); ok {
		return p, nil
	}
	v, err, _ := r.products.group.Do(productID, func() (any, error) {
		var p engine.Product
		err := r.db.Collection(colProducts).FindOne(ctx, bson.M{"_id": productID}).Decode(&p)
		if err == mongo.ErrNoDocuments {
			return (*engine.Product)(nil), nil
		}
		if err != nil {
			return nil, fmt.Errorf("get product %s: %w", productID, err)
		}
		r.products.put(&p)
		return &p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*engine.Product), nil
}

// ListProducts pages through the catalogue in id order.
func (r *Records) ListProducts(ctx context.Context, skip, limit int64) ([]engine.Product, error) {
	cur, err := r.db.Collection(colProducts).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetSkip(skip).SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	var products []engine.Product
	if err := cur.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

// --- Promotions ---

// UpsertPromotion writes a promotion, keyed by its id.
func (r *Records) UpsertPromotion(ctx context.Context, p *engine.Promotion) error {
	_, err := r.db.Collection(colPromotions).ReplaceOne(ctx,
		bson.M{"_id": p.ID}, p, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert promotion %s: %w", p.ID, err)
	}
	return nil
}

// BestPromotion returns the highest-discount promotion applicable to the
// product at the given price, or nil when none applies.
func (r *Records) BestPromotion(ctx context.Context, productID string, price float64, now time.Time) (*engine.Promotion, float64, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"product_id": productID},
			bson.M{"product_id": engine.PromoAllProducts},
		},
		"active":      true,
		"valid_from":  bson.M{"$lte": now},
		"valid_until": bson.M{"$gte": now},
	}
	cur, err := r.db.Collection(colPromotions).Find(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("find promotions: %w", err)
	}
	var promos []engine.Promotion
	if err := cur.All(ctx, &promos); err != nil {
		return nil, 0, fmt.Errorf("decode promotions: %w", err)
	}
	best, amount := selectBestPromotion(promos, price)
	return best, amount, nil
}

// selectBestPromotion picks the applicable promotion with the largest
// absolute discount. Promotions whose minimum price exceeds the current
// price are skipped.
func selectBestPromotion(promos []engine.Promotion, price float64) (*engine.Promotion, float64) {
	var best *engine.Promotion
	var bestAmount float64
	for i := range promos {
		if price < promos[i].MinPrice {
			continue
		}
		amount := promos[i].Amount(price)
		if best == nil || amount > bestAmount {
			best = &promos[i]
			bestAmount = amount
		}
	}
	return best, bestAmount
}

// --- Audit log ---

// AppendAudit records one negotiation turn.
func (r *Records) AppendAudit(ctx context.Context, e *engine.AuditEntry) error {
	_, err := r.db.Collection(colAuditLog).InsertOne(ctx, e)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// ListAudit returns a page of the session's turn log in round order.
func (r *Records) ListAudit(ctx context.Context, sessionID string, skip, limit int64) ([]engine.AuditEntry, error) {
	cur, err := r.db.Collection(colAuditLog).Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "round", Value: 1}}).SetSkip(skip).SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	var entries []engine.AuditEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode audit: %w", err)
	}
	return entries, nil
}

// --- Product cache ---

// productCache is a TTL read-through cache in front of the products
// collection. Concurrent misses for the same id collapse into a single
// Mongo query.
type productCache struct {
	mu      sync.RWMutex
	entries map[string]productCacheEntry
	group   singleflight.Group
}

type productCacheEntry struct {
	product *engine.Product
	expires time.Time
}

func newProductCache() *productCache {
	return &productCache{entries: make(map[string]productCacheEntry)}
}

func (pc *productCache) get(id string) (*engine.Product, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	e, ok := pc.entries[id]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.product, true
}

func (pc *productCache) put(p *engine.Product) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.entries[p.ID] = productCacheEntry{
		product: p,
		expires: time.Now().Add(productCacheTTL),
	}
}
