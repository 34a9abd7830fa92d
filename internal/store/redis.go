package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bargain-engine/internal/engine"
)

const (
	sessionKeyPrefix  = "nego:session:"
	lockKeyPrefix     = "nego:lock:"
	cooldownKeyPrefix = "nego:cooldown:"
	rateKeyPrefix     = "nego:ratelimit:"

	// lockTTL bounds how long a crashed holder can block a session.
	lockTTL = 5 * time.Second
	// rateWindow is the fixed IP rate-limit window.
	rateWindow = time.Minute
)

// Cache is the Redis layer: hot session snapshots with TTL, per-session
// turn locks and cooldowns, and the per-IP rate limit. Session reads
// degrade to a miss on Redis faults so the record store can take over.
type Cache struct {
	rdb *redis.Client
	log *zap.Logger
}

// ConnectCache dials Redis with exponential-backoff retries.
func ConnectCache(ctx context.Context, url string, maxRetries int, log *zap.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	for attempt := 1; ; attempt++ {
		err = rdb.Ping(ctx).Err()
		if err == nil {
			log.Info("redis connected", zap.Int("attempt", attempt))
			return &Cache{rdb: rdb, log: log}, nil
		}
		if attempt >= maxRetries {
			break
		}
		log.Warn("redis connection failed, retrying",
			zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries), zap.Error(err))
		select {
		case <-ctx.Done():
			rdb.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(1<<attempt) * time.Second):
		}
	}
	rdb.Close()
	return nil, fmt.Errorf("connect redis after %d attempts: %w", maxRetries, err)
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}

// StoreSession writes the session snapshot under its TTL.
func (c *Cache) StoreSession(ctx context.Context, s *engine.Session, ttl time.Duration) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := c.rdb.Set(ctx, sessionKeyPrefix+s.SessionID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// LoadSession returns the cached session, or nil on a miss. Redis faults
// and corrupt payloads are logged and reported as misses, never as errors:
// the caller falls back to the record store.
func (c *Cache) LoadSession(ctx context.Context, sessionID string) *engine.Session {
	raw, err := c.rdb.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		c.log.Warn("redis session load failed, treating as miss",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	var s engine.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		c.log.Warn("cached session undecodable, treating as miss",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	return &s
}

// AcquireLock takes the per-session turn lock. Returns false when another
// turn holds it. The TTL guarantees release even if the holder dies.
func (c *Cache) AcquireLock(ctx context.Context, sessionID string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKeyPrefix+sessionID, "1", lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire session lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock frees the per-session turn lock.
func (c *Cache) ReleaseLock(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, lockKeyPrefix+sessionID).Err()
}

// InCooldown reports whether the session is still inside its minimum
// response delay.
func (c *Cache) InCooldown(ctx context.Context, sessionID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, cooldownKeyPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("check cooldown: %w", err)
	}
	return n > 0, nil
}

// SetCooldown starts the minimum response delay for the session.
func (c *Cache) SetCooldown(ctx context.Context, sessionID string, d time.Duration) error {
	return c.rdb.Set(ctx, cooldownKeyPrefix+sessionID, "1", d).Err()
}

// AllowIP counts a request against the per-IP fixed window and reports
// whether it is still under the limit.
func (c *Cache) AllowIP(ctx context.Context, ip string, limit int) (bool, error) {
	key := rateKeyPrefix + ip
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if n == 1 {
		// First hit opens the window.
		if err := c.rdb.Expire(ctx, key, rateWindow).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return n <= int64(limit), nil
}
