// Package store implements the two-tier session persistence: a Redis hot
// tier owning TTLs, per-session locks, and cooldowns, and a Postgres
// durable tier owning the catalog, the append-only offer events, and the
// terminal session summaries.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/molbhav/molbhav/internal/nego"
)

// Hot-tier key prefixes.
const (
	sessionKeyPrefix  = "session:"
	lockKeyPrefix     = "lock:session:"
	cooldownKeyPrefix = "cooldown:session:"
	startRateKeyFmt   = "start_rate:%s"
)

// Hot is the Redis-backed tier for active play.
type Hot struct {
	rdb *redis.Client
}

// ConnectRedis creates a Redis client from a URL and verifies the
// connection.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewHot wraps a Redis client.
func NewHot(rdb *redis.Client) *Hot {
	return &Hot{rdb: rdb}
}

// SaveSession writes the serialised snapshot under the session TTL.
// Every accepted offer refreshes the TTL.
func (h *Hot) SaveSession(ctx context.Context, s *nego.Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.SessionID, err)
	}
	if err := h.rdb.Set(ctx, sessionKeyPrefix+s.SessionID, data, ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", s.SessionID, err)
	}
	return nil
}

// LoadSession returns the snapshot, or (nil, nil) when the key is absent
// or expired.
func (h *Hot) LoadSession(ctx context.Context, sessionID string) (*nego.Session, error) {
	raw, err := h.rdb.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	var s nego.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &s, nil
}

// DeleteSession drops the hot entry.
func (h *Hot) DeleteSession(ctx context.Context, sessionID string) error {
	if err := h.rdb.Del(ctx, sessionKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// releaseScript deletes the lock only if the caller still holds it, so a
// writer whose lease expired cannot free a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// AcquireLock takes the per-session mutex with a lease. Returns the
// fencing token on success, or ok=false when another writer holds it.
func (h *Hot) AcquireLock(ctx context.Context, sessionID string, lease time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = h.rdb.SetNX(ctx, lockKeyPrefix+sessionID, token, lease).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", sessionID, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock frees the mutex if and only if the token matches.
func (h *Hot) ReleaseLock(ctx context.Context, sessionID, token string) error {
	if err := releaseScript.Run(ctx, h.rdb, []string{lockKeyPrefix + sessionID}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", sessionID, err)
	}
	return nil
}

// InCooldown reports whether the session is still inside the minimum
// response delay.
func (h *Hot) InCooldown(ctx context.Context, sessionID string) (bool, error) {
	n, err := h.rdb.Exists(ctx, cooldownKeyPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("check cooldown %s: %w", sessionID, err)
	}
	return n > 0, nil
}

// SetCooldown arms the cooldown key for the configured delay.
func (h *Hot) SetCooldown(ctx context.Context, sessionID string, delay time.Duration) error {
	if err := h.rdb.Set(ctx, cooldownKeyPrefix+sessionID, "1", delay).Err(); err != nil {
		return fmt.Errorf("set cooldown %s: %w", sessionID, err)
	}
	return nil
}

// IncrStartRate bumps the per-IP start counter, arming a 60s window on
// first use, and returns the count inside the window.
func (h *Hot) IncrStartRate(ctx context.Context, ip string) (int64, error) {
	key := fmt.Sprintf(startRateKeyFmt, ip)
	count, err := h.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr start rate %s: %w", ip, err)
	}
	if count == 1 {
		if err := h.rdb.Expire(ctx, key, time.Minute).Err(); err != nil {
			return count, fmt.Errorf("expire start rate %s: %w", ip, err)
		}
	}
	return count, nil
}
