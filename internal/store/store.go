package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/molbhav/molbhav/internal/nego"
)

// Timeouts for the two tiers. Every outbound call carries a deadline.
const (
	HotTimeout     = 150 * time.Millisecond
	DurableTimeout = 500 * time.Millisecond

	durableRetries = 3
	retryBaseDelay = 50 * time.Millisecond
)

// Store is the two-tier session store. The hot tier is the source of
// truth for active play; the durable tier is the audit trail.
type Store struct {
	hot     *Hot
	durable *Durable
	log     *zap.Logger
}

// New builds the two-tier store.
func New(hot *Hot, durable *Durable, log *zap.Logger) *Store {
	return &Store{hot: hot, durable: durable, log: log}
}

// Hot exposes the hot tier for lock/cooldown/rate operations.
func (st *Store) Hot() *Hot { return st.hot }

// Durable exposes the durable tier for catalog and audit reads.
func (st *Store) Durable() *Durable { return st.durable }

// LoadSession reads the hot snapshot, falling back to the durable
// summary for terminal sessions whose hot entry already expired.
func (st *Store) LoadSession(ctx context.Context, sessionID string) (*nego.Session, error) {
	hctx, cancel := context.WithTimeout(ctx, HotTimeout)
	defer cancel()
	s, err := st.hot.LoadSession(hctx, sessionID)
	if err != nil {
		return nil, nego.Wrap(nego.KindDegraded, "hot tier unavailable", err)
	}
	if s != nil {
		return s, nil
	}

	dctx, cancel := context.WithTimeout(ctx, DurableTimeout)
	defer cancel()
	s, err = st.durable.GetSummary(dctx, sessionID)
	if err != nil {
		return nil, nego.Wrap(nego.KindDegraded, "durable tier unavailable", err)
	}
	return s, nil
}

// SaveSession writes the hot snapshot under its TTL. A failure here means
// the round cannot be committed: the caller must not advance state.
func (st *Store) SaveSession(ctx context.Context, s *nego.Session, ttl time.Duration) error {
	hctx, cancel := context.WithTimeout(ctx, HotTimeout)
	defer cancel()
	if err := st.hot.SaveSession(hctx, s, ttl); err != nil {
		return nego.Wrap(nego.KindDegraded, "hot tier write failed", err)
	}
	return nil
}

// PersistRound commits one round: hot snapshot first (source of truth),
// then the audit events and, on terminal state, the summary. Durable
// failures are retried with bounded backoff; exhaustion flags the
// session degraded but does not fail the round.
func (st *Store) PersistRound(ctx context.Context, s *nego.Session, ttl time.Duration, events ...OfferEvent) error {
	if err := st.SaveSession(ctx, s, ttl); err != nil {
		return err
	}

	audit := func(ctx context.Context) error {
		for _, ev := range events {
			if err := st.durable.AppendOfferEvent(ctx, ev); err != nil {
				return err
			}
		}
		if s.Terminal() {
			return st.durable.WriteSummary(ctx, s)
		}
		return nil
	}

	if err := st.retryDurable(ctx, audit); err != nil {
		st.log.Warn("durable persist exhausted retries, session degraded",
			zap.String("session_id", s.SessionID), zap.Error(err))
		s.Degraded = true
		// Re-save so the degraded flag survives; hot state stays serviceable.
		if err := st.SaveSession(ctx, s, ttl); err != nil {
			return err
		}
	}
	return nil
}

// AcquireLock takes the per-session lease through the hot tier.
func (st *Store) AcquireLock(ctx context.Context, sessionID string, lease time.Duration) (string, bool, error) {
	hctx, cancel := context.WithTimeout(ctx, HotTimeout)
	defer cancel()
	return st.hot.AcquireLock(hctx, sessionID, lease)
}

// ReleaseLock frees the lease if the fencing token still matches.
func (st *Store) ReleaseLock(ctx context.Context, sessionID, token string) error {
	hctx, cancel := context.WithTimeout(ctx, HotTimeout)
	defer cancel()
	return st.hot.ReleaseLock(hctx, sessionID, token)
}

// InCooldown reports whether the session is inside its response delay.
func (st *Store) InCooldown(ctx context.Context, sessionID string) (bool, error) {
	hctx, cancel := context.WithTimeout(ctx, HotTimeout)
	defer cancel()
	return st.hot.InCooldown(hctx, sessionID)
}

// SetCooldown arms the per-session response delay.
func (st *Store) SetCooldown(ctx context.Context, sessionID string, delay time.Duration) error {
	hctx, cancel := context.WithTimeout(ctx, HotTimeout)
	defer cancel()
	return st.hot.SetCooldown(hctx, sessionID, delay)
}

// IncrStartRate bumps the per-IP start counter.
func (st *Store) IncrStartRate(ctx context.Context, ip string) (int64, error) {
	hctx, cancel := context.WithTimeout(ctx, HotTimeout)
	defer cancel()
	return st.hot.IncrStartRate(hctx, ip)
}

// GetProduct reads a catalog entry from the durable tier.
func (st *Store) GetProduct(ctx context.Context, id string) (*nego.Product, error) {
	dctx, cancel := context.WithTimeout(ctx, DurableTimeout)
	defer cancel()
	return st.durable.GetProduct(dctx, id)
}

// ActivePromotions reads the live promotions from the durable tier.
func (st *Store) ActivePromotions(ctx context.Context, productID, category string, now time.Time) ([]nego.Promotion, error) {
	dctx, cancel := context.WithTimeout(ctx, DurableTimeout)
	defer cancel()
	return st.durable.ActivePromotions(dctx, productID, category, now)
}

func (st *Store) retryDurable(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < durableRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBaseDelay << (attempt - 1)):
			case <-ctx.Done():
				return fmt.Errorf("durable retry cancelled: %w", ctx.Err())
			}
		}
		dctx, cancel := context.WithTimeout(ctx, DurableTimeout)
		lastErr = fn(dctx)
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}
