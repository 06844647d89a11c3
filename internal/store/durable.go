package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/molbhav/molbhav/internal/nego"
)

// Durable is the Postgres-backed tier: the product catalog, the
// promotions catalog, the append-only offer events, and the one-shot
// session summaries.
type Durable struct {
	pool *pgxpool.Pool
}

// NewDurable wraps a connection pool.
func NewDurable(pool *pgxpool.Pool) *Durable {
	return &Durable{pool: pool}
}

// GetProduct fetches one catalog entry, or (nil, nil) when absent.
func (d *Durable) GetProduct(ctx context.Context, id string) (*nego.Product, error) {
	var p nego.Product
	var metadata []byte
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, category, anchor_price, cost_price, min_margin, target_margin, metadata
		FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.AnchorPrice, &p.CostPrice,
		&p.MinMargin, &p.TargetMargin, &metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch product %s: %w", id, err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode product %s metadata: %w", id, err)
		}
	}
	return &p, nil
}

// UpsertProduct writes a catalog entry.
func (d *Durable) UpsertProduct(ctx context.Context, p *nego.Product) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("encode product %s metadata: %w", p.ID, err)
	}
	_, err = d.pool.Exec(ctx, `
		INSERT INTO products (id, name, category, anchor_price, cost_price, min_margin, target_margin, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, category = EXCLUDED.category,
			anchor_price = EXCLUDED.anchor_price, cost_price = EXCLUDED.cost_price,
			min_margin = EXCLUDED.min_margin, target_margin = EXCLUDED.target_margin,
			metadata = EXCLUDED.metadata
	`, p.ID, p.Name, p.Category, p.AnchorPrice, p.CostPrice, p.MinMargin, p.TargetMargin, metadata)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}

// ListProducts pages through the catalog.
func (d *Durable) ListProducts(ctx context.Context, limit, offset int) ([]nego.Product, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, name, category, anchor_price, cost_price, min_margin, target_margin, metadata
		FROM products ORDER BY id LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []nego.Product
	for rows.Next() {
		var p nego.Product
		var metadata []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.AnchorPrice, &p.CostPrice,
			&p.MinMargin, &p.TargetMargin, &metadata); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
				return nil, fmt.Errorf("decode product %s metadata: %w", p.ID, err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// OfferEvent is one immutable row in the audit log.
type OfferEvent struct {
	SessionID string
	Round     int
	Actor     nego.Actor
	Price     int64
	BuyerRef  string
	Message   string
	Tactic    string
	BotScore  float64
	State     nego.State
	Timestamp time.Time
}

// AppendOfferEvent writes one event. Idempotent on (session_id, round,
// actor): a retried round does not duplicate rows.
func (d *Durable) AppendOfferEvent(ctx context.Context, ev OfferEvent) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO offer_events (session_id, round, actor, price, buyer_ref, message, tactic, bot_score, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, round, actor) DO NOTHING
	`, ev.SessionID, ev.Round, ev.Actor, ev.Price, ev.BuyerRef, ev.Message,
		ev.Tactic, ev.BotScore, ev.State, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("append offer event %s/%d: %w", ev.SessionID, ev.Round, err)
	}
	return nil
}

// SessionEvents returns a session's audit trail in round order.
func (d *Durable) SessionEvents(ctx context.Context, sessionID string) ([]OfferEvent, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT session_id, round, actor, price, buyer_ref, message, tactic, bot_score, state, created_at
		FROM offer_events WHERE session_id = $1 ORDER BY round, created_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch events %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []OfferEvent
	for rows.Next() {
		var ev OfferEvent
		if err := rows.Scan(&ev.SessionID, &ev.Round, &ev.Actor, &ev.Price, &ev.BuyerRef,
			&ev.Message, &ev.Tactic, &ev.BotScore, &ev.State, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// WriteSummary records the final session document. Written once on the
// first terminal transition; later writes are no-ops.
func (d *Durable) WriteSummary(ctx context.Context, s *nego.Session) error {
	snapshot, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode summary %s: %w", s.SessionID, err)
	}
	_, err = d.pool.Exec(ctx, `
		INSERT INTO session_summaries (session_id, product_id, buyer_ref, state, rounds, agreed_price, bot_score, degraded, snapshot, created_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id) DO NOTHING
	`, s.SessionID, s.ProductID, s.BuyerRef, s.State, s.Round, s.AgreedPrice,
		s.BotScore, s.Degraded, snapshot, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("write summary %s: %w", s.SessionID, err)
	}
	return nil
}

// GetSummary loads a terminal session back from its summary snapshot, or
// (nil, nil) when absent.
func (d *Durable) GetSummary(ctx context.Context, sessionID string) (*nego.Session, error) {
	var snapshot []byte
	err := d.pool.QueryRow(ctx,
		`SELECT snapshot FROM session_summaries WHERE session_id = $1`, sessionID,
	).Scan(&snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch summary %s: %w", sessionID, err)
	}
	var s nego.Session
	if err := json.Unmarshal(snapshot, &s); err != nil {
		return nil, fmt.Errorf("decode summary %s: %w", sessionID, err)
	}
	return &s, nil
}

// ActivePromotions returns the live promotions matching a product, best
// priority first.
func (d *Durable) ActivePromotions(ctx context.Context, productID, category string, now time.Time) ([]nego.Promotion, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, product_id, category, discount_type, discount_value, min_price, min_round, priority, active, valid_from, valid_until, description
		FROM promotions
		WHERE active
		  AND (product_id = $1 OR product_id = '__all__' OR (category <> '' AND category = $2))
		  AND valid_from <= $3 AND valid_until >= $3
		ORDER BY priority, id
	`, productID, category, now)
	if err != nil {
		return nil, fmt.Errorf("fetch promotions for %s: %w", productID, err)
	}
	defer rows.Close()

	var out []nego.Promotion
	for rows.Next() {
		var p nego.Promotion
		if err := rows.Scan(&p.ID, &p.ProductID, &p.Category, &p.DiscountType, &p.DiscountValue,
			&p.MinPrice, &p.MinRound, &p.Priority, &p.Active, &p.ValidFrom, &p.ValidUntil, &p.Description); err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertPromotion writes a promotions catalog entry.
func (d *Durable) UpsertPromotion(ctx context.Context, p *nego.Promotion) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO promotions (id, product_id, category, discount_type, discount_value, min_price, min_round, priority, active, valid_from, valid_until, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id, category = EXCLUDED.category,
			discount_type = EXCLUDED.discount_type, discount_value = EXCLUDED.discount_value,
			min_price = EXCLUDED.min_price, min_round = EXCLUDED.min_round,
			priority = EXCLUDED.priority, active = EXCLUDED.active,
			valid_from = EXCLUDED.valid_from, valid_until = EXCLUDED.valid_until,
			description = EXCLUDED.description
	`, p.ID, p.ProductID, p.Category, p.DiscountType, p.DiscountValue, p.MinPrice,
		p.MinRound, p.Priority, p.Active, p.ValidFrom, p.ValidUntil, p.Description)
	if err != nil {
		return fmt.Errorf("upsert promotion %s: %w", p.ID, err)
	}
	return nil
}
