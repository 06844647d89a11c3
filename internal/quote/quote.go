// Package quote issues signed, TTL-bound quotes when a negotiation
// reaches agreement. An expired quote is not redeemable; the buyer
// re-negotiates in a fresh session.
package quote

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Quote is the terminal artefact of an agreed session.
type Quote struct {
	QuoteID   string    `json:"quote_id"`
	SessionID string    `json:"session_id"`
	ProductID string    `json:"product_id"`
	Price     int64     `json:"price"`
	Currency  string    `json:"currency"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	TTL       string    `json:"ttl"` // ISO 8601 duration, e.g. PT1M
	Signature string    `json:"signature"`
}

// Builder signs quotes with a server-side key.
type Builder struct {
	key []byte
	now func() time.Time
}

// NewBuilder creates a quote builder. The key must stay server-side.
func NewBuilder(key []byte) *Builder {
	return &Builder{key: key, now: time.Now}
}

// Build issues a quote for an agreed price, valid for ttl.
func (b *Builder) Build(sessionID, productID string, price int64, ttl time.Duration) (Quote, error) {
	issued := b.now().UTC()
	id, err := ulid.New(ulid.Timestamp(issued), rand.Reader)
	if err != nil {
		return Quote{}, fmt.Errorf("generate quote id: %w", err)
	}
	q := Quote{
		QuoteID:   id.String(),
		SessionID: sessionID,
		ProductID: productID,
		Price:     price,
		Currency:  "INR",
		IssuedAt:  issued,
		ExpiresAt: issued.Add(ttl),
		TTL:       ISODuration(int(ttl.Seconds())),
	}
	sig, err := b.sign(q)
	if err != nil {
		return Quote{}, err
	}
	q.Signature = sig
	return q, nil
}

// Verify checks the signature and the expiry against now.
func (b *Builder) Verify(q Quote, now time.Time) bool {
	sig, err := b.sign(q)
	if err != nil {
		return false
	}
	if !hmac.Equal([]byte(sig), []byte(q.Signature)) {
		return false
	}
	return !now.After(q.ExpiresAt)
}

// sign computes the HMAC over the canonical JSON payload. Map keys give
// a deterministic field order.
func (b *Builder) sign(q Quote) (string, error) {
	payload := map[string]any{
		"quote_id":   q.QuoteID,
		"session_id": q.SessionID,
		"product_id": q.ProductID,
		"price":      q.Price,
		"currency":   q.Currency,
		"issued_at":  q.IssuedAt.Format(time.RFC3339Nano),
		"expires_at": q.ExpiresAt.Format(time.RFC3339Nano),
	}
	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalise quote %s: %w", q.QuoteID, err)
	}
	mac := hmac.New(sha256.New, b.key)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// ISODuration renders seconds as an ISO 8601 duration: 300 -> PT5M,
// 3600 -> PT1H, 90 -> PT1M30S.
func ISODuration(seconds int) string {
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
	if out == "PT" {
		out += "0S"
	}
	return out
}
