package quote

import (
	"testing"
	"time"
)

func TestBuildAndVerify(t *testing.T) {
	b := NewBuilder([]byte("test-signing-key"))
	q, err := b.Build("0123456789abcdef0123456789abcdef", "nike-air-max", 11500, 60*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	if q.QuoteID == "" || len(q.Signature) != 64 {
		t.Fatalf("quote = %+v", q)
	}
	if q.Currency != "INR" || q.Price != 11500 {
		t.Fatalf("quote fields: %+v", q)
	}
	if q.TTL != "PT1M" {
		t.Errorf("ttl = %q, want PT1M", q.TTL)
	}
	if !q.ExpiresAt.Equal(q.IssuedAt.Add(60 * time.Second)) {
		t.Errorf("expiry window: issued %v, expires %v", q.IssuedAt, q.ExpiresAt)
	}

	if !b.Verify(q, q.IssuedAt.Add(30*time.Second)) {
		t.Error("fresh quote failed verification")
	}
}

func TestExpiredQuoteFailsVerification(t *testing.T) {
	b := NewBuilder([]byte("test-signing-key"))
	q, err := b.Build("0123456789abcdef0123456789abcdef", "nike-air-max", 11500, 60*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if b.Verify(q, q.ExpiresAt.Add(time.Second)) {
		t.Error("expired quote verified")
	}
}

func TestTamperedQuoteFailsVerification(t *testing.T) {
	b := NewBuilder([]byte("test-signing-key"))
	q, err := b.Build("0123456789abcdef0123456789abcdef", "nike-air-max", 11500, 60*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	tampered := q
	tampered.Price = 100
	if b.Verify(tampered, q.IssuedAt) {
		t.Error("price-tampered quote verified")
	}

	otherKey := NewBuilder([]byte("different-key"))
	if otherKey.Verify(q, q.IssuedAt) {
		t.Error("quote verified under a different key")
	}
}

func TestQuoteIDsAreUnique(t *testing.T) {
	b := NewBuilder([]byte("k"))
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		q, err := b.Build("0123456789abcdef0123456789abcdef", "p", 100, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if seen[q.QuoteID] {
			t.Fatalf("duplicate quote id %s", q.QuoteID)
		}
		seen[q.QuoteID] = true
		if len(q.QuoteID) != 26 {
			t.Fatalf("unexpected ulid shape: %s", q.QuoteID)
		}
	}
}

func TestISODuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{300, "PT5M"},
		{3600, "PT1H"},
		{90, "PT1M30S"},
		{0, "PT0S"},
		{3725, "PT1H2M5S"},
	}
	for _, tt := range tests {
		if got := ISODuration(tt.seconds); got != tt.want {
			t.Errorf("ISODuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
