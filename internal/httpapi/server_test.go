package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/molbhav/molbhav/internal/config"
	"github.com/molbhav/molbhav/internal/dialogue"
	"github.com/molbhav/molbhav/internal/nego"
	"github.com/molbhav/molbhav/internal/quote"
	"github.com/molbhav/molbhav/internal/service"
)

func testServer(env, adminKey string) *Server {
	cfg := &config.Config{
		Env:                env,
		APIAdminKey:        adminKey,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		DefaultBeta:        5.0,
		DefaultAlpha:       0.6,
		DefaultMaxRounds:   15,
		SessionTTLSecs:     300,
		QuoteTTLSecs:       60,
		ZOPAEpsilonPct:     0.01,
		MinResponseDelayMS: 2000,
		LockLeaseSecs:      5,
		StartRatePerMinute: 30,
	}
	// The input-validation paths under test never reach the stores.
	svc := service.New(nil, dialogue.TemplateOnly{}, quote.NewBuilder([]byte("k")), cfg, zap.NewNop())
	return New(svc, nil, cfg, zap.NewNop())
}

func TestHealth(t *testing.T) {
	s := testServer("development", "")
	resp, err := s.App().Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestMalformedSessionIDRejected(t *testing.T) {
	s := testServer("development", "")

	req := httptest.NewRequest("POST", "/negotiate/not-a-session-id/offer",
		strings.NewReader(`{"price": 100}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-Token", "tok")

	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestMalformedProductIDRejected(t *testing.T) {
	s := testServer("development", "")

	req := httptest.NewRequest("POST", "/negotiate/start",
		strings.NewReader(`{"product_id": "has spaces!"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAdminRequiresKeyInProduction(t *testing.T) {
	s := testServer("production", "")
	resp, err := s.App().Test(httptest.NewRequest("GET", "/admin/products", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAdminWrongKeyRejected(t *testing.T) {
	s := testServer("production", "secret-key")
	req := httptest.NewRequest("GET", "/admin/products", nil)
	req.Header.Set("X-API-Key", "not-the-key")
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind nego.Kind
		want int
	}{
		{nego.KindBadInput, 400},
		{nego.KindBadToken, 401},
		{nego.KindNoSession, 404},
		{nego.KindBusy, 409},
		{nego.KindSessionClosed, 410},
		{nego.KindValidationFailed, 422},
		{nego.KindCooldown, 429},
		{nego.KindRateLimited, 429},
		{nego.KindDialogueFailed, 502},
		{nego.KindDegraded, 503},
		{nego.KindInternal, 500},
	}
	for _, tt := range tests {
		if got := statusForKind(tt.kind); got != tt.want {
			t.Errorf("statusForKind(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}
