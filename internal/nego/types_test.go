package nego

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSessionSerialization(t *testing.T) {
	agreed := int64(11500)
	s := Session{
		SessionID:    "0123456789abcdef0123456789abcdef",
		SessionToken: "tok",
		ProductID:    "nike-air-max",
		Language:     "hi",
		AnchorPrice:  12999,
		FloorPrice:   9450,
		CurrentPrice: 11500,
		Round:        4,
		MaxRounds:    15,
		State:        StateAgreed,
		Beta:         5.0,
		Alpha:        0.6,
		Offers: []Offer{
			{Actor: ActorSeller, Price: 12999, Round: 0, Tactic: TacticOpeningAnchor, Timestamp: time.Now().UTC()},
			{Actor: ActorBuyer, Price: 11500, Round: 1, Timestamp: time.Now().UTC(), Features: OfferFeatures{IntervalMS: 4200}},
		},
		AgreedPrice:     &agreed,
		TTLSeconds:      300,
		QuoteTTLSeconds: 60,
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var decoded Session
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if decoded.SessionID != s.SessionID {
		t.Errorf("session_id mismatch: %s", decoded.SessionID)
	}
	if decoded.State != StateAgreed {
		t.Errorf("state: want agreed, got %s", decoded.State)
	}
	if len(decoded.Offers) != 2 {
		t.Errorf("offers count: want 2, got %d", len(decoded.Offers))
	}
	if decoded.AgreedPrice == nil || *decoded.AgreedPrice != 11500 {
		t.Errorf("agreed_price mismatch: %v", decoded.AgreedPrice)
	}
	if decoded.Offers[1].Features.IntervalMS != 4200 {
		t.Errorf("offer features lost: %+v", decoded.Offers[1].Features)
	}
}

func TestTerminalStates(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StateIdle, false},
		{StateProposing, false},
		{StateResponding, false},
		{StateAgreed, true},
		{StateBroken, true},
		{StateTimedOut, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestOfferLogQueries(t *testing.T) {
	s := Session{}
	s.AppendOffer(Offer{Actor: ActorSeller, Price: 100, Round: 0})
	s.AppendOffer(Offer{Actor: ActorBuyer, Price: 60, Round: 1})
	s.AppendOffer(Offer{Actor: ActorSeller, Price: 95, Round: 1})
	s.AppendOffer(Offer{Actor: ActorBuyer, Price: 70, Round: 2})

	if got := len(s.BuyerOffers()); got != 2 {
		t.Errorf("buyer offers: want 2, got %d", got)
	}
	if o := s.LastBuyerOffer(); o == nil || o.Price != 70 {
		t.Errorf("last buyer offer: %+v", o)
	}
	if o := s.LastSellerOffer(); o == nil || o.Price != 95 {
		t.Errorf("last seller offer: %+v", o)
	}
}

func TestIdentifierPatterns(t *testing.T) {
	tests := []struct {
		id      string
		session bool
		product bool
	}{
		{"0123456789abcdef0123456789abcdef", true, true},
		{"0123456789ABCDEF0123456789ABCDEF", false, true},
		{"short", false, true},
		{"nike-air-max", false, true},
		{"has space", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		if got := ValidSessionID(tt.id); got != tt.session {
			t.Errorf("ValidSessionID(%q) = %v, want %v", tt.id, got, tt.session)
		}
		if got := ValidProductID(tt.id); got != tt.product {
			t.Errorf("ValidProductID(%q) = %v, want %v", tt.id, got, tt.product)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	err := Wrap(KindBusy, "session locked", E(KindInternal, "boom"))
	if KindOf(err) != KindBusy {
		t.Errorf("KindOf = %s, want busy", KindOf(err))
	}
	if !IsKind(err, KindBusy) {
		t.Error("IsKind(busy) = false")
	}
	if IsKind(nil, KindBusy) {
		t.Error("nil error matched busy")
	}
}
