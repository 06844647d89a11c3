package engine

import "testing"

func TestFloor(t *testing.T) {
	tests := []struct {
		cost   int64
		margin float64
		want   int64
	}{
		{9000, 0.05, 9450},
		{65000, 0.05, 68250},
		{7000, 0.10, 7700},
		{100, 0.333, 134}, // rounds up
		{1, 0.0, 1},
	}
	for _, tt := range tests {
		if got := Floor(tt.cost, tt.margin); got != tt.want {
			t.Errorf("Floor(%d, %v) = %d, want %d", tt.cost, tt.margin, got, tt.want)
		}
	}
}

func TestCurvePriceBoundaries(t *testing.T) {
	anchor, floor := int64(12999), int64(9450)

	if got := CurvePrice(anchor, floor, 0, 15, 5.0); got != anchor {
		t.Errorf("P(0) = %d, want anchor %d", got, anchor)
	}
	if got := CurvePrice(anchor, floor, 15, 15, 5.0); got != floor {
		t.Errorf("P(T) = %d, want floor %d", got, floor)
	}
	// Rounds past the deadline clamp to T.
	if got := CurvePrice(anchor, floor, 99, 15, 5.0); got != floor {
		t.Errorf("P(99) = %d, want floor %d", got, floor)
	}
	if got := CurvePrice(anchor, floor, 3, 0, 5.0); got != anchor {
		t.Errorf("P with T=0 = %d, want anchor %d", got, anchor)
	}
}

func TestCurveMonotonicity(t *testing.T) {
	anchor, floor := int64(12999), int64(9450)
	for _, beta := range []float64{0.5, 1.0, 5.0, 20.0} {
		prev := CurvePrice(anchor, floor, 0, 15, beta)
		for round := 1; round <= 15; round++ {
			cur := CurvePrice(anchor, floor, round, 15, beta)
			if cur > prev {
				t.Fatalf("beta=%v: P(%d)=%d > P(%d)=%d", beta, round, cur, round-1, prev)
			}
			if cur < floor || cur > anchor {
				t.Fatalf("beta=%v: P(%d)=%d outside [%d, %d]", beta, round, cur, floor, anchor)
			}
			prev = cur
		}
	}
}

func TestBoulwareHoldsFirmEarly(t *testing.T) {
	anchor, floor := int64(12999), int64(9450)
	boulware := CurvePrice(anchor, floor, 5, 15, 5.0)
	linear := CurvePrice(anchor, floor, 5, 15, 1.0)
	conceder := CurvePrice(anchor, floor, 5, 15, 0.5)
	if !(boulware > linear && linear > conceder) {
		t.Errorf("expected boulware %d > linear %d > conceder %d at mid-game",
			boulware, linear, conceder)
	}
}

func TestAdaptiveAlpha(t *testing.T) {
	tests := []struct {
		alpha  float64
		round  int
		max    int
		want   float64
		within float64
	}{
		{0.6, 0, 15, 0.6, 0.001},
		{0.6, 15, 15, 0.9, 0.001}, // 0.6 * 1.5
		{0.8, 15, 15, 1.0, 0.001}, // clamped
		{0.6, 5, 0, 0.6, 0.001},   // degenerate T
	}
	for _, tt := range tests {
		got := AdaptiveAlpha(tt.alpha, tt.round, tt.max)
		if got < tt.want-tt.within || got > tt.want+tt.within {
			t.Errorf("AdaptiveAlpha(%v, %d, %d) = %v, want %v", tt.alpha, tt.round, tt.max, got, tt.want)
		}
	}
}

func TestMirroredConcession(t *testing.T) {
	tests := []struct {
		alpha float64
		delta int64
		cap   int64
		want  int64
	}{
		{0.6, 100, 1000, 60},
		{0.6, 0, 1000, 0},    // buyer held
		{0.6, -200, 1000, 0}, // buyer moved backwards
		{0.6, 5000, 300, 300},
		{1.0, 77, 1000, 77},
	}
	for _, tt := range tests {
		if got := MirroredConcession(tt.alpha, tt.delta, tt.cap); got != tt.want {
			t.Errorf("MirroredConcession(%v, %d, %d) = %d, want %d", tt.alpha, tt.delta, tt.cap, got, tt.want)
		}
	}
}

func TestCandidateCounter(t *testing.T) {
	tests := []struct {
		current, curve, concession int64
		want                       int64
	}{
		// Curve higher than the mirrored price: curve wins.
		{12000, 11500, 1000, 11500},
		// Mirrored price higher: seller keeps the better price.
		{12000, 10000, 500, 11500},
		// Never above the previous seller price.
		{12000, 12999, 0, 12000},
	}
	for _, tt := range tests {
		if got := CandidateCounter(tt.current, tt.curve, tt.concession); got != tt.want {
			t.Errorf("CandidateCounter(%d, %d, %d) = %d, want %d",
				tt.current, tt.curve, tt.concession, got, tt.want)
		}
	}
}

func TestInZOPA(t *testing.T) {
	floor, eps := int64(9450), int64(130)
	tests := []struct {
		name      string
		buyer     int64
		candidate int64
		round     int
		want      bool
	}{
		{"below floor", 9000, 10000, 5, false},
		{"below floor final round", 9000, 10000, 14, false},
		{"within epsilon of candidate", 9880, 10000, 5, true},
		{"at candidate", 10000, 10000, 5, true},
		{"too far under candidate", 9500, 10000, 5, false},
		{"deadline branch", 9500, 12000, 14, true},
		{"deadline branch last round", 9500, 12000, 15, true},
	}
	for _, tt := range tests {
		if got := InZOPA(tt.buyer, floor, tt.candidate, eps, tt.round, 15); got != tt.want {
			t.Errorf("%s: InZOPA(%d, cand=%d, round=%d) = %v, want %v",
				tt.name, tt.buyer, tt.candidate, tt.round, got, tt.want)
		}
	}
}

func TestEpsilon(t *testing.T) {
	if got := Epsilon(12999, 0.01); got != 130 {
		t.Errorf("Epsilon(12999, 1%%) = %d, want 130", got)
	}
	if got := Epsilon(10, 0.001); got != 1 {
		t.Errorf("Epsilon floor = %d, want 1", got)
	}
}

func TestAspiration(t *testing.T) {
	if got := Aspiration(0, 15, 5.0, 0); got != 1.0 {
		t.Errorf("a(0) = %v, want 1.0", got)
	}
	if got := Aspiration(15, 15, 5.0, 0.2); got < 0.199 || got > 0.201 {
		t.Errorf("a(T) = %v, want reserved utility 0.2", got)
	}
}
