package engine

import (
	"testing"
	"time"

	"github.com/molbhav/molbhav/internal/nego"
)

func buyerOffers(start time.Time, interval time.Duration, prices ...int64) []nego.Offer {
	out := make([]nego.Offer, 0, len(prices))
	ts := start
	for i, p := range prices {
		out = append(out, nego.Offer{Actor: nego.ActorBuyer, Price: p, Round: i + 1, Timestamp: ts})
		ts = ts.Add(interval)
	}
	return out
}

func TestMachineRegularOffersBreakThreshold(t *testing.T) {
	// Identical price every 150ms — the classic scripted client.
	d := NewBotDetector(2 * time.Second)
	offers := buyerOffers(time.Unix(1700000000, 0), 150*time.Millisecond,
		3000, 3000, 3000, 3000, 3000, 3000)

	report := d.Score(offers)
	if report.Score < BotScoreBreak {
		t.Errorf("score = %v, want >= %v", report.Score, BotScoreBreak)
	}
	if report.Pattern != 1 {
		t.Errorf("pattern = %v, want 1 for identical prices", report.Pattern)
	}
}

func TestArithmeticSequenceScoresHigh(t *testing.T) {
	d := NewBotDetector(2 * time.Second)
	offers := buyerOffers(time.Unix(1700000000, 0), 10*time.Second,
		3000, 3100, 3200, 3300, 3400)

	report := d.Score(offers)
	if report.Pattern != 1 {
		t.Errorf("pattern = %v, want 1 for constant increments", report.Pattern)
	}
	// Slow cadence keeps the timing component down.
	if report.Timing > 0.5 {
		t.Errorf("timing = %v, want <= 0.5 for 10s intervals", report.Timing)
	}
}

func TestHumanLikeNegotiationScoresLow(t *testing.T) {
	d := NewBotDetector(2 * time.Second)
	base := time.Unix(1700000000, 0)
	offers := []nego.Offer{
		{Actor: nego.ActorBuyer, Price: 8000, Timestamp: base},
		{Actor: nego.ActorBuyer, Price: 9100, Timestamp: base.Add(14 * time.Second)},
		{Actor: nego.ActorBuyer, Price: 9650, Timestamp: base.Add(51 * time.Second)},
		{Actor: nego.ActorBuyer, Price: 10200, Timestamp: base.Add(79 * time.Second)},
	}
	report := d.Score(offers)
	if report.Score >= BotScoreTighten {
		t.Errorf("score = %v, want < %v for human-like play", report.Score, BotScoreTighten)
	}
}

func TestTooFewOffersScoreZero(t *testing.T) {
	d := NewBotDetector(2 * time.Second)
	offers := buyerOffers(time.Unix(1700000000, 0), time.Millisecond, 3000, 3000)
	if report := d.Score(offers); report.Score != 0 {
		t.Errorf("score = %v, want 0 for two offers", report.Score)
	}
}

func TestWindowCapsAtEight(t *testing.T) {
	d := NewBotDetector(2 * time.Second)
	base := time.Unix(1700000000, 0)
	// Twelve human-paced offers followed by nothing suspicious: the first
	// four fall outside the window.
	var offers []nego.Offer
	prices := []int64{5000, 5500, 6100, 6400, 7000, 7300, 7900, 8200, 8600, 9100, 9500, 9800}
	gaps := []time.Duration{0, 13, 29, 41, 60, 75, 92, 110, 125, 150, 170, 195}
	for i, p := range prices {
		offers = append(offers, nego.Offer{Actor: nego.ActorBuyer, Price: p, Timestamp: base.Add(gaps[i] * time.Second)})
	}
	report := d.Score(offers)
	if report.Score >= BotScoreTighten {
		t.Errorf("score = %v, want < %v", report.Score, BotScoreTighten)
	}
}

func TestEffectiveBeta(t *testing.T) {
	if got := EffectiveBeta(5.0, 0.2); got != 5.0 {
		t.Errorf("clean buyer: beta = %v, want 5.0", got)
	}
	if got := EffectiveBeta(5.0, 0.6); got != 7.5 {
		t.Errorf("suspicious buyer: beta = %v, want 7.5", got)
	}
}
