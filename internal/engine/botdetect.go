package engine

import (
	"math"
	"time"

	"github.com/molbhav/molbhav/internal/nego"
)

// Bot-score thresholds. At or above Tighten the concession curve hardens
// for the round; at or above Break the session is broken outright.
const (
	BotScoreTighten = 0.5
	BotScoreBreak   = 0.8

	// BetaTightenFactor hardens the curve when the buyer looks scripted.
	BetaTightenFactor = 1.5

	botWindow = 8
)

// BotReport is the composite anomaly score over the recent buyer offers.
type BotReport struct {
	Score   float64 `json:"score"`
	Timing  float64 `json:"timing"`
	Pattern float64 `json:"pattern"`
}

// BotDetector scores inter-offer timing and offer-pattern features.
// It is stateless: each call sees the buyer offer list from the snapshot.
type BotDetector struct {
	TimingWeight  float64
	PatternWeight float64
	MinInterval   time.Duration // expected human floor, the cooldown
	MaxStddev     time.Duration // below this, cadence is machine-regular
}

// NewBotDetector returns a detector with the default equal weights.
func NewBotDetector(cooldown time.Duration) BotDetector {
	return BotDetector{
		TimingWeight:  0.5,
		PatternWeight: 0.5,
		MinInterval:   cooldown,
		MaxStddev:     500 * time.Millisecond,
	}
}

// Score computes the composite bot score over the last botWindow buyer
// offers, both components in [0, 1].
func (d BotDetector) Score(buyerOffers []nego.Offer) BotReport {
	if len(buyerOffers) > botWindow {
		buyerOffers = buyerOffers[len(buyerOffers)-botWindow:]
	}
	timing := d.scoreTiming(buyerOffers)
	pattern := d.scorePattern(buyerOffers)
	score := d.TimingWeight*timing + d.PatternWeight*pattern
	if score > 1 {
		score = 1
	}
	return BotReport{
		Score:   math.Round(score*1000) / 1000,
		Timing:  timing,
		Pattern: pattern,
	}
}

func (d BotDetector) scoreTiming(offers []nego.Offer) float64 {
	if len(offers) < 3 {
		return 0
	}
	intervals := make([]float64, 0, len(offers)-1)
	for i := 1; i < len(offers); i++ {
		intervals = append(intervals, offers[i].Timestamp.Sub(offers[i-1].Timestamp).Seconds())
	}

	minSec := d.MinInterval.Seconds()
	if minSec <= 0 {
		minSec = 2.0
	}
	speed := math.Max(0, 1-mean(intervals)/(minSec*3))

	consistency := 0.0
	if len(intervals) >= 3 {
		consistency = math.Max(0, 1-stddev(intervals)/d.MaxStddev.Seconds())
	}
	return math.Min(1, (speed+consistency)/2)
}

func (d BotDetector) scorePattern(offers []nego.Offer) float64 {
	if len(offers) < 4 {
		return 0
	}
	deltas := make([]float64, 0, len(offers)-1)
	for i := 1; i < len(offers); i++ {
		deltas = append(deltas, float64(offers[i].Price-offers[i-1].Price))
	}

	// Identical prices or a perfect arithmetic sequence.
	identical := true
	for _, dlt := range deltas {
		if dlt != deltas[0] {
			identical = false
			break
		}
	}
	if identical {
		return 1
	}

	// Monotonic tiny decrements — a greedy bot inching downward.
	tinyDown := true
	for _, dlt := range deltas {
		if dlt > 0 || dlt < -float64(offers[0].Price)/100 {
			tinyDown = false
			break
		}
	}
	if tinyDown {
		return 0.7
	}

	// Near-fixed increments: low coefficient of variation.
	if len(deltas) >= 3 {
		m := math.Abs(mean(deltas))
		if m == 0 {
			m = 1
		}
		cv := stddev(deltas) / m
		switch {
		case cv < 0.05:
			return 0.9
		case cv < 0.15:
			return 0.5
		}
	}
	return 0
}

// EffectiveBeta hardens the concession exponent for suspicious buyers.
func EffectiveBeta(beta, botScore float64) float64 {
	if botScore >= BotScoreTighten {
		return beta * BetaTightenFactor
	}
	return beta
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func stddev(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	m := mean(v)
	var sum float64
	for _, x := range v {
		sum += (x - m) * (x - m)
	}
	return math.Sqrt(sum / float64(len(v)-1))
}
