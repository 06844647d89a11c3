package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/molbhav/molbhav/internal/nego"
)

// Config carries the tunable knobs of the negotiation strategy.
type Config struct {
	ZOPAEpsilonPct float64 // acceptance slack as a fraction of anchor
	FlouncePct     float64 // one-shot walk-away-save concession, of current price
	StallPct       float64 // buyer move below this fraction of anchor counts as a stall
	StallRuns      int     // consecutive stalled moves before pivoting to quantity
}

// DefaultConfig returns the strategy defaults.
func DefaultConfig() Config {
	return Config{
		ZOPAEpsilonPct: 0.01,
		FlouncePct:     0.05,
		StallPct:       0.005,
		StallRuns:      3,
	}
}

// Input is one buyer turn as seen by the state machine.
type Input struct {
	BuyerPrice int64
	Message    string
	Exit       ExitIntent
	Bot        BotReport
	Now        time.Time
	Features   nego.OfferFeatures
}

// Decision is the machine's verdict for the turn: the next state, the
// tactic tag the dialogue layer renders, and the validated counter price.
type Decision struct {
	State        nego.State
	Tactic       string
	CounterPrice int64
	Validation   ValidatedPrice
	Metadata     map[string]any
}

// Open initialises a fresh session: the seller leads with the anchor.
func Open(s *nego.Session, now time.Time) Decision {
	s.State = nego.StateProposing
	s.Round = 0
	s.CurrentPrice = s.AnchorPrice
	s.Tactic = nego.TacticOpeningAnchor
	s.UpdatedAt = now
	s.AppendOffer(nego.Offer{
		Actor:     nego.ActorSeller,
		Price:     s.AnchorPrice,
		Tactic:    nego.TacticOpeningAnchor,
		Timestamp: now,
		Round:     0,
	})
	return Decision{
		State:        nego.StateProposing,
		Tactic:       nego.TacticOpeningAnchor,
		CounterPrice: s.AnchorPrice,
	}
}

// Expire transitions an active session whose TTL has elapsed. Returns
// false if the session was already terminal or still live.
func Expire(s *nego.Session, now time.Time) bool {
	if s.Terminal() || s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt) {
		return false
	}
	s.State = nego.StateTimedOut
	s.Tactic = nego.TacticTimeout
	s.UpdatedAt = now
	return true
}

// Process runs one SAO round: record the buyer offer, walk the transition
// table in row order, and mutate the session under the caller's lock.
// The conditions are evaluated strictly in table order — the first match
// wins.
func Process(s *nego.Session, in Input, cfg Config) (Decision, error) {
	if s.Terminal() {
		return Decision{}, fmt.Errorf("process offer: session %s is %s", s.SessionID, s.State)
	}
	if in.BuyerPrice <= 0 {
		return Decision{}, fmt.Errorf("process offer: non-positive buyer price %d", in.BuyerPrice)
	}

	s.Round++
	s.State = nego.StateResponding
	s.UpdatedAt = in.Now
	s.BotScore = in.Bot.Score
	if in.Exit.Leaving {
		s.Sentiment = "exit"
	} else {
		s.Sentiment = ""
	}

	s.AppendOffer(nego.Offer{
		Actor:     nego.ActorBuyer,
		Price:     in.BuyerPrice,
		Message:   in.Message,
		Timestamp: in.Now,
		Round:     s.Round,
		Features:  in.Features,
	})
	s.LastBuyerPrice = in.BuyerPrice

	buyerPrices := buyerPriceList(s)
	beta := EffectiveBeta(s.Beta, in.Bot.Score)
	curve := CurvePrice(s.AnchorPrice, s.FloorPrice, s.Round, s.MaxRounds, beta)
	rec := NewReciprocity(s.Alpha, s.AnchorPrice, s.FloorPrice)
	concession := rec.Concession(buyerPrices, s.Round, s.MaxRounds)
	candidate := CandidateCounter(s.CurrentPrice, curve, concession)
	epsilon := Epsilon(s.AnchorPrice, cfg.ZOPAEpsilonPct)

	var d Decision
	switch {
	// Row 1: buyer price inside the ZOPA — agree.
	case InZOPA(in.BuyerPrice, s.FloorPrice, candidate, epsilon, s.Round, s.MaxRounds):
		agreed := in.BuyerPrice
		if agreed > s.AnchorPrice {
			agreed = s.AnchorPrice
		}
		s.State = nego.StateAgreed
		s.AgreedPrice = &agreed
		d = Decision{State: nego.StateAgreed, Tactic: nego.TacticAccept, CounterPrice: agreed}

	// Row 2: composite bot score over the break threshold.
	case in.Bot.Score >= BotScoreBreak:
		s.State = nego.StateBroken
		d = Decision{State: nego.StateBroken, Tactic: nego.TacticBotBlock, CounterPrice: s.CurrentPrice}

	// Row 3: round budget exhausted outside the ZOPA.
	case s.Round >= s.MaxRounds:
		s.State = nego.StateBroken
		d = Decision{State: nego.StateBroken, Tactic: nego.TacticDeadline, CounterPrice: s.CurrentPrice}

	// Row 4: exit intent, flounce not yet spent — one-shot save.
	case in.Exit.Leaving && in.Exit.Confidence >= 0.5 && !s.FlounceUsed:
		d = flounce(s, cfg)

	// Row 5: lowball below the floor, deadline not imminent — hold the line.
	case in.BuyerPrice < s.FloorPrice && s.Round < s.MaxRounds-1:
		d = Decision{State: nego.StateResponding, Tactic: nego.TacticAnchorDefense, CounterPrice: s.CurrentPrice}

	// Row 6: buyer barely moving — pivot to quantity.
	case stalled(buyerPrices, s.AnchorPrice, cfg):
		d = quantityPivot(s)

	// Row 7: default concession from curve + reciprocity.
	default:
		v, err := ValidatePrice(float64(candidate), Bounds{
			Floor:      s.FloorPrice,
			Anchor:     s.AnchorPrice,
			PrevSeller: s.CurrentPrice,
			Candidate:  candidate,
		})
		if err != nil {
			return Decision{}, fmt.Errorf("validate candidate: %w", err)
		}
		d = Decision{State: nego.StateResponding, Tactic: nego.TacticConcession, CounterPrice: v.Price, Validation: v}
	}

	s.State = d.State
	s.Tactic = d.Tactic
	if d.CounterPrice > 0 && d.CounterPrice < s.CurrentPrice {
		s.CurrentPrice = d.CounterPrice
	}
	s.AppendOffer(nego.Offer{
		Actor:     nego.ActorSeller,
		Price:     d.CounterPrice,
		Tactic:    d.Tactic,
		Timestamp: in.Now,
		Round:     s.Round,
	})
	return d, nil
}

// flounce is the one-shot walk-away save: concede FlouncePct of the
// current price, never below the floor.
func flounce(s *nego.Session, cfg Config) Decision {
	s.FlounceUsed = true
	cut := int64(math.Round(float64(s.CurrentPrice) * cfg.FlouncePct))
	price := s.CurrentPrice - cut
	v := ValidatedPrice{Price: price}
	if price < s.FloorPrice {
		v = ValidatedPrice{Price: s.FloorPrice, Overridden: true, Reasons: []string{"below_floor"}}
	}
	return Decision{
		State:        nego.StateResponding,
		Tactic:       nego.TacticWalkAwaySave,
		CounterPrice: v.Price,
		Validation:   v,
	}
}

func stalled(buyerPrices []int64, anchor int64, cfg Config) bool {
	runs := cfg.StallRuns
	if runs <= 0 {
		runs = 3
	}
	if len(buyerPrices) < runs+1 {
		return false
	}
	threshold := int64(math.Round(float64(anchor) * cfg.StallPct))
	for i := len(buyerPrices) - runs; i < len(buyerPrices); i++ {
		delta := buyerPrices[i] - buyerPrices[i-1]
		if delta < 0 {
			delta = -delta
		}
		if delta > threshold {
			return false
		}
	}
	return true
}

func quantityPivot(s *nego.Session) Decision {
	const quantity = 2
	unit := s.CurrentPrice
	perUnitDiscount := unit / 20 // bundle sweetener, ~5% per extra unit
	bundleUnit := unit - perUnitDiscount*(quantity-1)/quantity
	if bundleUnit < s.FloorPrice {
		bundleUnit = s.FloorPrice
	}
	return Decision{
		State:        nego.StateResponding,
		Tactic:       nego.TacticQuantityPivot,
		CounterPrice: s.CurrentPrice, // headline price does not move
		Metadata: map[string]any{
			"quantity":          quantity,
			"bundle_unit_price": bundleUnit,
			"bundle_total":      bundleUnit * quantity,
		},
	}
}

func buyerPriceList(s *nego.Session) []int64 {
	offers := s.BuyerOffers()
	out := make([]int64, 0, len(offers))
	for _, o := range offers {
		out = append(out, o.Price)
	}
	return out
}
