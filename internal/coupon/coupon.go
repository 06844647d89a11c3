// Package coupon applies invisible promotions as an extra concession
// tactic. The buyer sees a better price, never a code.
package coupon

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/molbhav/molbhav/internal/nego"
)

// Source supplies the live promotion catalog, best priority first.
type Source interface {
	ActivePromotions(ctx context.Context, productID, category string, now time.Time) ([]nego.Promotion, error)
}

// Applied is the outcome of a silent promo application.
type Applied struct {
	PromoID  string
	Discount int64
}

// Service selects and prices promotions for a session round.
type Service struct {
	src Source
	log *zap.Logger
}

// New builds the coupon service.
func New(src Source, log *zap.Logger) *Service {
	return &Service{src: src, log: log}
}

// Tactics a coupon may ride on. Everywhere else the price is either
// terminal or deliberately unmoved.
func eligibleTactic(tactic string) bool {
	return tactic == nego.TacticConcession || tactic == nego.TacticWalkAwaySave
}

// FindApplicable returns the best promotion for this round, or nil.
// Constraints: at most one coupon per session, only inside eligible
// tactics, and the discounted price must stay at or above the floor.
func (s *Service) FindApplicable(ctx context.Context, sess *nego.Session, tactic string, counterPrice int64, now time.Time) (*Applied, error) {
	if !eligibleTactic(tactic) || len(sess.CouponsApplied) > 0 {
		return nil, nil
	}

	promos, err := s.src.ActivePromotions(ctx, sess.ProductID, sess.ProductCategory, now)
	if err != nil {
		return nil, err
	}

	for _, p := range promos {
		if counterPrice < p.MinPrice {
			continue
		}
		if sess.Round < p.MinRound {
			continue
		}
		discount := discountAmount(p, counterPrice)
		if discount <= 0 {
			continue
		}
		if counterPrice-discount < sess.FloorPrice {
			continue
		}
		s.log.Info("applying invisible coupon",
			zap.String("session_id", sess.SessionID),
			zap.String("promo_id", p.ID),
			zap.Int64("discount", discount))
		return &Applied{PromoID: p.ID, Discount: discount}, nil
	}
	return nil, nil
}

func discountAmount(p nego.Promotion, price int64) int64 {
	if p.DiscountType == "percentage" {
		return int64(math.Round(float64(price) * float64(p.DiscountValue) / 100))
	}
	return p.DiscountValue
}
