// Package service orchestrates a negotiation round: lock, load, detect,
// decide, render, validate, persist, respond.
package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/molbhav/molbhav/internal/config"
	"github.com/molbhav/molbhav/internal/coupon"
	"github.com/molbhav/molbhav/internal/dialogue"
	"github.com/molbhav/molbhav/internal/engine"
	"github.com/molbhav/molbhav/internal/nego"
	"github.com/molbhav/molbhav/internal/quote"
	"github.com/molbhav/molbhav/internal/store"
)

// LLM calls get a generous deadline; the fallback template still answers
// when it runs out.
const dialogueTimeout = 8 * time.Second

// Store is the persistence surface the service needs. *store.Store
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	LoadSession(ctx context.Context, sessionID string) (*nego.Session, error)
	SaveSession(ctx context.Context, s *nego.Session, ttl time.Duration) error
	PersistRound(ctx context.Context, s *nego.Session, ttl time.Duration, events ...store.OfferEvent) error
	AcquireLock(ctx context.Context, sessionID string, lease time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, sessionID, token string) error
	InCooldown(ctx context.Context, sessionID string) (bool, error)
	SetCooldown(ctx context.Context, sessionID string, delay time.Duration) error
	IncrStartRate(ctx context.Context, ip string) (int64, error)
	GetProduct(ctx context.Context, id string) (*nego.Product, error)
	ActivePromotions(ctx context.Context, productID, category string, now time.Time) ([]nego.Promotion, error)
}

// Service is the negotiation orchestrator.
type Service struct {
	store    Store
	dialogue dialogue.Generator
	coupons  *coupon.Service
	quotes   *quote.Builder
	detector engine.BotDetector
	cfg      *config.Config
	log      *zap.Logger
	now      func() time.Time
}

// New wires the orchestrator.
func New(st Store, gen dialogue.Generator, quotes *quote.Builder, cfg *config.Config, log *zap.Logger) *Service {
	cooldown := time.Duration(cfg.MinResponseDelayMS) * time.Millisecond
	return &Service{
		store:    st,
		dialogue: gen,
		coupons:  coupon.New(st, log),
		quotes:   quotes,
		detector: engine.NewBotDetector(cooldown),
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Start opens a session for a product and returns the opening counter.
func (svc *Service) Start(ctx context.Context, productID, buyerRef, language string) (*nego.SessionResponse, error) {
	if !nego.ValidProductID(productID) {
		return nil, nego.E(nego.KindBadInput, "malformed product id")
	}
	language = normalizeLanguage(language)

	if buyerRef != "" {
		count, err := svc.store.IncrStartRate(ctx, buyerRef)
		if err != nil {
			svc.log.Warn("start-rate check unavailable", zap.Error(err))
		} else if count > int64(svc.cfg.StartRatePerMinute) {
			return nil, nego.E(nego.KindRateLimited, "too many sessions started, try again later")
		}
	}

	product, err := svc.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, nego.Wrap(nego.KindInternal, "catalog unavailable", err)
	}
	if product == nil {
		// Opaque to the caller; detail stays in the logs.
		svc.log.Error("start for unknown product", zap.String("product_id", productID))
		return nil, nego.E(nego.KindInternal, "unable to start session")
	}

	token, err := newSessionToken()
	if err != nil {
		return nil, nego.Wrap(nego.KindInternal, "token generation failed", err)
	}

	now := svc.now().UTC()
	s := &nego.Session{
		SessionID:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		SessionToken:    token,
		ProductID:       product.ID,
		ProductName:     product.Name,
		ProductCategory: product.Category,
		BuyerRef:        buyerRef,
		Language:        language,
		AnchorPrice:     product.AnchorPrice,
		FloorPrice:      engine.Floor(product.CostPrice, product.MinMargin),
		MaxRounds:       svc.cfg.DefaultMaxRounds,
		Beta:            svc.cfg.DefaultBeta,
		Alpha:           svc.cfg.DefaultAlpha,
		State:           nego.StateIdle,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(svc.sessionTTL()),
		TTLSeconds:      svc.cfg.SessionTTLSecs,
		QuoteTTLSeconds: svc.cfg.QuoteTTLSecs,
	}

	d := engine.Open(s, now)

	res := svc.render(ctx, s, d, "", 0)

	ev := store.OfferEvent{
		SessionID: s.SessionID,
		Round:     0,
		Actor:     nego.ActorSeller,
		Price:     s.AnchorPrice,
		BuyerRef:  buyerRef,
		Tactic:    d.Tactic,
		State:     s.State,
		Timestamp: now,
	}
	if err := svc.store.PersistRound(ctx, s, svc.sessionTTL(), ev); err != nil {
		return nil, err
	}
	return svc.response(s, res, d, true), nil
}

// Offer processes one buyer offer under the per-session lock.
// expectedRound is optional (0 = unset): a retry carrying a round the
// session has already passed is rejected as out of order instead of
// consuming a fresh round.
func (svc *Service) Offer(ctx context.Context, sessionID, token string, price float64, message, language string, expectedRound int) (*nego.SessionResponse, error) {
	if !nego.ValidSessionID(sessionID) {
		return nil, nego.E(nego.KindBadInput, "malformed session id")
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return nil, nego.E(nego.KindBadInput, "price must be a positive number")
	}

	cooling, err := svc.store.InCooldown(ctx, sessionID)
	if err != nil {
		return nil, nego.Wrap(nego.KindDegraded, "hot tier unavailable", err)
	}
	if cooling {
		return nil, nego.E(nego.KindCooldown, "please wait before the next offer")
	}

	lockToken, ok, err := svc.store.AcquireLock(ctx, sessionID, svc.lockLease())
	if err != nil {
		return nil, nego.Wrap(nego.KindDegraded, "hot tier unavailable", err)
	}
	if !ok {
		return nil, nego.E(nego.KindBusy, "another offer for this session is in flight")
	}
	defer func() {
		if err := svc.store.ReleaseLock(ctx, sessionID, lockToken); err != nil {
			svc.log.Warn("lock release failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()

	s, err := svc.authenticate(ctx, sessionID, token)
	if err != nil {
		return nil, err
	}

	now := svc.now().UTC()
	if engine.Expire(s, now) {
		d := engine.Decision{State: s.State, Tactic: s.Tactic, CounterPrice: s.CurrentPrice}
		res := svc.render(ctx, s, d, message, 0)
		if err := svc.store.PersistRound(ctx, s, svc.terminalTTL()); err != nil {
			return nil, err
		}
		return svc.response(s, res, d, false), nil
	}
	if s.Terminal() {
		return nil, nego.E(nego.KindSessionClosed, fmt.Sprintf("session already %s", s.State))
	}
	if expectedRound > 0 && expectedRound != s.Round+1 {
		return nil, nego.E(nego.KindBadInput, "out_of_order: round already advanced")
	}
	if language != "" {
		s.Language = normalizeLanguage(language)
	}

	buyerPrice := int64(math.Round(price))

	// Bot features over the would-be offer list.
	features := nego.OfferFeatures{Delta: buyerPrice - s.LastBuyerPrice}
	if last := s.LastBuyerOffer(); last != nil {
		features.IntervalMS = now.Sub(last.Timestamp).Milliseconds()
	}
	probe := append(s.BuyerOffers(), nego.Offer{Actor: nego.ActorBuyer, Price: buyerPrice, Timestamp: now})
	bot := svc.detector.Score(probe)

	exit := engine.DetectExitIntent(message)

	machineCfg := engine.DefaultConfig()
	machineCfg.ZOPAEpsilonPct = svc.cfg.ZOPAEpsilonPct

	d, err := engine.Process(s, engine.Input{
		BuyerPrice: buyerPrice,
		Message:    message,
		Exit:       exit,
		Bot:        bot,
		Now:        now,
		Features:   features,
	}, machineCfg)
	if err != nil {
		return nil, nego.Wrap(nego.KindValidationFailed, "offer rejected", err)
	}

	svc.applyCoupon(ctx, s, &d, now)

	res := svc.render(ctx, s, d, message, buyerPrice)

	ttl := svc.sessionTTL()
	if s.Terminal() {
		ttl = svc.terminalTTL()
	}
	events := []store.OfferEvent{
		{
			SessionID: s.SessionID, Round: s.Round, Actor: nego.ActorBuyer,
			Price: buyerPrice, BuyerRef: s.BuyerRef, Message: truncate(message, 500),
			BotScore: bot.Score, State: s.State, Timestamp: now,
		},
		{
			SessionID: s.SessionID, Round: s.Round, Actor: nego.ActorSeller,
			Price: d.CounterPrice, BuyerRef: s.BuyerRef, Tactic: d.Tactic,
			BotScore: bot.Score, State: s.State, Timestamp: now,
		},
	}
	if err := svc.store.PersistRound(ctx, s, ttl, events...); err != nil {
		return nil, err
	}

	if err := svc.store.SetCooldown(ctx, sessionID, time.Duration(svc.cfg.MinResponseDelayMS)*time.Millisecond); err != nil {
		svc.log.Warn("cooldown arm failed", zap.String("session_id", sessionID), zap.Error(err))
	}

	return svc.response(s, res, d, false), nil
}

// Status returns a read-only snapshot. Never mutates.
func (svc *Service) Status(ctx context.Context, sessionID, token string) (*nego.SessionResponse, error) {
	if !nego.ValidSessionID(sessionID) {
		return nil, nego.E(nego.KindBadInput, "malformed session id")
	}
	s, err := svc.authenticate(ctx, sessionID, token)
	if err != nil {
		return nil, err
	}
	resp := &nego.SessionResponse{
		SessionID:       s.SessionID,
		Message:         "",
		CurrentPrice:    s.CurrentPrice,
		AnchorPrice:     s.AnchorPrice,
		State:           string(s.State),
		Tactic:          s.Tactic,
		Sentiment:       s.Sentiment,
		Round:           s.Round,
		MaxRounds:       s.MaxRounds,
		QuoteTTLSeconds: s.QuoteTTLSeconds,
		AgreedPrice:     s.AgreedPrice,
		Metadata:        map[string]any{"bot_score": s.BotScore},
	}
	if s.Degraded {
		resp.Metadata["degraded"] = true
	}
	return resp, nil
}

// authenticate loads the session and verifies the caller's token in
// constant time. A missing session and a wrong token are
// indistinguishable: both compare against a value and return bad_token.
func (svc *Service) authenticate(ctx context.Context, sessionID, token string) (*nego.Session, error) {
	s, err := svc.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	stored := ""
	if s != nil {
		stored = s.SessionToken
	} else {
		stored = dummyToken
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 || s == nil {
		return nil, nego.E(nego.KindBadToken, "invalid session token")
	}
	return s, nil
}

// dummyToken keeps the compare on the missing-session path the same
// shape as the real one.
const dummyToken = "0000000000000000000000000000000000000000000000000000000000000000"

func (svc *Service) applyCoupon(ctx context.Context, s *nego.Session, d *engine.Decision, now time.Time) {
	applied, err := svc.coupons.FindApplicable(ctx, s, d.Tactic, d.CounterPrice, now)
	if err != nil {
		svc.log.Warn("promotion lookup failed", zap.String("session_id", s.SessionID), zap.Error(err))
		return
	}
	if applied == nil {
		return
	}
	newPrice := d.CounterPrice - applied.Discount
	if newPrice < s.FloorPrice {
		return
	}
	d.CounterPrice = newPrice
	if newPrice < s.CurrentPrice {
		s.CurrentPrice = newPrice
	}
	// The seller entry for this round was logged pre-discount; the buyer
	// must see the sweetened figure.
	if last := s.LastSellerOffer(); last != nil && last.Round == s.Round {
		last.Price = newPrice
	}
	s.CouponsApplied = append(s.CouponsApplied, applied.PromoID)
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	d.Metadata["coupon_applied"] = true
	d.Metadata["coupon_id"] = applied.PromoID
}

// render asks the dialogue layer for the vernacular message. Dialogue
// failures never fail the round: the deterministic template answers.
func (svc *Service) render(ctx context.Context, s *nego.Session, d engine.Decision, buyerMessage string, buyerPrice int64) dialogue.Result {
	dctx, cancel := context.WithTimeout(ctx, dialogueTimeout)
	defer cancel()

	res, err := svc.dialogue.Generate(dctx, dialogue.Request{
		ProductName:  s.ProductName,
		AnchorPrice:  s.AnchorPrice,
		Round:        s.Round,
		MaxRounds:    s.MaxRounds,
		History:      s.Offers,
		Tactic:       d.Tactic,
		Price:        d.CounterPrice,
		BuyerMessage: buyerMessage,
		BuyerPrice:   buyerPrice,
		Language:     s.Language,
		Metadata:     d.Metadata,
	})
	if err != nil {
		svc.log.Warn("dialogue generation errored, using template",
			zap.String("session_id", s.SessionID), zap.Error(err))
		res = dialogue.Result{
			Message:   dialogue.Template(s.Language, d.Tactic, d.CounterPrice),
			Tactic:    d.Tactic,
			Sentiment: "firm",
			Fallback:  true,
		}
	}
	s.Sentiment = res.Sentiment
	return res
}

func (svc *Service) response(s *nego.Session, res dialogue.Result, d engine.Decision, includeToken bool) *nego.SessionResponse {
	metadata := map[string]any{}
	for k, v := range d.Metadata {
		metadata[k] = v
	}
	if res.Fallback {
		metadata["dialogue_fallback"] = true
	}
	if res.Sanitized {
		metadata["sanitized"] = true
	}
	if res.Reasoning != "" && svc.cfg.Env != "production" {
		metadata["reasoning"] = res.Reasoning
	}
	if d.Validation.Overridden {
		metadata["validator_override"] = true
		metadata["validator_reasons"] = d.Validation.Reasons
	}
	if s.Degraded {
		metadata["degraded"] = true
	}

	if s.State == nego.StateAgreed && s.AgreedPrice != nil {
		q, err := svc.quotes.Build(s.SessionID, s.ProductID, *s.AgreedPrice,
			time.Duration(s.QuoteTTLSeconds)*time.Second)
		if err != nil {
			svc.log.Error("quote build failed", zap.String("session_id", s.SessionID), zap.Error(err))
		} else {
			metadata["quote"] = q
		}
	}

	resp := &nego.SessionResponse{
		SessionID:       s.SessionID,
		Message:         res.Message,
		CurrentPrice:    d.CounterPrice,
		AnchorPrice:     s.AnchorPrice,
		State:           string(s.State),
		Tactic:          res.Tactic,
		Sentiment:       res.Sentiment,
		Round:           s.Round,
		MaxRounds:       s.MaxRounds,
		QuoteTTLSeconds: s.QuoteTTLSeconds,
		AgreedPrice:     s.AgreedPrice,
		Metadata:        metadata,
	}
	if includeToken {
		resp.SessionToken = s.SessionToken
	}
	return resp
}

func (svc *Service) sessionTTL() time.Duration {
	return time.Duration(svc.cfg.SessionTTLSecs) * time.Second
}

// terminalTTL keeps a finished session readable until its quote window
// closes, then the hot entry disappears.
func (svc *Service) terminalTTL() time.Duration {
	return time.Duration(svc.cfg.QuoteTTLSecs) * time.Second
}

func (svc *Service) lockLease() time.Duration {
	return time.Duration(svc.cfg.LockLeaseSecs) * time.Second
}

// newSessionToken returns 256 bits of entropy, hex-encoded.
func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if nego.SupportedLanguages[lang] {
		return lang
	}
	return nego.DefaultLanguage
}
