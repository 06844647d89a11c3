package httpapi

import (
	"crypto/subtle"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/molbhav/molbhav/internal/nego"
)

func asNegoError(err error, target **nego.Error) bool {
	return errors.As(err, target)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "engine": "mol-bhav"})
}

type startRequest struct {
	ProductID string `json:"product_id"`
	BuyerName string `json:"buyer_name"`
	Language  string `json:"language"`
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	var body startRequest
	if err := c.BodyParser(&body); err != nil {
		return s.fail(c, nego.E(nego.KindBadInput, "malformed JSON body"))
	}

	buyerRef := body.BuyerName
	if buyerRef == "" {
		buyerRef = c.IP()
	}

	resp, err := s.svc.Start(c.Context(), body.ProductID, buyerRef, body.Language)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(resp)
}

type offerRequest struct {
	Price    float64 `json:"price"`
	Message  string  `json:"message"`
	Language string  `json:"language"`
	Round    int     `json:"round"` // optional retry guard
}

func (s *Server) handleOffer(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")
	token := c.Get("X-Session-Token")

	var body offerRequest
	if err := c.BodyParser(&body); err != nil {
		return s.fail(c, nego.E(nego.KindBadInput, "malformed JSON body"))
	}

	resp, err := s.svc.Offer(c.Context(), sessionID, token, body.Price, body.Message, body.Language, body.Round)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(resp)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp, err := s.svc.Status(c.Context(), c.Params("session_id"), c.Get("X-Session-Token"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(resp)
}

// requireAdminKey gates the admin surface with a constant-time compare.
func (s *Server) requireAdminKey(c *fiber.Ctx) error {
	if s.cfg.APIAdminKey == "" {
		// No key configured: admin surface is open in development only.
		if s.cfg.Env == "production" {
			return s.fail(c, nego.E(nego.KindBadToken, "admin key not configured"))
		}
		return c.Next()
	}
	got := c.Get("X-API-Key")
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.APIAdminKey)) != 1 {
		return s.fail(c, nego.E(nego.KindBadToken, "invalid API key"))
	}
	return c.Next()
}

type createProductRequest struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Category     string         `json:"category"`
	AnchorPrice  int64          `json:"anchor_price"`
	CostPrice    int64          `json:"cost_price"`
	MinMargin    float64        `json:"min_margin"`
	TargetMargin float64        `json:"target_margin"`
	Metadata     map[string]any `json:"metadata"`
}

func (s *Server) handleCreateProduct(c *fiber.Ctx) error {
	var body createProductRequest
	if err := c.BodyParser(&body); err != nil {
		return s.fail(c, nego.E(nego.KindBadInput, "malformed JSON body"))
	}
	if !nego.ValidProductID(body.ID) {
		return s.fail(c, nego.E(nego.KindBadInput, "malformed product id"))
	}
	if body.AnchorPrice <= 0 || body.CostPrice <= 0 || body.CostPrice >= body.AnchorPrice {
		return s.fail(c, nego.E(nego.KindBadInput, "prices must satisfy 0 < cost < anchor"))
	}
	if body.MinMargin < 0 || body.MinMargin >= 1 || body.TargetMargin < body.MinMargin || body.TargetMargin >= 1 {
		return s.fail(c, nego.E(nego.KindBadInput, "margins must satisfy 0 <= min <= target < 1"))
	}

	p := &nego.Product{
		ID:           body.ID,
		Name:         body.Name,
		Category:     body.Category,
		AnchorPrice:  body.AnchorPrice,
		CostPrice:    body.CostPrice,
		MinMargin:    body.MinMargin,
		TargetMargin: body.TargetMargin,
		Metadata:     body.Metadata,
	}
	if err := s.st.Durable().UpsertProduct(c.Context(), p); err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "created", "id": p.ID})
}

func (s *Server) handleListProducts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	products, err := s.st.Durable().ListProducts(c.Context(), limit, offset)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(products)
}

func (s *Server) handleGetProduct(c *fiber.Ctx) error {
	p, err := s.st.Durable().GetProduct(c.Context(), c.Params("product_id"))
	if err != nil {
		return s.fail(c, err)
	}
	if p == nil {
		return s.fail(c, nego.E(nego.KindNoSession, "product not found"))
	}
	return c.JSON(p)
}

// handleAdminSession returns the durable summary for audit. The floor
// and token live in the snapshot, so this stays behind the admin key.
func (s *Server) handleAdminSession(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")
	if !nego.ValidSessionID(sessionID) {
		return s.fail(c, nego.E(nego.KindBadInput, "malformed session id"))
	}
	sess, err := s.st.Durable().GetSummary(c.Context(), sessionID)
	if err != nil {
		return s.fail(c, err)
	}
	if sess == nil {
		return s.fail(c, nego.E(nego.KindNoSession, "no summary for session"))
	}
	return c.JSON(sess)
}

func (s *Server) handleAdminHistory(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")
	if !nego.ValidSessionID(sessionID) {
		return s.fail(c, nego.E(nego.KindBadInput, "malformed session id"))
	}
	events, err := s.st.Durable().SessionEvents(c.Context(), sessionID)
	if err != nil {
		return s.fail(c, err)
	}
	if len(events) == 0 {
		return s.fail(c, nego.E(nego.KindNoSession, "no history for session"))
	}
	return c.JSON(events)
}
