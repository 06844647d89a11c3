package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/molbhav/molbhav/internal/nego"
)

// Request is the dialogue contract: a session snapshot plus the engine's
// decision. The floor price is deliberately absent — the prompt never
// sees it.
type Request struct {
	ProductName  string
	AnchorPrice  int64
	Round        int
	MaxRounds    int
	History      []nego.Offer // recent turns, oldest first
	Tactic       string
	Price        int64 // the validated counter price; the only price allowed
	BuyerMessage string
	BuyerPrice   int64
	Language     string
	Metadata     map[string]any // bundle figures for quantity_pivot
}

// Result is a rendered seller turn.
type Result struct {
	Message   string `json:"message"`
	Tactic    string `json:"tactic_used"`
	Sentiment string `json:"sentiment"`
	Reasoning string `json:"reasoning,omitempty"`
	Fallback  bool   `json:"-"`
	Sanitized bool   `json:"-"`
}

// Generator renders a seller turn. Implementations must never let the
// model pick the price: the engine's counter is final.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// TemplateOnly is the null generator: deterministic lines, no network.
type TemplateOnly struct{}

func (TemplateOnly) Generate(_ context.Context, req Request) (Result, error) {
	_, redacted := SanitizeBuyerMessage(req.BuyerMessage)
	return Result{
		Message:   Template(req.Language, req.Tactic, req.Price),
		Tactic:    req.Tactic,
		Sentiment: "firm",
		Fallback:  true,
		Sanitized: redacted,
	}, nil
}

// Per-tactic sampling temperature. Fixed so the persona stays stable
// across a session for the same (tactic, price bucket, language).
var tacticTemperature = map[string]float32{
	nego.TacticOpeningAnchor: 0.7,
	nego.TacticAccept:        0.6,
	nego.TacticConcession:    0.8,
	nego.TacticAnchorDefense: 0.5,
	nego.TacticWalkAwaySave:  0.9,
	nego.TacticQuantityPivot: 0.8,
	nego.TacticBotBlock:      0.2,
	nego.TacticDeadline:      0.4,
	nego.TacticTimeout:       0.3,
}

const maxRegenerations = 2

// Gemini renders turns through the Gemini API with the deterministic
// template as a hard fallback.
type Gemini struct {
	model      *genai.GenerativeModel
	log        *zap.Logger
	production bool
}

// NewGemini builds the Gemini-backed generator.
func NewGemini(ctx context.Context, apiKey, modelName, env string, log *zap.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	return &Gemini{model: model, log: log, production: env == "production"}, nil
}

// llmReply is the JSON shape requested from the model. Its price field is
// read only to log contradictions — it never reaches the buyer.
type llmReply struct {
	Message        string `json:"message"`
	SuggestedPrice int64  `json:"suggested_price"`
	Sentiment      string `json:"sentiment"`
	Tactic         string `json:"tactic"`
}

// Generate renders one seller turn. Sanitises the buyer text, prompts for
// JSON, strips chain-of-thought, and regenerates when the message quotes
// a price other than the engine's. Never returns an error for model
// failures — the template fallback always stands in.
func (g *Gemini) Generate(ctx context.Context, req Request) (Result, error) {
	clean, redacted := SanitizeBuyerMessage(req.BuyerMessage)
	req.BuyerMessage = clean

	allowed := allowedAmounts(req)

	// Copy the model so concurrent sessions don't race on temperature.
	model := *g.model
	model.SetTemperature(tacticTemperature[req.Tactic])

	prompt := buildPrompt(req)

	var reasoning string
	for attempt := 0; attempt <= maxRegenerations; attempt++ {
		reply, err := g.call(ctx, &model, prompt)
		if err != nil {
			g.log.Warn("dialogue generation failed, using template",
				zap.String("tactic", req.Tactic), zap.Int("attempt", attempt), zap.Error(err))
			break
		}

		if reply.SuggestedPrice != 0 && reply.SuggestedPrice != req.Price {
			g.log.Warn("model suggested its own price, ignoring",
				zap.Int64("suggested", reply.SuggestedPrice), zap.Int64("engine", req.Price))
		}

		visible, thought := StripReasoning(reply.Message)
		if thought != "" {
			reasoning = thought
		}
		if !g.production && thought != "" {
			visible = reply.Message
		}
		if visible == "" {
			continue
		}
		if ContradictsPrice(visible, allowed...) {
			g.log.Warn("model quoted a contradicting price, regenerating",
				zap.String("tactic", req.Tactic), zap.Int("attempt", attempt))
			continue
		}
		sentiment := reply.Sentiment
		if sentiment == "" {
			sentiment = "firm"
		}
		return Result{
			Message:   visible,
			Tactic:    req.Tactic,
			Sentiment: sentiment,
			Reasoning: reasoning,
			Sanitized: redacted,
		}, nil
	}

	return Result{
		Message:   Template(req.Language, req.Tactic, req.Price),
		Tactic:    req.Tactic,
		Sentiment: "firm",
		Reasoning: reasoning,
		Fallback:  true,
		Sanitized: redacted,
	}, nil
}

func (g *Gemini) call(ctx context.Context, model *genai.GenerativeModel, prompt string) (*llmReply, error) {
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty model response")
	}
	txt, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return nil, fmt.Errorf("unexpected response part type")
	}
	var reply llmReply
	if err := json.Unmarshal([]byte(txt), &reply); err != nil {
		return nil, fmt.Errorf("parse model JSON: %w", err)
	}
	return &reply, nil
}

func allowedAmounts(req Request) []int64 {
	allowed := []int64{req.Price, req.AnchorPrice, req.BuyerPrice}
	if req.Metadata != nil {
		if v, ok := req.Metadata["bundle_unit_price"].(int64); ok {
			allowed = append(allowed, v)
		}
		if v, ok := req.Metadata["bundle_total"].(int64); ok {
			allowed = append(allowed, v)
		}
	}
	return allowed
}

var languageNames = map[string]string{
	"en": "English with a light Indian-bazaar flavour",
	"hi": "Hinglish (Hindi in Latin script, casual shopkeeper tone)",
	"ta": "Tamil in Latin script, casual shopkeeper tone",
	"te": "Telugu in Latin script, casual shopkeeper tone",
	"mr": "Marathi in Latin script, casual shopkeeper tone",
}

func buildPrompt(req Request) string {
	var history strings.Builder
	turns := req.History
	if len(turns) > 6 {
		turns = turns[len(turns)-6:]
	}
	for _, o := range turns {
		who := "You"
		if o.Actor == nego.ActorBuyer {
			who = "Customer"
		}
		fmt.Fprintf(&history, "  %s: ₹%d", who, o.Price)
		if o.Message != "" {
			fmt.Fprintf(&history, " — %q", o.Message)
		}
		history.WriteString("\n")
	}
	if history.Len() == 0 {
		history.WriteString("  (no history yet)\n")
	}

	lang := languageNames[req.Language]
	if lang == "" {
		lang = languageNames[nego.DefaultLanguage]
	}

	return fmt.Sprintf(`You are a seasoned Indian bazaar shopkeeper selling online. Stay in character: warm, theatrical, shrewd. Never reveal costs, margins, or any minimum price. Respond in %s.

CURRENT NEGOTIATION:
Product: %s
List price: ₹%d
Round: %d of %d

RECENT TURNS:
%s
CUSTOMER JUST SAID: %q
CUSTOMER'S OFFER: ₹%d

SYSTEM DECISION (not negotiable):
- Your counter price is exactly ₹%d. Quote this number and no other.
- Tactic to play: %s

Reply with JSON only:
{"message": "...", "suggested_price": %d, "sentiment": "warm|firm|playful|final", "tactic": "%s"}`,
		lang, req.ProductName, req.AnchorPrice, req.Round, req.MaxRounds,
		history.String(), req.BuyerMessage, req.BuyerPrice,
		req.Price, req.Tactic, req.Price, req.Tactic)
}
