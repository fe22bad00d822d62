package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/finsim/ledger-engine/internal/ledger"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-1.5-flash"

const requestTimeout = 10 * time.Second

// generateFunc sends a prompt and returns the model's text.
type generateFunc func(ctx context.Context, prompt string) (string, error)

// GeminiAdvisor asks a Gemini model for a verdict and falls back to the
// rule-based score on any failure.
type GeminiAdvisor struct {
	generate generateFunc
	log      *slog.Logger
}

// NewGeminiAdvisor creates an advisor backed by the Gemini API.
func NewGeminiAdvisor(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiAdvisor, error) {
	if apiKey == "" {
		return nil, errors.New("insight: gemini api key is empty")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("insight: gemini client: %w", err)
	}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	gen := func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
		if err != nil {
			return "", err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return "", errors.New("empty response")
		}
		return resp.Candidates[0].Content.Parts[0].Text, nil
	}
	return newGeminiAdvisor(gen, logger), nil
}

func newGeminiAdvisor(gen generateFunc, logger *slog.Logger) *GeminiAdvisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiAdvisor{generate: gen, log: logger}
}

// Assess implements Advisor.
func (g *GeminiAdvisor) Assess(ctx context.Context, snap *ledger.Snapshot) Health {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	text, err := g.generate(ctx, prompt(snap))
	if err != nil {
		g.log.Error("gemini assess failed", "user", snap.UserID, "error", err)
		return Score(snap)
	}
	h, err := parse(text)
	if err != nil {
		g.log.Warn("gemini returned unusable verdict", "user", snap.UserID, "error", err)
		return Score(snap)
	}
	return h
}

func prompt(snap *ledger.Snapshot) string {
	var b strings.Builder
	b.WriteString("You are a friendly investing coach for beginners in India. ")
	b.WriteString("Assess this virtual portfolio and reply with JSON only: ")
	b.WriteString(`{"score": <0-100>, "risk_level": "Low"|"Moderate"|"High", "verdict": "<one or two sentences>"}`)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Cash: %s\nTotal value: %s\nGrowth: %s%%\nHoldings:\n",
		snap.CashBalance.StringFixed(2), snap.TotalValue.StringFixed(2), snap.Growth.String())
	if len(snap.Positions) == 0 {
		b.WriteString("- none\n")
	}
	for _, p := range snap.Positions {
		fmt.Fprintf(&b, "- %s: %d shares, value %s, P&L %s%%\n",
			p.Symbol, p.Quantity, p.MarketValue.StringFixed(2), p.PnLPercent.String())
	}
	return b.String()
}

func parse(text string) (Health, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var h Health
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &h); err != nil {
		return Health{}, err
	}
	if h.Score < 0 || h.Score > 100 {
		return Health{}, fmt.Errorf("score %d out of range", h.Score)
	}
	switch h.RiskLevel {
	case "Low", "Moderate", "High":
	default:
		return Health{}, fmt.Errorf("unknown risk level %q", h.RiskLevel)
	}
	if h.Verdict == "" {
		return Health{}, errors.New("empty verdict")
	}
	h.Source = SourceGemini
	return h, nil
}
