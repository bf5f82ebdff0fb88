// Package gemini implements persona.Enricher on top of the Gemini API.
// The enricher only writes a short narrative around an already computed
// archetype; it never changes the archetype or any derived default.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"github.com/habitquest/duel-engine/internal/domain/persona"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the enricher.
type Config struct {
	APIKey string
	Model  string

	// MaxOutputTokens caps the generated narrative.
	MaxOutputTokens int32

	Temperature float32

	// MaxNarrativeChars truncates longer narratives on a rune boundary.
	MaxNarrativeChars int

	RateLimit RateLimiterConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:             "gemini-2.0-flash",
		MaxOutputTokens:   256,
		Temperature:       0.4,
		MaxNarrativeChars: 600,
		RateLimit:         DefaultRateLimiterConfig(),
	}
}

var (
	ErrAPIKeyMissing  = errors.New("gemini: api key is required")
	ErrEmptyNarrative = errors.New("gemini: empty narrative")
)

// Generator produces text for a prompt. *genai.Client is adapted to it by
// clientGenerator; tests substitute their own.
type Generator interface {
	Generate(ctx context.Context, model, system, prompt string, cfg Config) (string, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENRICHER
// ══════════════════════════════════════════════════════════════════════════════

// Enricher writes persona narratives with a generative model.
type Enricher struct {
	gen     Generator
	config  Config
	limiter *RateLimiter
	log     *logger.Logger
}

var _ persona.Enricher = (*Enricher)(nil)

// New creates an enricher backed by the Gemini API.
func New(ctx context.Context, config Config, log *logger.Logger) (*Enricher, error) {
	if config.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return NewWithGenerator(clientGenerator{client: client}, config, log), nil
}

// NewWithGenerator creates an enricher over an arbitrary generator.
func NewWithGenerator(gen Generator, config Config, log *logger.Logger) *Enricher {
	def := DefaultConfig()
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.MaxOutputTokens <= 0 {
		config.MaxOutputTokens = def.MaxOutputTokens
	}
	if config.MaxNarrativeChars <= 0 {
		config.MaxNarrativeChars = def.MaxNarrativeChars
	}
	if config.RateLimit.RequestsPerSecond <= 0 {
		config.RateLimit = def.RateLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Enricher{
		gen:     gen,
		config:  config,
		limiter: NewRateLimiter(config.RateLimit),
		log:     log.With(logger.Component("gemini")),
	}
}

// Enrich implements persona.Enricher.
func (e *Enricher) Enrich(ctx context.Context, answers persona.Answers, base persona.Result) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", shared.Infrastructure("persona", "Enrich", err)
	}

	start := time.Now()
	text, err := e.gen.Generate(ctx, e.config.Model, systemInstruction, BuildPrompt(answers, base), e.config)
	if err != nil {
		e.log.Warn("narrative generation failed",
			logger.String("archetype", string(base.Archetype)),
			logger.Err(err),
			logger.Latency(time.Since(start)),
		)
		return "", shared.Infrastructure("persona", "Enrich", err)
	}

	narrative := cleanNarrative(text, e.config.MaxNarrativeChars)
	if narrative == "" {
		return "", shared.Infrastructure("persona", "Enrich", ErrEmptyNarrative)
	}

	e.log.Debug("narrative generated",
		logger.String("archetype", string(base.Archetype)),
		logger.Int("chars", utf8.RuneCountInString(narrative)),
		logger.Latency(time.Since(start)),
	)
	return narrative, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROMPT
// ══════════════════════════════════════════════════════════════════════════════

const systemInstruction = `You write short, warm coaching notes for a habit-tracking app.
Write two or three sentences in the second person. Do not use lists, headings or markdown.
Do not rename the archetype and do not invent numbers.`

// BuildPrompt renders the user prompt from the answers and the rules result.
func BuildPrompt(answers persona.Answers, base persona.Result) string {
	a := answers.Normalize()

	var b strings.Builder
	fmt.Fprintf(&b, "Archetype: %s\n", base.Archetype)
	if base.MatchedOn != "" {
		fmt.Fprintf(&b, "Selected because: %s\n", base.MatchedOn)
	}
	fmt.Fprintf(&b, "Tone: %s\n", base.EngagementTone)
	fmt.Fprintf(&b, "Motivation lever: %s\n", base.MotivationLever)
	writeList(&b, "Strengths", base.Strengths)
	writeList(&b, "Watch out for", base.Challenges)

	b.WriteString("\nQuestionnaire:\n")
	writeAnswer(&b, "motivation", a.Motivation)
	writeAnswer(&b, "journey", strings.Join(a.Journey, ", "))
	writeAnswer(&b, "momentum loss", a.MomentumLoss)
	writeAnswer(&b, "top motivators", strings.Join(a.TopMotivators, ", "))
	writeAnswer(&b, "weekly feeling", a.WeeklyFeeling)
	writeAnswer(&b, "push or protect", a.PushOrProtect)
	writeAnswer(&b, "social comparison", a.SocialComparison)
	writeAnswer(&b, "after a miss", a.MissResponse)

	b.WriteString("\nWrite the note for this person.")
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(items, "; "))
}

func writeAnswer(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

// cleanNarrative strips wrapping quotes and code fences, collapses whitespace
// and truncates to limit runes.
func cleanNarrative(s string, limit int) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.Trim(s, "\"' \n\t")
	s = strings.Join(strings.Fields(s), " ")

	if limit > 0 && utf8.RuneCountInString(s) > limit {
		r := []rune(s)
		s = strings.TrimSpace(string(r[:limit])) + "…"
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// GENAI ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

type clientGenerator struct {
	client *genai.Client
}

func (g clientGenerator) Generate(ctx context.Context, model, system, prompt string, cfg Config) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(cfg.Temperature),
		MaxOutputTokens:   cfg.MaxOutputTokens,
		CandidateCount:    1,
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}
