package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/persona"
	"github.com/habitquest/duel-engine/internal/domain/shared"
	"github.com/habitquest/duel-engine/pkg/circuitbreaker"
	"github.com/habitquest/duel-engine/pkg/logger"
	"github.com/habitquest/duel-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFY PERSONA QUERY
// Maps questionnaire answers to an archetype with the fixed rule table, then
// optionally asks the generative backend for a narrative. The archetype and
// every derived field always come from the rules.
// ══════════════════════════════════════════════════════════════════════════════

// ClassifyPersonaQuery carries either inline answers or a user whose latest
// submission should be used.
type ClassifyPersonaQuery struct {
	UserID  string
	Answers *persona.Answers

	// Save stores inline answers as the user's latest submission.
	Save bool
}

// Validate checks the query parameters.
func (q *ClassifyPersonaQuery) Validate() error {
	q.UserID = strings.TrimSpace(q.UserID)
	if q.Answers == nil && q.UserID == "" {
		return errors.New("answers or user_id is required")
	}
	if q.Save && (q.UserID == "" || q.Answers == nil) {
		return errors.New("saving requires both user_id and answers")
	}
	return nil
}

// ClassifyPersonaConfig tunes the enrichment call.
type ClassifyPersonaConfig struct {
	// EnrichTimeout bounds the whole enrichment attempt including retries.
	EnrichTimeout time.Duration
}

// DefaultClassifyPersonaConfig returns default configuration.
func DefaultClassifyPersonaConfig() ClassifyPersonaConfig {
	return ClassifyPersonaConfig{EnrichTimeout: 4 * time.Second}
}

// ClassifyPersonaHandler handles ClassifyPersonaQuery.
type ClassifyPersonaHandler struct {
	answers  persona.AnswerRepository
	enricher persona.Enricher
	breaker  *circuitbreaker.Breaker
	retrier  retry.Policy
	features shared.FeatureGate
	log      *logger.Logger
	clock    func() time.Time
	config   ClassifyPersonaConfig
}

// NewClassifyPersonaHandler creates a new handler. enricher may be nil, in
// which case every result comes from the rules alone.
func NewClassifyPersonaHandler(
	answers persona.AnswerRepository,
	enricher persona.Enricher,
	features shared.FeatureGate,
	log *logger.Logger,
	config ClassifyPersonaConfig,
) *ClassifyPersonaHandler {
	if config.EnrichTimeout == 0 {
		config = DefaultClassifyPersonaConfig()
	}
	if features == nil {
		features = shared.StaticFeatures{}
	}
	if log == nil {
		log = logger.Nop()
	}
	h := &ClassifyPersonaHandler{
		answers:  answers,
		enricher: enricher,
		retrier:  retry.EnrichmentPolicy(),
		features: features,
		log:      log,
		clock:    time.Now,
		config:   config,
	}
	h.breaker = circuitbreaker.ForEnrichment(func(name string, from, to circuitbreaker.State) {
		h.log.Warn("enrichment circuit changed state",
			logger.Component(name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
	return h
}

// Handle executes the query.
func (h *ClassifyPersonaHandler) Handle(ctx context.Context, q ClassifyPersonaQuery) (*persona.Result, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("persona", "Classify", shared.ErrValidation, "invalid query", err)
	}

	answers, err := h.resolveAnswers(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("classify_persona: %w", err)
	}

	result := persona.Classify(answers)
	if h.enricher == nil || !h.features.IsEnabled(shared.FeaturePersonaEnrichment, q.UserID) {
		return &result, nil
	}

	narrative, err := h.enrich(ctx, answers, result)
	if err != nil {
		h.log.Warn("persona enrichment unavailable, using rules result",
			logger.UserID(q.UserID),
			logger.String("archetype", string(result.Archetype)),
			logger.Err(err),
		)
		return &result, nil
	}
	result.Narrative = narrative
	result.Source = persona.SourceEnriched
	return &result, nil
}

func (h *ClassifyPersonaHandler) resolveAnswers(ctx context.Context, q ClassifyPersonaQuery) (persona.Answers, error) {
	if q.Answers != nil {
		if q.Save {
			sub := &persona.Submission{
				UserID:      shared.UserID(q.UserID),
				Answers:     *q.Answers,
				SubmittedAt: h.clock().UTC(),
			}
			if err := h.answers.Save(ctx, sub); err != nil {
				return persona.Answers{}, err
			}
		}
		return *q.Answers, nil
	}

	sub, err := h.answers.Latest(ctx, shared.UserID(q.UserID))
	if err != nil {
		if shared.IsNotFound(err) {
			return persona.Answers{}, nil
		}
		return persona.Answers{}, err
	}
	return sub.Answers, nil
}

func (h *ClassifyPersonaHandler) enrich(ctx context.Context, answers persona.Answers, base persona.Result) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.EnrichTimeout)
	defer cancel()

	var narrative string
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		n, err := circuitbreaker.Call(ctx, h.breaker, func(ctx context.Context) (string, error) {
			return h.enricher.Enrich(ctx, answers, base)
		})
		if err != nil {
			if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
				return retry.Permanent(err)
			}
			return retry.Retryable(err)
		}
		narrative = strings.TrimSpace(n)
		return nil
	})
	if err != nil {
		return "", err
	}
	if narrative == "" {
		return "", errors.New("empty narrative")
	}
	return narrative, nil
}
