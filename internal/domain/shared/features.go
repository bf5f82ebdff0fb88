package shared

// Feature names evaluated by the application layer.
const (
	// FeatureEarlyDecisive settles a challenge as soon as the trailing side
	// can no longer catch up.
	FeatureEarlyDecisive = "challenge.early_decisive"

	// FeaturePersonaDefaults fills a missing challenge duration from the
	// challenger's persona.
	FeaturePersonaDefaults = "challenge.persona_defaults"

	// FeaturePersonaEnrichment calls the generative backend for a narrative.
	FeaturePersonaEnrichment = "persona.enrichment"
)

// FeatureGate answers feature-flag questions for a user.
type FeatureGate interface {
	IsEnabled(feature string, userID string) bool
}

// StaticFeatures is a fixed FeatureGate, handy in tests and tools.
type StaticFeatures map[string]bool

// IsEnabled implements FeatureGate.
func (f StaticFeatures) IsEnabled(feature string, _ string) bool {
	return f[feature]
}
