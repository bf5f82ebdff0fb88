package config

import (
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/habitquest/duel-engine/internal/domain/shared"
)

// FeatureFlags manages feature toggles with gradual per-user rollout.
// It implements shared.FeatureGate.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// userOverrides pin a feature on or off for one user (support, QA).
	userOverrides map[string]map[string]bool

	now func() time.Time
}

var _ shared.FeatureGate = (*FeatureFlags)(nil)

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// RolloutPercent (0-100) buckets users by a hash of feature and user id.
	RolloutPercent int

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	UserID  string
	IsAdmin bool
}

// LoadFeatureFlags builds the defaults and applies FEATURE_* environment overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	ff.loadFromEnvironment()
	return ff
}

// NewFeatureFlags returns the defaults without reading the environment.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
		now:           time.Now,
	}
	ff.initializeDefaults()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[shared.FeatureEarlyDecisive] = &Feature{
		Name:           shared.FeatureEarlyDecisive,
		Description:    "Settle as soon as the trailing side cannot catch up",
		Enabled:        false,
		RolloutPercent: 0,
	}

	ff.features[shared.FeaturePersonaDefaults] = &Feature{
		Name:           shared.FeaturePersonaDefaults,
		Description:    "Default challenge length from the challenger's persona",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[shared.FeaturePersonaEnrichment] = &Feature{
		Name:           shared.FeaturePersonaEnrichment,
		Description:    "Generative narrative on top of the rules-based persona",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment applies overrides of the form FEATURE_<NAME>=true|false|<percent>.
// Example: FEATURE_CHALLENGE_EARLY_DECISIVE=25
func (ff *FeatureFlags) loadFromEnvironment() {
	overrides := make(map[string]string)
	for name := range ff.features {
		if val := os.Getenv(featureNameToEnvKey(name)); val != "" {
			overrides[name] = val
		}
	}
	ff.ApplyOverrides(overrides)
}

// ApplyOverrides sets features from "true", "false" or a 0-100 percentage.
// Unknown names and unparsable values are ignored.
func (ff *FeatureFlags) ApplyOverrides(values map[string]string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	for name, val := range values {
		feature, ok := ff.features[name]
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)

		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}

		if p, err := strconv.Atoi(strings.TrimSuffix(val, "%")); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "challenge.early_decisive" -> "FEATURE_CHALLENGE_EARLY_DECISIVE"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled implements shared.FeatureGate.
func (ff *FeatureFlags) IsEnabled(featureName string, userID string) bool {
	return ff.Evaluate(featureName, &FeatureContext{UserID: userID})
}

// Evaluate checks if a feature is enabled for the given context.
func (ff *FeatureFlags) Evaluate(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx != nil && ctx.UserID != "" {
		if userOverrides, ok := ff.userOverrides[ctx.UserID]; ok {
			if enabled, ok := userOverrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	if ctx != nil && ctx.IsAdmin {
		return true
	}

	if !feature.Enabled {
		return false
	}

	now := ff.now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.UserID != "" {
		return isInRollout(ctx.UserID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout uses consistent hashing so users stay in their bucket.
func isInRollout(userID string, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	return int(h.Sum32()%100) < percent
}

// SetUserOverride pins a feature for one user.
func (ff *FeatureFlags) SetUserOverride(userID string, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns copies of all features sorted by name.
func (ff *FeatureFlags) GetAllFeatures() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make([]Feature, 0, len(ff.features))
	for _, v := range ff.features {
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
