package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitquest/duel-engine/internal/domain/shared"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "duel-engine", cfg.App.Name)
	assert.Equal(t, time.UTC, cfg.Engine.Location)
	assert.Equal(t, int64(10_000), cfg.Engine.MaxStakeXP)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.True(t, cfg.Features.IsEnabled(shared.FeaturePersonaDefaults, "alice"))
	assert.False(t, cfg.Features.IsEnabled(shared.FeatureEarlyDecisive, "alice"))
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  name: duel-staging
  environment: staging
engine:
  timezone: Europe/Berlin
  max_stake_xp: 500
  sweep_interval: 30s
http:
  port: 9000
features:
  challenge.early_decisive: "true"
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "duel-staging", cfg.App.Name)
	assert.Equal(t, EnvStaging, cfg.App.Environment)
	assert.Equal(t, "Europe/Berlin", cfg.Engine.Location.String())
	assert.Equal(t, int64(500), cfg.Engine.MaxStakeXP)
	assert.Equal(t, 30*time.Second, cfg.Engine.SweepInterval)
	assert.Equal(t, 9100, cfg.HTTP.Port, "environment wins over the file")
	assert.True(t, cfg.Features.IsEnabled(shared.FeatureEarlyDecisive, "anyone"))
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG_FILE", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APP_NAME=from-dotenv\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("APP_NAME", "from-env")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.App.Name)
}

func TestValidate_Production(t *testing.T) {
	cfg := Default()
	cfg.App.Environment = EnvProduction

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "HTTP_GATEWAY_TOKEN")

	cfg.Database.URL = "postgres://localhost/duel"
	cfg.HTTP.GatewayToken = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Ranges(t *testing.T) {
	cfg := Default()
	cfg.Engine.SweepConcurrency = 0
	cfg.HTTP.Port = 0
	cfg.App.Environment = "qa"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENGINE_SWEEP_CONCURRENCY")
	assert.Contains(t, err.Error(), "HTTP_PORT")
	assert.Contains(t, err.Error(), "APP_ENV")
}

func TestFeatureFlags_RolloutIsStablePerUser(t *testing.T) {
	ff := NewFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(shared.FeatureEarlyDecisive, 50))

	var on int
	for i := 0; i < 1000; i++ {
		id := "user-" + strconv.Itoa(i)
		first := ff.IsEnabled(shared.FeatureEarlyDecisive, id)
		assert.Equal(t, first, ff.IsEnabled(shared.FeatureEarlyDecisive, id))
		if first {
			on++
		}
	}
	assert.InDelta(t, 500, on, 100)
}

func TestFeatureFlags_OverridesAndErrors(t *testing.T) {
	ff := NewFeatureFlags()

	ff.SetUserOverride("qa-1", shared.FeaturePersonaEnrichment, true)
	assert.True(t, ff.IsEnabled(shared.FeaturePersonaEnrichment, "qa-1"))
	assert.False(t, ff.IsEnabled(shared.FeaturePersonaEnrichment, "qa-2"))
	ff.ClearUserOverrides("qa-1")
	assert.False(t, ff.IsEnabled(shared.FeaturePersonaEnrichment, "qa-1"))

	assert.True(t, ff.Evaluate(shared.FeaturePersonaEnrichment, &FeatureContext{UserID: "ops", IsAdmin: true}))

	ff.ApplyOverrides(map[string]string{shared.FeaturePersonaEnrichment: "100%", "unknown.flag": "true"})
	assert.True(t, ff.IsEnabled(shared.FeaturePersonaEnrichment, "qa-2"))

	assert.ErrorIs(t, ff.SetRolloutPercent("unknown.flag", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(shared.FeatureEarlyDecisive, 101), ErrInvalidRolloutPercent)
	assert.Len(t, ff.GetAllFeatures(), 3)
}

func TestFeatureNameToEnvKey(t *testing.T) {
	assert.Equal(t, "FEATURE_CHALLENGE_EARLY_DECISIVE", featureNameToEnvKey(shared.FeatureEarlyDecisive))
}
