package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel(" DEBUG "))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, "WARN", LevelWarn.String())
}

func TestFieldsReachTheCore(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := FromZap(zap.New(core)).With(Component("sweep"))

	log.Debug("dropped")
	log.Info("challenge settled",
		ChallengeID("c-1"),
		UserID("alice"),
		XPAmount(200),
		Duration("took", 1500*time.Microsecond),
		Err(errors.New("boom")),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "challenge settled", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "sweep", fields["component"])
	assert.Equal(t, "c-1", fields["challenge_id"])
	assert.Equal(t, "alice", fields["user_id"])
	assert.Equal(t, int64(200), fields["xp_amount"])
	assert.Equal(t, 1.5, fields["took_ms"])
	assert.Contains(t, fields, "error")
}

func TestContextRoundTrip(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core))
	ctx := WithContext(context.Background(), log.WithRequestID("req-9"))
	FromContext(ctx).Warn("slow request")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-9", logs.All()[0].ContextMap()[RequestIDKey])
}
