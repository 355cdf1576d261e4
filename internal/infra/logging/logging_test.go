//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-billing/internal/config"
)

func TestNewJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger := newWithWriter(config.LogConfig{Level: "WARN", Format: "json"}, false, &buf)

	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, serviceName, line["service"])
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	newWithWriter(config.LogConfig{Level: "loud"}, false, &bytes.Buffer{})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestWithContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithEventID(WithUserID(context.Background(), "u-1"), "evt_1")
	With(ctx, &base).Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "u-1", line["user_id"])
	assert.Equal(t, "evt_1", line["event_id"])
	assert.NotContains(t, line, "trace_id")
	assert.Equal(t, "u-1", UserID(ctx))
	assert.Empty(t, UserID(context.Background()))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "***", Redact(""))
	assert.Equal(t, "***", Redact("short"))
	assert.Equal(t, "sk_l***", Redact("sk_live_abcdef123"))
}
