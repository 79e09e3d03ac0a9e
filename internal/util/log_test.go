package util_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github/chapool/pairwallet/internal/util"
)

func TestLogFromContextFallsBackToGlobal(t *testing.T) {
	l := util.LogFromContext(context.Background())
	assert.NotNil(t, l)
	assert.NotEqual(t, zerolog.Disabled, l.GetLevel())
}

func TestLogFromContextDisabled(t *testing.T) {
	ctx := util.DisableLogger(context.Background(), true)
	assert.Equal(t, zerolog.Disabled, util.LogFromContext(ctx).GetLevel())
}

func TestWithLogFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	ctx := base.WithContext(context.Background())

	ctx = util.WithLogFields(ctx, map[string]any{"session_id": "abc"})
	util.LogFromContext(ctx).Info().Msg("hello")

	assert.Contains(t, buf.String(), `"session_id":"abc"`)
}
