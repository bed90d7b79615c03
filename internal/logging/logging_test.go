package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestContextWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf)

	ctx := ContextWithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))

	assert.Nil(t, FromContext(context.Background()))

	plain := context.Background()
	assert.Equal(t, plain, ContextWithLogger(plain, nil))
}

func TestResolve(t *testing.T) {
	var buf bytes.Buffer
	scoped := bufferLogger(&buf)
	fallback := bufferLogger(&bytes.Buffer{})

	assert.Same(t, scoped, Resolve(ContextWithLogger(context.Background(), scoped), fallback))
	assert.Same(t, fallback, Resolve(context.Background(), fallback))
	assert.Same(t, slog.Default(), Resolve(context.Background(), nil))
}

func TestWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), bufferLogger(&buf))
	ctx = WithAttrs(ctx, "command", "stats")
	ctx = WithAttrs(ctx, "invocation_id", "abc")

	FromContext(ctx).Info("hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "stats", record["command"])
	assert.Equal(t, "abc", record["invocation_id"])

	base := context.Background()
	assert.Equal(t, base, WithAttrs(base))
}
