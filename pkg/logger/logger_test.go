package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "backoffice/internal/core/context"
)

func TestFromContext_AddsTraceAndActor(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := Wrap(zap.New(core))

	ctx := WithLogger(context.Background(), log)
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "t-1", RequestID: "r-1"})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "ops-7"})

	Info(ctx, "stock adjusted", "unit_id", "u-1")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "stock adjusted", entries[0].Message)
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "r-1", fields["request_id"])
	assert.Equal(t, "staff:ops-7", fields["actor"])
	assert.Equal(t, "u-1", fields["unit_id"])
}

func TestFromContext_AnonymousRequest(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := WithLogger(context.Background(), Wrap(zap.New(core)))

	Warn(ctx, "token rejected")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.NotContains(t, fields, "actor")
	assert.NotContains(t, fields, "trace_id")
}

func TestSetDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	core, logs := observer.New(zapcore.InfoLevel)
	SetDefault(Wrap(zap.New(core)))

	Info(context.Background(), "from default")
	assert.Equal(t, 1, logs.FilterMessage("from default").Len())
}
