package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			require.NoError(t, Initialize(tt.jsonOutput))
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			Cleanup()
			Logger = zap.NewNop().Sugar()
		})
	}
}

func TestInitializeWithVerbosity(t *testing.T) {
	require.NoError(t, InitializeWithVerbosity(true, VerbosityUser))
	defer func() { Logger = zap.NewNop().Sugar() }()

	assert.False(t, Logger.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.WarnLevel))

	require.NoError(t, InitializeWithVerbosity(true, VerbosityDebug))
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(-1))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestShouldOutput(t *testing.T) {
	assert.True(t, ShouldOutput(VerbosityUser, OutputResults))
	assert.False(t, ShouldOutput(VerbosityUser, OutputAdmission))
	assert.True(t, ShouldOutput(VerbosityInfo, OutputAdmission))
	assert.False(t, ShouldOutput(VerbosityDebug, OutputSnapshotDump))
	assert.True(t, ShouldOutput(VerbosityTrace, OutputSnapshotDump))
	assert.False(t, ShouldOutput(VerbosityDebug, OutputCategory(999)))
}

func TestFieldsFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, FieldsFromContext(ctx))

	ctx = WithJobID(ctx, "job-1")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithComponent(ctx, "pulse.poll")

	fields := FieldsFromContext(ctx)
	assert.Equal(t, []interface{}{
		FieldJobID, "job-1",
		FieldRequestID, "req-1",
		FieldComponent, "pulse.poll",
	}, fields)
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}

func TestLoggerFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := WithJobID(context.Background(), "job-7")
	LoggerFromContext(ctx, base).Infow("started")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "job-7", entry.ContextMap()[FieldJobID])
}

func TestSymbolWrappers(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core).Sugar()

	AddPulseSymbol(base).Infow("tick")
	AddAdmitSymbol(base).Infow("start")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "꩜", logs.All()[0].ContextMap()[FieldSymbol])
	assert.Equal(t, "⇥", logs.All()[1].ContextMap()[FieldSymbol])
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewNop().Sugar()
	assert.Same(t, l, OrNop(l))
}
