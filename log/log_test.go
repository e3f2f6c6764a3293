package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for input, want := range map[string]slog.Level{
		"trace": LevelTrace,
		"DEBUG": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"crit":  LevelCrit,
	} {
		got, err := ParseLevel(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}
	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestFromLegacyLevel(t *testing.T) {
	require.Equal(t, LevelCrit, FromLegacyLevel(0))
	require.Equal(t, LevelInfo, FromLegacyLevel(3))
	require.Equal(t, LevelTrace, FromLegacyLevel(5))
	require.Equal(t, LevelTrace, FromLegacyLevel(42))
}

func TestLevelAlignedString(t *testing.T) {
	for _, lvl := range []slog.Level{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelCrit} {
		require.Len(t, LevelAlignedString(lvl), 5)
	}
}

func captureOutput(t *testing.T, lvl slog.Level, fn func()) string {
	t.Helper()
	old := Root()
	defer SetDefault(old)

	var buf bytes.Buffer
	SetDefault(NewLogger(NewTerminalHandlerWithLevel(&buf, lvl, false)))
	fn()
	return buf.String()
}

func TestModuleGating(t *testing.T) {
	out := captureOutput(t, LevelTrace, func() {
		Trace(MirrorMonitoring, "suppressed by default")
		Debug(LoaderMonitoring, "loader debug")
		Info(EmulatorMonitoring, "emulator info")
	})
	require.NotContains(t, out, "suppressed by default")
	require.Contains(t, out, "loader debug")
	require.Contains(t, out, "emulator info")

	EnableModule(MirrorMonitoring)
	defer DisableModule(MirrorMonitoring)
	out = captureOutput(t, LevelTrace, func() {
		Trace(MirrorMonitoring, "mirror trace")
	})
	require.Contains(t, out, "mirror trace")
}

func TestEnableModules(t *testing.T) {
	EnableModules("trace_mod, mirror_mod")
	defer func() {
		DisableModule(TraceMonitoring)
		DisableModule(MirrorMonitoring)
	}()
	require.True(t, isModuleEnabled(TraceMonitoring))
	require.True(t, isModuleEnabled(MirrorMonitoring))
}

func TestLevelFiltering(t *testing.T) {
	out := captureOutput(t, LevelWarn, func() {
		Info(EmulatorMonitoring, "below threshold")
		Warn(EmulatorMonitoring, "at threshold")
	})
	require.NotContains(t, out, "below threshold")
	require.Contains(t, out, "at threshold")
}

func TestLoggerWith(t *testing.T) {
	out := captureOutput(t, LevelInfo, func() {
		Root().With("run", 7).Info(EmulatorMonitoring, "scoped")
	})
	require.Contains(t, out, "scoped")
	require.Contains(t, out, "run=7")
	require.True(t, strings.Contains(out, "module="+EmulatorMonitoring))
}
