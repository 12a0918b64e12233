package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", LevelDebug},
		{"Info", LevelInfo},
		{"warn", LevelWarning},
		{"WARNING", LevelWarning},
		{"error", LevelError},
		{"fatal", LevelFatal},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}

	got, err := ParseLevel("loud")
	assert.Error(t, err)
	assert.Equal(t, LevelInfo, got)
}

// restore puts the package globals back after a test reconfigures them
func restore(t *testing.T) {
	t.Helper()
	level := GetLevel()
	logger := Logger
	t.Cleanup(func() {
		SetLevel(level)
		SetSampleRate(1)
		Logger = logger
		slog.SetDefault(logger)
	})
}

func TestConfigure_JSON(t *testing.T) {
	restore(t)

	var buf bytes.Buffer
	require.NoError(t, Configure("debug", FormatJSON, &buf))
	assert.Equal(t, LevelDebug, GetLevel())

	Debug("rule pack processed", "identifier", "core", "rules", 2)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "rule pack processed", record["msg"])
	assert.Equal(t, "core", record["identifier"])
	assert.Equal(t, float64(2), record["rules"])

	// the default slog logger is replaced too
	buf.Reset()
	slog.Info("via default")
	assert.Contains(t, buf.String(), "via default")
}

func TestConfigure_ConsoleFiltersByLevel(t *testing.T) {
	restore(t)

	var buf bytes.Buffer
	require.NoError(t, Configure("warn", FormatConsole, &buf))

	Info("hidden")
	assert.Empty(t, buf.String())

	Warn("shown", "identifier", "core")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "core")

	buf.Reset()
	SetLevel(LevelTrace)
	Trace("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestConfigure_Errors(t *testing.T) {
	restore(t)

	var buf bytes.Buffer
	assert.Error(t, Configure("loud", FormatJSON, &buf))
	assert.Error(t, Configure("info", "xml", &buf))
}

func TestSampling_CountersAlwaysIncrement(t *testing.T) {
	restore(t)

	var buf bytes.Buffer
	require.NoError(t, Configure("info", FormatJSON, &buf))
	SetSampleRate(1000000)

	warnings := TotalWarnings.Load()
	errs := TotalErrors.Load()
	for i := 0; i < 10; i++ {
		Warn("sampled warning")
		Error("sampled error")
	}

	assert.Equal(t, warnings+10, TotalWarnings.Load())
	assert.Equal(t, errs+10, TotalErrors.Load())
}

func TestRecordCounters(t *testing.T) {
	failed := FailedPacks.Load()
	slow := SlowPacks.Load()
	warnings := TotalWarnings.Load()

	RecordFailedPack()
	RecordSlowPack()

	assert.Equal(t, failed+1, FailedPacks.Load())
	assert.Equal(t, slow+1, SlowPacks.Load())
	assert.Equal(t, warnings+2, TotalWarnings.Load())
}
