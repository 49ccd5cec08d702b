package coroexec

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoOpLogger_NeverEnabled(t *testing.T) {
	var l NoOpLogger
	require.False(t, l.IsEnabled(LevelDebug))
	require.False(t, l.IsEnabled(LevelError))
	require.NotPanics(t, func() { l.Log(LogEntry{}) })
}

func TestWriterLogger_WritesJSONAboveThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelWarn, &buf)

	l.Log(LogEntry{Level: LevelInfo, Category: "spawn", Message: "should be filtered"})
	require.Zero(t, buf.Len())

	l.Log(LogEntry{Level: LevelError, Category: "timeout", Message: "demoted", CPUID: 2, TaskID: 7})
	require.NotZero(t, buf.Len())

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded))
	require.Equal(t, "timeout", decoded["category"])
	require.Equal(t, "demoted", decoded["message"])
	require.EqualValues(t, 2, decoded["cpu"])
	require.EqualValues(t, 7, decoded["task"])
}

func TestSetStructuredLogger_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	SetStructuredLogger(NewWriterLogger(LevelDebug, &buf))
	defer SetStructuredLogger(nil)

	LogSpawned(3, 42)

	require.True(t, strings.Contains(buf.String(), "\"task\":42"))
	require.True(t, strings.Contains(buf.String(), "\"cpu\":3"))
}

func TestLogLevel_String(t *testing.T) {
	require.Equal(t, "DEBUG", LevelDebug.String())
	require.Equal(t, "INFO", LevelInfo.String())
	require.Equal(t, "WARN", LevelWarn.String())
	require.Equal(t, "ERROR", LevelError.String())
}

func TestGetGlobalLogger_DefaultsToNoOp(t *testing.T) {
	SetStructuredLogger(nil)
	_, ok := getGlobalLogger().(NoOpLogger)
	require.True(t, ok)
}
