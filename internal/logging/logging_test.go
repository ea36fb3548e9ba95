package logging

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func resetLoggerForTest() {
	initOnce = sync.Once{}
	logger = nil
	exitFunc = os.Exit
}

func TestParseLevelMappings(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("unknown"))
}

func TestLoggerSingleton(t *testing.T) {
	resetLoggerForTest()
	first := L()
	second := L()
	assert.Same(t, first, second)
}

func TestJSONFormatSelected(t *testing.T) {
	resetLoggerForTest()
	t.Setenv("SITEWARD_LOG_FORMAT", "json")
	t.Setenv("SITEWARD_LOG_LEVEL", "debug")

	l := L()
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	resetLoggerForTest()
}

func TestFatalInvokesExitFunction(t *testing.T) {
	resetLoggerForTest()

	var exitCode int
	exitFunc = func(code int) {
		exitCode = code
	}

	// Swap in an observer core so the failure message stays out of test output.
	core, recorded := observer.New(zapcore.ErrorLevel)
	logger = zap.New(core)
	initOnce.Do(func() {}) // mark as done so L() uses the injected logger

	Fatal("boom", zap.String("key", "value"))

	require.Equal(t, 1, exitCode)
	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "boom", recorded.All()[0].Message)

	resetLoggerForTest()
}
