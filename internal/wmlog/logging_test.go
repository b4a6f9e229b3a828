package wmlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return zap.New(core).Sugar(), logs
}

func TestThrottledLoggerSuppressesRepeats(t *testing.T) {
	slog, logs := observedLogger()
	tl := Throttled(slog, time.Hour, time.Hour)

	tl.Warnf("flap %d", 1)
	tl.Warnf("flap %d", 2)
	tl.Warnw("flap", "n", 3)
	assert.Equal(t, 1, logs.Len(), "repeats inside the throttle window must be dropped")
}

func TestThrottledLoggerClearResetsWindow(t *testing.T) {
	slog, logs := observedLogger()
	tl := Throttled(slog, time.Hour, time.Hour)

	tl.Warnf("first")
	tl.Clear()
	tl.Warnw("after clear")
	assert.Equal(t, 2, logs.Len())
}
