// Package wmlog configures the module's zap logger the way
// ap_common/aputil does for Brightgate daemons: a sugared development logger
// with a custom time encoder, a daemon-tagged caller encoder, and a
// throttled-logger helper for noisy repeated warnings (e.g. a bad
// reconnect storm).
package wmlog

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	atomicLevel = zap.NewAtomicLevel()
	daemonName  string
	tloggers    = make(map[string]*ThrottledLogger)
)

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02T15:04:05.000Z0700"))
}

func callerEncoder(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	dir, fileName := filepath.Split(caller.File)
	dir = filepath.Base(dir)
	if dir != daemonName {
		fileName = filepath.Join(dir, fileName)
	}
	enc.AppendString(fmt.Sprintf("%s:%s:%d", daemonName, fileName, caller.Line))
}

// New returns a sugared zap logger tagged with the given daemon/subsystem
// name. Every log line includes a timestamp, level, and caller context.
func New(name string) *zap.SugaredLogger {
	daemonName = name

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = atomicLevel
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = timeEncoder
	cfg.EncoderConfig.EncodeCaller = callerEncoder

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("can't build logger: %v", err))
	}
	return logger.Sugar()
}

// SetLevel allows the log level to be adjusted at runtime, e.g. from a
// config property change.
func SetLevel(level string) error {
	var l zapcore.Level
	if err := (&l).UnmarshalText([]byte(level)); err != nil {
		return err
	}
	atomicLevel.SetLevel(l)
	return nil
}

// ThrottledLogger rate-limits a single call site so repeated identical
// warnings (a flapping radio link, a hammering client) don't flood the log.
type ThrottledLogger struct {
	slog      *zap.SugaredLogger
	next      time.Time
	baseDelay time.Duration
	maxDelay  time.Duration
	curDelay  time.Duration
}

func (t *ThrottledLogger) ready() bool {
	now := time.Now()
	if now.Before(t.next) {
		return false
	}
	t.next = now.Add(t.curDelay)
	t.curDelay *= 2
	if t.curDelay > t.maxDelay {
		t.curDelay = t.maxDelay
	}
	return true
}

// Warnf issues a throttled WARN message.
func (t *ThrottledLogger) Warnf(format string, args ...interface{}) {
	if t.ready() {
		t.slog.Warnf(format, args...)
	}
}

// Warnw issues a throttled WARN message with structured key/value context.
func (t *ThrottledLogger) Warnw(msg string, kv ...interface{}) {
	if t.ready() {
		t.slog.Warnw(msg, kv...)
	}
}

// Errorf issues a throttled ERROR message.
func (t *ThrottledLogger) Errorf(format string, args ...interface{}) {
	if t.ready() {
		t.slog.Errorf(format, args...)
	}
}

// Clear resets a throttled logger's backoff to its floor.
func (t *ThrottledLogger) Clear() {
	t.next = time.Now()
	t.curDelay = t.baseDelay
}

// Throttled returns a ThrottledLogger unique to the call site (file:line),
// allocating it on first use.
func Throttled(slog *zap.SugaredLogger, start, max time.Duration) *ThrottledLogger {
	var key string
	if _, file, line, ok := runtime.Caller(1); ok {
		key = file + ":" + strconv.Itoa(line)
	} else {
		key = "unknown"
	}

	t, ok := tloggers[key]
	if !ok {
		log := slog.Desugar().WithOptions(zap.AddCallerSkip(1)).Sugar()
		t = &ThrottledLogger{slog: log, next: time.Now(), baseDelay: start, curDelay: start, maxDelay: max}
		tloggers[key] = t
	}
	return t
}
