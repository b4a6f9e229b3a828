// Package zaperr implements structured errors that double as zap-loggable
// objects, so the nine error-taxonomy kinds (QueueFailure, RadioDriverError,
// LockTimeout, ParseError, AuthFailure, ResourceNotFound, Overflow, IoError,
// StorageError) all carry the same key/value context whether they end up in
// a log line or an error return.
package zaperr

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Kind tags an error with one of the taxonomy buckets from the error
// handling design, so callers can branch on it without string matching.
type Kind string

// The error-taxonomy kinds.
const (
	KindQueueFailure    Kind = "queue_failure"
	KindRadioDriver     Kind = "radio_driver_error"
	KindLockTimeout     Kind = "lock_timeout"
	KindParseError      Kind = "parse_error"
	KindAuthFailure     Kind = "auth_failure"
	KindResourceNotFound Kind = "resource_not_found"
	KindOverflow        Kind = "overflow"
	KindIoError         Kind = "io_error"
	KindStorageError    Kind = "storage_error"
)

// ZapError is the structured error type.
type ZapError struct {
	msg  string
	kind Kind
	kv   []interface{}
}

func (ze ZapError) Error() string {
	return ze.msg
}

// Kind returns the taxonomy bucket this error belongs to.
func (ze ZapError) Kind() Kind {
	return ze.kind
}

// MarshalLogObject lets zap log the message, kind, and key/value pairs as
// structured fields instead of flattening them into a string.
func (ze ZapError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	var invalid invalidPairs

	enc.AddString("msg", ze.msg)
	enc.AddString("kind", string(ze.kind))
	for i := 0; i < len(ze.kv); {
		if field, ok := ze.kv[i].(zapcore.Field); ok {
			field.AddTo(enc)
			i++
			continue
		}

		if i == len(ze.kv)-1 {
			zap.Any("ignored", ze.kv[i]).AddTo(enc)
			break
		}

		key, val := ze.kv[i], ze.kv[i+1]
		if keyStr, ok := key.(string); !ok {
			if cap(invalid) == 0 {
				invalid = make(invalidPairs, 0, len(ze.kv)/2)
			}
			invalid = append(invalid, invalidPair{i, key, val})
		} else {
			zap.Any(keyStr, val).AddTo(enc)
		}

		i += 2
	}

	if len(invalid) > 0 {
		zap.Array("invalid", invalid).AddTo(enc)
	}

	return nil
}

type invalidPair struct {
	position   int
	key, value interface{}
}

func (p invalidPair) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("position", int64(p.position))
	zap.Any("key", p.key).AddTo(enc)
	zap.Any("value", p.value).AddTo(enc)
	return nil
}

type invalidPairs []invalidPair

func (ps invalidPairs) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for i := range ps {
		enc.AppendObject(ps[i])
	}
	return nil
}

// New returns a kind-tagged structured error with message and key/value
// context, loggable via zap.Object or usable as a plain error.
func New(kind Kind, msg string, args ...interface{}) ZapError {
	return ZapError{msg: msg, kind: kind, kv: args}
}
