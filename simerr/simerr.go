// Package simerr defines the error taxonomy shared by the kernels, the KV
// cache and both accelerator backends.
//
// Every failure raised inside a decode session carries one Kind. Callers
// match on the kind with errors.Is against the exported sentinels:
//
//	if errors.Is(err, simerr.ErrCacheOverflow) { ... }
package simerr

import (
	"errors"
	"fmt"
)

// Kind classifies a simulator failure.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors outside the taxonomy.
	KindUnknown Kind = iota
	// KindConfigMismatch means loaded weights disagree with the engine
	// configuration (e.g., pack dimension != engine dimension).
	KindConfigMismatch
	// KindShapeMismatch means a kernel or cache operand has the wrong rank
	// or dimension.
	KindShapeMismatch
	// KindCacheOverflow means an append into a full KV cache.
	KindCacheOverflow
	// KindInvalidRequest means the caller's request is malformed (prompt
	// shape, generation length, missing weights, re-entrant start).
	KindInvalidRequest
)

// String returns the snake_case name of the kind, used as a metrics label.
func (k Kind) String() string {
	switch k {
	case KindConfigMismatch:
		return "config_mismatch"
	case KindShapeMismatch:
		return "shape_mismatch"
	case KindCacheOverflow:
		return "cache_overflow"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// Error is a typed simulator failure.
type Error struct {
	// Kind classifies the failure.
	Kind Kind
	// Op names the operation that failed (e.g., "gemm", "kv_append").
	Op string
	// Msg is the human-readable detail.
	Msg string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return e.Msg
	}
	return e.Op + ": " + e.Msg
}

// Is reports whether target is an *Error of the same kind. A sentinel with
// an empty Op and Msg matches every error of its kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrConfigMismatch = &Error{Kind: KindConfigMismatch}
	ErrShapeMismatch  = &Error{Kind: KindShapeMismatch}
	ErrCacheOverflow  = &Error{Kind: KindCacheOverflow}
	ErrInvalidRequest = &Error{Kind: KindInvalidRequest}
)

// New creates an Error of the given kind.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// ShapeMismatch is a shorthand for New(KindShapeMismatch, ...).
func ShapeMismatch(op, format string, args ...interface{}) *Error {
	return New(KindShapeMismatch, op, format, args...)
}

// InvalidRequest is a shorthand for New(KindInvalidRequest, ...).
func InvalidRequest(op, format string, args ...interface{}) *Error {
	return New(KindInvalidRequest, op, format, args...)
}

// KindOf returns the Kind carried by err, looking through wrapping.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Signature folds an error message into the stable 32-bit code exposed
// through the LAST_ERROR register: the sum of its UTF-8 bytes modulo 2^32.
// A nil error has signature 0.
func Signature(err error) uint32 {
	if err == nil {
		return 0
	}
	return SignatureOf(err.Error())
}

// SignatureOf computes the LAST_ERROR code of a message.
func SignatureOf(msg string) uint32 {
	var sum uint32
	for i := 0; i < len(msg); i++ {
		sum += uint32(msg[i])
	}
	return sum
}
