// Package rocerr defines the readout card driver's error taxonomy.
//
// Every error the core returns is a *Error carrying a Kind and a bag of
// structured Fields (register offset, PCI address, link id, status word,
// ...). Callers compare against the Kind values below with HasKind (or
// KindOf); CLI tools render Kind, Msg and Fields without ever seeing a
// raw stack trace.
package rocerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories from the driver's error
// taxonomy. String-typed so it can be logged and compared cheaply.
type Kind string

// Configuration errors.
const (
	InvalidRegisterOffset  Kind = "InvalidRegisterOffset"
	BarOutOfRange          Kind = "BarOutOfRange"
	BufferUnaligned        Kind = "BufferUnaligned"
	BufferTooSmall         Kind = "BufferTooSmall"
	OffsetOutOfRange       Kind = "OffsetOutOfRange"
	ParameterNotApplicable Kind = "ParameterNotApplicable"
	UnsupportedGenPattern  Kind = "UnsupportedGeneratorPattern"
	UnsupportedGenSize     Kind = "UnsupportedGeneratorSize"
	UnsupportedLoopback    Kind = "UnsupportedLoopback"
	WrongBarForOperation   Kind = "WrongBarForOperation"
)

// Runtime (recoverable) errors.
const (
	TransferQueueFull = Kind("TransferQueueFull")
	ReadyQueueEmpty   = Kind("ReadyQueueEmpty")
	InvalidSuperpage  = Kind("InvalidSuperpage")
	ChannelBusy       = Kind("ChannelBusy")
	CardNotFound      = Kind("CardNotFound")
	AmbiguousCardID   = Kind("AmbiguousCardId")
)

// Protocol (command/response with the card) errors.
const (
	CommandTimeout     Kind = "CommandTimeout"
	LinkNotOn          Kind = "LinkNotOn"
	CommandNotAccepted Kind = "CommandNotAccepted"
	IllegalCommand     Kind = "IllegalCommand"
	RdyRxRejected      Kind = "RdyRxRejected"
	DataArrivalError   Kind = "DataArrivalError"
	PonCalibrationFail Kind = "PonCalibrationFailed"
	GbtCalibrationFail Kind = "GbtCalibrationFailed"
	TtcCalibrationFail Kind = "TtcCalibrationFailed"
)

// Fatal errors. Latch can record one so that a component returns it from
// every later call; the engines in internal/engine do not use Latch, so
// there a fatal error is returned only by the call that detects it.
const (
	FirmwareOvercommit         Kind = "FirmwareOvercommit"
	InvalidSerial              Kind = "InvalidSerial"
	BufferDeregistrationFailed Kind = "BufferDeregistrationFailed"
)

// Fields is structured context attached to an Error: register index, PCI
// address, link id, status word, and so on. Keys are short and stable so
// CLI tools can render them directly.
type Fields map[string]any

// Error is the concrete error type returned across the driver core.
type Error struct {
	Kind   Kind
	Msg    string
	Fields Fields
	cause  error
}

// New creates an *Error of the given kind with no wrapped cause.
func New(kind Kind, msg string, fields Fields) *Error {
	return &Error{Kind: kind, Msg: msg, Fields: fields}
}

// Wrap creates an *Error of the given kind wrapping cause, preserving the
// errors.Is/As chain through Unwrap.
func Wrap(kind Kind, msg string, cause error, fields Fields) *Error {
	return &Error{Kind: kind, Msg: msg, Fields: fields, cause: cause}
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		if e.cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s %v: %v", e.Kind, e.Msg, e.Fields, e.cause)
	}
	return fmt.Sprintf("%s: %s %v", e.Kind, e.Msg, e.Fields)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same Kind, or a Kind
// value equal to e.Kind. This lets callers write both
// errors.Is(err, someErr) and errors.Is(err, rocerr.ChannelBusy)-shaped
// comparisons via KindOf below.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// HasKind reports whether err is, or wraps, a *Error of the given kind.
func HasKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

var fatalKinds = map[Kind]bool{
	FirmwareOvercommit:         true,
	InvalidSerial:              true,
	BufferDeregistrationFailed: true,
}

// IsFatal reports whether kind poisons its owning component.
func IsFatal(kind Kind) bool { return fatalKinds[kind] }

// Latch is a small helper for components that poison themselves after a
// fatal error: once Set is called with a fatal error, every subsequent
// Check call returns the same error. No engine in internal/engine embeds
// a Latch.
type Latch struct {
	err error
}

// Set records err as the poisoning error. If err's kind is not fatal, Set
// is a no-op and the latch remains clear — non-fatal errors never poison
// a component.
func (l *Latch) Set(err error) {
	if l.err != nil || err == nil {
		return
	}
	if kind, ok := KindOf(err); ok && IsFatal(kind) {
		l.err = err
	}
}

// Check returns the latched error, if any.
func (l *Latch) Check() error { return l.err }

// Poisoned reports whether the latch has been tripped.
func (l *Latch) Poisoned() bool { return l.err != nil }
