// Package status defines the success-or-failure value returned by every
// operation in the format engine that can fail, per the taxonomy of
// Corruption / IOError / NotFound / InvalidArgument / NotSupported errors.
package status

import "fmt"

// Kind classifies a Status. The zero value is OK.
type Kind int

const (
	OK Kind = iota
	NotFound
	Corruption
	IOError
	InvalidArgument
	NotSupported
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "OK"
	case NotFound:
		return "NotFound"
	case Corruption:
		return "Corruption"
	case IOError:
		return "IOError"
	case InvalidArgument:
		return "InvalidArgument"
	case NotSupported:
		return "NotSupported"
	default:
		return "Unknown"
	}
}

// Status is a kind tag plus a human-readable message. It implements the
// error interface so it composes with ordinary Go error handling.
type Status struct {
	kind Kind
	msg  string
}

// OKStatus returns the success value.
func OKStatus() Status { return Status{kind: OK} }

func New(kind Kind, msg string) Status {
	return Status{kind: kind, msg: msg}
}

func NotFoundf(format string, args ...any) Status {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Corruptionf(format string, args ...any) Status {
	return New(Corruption, fmt.Sprintf(format, args...))
}

func IOErrorf(format string, args ...any) Status {
	return New(IOError, fmt.Sprintf(format, args...))
}

func InvalidArgumentf(format string, args ...any) Status {
	return New(InvalidArgument, fmt.Sprintf(format, args...))
}

func (s Status) Kind() Kind  { return s.kind }
func (s Status) Ok() bool    { return s.kind == OK }
func (s Status) IsNotFound() bool   { return s.kind == NotFound }
func (s Status) IsCorruption() bool { return s.kind == Corruption }

// Error implements the error interface. An OK status renders as "OK" so
// callers that accidentally log a zero value still get something sane.
func (s Status) Error() string {
	if s.kind == OK {
		return "OK"
	}
	if s.msg == "" {
		return s.kind.String()
	}
	return fmt.Sprintf("%s: %s", s.kind, s.msg)
}

// FromError wraps a plain error as an IOError status, the usual source of
// untyped failures (Env implementations surface os/io errors directly).
func FromError(err error) Status {
	if err == nil {
		return OKStatus()
	}
	if s, ok := err.(Status); ok {
		return s
	}
	return New(IOError, err.Error())
}
