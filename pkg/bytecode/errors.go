package bytecode

import (
	"errors"
	"fmt"
)

// ErrorKind classifies toolchain failures. Toolchain errors are reported to
// the caller of assemble/disassemble/load and never touch VM state.
type ErrorKind uint8

const (
	KindInvalidBytecode ErrorKind = iota + 1
	KindAssembler
	KindCompilation
	KindSerialization
	KindIO
	KindBackendUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidBytecode:
		return "invalid bytecode"
	case KindAssembler:
		return "assembler error"
	case KindCompilation:
		return "compilation error"
	case KindSerialization:
		return "serialization error"
	case KindIO:
		return "i/o error"
	case KindBackendUnavailable:
		return "backend unavailable"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// Error is a toolchain error.
type Error struct {
	Kind ErrorKind
	Line int // 1-based source line for assembler errors, 0 otherwise
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", e.Kind, e.Line, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind, so callers can write
// errors.Is(err, &bytecode.Error{Kind: bytecode.KindAssembler}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

// AssemblerError reports a source problem at the given line.
func AssemblerError(line int, format string, args ...any) *Error {
	return &Error{Kind: KindAssembler, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// InvalidBytecode reports a structurally unusable SilcFile.
func InvalidBytecode(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidBytecode, Msg: fmt.Sprintf(format, args...)}
}

// SerializationError reports a malformed .silc image.
func SerializationError(format string, args ...any) *Error {
	return &Error{Kind: KindSerialization, Msg: fmt.Sprintf(format, args...)}
}

// CompilationError wraps a failure reported by an external front end that
// produces assembly text.
func CompilationError(err error) *Error {
	return &Error{Kind: KindCompilation, Err: err}
}

// IOError wraps a filesystem or stream failure.
func IOError(path string, err error) *Error {
	return &Error{Kind: KindIO, Msg: path, Err: err}
}

// BackendUnavailable reports that a requested execution backend is absent.
func BackendUnavailable(backend string) *Error {
	return &Error{Kind: KindBackendUnavailable, Msg: backend}
}

// KindOf returns the kind of a toolchain error, or 0 if err is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
