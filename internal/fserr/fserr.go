// Package fserr defines the error taxonomy shared by path handling, the
// native backends and the tree engines.
package fserr

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Kind classifies a failure.
type Kind int

const (
	NativeFailure Kind = iota
	InvalidPath
	UnsupportedPath
	NotFound
	DirectoryExpectedButFileFound
	AlreadyExists
	DirectoryNotEmpty
	ReadOnly
	AccessDenied
	SharingViolation
	NotSameDevice
	TransactionConflict
)

var kindNames = [...]string{
	NativeFailure:                 "NativeFailure",
	InvalidPath:                   "InvalidPath",
	UnsupportedPath:               "UnsupportedPath",
	NotFound:                      "NotFound",
	DirectoryExpectedButFileFound: "DirectoryExpectedButFileFound",
	AlreadyExists:                 "AlreadyExists",
	DirectoryNotEmpty:             "DirectoryNotEmpty",
	ReadOnly:                      "ReadOnly",
	AccessDenied:                  "AccessDenied",
	SharingViolation:              "SharingViolation",
	NotSameDevice:                 "NotSameDevice",
	TransactionConflict:           "TransactionConflict",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrNativeFailure       = &kindSentinel{NativeFailure}
	ErrInvalidPath         = &kindSentinel{InvalidPath}
	ErrUnsupportedPath     = &kindSentinel{UnsupportedPath}
	ErrNotFound            = &kindSentinel{NotFound}
	ErrFileNotDirectory    = &kindSentinel{DirectoryExpectedButFileFound}
	ErrAlreadyExists       = &kindSentinel{AlreadyExists}
	ErrDirectoryNotEmpty   = &kindSentinel{DirectoryNotEmpty}
	ErrReadOnly            = &kindSentinel{ReadOnly}
	ErrAccessDenied        = &kindSentinel{AccessDenied}
	ErrSharingViolation    = &kindSentinel{SharingViolation}
	ErrNotSameDevice       = &kindSentinel{NotSameDevice}
	ErrTransactionConflict = &kindSentinel{TransactionConflict}
)

type kindSentinel struct{ kind Kind }

func (s *kindSentinel) Error() string { return s.kind.String() }

// Error is a classified filesystem or path error.
type Error struct {
	Err  error
	Op   string
	Path string
	Code uint32 // native error code, 0 when not from a native call
	Kind Kind
}

// New returns an *Error of the given kind.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf returns an *Error whose cause is a formatted message.
func Errorf(kind Kind, op, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Op != "" && e.Path != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := target.(*kindSentinel)
	return ok && s.kind == e.Kind
}

// KindOf reports the Kind of err. Errors that are not classified map to
// NativeFailure; nil maps to NativeFailure with ok=false.
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return NativeFailure, false
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return kindOfErrno(errno), true
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NotFound, true
	case errors.Is(err, fs.ErrExist):
		return AlreadyExists, true
	case errors.Is(err, fs.ErrPermission):
		return AccessDenied, true
	}
	return NativeFailure, true
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsTransient reports whether a retry may succeed without any change made
// by the caller.
func IsTransient(err error) bool {
	return Is(err, SharingViolation)
}

// CodeOf returns the native error code carried by err. Classified errors
// without a native code report the representative code of their Kind.
func CodeOf(err error) uint32 {
	if err == nil {
		return 0
	}
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Code != 0 {
			return fe.Code
		}
		return codeForKind[fe.Kind]
	}
	kind, _ := KindOf(err)
	return codeForKind[kind]
}

// WithPath returns a copy of err annotated with op and path when err is an
// *Error lacking them; other errors are wrapped as NativeFailure.
func WithPath(err error, op, path string) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		cp := *fe
		if cp.Op == "" {
			cp.Op = op
		}
		if cp.Path == "" {
			cp.Path = path
		}
		return &cp
	}
	kind, _ := KindOf(err)
	return &Error{Kind: kind, Op: op, Path: path, Err: err, Code: CodeOf(err)}
}
