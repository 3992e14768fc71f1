package fiber

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is a structured runtime error carrying the operation, the fiber
// it concerns (if any), and an errno when the failure originated in a
// syscall (mmap, mprotect, the backing file for a fiber buffer).
type Error struct {
	Op      string    // operation that failed (e.g. "spawn", "mutex.lock", "vrb.init")
	FiberID ID        // fiber the error concerns, zero value if not applicable
	Code    ErrorCode // high-level error category
	Errno   syscall.Errno
	Msg     string
	Inner   error
}

func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.FiberID != (ID{}) {
		parts = append(parts, fmt.Sprintf("fiber=%s", e.FiberID))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("fiber: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("fiber: %s", msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode is a high-level error category, independent of the errno (if
// any) that produced it.
type ErrorCode string

const (
	ErrCodeInvalidArgument ErrorCode = "invalid argument"
	ErrCodeNoSuchFiber     ErrorCode = "no such fiber"
	ErrCodeSystem          ErrorCode = "system error"
	ErrCodeBufferMmap      ErrorCode = "buffer mmap failure"
	ErrCodeNoSuchKey       ErrorCode = "no such key"
	ErrCodeBufferNoSpace   ErrorCode = "buffer has no space"
	ErrCodeAio             ErrorCode = "aio error"
	ErrCodeTimedOut        ErrorCode = "timed out"
	ErrCodeDeadlock        ErrorCode = "deadlock"
)

// NewError creates a structured error with no fiber or errno attached.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewFiberError creates a structured error scoped to a specific fiber.
func NewFiberError(op string, id ID, code ErrorCode, msg string) *Error {
	return &Error{Op: op, FiberID: id, Code: code, Msg: msg}
}

// NewErrnoError creates a structured error from a syscall errno,
// classifying it via mapErrnoToCode.
func NewErrnoError(op string, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error()}
}

// WrapError wraps inner with operation context, preserving its code and
// errno when inner is already a structured Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if fe, ok := inner.(*Error); ok {
		return &Error{Op: op, FiberID: fe.FiberID, Code: fe.Code, Errno: fe.Errno, Msg: fe.Msg, Inner: fe.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: ErrCodeSystem, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.EINVAL:
		return ErrCodeInvalidArgument
	case syscall.ETIMEDOUT:
		return ErrCodeTimedOut
	case syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeBufferNoSpace
	case syscall.EDEADLK:
		return ErrCodeDeadlock
	default:
		return ErrCodeSystem
	}
}

// IsCode reports whether err is a structured Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// IsErrno reports whether err is a structured Error carrying the given
// errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Errno == errno
	}
	return false
}
