// Package accerr implements the structured error type shared by the
// scheduler, dispatch back-ends, and public API, grounded on the teacher's
// root errors.go (*Error with Op/Code/Errno/Msg/Inner, a legacy string
// sentinel type for backward-compat comparisons, and errno classification).
package accerr

import (
	"fmt"
	"syscall"
)

// Code is a high-level error category, corresponding to spec.md §7's error
// kinds.
type Code string

const (
	CodeBadPacket         Code = "bad packet"
	CodeBackendBusy       Code = "backend busy"
	CodeMmioFailed        Code = "mmio failed"
	CodeAborted           Code = "aborted"
	CodeDeviceStuck       Code = "device stuck"
	CodeNotConfigured     Code = "not configured"
	CodeAlreadyConfigured Code = "already configured"
	CodeIOError           Code = "I/O error"
)

// Error is a structured scheduler error with enough context to identify
// which command/core/client it happened against.
type Error struct {
	Op    string        // operation that failed, e.g. "try_start", "configure"
	CmdID uint64        // command id (0 if not applicable)
	Slot  int           // slot index (-1 if not applicable)
	Code  Code          // high-level category
	Errno syscall.Errno // 0 if not applicable
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	switch {
	case e.CmdID != 0 && e.Slot >= 0:
		return fmt.Sprintf("accelsched: %s (op=%s cmd=%d slot=%d)", msg, e.Op, e.CmdID, e.Slot)
	case e.CmdID != 0:
		return fmt.Sprintf("accelsched: %s (op=%s cmd=%d)", msg, e.Op, e.CmdID)
	case e.Op != "":
		return fmt.Sprintf("accelsched: %s (op=%s)", msg, e.Op)
	default:
		return fmt.Sprintf("accelsched: %s", msg)
	}
}

// Unwrap supports errors.Is/As against the wrapped inner error.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison against a bare Code or another *Error,
// matching on Code alone (legacy UblkError-style comparison in the
// teacher's Error.Is).
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if c, ok := target.(Code); ok {
		return e.Code == c
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

func (c Code) Error() string { return string(c) }

// New builds a structured error for a named operation.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Slot: -1, Msg: msg}
}

// ForCommand builds a structured error scoped to a specific command.
func ForCommand(op string, cmdID uint64, slot int, code Code, msg string) *Error {
	return &Error{Op: op, CmdID: cmdID, Slot: slot, Code: code, Msg: msg}
}

// WrapErrno wraps a syscall errno with its mapped category.
func WrapErrno(op string, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Slot: -1}
}

func mapErrnoToCode(errno syscall.Errno) Code {
	switch errno {
	case syscall.EINVAL, syscall.E2BIG:
		return CodeBadPacket
	case syscall.EBUSY, syscall.EAGAIN:
		return CodeBackendBusy
	case syscall.EIO, syscall.EFAULT:
		return CodeMmioFailed
	case syscall.ETIMEDOUT:
		return CodeDeviceStuck
	default:
		return CodeIOError
	}
}
