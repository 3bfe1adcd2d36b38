// Package accelsched is the public API for the command scheduler: Engine
// lifecycle, metrics, and error types. The scheduling engine itself lives
// under internal/.
package accelsched

import (
	"errors"

	"github.com/coredispatch/accelsched/internal/accerr"
)

// Error is the structured error type returned by Engine operations. It is
// an alias of the internal scheduler error so callers never need to
// import internal/accerr directly.
type Error = accerr.Error

// Code is an Error's high-level category.
type Code = accerr.Code

// Error categories, re-exported from internal/accerr (spec.md §7).
const (
	CodeBadPacket         = accerr.CodeBadPacket
	CodeBackendBusy       = accerr.CodeBackendBusy
	CodeMmioFailed        = accerr.CodeMmioFailed
	CodeAborted           = accerr.CodeAborted
	CodeDeviceStuck       = accerr.CodeDeviceStuck
	CodeNotConfigured     = accerr.CodeNotConfigured
	CodeAlreadyConfigured = accerr.CodeAlreadyConfigured
	CodeIOError           = accerr.CodeIOError
)

// IsCode reports whether err is an *Error (at any wrap depth) whose Code
// matches code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
