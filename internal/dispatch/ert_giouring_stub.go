//go:build !giouring

package dispatch

import "fmt"

// DoorbellRing is the portable stand-in used on builds without a real
// io_uring kernel interface: the ERT back-end's plain MMIO doorbell write
// in Submit already rings the (simulated) doorbell, so this type only
// exists to keep the build-tag boundary symmetric with ert_giouring.go.
type DoorbellRing struct{}

// NewDoorbellRing always fails on this build; callers that want a real
// doorbell ring must build with -tags giouring on Linux.
func NewDoorbellRing(entries uint32) (*DoorbellRing, error) {
	return nil, fmt.Errorf("giouring doorbell ring unavailable: build with -tags giouring")
}

// Ring is a no-op; the portable ERT path commits via MMIO store alone.
func (d *DoorbellRing) Ring(slot int) error { return nil }

// Close is a no-op.
func (d *DoorbellRing) Close() {}
