package sched

import (
	"context"
	"time"

	"github.com/coredispatch/accelsched/internal/accerr"
	"github.com/coredispatch/accelsched/internal/constants"
	"github.com/coredispatch/accelsched/internal/core"
)

// Teardown implements per-client close (spec.md §4.10): mark the client
// aborted so the worker stops admitting its queued commands, then poll its
// outstanding count until it reaches zero. StuckThreshold consecutive
// polls with no progress flags the device stuck rather than blocking the
// caller forever.
func Teardown(ctx context.Context, ec *core.ExecCore, c *core.ClientContext) error {
	return teardown(ctx, ec, c, constants.TeardownPollInterval)
}

// teardown is Teardown parameterized on its poll interval, so tests can
// drive the stuck-threshold path without waiting out the real
// TeardownPollInterval/StuckThreshold product.
func teardown(ctx context.Context, ec *core.ExecCore, c *core.ClientContext, pollInterval time.Duration) error {
	c.Abort.Store(true)

	if c.Outstanding.Load() == 0 {
		ec.Clients.Detach(c)
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	last := c.Outstanding.Load()
	stuck := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		cur := c.Outstanding.Load()
		if cur == 0 {
			break
		}

		if cur == last {
			stuck++
			if stuck >= constants.StuckThreshold {
				ec.NeedsReset.Store(true)
				c.NeedsReset.Store(true)
				return accerr.New("teardown", accerr.CodeDeviceStuck, "client teardown made no progress draining outstanding commands")
			}
		} else {
			stuck = 0
		}
		last = cur
	}

	ec.Clients.Detach(c)
	return nil
}
