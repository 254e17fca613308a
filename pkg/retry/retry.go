// Package retry provides a backoff-retry helper shared by the collaborators
// that talk to flaky external resources: DNS lookups (pkg/resolvename) and
// default-gateway queries (pkg/routepoker). Adapted from the teacher's
// pkg/client/retry.go, unchanged in behavior.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/dlib/dutil"
)

const defaultDelay = 100 * time.Millisecond
const defaultMaxDelay = 3 * time.Second

// Do runs f repeatedly with exponential backoff until it returns nil, ctx is
// cancelled, or maxTime elapses. durations takes 0 to 3 values: initial
// delay, max delay, and a total time budget.
func Do(ctx context.Context, f func(context.Context) error, durations ...time.Duration) (err error) {
	delay := defaultDelay
	maxDelay := defaultMaxDelay
	maxTime := time.Duration(0)

	switch len(durations) {
	case 3:
		maxTime = durations[2]
		fallthrough
	case 2:
		maxDelay = durations[1]
		if maxDelay == 0 {
			maxDelay = defaultMaxDelay
		}
		fallthrough
	case 1:
		delay = durations[0]
		if delay == 0 {
			delay = defaultDelay
		}
	}
	if maxDelay < delay {
		maxDelay = delay
	}

	done := make(chan bool)
	if maxTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		go func() {
			select {
			case <-done:
			case <-ctx.Done():
			case <-time.After(maxTime):
				err = fmt.Errorf("retry: timed out after %s", maxTime)
				cancel()
			}
		}()
	}

	defer func() {
		if pe := dutil.PanicToError(recover()); pe != nil {
			err = pe
		}
		close(done)
	}()

	for {
		if funcErr := f(ctx); funcErr == nil {
			return nil
		} else {
			dlog.Debugf(ctx, "retry: waiting %s after error: %v", delay, funcErr)
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
