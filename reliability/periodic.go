package reliability

import (
	"context"
	"time"
)

// Every calls fn with the tick time once per period until ctx is cancelled.
// A call in progress always runs to completion; cancellation is observed
// between calls.
func Every(ctx context.Context, period time.Duration, fn func(now time.Time)) error {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			fn(now)
		}
	}
}
