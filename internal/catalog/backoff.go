package catalog

import (
	"context"
	"time"
)

// sleepFor waits ms milliseconds or returns ctx.Err() if canceled first,
// backing exponentialSleep's exponential-backoff retry of the oracle
// contract proposal call: retry up to 3 times with exponential backoff.
func sleepFor(ctx context.Context, ms int) error {
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
