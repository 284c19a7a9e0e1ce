// Package clock holds the context-aware wait shared by the request engine and
// the sync pass.
package clock

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is done. A non-positive d only reports
// ctx.Err().
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
