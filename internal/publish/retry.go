package publish

import (
	"context"
	"fmt"

	"github.com/KaramelBytes/statm8/internal/utils"
)

// Permanent marks an error that retrying cannot fix.
type Permanent struct{ Err error }

func (e *Permanent) Error() string { return e.Err.Error() }
func (e *Permanent) Unwrap() error { return e.Err }

// Deliver calls send until it succeeds, returns a *Permanent error, or
// 1+retries attempts have been made, waiting on bo between attempts.
func Deliver(ctx context.Context, retries int, bo *utils.Backoff, send func(context.Context) error) error {
	attempts := 1 + max(retries, 0)
	var lastErr error
	for i := range attempts {
		if i > 0 {
			if err := bo.Wait(ctx, 0); err != nil {
				return fmt.Errorf("canceled during backoff: %w", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = send(ctx)
		if lastErr == nil {
			return nil
		}
		if _, ok := lastErr.(*Permanent); ok {
			return lastErr
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
