// internal/browser/context_utils.go
package browser

import (
	"context"
)

// CombineContext creates a context derived from ctx1 that is also canceled
// when ctx2 is. Values come from ctx1 only: ctx1 carries the CDP target,
// ctx2 carries the caller's deadline.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
