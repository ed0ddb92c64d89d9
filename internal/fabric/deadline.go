package fabric

import (
	"context"
	"time"
)

// deriveContext narrows ctx to the tighter of its own deadline and
// timeoutSeconds, and additionally cancels if cancelCh fires, per §5's
// "deadline is the minimum of the caller's and system.default_timeout_seconds"
// and the cooperative cancellation-channel surface in §6's programmatic
// interface.
func deriveContext(ctx context.Context, cancelCh <-chan struct{}, timeoutSeconds int) (context.Context, context.CancelFunc) {
	cancels := make([]context.CancelFunc, 0, 2)

	if timeoutSeconds > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
		cancels = append(cancels, timeoutCancel)
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithCancel(ctx)
	cancels = append(cancels, cancel)

	if cancelCh != nil {
		go func() {
			select {
			case <-cancelCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return ctx, func() {
		for _, c := range cancels {
			c()
		}
	}
}
