package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-ch
		cancel()
	}()

	return ctx, cancel
}

// OnSignal runs fn each time one of sigs arrives, until ctx is done. The
// client uses it for the suspend and resume lifecycle hooks.
func OnSignal(ctx context.Context, fn func(context.Context, os.Signal), sigs ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-ch:
				fn(ctx, s)
			}
		}
	}()
}
