package setup

import (
	"context"
	"os/signal"
	"syscall"
)

// ListenStopSignal returns a context cancelled on SIGINT or SIGTERM.
func ListenStopSignal(parentCtx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
}
