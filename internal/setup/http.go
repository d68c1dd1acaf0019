package setup

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// serveSide runs an auxiliary HTTP handler on addr until ctx is done. Empty
// addr disables it. Failures are logged and never stop the main listener.
func serveSide(ctx context.Context, name, addr string, handler http.Handler, logger *slog.Logger) {
	if addr == "" {
		return
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info(name+" handler started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to serve "+name+" handler", "err", err)
		}
	}()

	context.AfterFunc(ctx, func() {
		_ = srv.Close()
		logger.Info(name + " handler stopped")
	})
}
