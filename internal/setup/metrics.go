package setup

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mikhailv/iterdns/internal/metrics"
)

// Metrics serves GET /metrics on addr.
func Metrics(ctx context.Context, addr string, logger *slog.Logger) {
	serveSide(ctx, "metrics", addr, metricsHandler(), logger)
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}
