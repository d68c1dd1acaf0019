package setup

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/pprof"
	pp "runtime/pprof"
)

func Pprof(ctx context.Context, addr string, logger *slog.Logger) {
	serveSide(ctx, "pprof", addr, pprofHandler(), logger)
}

// pprofHandler exposes the profiles at the root, e.g. /heap or /goroutine?debug=2.
func pprofHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, p := range pp.Profiles() {
		mux.Handle("/"+p.Name(), pprof.Handler(p.Name()))
	}
	return mux
}
