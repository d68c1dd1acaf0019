package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/cors"

	"github.com/mikhailv/iterdns/internal/iterative"
	"github.com/mikhailv/iterdns/internal/metrics"
)

type TraceResolver interface {
	Trace(ctx context.Context, domain string, observe func(iterative.Hop)) (netip.Addr, error)
}

type HTTPServer struct {
	logger   *slog.Logger
	resolver TraceResolver
	server   http.Server
}

func NewHTTPServer(addr string, logger *slog.Logger, resolver TraceResolver) *HTTPServer {
	return &HTTPServer{
		logger:   logger,
		resolver: resolver,
		server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *HTTPServer) Serve(ctx context.Context) error {
	s.server.Handler = s.createHandler()

	context.AfterFunc(ctx, func() {
		s.logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("failed to shutdown server", "err", err)
		}
	})

	s.logger.Info("server starting...", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *HTTPServer) createHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /api/resolve", s.wrapHandler(s.handleResolve))
	mux.Handle("GET /api/resolve/ws", http.HandlerFunc(s.handleResolveStream))
	return cors.Default().Handler(mux)
}

func (s *HTTPServer) wrapHandler(handler func(w http.ResponseWriter, req *http.Request) (statusCode int, err error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path := r.Method, r.URL.Path
		operation := fmt.Sprintf("%s %s", method, path)
		defer metrics.TrackDuration(operation)()
		statusCode, err := handler(w, r)
		if err != nil {
			w.WriteHeader(statusCode)
			s.logger.Error(err.Error(), "method", method, "path", path, "statusCode", statusCode)
		}
		metrics.TrackStatus(operation, strconv.Itoa(statusCode))
	})
}

type resolveResponse struct {
	Domain  string     `json:"domain"`
	Address string     `json:"address,omitempty"`
	Error   string     `json:"error,omitempty"`
	TookMs  float64    `json:"took_ms"`
	Hops    []traceHop `json:"hops,omitempty"`
}

type traceHop struct {
	Server     string  `json:"server"`
	Phase      string  `json:"phase"`
	Lookup     string  `json:"lookup,omitempty"`
	ResultType string  `json:"result_type"`
	Info       string  `json:"info"`
	RTTMs      float64 `json:"rtt_ms"`
	ElapsedMs  float64 `json:"elapsed_ms"`
}

func newTraceHop(hop iterative.Hop) traceHop {
	return traceHop{
		Server:     hop.Server.String(),
		Phase:      hop.Phase.String(),
		Lookup:     hop.Lookup,
		ResultType: hop.Outcome.ResultType(),
		Info:       hop.Outcome.Info(),
		RTTMs:      durationMs(hop.RTT),
		ElapsedMs:  durationMs(hop.Elapsed),
	}
}

// streamMessage is one websocket message: a hop while resolving, then the result.
type streamMessage struct {
	Type   string           `json:"type"`
	Hop    *traceHop        `json:"hop,omitempty"`
	Result *resolveResponse `json:"result,omitempty"`
}

// handleResolveStream sends every hop as soon as it completes and finishes
// with the result. Closing the socket cancels the resolution.
func (s *HTTPServer) handleResolveStream(w http.ResponseWriter, req *http.Request) {
	defer metrics.TrackDuration("GET /api/resolve/ws")()

	domain := strings.TrimSuffix(strings.TrimSpace(req.URL.Query().Get("domain")), ".")
	if domain == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, req, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.logger.Error("failed to accept websocket connection", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	logger := s.logger.With("client", req.RemoteAddr, "domain", domain)
	ctx := conn.CloseRead(req.Context())

	st := time.Now()
	addr, err := s.resolver.Trace(ctx, domain, func(hop iterative.Hop) {
		h := newTraceHop(hop)
		if err := wsjson.Write(ctx, conn, streamMessage{Type: "hop", Hop: &h}); err != nil {
			logger.Debug("failed to send hop", "err", err)
		}
	})
	if ctx.Err() != nil {
		logger.Debug("websocket connection closed", "err", ctx.Err())
		metrics.TrackStatus("GET /api/resolve/ws", "closed")
		return
	}

	result := resolveResponse{Domain: domain, TookMs: durationMs(time.Since(st))}
	if err != nil {
		result.Error = err.Error()
		metrics.TrackStatus("GET /api/resolve/ws", "failed")
	} else {
		result.Address = addr.String()
		metrics.TrackStatus("GET /api/resolve/ws", "success")
	}
	if err := wsjson.Write(ctx, conn, streamMessage{Type: "result", Result: &result}); err != nil {
		logger.Debug("failed to send result", "err", err)
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (s *HTTPServer) handleResolve(w http.ResponseWriter, req *http.Request) (statusCode int, err error) {
	domain := strings.TrimSuffix(strings.TrimSpace(req.URL.Query().Get("domain")), ".")
	if domain == "" {
		return http.StatusBadRequest, errors.New("http: domain parameter is required")
	}

	resp := resolveResponse{Domain: domain, Hops: []traceHop{}}
	st := time.Now()
	addr, err := s.resolver.Trace(req.Context(), domain, func(hop iterative.Hop) {
		resp.Hops = append(resp.Hops, newTraceHop(hop))
	})
	resp.TookMs = durationMs(time.Since(st))

	statusCode = http.StatusOK
	switch {
	case err == nil:
		resp.Address = addr.String()
	case errors.Is(err, iterative.ErrNotFound):
		resp.Error = err.Error()
		statusCode = http.StatusNotFound
	default:
		return http.StatusInternalServerError, fmt.Errorf("http: failed to resolve %s: %w", domain, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp) //nolint:errchkjson // ignore any error
	return statusCode, nil
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
