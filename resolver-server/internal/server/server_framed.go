package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mikhailv/iterdns/internal/dnswire"
	"github.com/mikhailv/iterdns/internal/frame"
	"github.com/mikhailv/iterdns/internal/iterative"
	"github.com/mikhailv/iterdns/internal/log"
	"github.com/mikhailv/iterdns/internal/metrics"
)

type Resolver interface {
	Resolve(ctx context.Context, domain string) (netip.Addr, error)
}

type FramedOptions struct {
	MaxConcurrent int64
	MaxFrameSize  uint32
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// FramedServer answers length-prefixed DNS queries with a plain text address
// or error string. Each connection carries exactly one request.
type FramedServer struct {
	addr     string
	logger   *slog.Logger
	resolver Resolver
	opts     FramedOptions
	slots    *semaphore.Weighted
	wg       sync.WaitGroup
}

func NewFramedServer(addr string, logger *slog.Logger, resolver Resolver, opts FramedOptions) *FramedServer {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 64
	}
	if opts.MaxFrameSize == 0 {
		opts.MaxFrameSize = frame.DefaultMaxSize
	}
	return &FramedServer{
		addr:     addr,
		logger:   logger,
		resolver: resolver,
		opts:     opts,
		slots:    semaphore.NewWeighted(opts.MaxConcurrent),
	}
}

func (s *FramedServer) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener runs the accept loop on ln until ctx is cancelled. A worker
// slot is taken before accepting, so at most MaxConcurrent connections are
// handled at once and the rest wait in the listen backlog.
func (s *FramedServer) ServeListener(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		s.logger.Info("shutting down server...")
		_ = ln.Close()
	})
	defer stop()
	defer s.wg.Wait()

	s.logger.Info("server starting...", "addr", ln.Addr().String(), "max_concurrent", s.opts.MaxConcurrent)
	for {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			_ = ln.Close()
			return nil
		}
		conn, err := ln.Accept()
		if err != nil {
			s.slots.Release(1)
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("accept timeout", "err", err)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.slots.Release(1)
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *FramedServer) handleConn(ctx context.Context, conn net.Conn) {
	defer metrics.TrackInflight("framed.conn")()
	defer metrics.TrackDuration("framed.handle")()
	defer conn.Close()

	logger := s.logger.With("remote", conn.RemoteAddr().String())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling request", "panic", r)
			metrics.TrackStatus("framed.handle", "panic")
			s.writeReply(logger, conn, frame.ReplyServerError)
		}
	}()

	if s.opts.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	}
	data, err := frame.ReadFrame(conn, s.opts.MaxFrameSize)
	if err != nil {
		logger.Debug("failed to read frame", "err", err)
		metrics.TrackStatus("framed.handle", "bad_frame")
		return
	}
	// a complete frame too short for the header carries an empty query
	header, payload, err := frame.SplitFrame(data)
	if err != nil {
		logger.Debug("unexpected frame header", "len", len(data), "err", err)
	}

	q, err := dnswire.ParseQuestion(payload)
	if err != nil {
		logger.Debug("invalid query", "header", header.String(), "err", err)
		metrics.TrackStatus("framed.handle", "invalid_query")
		s.writeReply(logger, conn, frame.ReplyInvalidQuery)
		return
	}

	domain := q.Domain()
	done := log.Profile(logger, "resolving", "domain", domain, "seq", frame.FormatSeq(header.Seq))
	addr, err := s.resolver.Resolve(ctx, domain)
	done()

	switch {
	case err == nil:
		metrics.TrackStatus("framed.handle", "success")
		s.writeReply(logger, conn, addr.String())
	case errors.Is(err, iterative.ErrNotFound):
		metrics.TrackStatus("framed.handle", "not_found")
		s.writeReply(logger, conn, frame.ReplyNotFound)
	default:
		logger.Error("failed to resolve", "domain", domain, "err", err)
		metrics.TrackStatus("framed.handle", "failed")
		s.writeReply(logger, conn, frame.ReplyServerError)
	}
}

func (s *FramedServer) writeReply(logger *slog.Logger, conn net.Conn, reply string) {
	if s.opts.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	if _, err := conn.Write([]byte(reply)); err != nil {
		logger.Debug("failed to write reply", "err", err)
	}
}
