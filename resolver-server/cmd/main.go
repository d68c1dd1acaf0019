package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/mikhailv/iterdns/internal/config"
	"github.com/mikhailv/iterdns/internal/iterative"
	"github.com/mikhailv/iterdns/internal/log"
	"github.com/mikhailv/iterdns/internal/mdnsresolver"
	"github.com/mikhailv/iterdns/internal/setup"
	"github.com/mikhailv/iterdns/resolver-server/internal/server"
	"github.com/mikhailv/iterdns/resolver-server/internal/service"
)

func main() {
	ctx, stop := setup.ListenStopSignal(context.Background())
	defer stop()

	configFile := flag.String("config", "", "config file path (built-in defaults when empty)")
	addr := flag.String("addr", "", "framed listener address, overrides config")
	pprofAddr := flag.String("pprof", "", "pprof handler address")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := setup.Logger(*debug)

	setup.Pprof(ctx, *pprofAddr, logger)

	resolver := iterative.NewResolver(
		log.WithPrefix(logger, "iterative"),
		iterative.NewUDPExchanger(cfg.Resolver.Timeout),
		cfg.Resolver.RootServers,
		iterative.Options{Port: cfg.Resolver.Port, MaxReferrals: cfg.Resolver.MaxReferrals},
	)

	var local service.LocalResolver
	if len(cfg.MDNS.Domains) > 0 {
		mdns := mdnsresolver.New(cfg.MDNS)
		defer mdns.Close()
		local = mdns
	}

	svc := service.NewResolutionService(log.WithPrefix(logger, "service"), resolver, local)

	g, ctx := errgroup.WithContext(ctx)

	framed := server.NewFramedServer(cfg.Server.Addr, log.WithPrefix(logger, "framed"), svc, server.FramedOptions{
		MaxConcurrent: cfg.Server.MaxConcurrent,
		MaxFrameSize:  cfg.Server.MaxFrameSize,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
	})
	g.Go(func() error { return framed.Serve(ctx) })

	if cfg.Server.HTTPAddr != "" {
		httpServer := server.NewHTTPServer(cfg.Server.HTTPAddr, log.WithPrefix(logger, "http"), svc)
		g.Go(func() error { return httpServer.Serve(ctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
