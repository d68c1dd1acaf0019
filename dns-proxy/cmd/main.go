package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mikhailv/iterdns/dns-proxy/internal/proxy"
	"github.com/mikhailv/iterdns/internal/config"
	"github.com/mikhailv/iterdns/internal/log"
	"github.com/mikhailv/iterdns/internal/setup"
)

func main() {
	ctx, stop := setup.ListenStopSignal(context.Background())
	defer stop()

	configFile := flag.String("config", "", "config file path (built-in defaults when empty)")
	addr := flag.String("addr", "", "UDP listen address, overrides config")
	upstream := flag.String("upstream", "", "framed resolution service address, overrides config")
	pprofAddr := flag.String("pprof", "", "pprof handler address")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Proxy.Addr = *addr
	}
	if *upstream != "" {
		cfg.Proxy.Upstream = *upstream
	}

	logger := setup.Logger(*debug)

	setup.Pprof(ctx, *pprofAddr, logger)
	setup.Metrics(ctx, cfg.Proxy.HTTPAddr, log.WithPrefix(logger, "http"))

	client := proxy.NewFramedClient(cfg.Proxy.Upstream, cfg.Proxy.UpstreamTimeout, cfg.Proxy.MaxReplySize)
	p := proxy.New(cfg.Proxy.Addr, log.WithPrefix(logger, "proxy"), client, proxy.Options{
		Fallback:        cfg.Proxy.Fallback,
		FallbackTimeout: cfg.Proxy.FallbackTimeout,
		TTL:             cfg.Proxy.TTL,
		MaxDatagramSize: cfg.Proxy.MaxDatagramSize,
	})

	if err := p.Serve(ctx); err != nil {
		logger.Error("proxy failed", "err", err)
		os.Exit(1)
	}
}
