package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/mikhailv/iterdns/dns-trace/internal/trace"
	"github.com/mikhailv/iterdns/internal/config"
	"github.com/mikhailv/iterdns/internal/iterative"
	"github.com/mikhailv/iterdns/internal/log"
	"github.com/mikhailv/iterdns/internal/setup"
)

func main() {
	ctx, stop := setup.ListenStopSignal(context.Background())
	defer stop()

	configFile := flag.String("config", "", "config file path (built-in defaults when empty)")
	hostsFile := flag.String("hosts", "", "resolve every line of this file and print latency CSV")
	server := flag.String("server", "", "DNS server used with -hosts instead of the system resolver")
	timeout := flag.Duration("timeout", 5*time.Second, "per host timeout used with -server")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] DOMAIN\n       %s -hosts FILE [-server ADDR]\n", os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := setup.NewLogger(os.Stderr, *debug)

	var err error
	switch {
	case *hostsFile != "":
		err = runBench(ctx, *hostsFile, *server, *timeout)
	case flag.NArg() == 1:
		err = runTrace(ctx, *configFile, flag.Arg(0), log.WithPrefix(logger, "iterative"))
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func runTrace(ctx context.Context, configFile, domain string, logger *slog.Logger) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	resolver := iterative.NewResolver(
		logger,
		iterative.NewUDPExchanger(cfg.Resolver.Timeout),
		cfg.Resolver.RootServers,
		iterative.Options{Port: cfg.Resolver.Port, MaxReferrals: cfg.Resolver.MaxReferrals},
	)

	w := trace.NewHopWriter(os.Stdout, domain, time.Now())
	addr, err := resolver.Trace(ctx, domain, w.Observe)
	if flushErr := w.Flush(); flushErr != nil {
		return fmt.Errorf("failed to write trace: %w", flushErr)
	}
	if err != nil {
		if errors.Is(err, iterative.ErrNotFound) {
			logger.Info("not found", "domain", domain)
			return nil
		}
		return err
	}
	logger.Info("resolved", "domain", domain, "addr", addr)
	return nil
}

func runBench(ctx context.Context, hostsFile, server string, timeout time.Duration) error {
	f, err := os.Open(hostsFile)
	if err != nil {
		return fmt.Errorf("failed to open hosts file: %w", err)
	}
	defer f.Close()

	hosts, err := trace.ReadHosts(f)
	if err != nil {
		return err
	}

	var resolver trace.HostResolver = net.DefaultResolver
	if server != "" {
		resolver = trace.NewServerResolver(server, timeout)
	}

	sum, err := trace.Bench(ctx, resolver, hosts, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	_, _ = sum.WriteTo(os.Stderr)
	return nil
}
