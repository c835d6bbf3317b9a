// Package main provides the entry point for the tabular handler
// platform.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/txn2/tabular/pkg/health"
	"github.com/txn2/tabular/pkg/platform"
)

// Version is set at build time.
var Version = "dev"

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serverOptions struct {
	configPath  string
	address     string
	showVersion bool
}

func parseFlags() serverOptions {
	opts := serverOptions{}
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.address, "address", "", "Override health/status server address")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	flag.Parse()
	return opts
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func run() error {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("tabular version %s\n", Version)
		return nil
	}
	if opts.configPath == "" {
		return fmt.Errorf("a configuration file is required (-config)")
	}

	ctx := setupSignalHandler()

	p, err := platform.NewFromFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("creating platform: %w", err)
	}

	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting platform: %w", err)
	}

	checker := health.NewChecker()
	checker.SetReady()

	address := opts.address
	if address == "" {
		address = p.Address()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", checker.LivenessHandler())
	mux.HandleFunc("/readyz", checker.ReadinessHandler())
	mux.HandleFunc("/statusz", health.HandlersHandler(p.Handlers()))

	srv := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		p.Logger().Info("status server listening", "address", address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server: %w", err)
		}
	}

	checker.SetDraining()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if err := p.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stopping platform: %w", err)
	}
	return nil
}
