// ABOUTME: Deterministic model backend for local and E2E runs of muse-gateway
// ABOUTME: Usage: fake-backend [-addr localhost:9090] [-fail-respond] [-fail-generate]
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2389/muse-gateway/internal/backend"
)

func main() {
	addr := flag.String("addr", "localhost:9090", "HTTP listen address")
	failRespond := flag.Bool("fail-respond", false, "fail the respond step so the gateway falls back")
	failGenerate := flag.Bool("fail-generate", false, "fail the fallback orchestrator")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(*addr, backend.FakeOptions{FailRespond: *failRespond, FailGenerate: *failGenerate}, logger); err != nil {
		logger.Error("fake backend stopped", "error", err)
		os.Exit(1)
	}
}

func run(addr string, opts backend.FakeOptions, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              addr,
		Handler:           backend.NewFake(opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake backend listening", "addr", addr,
			"fail_respond", opts.FailRespond, "fail_generate", opts.FailGenerate)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
