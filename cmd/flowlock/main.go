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

	"golang.org/x/sync/errgroup"

	"flowlock/pkg/clock"
	"flowlock/pkg/coord"
	"flowlock/pkg/lock"
	"flowlock/pkg/presence"
	"flowlock/pkg/request"
	"flowlock/pkg/server"
)

func main() {
	var (
		httpAddr      = flag.String("http-addr", ":8080", "HTTP/WebSocket listen address")
		sweepInterval = flag.Duration("sweep-interval", coord.DefaultSweepInterval, "Maintenance sweep cadence")
		logJSON       = flag.Bool("log-json", false, "Emit JSON logs")
	)
	flag.Parse()

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if *logJSON {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	logger := slog.New(handler)

	clk := clock.System{}
	c := coord.New(
		lock.NewTable(clk),
		presence.NewTable(clk),
		request.NewLedger(clk),
		coord.WithLogger(logger),
	)
	srv := server.NewServer(c, logger)

	httpServer := &http.Server{
		Addr:    *httpAddr,
		Handler: srv.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		c.Run(ctx, *sweepInterval)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutdown", "err", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
