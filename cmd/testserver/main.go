// Command testserver runs an in-memory leaderboard service for local load
// tests.
//
// Usage:
//
//	testserver [flags]
//
// Flags:
//
//	--host        Host to bind to (default: localhost)
//	--port        Port to listen on (default: 8000)
//	--fail-rate   Fraction of leaderboard requests answered with 500
//	--min-delay   Minimum injected latency
//	--max-delay   Maximum injected latency
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"scoreload/internal/logging"
	"scoreload/testserver"
)

func main() {
	fs := pflag.NewFlagSet("testserver", pflag.ContinueOnError)
	host := fs.String("host", "localhost", "host to bind to")
	port := fs.Int("port", 8000, "port to listen on")
	failRate := fs.Float64("fail-rate", 0, "fraction of leaderboard requests answered with 500 (0-1)")
	minDelay := fs.Duration("min-delay", 0, "minimum injected latency")
	maxDelay := fs.Duration("max-delay", 0, "maximum injected latency")
	seed := fs.Uint64("seed", 0, "random seed for failures and delays (0 = random)")
	verbose := fs.BoolP("verbose", "v", false, "log every request")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if *failRate < 0 || *failRate > 1 || *minDelay < 0 || *maxDelay < *minDelay {
		fmt.Fprintln(os.Stderr, "invalid flags: fail-rate must be within [0,1] and 0 <= min-delay <= max-delay")
		os.Exit(2)
	}

	log := logging.New(*verbose, false)
	defer log.Sync()

	server := testserver.New(testserver.Options{
		FailRate: *failRate,
		MinDelay: *minDelay,
		MaxDelay: *maxDelay,
		Seed:     *seed,
		Logger:   log,
	})
	addr := net.JoinHostPort(*host, strconv.Itoa(*port))
	srv := &http.Server{Addr: addr, Handler: server.Handler(), ReadHeaderTimeout: 5 * time.Second}

	log.Info("leaderboard test server listening",
		zap.String("url", "http://"+addr),
		zap.Float64("fail_rate", *failRate),
		zap.Duration("min_delay", *minDelay),
		zap.Duration("max_delay", *maxDelay),
	)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  POST /api/leaderboard/submit")
	fmt.Println("  GET  /api/leaderboard/top?limit=&game_mode=")
	fmt.Println("  GET  /api/leaderboard/rank/{user_id}?game_mode=")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info("shutting down", zap.Int64("requests", server.Requests()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", zap.Error(err))
		}
	}
}
