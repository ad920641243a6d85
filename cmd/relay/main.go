// Command relay serves the websocket fan-out used by peers that cannot reach a host directly
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lixenwraith/buildrun/logging"
	"github.com/lixenwraith/buildrun/relay"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg := relay.DefaultConfig()
	var (
		addr     = flag.String("addr", envOr("BUILDRUN_RELAY_ADDR", ":8080"), "listen address")
		dbg      = flag.Bool("debug", os.Getenv("BUILDRUN_DEBUG") != "", "write JSON logs and console output")
		logDir   = flag.String("log-dir", envOr("BUILDRUN_LOG_DIR", logging.DefaultDir), "log directory")
		maxPeers = flag.Int("max-peers", envInt("BUILDRUN_MAX_PEERS", cfg.MaxPeers), "clients accepted at once")
		evRate   = flag.Float64("rate", float64(cfg.EventRate), "per-client events per second")
		burst    = flag.Int("burst", cfg.EventBurst, "per-client event burst")
	)
	flag.Parse()
	cfg.MaxPeers = *maxPeers
	cfg.EventRate = rate.Limit(*evRate)
	cfg.EventBurst = *burst

	logger, closeLog, err := logging.New(logging.Options{
		Debug:    *dbg,
		Dir:      *logDir,
		FileName: "relay.log",
		Console:  true,
	})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeLog()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := relay.NewHub(cfg, logger)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           relay.Routes(hub),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("relay listening", zap.String("addr", *addr), zap.Int("max_peers", cfg.MaxPeers))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	st := hub.Stats()
	logger.Info("relay stopped",
		zap.Uint64("relayed", st.Relayed),
		zap.Uint64("limited", st.Limited),
		zap.Uint64("overflow", st.Overflow),
		zap.Uint64("rejected", st.Rejected),
		zap.Error(err),
	)
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt ignores unparsable values, keeping def
func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}
