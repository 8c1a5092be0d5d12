package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	flag "github.com/spf13/pflag"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/cmd/rewardsd/config"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/chains"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/chains/ethereum"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/logger"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/distributor"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/streams/jsonrpc/server"
)

const (
	ledgerFile      = "rewards.db"
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	configFlag := flag.String("config", "config.yaml", "Path to the configuration file (or set REWARDSD_CONFIG env var)")
	listenAddrFlag := flag.String("listen-addr", "", "HTTP listen address, overrides listen_addr (or set REWARDSD_LISTEN_ADDR env var)")
	flag.Parse()

	if envConfig := os.Getenv("REWARDSD_CONFIG"); envConfig != "" {
		*configFlag = envConfig
	}
	if envListenAddr := os.Getenv("REWARDSD_LISTEN_ADDR"); envListenAddr != "" {
		*listenAddrFlag = envListenAddr
	}

	cfg, err := config.LoadConfig(*configFlag)
	if err != nil {
		return fmt.Errorf("load config %s: %w", *configFlag, err)
	}
	if *listenAddrFlag != "" {
		cfg.ListenAddr = *listenAddrFlag
	}

	level := cfg.Level()
	if *verboseFlag {
		level = slog.LevelDebug
	}
	log := logger.NewWithLevel(os.Stdout, level)
	log.Info("Starting rewardsd",
		"chain", chains.Name(new(big.Int).SetUint64(cfg.ChainID)),
		"listen_addr", cfg.ListenAddr,
		"data_dir", cfg.DataDir,
	)

	store, err := distributor.OpenBoltStore(filepath.Join(cfg.DataDir, ledgerFile))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sys, err := ethereum.NewSystem(ethereum.SystemConfig{
		Owner:         common.HexToAddress(cfg.Owner),
		Custody:       common.HexToAddress(cfg.Custody),
		Tokens:        tokenViews(cfg),
		Store:         store,
		ClaimInterval: cfg.ClaimIntervalSeconds(),
		ClaimIndex:    cfg.ClaimIndex,
		Logger:        log,
		Registry:      registry,
	})
	if err != nil {
		return fmt.Errorf("build system: %w", err)
	}
	if err := seed(sys, cfg, log.With("component", "seed")); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	srv, err := server.New(server.Config{
		Distributor:    sys.Distributor,
		Oracle:         sys.Oracle,
		Pools:          sys.Pools,
		Tokens:         sys.Tokens,
		Feed:           sys.Feed,
		Gatherer:       registry,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         log.With("component", "jsonrpc-server"),
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	defer srv.Stop()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
