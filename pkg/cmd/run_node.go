// Package cmd holds the reusable cobra commands and startup helpers shared
// by the devnode binaries.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/evstack/devnode/fork"
	"github.com/evstack/devnode/inspect"
	"github.com/evstack/devnode/mining"
	"github.com/evstack/devnode/node"
	"github.com/evstack/devnode/pkg/config"
	"github.com/evstack/devnode/pkg/store"
	"github.com/evstack/devnode/pkg/telemetry"
	"github.com/evstack/devnode/txpool"
)

const dbName = "devnode"

// ParseConfig loads the node configuration from flags and the config file
// and validates it.
func ParseConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load node config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("failed to validate node config: %w", err)
	}

	return cfg, nil
}

// SetupLogger creates a zerolog logger from the logging configuration.
// Unknown levels fall back to info.
func SetupLogger(cfg config.LogConfig) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return logger.Level(level).With().Timestamp().Logger()
}

// BuildMiner constructs the mining scheduler for the configured mode and
// subscribes it to pool arrivals. Instant mining wakes on every pool
// arrival; interval mining runs its own timer.
func BuildMiner(cfg config.NodeConfig, pool *txpool.Pool, logger zerolog.Logger) *mining.Miner {
	// The miner exists before the pool subscription so a pool arrival racing
	// with startup never observes a nil wake target.
	miner := mining.New(mining.NewDisabled(), logger)
	notif := pool.SubscribeReady(miner.Wake)

	switch {
	case cfg.NoMining:
		// mining stays disabled
	case cfg.BlockTime.Duration > 0:
		miner.SetMode(mining.NewInterval(cfg.BlockTime.Duration))
	default:
		miner.SetMode(mining.NewAuto(cfg.TxLimit, notif))
	}
	return miner
}

// StartNode assembles the node from the configuration and runs it until the
// process receives SIGINT or SIGTERM.
func StartNode(cmd *cobra.Command, executor node.Executor, cfg config.Config, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	kv, err := store.NewDefaultKVStore(cfg.RootDir, cfg.DBPath, dbName)
	if err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close datastore")
		}
	}()

	blockStore, err := store.NewCompressed(store.NewDevnodeKVStore(kv), store.DefaultCompressionConfig())
	if err != nil {
		return fmt.Errorf("failed to create block store: %w", err)
	}
	pool := txpool.New(logger)
	miner := BuildMiner(cfg.Node, pool, logger)

	var forkClient *fork.ClientFork
	if cfg.Fork.URL != "" {
		forkClient, err = fork.Dial(ctx, cfg.Fork.URL, cfg.Fork.BlockNumber, logger)
		if err != nil {
			return fmt.Errorf("failed to fork %s: %w", cfg.Fork.URL, err)
		}
		if cfg.Fork.ChainID != 0 && forkClient.ChainID().Uint64() != cfg.Fork.ChainID {
			return fmt.Errorf("upstream chain ID %s does not match expected %d",
				forkClient.ChainID(), cfg.Fork.ChainID)
		}
		logger.Info().
			Str("url", cfg.Fork.URL).
			Uint64("block", forkClient.BlockNumber()).
			Str("chain_id", forkClient.ChainID().String()).
			Msg("forking off remote chain")
	}

	metrics := node.NopMetrics()
	if cfg.Instrumentation.Prometheus {
		metrics = node.PrometheusMetrics("devnode", "chain_id", chainIDLabel(forkClient))
	}

	pipeline := inspect.NewPipeline(logger).WithLogDecoding()

	n, err := node.New(pool, miner, blockStore, telemetry.WithTracingExecutor(executor), node.Options{
		Fork:     forkClient,
		Pipeline: pipeline,
		Metrics:  metrics,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}
	defer n.Stop()

	g, gctx := errgroup.WithContext(ctx)

	// Hold the group open until shutdown so Wait blocks even when no
	// auxiliary servers are configured.
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if cfg.Instrumentation.Prometheus {
		srv := &http.Server{
			Addr:              cfg.Instrumentation.PrometheusListenAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", srv.Addr).Msg("serving prometheus metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- g.Wait() }()

	select {
	case <-quit:
		logger.Info().Msg("shutting down node...")
		cancel()
		if err := <-errCh; err != nil {
			return err
		}
	case err := <-errCh:
		cancel()
		if err != nil {
			logger.Error().Err(err).Msg("node error")
			return err
		}
	}
	return nil
}

func chainIDLabel(forkClient *fork.ClientFork) string {
	if forkClient == nil {
		return "local"
	}
	return forkClient.ChainID().String()
}
