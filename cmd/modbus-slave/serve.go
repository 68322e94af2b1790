package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	modbus "github.com/edgeo-scada/modbus-slave"
	"github.com/edgeo-scada/modbus-slave/internal/feed"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Modbus TCP slave",
	Long: `Start the Modbus TCP slave and serve requests until SIGINT or SIGTERM.

When a feed file is configured, the input register bank is refreshed from it
on feed.interval. The file holds one big-endian 16-bit value per input
register and is created zero-filled when missing.`,
	Example: `  modbus-slave serve --listen :1502
  modbus-slave serve --config /etc/modbus-slave/config.yaml --log-level debug`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", fmt.Sprintf(":%d", modbus.DefaultPort), "Address to listen on")
	serveCmd.Flags().Int("max-conns", 1, "Maximum concurrent master connections")
	serveCmd.Flags().String("feed", "", "Input register feed file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, logCloser, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	store := modbus.NewRegisterStore(cfg.HoldingValues(), cfg.InputValues())
	slave := modbus.NewSlave(store, modbus.WithSlaveLogger(logger))
	server := modbus.NewServer(slave,
		modbus.WithServerLogger(logger),
		modbus.WithMaxConnections(cfg.Server.MaxConns),
		modbus.WithReadTimeout(cfg.Server.ReadTimeout),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	if cfg.Feed.Path != "" {
		f, err := feed.Open(cfg.Feed.Path, store, logger)
		if err != nil {
			return err
		}
		defer f.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.Run(ctx, cfg.Feed.Interval); err != nil {
				logger.Error("input feed stopped", slog.String("error", err.Error()))
			}
		}()
		logger.Info("input feed enabled",
			slog.String("path", cfg.Feed.Path),
			slog.Duration("interval", cfg.Feed.Interval))
	}

	if cfg.Metrics.LogInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logMetricsEvery(ctx, logger, slave, server, cfg.Metrics.LogInterval)
		}()
	}

	logger.Info("registers loaded",
		slog.Int("holding", store.HoldingCount()),
		slog.Int("input", store.InputCount()))

	err = server.ListenAndServeContext(ctx, cfg.Server.Address)
	stop()
	wg.Wait()
	logMetrics(logger, slave, server)

	if err != nil && !errors.Is(err, modbus.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	fmt.Fprintln(os.Stderr, "Shut down.")
	return nil
}

func logMetricsEvery(ctx context.Context, logger *slog.Logger, slave *modbus.Slave, server *modbus.Server, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logMetrics(logger, slave, server)
		}
	}
}

func logMetrics(logger *slog.Logger, slave *modbus.Slave, server *modbus.Server) {
	logger.Info("metrics",
		slog.Any("slave", slave.Metrics().Collect()),
		slog.Any("server", server.Metrics().Collect()))
}
