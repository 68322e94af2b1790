package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/edgeo-scada/modbus-slave/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "modbus-slave",
	Short: "A Modbus TCP slave serving holding and input registers",
	Long: `modbus-slave answers Modbus TCP requests from a master against an
in-memory register database.

Supported functions:
  - 0x03 Read Holding Registers
  - 0x04 Read Input Registers
  - 0x06 Write Single Register
  - 0x10 Write Multiple Registers

Configuration is read from --config, or config.yaml in /etc/modbus-slave,
$HOME/.modbus-slave or the working directory. Every key can be overridden
with a MODBUS_SLAVE_ environment variable, e.g. MODBUS_SLAVE_SERVER_ADDRESS.

Examples:
  # Serve on the default port with the default registers
  modbus-slave serve

  # Serve on port 1502, refreshing input registers from a sampler file
  modbus-slave serve --listen :1502 --feed /run/sensors/input.bin

  # Run one request frame offline and print the response
  modbus-slave exec "00 01 00 00 00 06 01 03 00 00 00 02"

  # Print the configured register banks as JSON
  modbus-slave registers -o json`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(registersCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cfgFile, cmd.Flags())
}

// newLogger builds the process logger. The returned closer releases the log
// file, if any.
func newLogger(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	if cfg.File == "" || cfg.File == "-" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, opts)), f, nil
}
