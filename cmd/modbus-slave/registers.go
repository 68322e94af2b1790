package main

import (
	"fmt"

	modbus "github.com/edgeo-scada/modbus-slave"
	"github.com/edgeo-scada/modbus-slave/internal/feed"
	"github.com/spf13/cobra"
)

var registersCmd = &cobra.Command{
	Use:   "registers",
	Short: "Print the register banks the slave would serve",
	Long: `Build the register store from the configuration and print both banks.
When a feed file is configured the input bank is read from it once first.`,
	Example: `  modbus-slave registers
  modbus-slave registers -o json
  modbus-slave registers --feed /run/sensors/input.bin -o hex`,
	Args: cobra.NoArgs,
	RunE: runRegisters,
}

func init() {
	registersCmd.Flags().StringP("output", "o", "table", "Output format: table, json, csv, hex")
	registersCmd.Flags().String("feed", "", "Input register feed file")
}

func runRegisters(cmd *cobra.Command, args []string) error {
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

	if cfg.Feed.Path != "" {
		f, err := feed.Open(cfg.Feed.Path, store, logger)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := f.Refresh(); err != nil {
			return fmt.Errorf("read feed: %w", err)
		}
	}

	format, _ := cmd.Flags().GetString("output")
	return outputRegisterBanks(cmd.OutOrStdout(), format, []registerBank{
		{name: "Holding Registers", values: store.Holding()},
		{name: "Input Registers", values: store.Input()},
	})
}
