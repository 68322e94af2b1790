package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	modbus "github.com/edgeo-scada/modbus-slave"
	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec <hex frame>",
	Short: "Run one request frame through the slave and print the response",
	Long: `Decode a Modbus TCP request given in hex, dispatch it against a register
store built from the configuration, and print the response frame in hex.
Nothing is sent on the network.`,
	Example: `  modbus-slave exec "00 01 00 00 00 06 01 03 00 00 00 02"
  modbus-slave exec 000200000006010600 0201F4`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	raw, err := parseHexFrame(args)
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

	resp := slave.HandleRequest(raw)
	if resp == nil {
		return fmt.Errorf("no response: frame of %d bytes has no function code", len(raw))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "% X\n", resp)
	if mbErr := modbus.ParseExceptionResponse(resp); mbErr != nil {
		fmt.Fprintf(out, "exception: %s\n", mbErr.ExceptionCode)
	}
	return nil
}

// parseHexFrame joins the arguments and decodes them as hex, ignoring
// whitespace, colons and an optional 0x prefix.
func parseHexFrame(args []string) ([]byte, error) {
	s := strings.Join(args, "")
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(s)

	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex frame: %w", err)
	}
	if len(raw) > modbus.MaxADUSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds %d", len(raw), modbus.MaxADUSize)
	}
	return raw, nil
}
