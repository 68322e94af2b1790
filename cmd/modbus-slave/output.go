package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
)

// RegisterResult is one register in json output.
type RegisterResult struct {
	Bank    string `json:"bank"`
	Address uint16 `json:"address"`
	Value   uint16 `json:"value"`
	Hex     string `json:"hex"`
}

type registerBank struct {
	name   string
	values []uint16
}

func outputRegisterBanks(w io.Writer, format string, banks []registerBank) error {
	switch format {
	case "json":
		return outputRegisterJSON(w, banks)
	case "csv":
		return outputRegisterCSV(w, banks)
	case "hex":
		return outputRegisterHex(w, banks)
	case "table", "":
		return outputRegisterTable(w, banks)
	default:
		return fmt.Errorf("unknown output format %q (table, json, csv, hex)", format)
	}
}

func outputRegisterTable(w io.Writer, banks []registerBank) error {
	for _, b := range banks {
		fmt.Fprintf(w, "\n%s (Address 0-%d, Count: %d)\n", b.name, len(b.values)-1, len(b.values))
		fmt.Fprintln(w, strings.Repeat("-", 60))

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ADDRESS\tDECIMAL\tHEX\tBINARY")
		fmt.Fprintln(tw, "-------\t-------\t---\t------")
		for addr, v := range b.values {
			fmt.Fprintf(tw, "%d\t%d\t0x%04X\t%016b\n", addr, v, v, v)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	fmt.Fprintln(w)
	return nil
}

func outputRegisterJSON(w io.Writer, banks []registerBank) error {
	results := make([]RegisterResult, 0)
	for _, b := range banks {
		for addr, v := range b.values {
			results = append(results, RegisterResult{
				Bank:    b.name,
				Address: uint16(addr),
				Value:   v,
				Hex:     fmt.Sprintf("0x%04X", v),
			})
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func outputRegisterCSV(w io.Writer, banks []registerBank) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"bank", "address", "value", "hex"})
	for _, b := range banks {
		for addr, v := range b.values {
			cw.Write([]string{b.name, strconv.Itoa(addr), strconv.Itoa(int(v)), fmt.Sprintf("0x%04X", v)})
		}
	}
	cw.Flush()
	return cw.Error()
}

func outputRegisterHex(w io.Writer, banks []registerBank) error {
	for _, b := range banks {
		hex := make([]string, len(b.values))
		for i, v := range b.values {
			hex[i] = fmt.Sprintf("%04X", v)
		}
		fmt.Fprintf(w, "%s: %s\n", b.name, strings.Join(hex, " "))
	}
	return nil
}
