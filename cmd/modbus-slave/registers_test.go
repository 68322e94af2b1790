package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutputRegisterBanks(t *testing.T) {
	banks := []registerBank{
		{name: "Holding Registers", values: []uint16{140, 0xBEEF}},
		{name: "Input Registers", values: []uint16{7}},
	}

	t.Run("hex", func(t *testing.T) {
		var buf bytes.Buffer
		if err := outputRegisterBanks(&buf, "hex", banks); err != nil {
			t.Fatalf("outputRegisterBanks failed: %v", err)
		}
		expected := "Holding Registers: 008C BEEF\nInput Registers: 0007\n"
		if buf.String() != expected {
			t.Errorf("Expected %q, got %q", expected, buf.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := outputRegisterBanks(&buf, "json", banks); err != nil {
			t.Fatalf("outputRegisterBanks failed: %v", err)
		}
		var results []RegisterResult
		if err := json.Unmarshal(buf.Bytes(), &results); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("Expected 3 results, got %d", len(results))
		}
		if results[1].Address != 1 || results[1].Value != 0xBEEF || results[1].Hex != "0xBEEF" {
			t.Errorf("Unexpected result %+v", results[1])
		}
		if results[2].Bank != "Input Registers" {
			t.Errorf("Bank: expected Input Registers, got %s", results[2].Bank)
		}
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := outputRegisterBanks(&buf, "table", banks); err != nil {
			t.Fatalf("outputRegisterBanks failed: %v", err)
		}
		if !strings.Contains(buf.String(), "Holding Registers (Address 0-1, Count: 2)") {
			t.Errorf("Missing holding header in %q", buf.String())
		}
		if !strings.Contains(buf.String(), "0xBEEF") {
			t.Errorf("Missing value in %q", buf.String())
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := outputRegisterBanks(&bytes.Buffer{}, "xml", banks); err == nil {
			t.Error("Expected error for unknown format")
		}
	})
}

func TestRegistersCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "registers:\n  holding: [1, 2]\n  input_size: 2\n  input: [5]\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	out, err := runCommand(t, "registers", "--config", path, "-o", "csv")
	if err != nil {
		t.Fatalf("registers failed: %v", err)
	}
	expected := "bank,address,value,hex\n" +
		"Holding Registers,0,1,0x0001\n" +
		"Holding Registers,1,2,0x0002\n" +
		"Input Registers,0,5,0x0005\n" +
		"Input Registers,1,0,0x0000\n"
	if out != expected {
		t.Errorf("Expected %q, got %q", expected, out)
	}

	feedPath := filepath.Join(dir, "input.bin")
	if err := os.WriteFile(feedPath, []byte{0x01, 0x00, 0x00, 0x2A}, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	out, err = runCommand(t, "registers", "--config", path, "--feed", feedPath, "-o", "hex")
	if err != nil {
		t.Fatalf("registers failed: %v", err)
	}
	if !strings.Contains(out, "Input Registers: 0100 002A") {
		t.Errorf("Feed values not applied: %q", out)
	}
}

func TestRegistersCommand_FlagsDoNotLeak(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "registers:\n  holding: [9]\n  input_size: 1\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	feedPath := filepath.Join(dir, "input.bin")
	if err := os.WriteFile(feedPath, []byte{0x12, 0x34}, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	out, err := runCommand(t, "registers", "--config", path, "--feed", feedPath, "-o", "hex")
	if err != nil {
		t.Fatalf("registers failed: %v", err)
	}
	if !strings.Contains(out, "Input Registers: 1234") {
		t.Fatalf("Feed values not applied: %q", out)
	}

	// Without --feed and -o the defaults apply again
	out, err = runCommand(t, "registers", "--config", path)
	if err != nil {
		t.Fatalf("registers failed: %v", err)
	}
	if strings.Contains(out, "1234") {
		t.Errorf("Feed from the previous run leaked: %q", out)
	}
	if !strings.Contains(out, "Input Registers (Address 0-0, Count: 1)") {
		t.Errorf("Expected table output, got %q", out)
	}
}
