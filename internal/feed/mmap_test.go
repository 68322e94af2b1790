// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package feed

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeSink struct {
	mu     sync.Mutex
	values []uint16
}

func newFakeSink(n int) *fakeSink {
	return &fakeSink{values: make([]uint16, n)}
}

func (s *fakeSink) InputCount() int {
	return len(s.values)
}

func (s *fakeSink) SetInput(start uint16, values []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(start)+len(values) > len(s.values) {
		return errors.New("out of range")
	}
	copy(s.values[start:], values)
	return nil
}

func (s *fakeSink) get(i int) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[i]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeRegister stores v big-endian at register i through a separate handle.
func writeRegister(t *testing.T, path string, i int, v uint16) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()

	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	if _, err := f.WriteAt(buf[:], int64(2*i)); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.bin")
	sink := newFakeSink(12)

	feed, err := Open(path, sink, testLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer feed.Close()

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if fi.Size() != 24 {
		t.Errorf("File size: expected 24, got %d", fi.Size())
	}
}

func TestOpen_WrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.bin")
	if err := os.WriteFile(path, []byte{0x00, 0x01, 0x02}, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := Open(path, newFakeSink(4), testLogger()); err == nil {
		t.Fatal("Expected error for wrongly sized file")
	}
}

func TestMmapFeed_Refresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.bin")
	sink := newFakeSink(4)

	feed, err := Open(path, sink, testLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer feed.Close()

	writeRegister(t, path, 0, 0x1234)
	writeRegister(t, path, 3, 500)

	if err := feed.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if sink.get(0) != 0x1234 {
		t.Errorf("Input[0]: expected 0x1234, got 0x%04X", sink.get(0))
	}
	if sink.get(3) != 500 {
		t.Errorf("Input[3]: expected 500, got %d", sink.get(3))
	}
	if sink.get(1) != 0 {
		t.Errorf("Input[1]: expected 0, got %d", sink.get(1))
	}
}

func TestMmapFeed_ExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.bin")
	if err := os.WriteFile(path, []byte{0x00, 0x07, 0xFF, 0xFF}, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	sink := newFakeSink(2)

	feed, err := Open(path, sink, testLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer feed.Close()

	if err := feed.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if sink.get(0) != 7 || sink.get(1) != 0xFFFF {
		t.Errorf("Expected [7 65535], got [%d %d]", sink.get(0), sink.get(1))
	}
}

func TestMmapFeed_Run(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.bin")
	sink := newFakeSink(2)

	feed, err := Open(path, sink, testLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer feed.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx, 10*time.Millisecond) }()

	writeRegister(t, path, 1, 42)

	deadline := time.Now().Add(2 * time.Second)
	for sink.get(1) != 42 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for refresh")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: expected nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMmapFeed_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.bin")

	feed, err := Open(path, newFakeSink(2), testLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := feed.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := feed.Refresh(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := feed.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}
