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

// Package feed refreshes the input register bank from a memory-mapped file
// written by an external sampling process.
package feed

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/edsrzf/mmap-go"
)

// ErrClosed is returned by Refresh after Close.
var ErrClosed = errors.New("feed: closed")

// InputSink receives refreshed input register values.
type InputSink interface {
	InputCount() int
	SetInput(start uint16, values []uint16) error
}

// MmapFeed maps a file holding one big-endian 16-bit value per input register.
//
// Layout: register i at byte offset 2*i, file size 2*InputCount().
type MmapFeed struct {
	path   string
	sink   InputSink
	logger *slog.Logger

	mu   sync.Mutex
	file *os.File
	data mmap.MMap
}

// Open maps the feed file, creating it zero-filled at the expected size when
// missing. A file of a different size is rejected.
func Open(path string, sink InputSink, logger *slog.Logger) (*MmapFeed, error) {
	if logger == nil {
		logger = slog.Default()
	}
	size := int64(2 * sink.InputCount())

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	switch fi.Size() {
	case size:
	case 0:
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to size feed file: %w", err)
		}
	default:
		f.Close()
		return nil, fmt.Errorf("feed file %s is %d bytes, want %d", path, fi.Size(), size)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	return &MmapFeed{
		path:   path,
		sink:   sink,
		logger: logger,
		file:   f,
		data:   data,
	}, nil
}

// Refresh copies the current file contents into the input bank.
func (m *MmapFeed) Refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return ErrClosed
	}

	values := make([]uint16, len(m.data)/2)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(m.data[i*2:])
	}
	return m.sink.SetInput(0, values)
}

// Run refreshes the input bank every interval until ctx is done.
func (m *MmapFeed) Run(ctx context.Context, interval time.Duration) error {
	if err := m.Refresh(); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.Refresh(); err != nil {
				if errors.Is(err, ErrClosed) {
					return nil
				}
				m.logger.Error("input feed refresh failed",
					slog.String("path", m.path),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Close unmaps and closes the file.
func (m *MmapFeed) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.data != nil {
		if e := m.data.Unmap(); e != nil {
			err = e
		}
		m.data = nil
	}
	if m.file != nil {
		if e := m.file.Close(); e != nil {
			err = e
		}
		m.file = nil
	}
	return err
}
