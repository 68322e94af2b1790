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

package modbus

import (
	"fmt"
	"sync"
)

// RegisterStore holds the holding and input register banks of the device.
// Both banks are zero-based and keep the size they were created with.
// It is safe for concurrent use; the input bank may be refreshed from a
// background goroutine while requests are served.
type RegisterStore struct {
	mu      sync.RWMutex
	holding []uint16
	input   []uint16
}

// NewRegisterStore creates a store with copies of the given initial contents.
func NewRegisterStore(holding, input []uint16) *RegisterStore {
	s := &RegisterStore{
		holding: make([]uint16, len(holding)),
		input:   make([]uint16, len(input)),
	}
	copy(s.holding, holding)
	copy(s.input, input)
	return s
}

// HoldingCount returns the capacity of the holding bank.
func (s *RegisterStore) HoldingCount() int {
	return len(s.holding)
}

// InputCount returns the capacity of the input bank.
func (s *RegisterStore) InputCount() int {
	return len(s.input)
}

// ReadHolding returns qty holding registers starting at start.
func (s *RegisterStore) ReadHolding(start, qty uint16) ([]uint16, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readRange(s.holding, start, qty)
}

// ReadInput returns qty input registers starting at start.
func (s *RegisterStore) ReadInput(start, qty uint16) ([]uint16, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readRange(s.input, start, qty)
}

// WriteHolding sets a single holding register.
func (s *RegisterStore) WriteHolding(addr, value uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(addr) >= len(s.holding) {
		return fmt.Errorf("%w: holding register %d (capacity %d)", ErrIllegalAddress, addr, len(s.holding))
	}
	s.holding[addr] = value
	return nil
}

// WriteHoldingRange sets consecutive holding registers starting at addr.
// Nothing is written unless the whole range fits.
func (s *RegisterStore) WriteHoldingRange(addr uint16, values []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkRange(len(s.holding), addr, len(values)); err != nil {
		return err
	}
	copy(s.holding[addr:], values)
	return nil
}

// SetInput replaces consecutive input registers starting at start.
// This is the refresh path for collaborators sampling live values.
func (s *RegisterStore) SetInput(start uint16, values []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkRange(len(s.input), start, len(values)); err != nil {
		return err
	}
	copy(s.input[start:], values)
	return nil
}

// Holding returns a snapshot of the holding bank.
func (s *RegisterStore) Holding() []uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint16, len(s.holding))
	copy(out, s.holding)
	return out
}

// Input returns a snapshot of the input bank.
func (s *RegisterStore) Input() []uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint16, len(s.input))
	copy(out, s.input)
	return out
}

func readRange(bank []uint16, start, qty uint16) ([]uint16, error) {
	if err := checkRange(len(bank), start, int(qty)); err != nil {
		return nil, err
	}
	result := make([]uint16, qty)
	copy(result, bank[start:int(start)+int(qty)])
	return result, nil
}

// checkRange enforces start+qty <= capacity without 16-bit wraparound.
func checkRange(capacity int, start uint16, qty int) error {
	if int(start)+qty > capacity {
		return fmt.Errorf("%w: range %d+%d exceeds capacity %d", ErrIllegalAddress, start, qty, capacity)
	}
	return nil
}
