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
	"encoding/binary"
	"log/slog"
	"sync"
)

// Slave answers Modbus requests against a RegisterStore.
// Requests are handled one at a time.
type Slave struct {
	store   *RegisterStore
	opts    *slaveOptions
	metrics *SlaveMetrics

	mu sync.Mutex
}

// NewSlave creates a slave serving the given store.
func NewSlave(store *RegisterStore, opts ...SlaveOption) *Slave {
	options := defaultSlaveOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &Slave{
		store:   store,
		opts:    options,
		metrics: NewSlaveMetrics(),
	}
}

// Store returns the register store the slave serves.
func (s *Slave) Store() *RegisterStore {
	return s.store
}

// Metrics returns the slave metrics.
func (s *Slave) Metrics() *SlaveMetrics {
	return s.metrics
}

// HandleRequest decodes a raw request frame, dispatches it and returns the
// response frame. Frames too short to carry a function code get no response.
func (s *Slave) HandleRequest(raw []byte) []byte {
	req, err := DecodeRequest(raw)
	if err != nil {
		s.metrics.DecodeErrors.Add(1)
		s.opts.logger.Debug("dropping request", slog.String("error", err.Error()))
		return nil
	}
	return s.Dispatch(req)
}

// Dispatch routes a decoded request to the handler for its function code.
// Unsupported function codes get an illegal function exception.
func (s *Slave) Dispatch(req *Request) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := timeNow()
	fc := req.FunctionCode

	s.opts.logger.Debug("processing request",
		slog.Uint64("tx_id", uint64(req.Header.TransactionID)),
		slog.Uint64("unit_id", uint64(req.Header.UnitID)),
		slog.String("func", fc.String()))

	var resp []byte
	var err error

	switch fc {
	case FuncReadHoldingRegisters:
		resp, err = s.handleReadRegisters(req, s.store.HoldingCount(), s.store.ReadHolding)
	case FuncReadInputRegisters:
		resp, err = s.handleReadRegisters(req, s.store.InputCount(), s.store.ReadInput)
	case FuncWriteSingleRegister:
		resp, err = s.handleWriteSingleRegister(req)
	case FuncWriteMultipleRegisters:
		resp, err = s.handleWriteMultipleRegisters(req)
	default:
		err = NewModbusError(fc, ExceptionIllegalFunction)
	}

	if err != nil {
		resp = s.handleError(req, err)
	}

	s.metrics.observe(fc, err != nil, timeNow().Sub(start))
	return resp
}

func (s *Slave) handleError(req *Request, err error) []byte {
	ec := exceptionFor(err)
	if ec == ExceptionServerDeviceFailure {
		s.opts.logger.Error("handler error",
			slog.String("func", req.FunctionCode.String()),
			slog.String("error", err.Error()))
	} else {
		s.opts.logger.Debug("exception response",
			slog.String("func", req.FunctionCode.String()),
			slog.String("exception", ec.String()))
	}
	return BuildException(req, ec)
}

type readFunc func(start, qty uint16) ([]uint16, error)

// handleReadRegisters serves FC03 and FC04. The quantity limit is checked
// before the address range, so an oversized quantity reports illegal data
// value even when the range is also out of bounds.
func (s *Slave) handleReadRegisters(req *Request, capacity int, read readFunc) ([]byte, error) {
	if len(req.Payload) < readRequestSize {
		return nil, NewModbusError(req.FunctionCode, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(req.Payload[0:2])
	qty := binary.BigEndian.Uint16(req.Payload[2:4])

	if qty > MaxQuantityRegisters {
		return nil, NewModbusError(req.FunctionCode, ExceptionIllegalDataValue)
	}
	if int(addr)+int(qty) > capacity {
		return nil, NewModbusError(req.FunctionCode, ExceptionIllegalDataAddress)
	}

	values, err := read(addr, qty)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, 1+2*len(values))
	payload[0] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(payload[1+i*2:], v)
	}
	return EncodeResponse(req, req.FunctionCode, payload)
}

func (s *Slave) handleWriteSingleRegister(req *Request) ([]byte, error) {
	if len(req.Payload) < writeSingleRequestSize {
		return nil, NewModbusError(req.FunctionCode, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(req.Payload[0:2])
	value := binary.BigEndian.Uint16(req.Payload[2:4])

	if int(addr) >= s.store.HoldingCount() {
		return nil, NewModbusError(req.FunctionCode, ExceptionIllegalDataAddress)
	}
	if err := s.store.WriteHolding(addr, value); err != nil {
		return nil, err
	}

	// Echo request as response (copy to avoid sharing the read buffer).
	// The length always describes the 12-byte echo, whatever the request declared.
	resp := make([]byte, echoSize)
	copy(resp, req.Raw[:echoSize])
	binary.BigEndian.PutUint16(resp[4:6], echoSize-6)
	return resp, nil
}

func (s *Slave) handleWriteMultipleRegisters(req *Request) ([]byte, error) {
	if len(req.Payload) < writeMultipleRequestSize {
		return nil, NewModbusError(req.FunctionCode, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(req.Payload[0:2])
	qty := binary.BigEndian.Uint16(req.Payload[2:4])
	byteCount := int(req.Payload[4])

	if qty < 1 || qty > MaxQuantityWriteRegisters {
		return nil, NewModbusError(req.FunctionCode, ExceptionIllegalDataValue)
	}
	if byteCount != int(qty)*2 || len(req.Payload) < writeMultipleRequestSize+byteCount {
		return nil, NewModbusError(req.FunctionCode, ExceptionIllegalDataValue)
	}
	if int(addr)+int(qty) > s.store.HoldingCount() {
		return nil, NewModbusError(req.FunctionCode, ExceptionIllegalDataAddress)
	}

	values := make([]uint16, qty)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(req.Payload[writeMultipleRequestSize+i*2:])
	}
	if err := s.store.WriteHoldingRange(addr, values); err != nil {
		return nil, err
	}

	return EncodeResponse(req, req.FunctionCode, req.Payload[:4])
}
