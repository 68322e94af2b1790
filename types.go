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

// Package modbus implements a single-device Modbus TCP slave: MBAP framing,
// function dispatch, register handlers and the register store they act on.
package modbus

import "time"

// UnitID represents the Modbus unit identifier (slave address).
type UnitID uint8

// FunctionCode represents a Modbus function code.
type FunctionCode uint8

// Function codes served by the slave.
const (
	FuncReadHoldingRegisters   FunctionCode = 0x03
	FuncReadInputRegisters     FunctionCode = 0x04
	FuncWriteSingleRegister    FunctionCode = 0x06
	FuncWriteMultipleRegisters FunctionCode = 0x10
)

// String returns a string representation of FunctionCode.
func (fc FunctionCode) String() string {
	switch fc {
	case FuncReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case FuncReadInputRegisters:
		return "ReadInputRegisters"
	case FuncWriteSingleRegister:
		return "WriteSingleRegister"
	case FuncWriteMultipleRegisters:
		return "WriteMultipleRegisters"
	default:
		return "Unknown"
	}
}

// Protocol constants.
const (
	// MaxQuantityRegisters is the maximum number of registers that can be read.
	MaxQuantityRegisters = 125

	// MaxQuantityWriteRegisters is the maximum number of registers that can be written.
	MaxQuantityWriteRegisters = 123

	// MBAPHeaderSize is the size of the MBAP header in bytes.
	MBAPHeaderSize = 7

	// MaxPDUSize is the largest PDU (function code + data) carried over TCP.
	MaxPDUSize = 253

	// MaxADUSize is the largest complete Modbus TCP frame.
	MaxADUSize = MBAPHeaderSize + MaxPDUSize

	// ProtocolID is the Modbus protocol identifier (always 0 for Modbus TCP).
	ProtocolID = 0

	// ExceptionFlag is OR'd into the function code of an exception response.
	ExceptionFlag = 0x80

	// DefaultReadTimeout is the default idle timeout for a client connection.
	DefaultReadTimeout = 30 * time.Second

	// DefaultPort is the default Modbus TCP port.
	DefaultPort = 502
)

// minimum payload sizes (bytes after the function code)
const (
	readRequestSize          = 4
	writeSingleRequestSize   = 4
	writeMultipleRequestSize = 5
	echoSize                 = MBAPHeaderSize + 1 + 4
)

// RequestHandler turns one raw request frame into at most one response frame.
// A nil result means no response is sent.
type RequestHandler interface {
	HandleRequest(raw []byte) []byte
}
