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
	"fmt"
	"io"
)

// MBAPHeader represents the Modbus Application Protocol header for TCP.
type MBAPHeader struct {
	TransactionID uint16 // Transaction identifier
	ProtocolID    uint16 // Protocol identifier (always 0 for Modbus)
	Length        uint16 // Number of following bytes (Unit ID + PDU)
	UnitID        UnitID // Unit identifier (slave address)
}

// Encode encodes the MBAP header to bytes.
func (h *MBAPHeader) Encode() []byte {
	buf := make([]byte, MBAPHeaderSize)
	h.put(buf)
	return buf
}

func (h *MBAPHeader) put(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], h.TransactionID)
	binary.BigEndian.PutUint16(buf[2:4], h.ProtocolID)
	binary.BigEndian.PutUint16(buf[4:6], h.Length)
	buf[6] = byte(h.UnitID)
}

// Decode decodes the MBAP header from bytes.
func (h *MBAPHeader) Decode(data []byte) error {
	if len(data) < MBAPHeaderSize {
		return fmt.Errorf("%w: MBAP header too short", ErrInvalidFrame)
	}
	h.TransactionID = binary.BigEndian.Uint16(data[0:2])
	h.ProtocolID = binary.BigEndian.Uint16(data[2:4])
	h.Length = binary.BigEndian.Uint16(data[4:6])
	h.UnitID = UnitID(data[6])
	return nil
}

// Request is a decoded request frame.
//
// Payload holds the bytes after the function code and is not checked against
// the size the function code needs; handlers do that before reading it.
type Request struct {
	Header       MBAPHeader
	FunctionCode FunctionCode
	Payload      []byte
	Raw          []byte
}

// DecodeRequest decodes a raw request frame. The frame must contain at least
// the MBAP header and the function code. When the length field covers fewer
// bytes than were received the payload is trimmed to it.
func DecodeRequest(raw []byte) (*Request, error) {
	if len(raw) < MBAPHeaderSize+1 {
		return nil, fmt.Errorf("%w: frame too short (%d bytes)", ErrInvalidFrame, len(raw))
	}

	req := &Request{Raw: raw}
	if err := req.Header.Decode(raw); err != nil {
		return nil, err
	}
	req.FunctionCode = FunctionCode(raw[MBAPHeaderSize])

	end := len(raw)
	if declared := MBAPHeaderSize - 1 + int(req.Header.Length); declared >= MBAPHeaderSize+1 && declared < end {
		end = declared
	}
	req.Payload = raw[MBAPHeaderSize+1 : end]
	return req, nil
}

// EncodeResponse builds a response frame for req. The transaction and unit
// identifiers are copied from the request, the protocol identifier is zero
// and the length covers the unit identifier, function code and payload.
func EncodeResponse(req *Request, fc FunctionCode, payload []byte) ([]byte, error) {
	if 1+len(payload) > MaxPDUSize {
		return nil, fmt.Errorf("%w: PDU of %d bytes", ErrFrameTooLarge, 1+len(payload))
	}

	header := MBAPHeader{
		TransactionID: req.Header.TransactionID,
		ProtocolID:    ProtocolID,
		Length:        uint16(2 + len(payload)),
		UnitID:        req.Header.UnitID,
	}

	buf := make([]byte, MBAPHeaderSize+1+len(payload))
	header.put(buf)
	buf[MBAPHeaderSize] = byte(fc)
	copy(buf[MBAPHeaderSize+1:], payload)
	return buf, nil
}

// BuildException builds the 9-byte exception frame answering req.
func BuildException(req *Request, ec ExceptionCode) []byte {
	buf := make([]byte, MBAPHeaderSize+2)
	header := MBAPHeader{
		TransactionID: req.Header.TransactionID,
		ProtocolID:    ProtocolID,
		Length:        3,
		UnitID:        req.Header.UnitID,
	}
	header.put(buf)
	buf[MBAPHeaderSize] = byte(req.FunctionCode) | ExceptionFlag
	buf[MBAPHeaderSize+1] = byte(ec)
	return buf
}

// IsExceptionResponse checks if the frame is an exception response.
func IsExceptionResponse(frame []byte) bool {
	return len(frame) > MBAPHeaderSize && frame[MBAPHeaderSize]&ExceptionFlag != 0
}

// ParseExceptionResponse parses an exception response frame.
func ParseExceptionResponse(frame []byte) *ModbusError {
	if len(frame) < MBAPHeaderSize+2 || !IsExceptionResponse(frame) {
		return nil
	}
	return &ModbusError{
		FunctionCode:  FunctionCode(frame[MBAPHeaderSize] &^ ExceptionFlag),
		ExceptionCode: ExceptionCode(frame[MBAPHeaderSize+1]),
	}
}

// ReadFrame reads one complete Modbus TCP frame from a reader, using the
// MBAP length field to find its end.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, MBAPHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	var h MBAPHeader
	if err := h.Decode(header); err != nil {
		return nil, err
	}

	// Length includes the unit ID, and a request needs a function code
	pduLen := int(h.Length) - 1
	if pduLen < 1 || pduLen > MaxPDUSize {
		return nil, fmt.Errorf("%w: invalid PDU length %d", ErrInvalidFrame, pduLen)
	}

	frame := make([]byte, MBAPHeaderSize+pduLen)
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[MBAPHeaderSize:]); err != nil {
		return nil, err
	}
	return frame, nil
}
