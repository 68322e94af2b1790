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
	"errors"
	"fmt"
	"testing"
)

func TestModbusError_Error(t *testing.T) {
	err := NewModbusError(FuncReadHoldingRegisters, ExceptionIllegalDataAddress)

	expected := "modbus: exception illegal data address (FC=03)"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}

func TestModbusError_Is(t *testing.T) {
	err := fmt.Errorf("handler: %w", NewModbusError(FuncWriteSingleRegister, ExceptionIllegalDataValue))

	if !errors.Is(err, &ModbusError{ExceptionCode: ExceptionIllegalDataValue}) {
		t.Error("errors.Is should match on exception code")
	}
	if errors.Is(err, &ModbusError{ExceptionCode: ExceptionIllegalFunction}) {
		t.Error("errors.Is should not match a different exception code")
	}
	if !IsIllegalDataValue(err) {
		t.Error("IsIllegalDataValue should match a wrapped exception")
	}
	if IsIllegalFunction(err) {
		t.Error("IsIllegalFunction should not match")
	}
	if IsException(errors.New("plain"), ExceptionIllegalDataValue) {
		t.Error("IsException should not match a plain error")
	}
}

func TestExceptionFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ExceptionCode
	}{
		{"modbus error", NewModbusError(FuncReadInputRegisters, ExceptionIllegalDataValue), ExceptionIllegalDataValue},
		{"wrapped modbus error", fmt.Errorf("x: %w", NewModbusError(FuncReadInputRegisters, ExceptionIllegalFunction)), ExceptionIllegalFunction},
		{"illegal address", fmt.Errorf("%w: holding register 9", ErrIllegalAddress), ExceptionIllegalDataAddress},
		{"frame too large", ErrFrameTooLarge, ExceptionServerDeviceFailure},
		{"other", errors.New("disk on fire"), ExceptionServerDeviceFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exceptionFor(tt.err); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}
