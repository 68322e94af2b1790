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
	"log/slog"
	"time"
)

// SlaveOption is a functional option for configuring the slave.
type SlaveOption func(*slaveOptions)

type slaveOptions struct {
	logger *slog.Logger
}

func defaultSlaveOptions() *slaveOptions {
	return &slaveOptions{
		logger: slog.Default(),
	}
}

// WithSlaveLogger sets the logger for the slave.
func WithSlaveLogger(logger *slog.Logger) SlaveOption {
	return func(o *slaveOptions) {
		o.logger = logger
	}
}

// ServerOption is a functional option for configuring the server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger      *slog.Logger
	maxConns    int
	readTimeout time.Duration
}

func defaultServerOptions() *serverOptions {
	return &serverOptions{
		logger:      slog.Default(),
		maxConns:    1,
		readTimeout: DefaultReadTimeout,
	}
}

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = logger
	}
}

// WithMaxConnections sets the maximum number of concurrent connections.
// The default of 1 serves a single master at a time.
func WithMaxConnections(n int) ServerOption {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxConns = n
		}
	}
}

// WithReadTimeout sets the idle timeout for client connections.
// Zero disables it.
func WithReadTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.readTimeout = d
	}
}
