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

// Package config loads the slave configuration from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	modbus "github.com/edgeo-scada/modbus-slave"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. MODBUS_SLAVE_SERVER_ADDRESS.
const EnvPrefix = "MODBUS_SLAVE"

const maxBankSize = 65536

// Config is the top-level slave configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Registers RegistersConfig `mapstructure:"registers"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig defines the TCP listener.
type ServerConfig struct {
	Address     string        `mapstructure:"address"`
	MaxConns    int           `mapstructure:"max_conns"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// RegistersConfig defines the register banks at startup.
type RegistersConfig struct {
	Holding   []int `mapstructure:"holding"`    // initial holding values, also sets the bank size
	InputSize int   `mapstructure:"input_size"` // input bank size
	Input     []int `mapstructure:"input"`      // initial input values, zero-padded to input_size
}

// FeedConfig defines the memory-mapped input register feed.
type FeedConfig struct {
	Path     string        `mapstructure:"path"` // empty disables the feed
	Interval time.Duration `mapstructure:"interval"`
}

// MetricsConfig defines periodic metrics logging.
type MetricsConfig struct {
	LogInterval time.Duration `mapstructure:"log_interval"` // 0 disables
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path, "" or "-" for stderr
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"listen":    "server.address",
	"max-conns": "server.max_conns",
	"log-level": "log.level",
	"feed":      "feed.path",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", fmt.Sprintf(":%d", modbus.DefaultPort))
	v.SetDefault("server.max_conns", 1)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("registers.holding", []int{140, 150, 160, 170, 180, 190})
	v.SetDefault("registers.input_size", 12)
	v.SetDefault("registers.input", []int{})
	v.SetDefault("feed.path", "")
	v.SetDefault("feed.interval", time.Second)
	v.SetDefault("metrics.log_interval", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Load reads the configuration. An explicit configFile must exist; otherwise
// config.yaml is searched in /etc/modbus-slave, $HOME/.modbus-slave and the
// working directory, and defaults apply when none is found. Flags that were
// set on the command line take precedence over file and environment.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-slave/")
		v.AddConfigPath("$HOME/.modbus-slave")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges that the register store and server rely on.
func (c *Config) Validate() error {
	if c.Server.MaxConns < 1 {
		return fmt.Errorf("config: server.max_conns must be at least 1, got %d", c.Server.MaxConns)
	}
	if n := len(c.Registers.Holding); n < 1 || n > maxBankSize {
		return fmt.Errorf("config: registers.holding must have 1-%d values, got %d", maxBankSize, n)
	}
	if n := c.Registers.InputSize; n < 1 || n > maxBankSize {
		return fmt.Errorf("config: registers.input_size must be 1-%d, got %d", maxBankSize, n)
	}
	if len(c.Registers.Input) > c.Registers.InputSize {
		return fmt.Errorf("config: registers.input has %d values, more than input_size %d",
			len(c.Registers.Input), c.Registers.InputSize)
	}
	if err := checkValues("registers.holding", c.Registers.Holding); err != nil {
		return err
	}
	if err := checkValues("registers.input", c.Registers.Input); err != nil {
		return err
	}
	if c.Feed.Path != "" && c.Feed.Interval <= 0 {
		return fmt.Errorf("config: feed.interval must be positive, got %s", c.Feed.Interval)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log.level %q", c.Log.Level)
	}
	return nil
}

func checkValues(key string, values []int) error {
	for i, v := range values {
		if v < 0 || v > 0xFFFF {
			return fmt.Errorf("config: %s[%d] = %d is not a 16-bit register value", key, i, v)
		}
	}
	return nil
}

// HoldingValues returns the initial holding bank.
func (c *Config) HoldingValues() []uint16 {
	return toRegisters(c.Registers.Holding, len(c.Registers.Holding))
}

// InputValues returns the initial input bank, zero-padded to InputSize.
func (c *Config) InputValues() []uint16 {
	return toRegisters(c.Registers.Input, c.Registers.InputSize)
}

func toRegisters(values []int, size int) []uint16 {
	out := make([]uint16, size)
	for i, v := range values {
		out[i] = uint16(v)
	}
	return out
}
