/*
 *	pvrpc carries typed method calls over ordered packet channels.
 *	Copyright (C) 2022 Arsen Musayelyan
 *
 *	This program is free software: you can redistribute it and/or modify
 *	it under the terms of the GNU General Public License as published by
 *	the Free Software Foundation, either version 3 of the License, or
 *	(at your option) any later version.
 *
 *	This program is distributed in the hope that it will be useful,
 *	but WITHOUT ANY WARRANTY; without even the implied warranty of
 *	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 *	GNU General Public License for more details.
 *
 *	You should have received a copy of the GNU General Public License
 *	along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package config loads the YAML configuration of the pvrpc tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.arsenm.dev/pvrpc/codec"

	"gopkg.in/yaml.v3"
)

// Config is the configuration of a preview client or server
type Config struct {
	// Address is a WebSocket URL for clients and a listen
	// address for servers
	Address string `yaml:"address"`
	// Origin is sent by WebSocket clients. Defaults to Address.
	Origin string `yaml:"origin"`
	// Codec is one of msgpack, json or gob
	Codec string `yaml:"codec"`
	// Timeout is how long a call waits for its response
	Timeout time.Duration `yaml:"timeout"`

	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// CacheConfig configures the frame cache
type CacheConfig struct {
	Capacity int `yaml:"capacity"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the metrics endpoint.
// An empty address disables it.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Address: "ws://localhost:9090/",
		Codec:   "msgpack",
		Timeout: 10 * time.Second,
		Cache: CacheConfig{
			Capacity: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the configuration file at path.
// Values missing from the file keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse parses a YAML configuration
func Parse(data []byte) (Config, error) {
	cfg := Default()
	err := yaml.Unmarshal(data, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for invalid values
func (c Config) Validate() error {
	var errs []error
	if c.Address == "" {
		errs = append(errs, errors.New("address must not be empty"))
	}
	if _, err := codec.ByName(c.Codec); err != nil {
		errs = append(errs, err)
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("cache capacity must be positive, got %d", c.Cache.Capacity))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// CodecFunc returns the configured codec
func (c Config) CodecFunc() codec.CodecFunc {
	cf, err := codec.ByName(c.Codec)
	if err != nil {
		return codec.Default
	}
	return cf
}
