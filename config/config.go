/*
Copyright (c) The llsec Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package config loads the engine's YAML-backed configuration knobs
(spec.md §6) and validates them before the engine starts.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// Defaults mirror spec.md §6's parenthetical defaults.
const (
	DefaultMaxTentatives = 5
	DefaultKeyLen        = 16
	DefaultLifetime      = time.Hour
	DefaultOTPLen        = 3
)

var (
	errMaxTentatives    = errors.New("config: max_tentatives must be positive")
	errMaxNeighbors     = errors.New("config: max_neighbors must be positive")
	errKeyLen           = errors.New("config: key_len must be 16 (AES-128 only)")
	errNoKeyMode        = errors.New("config: at least one of with_pairwise_keys or with_group_keys must be set")
	errWakeInterval     = errors.New("config: wake_interval must be positive")
	errLifetime         = errors.New("config: lifetime must be positive")
	errOTPLen           = errors.New("config: otp_len must be between 1 and 4")
	errUpdateThreshold  = errors.New("config: update_threshold must be positive when with_secure_phase_lock is set")
	errSecLevelOutOfBounds = errors.New("config: security level must fit in 3 bits (0-7)")
)

// Config is the engine's complete set of operator-facing knobs (spec.md
// §6). It is read once when cmd/meshd run starts, and nothing reloads it
// while the daemon runs. It is a single struct rather than the teacher's
// StaticConfig/DynamicConfig split.
type Config struct {
	MaxTentatives     int           `yaml:"max_tentatives"`
	MaxNeighbors      int           `yaml:"max_neighbors"`
	KeyLen            int           `yaml:"key_len"`
	WithPairwiseKeys  bool          `yaml:"with_pairwise_keys"`
	WithGroupKeys     bool          `yaml:"with_group_keys"`
	WithIndices       bool          `yaml:"with_indices"`
	UnicastSecLevel   byte          `yaml:"unicast_sec_level"`
	BroadcastSecLevel byte          `yaml:"broadcast_sec_level"`
	WakeInterval      time.Duration `yaml:"wake_interval"`
	Lifetime          time.Duration `yaml:"lifetime"`
	OTPLen            int           `yaml:"otp_len"`
	WithSecurePhaseLock bool        `yaml:"with_secure_phase_lock"`
	UpdateThreshold   time.Duration `yaml:"update_threshold"`
}

// Default returns a Config populated with spec.md §6's defaults, the
// group-key-only mode the original Contiki build ships, and a
// conservative wake interval.
func Default() Config {
	return Config{
		MaxTentatives:     DefaultMaxTentatives,
		MaxNeighbors:      127 - 11,
		KeyLen:            DefaultKeyLen,
		WithPairwiseKeys:  false,
		WithGroupKeys:     true,
		WithIndices:       false,
		UnicastSecLevel:   5,
		BroadcastSecLevel: 1,
		WakeInterval:      125 * time.Millisecond,
		Lifetime:          DefaultLifetime,
		OTPLen:            DefaultOTPLen,
		WithSecurePhaseLock: true,
		UpdateThreshold:   5 * time.Minute,
	}
}

// Validate checks the knobs for internal consistency (spec.md §7:
// "only configuration errors are fatal and surface on initialization").
func (c Config) Validate() error {
	if c.MaxTentatives <= 0 {
		return errMaxTentatives
	}
	if c.MaxNeighbors <= 0 {
		return errMaxNeighbors
	}
	if c.KeyLen != 16 {
		return errKeyLen
	}
	if !c.WithPairwiseKeys && !c.WithGroupKeys {
		return errNoKeyMode
	}
	if c.UnicastSecLevel > 7 || c.BroadcastSecLevel > 7 {
		return errSecLevelOutOfBounds
	}
	if c.WakeInterval <= 0 {
		return errWakeInterval
	}
	if c.Lifetime <= 0 {
		return errLifetime
	}
	if c.OTPLen <= 0 || c.OTPLen > 4 {
		return errOTPLen
	}
	if c.WithSecurePhaseLock && c.UpdateThreshold <= 0 {
		return errUpdateThreshold
	}
	return nil
}

// Load reads and validates a Config from a YAML file, grounded on
// ptp4u/server.ReadDynamicConfig's read-unmarshal-validate sequence.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Write serializes c back to path, grounded on
// ptp4u/server.DynamicConfig.Write.
func (c Config) Write(path string) error {
	d, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, d, 0o644)
}
