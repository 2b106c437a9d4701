// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package coordination

import (
	"os"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
	"gopkg.in/yaml.v3"
)

const metadataCacheName = "atomics"

// Config configures a coordination manager. Atomic is the namespace
// configuration for atomic primitives; creating an atomic primitive on a
// manager without one fails.
type Config struct {
	Atomic     *primitive.AtomicConfig `yaml:"atomic"`
	MaxRetries int                     `yaml:"maxRetries"`
}

// LoadConfig reads a manager configuration from a YAML file.
func LoadConfig(path string) (Config, error) {
	var config Config
	text, err := os.ReadFile(path)
	if err != nil {
		return config, errors.NewInvalid("config file %s could not be read: %v", path, err)
	}
	if err := yaml.Unmarshal(text, &config); err != nil {
		return config, errors.NewInvalid("config file %s could not be parsed: %v", path, err)
	}
	return config, nil
}

// atomic returns the atomic namespace configuration, defaulted when none was
// provided. The defaults still back the metadata region needed by
// collections.
func (c Config) atomic() primitive.AtomicConfig {
	if c.Atomic != nil {
		return *c.Atomic
	}
	return primitive.AtomicConfig{
		CacheMode: primitive.Partitioned,
		Backups:   1,
	}
}

// metadataName returns the name of the metadata region, qualified by the
// namespace group when one is configured.
func (c Config) metadataName() string {
	if c.Atomic != nil && c.Atomic.GroupName != "" {
		return metadataCacheName + "@" + c.Atomic.GroupName
	}
	return metadataCacheName
}

func (c Config) retryOptions() []store.RetryOption {
	if c.MaxRetries > 0 {
		return []store.RetryOption{store.WithMaxAttempts(c.MaxRetries)}
	}
	return nil
}
