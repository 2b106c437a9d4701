// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package primitive

// CacheMode selects how a physical region is distributed across the cluster.
type CacheMode string

const (
	Partitioned CacheMode = "Partitioned"
	Replicated  CacheMode = "Replicated"
)

// AtomicityMode selects the write discipline of a physical region.
type AtomicityMode string

const (
	Transactional AtomicityMode = "Transactional"
	Atomic        AtomicityMode = "Atomic"
)

// DefaultSequenceReserveSize is the default number of sequence values a
// member reserves per store round trip.
const DefaultSequenceReserveSize = 1000

// AtomicConfig configures the namespace backing atomic primitives.
type AtomicConfig struct {
	GroupName           string    `yaml:"groupName"`
	CacheMode           CacheMode `yaml:"cacheMode"`
	Backups             int       `yaml:"backups"`
	SequenceReserveSize int       `yaml:"sequenceReserveSize"`
}

// ReserveSize returns the configured sequence reserve size, defaulted.
func (c AtomicConfig) ReserveSize() int {
	if c.SequenceReserveSize <= 0 {
		return DefaultSequenceReserveSize
	}
	return c.SequenceReserveSize
}

// CacheConfig derives the configuration of the metadata region for this
// namespace.
func (c AtomicConfig) CacheConfig(name string) CacheConfig {
	return CacheConfig{
		Name:          name,
		GroupName:     c.GroupName,
		CacheMode:     c.CacheMode,
		AtomicityMode: Transactional,
		Backups:       c.Backups,
	}
}

// CollectionConfig configures a queue or set. Two collections with
// structurally equal configurations may share one physical region.
type CollectionConfig struct {
	GroupName        string        `yaml:"groupName"`
	CacheMode        CacheMode     `yaml:"cacheMode"`
	AtomicityMode    AtomicityMode `yaml:"atomicityMode"`
	Backups          int           `yaml:"backups"`
	OffHeapMaxMemory int64         `yaml:"offHeapMaxMemory"`
	NodeFilter       string        `yaml:"nodeFilter"`
	Collocated       bool          `yaml:"collocated"`
}

// Compatible reports whether an element region created for o can be shared
// by a collection configured with c. The collocated flag is deliberately not
// part of the comparison: it is a per-collection property, not a region one.
func (c CollectionConfig) Compatible(o CollectionConfig) bool {
	return c.AtomicityMode == o.AtomicityMode &&
		c.CacheMode == o.CacheMode &&
		c.Backups == o.Backups &&
		c.OffHeapMaxMemory == o.OffHeapMaxMemory &&
		c.NodeFilter == o.NodeFilter
}

// CacheConfig derives the configuration of an element region for this
// collection configuration.
func (c CollectionConfig) CacheConfig(name string) CacheConfig {
	return CacheConfig{
		Name:             name,
		GroupName:        c.GroupName,
		CacheMode:        c.CacheMode,
		AtomicityMode:    c.AtomicityMode,
		Backups:          c.Backups,
		NodeFilter:       c.NodeFilter,
		OffHeapMaxMemory: c.OffHeapMaxMemory,
	}
}

// CacheConfig is the configuration handed to the backing store when a
// physical region is started.
type CacheConfig struct {
	Name             string
	GroupName        string
	CacheMode        CacheMode
	AtomicityMode    AtomicityMode
	Backups          int
	NodeFilter       string
	OffHeapMaxMemory int64
}
