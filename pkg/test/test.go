// SPDX-FileCopyrightText: 2023-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package test provides an in-process cluster harness: n coordination
// managers over one shared memory store and membership hub.
package test

import (
	"context"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/cluster"
	"github.com/gridkit/coordination/pkg/coordination"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store/memory"
)

// NewCluster creates a single-member cluster builder with a default atomic
// configuration.
func NewCluster() *Cluster {
	return &Cluster{
		members: 1,
		config: coordination.Config{
			Atomic: &primitive.AtomicConfig{
				CacheMode: primitive.Partitioned,
				Backups:   1,
			},
		},
	}
}

// Cluster is an in-process cluster of coordination managers sharing one
// memory store and one membership hub.
type Cluster struct {
	members int
	config  coordination.Config
	store   *memory.Store
	hub     *cluster.Hub
	nodes   []*Node
}

// Node is one cluster member with its manager.
type Node struct {
	Member  *cluster.Member
	Manager *coordination.Manager
}

// SetMembers sets the number of members started by Start.
func (c *Cluster) SetMembers(members int) *Cluster {
	c.members = members
	return c
}

// SetConfig sets the manager configuration shared by all members.
func (c *Cluster) SetConfig(config coordination.Config) *Cluster {
	c.config = config
	return c
}

// Start joins the members and starts their managers.
func (c *Cluster) Start(ctx context.Context) error {
	if c.nodes != nil {
		return errors.NewConflict("cluster is already started")
	}
	c.store = memory.New()
	c.hub = cluster.NewHub()
	for i := 0; i < c.members; i++ {
		member := c.hub.Join()
		manager := coordination.NewManager(c.store, member, coordination.WithConfig(c.config))
		if err := manager.Start(ctx); err != nil {
			return err
		}
		c.nodes = append(c.nodes, &Node{
			Member:  member,
			Manager: manager,
		})
	}
	return nil
}

// Manager returns the manager of member i.
func (c *Cluster) Manager(i int) *coordination.Manager {
	return c.nodes[i].Manager
}

// Managers returns the managers of all live members.
func (c *Cluster) Managers() []*coordination.Manager {
	managers := make([]*coordination.Manager, 0, len(c.nodes))
	for _, node := range c.nodes {
		managers = append(managers, node.Manager)
	}
	return managers
}

// Store returns the shared backing store.
func (c *Cluster) Store() *memory.Store {
	return c.store
}

// Hub returns the shared membership hub.
func (c *Cluster) Hub() *cluster.Hub {
	return c.hub
}

// Kill departs member i without stopping its manager, simulating a crash.
// The departed node is removed from the cluster's node list.
func (c *Cluster) Kill(i int) {
	node := c.nodes[i]
	c.nodes = append(c.nodes[:i], c.nodes[i+1:]...)
	node.Member.Leave()
}

// Restart assigns the cluster a new identity and drives reconnect handling
// on every manager, simulating a full cluster restart.
func (c *Cluster) Restart() {
	c.hub.Restart()
	for _, node := range c.nodes {
		node.Manager.Reconnected()
	}
}

// Stop stops all managers and departs all members.
func (c *Cluster) Stop(ctx context.Context) {
	for _, node := range c.nodes {
		_ = node.Manager.Stop(ctx)
		node.Member.Leave()
	}
	c.nodes = nil
}
