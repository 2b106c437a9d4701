// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"sync"

	"github.com/google/uuid"
)

// NewHub creates an in-process membership hub. Every Member joined through
// the same hub observes the same cluster identity and the departures of the
// other members.
func NewHub() *Hub {
	return &Hub{
		clusterID: uuid.New().String(),
		members:   make(map[MemberID]*Member),
	}
}

// Hub is a process-local implementation of the membership contract used by
// tests and the demo commands.
type Hub struct {
	mu        sync.RWMutex
	clusterID string
	members   map[MemberID]*Member
}

// ClusterID returns the current cluster identity.
func (h *Hub) ClusterID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clusterID
}

// Join adds a new member to the hub.
func (h *Hub) Join() *Member {
	member := &Member{
		hub:       h,
		id:        MemberID(uuid.New().String()),
		listeners: make(map[ListenerID]func(MemberID)),
	}
	h.mu.Lock()
	h.members[member.id] = member
	h.mu.Unlock()
	return member
}

// Restart assigns the hub a new cluster identity, simulating a full cluster
// restart. Members stay joined; it is up to the caller to drive reconnect
// handling on each member's manager.
func (h *Hub) Restart() {
	h.mu.Lock()
	h.clusterID = uuid.New().String()
	h.mu.Unlock()
}

func (h *Hub) depart(id MemberID) {
	h.mu.Lock()
	delete(h.members, id)
	members := make([]*Member, 0, len(h.members))
	for _, m := range h.members {
		members = append(members, m)
	}
	h.mu.Unlock()

	for _, m := range members {
		m.notifyDeparture(id)
	}
}

// Member is one joined process.
type Member struct {
	hub       *Hub
	id        MemberID
	mu        sync.RWMutex
	listeners map[ListenerID]func(MemberID)
	left      bool
}

func (m *Member) LocalID() MemberID {
	return m.id
}

func (m *Member) ClusterID() string {
	return m.hub.ClusterID()
}

func (m *Member) OnDeparture(f func(MemberID)) ListenerID {
	id := ListenerID(uuid.New().String())
	m.mu.Lock()
	m.listeners[id] = f
	m.mu.Unlock()
	return id
}

func (m *Member) RemoveListener(id ListenerID) {
	m.mu.Lock()
	delete(m.listeners, id)
	m.mu.Unlock()
}

// Leave departs the cluster, notifying the remaining members.
func (m *Member) Leave() {
	m.mu.Lock()
	if m.left {
		m.mu.Unlock()
		return
	}
	m.left = true
	m.mu.Unlock()
	m.hub.depart(m.id)
}

func (m *Member) notifyDeparture(id MemberID) {
	m.mu.RLock()
	listeners := make([]func(MemberID), 0, len(m.listeners))
	for _, f := range m.listeners {
		listeners = append(listeners, f)
	}
	m.mu.RUnlock()

	for _, f := range listeners {
		f(id)
	}
}

var _ Membership = (*Member)(nil)
