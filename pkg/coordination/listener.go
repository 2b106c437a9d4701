// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package coordination

import (
	"context"

	"github.com/gridkit/coordination/pkg/cluster"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
)

// subscribeRegion installs the change-feed listener on a physical region.
// Regions are shared between primitives, so installation is deduplicated by
// region name.
func (m *Manager) subscribeRegion(cache store.Cache) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[cache.Name()]; ok {
		return
	}
	id := cache.Subscribe(feedFilter, m.onFeedEvent)
	m.subs[cache.Name()] = subscription{cache: cache, id: id}
}

// feedFilter keeps removals plus updates of the record variants whose
// handles track live state. Counter and reference updates carry no local
// state, so their update events are dropped at the source.
func feedFilter(event store.Event) bool {
	if event.Type == store.Removed {
		return true
	}
	switch event.Value.Value.(type) {
	case primitive.LatchRecord, primitive.SemaphoreRecord, primitive.LockRecord:
		return true
	}
	return false
}

// onFeedEvent dispatches one change-feed event. Removal detaches the local
// handle; record updates are forwarded to the handle, which is responsible
// for discarding stale or redundant deliveries.
func (m *Manager) onFeedEvent(event store.Event) {
	if event.Type == store.Removed {
		if _, ok := event.Value.Value.(primitive.Record); !ok {
			// Element or header removal within a collection region.
			return
		}
		if handle, ok := m.registry.Take(event.Key); ok {
			log.Debugf("detaching %s %s: record removed", handle.Type(), event.Key)
			handle.OnRemoved()
		}
		return
	}

	rec, ok := event.Value.Value.(primitive.Record)
	if !ok {
		return
	}
	if handle, ok := m.registry.Load(event.Key); ok {
		if updatable, ok := handle.(primitive.Updatable); ok {
			updatable.OnUpdate(primitive.Versioned[primitive.Record]{
				Version: event.Value.Version,
				Value:   rec,
			})
		}
	}

	if latch, ok := rec.(primitive.LatchRecord); ok && latch.Count == 0 && latch.AutoDelete {
		// Best effort: every member observing the zero count races to remove
		// the latch; losers see the removal as a no-op.
		name := event.Key
		go func() {
			if err := m.RemoveCountDownLatch(context.Background(), name); err != nil {
				log.Debugf("auto-delete of count down latch %s failed: %v", name, err)
			}
		}()
	}
}

// handleDeparture forwards a member departure to the handles holding
// resources attributed to members.
func (m *Manager) handleDeparture(id cluster.MemberID) {
	log.Debugf("member %s departed, recovering held resources", id)
	m.registry.Range(func(handle primitive.Handle) {
		if aware, ok := handle.(primitive.MemberAware); ok {
			aware.OnNodeRemoved(id)
		}
	})
}
