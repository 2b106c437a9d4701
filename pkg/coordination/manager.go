// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package coordination implements the management layer for named distributed
// primitives: a get-or-create/remove protocol over a transactional backing
// store, a process-local handle registry, a change-feed listener keeping
// handles in sync with durable state, and membership-driven recovery of
// per-member resources.
package coordination

import (
	"context"
	"strings"
	"sync"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/atomix/runtime/sdk/pkg/logging"
	"github.com/google/uuid"
	"github.com/gridkit/coordination/pkg/cluster"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
)

var log = logging.GetLogger()

const elementCachePrefix = "datastructures_"

// NewManager creates a coordination manager over a backing store and a
// cluster membership. The manager must be started before use.
func NewManager(provider store.Provider, membership cluster.Membership, opts ...Option) *Manager {
	var options Options
	options.Apply(opts...)
	return &Manager{
		provider:  provider,
		cluster:   membership,
		config:    options.Config,
		lifecycle: newLifecycle(),
		registry:  newRegistry(),
		subs:      make(map[string]subscription),
	}
}

type subscription struct {
	cache store.Cache
	id    store.SubscriptionID
}

// Manager is the entry point to the coordination layer for one cluster
// member. One handle exists per primitive name per manager; handles are
// detached when their durable record is removed by any member.
type Manager struct {
	provider  store.Provider
	cluster   cluster.Membership
	config    Config
	lifecycle *lifecycle
	registry  *registry

	mu        sync.Mutex
	cache     store.Cache
	clusterID string
	subs      map[string]subscription
	departure cluster.ListenerID
}

// Start activates the manager: the metadata region is started, the change
// feed subscribed and the membership listener installed. A failed start
// leaves the manager permanently unusable.
func (m *Manager) Start(ctx context.Context) error {
	if !m.lifecycle.activating() {
		return errors.NewUnavailable("manager cannot be started in its current state")
	}
	cache, err := m.provider.GetCache(ctx, m.config.atomic().CacheConfig(m.config.metadataName()))
	if err != nil {
		m.lifecycle.activated(err)
		log.Errorf("manager activation failed: %v", err)
		return err
	}

	m.mu.Lock()
	m.cache = cache
	m.clusterID = m.cluster.ClusterID()
	m.mu.Unlock()

	m.subscribeRegion(cache)
	m.departure = m.cluster.OnDeparture(func(id cluster.MemberID) {
		// Departure callbacks run on the membership notification path; handle
		// recovery involves store transactions and must not block it.
		go m.handleDeparture(id)
	})

	m.lifecycle.activated(nil)
	log.Infof("coordination manager started for member %s", m.cluster.LocalID())
	return nil
}

// Stop deactivates the manager. Registered handles are notified and
// discarded; their durable records are untouched.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.lifecycle.deactivating() {
		return nil
	}

	m.mu.Lock()
	subs := make([]subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.subs = make(map[string]subscription)
	departure := m.departure
	m.mu.Unlock()

	for _, sub := range subs {
		sub.cache.Unsubscribe(sub.id)
	}
	m.cluster.RemoveListener(departure)

	m.registry.Range(func(handle primitive.Handle) {
		if stoppable, ok := handle.(primitive.Stoppable); ok {
			stoppable.OnStop()
		}
	})
	m.registry.TakeAll()

	m.lifecycle.deactivated()
	log.Infof("coordination manager stopped for member %s", m.cluster.LocalID())
	return nil
}

// Reconnected handles the member rejoining the cluster after a disconnect.
// If the cluster identity changed the durable state is gone and every handle
// is detached; otherwise handles are marked for lazy revalidation on their
// next use.
func (m *Manager) Reconnected() {
	current := m.cluster.ClusterID()
	m.mu.Lock()
	restarted := current != m.clusterID
	m.clusterID = current
	m.mu.Unlock()

	if restarted {
		log.Warnf("cluster was restarted; detaching all primitive handles")
		for _, handle := range m.registry.TakeAll() {
			handle.OnRemoved()
		}
		return
	}
	m.registry.Range(func(handle primitive.Handle) {
		handle.NeedCheckNotRemoved()
	})
}

func (m *Manager) metadata() store.Cache {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache
}

// fastPath serves a get from the registry. A handle marked for revalidation
// is checked against the store first and detached when its record is gone.
func (m *Manager) fastPath(ctx context.Context, name string, typ primitive.Type) (primitive.Handle, bool, error) {
	handle, ok := m.registry.Load(name)
	if !ok {
		return nil, false, nil
	}
	if handle.Type() != typ {
		return nil, false, errors.NewConflict("%s already exists as a %s", name, handle.Type())
	}
	if checkable, ok := handle.(interface{ TakeCheck() bool }); ok && checkable.TakeCheck() {
		_, exists, err := m.metadata().Get(ctx, name)
		if err != nil {
			return nil, false, err
		}
		if !exists {
			if taken, ok := m.registry.Take(name); ok {
				taken.OnRemoved()
			}
			return nil, false, nil
		}
	}
	return handle, true, nil
}

// atomicSpec describes one get-or-create of an atomic primitive. The initial
// record is only materialized on create; attach builds the local handle and
// may write additional durable state within the creation transaction, the
// way sequences reserve their first range.
type atomicSpec struct {
	name    string
	typ     primitive.Type
	create  bool
	initial func() primitive.Record
	attach  func(tx store.Tx, rec primitive.Record) (primitive.Handle, error)
}

// getAtomic runs the get-or-create protocol for atomic primitives. The name
// key is locked for the whole creation transaction, so concurrent creators
// across the cluster serialize on it; the handle is registered before the
// commit and the registration rolled back should the commit fail.
func (m *Manager) getAtomic(ctx context.Context, spec atomicSpec) (primitive.Handle, error) {
	if err := m.lifecycle.await(ctx); err != nil {
		return nil, err
	}
	if spec.create && m.config.Atomic == nil {
		return nil, errors.NewInvalid("atomic configuration is missing")
	}
	if handle, ok, err := m.fastPath(ctx, spec.name, spec.typ); err != nil {
		return nil, err
	} else if ok {
		return handle, nil
	}

	cache := m.metadata()
	return store.RetryValue(ctx, func() (primitive.Handle, error) {
		tx, err := cache.Begin(ctx)
		if err != nil {
			return nil, err
		}
		v, ok, err := tx.Get(spec.name)
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		// Another goroutine may have created the handle while this one was
		// waiting for the name lock.
		if existing, loaded := m.registry.Load(spec.name); loaded {
			tx.Rollback()
			if existing.Type() != spec.typ {
				return nil, errors.NewConflict("%s already exists as a %s", spec.name, existing.Type())
			}
			return existing, nil
		}

		var rec primitive.Record
		if ok {
			rec, ok = v.Value.(primitive.Record)
			if !ok {
				tx.Rollback()
				return nil, errors.NewInternal("%s holds a malformed record", spec.name)
			}
			if rec.RecordType() != spec.typ {
				tx.Rollback()
				return nil, errors.NewConflict("%s already exists as a %s", spec.name, rec.RecordType())
			}
		} else {
			if !spec.create {
				tx.Rollback()
				return nil, nil
			}
			rec = spec.initial()
			if err := tx.Put(spec.name, rec); err != nil {
				tx.Rollback()
				return nil, err
			}
		}

		handle, err := spec.attach(tx, rec)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if existing, loaded := m.registry.LoadOrStore(spec.name, handle); loaded {
			tx.Rollback()
			return existing, nil
		}
		if err := tx.Commit(); err != nil {
			m.registry.Delete(spec.name)
			return nil, err
		}
		if activatable, ok := handle.(primitive.Activatable); ok {
			activatable.OnActivate()
		}
		return handle, nil
	}, m.config.retryOptions()...)
}

// removeSpec describes one removal. The guard may veto the removal based on
// the durable record; afterRemove runs outside the metadata transaction once
// the record is gone.
type removeSpec struct {
	name        string
	typ         primitive.Type
	guard       func(primitive.Record) error
	afterRemove func(ctx context.Context, rec primitive.Record) error
}

// remove runs the removal protocol. Removing an absent primitive is a no-op;
// local handles are detached asynchronously by the change feed, on every
// member including this one.
func (m *Manager) remove(ctx context.Context, spec removeSpec) error {
	if err := m.lifecycle.await(ctx); err != nil {
		return err
	}
	cache := m.metadata()

	var removed primitive.Record
	err := store.Retry(ctx, func() error {
		removed = nil
		tx, err := cache.Begin(ctx)
		if err != nil {
			return err
		}
		v, ok, err := tx.Get(spec.name)
		if err != nil {
			tx.Rollback()
			return err
		}
		if !ok {
			tx.Rollback()
			return nil
		}
		rec, ok := v.Value.(primitive.Record)
		if !ok {
			tx.Rollback()
			return errors.NewInternal("%s holds a malformed record", spec.name)
		}
		if rec.RecordType() != spec.typ {
			tx.Rollback()
			return errors.NewConflict("%s exists as a %s", spec.name, rec.RecordType())
		}
		if spec.guard != nil {
			if err := spec.guard(rec); err != nil {
				tx.Rollback()
				return err
			}
		}
		if _, err := tx.Remove(spec.name); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		removed = rec
		return nil
	}, m.config.retryOptions()...)
	if err != nil {
		return err
	}
	if removed != nil && spec.afterRemove != nil {
		return spec.afterRemove(ctx, removed)
	}
	return nil
}

// collectionSpec describes one get-or-create of a collection primitive. The
// attach callback builds the handle over the element region; initialize runs
// when the collection is created, before the metadata commit.
type collectionSpec struct {
	name       string
	kind       primitive.Type
	create     bool
	config     primitive.CollectionConfig
	initialize func(ctx context.Context, elements store.Cache) error
	attach     func(elements store.Cache, rec primitive.CollectionRecord) (primitive.Handle, error)
}

// getCollection runs the get-or-create protocol for queues and sets. A new
// collection reuses an existing element region with a structurally equal
// configuration, otherwise a fresh region is started.
func (m *Manager) getCollection(ctx context.Context, spec collectionSpec) (primitive.Handle, error) {
	if err := m.lifecycle.await(ctx); err != nil {
		return nil, err
	}
	if handle, ok, err := m.fastPath(ctx, spec.name, spec.kind); err != nil {
		return nil, err
	} else if ok {
		return handle, nil
	}

	cache := m.metadata()
	return store.RetryValue(ctx, func() (primitive.Handle, error) {
		tx, err := cache.Begin(ctx)
		if err != nil {
			return nil, err
		}
		v, ok, err := tx.Get(spec.name)
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		if existing, loaded := m.registry.Load(spec.name); loaded {
			tx.Rollback()
			if existing.Type() != spec.kind {
				return nil, errors.NewConflict("%s already exists as a %s", spec.name, existing.Type())
			}
			return existing, nil
		}

		var rec primitive.CollectionRecord
		if ok {
			rec, ok = v.Value.(primitive.CollectionRecord)
			if !ok {
				tx.Rollback()
				if stored, isRec := v.Value.(primitive.Record); isRec {
					return nil, errors.NewConflict("%s already exists as a %s", spec.name, stored.RecordType())
				}
				return nil, errors.NewInternal("%s holds a malformed record", spec.name)
			}
			if rec.Kind != spec.kind {
				tx.Rollback()
				return nil, errors.NewConflict("%s already exists as a %s", spec.name, rec.Kind)
			}
			if spec.create && spec.config.Collocated != rec.Config.Collocated {
				tx.Rollback()
				return nil, errors.NewConflict("%s was created with collocated=%t", spec.name, rec.Config.Collocated)
			}
		} else {
			if !spec.create {
				tx.Rollback()
				return nil, nil
			}
			cacheName, err := m.compatibleCacheName(ctx, spec.config)
			if err != nil {
				tx.Rollback()
				return nil, err
			}
			rec = primitive.CollectionRecord{
				Kind:      spec.kind,
				CacheName: cacheName,
				Config:    spec.config,
			}
			if err := tx.Put(spec.name, rec); err != nil {
				tx.Rollback()
				return nil, err
			}
		}

		elements, err := m.provider.GetCache(ctx, rec.Config.CacheConfig(rec.CacheName))
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if !ok && spec.initialize != nil {
			if err := spec.initialize(ctx, elements); err != nil {
				tx.Rollback()
				return nil, err
			}
		}
		m.subscribeRegion(elements)

		handle, err := spec.attach(elements, rec)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if existing, loaded := m.registry.LoadOrStore(spec.name, handle); loaded {
			tx.Rollback()
			return existing, nil
		}
		if err := tx.Commit(); err != nil {
			m.registry.Delete(spec.name)
			return nil, err
		}
		if activatable, ok := handle.(primitive.Activatable); ok {
			activatable.OnActivate()
		}
		return handle, nil
	}, m.config.retryOptions()...)
}

// compatibleCacheName finds an element region whose configuration is
// structurally compatible with the requested one, so collections with equal
// configurations share a physical region. A fresh region name is returned
// when none matches.
func (m *Manager) compatibleCacheName(ctx context.Context, config primitive.CollectionConfig) (string, error) {
	entries, err := m.metadata().Scan(ctx, func(key string, value any) bool {
		_, ok := value.(primitive.CollectionRecord)
		return ok
	})
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		rec, ok := entry.Value.Value.(primitive.CollectionRecord)
		if ok && rec.Config.Compatible(config) {
			return rec.CacheName, nil
		}
	}
	return elementCachePrefix + uuid.New().String(), nil
}

// clearElements removes a collection's entries from its element region: the
// header or element keys under "<name>/". Runs after the metadata record is
// gone, so a crash mid-cleanup leaves only unreachable garbage.
func (m *Manager) clearElements(ctx context.Context, name string, rec primitive.CollectionRecord) error {
	elements, ok := m.provider.Cache(rec.CacheName)
	if !ok {
		return nil
	}
	prefix := name + "/"
	entries, err := elements.Scan(ctx, func(key string, value any) bool {
		return key == name || strings.HasPrefix(key, prefix)
	})
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if _, err := elements.Remove(ctx, entry.Key); err != nil {
			return err
		}
	}
	return nil
}
