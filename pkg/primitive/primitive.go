// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package primitive

import (
	"sync/atomic"

	"github.com/gridkit/coordination/pkg/cluster"
)

// Type is the discriminant of a coordination primitive. The type of a name
// is fixed by the first successful create and never changes afterwards.
type Type string

const (
	Sequence        Type = "Sequence"
	AtomicLong      Type = "AtomicLong"
	AtomicReference Type = "AtomicReference"
	AtomicStamped   Type = "AtomicStamped"
	CountDownLatch  Type = "CountDownLatch"
	Semaphore       Type = "Semaphore"
	ReentrantLock   Type = "ReentrantLock"
	Queue           Type = "Queue"
	Set             Type = "Set"
)

// Handle is the process-local object representing one primitive instance.
// A handle is owned by the manager's registry while registered; callers hold
// shared references that may outlive a single get call.
type Handle interface {
	// Name returns the primitive name
	Name() string

	// Type returns the primitive type
	Type() Type

	// OnRemoved detaches the handle after its durable record was removed.
	// It must be idempotent: removal can be observed both by the remover and
	// by the change feed.
	OnRemoved()

	// NeedCheckNotRemoved marks the handle for lazy revalidation against the
	// store on its next use.
	NeedCheckNotRemoved()
}

// Updatable is implemented by handles that consume change-feed updates of
// their durable record. Updates may arrive out of order and redundantly;
// implementations must be idempotent and discard stale versions.
type Updatable interface {
	Handle
	OnUpdate(value Versioned[Record])
}

// MemberAware is implemented by handles holding per-member resources
// (lock ownership, semaphore permits) that must be released when the owning
// member departs the cluster.
type MemberAware interface {
	Handle
	OnNodeRemoved(id cluster.MemberID)
}

// Activatable is implemented by handles with activation hooks.
type Activatable interface {
	OnActivate()
}

// Stoppable is implemented by handles that must be notified on manager stop.
type Stoppable interface {
	OnStop()
}

// NewBase creates the common state embedded by every handle implementation.
func NewBase(name string, typ Type) *Base {
	return &Base{
		name: name,
		typ:  typ,
	}
}

// Base carries the name, type and removal state shared by all handles.
type Base struct {
	name    string
	typ     Type
	removed atomic.Bool
	check   atomic.Bool
}

func (b *Base) Name() string {
	return b.name
}

func (b *Base) Type() Type {
	return b.typ
}

func (b *Base) OnRemoved() {
	b.removed.Store(true)
}

// Removed reports whether the durable record backing this handle is known to
// be gone.
func (b *Base) Removed() bool {
	return b.removed.Load()
}

func (b *Base) NeedCheckNotRemoved() {
	b.check.Store(true)
}

// TakeCheck consumes a pending revalidation request.
func (b *Base) TakeCheck() bool {
	return b.check.Swap(false)
}
