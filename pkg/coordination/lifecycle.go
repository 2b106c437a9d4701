// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package coordination

import (
	"context"
	"sync"

	"github.com/atomix/runtime/sdk/pkg/errors"
)

type lifecycleState int

const (
	stateInactive lifecycleState = iota
	stateActivating
	stateActive
	stateDeactivating
	stateInitFailed
)

func (s lifecycleState) String() string {
	switch s {
	case stateInactive:
		return "Inactive"
	case stateActivating:
		return "Activating"
	case stateActive:
		return "Active"
	case stateDeactivating:
		return "Deactivating"
	case stateInitFailed:
		return "InitFailed"
	default:
		return "Unknown"
	}
}

func newLifecycle() *lifecycle {
	return &lifecycle{
		state: stateInactive,
	}
}

// lifecycle guards the manager's operational state. Operations arriving while
// the manager is activating block on the barrier until activation settles;
// operations in any other non-active state fail fast. InitFailed is
// absorbing: a manager whose activation failed is never used again.
type lifecycle struct {
	mu      sync.Mutex
	state   lifecycleState
	barrier chan struct{}
}

// activating moves Inactive to Activating and opens the barrier. Returns
// false when the manager is not in a startable state.
func (l *lifecycle) activating() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateInactive {
		return false
	}
	l.state = stateActivating
	l.barrier = make(chan struct{})
	return true
}

// activated settles an activation, releasing everything blocked on the
// barrier.
func (l *lifecycle) activated(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateActivating {
		return
	}
	if err != nil {
		l.state = stateInitFailed
	} else {
		l.state = stateActive
	}
	close(l.barrier)
	l.barrier = nil
}

// deactivating moves Active to Deactivating. Returns false when there is
// nothing to deactivate.
func (l *lifecycle) deactivating() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateActive {
		return false
	}
	l.state = stateDeactivating
	return true
}

func (l *lifecycle) deactivated() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == stateDeactivating {
		l.state = stateInactive
	}
}

// await blocks until the manager is active. Pending activation blocks the
// caller; every other state fails fast.
func (l *lifecycle) await(ctx context.Context) error {
	for {
		l.mu.Lock()
		state := l.state
		barrier := l.barrier
		l.mu.Unlock()

		switch state {
		case stateActive:
			return nil
		case stateActivating:
			select {
			case <-barrier:
			case <-ctx.Done():
				return errors.NewCanceled("%v", ctx.Err())
			}
		case stateInitFailed:
			return errors.NewUnavailable("manager initialization failed")
		default:
			return errors.NewUnavailable("manager is not initialized")
		}
	}
}
