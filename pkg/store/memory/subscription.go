// SPDX-FileCopyrightText: 2023-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"sync"

	"github.com/atomix/runtime/sdk/pkg/logging"
	"github.com/gridkit/coordination/pkg/store"
)

var log = logging.GetLogger()

func newSubscription(id store.SubscriptionID, filter store.EventFilter, handler func(store.Event)) *subscription {
	sub := &subscription{
		id:      id,
		filter:  filter,
		handler: handler,
	}
	sub.cond = sync.NewCond(&sub.mu)
	return sub
}

// subscription delivers events on its own goroutine, preserving publication
// order. The queue is unbounded so publishers never block on slow handlers.
type subscription struct {
	id      store.SubscriptionID
	filter  store.EventFilter
	handler func(store.Event)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []store.Event
	closed bool
}

func (s *subscription) enqueue(event store.Event) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, event)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscription) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		event := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if s.filter == nil || s.filter(event) {
			s.deliver(event)
		}
	}
}

// deliver isolates handler panics so one bad event cannot stop the feed.
func (s *subscription) deliver(event store.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("change feed handler panic on key %s: %v", event.Key, r)
		}
	}()
	s.handler(event)
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}
