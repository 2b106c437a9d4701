// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package primitive

import (
	"github.com/gridkit/coordination/pkg/cluster"
)

// Record is the durable state of one primitive, stored in the backing store
// under the primitive name. Exactly one variant exists per Type; collection
// primitives (queue, set) share the CollectionRecord variant that points at
// the region holding their elements.
type Record interface {
	RecordType() Type
}

// SequenceRecord holds the global counter of a sequence. The counter is
// always past every range reserved by any member.
type SequenceRecord struct {
	Counter int64
}

func (SequenceRecord) RecordType() Type { return Sequence }

// CounterRecord holds the value of an atomic long.
type CounterRecord struct {
	Value int64
}

func (CounterRecord) RecordType() Type { return AtomicLong }

// ValueRecord holds the codec-encoded payload of an atomic reference.
type ValueRecord struct {
	Value []byte
}

func (ValueRecord) RecordType() Type { return AtomicReference }

// StampedRecord holds the codec-encoded payload and stamp of an atomic
// stamped value.
type StampedRecord struct {
	Value []byte
	Stamp []byte
}

func (StampedRecord) RecordType() Type { return AtomicStamped }

// LatchRecord holds the state of a count-down latch.
type LatchRecord struct {
	Count        int
	InitialCount int
	AutoDelete   bool
}

func (LatchRecord) RecordType() Type { return CountDownLatch }

// SemaphoreRecord holds the state of a semaphore. Permits is the number of
// permits currently available; Holders attributes held permits to members so
// they can be recovered when a member departs.
type SemaphoreRecord struct {
	Permits      int
	Holders      map[cluster.MemberID]int
	FailoverSafe bool
	Broken       bool
}

func (SemaphoreRecord) RecordType() Type { return Semaphore }

// LockRecord holds the state of a reentrant lock. Owner is empty when the
// lock is not held; Count is the reentrancy depth of the owner.
type LockRecord struct {
	Owner        cluster.MemberID
	Count        int
	FailoverSafe bool
	Fair         bool
	Broken       bool
}

func (LockRecord) RecordType() Type { return ReentrantLock }

// CollectionRecord is the metadata of a queue or set: the kind of the
// collection, the physical region holding its elements and the configuration
// it was created with. The configuration drives compatible-region reuse.
type CollectionRecord struct {
	Kind      Type
	CacheName string
	Config    CollectionConfig
}

func (r CollectionRecord) RecordType() Type { return r.Kind }
