// SPDX-FileCopyrightText: 2023-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeparturesAreDelivered(t *testing.T) {
	hub := NewHub()
	first := hub.Join()
	second := hub.Join()

	var departed []MemberID
	first.OnDeparture(func(id MemberID) {
		departed = append(departed, id)
	})

	second.Leave()
	assert.Equal(t, []MemberID{second.LocalID()}, departed)

	// Leaving twice notifies once.
	second.Leave()
	assert.Len(t, departed, 1)
}

func TestRemovedListenerIsNotNotified(t *testing.T) {
	hub := NewHub()
	first := hub.Join()
	second := hub.Join()

	notified := false
	id := first.OnDeparture(func(MemberID) {
		notified = true
	})
	first.RemoveListener(id)

	second.Leave()
	assert.False(t, notified)
}

func TestRestartChangesClusterIdentity(t *testing.T) {
	hub := NewHub()
	member := hub.Join()

	before := member.ClusterID()
	hub.Restart()
	assert.NotEqual(t, before, member.ClusterID())
}

func TestMembersShareClusterIdentity(t *testing.T) {
	hub := NewHub()
	first := hub.Join()
	second := hub.Join()
	assert.Equal(t, first.ClusterID(), second.ClusterID())
	assert.NotEqual(t, first.LocalID(), second.LocalID())
}
