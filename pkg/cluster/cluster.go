// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package cluster

// MemberID identifies one process participating in the cluster.
type MemberID string

// ListenerID identifies a registered departure listener.
type ListenerID string

// Membership is the cluster membership contract consumed by the coordination
// layer. Implementations must deliver departure notifications for both
// graceful leaves and detected failures.
type Membership interface {
	// LocalID returns the identifier of the local member
	LocalID() MemberID

	// ClusterID returns the identity of the cluster the member belongs to.
	// The identity changes when the cluster is restarted from scratch.
	ClusterID() string

	// OnDeparture registers a callback invoked once per departed member.
	// Registration is idempotent per returned ListenerID.
	OnDeparture(f func(MemberID)) ListenerID

	// RemoveListener unregisters a departure listener. Removing an unknown
	// listener is a no-op.
	RemoveListener(id ListenerID)
}
