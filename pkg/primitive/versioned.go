// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package primitive

// Version is a monotonically increasing version of a stored value.
type Version uint64

// Versioned is a versioned value.
type Versioned[V any] struct {
	Version Version
	Value   V
}
