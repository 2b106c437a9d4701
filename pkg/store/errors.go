// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"github.com/atomix/runtime/sdk/pkg/errors"
)

// NewTransientTopology returns an error for an operation invalidated by an
// in-flight topology change. Transient topology errors are the only errors
// the retry executor retries.
func NewTransientTopology(msg string, args ...any) error {
	return errors.NewUnavailable(msg, args...)
}

// IsTransientTopology checks whether the given error is a transient
// topology error.
func IsTransientTopology(err error) bool {
	return errors.IsUnavailable(err)
}

// NewTerminalTopology returns an error for a topology failure that cannot
// heal by waiting, e.g. no server owns the partition. Never retried.
func NewTerminalTopology(msg string, args ...any) error {
	return errors.NewInternal(msg, args...)
}

// IsTerminalTopology checks whether the given error is a terminal topology
// error.
func IsTerminalTopology(err error) bool {
	return errors.IsInternal(err)
}
