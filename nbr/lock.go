/*
Copyright (c) The llsec Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package nbr

import "sync/atomic"

// Lock is the neighbor table's non-blocking mutual-exclusion counter
// (spec.md §4.3: "a lock (counter, never a blocking primitive) consulted
// by the SDE on the hot path: if locked, the SDE declines to parse and
// drops the frame"). It is deliberately a distinct counter from
// ccmstar.Lock — spec.md §5 lists the AES-128 engine and the neighbor
// table as separate guarded resources, each failing closed independently.
type Lock struct {
	held atomic.Int32
}

// TryAcquire attempts to take the lock, returning false if already held.
func (l *Lock) TryAcquire() bool {
	return l.held.CompareAndSwap(0, 1)
}

// Release gives up the lock.
func (l *Lock) Release() {
	l.held.Store(0)
}

// Locked reports whether the table is currently being mutated.
func (l *Lock) Locked() bool {
	return l.held.Load() != 0
}
