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

package ccmstar

import "sync/atomic"

// Lock is a counter-based mutual-exclusion guard for the AES-128 engine.
// The block cipher is a process-wide singleton and is not reentrant, so
// concurrent callers must not interleave key-schedule/encrypt calls. Unlike
// sync.Mutex, Lock never blocks: a caller on the hot receive path that finds
// the engine locked is expected to drop the frame rather than wait for it
// (see the duty-cycle engine's "fail closed on contention" rule).
type Lock struct {
	held atomic.Int32
}

// TryAcquire attempts to take the lock and reports whether it succeeded.
func (l *Lock) TryAcquire() bool {
	return l.held.CompareAndSwap(0, 1)
}

// Release gives up the lock. Calling Release without a matching successful
// TryAcquire is a programming error.
func (l *Lock) Release() {
	l.held.Store(0)
}

// Locked reports whether the lock is currently held by anyone.
func (l *Lock) Locked() bool {
	return l.held.Load() != 0
}
