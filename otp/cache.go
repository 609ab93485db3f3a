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

package otp

import "bytes"

// HelloAckCache tracks every HELLOACK OTP this node has accepted since the
// last Clear, so a reflected/replayed HELLOACK can be rejected even though
// each one individually recomputes to a valid special OTP (spec.md §4.1:
// "Each node caches at most N_tentative recently observed HELLOACK OTPs to
// reject replays."). It deliberately never expires entries on its own, and
// nothing in this module calls Clear, so Full() is the caller's signal to
// refuse new HELLOACKs rather than silently evicting history.
type HelloAckCache struct {
	cap     int
	entries [][]byte
}

// NewHelloAckCache returns a cache bounded at capacity entries
// (MAX_CACHED_OTPS == AKES_NBR_MAX_TENTATIVES in potr.c).
func NewHelloAckCache(capacity int) *HelloAckCache {
	return &HelloAckCache{cap: capacity}
}

// Full reports whether the cache has reached capacity.
func (c *HelloAckCache) Full() bool {
	return len(c.entries) >= c.cap
}

// Contains reports whether otp has already been cached.
func (c *HelloAckCache) Contains(otp []byte) bool {
	for _, e := range c.entries {
		if bytes.Equal(e, otp) {
			return true
		}
	}
	return false
}

// Add records a newly observed HELLOACK OTP. The caller must have already
// checked Full() — Add on a full cache is a caller error and is a no-op.
func (c *HelloAckCache) Add(otp []byte) {
	if c.Full() {
		return
	}
	c.entries = append(c.entries, append([]byte(nil), otp...))
}

// Clear empties the cache (potr_clear_cached_otps). No caller in this
// module invokes it.
func (c *HelloAckCache) Clear() {
	c.entries = c.entries[:0]
}
