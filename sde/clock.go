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

package sde

import (
	"time"

	"golang.org/x/sys/unix"
)

// Clock is the engine's tick source, standing in for the rtimer the
// original polls via RTIMER_NOW(). It must be monotonic and immune to
// NTP slewing, since phase-lock estimates (spec.md §3 "Phase-lock
// record") accumulate error from any non-hardware-driven jump.
type Clock interface {
	Now() time.Duration
}

// MonotonicRawClock reads CLOCK_MONOTONIC_RAW directly, bypassing the Go
// runtime's NTP-adjusted monotonic clock the same way the teacher's
// phc/timestamp packages read hardware timestamps instead of time.Now().
type MonotonicRawClock struct{}

func (MonotonicRawClock) Now() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		return time.Duration(time.Now().UnixNano())
	}
	return time.Duration(ts.Sec)*time.Second + time.Duration(ts.Nsec)
}

// SimClock is a manually advanced clock for tests and the radio.Sim
// transport, where real wall-clock timing would make tests slow and
// flaky.
type SimClock struct {
	now time.Duration
}

func NewSimClock() *SimClock { return &SimClock{} }

func (c *SimClock) Now() time.Duration { return c.now }

func (c *SimClock) Advance(d time.Duration) { c.now += d }
