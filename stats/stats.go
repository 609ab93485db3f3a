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

/*
Package stats implements operational metric collection for the secure
duty-cycle engine: counters an operator scrapes out-of-band, never
counters the engine itself branches on. Per spec.md §7's error taxonomy,
framing/MIC/replay rejections fold into one undifferentiated counter —
the same FRAMER_FAILED collapse the OTP framer itself enforces — so nothing
here exposes which validation step rejected a frame.
*/
package stats

import "sync"

// Stats is the metric surface sde.Engine and akes.Engine report through.
type Stats interface {
	// IncWake counts one duty-cycle wake by its outcome name ("silence",
	// "noise-timed-out", "no-shr", "rejected-by-otp", "accepted").
	IncWake(outcome string)

	// IncRejected counts one dropped frame, regardless of which
	// validation step rejected it (spec.md §7).
	IncRejected()

	// IncStrobeRetransmit counts one additional strobe transmission
	// beyond a frame's first.
	IncStrobeRetransmit()

	// IncSendResult counts a terminal send outcome ("ok", "no-ack",
	// "collision", "error" — sde.SendResult.String()).
	IncSendResult(result string)

	// IncHandshake counts one handshake-engine event ("hello-sent",
	// "hello-received", "helloack-sent", "helloack-received",
	// "ack-sent", "ack-received", "admission-rejected").
	IncHandshake(event string)

	// IncOTPCacheFull counts a HELLOACK rejected solely because the
	// bounded OTP replay cache was full (spec.md §9 Open Question 2:
	// the cache never expires by design). No caller in this module
	// invokes it: the otp framer rejects a HELLOACK on a full cache
	// without reporting to Stats, so the counter stays at 0.
	IncOTPCacheFull()

	// Snapshot returns a point-in-time copy of every counter, keyed by
	// metric name, for exporters to render.
	Snapshot() map[string]int64

	// Reset zeroes every counter.
	Reset()
}

// counters is a sync-map-backed Stats implementation (grounded on
// ptp4u/stats.syncMapInt64: a mutex-guarded map keyed by a dynamic label
// rather than one field per label, since wake outcomes, send results and
// handshake events are each a small open set of strings).
type counters struct {
	mu                sync.Mutex
	wakes             map[string]int64
	sendResults       map[string]int64
	handshakeEvents   map[string]int64
	rejected          int64
	strobeRetransmits int64
	otpCacheFull      int64
}

// New returns a Stats backed by in-process atomic-ish counters (guarded
// by a single mutex, matching the teacher's syncMapInt64 pattern rather
// than sync/atomic, since every increment also needs map-key creation).
func New() Stats {
	return &counters{
		wakes:           make(map[string]int64),
		sendResults:     make(map[string]int64),
		handshakeEvents: make(map[string]int64),
	}
}

func (c *counters) IncWake(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wakes[outcome]++
}

func (c *counters) IncRejected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected++
}

func (c *counters) IncStrobeRetransmit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strobeRetransmits++
}

func (c *counters) IncSendResult(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendResults[result]++
}

func (c *counters) IncHandshake(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handshakeEvents[event]++
}

func (c *counters) IncOTPCacheFull() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.otpCacheFull++
}

func (c *counters) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.wakes)+len(c.sendResults)+len(c.handshakeEvents)+3)
	for k, v := range c.wakes {
		out["wake."+k] = v
	}
	for k, v := range c.sendResults {
		out["send."+k] = v
	}
	for k, v := range c.handshakeEvents {
		out["handshake."+k] = v
	}
	out["rejected_total"] = c.rejected
	out["strobe_retransmit_total"] = c.strobeRetransmits
	out["otp_cache_full_total"] = c.otpCacheFull
	return out
}

func (c *counters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wakes = make(map[string]int64)
	c.sendResults = make(map[string]int64)
	c.handshakeEvents = make(map[string]int64)
	c.rejected = 0
	c.strobeRetransmits = 0
	c.otpCacheFull = 0
}
