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

import (
	"time"

	"github.com/eclesh/welford"
)

// UpdateThreshold is the default age at which a phase estimate is treated
// as stale (spec.md §3 "Phase-lock record", default 5 minutes;
// SECRDC_UPDATE_THRESHOLD in secrdc.h).
const UpdateThreshold = 5 * time.Minute

// Phase is a single radio-tick timestamp per permanent neighbor: either
// zero (unknown) or the instant at which that peer last emitted a
// preamble, aging out after UpdateThreshold (spec.md §3).
type Phase struct {
	// T is the last observed preamble instant, in radio ticks. Zero means
	// "unknown", matching the original's reservation of 0 as a sentinel
	// (secrdc.c: "zero is reserved for uninitialized phase-lock data").
	T int64

	// ObservedAt is the wall-clock time the estimate in T was recorded,
	// used to evaluate staleness against UpdateThreshold.
	ObservedAt time.Time

	// jitter tracks the running mean/variance of (measured − predicted)
	// phase correction error using Welford's streaming algorithm. This is
	// pure telemetry — spec.md doesn't ask for it, and it never feeds back
	// into acceptance or scheduling decisions. It is read only through
	// JitterMean/JitterStdDev; the stats package does not report it, and
	// it gains samples only from Update calls that pass a prediction.
	jitter *welford.Stats
}

// NewPhase returns a zero (unknown) phase-lock record.
func NewPhase() *Phase {
	return &Phase{jitter: welford.New()}
}

// Known reports whether a usable phase estimate exists.
func (p *Phase) Known() bool {
	return p.T != 0
}

// Stale reports whether the estimate is older than threshold.
func (p *Phase) Stale(now time.Time, threshold time.Duration) bool {
	if !p.Known() {
		return true
	}
	return now.Sub(p.ObservedAt) >= threshold
}

// Update records a freshly learned phase instant and folds the correction
// error (relative to a prior prediction, if any) into the jitter
// statistics.
func (p *Phase) Update(now time.Time, t int64, predicted int64, havePrediction bool) {
	if havePrediction {
		p.jitter.Add(float64(t - predicted))
	}
	p.T = t
	p.ObservedAt = now
}

// JitterMean and JitterStdDev expose the running statistics for the stats
// package to report; both return 0 until at least one sample has been
// folded in.
func (p *Phase) JitterMean() float64 {
	if p.jitter.Count() == 0 {
		return 0
	}
	return p.jitter.Mean()
}

func (p *Phase) JitterStdDev() float64 {
	if p.jitter.Count() < 2 {
		return 0
	}
	return p.jitter.Stddev()
}
