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

import "time"

// Timing constants from spec.md §4.5.4, carried over from secrdc.c's
// US_TO_RTIMERTICKS-derived #defines. The original expresses everything
// in platform rtimer ticks fixed at compile time; this rendering keeps
// the same microsecond values but carries them as time.Duration so the
// engine can run against any Go monotonic clock source (see clock.go),
// not just a specific radio chip's timer frequency.
const (
	// InterFramePeriod is T_i, the nominal spacing between strobe
	// transmissions.
	InterFramePeriod = 1068 * time.Microsecond

	// ReceiveCalibration and TransmitCalibration are the radio's
	// turn-on settling times (RECEIVE_CALIBRATION_TIME /
	// TRANSMIT_CALIBRATION_TIME).
	ReceiveCalibration  = 193 * time.Microsecond
	TransmitCalibration = 193 * time.Microsecond

	// CCADuration is one clear-channel-assessment sample window.
	CCADuration = 129 * time.Microsecond

	// MaxNoise bounds how long the fast-sleep loop may wait for the
	// channel to fall silent before giving up (MAX_NOISE).
	MaxNoise = 4257 * time.Microsecond

	// ShrDetectionTime is the budget allowed for a preamble (SHR) to
	// appear once silence has been observed (SHR_DETECTION_TIME).
	ShrDetectionTime = 161 * time.Microsecond

	// SilenceCheckPeriod is the fast-sleep recheck cadence
	// (SILENCE_CHECK_PERIOD).
	SilenceCheckPeriod = 250 * time.Microsecond

	// AckWindowMin/AckWindowMax bound when a unicast acknowledgement
	// must arrive relative to the end of a strobe transmission
	// (ACKNOWLEDGEMENT_WINDOW_MIN/MAX). T_a = AckWindowMax - AckWindowMin.
	AckWindowMin = 336 * time.Microsecond
	AckWindowMax = 427 * time.Microsecond
)

// InterCCAPeriod is T_c, the gap between a wake-up's two CCA samples
// (INTER_FRAME_PERIOD - RECEIVE_CALIBRATION_TIME - CCA_DURATION in the
// original; secrdc.c's own T_c omits the CCA term, which we preserve).
func InterCCAPeriod() time.Duration {
	return InterFramePeriod - ReceiveCalibration
}

// DozingPeriod is how long the fast-sleep loop powers the radio down
// between silence rechecks.
func DozingPeriod() time.Duration {
	return InterFramePeriod - ReceiveCalibration - CCADuration
}

// AckWindow is T_a, the acceptance width for a returning acknowledgement:
// AckWindowMax - AckWindowMin. The one-tick term of the tick-based formula
// in spec.md §4.5.3 is not added to this Duration.
func AckWindow() time.Duration {
	return AckWindowMax - AckWindowMin
}

// StrobeRetransmitDelay is the gap the sender waits between strobe
// transmissions: T_i - T_txcal. The two-tick term of the tick-based
// formula in spec.md §4.5.2 is not added to this Duration.
func StrobeRetransmitDelay() time.Duration {
	return InterFramePeriod - TransmitCalibration
}

// DefaultGuardTime is the minimum lead time the engine must schedule ahead of
// any timer deadline to guarantee it fires on time (spec.md §4.5.4:
// "must schedule at least RTIMER_GUARD_TIME+1 ticks ahead"). Unlike the
// other constants this is platform-dependent in the original
// (RTIMER_GUARD_TIME is an arch #define); we default to a conservative
// value suitable for a software clock. No Config field overrides it, and
// no code in this module reads it.
const DefaultGuardTime = 20 * time.Microsecond
