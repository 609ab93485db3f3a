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

	"github.com/meshsec/llsec/otp"
	"github.com/meshsec/llsec/radio"
)

// WakeOutcome is how one receiver-side wake-up ended (spec.md §4.5.1).
type WakeOutcome int

const (
	// WakeSilence: both CCAs found the channel clear; the wake ends
	// immediately.
	WakeSilence WakeOutcome = iota
	// WakeNoiseTimedOut: energy was present but no SHR appeared within
	// MaxNoise.
	WakeNoiseTimedOut
	// WakeNoSHR: silence was observed and SHR search armed, but no
	// preamble arrived within the budget.
	WakeNoSHR
	// WakeRejectedByOTP: a frame arrived and was read in full (the
	// FIFOPThreshold prefix, then the remainder), but the OTP framer
	// rejected it or the neighbor table was locked.
	WakeRejectedByOTP
	// WakeAccepted: the frame passed OTP validation; the caller should
	// proceed to the final-FIFOP step (authenticated read + ack).
	WakeAccepted
)

const maxCCAs = 2

// sleeper abstracts time.Sleep so tests can run a duty cycle without
// burning wall-clock time; production wiring passes time.Sleep itself.
type sleeper func(time.Duration)

// RunDutyCycle executes one receiver-side wake-up (spec.md §4.5.1),
// grounded on secrdc.c's duty_cycle protothread: up to two CCA samples,
// a fast-sleep noise-waiting loop bounded by MaxNoise, then an SHR
// search bounded by InterFramePeriod+ShrDetectionTime+1 tick. On
// WakeAccepted, the returned Parsed is the framer's result for the caller
// to act on.
func RunDutyCycle(d radio.Driver, framer *otp.Framer, header otp.Header, sleep sleeper, vp otp.ValidateParams) (WakeOutcome, *otp.Parsed, error) {
	if err := d.On(); err != nil {
		return WakeSilence, nil, err
	}

	sawEnergy := false
	for cca := 0; cca < maxCCAs; cca++ {
		clear, err := d.ChannelClear()
		if err != nil {
			return WakeSilence, nil, err
		}
		if clear {
			continue
		}
		sawEnergy = true
		break
	}

	if !sawEnergy {
		d.Off()
		return WakeSilence, nil, nil
	}

	deadline := MaxNoise
	gotSilence := false
	for elapsed := time.Duration(0); elapsed < deadline; elapsed += DozingPeriod() {
		d.Off()
		sleep(DozingPeriod())
		d.On()
		clear, err := d.ChannelClear()
		if err != nil {
			return WakeNoiseTimedOut, nil, err
		}
		if clear {
			gotSilence = true
			break
		}
	}
	if !gotSilence {
		d.Off()
		return WakeNoiseTimedOut, nil, nil
	}

	if err := d.EnableSHRSearch(true); err != nil {
		return WakeNoSHR, nil, err
	}
	shrBudget := InterFramePeriod + ShrDetectionTime + 1

	gotSHR := false
	select {
	case ev := <-d.Events():
		if ev.Event == radio.EventSFD {
			gotSHR = true
		}
	case <-time.After(shrBudget):
	}
	d.EnableSHRSearch(false)

	if !gotSHR {
		d.Off()
		return WakeNoSHR, nil, nil
	}

	// FIFOP: read up to the threshold, then the remainder, and hand the
	// whole frame to the OTP framer. The framer does not run on the
	// prefix alone, so a frame it rejects has still been read in full.
	prefix, err := d.ReadPartial(header.FIFOPThreshold())
	if err != nil {
		d.FlushRX()
		d.Off()
		return WakeRejectedByOTP, nil, err
	}

	rest, err := d.ReadRemainder()
	if err != nil {
		d.FlushRX()
		d.Off()
		return WakeRejectedByOTP, nil, err
	}
	full := append(append([]byte(nil), prefix...), rest...)

	// A locked neighbor table means it is being mutated: decline to
	// parse and drop the frame.
	if framer.Table != nil && framer.Table.Lock.Locked() {
		d.FlushRX()
		d.Off()
		return WakeRejectedByOTP, nil, nil
	}

	parsed, err := framer.ParseAndValidate(full, vp)
	if err != nil {
		d.FlushRX()
		d.Off()
		return WakeRejectedByOTP, nil, nil
	}

	return WakeAccepted, parsed, nil
}
