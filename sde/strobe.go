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

	"github.com/meshsec/llsec/nbr"
	"github.com/meshsec/llsec/radio"
)

// PhaseLockFreqTolerance and PhaseLockGuardTime bound how long a stored
// phase estimate may be trusted before its growing uncertainty forces an
// immediate strobe instead of a timed one (spec.md §4.5.2 step 1).
const (
	PhaseLockFreqTolerance = 30 * time.Microsecond // per second of age
	PhaseLockGuardTime     = 500 * time.Microsecond
)

// StrobeParams configures one outbound strobe attempt.
type StrobeParams struct {
	Frame     []byte
	Receiver  nbr.Addr
	Broadcast bool

	// Phase is the stored phase-lock estimate for Receiver, or nil if
	// none exists yet (spec.md §4.5.2 step 1).
	Phase *nbr.Phase

	WakeInterval time.Duration

	// VerifyAck is called once a candidate acknowledgement frame has
	// been read inside the ack window; it returns whether the ack is
	// valid and, if so, the delta it carried.
	VerifyAck func(frame []byte, strobeCount byte) (delta byte, ok bool)
}

// Strobe runs the sender-side strobe loop for one frame (spec.md
// §4.5.2), grounded on secrdc.c's strobe()/should_strobe_again().
// Broadcast frames strobe for the full wake interval with no
// acknowledgement; unicast frames stop on the first accepted ack, a
// timeout, a collision, or an error.
func Strobe(d radio.Driver, clk Clock, sleep sleeper, p StrobeParams) (SendResult, *nbr.Phase, int, error) {
	if delay := phaseLockDelay(p.Phase, p.Broadcast, clk, p.WakeInterval); delay > 0 {
		sleep(delay)
	}

	if err := d.Prepare(p.Frame); err != nil {
		return ResultError, p.Phase, 0, err
	}

	deadline := clk.Now() + p.WakeInterval
	var strobeCount byte
	for clk.Now() < deadline {
		clear, err := d.ChannelClear()
		if err != nil {
			return ResultError, p.Phase, int(strobeCount), err
		}
		if !clear {
			return ResultCollision, p.Phase, int(strobeCount), nil
		}

		txAt := clk.Now()
		if err := d.Transmit(); err != nil {
			return ResultError, p.Phase, int(strobeCount), err
		}
		strobeCount++

		if !p.Broadcast {
			result, learned := waitForAck(d, clk, sleep, txAt, strobeCount, p.VerifyAck)
			if result == ResultOK {
				return ResultOK, learned, int(strobeCount), nil
			}
			if result == ResultCollision || result == ResultError {
				return result, p.Phase, int(strobeCount), nil
			}
			// ResultNoAck: fall through and strobe again.
		}

		sleep(StrobeRetransmitDelay())
	}

	if p.Broadcast {
		return ResultOK, p.Phase, int(strobeCount), nil
	}
	return ResultNoAck, p.Phase, int(strobeCount), nil
}

// phaseLockDelay implements spec.md §4.5.2 step 1: defer strobing until
// phase-guard ticks before the receiver's predicted wake, abandoning
// phase lock (strobing immediately) once the accumulated uncertainty
// exceeds half the wake interval.
func phaseLockDelay(phase *nbr.Phase, broadcast bool, clk Clock, wakeInterval time.Duration) time.Duration {
	if broadcast || phase == nil || !phase.Known() {
		return 0
	}
	age := clk.Now() - time.Duration(phase.T)
	uncertainty := PhaseLockGuardTime + PhaseLockFreqTolerance*time.Duration(age/time.Second+1)
	if uncertainty >= wakeInterval/2 {
		return 0
	}
	target := time.Duration(phase.T) - ReceiveCalibration - CCADuration - TransmitCalibration - uncertainty
	// phase.T is a past wake; project the target onto the next one.
	if now := clk.Now(); target <= now && wakeInterval > 0 {
		target += ((now-target)/wakeInterval + 1) * wakeInterval
	}
	if target <= clk.Now() {
		return 0
	}
	return target - clk.Now()
}

// waitForAck listens in the fixed acknowledgement window
// [AckWindowMin, AckWindowMax] after txAt for a frame that verifies
// against strobeCount (spec.md §4.5.2 steps 3-5).
func waitForAck(d radio.Driver, clk Clock, sleep sleeper, txAt time.Duration, strobeCount byte, verify func([]byte, byte) (byte, bool)) (SendResult, *nbr.Phase) {
	windowEnd := txAt + AckWindowMax
	for clk.Now() < windowEnd {
		select {
		case ev := <-d.Events():
			if ev.Event != radio.EventFinalFIFOP {
				continue
			}
			frame, err := d.ReadRemainder()
			if err != nil {
				continue
			}
			delta, ok := verify(frame, strobeCount)
			if !ok {
				continue
			}
			// Learn phase from t1[0] - ack.delta (spec.md §4.5.3).
			learned := nbr.NewPhase()
			learned.Update(time.Now(), int64(txAt-time.Duration(delta)), 0, false)
			return ResultOK, learned
		case <-time.After(AckWindow()):
			return ResultNoAck, nil
		}
	}
	return ResultNoAck, nil
}
