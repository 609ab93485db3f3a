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

package radio

import (
	"errors"
	"sync"
	"time"
)

// airFrame is what travels across a Sim pair's shared medium.
type airFrame struct {
	bytes []byte
}

// Sim is an in-memory Driver pairing two simulated radios over Go
// channels, standing in for the CCA/SHR/FIFOP timing secrdc.c gets from
// real transceiver hardware (spec.md §4.5.1-§4.5.2). No test or command
// in this module uses it: sde's tests drive fakeStrobeDriver and
// radiomock, and cmd/meshd run always opens a SerialDriver.
type Sim struct {
	mu      sync.Mutex
	on      bool
	shr     bool
	fifop   int
	events  chan EventNotification
	air     chan airFrame
	peerAir chan airFrame

	rx       []byte
	rxOffset int
	prepared []byte

	now func() time.Duration
}

// NewSimPair returns two Sims wired to each other: anything one
// transmits, the other receives.
func NewSimPair(now func() time.Duration) (*Sim, *Sim) {
	a := make(chan airFrame, 4)
	b := make(chan airFrame, 4)
	s1 := &Sim{events: make(chan EventNotification, 16), air: a, peerAir: b, now: now}
	s2 := &Sim{events: make(chan EventNotification, 16), air: b, peerAir: a, now: now}
	go s1.listen()
	go s2.listen()
	return s1, s2
}

func (s *Sim) listen() {
	for frame := range s.air {
		s.mu.Lock()
		on := s.on
		s.mu.Unlock()
		if !on {
			continue
		}
		s.mu.Lock()
		s.rx = frame.bytes
		s.rxOffset = 0
		s.mu.Unlock()

		s.events <- EventNotification{Event: EventSFD, At: s.now()}
		s.events <- EventNotification{Event: EventFIFOP, At: s.now()}
		s.events <- EventNotification{Event: EventFinalFIFOP, At: s.now()}
	}
}

func (s *Sim) On() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = true
	return nil
}

func (s *Sim) Off() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = false
	return nil
}

// ChannelClear always reports a clear channel: the simulated medium has
// no ambient noise source, only explicit Transmit calls.
func (s *Sim) ChannelClear() (bool, error) {
	return true, nil
}

func (s *Sim) EnableSHRSearch(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shr = enabled
	return nil
}

func (s *Sim) Prepare(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepared = append([]byte(nil), frame...)
	return nil
}

func (s *Sim) Transmit() error {
	s.mu.Lock()
	frame := s.prepared
	s.mu.Unlock()
	if frame == nil {
		return errors.New("radio: nothing prepared")
	}
	s.peerAir <- airFrame{bytes: frame}
	s.events <- EventNotification{Event: EventTXDone, At: s.now()}
	return nil
}

func (s *Sim) ReadPartial(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rxOffset+n > len(s.rx) {
		return nil, errors.New("radio: short read")
	}
	out := s.rx[s.rxOffset : s.rxOffset+n]
	s.rxOffset += n
	return out, nil
}

func (s *Sim) ReadRemainder() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.rx[s.rxOffset:]
	s.rxOffset = len(s.rx)
	return out, nil
}

func (s *Sim) FlushRX() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rx = nil
	s.rxOffset = 0
	return nil
}

func (s *Sim) Events() <-chan EventNotification {
	return s.events
}
