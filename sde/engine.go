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
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/meshsec/llsec/akes"
	"github.com/meshsec/llsec/framerchain"
	"github.com/meshsec/llsec/nbr"
	"github.com/meshsec/llsec/otp"
	"github.com/meshsec/llsec/radio"
	"github.com/meshsec/llsec/stats"
)

// Mode is the engine's current tagged state, the Go analogue of the
// original's static protothread union (spec.md §5 "Design Notes'
// tagged variant guidance"): only one of duty-cycle or strobe is ever
// active, because the owning goroutine runs them one at a time.
type Mode int

const (
	ModeIdle Mode = iota
	ModeDutyCycle
	ModeStrobe
)

func (m Mode) String() string {
	switch m {
	case ModeDutyCycle:
		return "duty-cycle"
	case ModeStrobe:
		return "strobe"
	default:
		return "idle"
	}
}

// Config holds the engine's static knobs (spec.md §6).
type Config struct {
	SelfAddr          nbr.Addr
	WakeInterval      time.Duration
	UnicastSecLevel   byte
	BroadcastSecLevel byte
	AckTagLen         int

	// WithSecurePhaseLock selects between the two phase-lock strategies
	// spec.md §9 Open Question 1 leaves undecided: when true (the
	// "secure" variant), the engine predicts the receiver's wake and
	// learns phase only from an authenticated acknowledgement's delta
	// (spec.md §4.5.2-§4.5.3); when false (the original SecRDC
	// behavior), every strobe runs the full wake interval with no
	// phase prediction at all.
	WithSecurePhaseLock bool

	// Stats is optional; nil disables metric collection (used by tests
	// that construct a Config literal without it).
	Stats stats.Stats
}

// Engine drives one duty-cycled radio: a single goroutine (run) owns the
// duty-cycle/strobe state machines and the radio.Driver, handing
// successfully-parsed frames to a second goroutine (postProcessing) over
// a one-slot channel, and waiting for that goroutine's acknowledgement
// before arming the next wake — the Go rendering of spec.md §5's "the
// post-processing task runs to completion before the next wake arms its
// timer". Grounded on the worker-supervision shape of
// fbclock/daemon.Daemon.Run (ticker-driven loop, errgroup fan-out).
type Engine struct {
	cfg       Config
	driver    radio.Driver
	clock     Clock
	header    otp.Header
	framer    *otp.Framer
	handshake *akes.Engine
	table     *nbr.Table
	queue     *SendQueue

	mode    Mode
	counter atomic.Uint32

	signal chan struct{}
	log    *log.Entry
}

// NewEngine wires the duty-cycle engine over an already-constructed
// radio driver, OTP framer, handshake engine, neighbor table, and send
// queue — all of which must be the same instances the rest of the
// application uses, since the engine only orchestrates them.
func NewEngine(cfg Config, driver radio.Driver, clock Clock, header otp.Header, framer *otp.Framer, handshake *akes.Engine, table *nbr.Table, queue *SendQueue) *Engine {
	return &Engine{
		cfg:       cfg,
		driver:    driver,
		clock:     clock,
		header:    header,
		framer:    framer,
		handshake: handshake,
		table:     table,
		queue:     queue,
		signal:    make(chan struct{}),
		log:       log.WithField("component", "sde"),
	}
}

// Mode reports the engine's current tagged state, mainly for tests and
// diagnostics; run is the only writer.
func (e *Engine) Mode() Mode {
	return e.mode
}

// nextCounter returns the next monotonic outgoing frame counter value.
func (e *Engine) nextCounter() uint32 {
	return e.counter.Add(1)
}

func (e *Engine) incWake(outcome string) {
	if e.cfg.Stats != nil {
		e.cfg.Stats.IncWake(outcome)
	}
}

func (e *Engine) incRejected() {
	if e.cfg.Stats != nil {
		e.cfg.Stats.IncRejected()
	}
}

func (e *Engine) incSendResult(result string) {
	if e.cfg.Stats != nil {
		e.cfg.Stats.IncSendResult(result)
	}
}

// Start runs the engine until ctx is cancelled or a goroutine returns a
// non-nil error, per spec.md §7: only configuration errors are fatal, so
// Start's error is meant for the caller (cmd/meshd) to log.Fatal on, not
// for per-frame failures which never leave this package as errors.
func (e *Engine) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	results := make(chan *otp.Parsed, 1)

	g.Go(func() error { return e.postProcessing(ctx, results) })
	g.Go(func() error { return e.run(ctx, results) })

	return g.Wait()
}

// run is the engine's single owning goroutine: it alternates between
// duty-cycle wakes (receiver side) and draining the send queue (sender
// side), never running both state machines concurrently.
func (e *Engine) run(ctx context.Context, results chan<- *otp.Parsed) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		e.mode = ModeDutyCycle
		ourHelloChallenge, haveHelloChallenge := e.handshake.OutstandingHello()
		vp := otp.ValidateParams{OurHelloChallenge: ourHelloChallenge, HaveHelloChallenge: haveHelloChallenge}
		outcome, parsed, err := RunDutyCycle(e.driver, e.framer, e.header, time.Sleep, vp)
		if err != nil {
			e.log.WithError(err).Debug("duty cycle error")
		}

		e.incWake(wakeOutcomeName(outcome))
		if outcome == WakeRejectedByOTP {
			e.incRejected()
		}

		if outcome == WakeAccepted {
			select {
			case results <- parsed:
			case <-ctx.Done():
				return ctx.Err()
			}
			select {
			case <-e.signal:
			case <-ctx.Done():
				return ctx.Err()
			}
		} else {
			e.log.Debugf("wake outcome: %s", wakeOutcomeName(outcome))
		}

		e.mode = ModeStrobe
		if bf := e.queue.Dequeue(); bf != nil {
			e.strobeOne(bf)
		}
	}
}

func wakeOutcomeName(o WakeOutcome) string {
	switch o {
	case WakeSilence:
		return "silence"
	case WakeNoiseTimedOut:
		return "noise-timed-out"
	case WakeNoSHR:
		return "no-shr"
	case WakeRejectedByOTP:
		return "rejected-by-otp"
	case WakeAccepted:
		return "accepted"
	default:
		return "unknown"
	}
}

// postProcessing handles one parsed frame at a time, mirroring spec.md
// §5's "polled worker task": it runs to completion (dispatching to the
// handshake engine or the data path, and sending an authenticated
// acknowledgement when required) before signalling run to arm the next
// wake.
func (e *Engine) postProcessing(ctx context.Context, results <-chan *otp.Parsed) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p := <-results:
			e.handle(p)
			select {
			case e.signal <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (e *Engine) handle(p *otp.Parsed) {
	switch p.Type {
	case otp.TypeHello:
		e.handleHello(p)
	case otp.TypeHelloAck, otp.TypeHelloAckPrime:
		e.handleHelloAck(p)
	case otp.TypeAck:
		e.handleAck(p)
	default:
		e.handleData(p)
	}
}

func (e *Engine) handleHello(p *otp.Parsed) {
	challenge, ok := extractChallenge(p.Body)
	if !ok {
		e.log.Debug("hello missing challenge")
		return
	}
	entry, err := e.handshake.ReceiveHello(p.Src, challenge)
	if err != nil {
		e.log.WithError(err).Debug("rejected hello")
		return
	}
	delay := e.handshake.HelloAckDelay()
	time.Sleep(delay)
	header, ackChallenge, err := e.handshake.SendHelloAck(entry, e.nextCounter())
	if err != nil {
		e.log.WithError(err).Debug("failed to build helloack")
		return
	}
	e.transmitImmediate(append(header, ackChallenge[:]...))
}

func (e *Engine) handleHelloAck(p *otp.Parsed) {
	challenge, ok := extractChallenge(p.Body)
	if !ok {
		e.log.Debug("helloack missing challenge")
		return
	}
	entry, err := e.handshake.ReceiveHelloAck(p.Src, challenge, time.Now())
	if err != nil {
		e.log.WithError(err).Debug("rejected helloack")
		return
	}
	header, err := e.handshake.SendAck(entry, e.nextCounter())
	if err != nil {
		e.log.WithError(err).Debug("failed to build ack")
		return
	}
	e.transmitImmediate(header)
}

// extractChallenge reads the fixed-length HELLO/HELLOACK challenge from
// a frame's trailing body bytes.
func extractChallenge(body []byte) ([nbr.ChallengeLen]byte, bool) {
	var c [nbr.ChallengeLen]byte
	if len(body) < nbr.ChallengeLen {
		return c, false
	}
	copy(c[:], body[:nbr.ChallengeLen])
	return c, true
}

func (e *Engine) handleAck(p *otp.Parsed) {
	if _, err := e.handshake.ReceiveAck(p.Src, time.Now()); err != nil {
		e.log.WithError(err).Debug("rejected ack")
	}
}

// security returns the CCM* confidentiality/authenticity stage data
// frames are sealed/opened under, reusing framerchain.Security (spec.md
// §4.6's "security" stage) rather than duplicating ack.go's AEAD
// plumbing for a second key.
func (e *Engine) security() framerchain.Security {
	return framerchain.Security{TagLen: e.cfg.AckTagLen}
}

// dataKey picks the key a data frame's security stage uses: the
// pairwise key when one has been established, falling back to the
// shared group key otherwise (spec.md §4.5.1: "authenticity check under
// the pairwise or group key").
func dataKey(rec *nbr.PermanentRecord) []byte {
	if rec.PairwiseKey != nil {
		return rec.PairwiseKey
	}
	return rec.GroupKey
}

// handleData authenticates and decrypts an inbound data frame's body
// under the sender's pairwise or group key (spec.md §4.5.1's final-FIFOP
// "authenticity check"), flushing it on failure, then acknowledges it if
// its type expects one (spec.md §4.5.3). Broadcast data is decrypted the
// same way but never acknowledged.
func (e *Engine) handleData(p *otp.Parsed) {
	if p.Entry == nil || p.Entry.Permanent == nil {
		return
	}
	secLevel := e.cfg.UnicastSecLevel
	if p.Type.IsBroadcast() {
		secLevel = e.cfg.BroadcastSecLevel
	}
	if _, err := e.security().Open(dataKey(p.Entry.Permanent), p.Src, p.Counter, secLevel, p.Body); err != nil {
		e.log.WithError(err).Debug("data frame failed authenticity check")
		return
	}
	if !p.Type.ExpectsAcknowledgement() {
		return
	}
	delta := byte(0) // always 0: the receiver does not measure its SFD offset from the wake instant
	ack, err := BuildAck(p.Entry.Permanent.PairwiseKey, e.cfg.AckTagLen, p.Src, p.Counter, secLevel, p.StrobeIndex, delta)
	if err != nil {
		e.log.WithError(err).Debug("failed to build acknowledgement")
		return
	}
	e.transmitImmediate(ack.Marshal())
}

// transmitImmediate sends a small control frame (HELLOACK, ACK,
// acknowledgement) outside the strobe loop: these are direct responses
// to a just-received frame, not entries in the outbound send queue.
func (e *Engine) transmitImmediate(frame []byte) {
	if err := e.driver.Prepare(frame); err != nil {
		e.log.WithError(err).Debug("prepare failed")
		return
	}
	if err := e.driver.Transmit(); err != nil {
		e.log.WithError(err).Debug("transmit failed")
	}
}

// strobeOne drives one BufferedFrame through the strobe state machine,
// learning phase from an accepted unicast acknowledgement (spec.md
// §4.5.2-§4.5.3) and signalling the frame's Done channel with the
// outcome.
func (e *Engine) strobeOne(bf *BufferedFrame) {
	var phase *nbr.Phase
	var entry *nbr.Entry
	if !bf.Broadcast {
		entry = e.table.GetByAddr(bf.Receiver)
		if entry == nil || entry.Permanent == nil {
			bf.finish(ResultError)
			return
		}
		if e.cfg.WithSecurePhaseLock {
			phase = &entry.Permanent.Phase
		}
	}

	secLevel := e.cfg.UnicastSecLevel
	if bf.Broadcast {
		secLevel = e.cfg.BroadcastSecLevel
	}

	verify := func(frame []byte, strobeCount byte) (byte, bool) {
		if entry == nil {
			return 0, false
		}
		ack, err := ParseAcknowledgement(frame, e.cfg.AckTagLen)
		if err != nil {
			return 0, false
		}
		delta, err := VerifyAck(entry.Permanent.PairwiseKey, e.cfg.AckTagLen, bf.Receiver, bf.Counter, secLevel, strobeCount, ack)
		if err != nil {
			return 0, false
		}
		return delta, true
	}

	result, learned, transmissions, err := Strobe(e.driver, e.clock, time.Sleep, StrobeParams{
		Frame:        bf.Payload,
		Receiver:     bf.Receiver,
		Broadcast:    bf.Broadcast,
		Phase:        phase,
		WakeInterval: e.cfg.WakeInterval,
		VerifyAck:    verify,
	})
	if err != nil {
		e.log.WithError(err).Debug("strobe error")
	}
	if e.cfg.WithSecurePhaseLock && learned != nil && entry != nil {
		entry.Permanent.Phase = *learned
	}
	bf.Transmissions += transmissions
	if e.cfg.Stats != nil {
		for i := 1; i < transmissions; i++ {
			e.cfg.Stats.IncStrobeRetransmit()
		}
	}
	e.incSendResult(result.String())
	bf.finish(result)
}

// SendHello broadcasts a HELLO to bootstrap a handshake with any
// listening peer (spec.md §4.2).
func (e *Engine) SendHello() error {
	header, challenge, err := e.handshake.SendHello(e.nextCounter())
	if err != nil {
		return err
	}
	e.transmitImmediate(append(header, challenge[:]...))
	return nil
}

// SendData enqueues payload for delivery to receiver (or for broadcast,
// if broadcast is set), to be drained by the strobe loop on run's next
// pass (spec.md §4.5.2). The payload is sealed under CCM* (spec.md
// §4.5.1, §6 "unicast_sec_level"/"broadcast_sec_level") before the OTP
// header is prepended, so the frame handed to the send queue is exactly
// what goes out over the radio. It returns the BufferedFrame so the
// caller can block on bf.Done for the final SendResult.
func (e *Engine) SendData(receiver nbr.Addr, broadcast bool, payload []byte) (*BufferedFrame, error) {
	typ := otp.TypeUnicastData
	if broadcast {
		typ = otp.TypeBroadcastData
	}

	var groupKey, sealKey []byte
	if broadcast {
		groupKey = e.handshake.GroupKey()
		sealKey = groupKey
	} else {
		entry := e.table.GetByAddr(receiver)
		if entry == nil || entry.Permanent == nil {
			return nil, akes.ErrNotAcceptable
		}
		groupKey = entry.Permanent.GroupKey
		sealKey = dataKey(entry.Permanent)
	}

	counter := e.nextCounter()
	header, err := e.framer.Create(otp.CreateParams{
		Type:     typ,
		Receiver: receiver,
		Counter:  counter,
		GroupKey: groupKey,
	})
	if err != nil {
		return nil, err
	}

	secLevel := e.cfg.UnicastSecLevel
	if broadcast {
		secLevel = e.cfg.BroadcastSecLevel
	}
	sealed, err := e.security().Seal(sealKey, e.cfg.SelfAddr, counter, secLevel, payload)
	if err != nil {
		return nil, err
	}

	frame := append(header, sealed...)
	bf := NewBufferedFrame(receiver, broadcast, frame, counter)
	e.queue.Enqueue(bf)
	return bf, nil
}
