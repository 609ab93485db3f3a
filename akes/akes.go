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
Package akes implements the adaptive key-establishment handshake
(spec.md §4.2, C6): HELLO / HELLOACK / HELLOACK' / ACK, admission control
over the neighbor table, and pairwise key derivation. The finite-state
transitions are implemented directly from spec.md §4.2's transition
diagram — akes.c did not survive distillation into original_source/, so
there is no C source to port line-by-line here, unlike akes-nbr.c's table
mechanics.
*/
package akes

import (
	"crypto/rand"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/meshsec/llsec/nbr"
	"github.com/meshsec/llsec/otp"
	"github.com/meshsec/llsec/stats"
)

var (
	ErrNoOutstandingHello = errors.New("akes: no outstanding hello challenge")
	ErrNotAcceptable      = errors.New("akes: frame not acceptable in current state")
)

// Config holds the handshake engine's static configuration, drawn from
// spec.md §6's knob table.
type Config struct {
	SelfAddr         nbr.Addr
	Lifetime         time.Duration
	WithPairwiseKeys bool
	WithGroupKeys    bool
	KeyLen           int
	GroupKey         []byte // this node's own group key, offered in HELLOACK'/ACK
	HelloAckMinWait  time.Duration
	HelloAckMaxWait  time.Duration

	// Stats is optional; nil disables metric collection (used by tests
	// that construct a Config literal without it).
	Stats stats.Stats
}

func (e *Engine) incHandshake(event string) {
	if e.cfg.Stats != nil {
		e.cfg.Stats.IncHandshake(event)
	}
}

// Engine drives the handshake state machine described in spec.md §4.2
// against a shared neighbor table and OTP framer.
type Engine struct {
	cfg    Config
	Table  *nbr.Table
	Framer *otp.Framer

	helloChallenge     [nbr.ChallengeLen]byte
	haveHelloChallenge bool
}

// NewEngine constructs a handshake engine over table and framer, which
// must be the same instances the duty-cycle engine (sde) uses to parse
// frames, since admission decisions and promotion both mutate table
// state the framer reads on the next frame.
func NewEngine(cfg Config, table *nbr.Table, framer *otp.Framer) *Engine {
	return &Engine{cfg: cfg, Table: table, Framer: framer}
}

// OutstandingHello reports this node's own HELLO challenge and whether
// one is currently outstanding (awaiting a HELLOACK), letting callers
// build an otp.ValidateParams for incoming frames without reaching into
// Engine's unexported state.
func (e *Engine) OutstandingHello() (challenge [nbr.ChallengeLen]byte, have bool) {
	return e.helloChallenge, e.haveHelloChallenge
}

func randomChallenge() ([nbr.ChallengeLen]byte, error) {
	var c [nbr.ChallengeLen]byte
	_, err := rand.Read(c[:])
	return c, err
}

// SendHello generates a fresh challenge, remembers it as our outstanding
// HELLO, and returns the header bytes plus the challenge to append to the
// command payload (spec.md §4.2: "A peer's first contact is a broadcast
// HELLO carrying an 8-byte random challenge").
func (e *Engine) SendHello(counter uint32) (header []byte, challenge [nbr.ChallengeLen]byte, err error) {
	challenge, err = randomChallenge()
	if err != nil {
		return nil, challenge, err
	}
	header, err = e.Framer.Create(otp.CreateParams{
		Type:     otp.TypeHello,
		Receiver: nbr.Broadcast,
		Counter:  counter,
		GroupKey: e.cfg.GroupKey,
	})
	if err != nil {
		return nil, challenge, err
	}
	e.helloChallenge = challenge
	e.haveHelloChallenge = true
	e.incHandshake("hello-sent")
	return header, challenge, nil
}

// ReceiveHello admits a HELLO from sender, allocating a tentative entry
// when no tentative entry already exists for it and the table-wide
// tentative cap isn't exceeded (Table.New enforces both). It records the
// challenge and precomputes the OTP our HELLOACK must carry (spec.md
// §4.2: "records the challenge, computes the expected HELLOACK OTP with
// the special key").
func (e *Engine) ReceiveHello(sender nbr.Addr, challenge [nbr.ChallengeLen]byte) (*nbr.Entry, error) {
	entry, err := e.Table.New(sender, nbr.StatusTentative)
	if err != nil {
		e.incHandshake("admission-rejected")
		return nil, err
	}
	entry.Tentative.Challenge = challenge

	tok, err := otp.Special(e.Framer.PotrKey, sender, challenge, e.Framer.Header.OTPLen)
	if err != nil {
		return nil, err
	}
	copy(entry.Tentative.OTP[:], tok)
	e.incHandshake("hello-received")
	return entry, nil
}

// HelloAckDelay returns a small randomized wait before sending a HELLOACK
// (spec.md §4.2: "schedules a HELLOACK with a small randomized wait"),
// spreading out replies from nodes that all heard the same broadcast
// HELLO so their HELLOACKs don't collide on air.
func (e *Engine) HelloAckDelay() time.Duration {
	lo, hi := e.cfg.HelloAckMinWait, e.cfg.HelloAckMaxWait
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)))
}

// SendHelloAck builds the HELLOACK for entry (must hold a TENTATIVE
// record), advancing entry's cached OTP to the value the subsequent ACK
// must carry as a side effect of otp.Framer.Create. When pairwise keys
// are enabled, it also derives this side's half of the pairwise key from
// the HELLO challenge entry already holds and the HELLOACK challenge
// generated here, stashing it on entry.Tentative.PendingPairwiseKey so
// Table.Promote can carry it onto the permanent record once the ACK
// arrives — the responder's side of the derivation ReceiveHelloAck
// already performs for the initiator.
func (e *Engine) SendHelloAck(entry *nbr.Entry, counter uint32) (header []byte, challenge [nbr.ChallengeLen]byte, err error) {
	if entry.Tentative == nil || entry.Tentative.Status != nbr.StatusTentative {
		return nil, challenge, ErrNotAcceptable
	}
	challenge, err = randomChallenge()
	if err != nil {
		return nil, challenge, err
	}
	typ := otp.TypeHelloAck
	if e.cfg.WithPairwiseKeys {
		typ = otp.TypeHelloAckPrime
	}
	// Create binds the stored ACK OTP to Tentative.Challenge; the ACK is
	// bound to this HELLOACK's challenge, so Create sees it in place of
	// the HELLO's for the duration of the call.
	helloChallenge := entry.Tentative.Challenge
	entry.Tentative.Challenge = challenge
	header, err = e.Framer.Create(otp.CreateParams{
		Type:     typ,
		Receiver: entry.Addr,
		Counter:  counter,
		Entry:    entry,
	})
	entry.Tentative.Challenge = helloChallenge
	if err != nil {
		return nil, challenge, err
	}
	if e.cfg.WithPairwiseKeys {
		pairwiseKey, err := DerivePairwiseKey(entry.Addr, e.cfg.SelfAddr, entry.Tentative.Challenge, challenge, e.cfg.KeyLen)
		if err != nil {
			return nil, challenge, err
		}
		entry.Tentative.PendingPairwiseKey = pairwiseKey
	}
	entry.Tentative.Status = nbr.StatusTentativeAwaitingAck
	e.incHandshake("helloack-sent")
	return header, challenge, nil
}

// ReceiveHelloAck is called by the side that originally sent the HELLO,
// once the OTP framer has already validated the HELLOACK against our
// outstanding challenge. It derives the pairwise key (when configured),
// promotes directly to a permanent record — this side never held a
// tentative one — and precomputes the OTP the matching ACK must carry.
func (e *Engine) ReceiveHelloAck(sender nbr.Addr, helloAckChallenge [nbr.ChallengeLen]byte, now time.Time) (*nbr.Entry, error) {
	if !e.haveHelloChallenge {
		return nil, ErrNoOutstandingHello
	}

	var pairwiseKey []byte
	if e.cfg.WithPairwiseKeys {
		var err error
		pairwiseKey, err = DerivePairwiseKey(e.cfg.SelfAddr, sender, e.helloChallenge, helloAckChallenge, e.cfg.KeyLen)
		if err != nil {
			return nil, err
		}
	}

	entry, err := e.Table.New(sender, nbr.StatusPermanent)
	if err != nil {
		return nil, err
	}
	entry.Permanent.PairwiseKey = pairwiseKey
	if e.cfg.WithGroupKeys {
		entry.Permanent.GroupKey = e.cfg.GroupKey
	}
	entry.Permanent.Expiration = now.Add(e.cfg.Lifetime)

	ackOTP, err := otp.Special(e.Framer.PotrKey, e.cfg.SelfAddr, helloAckChallenge, e.Framer.Header.OTPLen)
	if err != nil {
		return nil, err
	}
	copy(entry.Permanent.OTP[:], ackOTP)

	e.haveHelloChallenge = false
	e.incHandshake("helloack-received")
	return entry, nil
}

// SendAck builds the ACK for entry, which Table.New(..., StatusPermanent)
// in ReceiveHelloAck must already have created.
func (e *Engine) SendAck(entry *nbr.Entry, counter uint32) ([]byte, error) {
	if entry.Permanent == nil {
		return nil, ErrNotAcceptable
	}
	header, err := e.Framer.Create(otp.CreateParams{
		Type:     otp.TypeAck,
		Receiver: entry.Addr,
		Counter:  counter,
		Entry:    entry,
	})
	if err != nil {
		return nil, err
	}
	e.incHandshake("ack-sent")
	return header, nil
}

// ReceiveAck promotes a TENTATIVE_AWAITING_ACK record to permanent once
// the OTP framer has already confirmed the ACK's token matches
// entry.Tentative.OTP (spec.md §4.2: "An ACK is acceptable only if a
// matching TENTATIVE_AWAITING_ACK exists and its cached OTP matches" —
// that check lives in otp.Framer.ParseAndValidate; this method performs
// the resulting state transition).
func (e *Engine) ReceiveAck(sender nbr.Addr, now time.Time) (*nbr.PermanentRecord, error) {
	rec, err := e.Table.Promote(sender, now, e.cfg.Lifetime, e.cfg.GroupKey)
	if err != nil {
		e.incHandshake("admission-rejected")
		return nil, err
	}
	e.incHandshake("ack-received")
	return rec, nil
}

// GroupKey returns this node's network-wide group key, for callers
// (sde's data-frame security stage) that need to encrypt a broadcast
// frame no single neighbor-table entry owns.
func (e *Engine) GroupKey() []byte {
	return e.cfg.GroupKey
}
