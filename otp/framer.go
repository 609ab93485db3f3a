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

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/meshsec/llsec/nbr"
)

// ErrFramerFailed is returned for every rejection this package can
// produce; spec.md §4.1 calls for a single undifferentiated FRAMER_FAILED
// outcome so that no rejection reason is observable on the wire or in
// timing (an attacker must not learn which validation step failed).
var ErrFramerFailed = errors.New("otp: framer failed")

// Framer creates and validates OTP frame headers (spec.md §4.1, C5).
type Framer struct {
	Header   Header
	PotrKey  []byte
	SelfAddr nbr.Addr
	Table    *nbr.Table
	Cache    *HelloAckCache
}

// CreateParams gathers the per-frame inputs Create needs; which fields
// matter depends on Type (mirroring potr.c's create()'s switch).
type CreateParams struct {
	Type     Type
	Receiver nbr.Addr
	Counter  uint32
	GroupKey []byte // for normal OTP frames

	// Entry is the receiver's neighbor-table entry, required for
	// HELLOACK/HELLOACK'/ACK.
	Entry *nbr.Entry
}

// Create builds the OTP header bytes for an outbound frame, including the
// trailing strobe-index placeholder when the frame type expects an
// acknowledgement. It mutates the tentative/permanent OTP cache fields on
// Entry exactly as potr.c's create() does: building a HELLOACK also
// precomputes and stores the ACK OTP the peer must later present, the
// special OTP over Receiver and Entry.Tentative.Challenge, so the caller
// sets that field to the challenge the HELLOACK carries.
func (f *Framer) Create(p CreateParams) ([]byte, error) {
	h := f.Header
	out := make([]byte, 0, h.LenFor(p.Type))
	out = append(out, byte(p.Type))
	out = append(out, f.SelfAddr[8-h.AddrLen:]...)
	out = appendCounter(out, p.Counter, h.CounterLen)

	var tok []byte
	var err error
	switch p.Type {
	case TypeHelloAck, TypeHelloAckPrime:
		if p.Entry == nil || p.Entry.Tentative == nil {
			return nil, ErrFramerFailed
		}
		tok = append([]byte(nil), p.Entry.Tentative.OTP[:h.OTPLen]...)

		next, err2 := Special(f.PotrKey, p.Receiver, p.Entry.Tentative.Challenge, h.OTPLen)
		if err2 != nil {
			return nil, err2
		}
		copy(p.Entry.Tentative.OTP[:], next)
	case TypeAck:
		if p.Entry == nil || p.Entry.Permanent == nil {
			return nil, ErrFramerFailed
		}
		tok = append([]byte(nil), p.Entry.Permanent.OTP[:h.OTPLen]...)
	default:
		tok, err = Normal(p.GroupKey, f.PotrKey, p.Receiver, p.Counter, h.OTPLen)
		if err != nil {
			return nil, err
		}
	}

	out = append(out, tok...)
	if p.Type.ExpectsAcknowledgement() {
		out = append(out, 0) // strobe index, filled in by the SDE
	}
	return out, nil
}

func appendCounter(out []byte, counter uint32, n int) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], counter)
	return append(out, b[4-n:]...)
}

// Parsed is the result of a successful ParseAndValidate.
type Parsed struct {
	Type     Type
	Src      nbr.Addr
	Receiver nbr.Addr
	Counter  uint32
	Entry    *nbr.Entry // sender's table entry, if one exists
	Len      int        // header length consumed, including strobe index
	Body     []byte     // payload bytes following the header (e.g. a HELLO/HELLOACK challenge)

	// StrobeIndex is the trailing 1-byte retransmission counter the
	// sender wrote into frames of a type that expects an acknowledgement
	// (spec.md §6), valid only when Type.ExpectsAcknowledgement().
	StrobeIndex byte
}

// ValidateParams supplies the context ParseAndValidate needs beyond the
// raw bytes and the neighbor table: the handshake engine's outstanding
// HELLO challenge, valid only while this node awaits a HELLOACK.
type ValidateParams struct {
	OurHelloChallenge  [ChallengeLen]byte
	HaveHelloChallenge bool
}

// ParseAndValidate runs the 8-step validation order spec.md §4.1 requires
// to be preserved exactly, grounded on potr_parse_and_validate. Any
// failure returns ErrFramerFailed without indicating which step failed.
func (f *Framer) ParseAndValidate(frame []byte, vp ValidateParams) (*Parsed, error) {
	h := f.Header

	// Step 1: length sanity.
	if len(frame) < 1 {
		return nil, ErrFramerFailed
	}
	typ := Type(frame[0])
	if len(frame) < h.LenFor(typ) {
		return nil, ErrFramerFailed
	}

	// Step 2: derived receiver address.
	var receiver nbr.Addr
	switch {
	case typ <= TypeAck:
		receiver = f.SelfAddr
	case typ <= TypeHello:
		receiver = nbr.Broadcast
	default:
		return nil, ErrFramerFailed
	}

	p := frame[1:]

	// Step 3: source address lookup.
	var src nbr.Addr
	copy(src[8-h.AddrLen:], p[:h.AddrLen])
	p = p[h.AddrLen:]
	entry := f.Table.GetBySenderAddr(src)

	// Step 4: counter parse.
	var counterBuf [4]byte
	copy(counterBuf[4-h.CounterLen:], p[:h.CounterLen])
	counter := binary.BigEndian.Uint32(counterBuf[:])
	p = p[h.CounterLen:]

	otpBytes := p[:h.OTPLen]

	switch typ {
	case TypeHelloAck, TypeHelloAckPrime:
		// Step 5: recompute special OTP, check frame and cache.
		if !vp.HaveHelloChallenge {
			return nil, ErrFramerFailed
		}
		if f.Cache.Full() {
			return nil, ErrFramerFailed
		}
		expected, err := Special(f.PotrKey, f.SelfAddr, vp.OurHelloChallenge, h.OTPLen)
		if err != nil {
			return nil, ErrFramerFailed
		}
		if !bytes.Equal(expected, otpBytes) {
			return nil, ErrFramerFailed
		}
		if f.Cache.Contains(expected) {
			return nil, ErrFramerFailed
		}
		f.Cache.Add(expected)

	case TypeAck:
		// Step 6: must match the matching tentative's cached OTP.
		if entry == nil || entry.Tentative == nil || entry.Tentative.Status != nbr.StatusTentativeAwaitingAck {
			return nil, ErrFramerFailed
		}
		if !bytes.Equal(entry.Tentative.OTP[:h.OTPLen], otpBytes) {
			return nil, ErrFramerFailed
		}

	case TypeHello:
		if entry != nil && entry.Tentative != nil {
			return nil, ErrFramerFailed
		}
		// A HELLO carries a fixed-length trailing challenge (potr.c's
		// HELLO_LEN); anything else is malformed regardless of what the
		// rest of validation would conclude.
		if len(frame) != h.LenFor(typ)+ChallengeLen {
			return nil, ErrFramerFailed
		}
		// HELLO's own token is read but not authenticated against
		// anything (potr.c falls through to the "sender is not
		// permanent" branch, which for HELLO just accepts the bytes as
		// read) — unless the sender already holds a permanent entry, in
		// which case potr.c still recomputes the normal OTP and runs the
		// replay check, but an OTP mismatch doesn't reject the HELLO the
		// way it would any other frame type.
		if entry != nil && entry.Permanent != nil {
			expected, err := Normal(entry.Permanent.GroupKey, f.PotrKey, receiver, counter, h.OTPLen)
			if err != nil {
				return nil, ErrFramerFailed
			}
			if bytes.Equal(expected, otpBytes) && entry.Permanent.Replay.WasReplayed(typ.IsBroadcast(), counter) {
				return nil, ErrFramerFailed
			}
		}

	default:
		// Step 7: recompute normal OTP against the sender's group key.
		if entry == nil || entry.Permanent == nil {
			return nil, ErrFramerFailed
		}
		expected, err := Normal(entry.Permanent.GroupKey, f.PotrKey, receiver, counter, h.OTPLen)
		if err != nil {
			return nil, ErrFramerFailed
		}
		if !bytes.Equal(expected, otpBytes) {
			return nil, ErrFramerFailed
		}
		// Step 8: replay ledger.
		if entry.Permanent.Replay.WasReplayed(typ.IsBroadcast(), counter) {
			return nil, ErrFramerFailed
		}
	}

	hdrLen := h.LenFor(typ)
	var body []byte
	if len(frame) > hdrLen {
		body = frame[hdrLen:]
	}
	var strobeIndex byte
	if typ.ExpectsAcknowledgement() {
		strobeIndex = frame[hdrLen-1]
	}

	return &Parsed{
		Type:        typ,
		Src:         src,
		Receiver:    receiver,
		Counter:     counter,
		Entry:       entry,
		Len:         hdrLen,
		Body:        body,
		StrobeIndex: strobeIndex,
	}, nil
}
