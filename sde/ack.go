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
	"encoding/binary"
	"errors"

	"github.com/meshsec/llsec/ccmstar"
	"github.com/meshsec/llsec/nbr"
)

// ErrInvalidAck is returned by ParseAcknowledgement for a malformed frame
// and by VerifyAck for a bad tag, without distinguishing which. Neither
// checks arrival time; the only timing bound is waitForAck's listening
// window. This mirrors the OTP framer's undifferentiated FRAMER_FAILED
// (spec.md §4.5.3, §7).
var ErrInvalidAck = errors.New("sde: invalid acknowledgement")

// Acknowledgement is the wire form of a secure acknowledgement (spec.md
// §4.5.3): `type(1) || delta(1) || mic(M)`.
type Acknowledgement struct {
	Delta byte
	MIC   []byte
}

const ackType = 8 // POTR_FRAME_TYPE_ACKNOWLEDGEMENT

// Marshal encodes the acknowledgement to its wire bytes.
func (a Acknowledgement) Marshal() []byte {
	out := make([]byte, 0, 2+len(a.MIC))
	out = append(out, ackType, a.Delta)
	out = append(out, a.MIC...)
	return out
}

// ParseAcknowledgement decodes the wire form, requiring an exact tag
// length match.
func ParseAcknowledgement(frame []byte, tagLen int) (*Acknowledgement, error) {
	if len(frame) != 2+tagLen || frame[0] != ackType {
		return nil, ErrInvalidAck
	}
	return &Acknowledgement{Delta: frame[1], MIC: frame[2:]}, nil
}

// ackNonce builds the CCM* nonce for an acknowledgement: receiver_addr ||
// counter(4) || sec_level(1), totaling ccmstar.NonceSize (13) bytes for
// an 8-byte address (spec.md §4.5.3 "nonce receiver_addr || counter ||
// sec_level").
func ackNonce(receiver nbr.Addr, counter uint32, secLevel byte) []byte {
	nonce := make([]byte, 0, ccmstar.NonceSize)
	nonce = append(nonce, receiver[:]...)
	var c [4]byte
	binary.BigEndian.PutUint32(c[:], counter)
	nonce = append(nonce, c[:]...)
	nonce = append(nonce, secLevel)
	return nonce
}

// BuildAck authenticates the 2-byte additional data (firstHeaderByte,
// delta) under key, tagging it with the strobe index encoded into
// firstHeaderByte by the sender's most recent retransmission (spec.md
// §4.5.3: "The sender's identity for the tag is encoded by the strobe
// index ... which the sender writes into the outgoing frame's first
// header byte at every retransmission so each strobe carries a fresh
// a"). The acknowledgement carries no payload of its own — AEAD.Seal is
// called with an empty plaintext.
func BuildAck(key []byte, tagLen int, receiver nbr.Addr, counter uint32, secLevel byte, firstHeaderByte, delta byte) (*Acknowledgement, error) {
	aead, err := ccmstar.New(key, tagLen)
	if err != nil {
		return nil, err
	}
	aad := []byte{firstHeaderByte, delta}
	mic, err := aead.Seal(nil, ackNonce(receiver, counter, secLevel), nil, aad)
	if err != nil {
		return nil, err
	}
	return &Acknowledgement{Delta: delta, MIC: mic}, nil
}

// VerifyAck authenticates a received acknowledgement against the
// strobe's current firstHeaderByte (the strobe index we last
// transmitted), returning the verified delta on success. The delta is
// not checked against any range.
func VerifyAck(key []byte, tagLen int, receiver nbr.Addr, counter uint32, secLevel byte, firstHeaderByte byte, ack *Acknowledgement) (byte, error) {
	aead, err := ccmstar.New(key, tagLen)
	if err != nil {
		return 0, err
	}
	aad := []byte{firstHeaderByte, ack.Delta}
	if _, err := aead.Open(nil, ackNonce(receiver, counter, secLevel), ack.MIC, aad); err != nil {
		return 0, ErrInvalidAck
	}
	return ack.Delta, nil
}
