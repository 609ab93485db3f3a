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
Package otp implements the on-the-fly rejection (OTP) frame header
(spec.md §4.1, C5): the compact prefix that lets a receiver decide
whether to keep reading a frame before its full payload has arrived.
Grounded on original_source/core/net/llsec/adaptivesec/potr.{c,h}.
*/
package otp

import "github.com/meshsec/llsec/nbr"

// Type is a frame's position in the header's type byte (potr_frame_type).
type Type uint8

const (
	TypeUnicastData Type = iota
	TypeUnicastCommand
	TypeHelloAck
	TypeHelloAckPrime
	TypeAck
	TypeBroadcastData
	TypeBroadcastCommand
	TypeHello
	TypeAcknowledgement
)

func (t Type) String() string {
	switch t {
	case TypeUnicastData:
		return "unicast-data"
	case TypeUnicastCommand:
		return "unicast-command"
	case TypeHelloAck:
		return "helloack"
	case TypeHelloAckPrime:
		return "helloack-prime"
	case TypeAck:
		return "ack"
	case TypeBroadcastData:
		return "broadcast-data"
	case TypeBroadcastCommand:
		return "broadcast-command"
	case TypeHello:
		return "hello"
	case TypeAcknowledgement:
		return "acknowledgement"
	default:
		return "unknown"
	}
}

// IsBroadcast reports whether a frame of this type targets the broadcast
// sentinel rather than node-addressed.
func (t Type) IsBroadcast() bool {
	switch t {
	case TypeBroadcastData, TypeBroadcastCommand, TypeHello:
		return true
	default:
		return false
	}
}

// ExpectsAcknowledgement reports whether the sender must strobe for an
// acknowledgement, i.e. whether a trailing strobe index is appended
// (spec.md §6: "A trailing 1-byte strobe index follows for frame types
// that expect an acknowledgement (0-4)").
func (t Type) ExpectsAcknowledgement() bool {
	return t <= TypeAck
}

// DefaultLen is the default OTP tag length in bytes (spec.md §6 "otp_len",
// default 3).
const DefaultLen = 3

// ChallengeLen is the HELLO challenge length (nbr.ChallengeLen, restated
// here so callers needn't import nbr just for this constant).
const ChallengeLen = nbr.ChallengeLen

// Header describes the fixed geometry of the OTP frame header for a given
// link-address length and frame-counter width (spec.md §6's bit-exact
// table).
type Header struct {
	AddrLen    int // L ∈ {2, 8}
	CounterLen int // N ∈ {1, 4}
	OTPLen     int // default 3
}

// Len returns the header's total length in bytes, not including the
// trailing strobe index.
func (h Header) Len() int {
	return 1 + h.AddrLen + h.CounterLen + h.OTPLen
}

// LenFor returns the full on-wire length for a frame of the given type,
// including the trailing strobe index when one applies (length_of() in
// potr.c).
func (h Header) LenFor(t Type) int {
	n := h.Len()
	if t.ExpectsAcknowledgement() {
		n++
	}
	return n
}

// FIFOPThreshold is the byte offset at which the duty-cycle engine should
// first invoke the framer on partially-received bytes (spec.md §4.5.1:
// "FIFOP_threshold = header length minus OTP length").
func (h Header) FIFOPThreshold() int {
	return h.Len() - h.OTPLen
}
