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
Package nbr implements the AKR neighbor table (spec.md §4.3, "AKR-NT"): a
fixed-capacity mapping from link address to an entry holding up to two
records — a permanent record (completed handshake) and a tentative record
(handshake in progress) — grounded on
original_source/core/net/llsec/adaptivesec/akes-nbr.{c,h}.
*/
package nbr

import (
	"time"

	"github.com/meshsec/llsec/replay"
)

// ChallengeLen is the HELLO challenge length in bytes (AKES_NBR_CHALLENGE_LEN).
const ChallengeLen = 8

// OTPLen is the on-the-fly rejection token length in bytes (spec.md §4.1
// default). The otp package is the source of truth for the wire value;
// this package only stores the precomputed token.
const OTPLen = 3

// OTP is a precomputed on-the-fly rejection token, cached on a record to
// bind the next step of a handshake (spec.md §3: "a precomputed OTP used
// to bind the next handshake step"). In the original C struct this field
// sits outside the permanent/tentative union — both record kinds carry
// one — because potr.c reads entry->permanent->otp when building an ACK's
// OTP just as it reads entry->tentative->otp when building a HELLOACK's.
type OTP [OTPLen]byte

// Status is a tentative record's position in the handshake (spec.md §4.2).
type Status int

const (
	// StatusPermanent marks a promoted, completed-handshake record. It is
	// never stored on a TentativeRecord; it exists so akes_nbr_status's
	// original three-way enum has a direct analogue here.
	StatusPermanent Status = iota
	// StatusTentative: HELLO received, awaiting our HELLOACK.
	StatusTentative
	// StatusTentativeAwaitingAck: HELLOACK sent, awaiting the peer's ACK.
	StatusTentativeAwaitingAck
)

func (s Status) String() string {
	switch s {
	case StatusPermanent:
		return "permanent"
	case StatusTentative:
		return "tentative"
	case StatusTentativeAwaitingAck:
		return "tentative-awaiting-ack"
	default:
		return "unknown"
	}
}

// PermanentRecord is a neighbor entry's completed-handshake record
// (spec.md §3 "Permanent"). PairwiseKey and/or GroupKey may be nil
// depending on config.WithPairwiseKeys / config.WithGroupKeys.
type PermanentRecord struct {
	PairwiseKey []byte
	GroupKey    []byte

	// ForeignIndex is the peer's local index for this node, used for
	// compact addressing when config.WithIndices is set.
	ForeignIndex uint8

	Replay     *replay.Info
	Expiration time.Time
	OTP        OTP
	Phase      Phase
}

// TentativeRecord is a neighbor entry's in-progress-handshake record
// (spec.md §3 "Tentative"). It models both of the original's sub-variants:
// (a) a challenge plus implicit wait-timer (tracked by Expiration in this
// Go rendering, there being no separate ctimer primitive) and (b) a
// half-finished pairwise key once this node has sent its HELLOACK.
type TentativeRecord struct {
	Status Status

	// Challenge is populated while Status == StatusTentative, holding the
	// 8-byte random value the HELLO carried.
	Challenge [ChallengeLen]byte

	// PendingPairwiseKey is populated once the handshake has progressed
	// enough to derive the pairwise key but before the ACK promotes the
	// record to permanent (sub-variant (b)).
	PendingPairwiseKey []byte

	Replay     *replay.Info
	Expiration time.Time
	OTP        OTP
}
