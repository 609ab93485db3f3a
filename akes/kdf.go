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

package akes

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/meshsec/llsec/nbr"
)

// DerivePairwiseKey computes the pairwise key two neighbors agree on once
// a HELLOACK has been accepted. spec.md §4.2 says only that the receiver
// of the HELLOACK "derives the pairwise key", without naming a KDF; this
// is the resolved Open Question recorded in SPEC_FULL.md/DESIGN.md: we
// run HKDF-SHA256 over the concatenation of both exchanged challenges,
// salted with both link addresses so that the two ends of the handshake
// can never collide with an unrelated pair, truncated to keyLen bytes.
func DerivePairwiseKey(initiator, responder nbr.Addr, helloChallenge, helloAckChallenge [nbr.ChallengeLen]byte, keyLen int) ([]byte, error) {
	var salt []byte
	salt = append(salt, initiator[:]...)
	salt = append(salt, responder[:]...)

	var ikm []byte
	ikm = append(ikm, helloChallenge[:]...)
	ikm = append(ikm, helloAckChallenge[:]...)

	r := hkdf.New(sha256.New, ikm, salt, []byte("llsec pairwise key"))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
