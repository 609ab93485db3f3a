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
	"crypto/aes"
	"encoding/binary"
	"errors"

	"github.com/meshsec/llsec/nbr"
)

// DefaultKey is potr.c's POTR_KEY fallback, used whenever a deployment
// doesn't configure its own.
var DefaultKey = [aes.BlockSize]byte{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
}

var errKeyLen = errors.New("otp: key must be 16 bytes")

// Normal computes the data-frame OTP (spec.md §4.1 "Normal OTP"): encrypt
// `receiver_addr || counter(4) || zero_pad` under `groupKey XOR potrKey`,
// keeping the low-order n bytes (create_normal_otp in potr.c).
func Normal(groupKey, potrKey []byte, receiver nbr.Addr, counter uint32, n int) ([]byte, error) {
	if len(groupKey) != aes.BlockSize || len(potrKey) != aes.BlockSize {
		return nil, errKeyLen
	}

	var block [aes.BlockSize]byte
	copy(block[:8], receiver[:])
	binary.BigEndian.PutUint32(block[8:12], counter)

	var key [aes.BlockSize]byte
	for i := range key {
		key[i] = groupKey[i] ^ potrKey[i]
	}

	return encryptBlock(key[:], block[:], n)
}

// Special computes the handshake-chain OTP (spec.md §4.1 "Special OTP"):
// encrypt `peer_addr || challenge(8)` under potrKey alone
// (potr_create_special_otp).
func Special(potrKey []byte, peer nbr.Addr, challenge [ChallengeLen]byte, n int) ([]byte, error) {
	if len(potrKey) != aes.BlockSize {
		return nil, errKeyLen
	}

	var block [aes.BlockSize]byte
	copy(block[:8], peer[:])
	copy(block[8:16], challenge[:])

	return encryptBlock(potrKey, block[:], n)
}

func encryptBlock(key, block []byte, n int) ([]byte, error) {
	cipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	var out [aes.BlockSize]byte
	cipher.Encrypt(out[:], block)
	return out[:n], nil
}
