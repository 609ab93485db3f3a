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
Package ccmstar implements the CCM* authenticated-encryption mode used by
IEEE 802.15.4 link-layer security: AES-128 CBC-MAC-then-CTR with a 13-byte
nonce and a selectable tag length of 4, 8 or 16 bytes (encoded on the wire
as 6, 8 or 10 bytes once the length octet itself is accounted for, per the
security-level table in the header format). AAD-only operation (zero-length
plaintext) is supported because the secure acknowledgement in the duty-cycle
engine authenticates a 2-byte additional-data field and carries no payload
of its own.

No CCM implementation is exposed by the Go standard library's crypto/cipher
package, and none of the retrieved example repositories (including
distribution-distribution's golang.org/x/crypto dependency, the only crypto
library present in the corpus) carries one either — x/crypto ships GCM- and
ChaCha20-Poly1305-flavored AEADs but no CCM variant. This package is
therefore implemented directly over crypto/aes, the one primitive spec.md
explicitly allows treating as a given.
*/
package ccmstar

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

const (
	// BlockSize is the AES block size in bytes.
	BlockSize = aes.BlockSize
	// NonceSize is the CCM* nonce length used throughout this system.
	NonceSize = 13
	// lengthFieldSize (L in RFC 3610 terms) follows from a 13-byte nonce:
	// L = 15 - len(nonce) = 2.
	lengthFieldSize = 15 - NonceSize
)

// ErrAuthFailed is returned by Open when the MIC does not verify.
var ErrAuthFailed = errors.New("ccmstar: message authentication failed")

// TagSizes enumerates the MIC lengths this system's security levels select
// between (spec.md §6: low two bits of the security-level octet pick
// MIC_32/MIC_64/MIC_128, encoded 4/8/16 bytes of raw tag length).
var TagSizes = [...]int{4, 8, 16}

// AEAD is an AES-128 CCM* instance bound to a single key. Construct a new
// one per encrypt/decrypt call in the hot path via New; the underlying
// cipher.Block is cheap to build and this keeps key material from lingering
// longer than a single frame's processing.
type AEAD struct {
	block  cipher.Block
	tagLen int
}

// New builds a CCM* AEAD over a 16-byte AES key with the given tag length,
// which must be one of TagSizes.
func New(key []byte, tagLen int) (*AEAD, error) {
	if len(key) != 16 {
		return nil, errors.New("ccmstar: key must be 16 bytes")
	}
	valid := false
	for _, t := range TagSizes {
		if t == tagLen {
			valid = true
			break
		}
	}
	if !valid {
		return nil, errors.New("ccmstar: tag length must be 4, 8 or 16 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &AEAD{block: block, tagLen: tagLen}, nil
}

// TagSize reports the MIC length this AEAD produces.
func (a *AEAD) TagSize() int { return a.tagLen }

// Seal encrypts plaintext (which may be empty for AAD-only authentication,
// as the secure acknowledgement uses) and appends a tag of a.TagSize()
// bytes. nonce must be NonceSize bytes. dst and plaintext must not overlap.
func (a *AEAD) Seal(dst, nonce, plaintext, additionalData []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, errors.New("ccmstar: bad nonce length")
	}
	mac := a.cbcMAC(nonce, plaintext, additionalData)
	s0 := a.ctrBlock(nonce, 0)
	for i := 0; i < a.tagLen; i++ {
		mac[i] ^= s0[i]
	}

	ct := a.ctrCrypt(nonce, plaintext)
	dst = append(dst, ct...)
	dst = append(dst, mac[:a.tagLen]...)
	return dst, nil
}

// Open authenticates and decrypts a CCM*-protected message. ciphertext must
// include the trailing tag. Returns ErrAuthFailed on a MIC mismatch; the
// caller must not act on the returned plaintext in that case (it is nil).
func (a *AEAD) Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, errors.New("ccmstar: bad nonce length")
	}
	if len(ciphertext) < a.tagLen {
		return nil, ErrAuthFailed
	}
	ct := ciphertext[:len(ciphertext)-a.tagLen]
	gotTag := ciphertext[len(ciphertext)-a.tagLen:]

	pt := a.ctrCrypt(nonce, ct)

	mac := a.cbcMAC(nonce, pt, additionalData)
	s0 := a.ctrBlock(nonce, 0)
	for i := 0; i < a.tagLen; i++ {
		mac[i] ^= s0[i]
	}

	if subtle.ConstantTimeCompare(mac[:a.tagLen], gotTag) != 1 {
		return nil, ErrAuthFailed
	}
	dst = append(dst, pt...)
	return dst, nil
}

// ctrBlock returns AES_K(A_i) for counter i, A_i being the CTR mode
// counter block: flags(1) || nonce(13) || counter(2, big-endian).
func (a *AEAD) ctrBlock(nonce []byte, counter uint16) []byte {
	var blk [BlockSize]byte
	blk[0] = byte(lengthFieldSize - 1)
	copy(blk[1:1+NonceSize], nonce)
	binary.BigEndian.PutUint16(blk[1+NonceSize:], counter)
	out := make([]byte, BlockSize)
	a.block.Encrypt(out, blk[:])
	return out
}

// ctrCrypt XORs data against the AES-CTR keystream starting at counter 1
// (counter 0 is reserved for masking the MIC).
func (a *AEAD) ctrCrypt(nonce, data []byte) []byte {
	out := make([]byte, len(data))
	counter := uint16(1)
	for off := 0; off < len(data); off += BlockSize {
		ks := a.ctrBlock(nonce, counter)
		counter++
		n := len(data) - off
		if n > BlockSize {
			n = BlockSize
		}
		for i := 0; i < n; i++ {
			out[off+i] = data[off+i] ^ ks[i]
		}
	}
	return out
}

// cbcMAC computes the RFC 3610-style CBC-MAC over B0 || encoded AAD ||
// padded AAD || padded payload, returning the final 16-byte MAC block
// (unmasked — the caller XORs it with the S0 keystream block).
func (a *AEAD) cbcMAC(nonce, payload, aad []byte) []byte {
	var b0 [BlockSize]byte
	flags := byte(0)
	if len(aad) > 0 {
		flags |= 1 << 6
	}
	flags |= byte((a.tagLen-2)/2) << 3
	flags |= byte(lengthFieldSize - 1)
	b0[0] = flags
	copy(b0[1:1+NonceSize], nonce)
	binary.BigEndian.PutUint16(b0[1+NonceSize:], uint16(len(payload)))

	mac := make([]byte, BlockSize)
	a.block.Encrypt(mac, b0[:])

	if len(aad) > 0 {
		var lenPrefix [2]byte
		binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(aad)))
		buf := append(append([]byte{}, lenPrefix[:]...), aad...)
		buf = padTo16(buf)
		for off := 0; off < len(buf); off += BlockSize {
			xorInto(mac, buf[off:off+BlockSize])
			a.block.Encrypt(mac, mac)
		}
	}

	padded := padTo16(payload)
	for off := 0; off < len(padded); off += BlockSize {
		xorInto(mac, padded[off:off+BlockSize])
		a.block.Encrypt(mac, mac)
	}

	return mac
}

func padTo16(b []byte) []byte {
	if len(b)%BlockSize == 0 {
		return b
	}
	pad := BlockSize - len(b)%BlockSize
	out := make([]byte, len(b)+pad)
	copy(out, b)
	return out
}

func xorInto(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}
