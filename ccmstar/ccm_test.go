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

package ccmstar

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

var testKey = []byte{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
}

func TestSealOpenRoundTrip(t *testing.T) {
	for _, tagLen := range TagSizes {
		a, err := New(testKey, tagLen)
		require.NoError(t, err)

		nonce := bytes.Repeat([]byte{0x2A}, NonceSize)
		plaintext := []byte("unicast data frame payload")
		aad := []byte{0x00, 0x01}

		sealed, err := a.Seal(nil, nonce, plaintext, aad)
		require.NoError(t, err)
		require.Len(t, sealed, len(plaintext)+tagLen)

		opened, err := a.Open(nil, nonce, sealed, aad)
		require.NoError(t, err)
		require.Equal(t, plaintext, opened)
	}
}

func TestOpenRejectsTamperedTag(t *testing.T) {
	a, err := New(testKey, 8)
	require.NoError(t, err)
	nonce := bytes.Repeat([]byte{0x01}, NonceSize)

	sealed, err := a.Seal(nil, nonce, []byte("hello"), nil)
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = a.Open(nil, nonce, sealed, nil)
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestOpenRejectsTamperedAAD(t *testing.T) {
	a, err := New(testKey, 4)
	require.NoError(t, err)
	nonce := bytes.Repeat([]byte{0x01}, NonceSize)

	aad := []byte{0x05, 0x10}
	sealed, err := a.Seal(nil, nonce, nil, aad)
	require.NoError(t, err)

	tampered := append([]byte{}, aad...)
	tampered[1] ^= 0x01
	_, err = a.Open(nil, nonce, sealed, tampered)
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestAADOnlyAcknowledgementMIC(t *testing.T) {
	// Mirrors the authenticated acknowledgement construction (spec.md
	// §4.5.3): a MIC over 2 bytes of additional data with no confidential
	// payload of its own.
	a, err := New(testKey, 4)
	require.NoError(t, err)
	nonce := bytes.Repeat([]byte{0x07}, NonceSize)
	a_ := []byte{0x03, 0x9A} // (strobe_count, delta)

	sealed, err := a.Seal(nil, nonce, nil, a_)
	require.NoError(t, err)
	require.Len(t, sealed, 4)

	opened, err := a.Open(nil, nonce, sealed, a_)
	require.NoError(t, err)
	require.Empty(t, opened)
}

func TestNewRejectsBadParameters(t *testing.T) {
	_, err := New(testKey, 5)
	require.Error(t, err)

	_, err = New([]byte{0x01}, 4)
	require.Error(t, err)
}
