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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshsec/llsec/nbr"
)

func testHeader() Header {
	return Header{AddrLen: 8, CounterLen: 4, OTPLen: 3}
}

func addrOf(b byte) nbr.Addr {
	return nbr.Addr{0, 0, 0, 0, 0, 0, 0, b}
}

func groupKey() []byte {
	return []byte("0123456789ABCDEF")
}

// TestL1HeaderRoundTrip covers spec.md §8's L1: a frame built by Create is
// accepted by ParseAndValidate for the self node.
func TestL1HeaderRoundTrip(t *testing.T) {
	self := addrOf(1)
	peer := addrOf(2)

	table := nbr.NewTable(8, 8, true, false)
	entry, err := table.New(peer, nbr.StatusPermanent)
	require.NoError(t, err)
	entry.Permanent.GroupKey = groupKey()

	f := &Framer{
		Header:   testHeader(),
		PotrKey:  DefaultKey[:],
		SelfAddr: self,
		Table:    table,
		Cache:    NewHelloAckCache(8),
	}

	// Build the frame as the peer would: a Framer whose SelfAddr is peer,
	// looking up self's entry with the same group key.
	peerTable := nbr.NewTable(8, 8, true, false)
	selfEntry, err := peerTable.New(self, nbr.StatusPermanent)
	require.NoError(t, err)
	selfEntry.Permanent.GroupKey = groupKey()

	peerFramer := &Framer{
		Header:   testHeader(),
		PotrKey:  DefaultKey[:],
		SelfAddr: peer,
		Table:    peerTable,
		Cache:    NewHelloAckCache(8),
	}

	frame, err := peerFramer.Create(CreateParams{
		Type:     TypeUnicastData,
		Receiver: self,
		Counter:  1,
		GroupKey: groupKey(),
	})
	require.NoError(t, err)
	require.Equal(t, f.Header.LenFor(TypeUnicastData), len(frame))

	parsed, err := f.ParseAndValidate(frame, ValidateParams{})
	require.NoError(t, err)
	assert.Equal(t, TypeUnicastData, parsed.Type)
	assert.Equal(t, peer, parsed.Src)
	assert.Equal(t, uint32(1), parsed.Counter)
}

// TestL2OTPBindingRejectsTamperedCounter covers L2: changing the counter
// after creation invalidates the normal OTP.
func TestL2OTPBindingRejectsTamperedCounter(t *testing.T) {
	self := addrOf(1)
	peer := addrOf(2)

	table := nbr.NewTable(8, 8, true, false)
	entry, err := table.New(peer, nbr.StatusPermanent)
	require.NoError(t, err)
	entry.Permanent.GroupKey = groupKey()

	f := &Framer{Header: testHeader(), PotrKey: DefaultKey[:], SelfAddr: self, Table: table, Cache: NewHelloAckCache(8)}

	frame, err := f.Create(CreateParams{Type: TypeUnicastData, Receiver: peer, Counter: 1, GroupKey: groupKey()})
	require.NoError(t, err)

	// Flip the last counter byte in place.
	frame[1+8+3] ^= 0xFF

	peerTable := nbr.NewTable(8, 8, true, false)
	selfEntry, err := peerTable.New(self, nbr.StatusPermanent)
	require.NoError(t, err)
	selfEntry.Permanent.GroupKey = groupKey()
	peerFramer := &Framer{Header: testHeader(), PotrKey: DefaultKey[:], SelfAddr: peer, Table: peerTable, Cache: NewHelloAckCache(8)}

	_, err = peerFramer.ParseAndValidate(frame, ValidateParams{})
	assert.ErrorIs(t, err, ErrFramerFailed)
}

// TestScenario2OnTheFlyRejection models spec.md §8 scenario 2: a frame
// with a bad OTP is rejected without a matching entry having been touched.
func TestScenario2OnTheFlyRejection(t *testing.T) {
	self := addrOf(1)
	table := nbr.NewTable(8, 8, true, false)
	f := &Framer{Header: testHeader(), PotrKey: DefaultKey[:], SelfAddr: self, Table: table, Cache: NewHelloAckCache(8)}

	frame := make([]byte, f.Header.LenFor(TypeUnicastData))
	frame[0] = byte(TypeUnicastData)
	copy(frame[1:9], addrOf(9)[:])

	_, err := f.ParseAndValidate(frame, ValidateParams{})
	assert.ErrorIs(t, err, ErrFramerFailed, "unknown sender with no permanent record must be rejected")
}

func TestHelloAckChainBindsChallengeAndDetectsReplay(t *testing.T) {
	initiator := addrOf(1)
	responder := addrOf(2)
	var challenge [ChallengeLen]byte
	copy(challenge[:], []byte("12345678"))

	// Responder creates the HELLOACK carrying the special OTP.
	rTable := nbr.NewTable(8, 8, true, false)
	tentative, err := rTable.New(initiator, nbr.StatusTentative)
	require.NoError(t, err)
	tentative.Tentative.Challenge = challenge
	special, err := Special(DefaultKey[:], initiator, challenge, 3)
	require.NoError(t, err)
	copy(tentative.Tentative.OTP[:], special)

	rFramer := &Framer{Header: testHeader(), PotrKey: DefaultKey[:], SelfAddr: responder, Table: rTable, Cache: NewHelloAckCache(8)}
	frame, err := rFramer.Create(CreateParams{Type: TypeHelloAck, Receiver: initiator, Counter: 0, Entry: tentative})
	require.NoError(t, err)

	iTable := nbr.NewTable(8, 8, true, false)
	iFramer := &Framer{Header: testHeader(), PotrKey: DefaultKey[:], SelfAddr: initiator, Table: iTable, Cache: NewHelloAckCache(8)}

	parsed, err := iFramer.ParseAndValidate(frame, ValidateParams{OurHelloChallenge: challenge, HaveHelloChallenge: true})
	require.NoError(t, err)
	assert.Equal(t, TypeHelloAck, parsed.Type)

	// Replaying the exact same HELLOACK bytes must now be rejected by the cache.
	_, err = iFramer.ParseAndValidate(frame, ValidateParams{OurHelloChallenge: challenge, HaveHelloChallenge: true})
	assert.ErrorIs(t, err, ErrFramerFailed)
}

func helloFrame(t *testing.T, f *Framer, receiver nbr.Addr, counter uint32, key []byte) ([]byte, [ChallengeLen]byte) {
	t.Helper()
	header, err := f.Create(CreateParams{Type: TypeHello, Receiver: receiver, Counter: counter, GroupKey: key})
	require.NoError(t, err)
	var challenge [ChallengeLen]byte
	copy(challenge[:], []byte("87654321"))
	return append(header, challenge[:]...), challenge
}

// TestHelloRejectsWrongLength covers potr.c's HELLO_LEN check: a HELLO
// missing or padding its trailing challenge must be rejected outright.
func TestHelloRejectsWrongLength(t *testing.T) {
	self := addrOf(1)
	table := nbr.NewTable(8, 8, true, false)
	f := &Framer{Header: testHeader(), PotrKey: DefaultKey[:], SelfAddr: self, Table: table, Cache: NewHelloAckCache(8)}

	frame, _ := helloFrame(t, f, nbr.Broadcast, 1, groupKey())

	_, err := f.ParseAndValidate(frame[:len(frame)-1], ValidateParams{})
	assert.ErrorIs(t, err, ErrFramerFailed, "truncated HELLO must be rejected")

	_, err = f.ParseAndValidate(append(frame, 0), ValidateParams{})
	assert.ErrorIs(t, err, ErrFramerFailed, "padded HELLO must be rejected")

	_, err = f.ParseAndValidate(frame, ValidateParams{})
	assert.NoError(t, err, "exact-length HELLO from an unknown sender must be accepted")
}

// TestHelloFromPermanentSenderToleratesOTPMismatch covers potr.c's
// fallthrough for a HELLO from an address that already holds a permanent
// entry: unlike every other frame type, a mismatched recomputed OTP does
// not reject the HELLO (it only skips the replay check that would
// otherwise follow a match).
func TestHelloFromPermanentSenderToleratesOTPMismatch(t *testing.T) {
	self := addrOf(1)
	sender := addrOf(2)

	table := nbr.NewTable(8, 8, true, false)
	entry, err := table.New(sender, nbr.StatusPermanent)
	require.NoError(t, err)
	entry.Permanent.GroupKey = groupKey()

	f := &Framer{Header: testHeader(), PotrKey: DefaultKey[:], SelfAddr: self, Table: table, Cache: NewHelloAckCache(8)}

	senderFramer := &Framer{Header: testHeader(), PotrKey: DefaultKey[:], SelfAddr: sender, Table: nbr.NewTable(8, 8, true, false), Cache: NewHelloAckCache(8)}
	// Sender seals its HELLO under a group key the receiver doesn't hold
	// for it, so the receiver's recomputed OTP can't match.
	frame, _ := helloFrame(t, senderFramer, nbr.Broadcast, 5, []byte("FEDCBA9876543210"))

	parsed, err := f.ParseAndValidate(frame, ValidateParams{})
	require.NoError(t, err)
	assert.Equal(t, TypeHello, parsed.Type)

	// An OTP mismatch skips the replay check entirely (potr.c: "break"
	// happens before anti_replay_was_replayed runs), so replaying the same
	// counter is tolerated too.
	_, err = f.ParseAndValidate(frame, ValidateParams{})
	assert.NoError(t, err)
}

// TestHelloFromPermanentSenderRejectsReplayOnOTPMatch covers the other
// side of the same fallthrough: when the recomputed OTP does match, a
// replayed counter is rejected exactly as it would be for any other frame
// type from a permanent sender.
func TestHelloFromPermanentSenderRejectsReplayOnOTPMatch(t *testing.T) {
	self := addrOf(1)
	sender := addrOf(2)

	table := nbr.NewTable(8, 8, true, false)
	entry, err := table.New(sender, nbr.StatusPermanent)
	require.NoError(t, err)
	entry.Permanent.GroupKey = groupKey()

	f := &Framer{Header: testHeader(), PotrKey: DefaultKey[:], SelfAddr: self, Table: table, Cache: NewHelloAckCache(8)}

	senderFramer := &Framer{Header: testHeader(), PotrKey: DefaultKey[:], SelfAddr: sender, Table: nbr.NewTable(8, 8, true, false), Cache: NewHelloAckCache(8)}
	// Sender seals its HELLO under the same group key the receiver holds
	// for it, so the receiver's recomputed OTP matches.
	frame, _ := helloFrame(t, senderFramer, nbr.Broadcast, 5, groupKey())

	parsed, err := f.ParseAndValidate(frame, ValidateParams{})
	require.NoError(t, err)
	assert.Equal(t, TypeHello, parsed.Type)

	// Replaying the same counter must now be rejected.
	_, err = f.ParseAndValidate(frame, ValidateParams{})
	assert.ErrorIs(t, err, ErrFramerFailed)
}
