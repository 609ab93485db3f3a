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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshsec/llsec/akes"
	"github.com/meshsec/llsec/nbr"
	"github.com/meshsec/llsec/otp"
	"github.com/meshsec/llsec/radio"
)

func addrOfEngine(b byte) nbr.Addr {
	return nbr.Addr{0, 0, 0, 0, 0, 0, 0, b}
}

func newTestEngine(self nbr.Addr, driver *fakeStrobeDriver) (*Engine, *nbr.Table) {
	return newTestEngineWithPhaseLock(self, driver, true)
}

func newTestEngineWithPhaseLock(self nbr.Addr, driver *fakeStrobeDriver, secure bool) (*Engine, *nbr.Table) {
	table := nbr.NewTable(8, 4, true, false)
	framer := &otp.Framer{
		Header:   otp.Header{AddrLen: 8, CounterLen: 4, OTPLen: 3},
		PotrKey:  otp.DefaultKey[:],
		SelfAddr: self,
		Table:    table,
		Cache:    otp.NewHelloAckCache(4),
	}
	handshake := akes.NewEngine(akes.Config{
		SelfAddr:        self,
		Lifetime:        time.Hour,
		HelloAckMinWait: time.Millisecond,
		HelloAckMaxWait: 2 * time.Millisecond,
	}, table, framer)

	e := NewEngine(Config{
		SelfAddr:            self,
		WakeInterval:        2 * time.Millisecond,
		UnicastSecLevel:     5,
		BroadcastSecLevel:   1,
		AckTagLen:           4,
		WithSecurePhaseLock: secure,
	}, driver, MonotonicRawClock{}, framer.Header, framer, handshake, table, NewSendQueue())
	return e, table
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "idle", ModeIdle.String())
	assert.Equal(t, "duty-cycle", ModeDutyCycle.String())
	assert.Equal(t, "strobe", ModeStrobe.String())
}

func TestExtractChallengeRequiresFullLength(t *testing.T) {
	_, ok := extractChallenge([]byte{1, 2, 3})
	assert.False(t, ok)

	body := []byte("12345678trailing")
	c, ok := extractChallenge(body)
	require.True(t, ok)
	assert.Equal(t, [nbr.ChallengeLen]byte{'1', '2', '3', '4', '5', '6', '7', '8'}, c)
}

func TestEngineSendDataBuildsValidatableFrame(t *testing.T) {
	self := addrOfEngine(1)
	peer := addrOfEngine(2)
	d := newFakeStrobeDriver()
	e, table := newTestEngine(self, d)

	entry, err := table.New(peer, nbr.StatusPermanent)
	require.NoError(t, err)
	entry.Permanent.GroupKey = []byte("0123456789ABCDEF")

	bf, err := e.SendData(peer, false, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, e.queue.Dequeue(), bf)
	assert.Equal(t, peer, bf.Receiver)
	assert.False(t, bf.Broadcast)
	assert.Greater(t, len(bf.Payload), e.framer.Header.Len())
}

func TestEngineSendDataUnknownPeerFails(t *testing.T) {
	self := addrOfEngine(1)
	d := newFakeStrobeDriver()
	e, _ := newTestEngine(self, d)

	_, err := e.SendData(addrOfEngine(9), false, []byte("x"))
	assert.ErrorIs(t, err, akes.ErrNotAcceptable)
}

func TestEngineHandleDataSendsAcknowledgement(t *testing.T) {
	self := addrOfEngine(1)
	peer := addrOfEngine(2)
	d := newFakeStrobeDriver()
	e, table := newTestEngine(self, d)

	entry, err := table.New(peer, nbr.StatusPermanent)
	require.NoError(t, err)
	entry.Permanent.PairwiseKey = []byte("0123456789ABCDEF")
	entry.Permanent.GroupKey = []byte("0123456789ABCDEF")

	sealed, err := e.security().Seal(entry.Permanent.PairwiseKey, peer, 7, e.cfg.UnicastSecLevel, []byte("payload"))
	require.NoError(t, err)

	parsed := &otp.Parsed{
		Type:        otp.TypeUnicastData,
		Src:         peer,
		Entry:       entry,
		Counter:     7,
		StrobeIndex: 3,
		Body:        sealed,
	}

	e.handle(parsed)
	assert.Equal(t, 1, d.transmits)
}

func TestEngineHandleDataRejectsBadAuthenticity(t *testing.T) {
	self := addrOfEngine(1)
	peer := addrOfEngine(2)
	d := newFakeStrobeDriver()
	e, table := newTestEngine(self, d)

	entry, err := table.New(peer, nbr.StatusPermanent)
	require.NoError(t, err)
	entry.Permanent.PairwiseKey = []byte("0123456789ABCDEF")
	entry.Permanent.GroupKey = []byte("0123456789ABCDEF")

	parsed := &otp.Parsed{
		Type:        otp.TypeUnicastData,
		Src:         peer,
		Entry:       entry,
		Counter:     7,
		StrobeIndex: 3,
		Body:        []byte("not a sealed frame"),
	}

	e.handle(parsed)
	assert.Equal(t, 0, d.transmits)
}

func TestEngineHandleDataSkipsBroadcastAcknowledgement(t *testing.T) {
	self := addrOfEngine(1)
	d := newFakeStrobeDriver()
	e, _ := newTestEngine(self, d)

	parsed := &otp.Parsed{Type: otp.TypeBroadcastData}
	e.handle(parsed)
	assert.Equal(t, 0, d.transmits)
}

func TestEngineStrobeOneLearnsPhaseOnAck(t *testing.T) {
	self := addrOfEngine(1)
	peer := addrOfEngine(2)
	d := newFakeStrobeDriver()
	e, table := newTestEngine(self, d)

	entry, err := table.New(peer, nbr.StatusPermanent)
	require.NoError(t, err)
	entry.Permanent.PairwiseKey = []byte("0123456789ABCDEF")
	assert.False(t, entry.Permanent.Phase.Known())

	// The first strobe attempt's firstHeaderByte is 1 (Strobe counts the
	// transmission before it listens for the ack); the fake driver's
	// buffered remainder is the ack that verifies against it.
	ack, err := BuildAck(entry.Permanent.PairwiseKey, e.cfg.AckTagLen, peer, 42, e.cfg.UnicastSecLevel, 1, 9)
	require.NoError(t, err)
	d.remainder = ack.Marshal()
	d.events <- radio.EventNotification{Event: radio.EventFinalFIFOP}

	bf := NewBufferedFrame(peer, false, []byte{1, 2, 3}, 42)
	e.strobeOne(bf)

	select {
	case <-bf.Done:
	default:
		t.Fatal("strobeOne did not finish the buffered frame")
	}
	assert.Equal(t, ResultOK, bf.Result)
	assert.Equal(t, 1, bf.Transmissions)
	assert.True(t, entry.Permanent.Phase.Known())
}

func TestEngineStrobeOneOriginalModeNeverLearnsPhase(t *testing.T) {
	self := addrOfEngine(1)
	peer := addrOfEngine(2)
	d := newFakeStrobeDriver()
	e, table := newTestEngineWithPhaseLock(self, d, false)

	entry, err := table.New(peer, nbr.StatusPermanent)
	require.NoError(t, err)
	entry.Permanent.PairwiseKey = []byte("0123456789ABCDEF")

	ack, err := BuildAck(entry.Permanent.PairwiseKey, e.cfg.AckTagLen, peer, 42, e.cfg.UnicastSecLevel, 1, 9)
	require.NoError(t, err)
	d.remainder = ack.Marshal()
	d.events <- radio.EventNotification{Event: radio.EventFinalFIFOP}

	bf := NewBufferedFrame(peer, false, []byte{1, 2, 3}, 42)
	e.strobeOne(bf)

	assert.Equal(t, ResultOK, bf.Result)
	assert.False(t, entry.Permanent.Phase.Known())
}
