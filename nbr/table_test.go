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

package nbr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addrOf(b byte) Addr {
	return Addr{0, 0, 0, 0, 0, 0, 0, b}
}

// TestP2TentativeCapRejectsOverflow covers P2: table-wide tentative
// count never exceeds max_tentatives.
func TestP2TentativeCapRejectsOverflow(t *testing.T) {
	tbl := NewTable(8, 2, true, false)

	_, err := tbl.New(addrOf(1), StatusTentative)
	require.NoError(t, err)
	_, err = tbl.New(addrOf(2), StatusTentative)
	require.NoError(t, err)

	_, err = tbl.New(addrOf(3), StatusTentative)
	assert.ErrorIs(t, err, ErrTentativeCapReached)
	assert.Equal(t, 2, tbl.Count(StatusTentative))
}

func TestTableFullRejectsNewAddresses(t *testing.T) {
	tbl := NewTable(1, 4, true, false)

	_, err := tbl.New(addrOf(1), StatusPermanent)
	require.NoError(t, err)

	_, err = tbl.New(addrOf(2), StatusPermanent)
	assert.ErrorIs(t, err, ErrTableFull)
}

func TestNewOnExistingAddressReturnsSameEntry(t *testing.T) {
	tbl := NewTable(8, 4, true, false)

	e1, err := tbl.New(addrOf(1), StatusTentative)
	require.NoError(t, err)

	e2, err := tbl.New(addrOf(1), StatusPermanent)
	require.NoError(t, err)

	assert.Same(t, e1, e2)
	assert.NotNil(t, e2.Permanent)
	assert.NotNil(t, e2.Tentative)
	assert.Equal(t, 1, len(tbl.entries))
}

func TestLocalIndexAssignmentScanAndRestart(t *testing.T) {
	tbl := NewTable(8, 8, true, false)

	e1, err := tbl.New(addrOf(1), StatusPermanent)
	require.NoError(t, err)
	e2, err := tbl.New(addrOf(2), StatusPermanent)
	require.NoError(t, err)
	e3, err := tbl.New(addrOf(3), StatusPermanent)
	require.NoError(t, err)

	assert.Equal(t, uint8(0), e1.LocalIndex)
	assert.Equal(t, uint8(1), e2.LocalIndex)
	assert.Equal(t, uint8(2), e3.LocalIndex)

	require.NoError(t, tbl.Delete(addrOf(2), StatusPermanent))

	e4, err := tbl.New(addrOf(4), StatusPermanent)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), e4.LocalIndex, "freed index 1 should be reused")
}

func TestHeadNextIterationOrder(t *testing.T) {
	tbl := NewTable(8, 8, true, false)
	e1, _ := tbl.New(addrOf(1), StatusPermanent)
	e2, _ := tbl.New(addrOf(2), StatusPermanent)
	e3, _ := tbl.New(addrOf(3), StatusPermanent)

	head := tbl.Head()
	require.Equal(t, e1, head)
	require.Equal(t, e2, tbl.Next(head))
	require.Equal(t, e3, tbl.Next(tbl.Next(head)))
	assert.Nil(t, tbl.Next(e3))
}

func TestGetBySenderAndReceiverAddrAreTheSameLookup(t *testing.T) {
	tbl := NewTable(8, 8, true, false)
	e, _ := tbl.New(addrOf(9), StatusPermanent)

	assert.Same(t, e, tbl.GetBySenderAddr(addrOf(9)))
	assert.Same(t, e, tbl.GetByReceiverAddr(addrOf(9)))
	assert.Nil(t, tbl.GetBySenderAddr(addrOf(10)))
}

// TestDeleteRemovesEntryOnceBothRecordsGone covers the entry lifecycle
// described in spec.md §3: an entry persists while either record exists.
func TestDeleteRemovesEntryOnceBothRecordsGone(t *testing.T) {
	tbl := NewTable(8, 8, true, false)
	addr := addrOf(5)
	_, err := tbl.New(addr, StatusTentative)
	require.NoError(t, err)
	_, err = tbl.New(addr, StatusPermanent)
	require.NoError(t, err)

	require.NoError(t, tbl.Delete(addr, StatusTentative))
	assert.NotNil(t, tbl.GetByAddr(addr), "entry survives with a permanent record left")

	require.NoError(t, tbl.Delete(addr, StatusPermanent))
	assert.Nil(t, tbl.GetByAddr(addr), "entry is gone once both records are deleted")
}

func TestPromoteRequiresAwaitingAck(t *testing.T) {
	tbl := NewTable(8, 8, true, false)
	addr := addrOf(6)
	entry, err := tbl.New(addr, StatusTentative)
	require.NoError(t, err)
	entry.Tentative.PendingPairwiseKey = []byte("pairwise-key-16b")

	_, err = tbl.Promote(addr, time.Now(), time.Minute, nil)
	assert.Error(t, err, "promoting before HELLOACK' progression must fail")

	entry.Tentative.Status = StatusTentativeAwaitingAck
	perm, err := tbl.Promote(addr, time.Now(), time.Minute, []byte("group-key-16byte"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pairwise-key-16b"), perm.PairwiseKey)
	assert.Nil(t, tbl.GetByAddr(addr).Tentative)
	assert.NotNil(t, tbl.GetByAddr(addr).Permanent)
}

func TestIsExpiredByCalendarExpiration(t *testing.T) {
	tbl := NewTable(8, 8, true, false)
	entry, _ := tbl.New(addrOf(7), StatusPermanent)
	now := time.Now()
	entry.Permanent.Expiration = now.Add(-time.Second)

	assert.True(t, tbl.IsExpired(entry, now, false))
}

func TestIsExpiredUnderSecurePhaseLock(t *testing.T) {
	tbl := NewTable(8, 8, true, false)
	entry, _ := tbl.New(addrOf(8), StatusPermanent)
	now := time.Now()
	entry.Permanent.Expiration = now.Add(time.Hour)
	entry.Permanent.Phase.Update(now.Add(-UpdateThreshold-time.Second), 42, 0, false)

	assert.False(t, tbl.IsExpired(entry, now, false), "phase staleness ignored without secure phase lock")
	assert.True(t, tbl.IsExpired(entry, now, true), "phase staleness expires the record under secure phase lock")
}

func TestDeleteExpiredTentatives(t *testing.T) {
	tbl := NewTable(8, 8, true, false)
	now := time.Now()

	stale, _ := tbl.New(addrOf(1), StatusTentative)
	stale.Tentative.Expiration = now.Add(-time.Second)

	fresh, _ := tbl.New(addrOf(2), StatusTentative)
	fresh.Tentative.Expiration = now.Add(time.Hour)

	tbl.DeleteExpiredTentatives(now)

	assert.Nil(t, tbl.GetByAddr(addrOf(1)))
	assert.NotNil(t, tbl.GetByAddr(addrOf(2)))
}

func TestProlongRespectsSuppressionDirectionChange(t *testing.T) {
	tbl := NewTable(8, 8, true, true)
	entry, _ := tbl.New(addrOf(1), StatusPermanent)
	now := time.Now()
	entry.Permanent.Expiration = now

	tbl.Prolong(entry, now, time.Minute, false)
	first := entry.Permanent.Expiration
	assert.True(t, first.After(now) || first.Equal(now.Add(time.Minute)))

	before := entry.Permanent.Expiration
	tbl.Prolong(entry, now, time.Minute, false)
	assert.Equal(t, before, entry.Permanent.Expiration, "same direction twice must not re-prolong under suppression")

	tbl.Prolong(entry, now, 2*time.Minute, true)
	assert.Equal(t, now.Add(2*time.Minute), entry.Permanent.Expiration, "direction change re-prolongs")
}

func TestUpdateAfterAuthenticationAppliesIndexAndGroupKey(t *testing.T) {
	tbl := NewTable(8, 8, true, false)
	entry, _ := tbl.New(addrOf(3), StatusPermanent)
	now := time.Now()

	tbl.UpdateAfterAuthentication(entry, now, time.Minute, false, 7, []byte("group-key-16byte"))

	assert.Equal(t, uint8(7), entry.Permanent.ForeignIndex)
	assert.Equal(t, []byte("group-key-16byte"), entry.Permanent.GroupKey)
	assert.Equal(t, now.Add(time.Minute), entry.Permanent.Expiration)
}
