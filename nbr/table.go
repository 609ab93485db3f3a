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
	"errors"
	"time"

	"github.com/meshsec/llsec/replay"
)

var (
	// ErrTableFull is returned when no address slot remains (spec.md §7
	// "Resource exhaustion ... Returned to the caller of new_entry").
	ErrTableFull = errors.New("nbr: table is full")
	// ErrTentativeCapReached is returned when creating a tentative record
	// would exceed max_tentatives (spec.md §4.2, P2).
	ErrTentativeCapReached = errors.New("nbr: too many tentative neighbors")
	// ErrAlreadyExists is returned by New when the requested record kind
	// already exists for this address.
	ErrAlreadyExists = errors.New("nbr: record already exists")
	// ErrNotFound is returned when an operation names an address with no
	// matching entry.
	ErrNotFound = errors.New("nbr: no such neighbor")
)

// Entry is one neighbor (spec.md §3 "Neighbor entry"): up to one permanent
// and one tentative record, plus a local index unique across the table.
type Entry struct {
	Addr       Addr
	LocalIndex uint8
	Permanent  *PermanentRecord
	Tentative  *TentativeRecord
}

// empty reports invariant I1's negation candidate: true once neither
// record is populated, at which point the entry must be dropped (spec.md
// §3 "Lifetimes": "destroyed when both records are null").
func (e *Entry) empty() bool {
	return e.Permanent == nil && e.Tentative == nil
}

// Table is the fixed-capacity AKR neighbor table (spec.md §4.3, C4).
type Table struct {
	Lock Lock

	maxNeighbors  int
	maxTentatives int
	withIndices   bool
	suppression   bool

	// entries is kept as a slice, not a map, because Head/Next (§4.3) and
	// the scan-and-restart local-index assignment (grounded on akes-nbr.c
	// init_local_index) both want a stable iteration order.
	entries []*Entry
}

// NewTable constructs an empty table. maxNeighbors and maxTentatives follow
// spec.md §6's max_neighbors/max_tentatives knobs; withIndices/suppression
// mirror with_indices and the replay-suppression knob the anti-replay
// ledger is configured with.
func NewTable(maxNeighbors, maxTentatives int, withIndices, suppression bool) *Table {
	return &Table{
		maxNeighbors:  maxNeighbors,
		maxTentatives: maxTentatives,
		withIndices:   withIndices,
		suppression:   suppression,
	}
}

// Head returns the first entry in iteration order, or nil if the table is
// empty (akes_nbr_head).
func (t *Table) Head() *Entry {
	if len(t.entries) == 0 {
		return nil
	}
	return t.entries[0]
}

// Next returns the entry following current in iteration order, or nil at
// the end (akes_nbr_next).
func (t *Table) Next(current *Entry) *Entry {
	for i, e := range t.entries {
		if e == current {
			if i+1 < len(t.entries) {
				return t.entries[i+1]
			}
			return nil
		}
	}
	return nil
}

// Count returns how many entries currently hold a record of the given
// status. StatusTentative and StatusTentativeAwaitingAck both count
// against the tentative entry's single slot, matching P2's "the count of
// tentative records table-wide never exceeds max_tentatives" (akes_nbr_count).
func (t *Table) Count(status Status) int {
	n := 0
	for _, e := range t.entries {
		switch status {
		case StatusPermanent:
			if e.Permanent != nil {
				n++
			}
		default:
			if e.Tentative != nil {
				n++
			}
		}
	}
	return n
}

// GetByAddr looks up the entry for addr, or nil.
func (t *Table) GetByAddr(addr Addr) *Entry {
	for _, e := range t.entries {
		if e.Addr == addr {
			return e
		}
	}
	return nil
}

// GetBySenderAddr and GetByReceiverAddr are the same lookup under the two
// names spec.md §4.3 lists (akes_nbr_get_sender_entry /
// akes_nbr_get_receiver_entry): which byte range of the current frame
// supplies addr is the caller's concern, not the table's.
func (t *Table) GetBySenderAddr(addr Addr) *Entry   { return t.GetByAddr(addr) }
func (t *Table) GetByReceiverAddr(addr Addr) *Entry { return t.GetByAddr(addr) }

// assignLocalIndex scans for the smallest nonnegative integer unused by
// any other entry, restarting the scan from the table head on every
// collision. This is a direct port of akes-nbr.c's init_local_index: O(n²)
// in table size, acceptable because max_neighbors is small by construction
// (spec.md §6 default formula caps it well under 128).
func (t *Table) assignLocalIndex(entry *Entry) {
	entry.LocalIndex = 0
	for {
		collided := false
		for _, other := range t.entries {
			if other == entry {
				continue
			}
			if other.LocalIndex == entry.LocalIndex {
				entry.LocalIndex++
				collided = true
				break
			}
		}
		if !collided {
			return
		}
	}
}

// New allocates a record of the given status for addr, creating the entry
// if it doesn't already exist. status must be StatusPermanent or
// StatusTentative — StatusTentativeAwaitingAck is reached only when
// akes.Engine.SendHelloAck sets it on an existing tentative record,
// never created directly, mirroring the original's single
// tentative union slot whose status field transitions in place.
func (t *Table) New(addr Addr, status Status) (*Entry, error) {
	if status == StatusTentative && t.Count(StatusTentative) >= t.maxTentatives {
		return nil, ErrTentativeCapReached
	}

	entry := t.GetByAddr(addr)
	isNew := entry == nil
	if isNew {
		if len(t.entries) >= t.maxNeighbors {
			return nil, ErrTableFull
		}
		entry = &Entry{Addr: addr}
	}

	if !t.Lock.TryAcquire() {
		return nil, errors.New("nbr: table locked")
	}
	defer t.Lock.Release()

	switch status {
	case StatusPermanent:
		if entry.Permanent != nil {
			return nil, ErrAlreadyExists
		}
		entry.Permanent = &PermanentRecord{
			Replay: replay.New(t.suppression),
			Phase:  *NewPhase(),
		}
	default:
		if entry.Tentative != nil {
			return nil, ErrAlreadyExists
		}
		entry.Tentative = &TentativeRecord{
			Status: status,
			Replay: replay.New(t.suppression),
		}
	}

	if isNew {
		t.entries = append(t.entries, entry)
		if t.withIndices {
			t.assignLocalIndex(entry)
		}
	}
	return entry, nil
}

// Delete removes the record of the given status from entry, and removes
// the entry itself (freeing its address slot and local index) once both
// records are gone — spec.md §3's deletion policy, akes_nbr_delete's
// on_entry_change.
func (t *Table) Delete(addr Addr, status Status) error {
	entry := t.GetByAddr(addr)
	if entry == nil {
		return ErrNotFound
	}

	t.Lock.TryAcquire()
	defer t.Lock.Release()

	switch status {
	case StatusPermanent:
		entry.Permanent = nil
	default:
		entry.Tentative = nil
	}

	if entry.empty() {
		for i, e := range t.entries {
			if e == entry {
				t.entries = append(t.entries[:i], t.entries[i+1:]...)
				break
			}
		}
	}
	return nil
}

// Promote moves a TentativeAwaitingAck record's keys onto a new permanent
// record and discards the tentative one, implementing the sole
// non-timeout exit from the handshake state machine (spec.md §4.2 "ACK-rx
// --> PERMANENT"). It is an error to call Promote on an entry whose
// tentative record isn't in StatusTentativeAwaitingAck.
func (t *Table) Promote(addr Addr, now time.Time, lifetime time.Duration, groupKey []byte) (*PermanentRecord, error) {
	entry := t.GetByAddr(addr)
	if entry == nil || entry.Tentative == nil {
		return nil, ErrNotFound
	}
	if entry.Tentative.Status != StatusTentativeAwaitingAck {
		return nil, errors.New("nbr: tentative record not awaiting ack")
	}

	perm := &PermanentRecord{
		PairwiseKey: entry.Tentative.PendingPairwiseKey,
		GroupKey:    groupKey,
		Replay:      entry.Tentative.Replay,
		Expiration:  now.Add(lifetime),
		Phase:       *NewPhase(),
	}
	entry.Permanent = perm
	entry.Tentative = nil
	return perm, nil
}

// Prolong extends whichever record is active (permanent preferred) per
// spec.md §4.4's suppression-aware rule, applied through
// replay.Info.ShouldProlong.
func (t *Table) Prolong(entry *Entry, now time.Time, lifetime time.Duration, broadcast bool) {
	if entry.Permanent != nil {
		if entry.Permanent.Replay.ShouldProlong(broadcast) {
			entry.Permanent.Expiration = now.Add(lifetime)
		}
		return
	}
	if entry.Tentative != nil {
		if entry.Tentative.Replay.ShouldProlong(broadcast) {
			entry.Tentative.Expiration = now.Add(lifetime)
		}
	}
}

// IsExpired reports whether entry should be reaped: its calendar
// expiration has passed, or — for a permanent record under secure phase
// lock — its phase estimate has gone stale (akes_nbr_is_expired).
func (t *Table) IsExpired(entry *Entry, now time.Time, securePhaseLock bool) bool {
	if entry.Permanent != nil {
		if now.After(entry.Permanent.Expiration) {
			return true
		}
		if securePhaseLock && entry.Permanent.Phase.Known() {
			return entry.Permanent.Phase.Stale(now, UpdateThreshold)
		}
		return false
	}
	if entry.Tentative != nil {
		return now.After(entry.Tentative.Expiration)
	}
	return false
}

// DeleteExpiredTentatives reaps every tentative record whose expiration
// has passed (akes_nbr_delete_expired_tentatives).
func (t *Table) DeleteExpiredTentatives(now time.Time) {
	for _, e := range append([]*Entry{}, t.entries...) {
		if e.Tentative != nil && now.After(e.Tentative.Expiration) {
			_ = t.Delete(e.Addr, e.Tentative.Status)
		}
	}
}

// UpdateAfterAuthentication applies the bookkeeping akes_nbr_update
// performs once a frame from a permanent neighbor has been accepted:
// prolonging the record and, if configured, recording the sender's
// foreign index and refreshing the group key. Per spec.md §9's resolved
// redesign flag, the caller MUST invoke this only after CCM* verification
// has succeeded — never from untrusted header bytes alone.
func (t *Table) UpdateAfterAuthentication(entry *Entry, now time.Time, lifetime time.Duration, broadcast bool, foreignIndex uint8, groupKey []byte) {
	if entry.Permanent == nil {
		return
	}
	t.Prolong(entry, now, lifetime, broadcast)
	if t.withIndices {
		entry.Permanent.ForeignIndex = foreignIndex
	}
	if groupKey != nil {
		entry.Permanent.GroupKey = groupKey
	}
}
