// Package remap implements the consumer's peer-id remap table (spec.md
// §4.5): a dense array from remote (wire) peer id to local (view) peer id,
// rebuilt from scratch on every sync frame.
package remap

import "fmt"

// Unmapped is the reserved local id meaning "no local peer has been
// assigned for this remote id yet". A cell referencing an unmapped remote
// id is a wire-format error, not a silent skip.
const Unmapped uint16 = 0

// Table is a dense remote-id → local-id array. The zero Table is ready to
// use. It is not safe for concurrent use, matching the single-threaded
// consumer model (spec.md §5).
type Table struct {
	local []uint16 // indexed by remote peer id
}

// Clear zeroes every mapping. Called on every received sync frame.
func (t *Table) Clear() {
	for i := range t.local {
		t.local[i] = Unmapped
	}
}

// Set records that remote peer id remoteID maps to localID. The backing
// array grows as needed.
func (t *Table) Set(remoteID, localID uint16) {
	if int(remoteID) >= len(t.local) {
		grown := make([]uint16, int(remoteID)+1)
		copy(grown, t.local)
		t.local = grown
	}
	t.local[remoteID] = localID
}

// Local returns the local id for remoteID. ok is false if remoteID has
// never been mapped (out of range, or mapped to Unmapped).
func (t *Table) Local(remoteID uint16) (localID uint16, ok bool) {
	if int(remoteID) >= len(t.local) {
		return Unmapped, false
	}
	id := t.local[remoteID]
	return id, id != Unmapped
}

// Resolve is Local with the spec's error semantics: an unmapped remote id
// is an error, since every cell referencing a peer is required to have
// seen that peer's 'P' record earlier in the session.
func (t *Table) Resolve(remoteID uint16) (uint16, error) {
	id, ok := t.Local(remoteID)
	if !ok {
		return 0, fmt.Errorf("remap: remote peer id %d is unmapped", remoteID)
	}
	return id, nil
}
