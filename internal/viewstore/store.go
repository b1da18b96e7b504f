// Package viewstore is a reference implementation of internal/view's
// Iterator/Mutator/View contract, backed by github.com/gaissmai/bart's
// compressed trie for prefix storage. It exists so the differ and
// receiver can be exercised end-to-end without an external view
// implementation (spec.md §1 treats the view's own storage as an external
// collaborator; this package is one concrete collaborator, suitable for
// tests, cmd/bgpview-replicator, and small deployments).
package viewstore

import (
	"net/netip"
	"sort"

	"github.com/gaissmai/bart"

	"github.com/route-beacon/bgpview-replicator/internal/view"
	"github.com/route-beacon/bgpview-replicator/internal/wire"
)

type peerRecord struct {
	sig    view.Signature
	active bool
}

type cellEntry struct {
	pathID wire.PathID
	active bool
}

type pfxEntry struct {
	cells map[uint16]cellEntry
}

// Store is a single BGP routing-table view: a dense peer table plus a
// bart-backed prefix trie of per-peer cells. It is not safe for concurrent
// use, matching the single-threaded codec model (spec.md §5).
type Store struct {
	t uint32

	peers    []peerRecord // index 0 unused; local peer ids start at 1
	sigIndex map[view.Signature]uint16

	pfxs *bart.Table[*pfxEntry]
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		peers:    make([]peerRecord, 1),
		sigIndex: make(map[view.Signature]uint16),
		pfxs:     &bart.Table[*pfxEntry]{},
	}
}

func (s *Store) Time() uint32 { return s.t }

func (s *Store) Mutator() view.Mutator { return (*mutator)(s) }

func (s *Store) NewIterator() view.Iterator {
	return &iterator{s: s}
}

// --- mutator ---

type mutator Store

func (m *mutator) store() *Store { return (*Store)(m) }

func (m *mutator) AddPeer(collector string, addr netip.Addr, asn uint32) uint16 {
	s := m.store()
	sig := view.Signature{Collector: collector, Addr: addr, ASN: asn}
	if id, ok := s.sigIndex[sig]; ok {
		s.peers[id].active = true
		return id
	}
	id := uint16(len(s.peers))
	s.peers = append(s.peers, peerRecord{sig: sig, active: true})
	s.sigIndex[sig] = id
	return id
}

func (m *mutator) ActivatePeer(peerID uint16) {
	s := m.store()
	if int(peerID) < len(s.peers) {
		s.peers[peerID].active = true
	}
}

func (m *mutator) DeactivatePeer(peerID uint16) {
	s := m.store()
	if int(peerID) < len(s.peers) {
		s.peers[peerID].active = false
	}
}

func (m *mutator) AddPfxPeer(pfx netip.Prefix, peerID uint16, pathID wire.PathID) {
	s := m.store()
	e, ok := s.pfxs.Get(pfx)
	if !ok {
		e = &pfxEntry{cells: make(map[uint16]cellEntry)}
		s.pfxs.Insert(pfx, e)
	}
	e.cells[peerID] = cellEntry{pathID: pathID, active: true}
}

func (m *mutator) ActivatePfxPeer(pfx netip.Prefix, peerID uint16) {
	s := m.store()
	if e, ok := s.pfxs.Get(pfx); ok {
		if c, ok := e.cells[peerID]; ok {
			c.active = true
			e.cells[peerID] = c
		}
	}
}

func (m *mutator) DeactivatePfxPeer(pfx netip.Prefix, peerID uint16) {
	s := m.store()
	if e, ok := s.pfxs.Get(pfx); ok {
		if c, ok := e.cells[peerID]; ok {
			c.active = false
			e.cells[peerID] = c
		}
	}
}

func (m *mutator) DeactivatePfx(pfx netip.Prefix) {
	s := m.store()
	if e, ok := s.pfxs.Get(pfx); ok {
		for id, c := range e.cells {
			c.active = false
			e.cells[id] = c
		}
	}
}

func (m *mutator) SetTime(t uint32) { m.store().t = t }

func (m *mutator) Clear() {
	s := m.store()
	s.peers = make([]peerRecord, 1)
	s.sigIndex = make(map[view.Signature]uint16)
	s.pfxs = &bart.Table[*pfxEntry]{}
}

// --- iterator ---

type iterator struct {
	s *Store

	peerIDs []uint16
	peerPos int

	pfxKeys []netip.Prefix
	pfxPos  int

	cellKeys []uint16
	cellPos  int
}

func sortedPeerIDs(s *Store, activity view.Activity) []uint16 {
	var ids []uint16
	for id := 1; id < len(s.peers); id++ {
		if activity == view.All || s.peers[id].active {
			ids = append(ids, uint16(id))
		}
	}
	return ids
}

func (it *iterator) FirstPeer(activity view.Activity) bool {
	it.peerIDs = sortedPeerIDs(it.s, activity)
	it.peerPos = 0
	return it.peerPos < len(it.peerIDs)
}
func (it *iterator) HasMorePeer() bool { return it.peerPos+1 < len(it.peerIDs) }
func (it *iterator) NextPeer() bool {
	it.peerPos++
	return it.peerPos < len(it.peerIDs)
}
func (it *iterator) PeerID() uint16 { return it.peerIDs[it.peerPos] }
func (it *iterator) PeerSignature() view.Signature {
	return it.s.peers[it.peerIDs[it.peerPos]].sig
}

func (it *iterator) SeekPeer(peerID uint16, activity view.Activity) bool {
	if int(peerID) >= len(it.s.peers) {
		return false
	}
	if activity == view.Active && !it.s.peers[peerID].active {
		return false
	}
	it.peerIDs = []uint16{peerID}
	it.peerPos = 0
	return true
}

func pfxHasActiveCell(e *pfxEntry, activity view.Activity) bool {
	if activity == view.All {
		return len(e.cells) > 0
	}
	for _, c := range e.cells {
		if c.active {
			return true
		}
	}
	return false
}

func sortedPfxKeys(s *Store, activity view.Activity) []netip.Prefix {
	var keys []netip.Prefix
	for pfx, e := range s.pfxs.All() {
		if pfxHasActiveCell(e, activity) {
			keys = append(keys, pfx)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return prefixLess(keys[i], keys[j]) })
	return keys
}

func prefixLess(a, b netip.Prefix) bool {
	if a.Addr() != b.Addr() {
		return a.Addr().Less(b.Addr())
	}
	return a.Bits() < b.Bits()
}

func (it *iterator) FirstPfx(activity view.Activity) bool {
	it.pfxKeys = sortedPfxKeys(it.s, activity)
	it.pfxPos = 0
	return it.pfxPos < len(it.pfxKeys)
}
func (it *iterator) HasMorePfx() bool { return it.pfxPos+1 < len(it.pfxKeys) }
func (it *iterator) NextPfx() bool {
	it.pfxPos++
	return it.pfxPos < len(it.pfxKeys)
}
func (it *iterator) Pfx() netip.Prefix { return it.pfxKeys[it.pfxPos] }

func (it *iterator) SeekPfx(pfx netip.Prefix, activity view.Activity) bool {
	e, ok := it.s.pfxs.Get(pfx)
	if !ok || !pfxHasActiveCell(e, activity) {
		return false
	}
	it.pfxKeys = []netip.Prefix{pfx}
	it.pfxPos = 0
	return true
}

func (it *iterator) currentEntry() (*pfxEntry, bool) {
	return it.s.pfxs.Get(it.pfxKeys[it.pfxPos])
}

func sortedCellKeys(e *pfxEntry, activity view.Activity) []uint16 {
	var keys []uint16
	for id, c := range e.cells {
		if activity == view.All || c.active {
			keys = append(keys, id)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (it *iterator) PfxFirstPeer(activity view.Activity) bool {
	e, ok := it.currentEntry()
	if !ok {
		it.cellKeys = nil
		return false
	}
	it.cellKeys = sortedCellKeys(e, activity)
	it.cellPos = 0
	return it.cellPos < len(it.cellKeys)
}
func (it *iterator) PfxHasMorePeer() bool { return it.cellPos+1 < len(it.cellKeys) }
func (it *iterator) PfxNextPeer() bool {
	it.cellPos++
	return it.cellPos < len(it.cellKeys)
}
func (it *iterator) PfxPeerID() uint16 { return it.cellKeys[it.cellPos] }
func (it *iterator) PfxPeerPathID() wire.PathID {
	e, _ := it.currentEntry()
	return e.cells[it.cellKeys[it.cellPos]].pathID
}

func (it *iterator) SeekPfxPeer(pfx netip.Prefix, peerID uint16, activity view.Activity) bool {
	e, ok := it.s.pfxs.Get(pfx)
	if !ok {
		return false
	}
	c, ok := e.cells[peerID]
	if !ok || (activity == view.Active && !c.active) {
		return false
	}
	it.pfxKeys = []netip.Prefix{pfx}
	it.pfxPos = 0
	it.cellKeys = []uint16{peerID}
	it.cellPos = 0
	return true
}
