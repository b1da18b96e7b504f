// Package view defines the narrow iteration/mutation contract that the
// differential codec uses to read and rebuild a BGP routing-table view.
// The view's own storage is an external concern (see spec.md §1); this
// package only names the shape the codec needs.
package view

import (
	"net/netip"

	"github.com/route-beacon/bgpview-replicator/internal/wire"
)

// Activity selects whether iteration/seek operations consider only active
// entities or every entity regardless of its active flag.
type Activity int

const (
	Active Activity = iota
	All
)

// Signature is a peer's content-addressable identity: identical signatures
// denote the same peer (spec.md §3).
type Signature struct {
	Collector string
	Addr      netip.Addr
	ASN       uint32
}

// EntityTag identifies the granularity a FilterFunc is being asked about.
type EntityTag int

const (
	FilterPeer EntityTag = iota
	FilterPfx
	FilterPfxPeer
)

// FilterFunc is called by the differ at PEER, PFX, and PFX_PEER granularity
// to decide whether an entity should be sent. A non-nil error aborts the
// in-progress send, which returns it wrapped; there is no separate error
// kind for a filter abort.
type FilterFunc func(it Iterator, tag EntityTag) (include bool, err error)

// Iterator is the read side of the view contract (spec.md §6): peer
// iteration, prefix iteration, cellular (prefix-peer) iteration scoped to
// whichever prefix the outer cursor currently sits on, and position-by-key
// seeks used by the differ's lock-step walk.
type Iterator interface {
	FirstPeer(activity Activity) bool
	HasMorePeer() bool
	NextPeer() bool
	PeerID() uint16
	PeerSignature() Signature

	FirstPfx(activity Activity) bool
	HasMorePfx() bool
	NextPfx() bool
	Pfx() netip.Prefix

	PfxFirstPeer(activity Activity) bool
	PfxHasMorePeer() bool
	PfxNextPeer() bool
	PfxPeerID() uint16
	PfxPeerPathID() wire.PathID

	SeekPfx(pfx netip.Prefix, activity Activity) bool
	SeekPfxPeer(pfx netip.Prefix, peerID uint16, activity Activity) bool
	SeekPeer(peerID uint16, activity Activity) bool
}

// Mutator is the write side of the view contract (spec.md §6), driven by
// the consumer receiver as it applies a sync or diff frame.
type Mutator interface {
	AddPeer(collector string, addr netip.Addr, asn uint32) uint16
	ActivatePeer(peerID uint16)
	DeactivatePeer(peerID uint16)

	AddPfxPeer(pfx netip.Prefix, peerID uint16, pathID wire.PathID)
	ActivatePfxPeer(pfx netip.Prefix, peerID uint16)
	DeactivatePfxPeer(pfx netip.Prefix, peerID uint16)
	DeactivatePfx(pfx netip.Prefix)

	SetTime(t uint32)
	Clear()
}

// View is the full external entity: something that can hand out both an
// Iterator and a Mutator over the same underlying state, plus report its
// own view time.
type View interface {
	NewIterator() Iterator
	Mutator() Mutator
	Time() uint32
}
