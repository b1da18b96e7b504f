package viewstore

import (
	"net/netip"
	"testing"

	"github.com/route-beacon/bgpview-replicator/internal/view"
	"github.com/route-beacon/bgpview-replicator/internal/wire"
)

func mustPfx(s string) netip.Prefix { return netip.MustParsePrefix(s) }

func TestAddPeerDeduplicatesBySignature(t *testing.T) {
	s := New()
	m := s.Mutator()
	addr := netip.MustParseAddr("192.0.2.1")
	id1 := m.AddPeer("collector-a", addr, 65001)
	id2 := m.AddPeer("collector-a", addr, 65001)
	if id1 != id2 {
		t.Fatalf("expected same signature to reuse local id: %d != %d", id1, id2)
	}
	id3 := m.AddPeer("collector-b", addr, 65001)
	if id3 == id1 {
		t.Fatal("expected distinct signature to get a distinct local id")
	}
}

func TestPfxPeerIterationIsSortedAndActiveOnly(t *testing.T) {
	s := New()
	m := s.Mutator()
	addr := netip.MustParseAddr("192.0.2.1")
	p1 := m.AddPeer("c1", addr, 1)
	p2 := m.AddPeer("c2", addr, 2)

	var pid1, pid2 wire.PathID
	pid1[0], pid2[0] = 1, 2
	m.AddPfxPeer(mustPfx("10.0.0.0/24"), p1, pid1)
	m.AddPfxPeer(mustPfx("10.0.0.0/24"), p2, pid2)
	m.DeactivatePfxPeer(mustPfx("10.0.0.0/24"), p2)

	it := s.NewIterator()
	if !it.SeekPfx(mustPfx("10.0.0.0/24"), view.Active) {
		t.Fatal("expected prefix to be found active")
	}
	var seen []uint16
	for ok := it.PfxFirstPeer(view.Active); ok; ok = it.PfxNextPeer() {
		seen = append(seen, it.PfxPeerID())
	}
	if len(seen) != 1 || seen[0] != p1 {
		t.Fatalf("expected only active peer %d, got %v", p1, seen)
	}

	var seenAll []uint16
	for ok := it.PfxFirstPeer(view.All); ok; ok = it.PfxNextPeer() {
		seenAll = append(seenAll, it.PfxPeerID())
	}
	if len(seenAll) != 2 {
		t.Fatalf("expected both peers with All activity, got %v", seenAll)
	}
}

func TestDeactivatingAllCellsHidesPrefixFromActiveIteration(t *testing.T) {
	s := New()
	m := s.Mutator()
	addr := netip.MustParseAddr("192.0.2.1")
	p1 := m.AddPeer("c1", addr, 1)
	m.AddPfxPeer(mustPfx("10.0.0.0/24"), p1, wire.PathID{})
	m.DeactivatePfx(mustPfx("10.0.0.0/24"))

	it := s.NewIterator()
	if it.FirstPfx(view.Active) {
		t.Fatal("expected no active prefixes after DeactivatePfx")
	}
	if !it.FirstPfx(view.All) {
		t.Fatal("expected the prefix to still be visible under All activity")
	}
}

func TestClearRemovesEverything(t *testing.T) {
	s := New()
	m := s.Mutator()
	addr := netip.MustParseAddr("192.0.2.1")
	p1 := m.AddPeer("c1", addr, 1)
	m.AddPfxPeer(mustPfx("10.0.0.0/24"), p1, wire.PathID{})
	m.Clear()

	it := s.NewIterator()
	if it.FirstPfx(view.All) {
		t.Fatal("expected no prefixes after Clear")
	}
	if it.FirstPeer(view.All) {
		t.Fatal("expected no peers after Clear")
	}
}

func TestSeekPfxPeerRespectsActivity(t *testing.T) {
	s := New()
	m := s.Mutator()
	addr := netip.MustParseAddr("192.0.2.1")
	p1 := m.AddPeer("c1", addr, 1)
	m.AddPfxPeer(mustPfx("10.0.0.0/24"), p1, wire.PathID{})
	m.DeactivatePfxPeer(mustPfx("10.0.0.0/24"), p1)

	it := s.NewIterator()
	if it.SeekPfxPeer(mustPfx("10.0.0.0/24"), p1, view.Active) {
		t.Fatal("expected inactive cell to not be seekable under Active")
	}
	if !it.SeekPfxPeer(mustPfx("10.0.0.0/24"), p1, view.All) {
		t.Fatal("expected inactive cell to be seekable under All")
	}
}
