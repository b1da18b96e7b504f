// Package differ implements the producer-side snapshot differ (spec.md
// §4.2): given the current view and an optional parent view, it walks both
// in lock-step — prefix, then prefix-peer cell — and emits add/change/
// remove rows through a Sink, which owns buffering and framing into broker
// messages.
package differ

import (
	"fmt"
	"net/netip"

	"github.com/route-beacon/bgpview-replicator/internal/view"
	"github.com/route-beacon/bgpview-replicator/internal/wire"
)

// Sink receives the rows the differ produces, in order. Implementations
// (see internal/publisher) own packing rows into fixed-size outbound
// buffers and flushing them as broker messages; the differ itself performs
// no I/O.
type Sink interface {
	EmitRow(row wire.PrefixRow) error
}

// Differ holds no state of its own; every Send call is independent.
type Differ struct{}

// New returns a Differ. The differ is stateless; New exists so call sites
// read the same way as the other components in this package family.
func New() *Differ {
	return &Differ{}
}

// Send compares cur against parent (nil for a sync) and writes the
// resulting rows to dst, applying filter at PFX and PFX_PEER granularity
// (the differ emits no peer records, so it never calls filter with
// FilterPeer). It returns fresh Stats for this send.
func (d *Differ) Send(dst Sink, cur, parent view.Iterator, filter view.FilterFunc) (Stats, error) {
	if filter == nil {
		filter = includeAll
	}
	if parent == nil {
		return d.sendSync(dst, cur, filter)
	}
	return d.sendDiff(dst, cur, parent, filter)
}

func includeAll(view.Iterator, view.EntityTag) (bool, error) { return true, nil }

func (d *Differ) sendSync(dst Sink, cur view.Iterator, filter view.FilterFunc) (Stats, error) {
	var st Stats

	for ok := cur.FirstPfx(view.Active); ok; ok = cur.NextPfx() {
		include, err := filter(cur, view.FilterPfx)
		if err != nil {
			return st, fmt.Errorf("differ: filter aborted on prefix %v: %w", cur.Pfx(), err)
		}
		if !include {
			continue
		}

		cells, err := collectCells(cur, filter)
		if err != nil {
			return st, err
		}

		row := wire.PrefixRow{Op: wire.OpSync, Prefix: cur.Pfx(), Cells: cells}
		if err := dst.EmitRow(row); err != nil {
			return st, fmt.Errorf("differ: emitting sync row for %v: %w", cur.Pfx(), err)
		}

		st.SyncPfxCnt++
		st.PfxCnt++
	}

	return st, nil
}

func (d *Differ) sendDiff(dst Sink, cur, parent view.Iterator, filter view.FilterFunc) (Stats, error) {
	var st Stats

	// Outer pass: every prefix in cur, classified against whether the
	// filter would also have sent it from the parent view.
	for ok := cur.FirstPfx(view.Active); ok; ok = cur.NextPfx() {
		pfx := cur.Pfx()

		sentByFilter, err := filter(cur, view.FilterPfx)
		if err != nil {
			return st, fmt.Errorf("differ: filter aborted on prefix %v: %w", pfx, err)
		}
		if !sentByFilter {
			continue
		}

		wasSent, err := parentWasSent(parent, pfx, filter)
		if err != nil {
			return st, err
		}

		if !wasSent {
			// New prefix: emit a full 'U' row.
			cells, err := collectCells(cur, filter)
			if err != nil {
				return st, err
			}
			if err := dst.EmitRow(wire.PrefixRow{Op: wire.OpUpdate, Prefix: pfx, Cells: cells}); err != nil {
				return st, fmt.Errorf("differ: emitting add row for %v: %w", pfx, err)
			}
			st.AddedPfxsCnt++
			st.PfxCnt++
			continue
		}

		// Present (and sent) in both views: run the inner cellular diff.
		changed, err := d.diffCells(dst, cur, parent, pfx, filter, &st)
		if err != nil {
			return st, err
		}
		st.CommonPfxsCnt++
		if changed {
			st.ChangedPfxsCnt++
		}
	}

	// Prefixes the parent sent that cur no longer has at all: remove the
	// whole prefix. Prefixes present in both were already handled above.
	for ok := parent.FirstPfx(view.Active); ok; ok = parent.NextPfx() {
		pfx := parent.Pfx()

		wasSent, err := filter(parent, view.FilterPfx)
		if err != nil {
			return st, fmt.Errorf("differ: filter aborted on parent prefix %v: %w", pfx, err)
		}
		if !wasSent {
			continue
		}

		if cur.SeekPfx(pfx, view.Active) {
			// Still present in cur; already handled by the outer pass
			// above (common or re-included).
			continue
		}

		cells, err := collectCells(parent, filter)
		if err != nil {
			return st, err
		}
		if err := dst.EmitRow(wire.PrefixRow{Op: wire.OpRemove, Prefix: pfx, Cells: cells}); err != nil {
			return st, fmt.Errorf("differ: emitting remove row for %v: %w", pfx, err)
		}
		st.RemovedPfxsCnt++
		st.PfxCnt++
	}

	return st, nil
}

// parentWasSent re-evaluates the filter with the parent iterator
// positioned at pfx. Re-evaluating (rather than remembering a previous
// decision) is what keeps excluded prefixes from being spuriously removed
// (spec.md §4.2, "No spurious removes").
func parentWasSent(parent view.Iterator, pfx netip.Prefix, filter view.FilterFunc) (bool, error) {
	if !parent.SeekPfx(pfx, view.Active) {
		return false, nil
	}
	return filter(parent, view.FilterPfx)
}

// diffCells runs the inner (prefix-peer) pass for a prefix present in both
// views, emitting an 'U' row for added/changed cells and an 'R' row for
// removed cells. Returns whether anything changed for this prefix.
func (d *Differ) diffCells(dst Sink, cur, parent view.Iterator, pfx netip.Prefix, filter view.FilterFunc, st *Stats) (bool, error) {
	var updated, removed []wire.Cell
	curSent := make(map[uint16]bool)

	// cur cells: added or changed.
	for ok := cur.PfxFirstPeer(view.Active); ok; ok = cur.PfxNextPeer() {
		peerID := cur.PfxPeerID()

		sent, err := filter(cur, view.FilterPfxPeer)
		if err != nil {
			return false, fmt.Errorf("differ: filter aborted on cell %v/%d: %w", pfx, peerID, err)
		}
		if !sent {
			continue
		}
		curSent[peerID] = true

		curPathID := cur.PfxPeerPathID()

		if !parent.SeekPfxPeer(pfx, peerID, view.Active) {
			updated = append(updated, wire.Cell{PeerID: peerID, PathID: curPathID})
			st.AddedPfxPeerCnt++
			continue
		}
		parentSent, err := filter(parent, view.FilterPfxPeer)
		if err != nil {
			return false, fmt.Errorf("differ: filter aborted on parent cell %v/%d: %w", pfx, peerID, err)
		}
		if !parentSent {
			updated = append(updated, wire.Cell{PeerID: peerID, PathID: curPathID})
			st.AddedPfxPeerCnt++
			continue
		}

		if parent.PfxPeerPathID() != curPathID {
			updated = append(updated, wire.Cell{PeerID: peerID, PathID: curPathID})
			st.ChangedPfxPeerCnt++
		}
		// else: paths equal, omit.
	}

	// parent cells: removed (sent in parent, not sent in cur).
	for ok := parent.PfxFirstPeer(view.Active); ok; ok = parent.PfxNextPeer() {
		peerID := parent.PfxPeerID()

		parentSent, err := filter(parent, view.FilterPfxPeer)
		if err != nil {
			return false, fmt.Errorf("differ: filter aborted on parent cell %v/%d: %w", pfx, peerID, err)
		}
		if !parentSent {
			continue
		}

		if curSent[peerID] {
			continue // handled above (add/change/omit)
		}

		removed = append(removed, wire.Cell{PeerID: peerID})
		st.RemovedPfxPeerCnt++
	}

	changed := len(updated) > 0 || len(removed) > 0

	if len(updated) > 0 {
		if err := dst.EmitRow(wire.PrefixRow{Op: wire.OpUpdate, Prefix: pfx, Cells: updated}); err != nil {
			return false, fmt.Errorf("differ: emitting update row for %v: %w", pfx, err)
		}
		st.PfxCnt++
	}
	if len(removed) > 0 {
		if err := dst.EmitRow(wire.PrefixRow{Op: wire.OpRemove, Prefix: pfx, Cells: removed}); err != nil {
			return false, fmt.Errorf("differ: emitting cell-remove row for %v: %w", pfx, err)
		}
		st.PfxCnt++
	}

	return changed, nil
}

// collectCells gathers every filter-included cell at the iterator's current
// prefix position.
func collectCells(it view.Iterator, filter view.FilterFunc) ([]wire.Cell, error) {
	var cells []wire.Cell
	for ok := it.PfxFirstPeer(view.Active); ok; ok = it.PfxNextPeer() {
		include, err := filter(it, view.FilterPfxPeer)
		if err != nil {
			return nil, fmt.Errorf("differ: filter aborted on cell %v/%d: %w", it.Pfx(), it.PfxPeerID(), err)
		}
		if !include {
			continue
		}
		cells = append(cells, wire.Cell{PeerID: it.PfxPeerID(), PathID: it.PfxPeerPathID()})
	}
	return cells, nil
}
