package wire

import (
	"fmt"
	"net/netip"
)

// Prefix row operation tags, per spec.md §4.1.
const (
	OpSync   byte = 'S' // authoritative: cells present are the complete state
	OpUpdate byte = 'U' // add or overwrite each listed cell
	OpRemove byte = 'R' // remove each listed cell (or the whole prefix if empty)
)

// Cell is a single (peer, path) observation attached to a prefix row.
type Cell struct {
	PeerID uint16
	PathID PathID
}

// PrefixRow is one row on the pfxs stream: an operation tag, the prefix it
// applies to, and the list of cells it carries.
type PrefixRow struct {
	Op     byte
	Prefix netip.Prefix
	Cells  []Cell
}

// SerializePrefixRow writes a row: op tag, prefix, cells, the 0xFFFF
// sentinel, then a u16 cell count.
func SerializePrefixRow(buf []byte, row PrefixRow) (int, error) {
	if row.Op != OpSync && row.Op != OpUpdate && row.Op != OpRemove {
		return 0, fmt.Errorf("wire: invalid prefix row op %q: %w", row.Op, ErrMalformed)
	}
	if len(row.Cells) > 0xFFFF {
		return 0, fmt.Errorf("wire: %d cells exceeds u16 cell count: %w", len(row.Cells), ErrMalformed)
	}

	if len(buf) < 1 {
		return 0, ErrShortBuffer
	}
	n := putUint8(buf, row.Op)

	p, err := putPrefix(buf[n:], row.Prefix)
	if err != nil {
		return 0, err
	}
	n += p

	for _, c := range row.Cells {
		if c.PeerID == PeerIDSentinel {
			return 0, fmt.Errorf("wire: cell peer id collides with sentinel 0xFFFF: %w", ErrMalformed)
		}
		if len(buf) < n+2+8 {
			return 0, ErrShortBuffer
		}
		n += putUint16(buf[n:], c.PeerID)
		pn, err := putPathID(buf[n:], c.PathID)
		if err != nil {
			return 0, err
		}
		n += pn
	}

	if len(buf) < n+2+2 {
		return 0, ErrShortBuffer
	}
	n += putUint16(buf[n:], PeerIDSentinel)
	n += putUint16(buf[n:], uint16(len(row.Cells)))

	return n, nil
}

// DeserializePrefixRow reads a row previously written by SerializePrefixRow,
// validating that the declared cell count matches the number of cells found
// before the sentinel.
func DeserializePrefixRow(buf []byte) (PrefixRow, int, error) {
	if len(buf) < 1 {
		return PrefixRow{}, 0, ErrShortBuffer
	}
	op, n := getUint8(buf)
	if op != OpSync && op != OpUpdate && op != OpRemove {
		return PrefixRow{}, 0, fmt.Errorf("wire: unknown prefix row op %q: %w", op, ErrMalformed)
	}

	pfx, p, err := getPrefix(buf[n:])
	if err != nil {
		return PrefixRow{}, 0, err
	}
	n += p

	var cells []Cell
	for {
		if len(buf) < n+2 {
			return PrefixRow{}, 0, ErrShortBuffer
		}
		peerID, m := getUint16(buf[n:])
		if peerID == PeerIDSentinel {
			n += m
			break
		}
		n += m
		pathID, r, err := getPathID(buf[n:])
		if err != nil {
			return PrefixRow{}, 0, err
		}
		n += r
		cells = append(cells, Cell{PeerID: peerID, PathID: pathID})
	}

	if len(buf) < n+2 {
		return PrefixRow{}, 0, ErrShortBuffer
	}
	count, m := getUint16(buf[n:])
	n += m
	if int(count) != len(cells) {
		return PrefixRow{}, 0, fmt.Errorf("wire: prefix row declared %d cells, found %d: %w", count, len(cells), ErrMalformed)
	}

	return PrefixRow{Op: op, Prefix: pfx, Cells: cells}, n, nil
}
