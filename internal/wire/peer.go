package wire

import (
	"fmt"
	"net/netip"
)

// PeerTag marks a peer record on the peers stream.
const PeerTag byte = 'P'

// EndTag marks the end-of-frame sentinel shared by the peers and pfxs
// streams.
const EndTag byte = 'E'

// Peer is a single peer record as carried on the peers stream: the
// producer-local id plus the (collector, IP, AS) signature that makes it
// content-addressable.
type Peer struct {
	PeerID    uint16
	Collector string
	Addr      netip.Addr
	ASN       uint32
}

// SerializePeer writes a 'P' record: tag, peer id, collector name, address,
// AS number.
func SerializePeer(buf []byte, p Peer) (int, error) {
	if len(buf) < 1+2 {
		return 0, ErrShortBuffer
	}
	n := putUint8(buf, PeerTag)
	n += putUint16(buf[n:], p.PeerID)

	s, err := putString(buf[n:], p.Collector)
	if err != nil {
		return 0, fmt.Errorf("wire: serializing peer collector: %w", err)
	}
	n += s

	a, err := putHostAddr(buf[n:], p.Addr)
	if err != nil {
		return 0, fmt.Errorf("wire: serializing peer addr: %w", err)
	}
	n += a

	if len(buf) < n+4 {
		return 0, ErrShortBuffer
	}
	n += putUint32(buf[n:], p.ASN)
	return n, nil
}

// DeserializePeer reads a 'P' record previously written by SerializePeer.
// The tag byte must already have been consumed by the caller and is not
// re-checked here; DeserializePeerTagged does that.
func DeserializePeer(buf []byte) (Peer, int, error) {
	if len(buf) < 2 {
		return Peer{}, 0, ErrShortBuffer
	}
	var p Peer
	peerID, n := getUint16(buf)
	p.PeerID = peerID

	collector, s, err := getString(buf[n:])
	if err != nil {
		return Peer{}, 0, err
	}
	p.Collector = collector
	n += s

	addr, a, err := getHostAddr(buf[n:])
	if err != nil {
		return Peer{}, 0, err
	}
	p.Addr = addr
	n += a

	if len(buf) < n+4 {
		return Peer{}, 0, ErrShortBuffer
	}
	asn, m := getUint32(buf[n:])
	p.ASN = asn
	n += m

	return p, n, nil
}

// DeserializePeerTagged reads a tag byte and dispatches to DeserializePeer
// when the tag is PeerTag. Returns ErrMalformed for any other tag.
func DeserializePeerTagged(buf []byte) (Peer, int, error) {
	if len(buf) < 1 {
		return Peer{}, 0, ErrShortBuffer
	}
	tag, n := getUint8(buf)
	if tag != PeerTag {
		return Peer{}, 0, fmt.Errorf("wire: expected peer tag 'P', got %q: %w", tag, ErrMalformed)
	}
	p, s, err := DeserializePeer(buf[n:])
	if err != nil {
		return Peer{}, 0, err
	}
	return p, n + s, nil
}

// EndMarker is the per-frame trailer on the peers and pfxs streams: the
// view time of the frame and the count of items (peers or prefix rows)
// that preceded it.
type EndMarker struct {
	ViewTime uint32
	Count    uint32
}

// SerializeEndMarker writes an 'E' record.
func SerializeEndMarker(buf []byte, m EndMarker) (int, error) {
	if len(buf) < 1+4+4 {
		return 0, ErrShortBuffer
	}
	n := putUint8(buf, EndTag)
	n += putUint32(buf[n:], m.ViewTime)
	n += putUint32(buf[n:], m.Count)
	return n, nil
}

// DeserializeEndMarker reads an 'E' record, including its tag byte.
func DeserializeEndMarker(buf []byte) (EndMarker, int, error) {
	if len(buf) < 1 {
		return EndMarker{}, 0, ErrShortBuffer
	}
	tag, n := getUint8(buf)
	if tag != EndTag {
		return EndMarker{}, 0, fmt.Errorf("wire: expected end tag 'E', got %q: %w", tag, ErrMalformed)
	}
	if len(buf) < n+8 {
		return EndMarker{}, 0, ErrShortBuffer
	}
	var m EndMarker
	m.ViewTime, _ = getUint32(buf[n:])
	n += 4
	m.Count, _ = getUint32(buf[n:])
	n += 4
	return m, n, nil
}
