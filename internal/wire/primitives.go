package wire

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// PathID is the opaque, fixed-size AS-path store handle carried in a cell.
// Two cells carry the same path iff their PathID bytes are identical; the
// handle is stable only for the lifetime of a single producer session.
type PathID [8]byte

// PeerIDSentinel is the cell-list terminator written after a prefix row's
// cells: a peer id that can never be assigned to a real peer.
const PeerIDSentinel uint16 = 0xFFFF

func putUint8(buf []byte, v uint8) int {
	buf[0] = v
	return 1
}

func getUint8(buf []byte) (uint8, int) {
	return buf[0], 1
}

func putUint16(buf []byte, v uint16) int {
	binary.BigEndian.PutUint16(buf, v)
	return 2
}

func getUint16(buf []byte) (uint16, int) {
	return binary.BigEndian.Uint16(buf), 2
}

func putUint32(buf []byte, v uint32) int {
	binary.BigEndian.PutUint32(buf, v)
	return 4
}

func getUint32(buf []byte) (uint32, int) {
	return binary.BigEndian.Uint32(buf), 4
}

func putInt64(buf []byte, v int64) int {
	binary.BigEndian.PutUint64(buf, uint64(v))
	return 8
}

func getInt64(buf []byte) (int64, int) {
	return int64(binary.BigEndian.Uint64(buf)), 8
}

// putString writes a u16-length-prefixed ASCII/UTF-8 string. Returns the
// number of bytes written, or an error if s is too long or buf too small.
func putString(buf []byte, s string) (int, error) {
	if len(s) > 0xFFFF {
		return 0, fmt.Errorf("wire: string of %d bytes exceeds u16 length prefix: %w", len(s), ErrMalformed)
	}
	if len(buf) < 2+len(s) {
		return 0, ErrShortBuffer
	}
	putUint16(buf, uint16(len(s)))
	copy(buf[2:], s)
	return 2 + len(s), nil
}

// getString reads a u16-length-prefixed string. The returned string is a
// copy and does not share memory with buf.
func getString(buf []byte) (string, int, error) {
	if len(buf) < 2 {
		return "", 0, ErrShortBuffer
	}
	n, _ := getUint16(buf)
	if len(buf) < 2+int(n) {
		return "", 0, ErrShortBuffer
	}
	return string(buf[2 : 2+int(n)]), 2 + int(n), nil
}

// putHostAddr writes a bare IP address (a peer's address, not a network
// prefix) as {version-tag (1 byte: 4 or 6), byte-length (1 byte: 4 or 16),
// address-bytes}.
func putHostAddr(buf []byte, addr netip.Addr) (int, error) {
	addr = addr.Unmap()
	var b []byte
	var version uint8
	switch {
	case addr.Is4():
		version = 4
		a := addr.As4()
		b = a[:]
	case addr.Is6():
		version = 6
		a := addr.As16()
		b = a[:]
	default:
		return 0, fmt.Errorf("wire: invalid address %v: %w", addr, ErrMalformed)
	}
	if len(buf) < 2+len(b) {
		return 0, ErrShortBuffer
	}
	n := putUint8(buf, version)
	n += putUint8(buf[n:], uint8(len(b)))
	n += copy(buf[n:], b)
	return n, nil
}

// getHostAddr reads an address written by putHostAddr.
func getHostAddr(buf []byte) (netip.Addr, int, error) {
	if len(buf) < 2 {
		return netip.Addr{}, 0, ErrShortBuffer
	}
	version, n := getUint8(buf)
	length, m := getUint8(buf[n:])
	n += m
	if (version != 4 || length != 4) && (version != 6 || length != 16) {
		return netip.Addr{}, 0, fmt.Errorf("wire: bad address tag version=%d length=%d: %w", version, length, ErrMalformed)
	}
	if len(buf) < n+int(length) {
		return netip.Addr{}, 0, ErrShortBuffer
	}
	var addr netip.Addr
	if version == 4 {
		addr = netip.AddrFrom4([4]byte(buf[n : n+4]))
	} else {
		addr = netip.AddrFrom16([16]byte(buf[n : n+16]))
	}
	n += int(length)
	return addr, n, nil
}

// putPrefix writes a network prefix as { version-tag (1 byte: 4 or 6),
// length (1 byte: the prefix mask length), address-bytes (4 or 16) }, per
// spec.md §4.1's prefix-row framing.
func putPrefix(buf []byte, pfx netip.Prefix) (int, error) {
	addr := pfx.Addr().Unmap()
	var b []byte
	var version uint8
	switch {
	case addr.Is4():
		version = 4
		a := addr.As4()
		b = a[:]
	case addr.Is6():
		version = 6
		a := addr.As16()
		b = a[:]
	default:
		return 0, fmt.Errorf("wire: invalid prefix %v: %w", pfx, ErrMalformed)
	}
	if len(buf) < 2+len(b) {
		return 0, ErrShortBuffer
	}
	n := putUint8(buf, version)
	n += putUint8(buf[n:], uint8(pfx.Bits()))
	n += copy(buf[n:], b)
	return n, nil
}

// getPrefix reads a prefix written by putPrefix.
func getPrefix(buf []byte) (netip.Prefix, int, error) {
	if len(buf) < 2 {
		return netip.Prefix{}, 0, ErrShortBuffer
	}
	version, n := getUint8(buf)
	bits, m := getUint8(buf[n:])
	n += m

	var addrLen int
	switch version {
	case 4:
		addrLen = 4
	case 6:
		addrLen = 16
	default:
		return netip.Prefix{}, 0, fmt.Errorf("wire: bad prefix version tag %d: %w", version, ErrMalformed)
	}
	if int(bits) > addrLen*8 {
		return netip.Prefix{}, 0, fmt.Errorf("wire: prefix length %d exceeds address width: %w", bits, ErrMalformed)
	}
	if len(buf) < n+addrLen {
		return netip.Prefix{}, 0, ErrShortBuffer
	}
	var addr netip.Addr
	if version == 4 {
		addr = netip.AddrFrom4([4]byte(buf[n : n+4]))
	} else {
		addr = netip.AddrFrom16([16]byte(buf[n : n+16]))
	}
	n += addrLen
	return netip.PrefixFrom(addr, int(bits)), n, nil
}

// putPathID writes the fixed 8-byte path identifier.
func putPathID(buf []byte, id PathID) (int, error) {
	if len(buf) < len(id) {
		return 0, ErrShortBuffer
	}
	return copy(buf, id[:]), nil
}

func getPathID(buf []byte) (PathID, int, error) {
	var id PathID
	if len(buf) < len(id) {
		return id, 0, ErrShortBuffer
	}
	copy(id[:], buf)
	return id, len(id), nil
}
