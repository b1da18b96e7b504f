package wire

import "fmt"

// Frame types carried in a metadata record's type field.
const (
	TypeSync byte = 'S'
	TypeDiff byte = 'D'
)

// MaxMetaSize bounds a serialized Meta record for a 255-byte identity
// (spec.md §6's "Environment" limit), with headroom for the length-prefix
// and every fixed field a diff record carries.
const MaxMetaSize = 2 + 255 + 4 + 8 + 8 + 1 + 8 + 4

// Meta is a single record on the meta stream: the schema is invariant
// regardless of frame type, with sync-meta-offset/parent-view-time only
// meaningful when Type == TypeDiff (see spec.md §3).
type Meta struct {
	Identity   string
	ViewTime   uint32
	PfxsOffset int64
	PeersOffset int64
	Type       byte

	// Valid only when Type == TypeDiff.
	SyncMetaOffset int64
	ParentViewTime uint32
}

// SerializeMeta writes a metadata record.
func SerializeMeta(buf []byte, m Meta) (int, error) {
	if m.Type != TypeSync && m.Type != TypeDiff {
		return 0, fmt.Errorf("wire: invalid meta type %q: %w", m.Type, ErrMalformed)
	}

	s, err := putString(buf, m.Identity)
	if err != nil {
		return 0, fmt.Errorf("wire: serializing meta identity: %w", err)
	}
	n := s

	if len(buf) < n+4+8+8+1 {
		return 0, ErrShortBuffer
	}
	n += putUint32(buf[n:], m.ViewTime)
	n += putInt64(buf[n:], m.PfxsOffset)
	n += putInt64(buf[n:], m.PeersOffset)
	n += putUint8(buf[n:], m.Type)

	if m.Type == TypeDiff {
		if len(buf) < n+8+4 {
			return 0, ErrShortBuffer
		}
		n += putInt64(buf[n:], m.SyncMetaOffset)
		n += putUint32(buf[n:], m.ParentViewTime)
	}

	return n, nil
}

// DeserializeMeta reads a metadata record written by SerializeMeta.
func DeserializeMeta(buf []byte) (Meta, int, error) {
	identity, s, err := getString(buf)
	if err != nil {
		return Meta{}, 0, err
	}
	n := s

	if len(buf) < n+4+8+8+1 {
		return Meta{}, 0, ErrShortBuffer
	}
	var m Meta
	m.Identity = identity
	m.ViewTime, _ = getUint32(buf[n:])
	n += 4
	m.PfxsOffset, _ = getInt64(buf[n:])
	n += 8
	m.PeersOffset, _ = getInt64(buf[n:])
	n += 8
	typ, r := getUint8(buf[n:])
	n += r
	if typ != TypeSync && typ != TypeDiff {
		return Meta{}, 0, fmt.Errorf("wire: unknown meta type %q: %w", typ, ErrMalformed)
	}
	m.Type = typ

	if typ == TypeDiff {
		if len(buf) < n+8+4 {
			return Meta{}, 0, ErrShortBuffer
		}
		m.SyncMetaOffset, _ = getInt64(buf[n:])
		n += 8
		m.ParentViewTime, _ = getUint32(buf[n:])
		n += 4
	}

	return m, n, nil
}
