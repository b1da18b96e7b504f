// Package wire implements the on-the-wire framing for the meta, peers, and
// pfxs streams: fixed-endian primitives, peer records, prefix rows, and
// metadata records. It never allocates to deserialize fixed fields; it
// reads them directly from the caller's buffer.
package wire

import "errors"

// ErrShortBuffer is returned when a buffer is too small to hold (or does not
// contain enough bytes for) the value being serialized or deserialized.
var ErrShortBuffer = errors.New("wire: short buffer")

// ErrMalformed is returned when a buffer's content violates the schema of
// the value being deserialized (bad tag, missing sentinel, inconsistent
// length).
var ErrMalformed = errors.New("wire: malformed record")
