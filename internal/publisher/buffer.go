package publisher

import (
	"context"
	"fmt"

	"github.com/route-beacon/bgpview-replicator/internal/broker"
)

// rowBuffer packs serialized records into a fixed-size outbound buffer,
// flushing it as one broker message whenever the next record would
// overflow the remaining space (spec.md §4.2, "Buffering discipline").
// Row boundaries are never split across messages.
type rowBuffer struct {
	ctx     context.Context
	br      broker.Broker
	topic   string
	cap     int
	buf     []byte
	scratch []byte
}

func newRowBuffer(ctx context.Context, br broker.Broker, topic string, capacity int) *rowBuffer {
	return &rowBuffer{
		ctx:     ctx,
		br:      br,
		topic:   topic,
		cap:     capacity,
		buf:     make([]byte, 0, capacity),
		scratch: make([]byte, capacity),
	}
}

// writeFunc serializes one record into dst, returning the number of bytes
// written. It must never write more than len(dst).
type writeFunc func(dst []byte) (int, error)

// Append serializes one record via write and appends it to the buffer,
// flushing first if it would overflow. A record larger than the entire
// buffer capacity does not fit the capacity-sized scratch space, so write
// fails and Append returns that error; such a record is never sent.
func (b *rowBuffer) Append(write writeFunc) error {
	n, err := write(b.scratch)
	if err != nil {
		return fmt.Errorf("publisher: serializing record for %s: %w", b.topic, err)
	}
	if len(b.buf)+n > b.cap && len(b.buf) > 0 {
		if err := b.Flush(); err != nil {
			return err
		}
	}
	b.buf = append(b.buf, b.scratch[:n]...)
	return nil
}

// Flush appends the accumulated buffer as one broker message and resets
// it. A no-op if the buffer is empty.
func (b *rowBuffer) Flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	if _, err := b.br.Produce(b.ctx, b.topic, b.buf); err != nil {
		return fmt.Errorf("publisher: flushing buffer to %s: %w", b.topic, err)
	}
	b.buf = b.buf[:0]
	return nil
}
