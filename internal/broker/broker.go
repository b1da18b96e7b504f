// Package broker narrows the Kafka-like append-only log down to the four
// operations the replication protocol actually needs (spec.md §6): produce
// to a single-partition topic, query the next append offset, begin
// consuming at a specified offset, and seek an in-progress consumer. The
// protocol owns all offset bookkeeping itself, so consumption here is
// always a direct partition assignment, never a consumer group.
package broker

import "context"

// Broker is the producer- and consumer-side entry point. Each of the
// meta/peers/pfxs/members streams (spec.md §2) is a single-partition
// topic addressed by name.
type Broker interface {
	// Produce appends value to topic and returns the offset it was
	// written at.
	Produce(ctx context.Context, topic string, value []byte) (offset int64, err error)

	// NextOffset returns the offset the next Produce call on topic would
	// be assigned — the append point of the log.
	NextOffset(ctx context.Context, topic string) (int64, error)

	// ConsumeFrom opens a Consumer positioned to read the first record at
	// or after offset.
	ConsumeFrom(ctx context.Context, topic string, offset int64) (Consumer, error)
}

// Consumer reads sequential records from the offset it was opened or last
// sought to.
type Consumer interface {
	// Next blocks until a record is available, ctx is done, or the
	// consumer is closed. It returns the record's value and the offset it
	// was read from.
	Next(ctx context.Context) (value []byte, offset int64, err error)

	// SeekTo repositions the consumer so the next Next call returns the
	// first record at or after offset. Used by the receiver's
	// REWIND_TO_SYNC transition (spec.md §4.4).
	SeekTo(offset int64) error

	Close() error
}
