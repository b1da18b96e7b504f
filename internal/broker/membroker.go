package broker

import (
	"context"
	"fmt"
	"sync"
)

// MemBroker is an in-memory Broker backed by per-topic slices, used in
// tests. It is safe for concurrent producers and consumers.
type MemBroker struct {
	mu      sync.Mutex
	topics  map[string][][]byte
	waiters []chan struct{} // closed and cleared on every Produce/Close
}

// NewMem returns an empty MemBroker.
func NewMem() *MemBroker {
	return &MemBroker{topics: make(map[string][][]byte)}
}

func (b *MemBroker) Produce(_ context.Context, topic string, value []byte) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	b.topics[topic] = append(b.topics[topic], cp)
	offset := int64(len(b.topics[topic]) - 1)
	b.wakeWaitersLocked()
	return offset, nil
}

func (b *MemBroker) wakeWaitersLocked() {
	for _, ch := range b.waiters {
		close(ch)
	}
	b.waiters = nil
}

func (b *MemBroker) NextOffset(_ context.Context, topic string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.topics[topic])), nil
}

func (b *MemBroker) ConsumeFrom(_ context.Context, topic string, offset int64) (Consumer, error) {
	return &memConsumer{b: b, topic: topic, next: offset}, nil
}

type memConsumer struct {
	b      *MemBroker
	topic  string
	next   int64
	closed bool
}

func (c *memConsumer) Next(ctx context.Context) ([]byte, int64, error) {
	for {
		c.b.mu.Lock()
		if c.closed {
			c.b.mu.Unlock()
			return nil, 0, fmt.Errorf("broker: consumer closed")
		}
		records := c.b.topics[c.topic]
		if c.next < int64(len(records)) {
			v := records[c.next]
			offset := c.next
			c.next++
			c.b.mu.Unlock()
			return v, offset, nil
		}
		wait := make(chan struct{})
		c.b.waiters = append(c.b.waiters, wait)
		c.b.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
}

func (c *memConsumer) SeekTo(offset int64) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.next = offset
	return nil
}

func (c *memConsumer) Close() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.closed = true
	c.b.wakeWaitersLocked()
	return nil
}
