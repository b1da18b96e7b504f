// Package publisher implements the producer publisher (spec.md §4.3): it
// queries the broker for append offsets, drives the differ to produce
// rows, frames peers/prefixes/metadata onto their respective streams, and
// maintains the sync-cadence controller across sends.
package publisher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/bgpview-replicator/internal/broker"
	"github.com/route-beacon/bgpview-replicator/internal/cadence"
	"github.com/route-beacon/bgpview-replicator/internal/differ"
	"github.com/route-beacon/bgpview-replicator/internal/view"
	"github.com/route-beacon/bgpview-replicator/internal/wire"
)

// Topics names the four streams a Publisher writes to (spec.md §2).
type Topics struct {
	Meta    string
	Peers   string
	Pfxs    string
	Members string
}

type Publisher struct {
	br       broker.Broker
	identity string
	topics   Topics
	bufBytes int
	cadence  *cadence.Controller
	differ   *differ.Differ
	logger   *zap.Logger

	ready bool
}

func New(br broker.Broker, identity string, topics Topics, bufBytes, maxDiffs int, logger *zap.Logger) *Publisher {
	return &Publisher{
		br:       br,
		identity: identity,
		topics:   topics,
		bufBytes: bufBytes,
		cadence:  cadence.New(maxDiffs),
		differ:   differ.New(),
		logger:   logger,
		ready:    true,
	}
}

// Ready implements httpapi.BrokerStatus.
func (p *Publisher) Ready() bool { return p.ready }

// rowSink adapts a rowBuffer to differ.Sink.
type rowSink struct{ buf *rowBuffer }

func (s rowSink) EmitRow(row wire.PrefixRow) error {
	return s.buf.Append(func(dst []byte) (int, error) {
		return wire.SerializePrefixRow(dst, row)
	})
}

// Send diffs cur against parent (nil for a sync) and publishes the
// resulting frame. filter is applied to peer records here (PEER) and by
// the differ at PFX/PFX_PEER granularity; it may be nil.
func (p *Publisher) Send(ctx context.Context, cur, parent view.View, filter view.FilterFunc) (differ.Stats, error) {
	forceSync := p.cadence.ShouldSync()
	var parentIter view.Iterator
	var parentTime uint32
	if !forceSync && parent != nil {
		parentIter = parent.NewIterator()
		parentTime = parent.Time()
	}

	frameType := wire.TypeDiff
	if forceSync || parent == nil {
		frameType = wire.TypeSync
	}

	peersOffset, err := p.nextOffsetWithRetry(ctx, p.topics.Peers)
	if err != nil {
		return differ.Stats{}, err
	}
	pfxsOffset, err := p.nextOffsetWithRetry(ctx, p.topics.Pfxs)
	if err != nil {
		return differ.Stats{}, err
	}

	curIter := cur.NewIterator()

	if _, err := p.sendPeers(ctx, curIter, cur.Time(), filter); err != nil {
		return differ.Stats{}, err
	}

	pfxBuf := newRowBuffer(ctx, p.br, p.topics.Pfxs, p.bufBytes)
	var st differ.Stats
	if frameType == wire.TypeSync {
		st, err = p.differ.Send(rowSink{pfxBuf}, curIter, nil, filter)
	} else {
		st, err = p.differ.Send(rowSink{pfxBuf}, curIter, parentIter, filter)
	}
	if err != nil {
		return st, err
	}
	if err := pfxBuf.Flush(); err != nil {
		return st, err
	}
	if err := p.appendEndMarker(ctx, p.topics.Pfxs, cur.Time(), uint32(st.PfxCnt)); err != nil {
		return st, err
	}

	meta := wire.Meta{
		Identity:    p.identity,
		ViewTime:    cur.Time(),
		PfxsOffset:  pfxsOffset,
		PeersOffset: peersOffset,
		Type:        frameType,
	}
	if frameType == wire.TypeDiff {
		syncOffset, ok := p.cadence.LastSyncOffset()
		if !ok {
			return st, fmt.Errorf("publisher: diff requested with no prior sync recorded")
		}
		meta.SyncMetaOffset = syncOffset
		meta.ParentViewTime = parentTime
	}

	metaBuf := make([]byte, wire.MaxMetaSize)
	n, err := wire.SerializeMeta(metaBuf, meta)
	if err != nil {
		return st, fmt.Errorf("publisher: serializing metadata record: %w", err)
	}
	metaOffset, err := p.br.Produce(ctx, p.topics.Meta, metaBuf[:n])
	if err != nil {
		return st, fmt.Errorf("publisher: appending metadata record: %w", err)
	}

	if frameType == wire.TypeSync {
		p.cadence.SyncSent(metaOffset)
	} else {
		p.cadence.DiffSent()
	}

	return st, nil
}

func (p *Publisher) sendPeers(ctx context.Context, it view.Iterator, viewTime uint32, filter view.FilterFunc) (uint32, error) {
	buf := newRowBuffer(ctx, p.br, p.topics.Peers, p.bufBytes)
	var count uint32
	for ok := it.FirstPeer(view.Active); ok; ok = it.NextPeer() {
		if filter != nil {
			include, err := filter(it, view.FilterPeer)
			if err != nil {
				return count, fmt.Errorf("publisher: filter aborted on peer %d: %w", it.PeerID(), err)
			}
			if !include {
				continue
			}
		}
		sig := it.PeerSignature()
		peer := wire.Peer{PeerID: it.PeerID(), Collector: sig.Collector, Addr: sig.Addr, ASN: sig.ASN}
		if err := buf.Append(func(dst []byte) (int, error) {
			return wire.SerializePeer(dst, peer)
		}); err != nil {
			return count, err
		}
		count++
	}
	if err := buf.Flush(); err != nil {
		return count, err
	}
	return count, p.appendEndMarker(ctx, p.topics.Peers, viewTime, count)
}

func (p *Publisher) appendEndMarker(ctx context.Context, topic string, viewTime, count uint32) error {
	marker := wire.EndMarker{ViewTime: viewTime, Count: count}
	buf := make([]byte, 16)
	n, err := wire.SerializeEndMarker(buf, marker)
	if err != nil {
		return fmt.Errorf("publisher: serializing end marker for %s: %w", topic, err)
	}
	if _, err := p.br.Produce(ctx, topic, buf[:n]); err != nil {
		return fmt.Errorf("publisher: appending end marker to %s: %w", topic, err)
	}
	return nil
}

// nextOffsetWithRetry retries indefinitely on transient failure, per
// spec.md §4.3: "offsets are the only value that cannot be recovered
// later." ctx cancellation still aborts the retry loop.
func (p *Publisher) nextOffsetWithRetry(ctx context.Context, topic string) (int64, error) {
	backoff := 250 * time.Millisecond
	const maxBackoff = 10 * time.Second
	for {
		offset, err := p.br.NextOffset(ctx, topic)
		if err == nil {
			return offset, nil
		}
		p.logger.Warn("retrying next-offset query", zap.String("topic", topic), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Heartbeat appends an identity record to the members stream. Called on a
// wall-clock interval by the caller (cmd/bgpview-replicator); informational
// only and out-of-band relative to the snapshot protocol (spec.md §4.3).
func (p *Publisher) Heartbeat(ctx context.Context, at time.Time) error {
	if p.topics.Members == "" {
		return nil
	}
	rec := heartbeatRecord{Identity: p.identity, At: at}
	buf, err := rec.MarshalBinary()
	if err != nil {
		return fmt.Errorf("publisher: encoding heartbeat: %w", err)
	}
	if _, err := p.br.Produce(ctx, p.topics.Members, buf); err != nil {
		return fmt.Errorf("publisher: appending heartbeat: %w", err)
	}
	return nil
}
