// Package receiver implements the consumer receiver (spec.md §4.4): a
// state machine that reads the meta stream to learn where a frame's peers
// and prefix rows live, replays them against the mutation side of a view,
// and rewinds to the last sync whenever a diff's declared parent doesn't
// match the view it's holding.
package receiver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/bgpview-replicator/internal/broker"
	"github.com/route-beacon/bgpview-replicator/internal/metrics"
	"github.com/route-beacon/bgpview-replicator/internal/remap"
	"github.com/route-beacon/bgpview-replicator/internal/view"
	"github.com/route-beacon/bgpview-replicator/internal/wire"
)

// state names the receiver's position in the spec.md §4.4 state machine.
type state int

const (
	stateWaitingMeta state = iota
	stateRewindToSync
	stateReadingPeers
	stateReadingPfxs
	stateDelivered
)

// Topics names the streams a Receiver reads from. Members is optional.
type Topics struct {
	Meta    string
	Peers   string
	Pfxs    string
	Members string
}

// Config bounds how long a single consume call may block before the
// receiver gives up on the in-progress frame (spec.md §5, "Timeouts").
type Config struct {
	FrameTimeout    time.Duration // default 1s
	MetadataTimeout time.Duration // default 2000s
}

func (c Config) withDefaults() Config {
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = time.Second
	}
	if c.MetadataTimeout <= 0 {
		c.MetadataTimeout = 2000 * time.Second
	}
	return c
}

// Receiver drives one producer identity's frames into a view.Mutator. It
// is not safe for concurrent use (spec.md §5: single-threaded per
// instance), matching one Receiver per producer identity being consumed.
type Receiver struct {
	br       broker.Broker
	identity string
	topics   Topics
	cfg      Config
	logger   *zap.Logger

	metaCons broker.Consumer

	remap      remap.Table
	haveParent bool
	parentTime uint32
	lastSyncMetaOffset int64
}

func New(br broker.Broker, identity string, topics Topics, cfg Config, logger *zap.Logger) *Receiver {
	return &Receiver{
		br:       br,
		identity: identity,
		topics:   topics,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Deliver runs the state machine forward until exactly one frame has been
// fully applied to v, or ctx is cancelled, or an unrecoverable error
// occurs. It may rewind internally any number of times before delivering.
func (r *Receiver) Deliver(ctx context.Context, v view.View) (wire.Meta, error) {
	if r.metaCons == nil {
		cons, err := r.br.ConsumeFrom(ctx, r.topics.Meta, 0)
		if err != nil {
			return wire.Meta{}, fmt.Errorf("receiver: opening meta consumer: %w", err)
		}
		r.metaCons = cons
	}

	st := stateWaitingMeta
	var meta wire.Meta

	for {
		switch st {
		case stateWaitingMeta:
			m, err := r.waitForUsableMeta(ctx)
			if err != nil {
				return wire.Meta{}, err
			}
			meta = m

			if meta.Type == wire.TypeDiff && meta.ParentViewTime != v.Time() {
				r.logger.Warn("diff parent mismatch, rewinding",
					zap.String("identity", r.identity),
					zap.Uint32("want_parent", meta.ParentViewTime),
					zap.Uint32("have", v.Time()))
				metrics.RewindsTotal.WithLabelValues(r.identity).Inc()
				st = stateRewindToSync
				continue
			}

			if meta.Type == wire.TypeSync {
				v.Mutator().Clear()
				r.remap.Clear()
			}
			st = stateReadingPeers

		case stateRewindToSync:
			metrics.ReceiverStateTotal.WithLabelValues(r.identity, "rewind_to_sync").Inc()
			if err := r.metaCons.SeekTo(meta.SyncMetaOffset); err != nil {
				return wire.Meta{}, fmt.Errorf("receiver: seeking meta to sync offset %d: %w", meta.SyncMetaOffset, err)
			}
			st = stateWaitingMeta

		case stateReadingPeers:
			metrics.ReceiverStateTotal.WithLabelValues(r.identity, "reading_peers").Inc()
			if err := r.readPeers(ctx, v.Mutator(), meta); err != nil {
				r.logger.Warn("reading peers frame failed, rewinding", zap.Error(err))
				st = stateRewindToSync
				continue
			}
			st = stateReadingPfxs

		case stateReadingPfxs:
			metrics.ReceiverStateTotal.WithLabelValues(r.identity, "reading_pfxs").Inc()
			if err := r.readPfxs(ctx, v, meta); err != nil {
				r.logger.Warn("reading prefixes frame failed, rewinding", zap.Error(err))
				st = stateRewindToSync
				continue
			}
			st = stateDelivered

		case stateDelivered:
			metrics.ReceiverStateTotal.WithLabelValues(r.identity, "delivered").Inc()
			sweepDeactivatedPeers(v)
			v.Mutator().SetTime(meta.ViewTime)
			return meta, nil
		}
	}
}

// waitForUsableMeta consumes meta records until one addressed to this
// receiver's configured identity is found.
func (r *Receiver) waitForUsableMeta(ctx context.Context) (wire.Meta, error) {
	for {
		cctx, cancel := context.WithTimeout(ctx, r.cfg.MetadataTimeout)
		val, offset, err := r.metaCons.Next(cctx)
		cancel()
		if err != nil {
			return wire.Meta{}, fmt.Errorf("receiver: consuming meta: %w", err)
		}

		m, _, err := wire.DeserializeMeta(val)
		if err != nil {
			return wire.Meta{}, fmt.Errorf("receiver: decoding meta record at offset %d: %w", offset, err)
		}
		if m.Identity != r.identity {
			continue
		}
		return m, nil
	}
}

func (r *Receiver) readPeers(ctx context.Context, mut view.Mutator, meta wire.Meta) error {
	cons, err := r.br.ConsumeFrom(ctx, r.topics.Peers, meta.PeersOffset)
	if err != nil {
		return fmt.Errorf("opening peers consumer: %w", err)
	}
	defer cons.Close()

	var received uint32
	for {
		cctx, cancel := context.WithTimeout(ctx, r.cfg.FrameTimeout)
		val, offset, err := cons.Next(cctx)
		cancel()
		if err != nil {
			return fmt.Errorf("consuming peers: %w", err)
		}

		if len(val) > 0 && val[0] == wire.EndTag {
			end, _, err := wire.DeserializeEndMarker(val)
			if err != nil {
				return fmt.Errorf("decoding peers end marker at offset %d: %w", offset, err)
			}
			if end.ViewTime != meta.ViewTime {
				return fmt.Errorf("peers end marker view-time %d does not match frame view-time %d", end.ViewTime, meta.ViewTime)
			}
			if end.Count != received {
				return fmt.Errorf("peers end marker declares %d peers, received %d", end.Count, received)
			}
			return nil
		}

		p, _, err := wire.DeserializePeerTagged(val)
		if err != nil {
			return fmt.Errorf("decoding peer record at offset %d: %w", offset, err)
		}
		localID, ok := r.remap.Local(p.PeerID)
		if !ok {
			localID = mut.AddPeer(p.Collector, p.Addr, p.ASN)
			r.remap.Set(p.PeerID, localID)
		}
		mut.ActivatePeer(localID)
		received++
	}
}

func (r *Receiver) readPfxs(ctx context.Context, v view.View, meta wire.Meta) error {
	cons, err := r.br.ConsumeFrom(ctx, r.topics.Pfxs, meta.PfxsOffset)
	if err != nil {
		return fmt.Errorf("opening pfxs consumer: %w", err)
	}
	defer cons.Close()

	var received uint32
	for {
		cctx, cancel := context.WithTimeout(ctx, r.cfg.FrameTimeout)
		val, offset, err := cons.Next(cctx)
		cancel()
		if err != nil {
			return fmt.Errorf("consuming pfxs: %w", err)
		}

		if len(val) > 0 && val[0] == wire.EndTag {
			end, _, err := wire.DeserializeEndMarker(val)
			if err != nil {
				return fmt.Errorf("decoding pfxs end marker at offset %d: %w", offset, err)
			}
			if end.ViewTime != meta.ViewTime {
				return fmt.Errorf("pfxs end marker view-time %d does not match frame view-time %d", end.ViewTime, meta.ViewTime)
			}
			if end.Count != received {
				return fmt.Errorf("pfxs end marker declares %d rows, received %d", end.Count, received)
			}
			return nil
		}

		row, _, err := wire.DeserializePrefixRow(val)
		if err != nil {
			return fmt.Errorf("decoding prefix row at offset %d: %w", offset, err)
		}
		if err := r.applyRow(v, row); err != nil {
			return fmt.Errorf("applying prefix row at offset %d: %w", offset, err)
		}
		received++
	}
}

func (r *Receiver) applyRow(v view.View, row wire.PrefixRow) error {
	mut := v.Mutator()
	switch row.Op {
	case wire.OpSync, wire.OpUpdate:
		if len(row.Cells) == 0 && row.Op == wire.OpSync {
			mut.DeactivatePfx(row.Prefix)
			return nil
		}
		for _, c := range row.Cells {
			localID, err := r.remap.Resolve(c.PeerID)
			if err != nil {
				return err
			}
			mut.AddPfxPeer(row.Prefix, localID, c.PathID)
			mut.ActivatePfxPeer(row.Prefix, localID)
		}
		return nil

	case wire.OpRemove:
		if len(row.Cells) == 0 {
			mut.DeactivatePfx(row.Prefix)
			return nil
		}
		for _, c := range row.Cells {
			localID, err := r.remap.Resolve(c.PeerID)
			if err != nil {
				return err
			}
			mut.DeactivatePfxPeer(row.Prefix, localID)
		}
		// Removing these cells may have emptied the prefix entirely; the
		// view.Iterator contract offers no direct cell-count query, so
		// re-seek and check for any cell still active (spec.md §4.1: "if
		// the cell list is empty OR removal empties the prefix,
		// deactivate the prefix").
		it := v.NewIterator()
		if it.SeekPfx(row.Prefix, view.Active) && !it.PfxFirstPeer(view.Active) {
			mut.DeactivatePfx(row.Prefix)
		}
		return nil

	default:
		return fmt.Errorf("receiver: unknown prefix row op %q", row.Op)
	}
}

// sweepDeactivatedPeers deactivates any peer left with zero active
// prefixes after a frame has been fully applied (spec.md §4.4, "After
// READING_PFXS"). The view.Iterator contract exposes no direct
// active-prefix-count query, so the sweep counts cellular membership via
// the iterator itself.
func sweepDeactivatedPeers(v view.View) {
	it := v.NewIterator()
	mut := v.Mutator()

	for ok := it.FirstPeer(view.Active); ok; ok = it.NextPeer() {
		peerID := it.PeerID()
		active := false
		for pok := it.FirstPfx(view.Active); pok && !active; pok = it.NextPfx() {
			for cok := it.PfxFirstPeer(view.Active); cok; cok = it.PfxNextPeer() {
				if it.PfxPeerID() == peerID {
					active = true
					break
				}
			}
		}
		if !active {
			mut.DeactivatePeer(peerID)
		}
	}
}
