package ingest

import (
	"fmt"
	"net/netip"

	"go.uber.org/zap"

	"github.com/route-beacon/bgpview-replicator/internal/bgp"
	"github.com/route-beacon/bgpview-replicator/internal/bmp"
	"github.com/route-beacon/bgpview-replicator/internal/view"
)

// Adapter feeds decoded BMP messages from one collector into a
// view.Mutator, tracking which local peer id each BMP peer address maps
// to. It is not safe for concurrent use, matching the single-threaded
// view-ownership model (spec.md §5).
type Adapter struct {
	collector string
	mut       view.Mutator
	logger    *zap.Logger

	peerIDs map[string]uint16 // BMP peer address -> local peer id
}

func NewAdapter(collector string, mut view.Mutator, logger *zap.Logger) *Adapter {
	return &Adapter{
		collector: collector,
		mut:       mut,
		logger:    logger,
		peerIDs:   make(map[string]uint16),
	}
}

// FeedOpenBMP unwraps an OpenBMP-framed message and feeds the BMP payload
// it carries. maxPayloadBytes bounds a single frame's declared length; 0
// disables the bound.
func (a *Adapter) FeedOpenBMP(frame []byte, maxPayloadBytes int) error {
	payload, err := bmp.DecodeOpenBMPFrame(frame, maxPayloadBytes)
	if err != nil {
		return fmt.Errorf("ingest: decoding openbmp frame: %w", err)
	}
	return a.Feed(payload)
}

// Feed parses one raw BMP message and applies whatever mutation it implies.
func (a *Adapter) Feed(raw []byte) error {
	msg, err := bmp.Parse(raw)
	if err != nil {
		return fmt.Errorf("ingest: parsing bmp message: %w", err)
	}

	switch msg.MsgType {
	case bmp.MsgTypeRouteMonitoring:
		return a.applyRouteMonitoring(msg)
	case bmp.MsgTypePeerDown:
		if id, ok := a.peerIDs[msg.PeerAddr]; ok {
			a.mut.DeactivatePeer(id)
		}
		return nil
	default:
		return nil
	}
}

func (a *Adapter) applyRouteMonitoring(msg *bmp.ParsedBMP) error {
	peerID := a.peerID(msg.PeerAddr, msg.PeerASN)

	if len(msg.BGPData) == 0 {
		return nil
	}
	events, err := bgp.ParseUpdate(msg.BGPData, msg.HasAddPath)
	if err != nil {
		return fmt.Errorf("ingest: parsing bgp update: %w", err)
	}

	for _, ev := range events {
		pfx, err := netip.ParsePrefix(ev.Prefix)
		if err != nil {
			a.logger.Warn("skipping unparseable prefix", zap.String("prefix", ev.Prefix), zap.Error(err))
			continue
		}

		switch ev.Action {
		case "A":
			id := pathID(ev)
			a.mut.AddPfxPeer(pfx, peerID, id)
			a.mut.ActivatePfxPeer(pfx, peerID)
		case "D":
			a.mut.DeactivatePfxPeer(pfx, peerID)
		}
	}
	return nil
}

// peerID returns the local peer id for a BMP peer address, registering it
// with the view on first sight.
func (a *Adapter) peerID(addr string, asn uint32) uint16 {
	if id, ok := a.peerIDs[addr]; ok {
		a.mut.ActivatePeer(id)
		return id
	}
	parsed, err := netip.ParseAddr(addr)
	if err != nil {
		a.logger.Warn("bmp peer address did not parse, using unspecified", zap.String("addr", addr), zap.Error(err))
		parsed = netip.IPv4Unspecified()
	}
	id := a.mut.AddPeer(a.collector, parsed, asn)
	a.mut.ActivatePeer(id)
	a.peerIDs[addr] = id
	return id
}

// SetTime forwards a view-time update (e.g. from a Loc-RIB dump's
// completion) to the underlying mutator.
func (a *Adapter) SetTime(t uint32) { a.mut.SetTime(t) }
