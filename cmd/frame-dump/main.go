// Command frame-dump consumes one of the replication protocol's streams
// from a given offset and prints each record it decodes, for debugging a
// producer or consumer against a live broker.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/route-beacon/bgpview-replicator/internal/broker"
	"github.com/route-beacon/bgpview-replicator/internal/wire"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "Usage: frame-dump <broker-addr> <stream:meta|peers|pfxs|members> <topic> [start-offset]")
		os.Exit(1)
	}

	brokerAddr := os.Args[1]
	stream := os.Args[2]
	topic := os.Args[3]

	startOffset := int64(0)
	if len(os.Args) > 4 {
		v, err := strconv.ParseInt(os.Args[4], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid start offset: %v\n", err)
			os.Exit(1)
		}
		startOffset = v
	}

	br, err := broker.NewKafkaBroker([]string{brokerAddr}, "frame-dump", 0, nil, nil, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connecting to broker: %v\n", err)
		os.Exit(1)
	}
	defer br.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cons, err := br.ConsumeFrom(ctx, topic, startOffset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening consumer on %s: %v\n", topic, err)
		os.Exit(1)
	}
	defer cons.Close()

	n := 0
	for {
		value, offset, err := cons.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(os.Stderr, "reading record: %v\n", err)
			break
		}
		n++
		fmt.Printf("=== offset %d (%d bytes) ===\n", offset, len(value))
		if err := dump(stream, value); err != nil {
			fmt.Printf("  decode error: %v\n", err)
		}
	}
	fmt.Printf("Total records: %d\n", n)
}

func dump(stream string, value []byte) error {
	switch stream {
	case "meta":
		return dumpMeta(value)
	case "peers":
		return dumpPeersOrPfxs(value, true)
	case "pfxs":
		return dumpPeersOrPfxs(value, false)
	case "members":
		return dumpHeartbeat(value)
	default:
		return fmt.Errorf("unknown stream %q (want meta, peers, pfxs, or members)", stream)
	}
}

func dumpMeta(value []byte) error {
	m, _, err := wire.DeserializeMeta(value)
	if err != nil {
		return err
	}
	fmt.Printf("  identity=%q type=%q view_time=%d pfxs_offset=%d peers_offset=%d\n",
		m.Identity, string(m.Type), m.ViewTime, m.PfxsOffset, m.PeersOffset)
	if m.Type == wire.TypeDiff {
		fmt.Printf("  sync_meta_offset=%d parent_view_time=%d\n", m.SyncMetaOffset, m.ParentViewTime)
	}
	return nil
}

// dumpPeersOrPfxs records may be a run of 'P' peer records or prefix rows
// followed by a single 'E' end marker; both streams share that trailer.
func dumpPeersOrPfxs(value []byte, isPeers bool) error {
	buf := value
	for len(buf) > 0 {
		if buf[0] == wire.EndTag {
			end, n, err := wire.DeserializeEndMarker(buf)
			if err != nil {
				return err
			}
			fmt.Printf("  END view_time=%d count=%d\n", end.ViewTime, end.Count)
			buf = buf[n:]
			continue
		}
		if isPeers {
			p, n, err := wire.DeserializePeerTagged(buf)
			if err != nil {
				return err
			}
			fmt.Printf("  PEER id=%d collector=%q addr=%s asn=%d\n", p.PeerID, p.Collector, p.Addr, p.ASN)
			buf = buf[n:]
			continue
		}
		row, n, err := wire.DeserializePrefixRow(buf)
		if err != nil {
			return err
		}
		fmt.Printf("  ROW op=%q prefix=%s cells=%d\n", string(row.Op), row.Prefix, len(row.Cells))
		for _, c := range row.Cells {
			fmt.Printf("    cell peer=%d path=%x\n", c.PeerID, c.PathID)
		}
		buf = buf[n:]
	}
	return nil
}

func dumpHeartbeat(value []byte) error {
	identity, at, err := heartbeatFields(value)
	if err != nil {
		return err
	}
	fmt.Printf("  identity=%q at=%s\n", identity, at.Format(time.RFC3339))
	return nil
}

// heartbeatFields decodes a members-stream record without importing
// internal/publisher, whose heartbeat format is a u16-length identity
// followed by an 8-byte unix-second timestamp.
func heartbeatFields(buf []byte) (string, time.Time, error) {
	if len(buf) < 2 {
		return "", time.Time{}, fmt.Errorf("frame-dump: heartbeat record too short")
	}
	idLen := int(buf[0])<<8 | int(buf[1])
	if len(buf) < 2+idLen+8 {
		return "", time.Time{}, fmt.Errorf("frame-dump: heartbeat record truncated")
	}
	identity := string(buf[2 : 2+idLen])
	off := 2 + idLen
	var sec int64
	for i := 0; i < 8; i++ {
		sec = sec<<8 | int64(buf[off+i])
	}
	return identity, time.Unix(sec, 0).UTC(), nil
}
