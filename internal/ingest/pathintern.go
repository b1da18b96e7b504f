// Package ingest adapts a live BMP/BGP feed onto the view.Mutator
// contract, supplementing the wire-replication codec: a producer process
// that watches a router directly (rather than replaying another
// producer's frames) builds its view this way before handing it to
// internal/publisher.
package ingest

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/route-beacon/bgpview-replicator/internal/bgp"
	"github.com/route-beacon/bgpview-replicator/internal/wire"
)

// pathID derives a wire.PathID from a route's attribute set: two routes
// with identical AS path, nexthop, origin, local-pref, MED and communities
// hash to the same id, and a change to any of these hashes to a different
// one (barring a 64-bit collision); other attributes are not part of the
// hash. This matches the byte-wise path identity compare
// the differ's cellular diff relies on (spec.md §4.2).
func pathID(ev *bgp.RouteEvent) wire.PathID {
	var b strings.Builder
	b.WriteString(ev.ASPath)
	b.WriteByte('|')
	b.WriteString(ev.Nexthop)
	b.WriteByte('|')
	b.WriteString(ev.Origin)
	b.WriteByte('|')
	if ev.LocalPref != nil {
		b.WriteString(strconv.FormatUint(uint64(*ev.LocalPref), 10))
	}
	b.WriteByte('|')
	if ev.MED != nil {
		b.WriteString(strconv.FormatUint(uint64(*ev.MED), 10))
	}
	b.WriteByte('|')
	b.WriteString(strings.Join(ev.CommStd, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(ev.CommExt, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(ev.CommLarge, ","))

	h := xxhash.Sum64String(b.String())

	var id wire.PathID
	for i := 0; i < 8; i++ {
		id[i] = byte(h >> (56 - 8*i))
	}
	return id
}
