package differ

// Stats mirrors spec.md §4.2's per-send counters. A fresh Stats is used for
// every Send call; the differ never accumulates across sends.
type Stats struct {
	PfxCnt           int
	AddedPfxsCnt     int
	RemovedPfxsCnt   int
	ChangedPfxsCnt   int
	CommonPfxsCnt    int
	AddedPfxPeerCnt  int
	ChangedPfxPeerCnt int
	RemovedPfxPeerCnt int
	SyncPfxCnt       int
}
