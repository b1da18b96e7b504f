// Package cadence implements the producer's sync-cadence controller
// (spec.md §4.6): it decides, on each send, whether the publisher should
// emit a full sync frame or an incremental diff, and tracks the meta
// offset of the last sync so diff frames can reference it.
package cadence

// Controller tracks num_diffs against a configured max_diffs and the
// offset of the most recent sync on the meta stream. It holds no broker
// or view state; the publisher calls Decide before each send and reports
// the outcome back via Sent/SyncSent.
type Controller struct {
	maxDiffs int

	numDiffs       int
	lastSyncOffset int64
	haveSync       bool
}

// New returns a Controller with the given max_diffs. A maxDiffs of 0 or
// less forces every send to be a sync.
func New(maxDiffs int) *Controller {
	return &Controller{maxDiffs: maxDiffs}
}

// DefaultMaxDiffs is spec.md §4.6's default: sync every 11th view.
const DefaultMaxDiffs = 10

// ShouldSync reports whether the next send must be a sync: either no
// sync has ever been recorded (no parent view exists yet) or num_diffs
// has reached max_diffs.
func (c *Controller) ShouldSync() bool {
	return !c.haveSync || c.numDiffs >= c.maxDiffs
}

// SyncSent records that a sync frame was appended at metaOffset on the
// meta stream, and resets num_diffs.
func (c *Controller) SyncSent(metaOffset int64) {
	c.lastSyncOffset = metaOffset
	c.haveSync = true
	c.numDiffs = 0
}

// DiffSent records that a diff frame was sent, incrementing num_diffs.
func (c *Controller) DiffSent() {
	c.numDiffs++
}

// LastSyncOffset returns the meta-stream offset of the most recent sync,
// and whether one has been recorded yet. Diff metadata records carry this
// value as sync_meta_offset.
func (c *Controller) LastSyncOffset() (offset int64, ok bool) {
	return c.lastSyncOffset, c.haveSync
}

// NumDiffs returns the number of diffs emitted since the last sync.
func (c *Controller) NumDiffs() int { return c.numDiffs }
