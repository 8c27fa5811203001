package wallet

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ConfidenceType is the state in the per-transaction confidence state
// machine.
type ConfidenceType int

const (
	// ConfUnknown is the zero value: the wallet has never seen this
	// transaction announced or included in a block.
	ConfUnknown ConfidenceType = iota
	// ConfPending means broadcast but not yet included in the best
	// chain.
	ConfPending
	// ConfInConflict means another transaction spending the same
	// input(s) is also pending; at most one of the conflicting set
	// will ever confirm.
	ConfInConflict
	// ConfBuilding means included in a block currently on the best
	// chain, at some depth.
	ConfBuilding
	// ConfDead means the transaction or an ancestor was double-spent
	// and can never confirm.
	ConfDead
)

func (c ConfidenceType) String() string {
	switch c {
	case ConfPending:
		return "pending"
	case ConfInConflict:
		return "in_conflict"
	case ConfBuilding:
		return "building"
	case ConfDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ChangeReason tags why a ConfidenceChanged event fired, so listeners
// that only care about depth ticking over don't have to re-derive it.
type ChangeReason int

const (
	ReasonType ChangeReason = iota
	ReasonDepth
	ReasonSeenPeers
	ReasonPurpose
)

func (r ChangeReason) String() string {
	switch r {
	case ReasonDepth:
		return "depth"
	case ReasonSeenPeers:
		return "seen_peers"
	case ReasonPurpose:
		return "purpose"
	default:
		return "type"
	}
}

// Confidence tracks how sure the wallet is that a transaction will end
// up permanently in the best chain. It is owned by exactly one Tx and
// mutated only while the wallet's pool lock is held, but carries its
// own mutex so read-only accessors (Depth, Type) stay safe for callers
// that peek at it outside that lock (e.g. RPC handlers).
type Confidence struct {
	mu sync.Mutex

	txHash chainhash.Hash

	confType ConfidenceType

	// depth is the number of blocks, including the one the tx
	// appeared in, on top of it in the best chain. Zero unless
	// confType is ConfBuilding.
	depth int32

	// appearedAtHeight is the height of the block the tx was first
	// confirmed in, or -1 if never confirmed.
	appearedAtHeight int32

	// overridingTx is set when confType is ConfDead or ConfInConflict,
	// naming the transaction that double-spent this one's inputs.
	overridingTx *chainhash.Hash

	source TxSource

	// broadcastBy maps peer address to the time it relayed or
	// inv'd this transaction, used both to gauge propagation and to
	// decide when old entries age out past the event horizon.
	broadcastBy map[string]time.Time

	lastBroadcastAt time.Time
}

func newConfidence(hash chainhash.Hash) *Confidence {
	return &Confidence{
		txHash:           hash,
		confType:         ConfUnknown,
		appearedAtHeight: -1,
		broadcastBy:      make(map[string]time.Time),
	}
}

func (c *Confidence) Type() ConfidenceType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confType
}

func (c *Confidence) Depth() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depth
}

func (c *Confidence) AppearedAtHeight() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appearedAtHeight
}

func (c *Confidence) OverridingTx() *chainhash.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overridingTx
}

// NumBroadcastPeers returns how many distinct peers have relayed this
// transaction, a standard proxy for "is this likely to confirm".
func (c *Confidence) NumBroadcastPeers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.broadcastBy)
}

// setPending marks a freshly-received, not-yet-confirmed transaction.
// Returns the reasons that changed so the caller can fire listener
// events without re-locking.
func (c *Confidence) setPending() []ChangeReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.confType == ConfPending {
		return nil
	}
	c.confType = ConfPending
	c.depth = 0
	c.appearedAtHeight = -1
	c.overridingTx = nil
	return []ChangeReason{ReasonType}
}

// setInConflict marks this transaction as conflicting with another
// pending spend of the same input(s).
func (c *Confidence) setInConflict(overriding chainhash.Hash) []ChangeReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.confType == ConfInConflict && c.overridingTx != nil && *c.overridingTx == overriding {
		return nil
	}
	c.confType = ConfInConflict
	c.overridingTx = &overriding
	return []ChangeReason{ReasonType}
}

// setBuilding marks the transaction confirmed at the given height,
// depth 1 (itself). Later blocks call incrementDepth.
func (c *Confidence) setBuilding(height int32) []ChangeReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confType = ConfBuilding
	c.appearedAtHeight = height
	c.depth = 1
	c.overridingTx = nil
	return []ChangeReason{ReasonType, ReasonDepth}
}

// setDead marks the transaction as permanently unconfirmable, naming
// the transaction responsible if known.
func (c *Confidence) setDead(overriding *chainhash.Hash) []ChangeReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confType = ConfDead
	c.overridingTx = overriding
	c.depth = 0
	return []ChangeReason{ReasonType}
}

// incrementDepth is called once per new best-chain block while the tx
// remains building.
func (c *Confidence) incrementDepth() []ChangeReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.confType != ConfBuilding {
		return nil
	}
	c.depth++
	return []ChangeReason{ReasonDepth}
}

// rewindToPending is used by the reorg engine when a previously
// confirmed tx's block falls off the best chain.
func (c *Confidence) rewindToPending() []ChangeReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confType = ConfPending
	c.depth = 0
	c.appearedAtHeight = -1
	return []ChangeReason{ReasonType, ReasonDepth}
}

// subtractDepth lowers a still-building tx's depth by n blocks. Used by
// Reorganize to take the orphaned blocks off every remaining BUILDING
// tx before the new chain is replayed.
func (c *Confidence) subtractDepth(n int32) []ChangeReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.confType != ConfBuilding {
		return nil
	}
	c.depth -= n
	if c.depth < 0 {
		c.depth = 0
	}
	return []ChangeReason{ReasonDepth}
}

// markBroadcastBy records that peer relayed this transaction at t. A
// repeat relay from the same peer only updates the timestamp.
func (c *Confidence) markBroadcastBy(peer string, t time.Time) []ChangeReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, seen := c.broadcastBy[peer]
	c.broadcastBy[peer] = t
	c.lastBroadcastAt = t
	if seen {
		return nil
	}
	return []ChangeReason{ReasonSeenPeers}
}

// clearBroadcastPeers drops the peer set once a tx is far enough
// behind the tip that no further reorg is expected to touch it.
func (c *Confidence) clearBroadcastPeers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastBy = make(map[string]time.Time)
}

// Snapshot captures the fields of Confidence that need to survive a
// restart, for internal/storage's persistence layer.
type Snapshot struct {
	Type             ConfidenceType
	Depth            int32
	AppearedAtHeight int32
	OverridingTx     *chainhash.Hash
}

// Snapshot returns the current state for persistence.
func (c *Confidence) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Type:             c.confType,
		Depth:            c.depth,
		AppearedAtHeight: c.appearedAtHeight,
		OverridingTx:     c.overridingTx,
	}
}

// Restore overwrites this Confidence's state from a persisted
// snapshot, used when reloading the wallet from storage.
func (c *Confidence) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confType = s.Type
	c.depth = s.Depth
	c.appearedAtHeight = s.AppearedAtHeight
	c.overridingTx = s.OverridingTx
}
