package wallet

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/klingon-tech/spvwallet/pkg/logging"
)

// PoolType names one of the four disjoint buckets every wallet-known
// transaction lives in.
type PoolType int

const (
	// PoolPending holds transactions broadcast or received but not yet
	// confirmed in the best chain, and not known to conflict with
	// anything confirmed.
	PoolPending PoolType = iota
	// PoolUnspent holds confirmed transactions with at least one
	// output still available for spending.
	PoolUnspent
	// PoolSpent holds confirmed transactions all of whose outputs are
	// spent by other wallet transactions.
	PoolSpent
	// PoolDead holds transactions that lost a double-spend race and
	// can never confirm.
	PoolDead
)

func (p PoolType) String() string {
	switch p {
	case PoolPending:
		return "pending"
	case PoolUnspent:
		return "unspent"
	case PoolSpent:
		return "spent"
	case PoolDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ErrAlreadyInPool is returned when Add is called for a tx already
// present in some pool; a transaction belongs to exactly one pool at a
// time, so callers must Move rather than Add twice.
var ErrAlreadyInPool = fmt.Errorf("wallet: transaction already present in a pool")

// TxPool is the wallet's transaction index: four disjoint pools plus a
// flat hash->Tx lookup and the set of this wallet's own outputs that
// are currently unspent, keyed by outpoint for O(1) double-spend
// detection on every new input seen.
//
// Every exported method assumes the caller already holds the wallet's
// single coarse lock (see CoreWallet); TxPool carries no lock of its
// own beyond what's needed to make IsConsistent safe to call
// concurrently with a read-only RPC path.
type TxPool struct {
	mu sync.RWMutex

	pools        map[PoolType]map[chainhash.Hash]*Tx
	membership   map[chainhash.Hash]PoolType
	myUnspents   map[Outpoint]*Output

	// myOutputs indexes every output this wallet has ever owned,
	// spent or not, so a newly-seen input can be checked against
	// outputs that are no longer in myUnspents without re-deriving
	// ownership from scratch.
	myOutputs map[Outpoint]*Output

	log *logging.Logger
}

// NewTxPool creates an empty pool set.
func NewTxPool(log *logging.Logger) *TxPool {
	if log == nil {
		log = logging.GetDefault()
	}
	p := &TxPool{
		pools:      make(map[PoolType]map[chainhash.Hash]*Tx),
		membership: make(map[chainhash.Hash]PoolType),
		myUnspents: make(map[Outpoint]*Output),
		myOutputs:  make(map[Outpoint]*Output),
		log:        log.Component("txpool"),
	}
	for _, t := range []PoolType{PoolPending, PoolUnspent, PoolSpent, PoolDead} {
		p.pools[t] = make(map[chainhash.Hash]*Tx)
	}
	return p
}

// Add inserts tx into pool. Fails if tx is already tracked anywhere.
func (p *TxPool) Add(pool PoolType, tx *Tx) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.membership[tx.Hash]; ok {
		return ErrAlreadyInPool
	}
	p.pools[pool][tx.Hash] = tx
	p.membership[tx.Hash] = pool
	return nil
}

// Move transfers tx from its current pool to to. It is a no-op
// (returns nil) if tx is already in to.
func (p *TxPool) Move(tx *Tx, to PoolType) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	from, ok := p.membership[tx.Hash]
	if !ok {
		return fmt.Errorf("wallet: cannot move untracked tx %s", tx.Hash)
	}
	if from == to {
		return nil
	}
	delete(p.pools[from], tx.Hash)
	p.pools[to][tx.Hash] = tx
	p.membership[tx.Hash] = to
	p.log.Debug("tx moved pool", "hash", tx.Hash.String(), "from", from, "to", to)
	return nil
}

// Remove drops tx from whichever pool holds it. The wallet's reception
// and reorg paths do not call it; they move transactions between pools.
func (p *TxPool) Remove(hash chainhash.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pool, ok := p.membership[hash]; ok {
		delete(p.pools[pool], hash)
		delete(p.membership, hash)
	}
}

// Get returns the tx with the given hash and the pool it lives in.
func (p *TxPool) Get(hash chainhash.Hash) (*Tx, PoolType, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pool, ok := p.membership[hash]
	if !ok {
		return nil, 0, false
	}
	return p.pools[pool][hash], pool, true
}

// PoolOf reports which pool, if any, a tx currently lives in.
func (p *TxPool) PoolOf(hash chainhash.Hash) (PoolType, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pool, ok := p.membership[hash]
	return pool, ok
}

// All returns every tx in the given pool, unordered. Callers must not
// mutate the slice's backing Tx values without holding the wallet's
// outer lock.
func (p *TxPool) All(pool PoolType) []*Tx {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Tx, 0, len(p.pools[pool]))
	for _, tx := range p.pools[pool] {
		out = append(out, tx)
	}
	return out
}

// Count returns how many transactions live in pool.
func (p *TxPool) Count(pool PoolType) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pools[pool])
}

// MaybeMovePool inspects tx's current confidence and moves it to the
// pool that confidence implies, if it isn't there already:
//
//	DEAD              -> PoolDead
//	PENDING/IN_CONFLICT -> PoolPending
//	BUILDING          -> PoolUnspent if any output is still available,
//	                     else PoolSpent
//
// Returns the pool tx ended up in.
func (p *TxPool) MaybeMovePool(tx *Tx) (PoolType, error) {
	target := p.poolForConfidence(tx)
	if err := p.Move(tx, target); err != nil {
		return 0, err
	}
	return target, nil
}

func (p *TxPool) poolForConfidence(tx *Tx) PoolType {
	switch tx.Confidence.Type() {
	case ConfDead:
		return PoolDead
	case ConfBuilding:
		for _, out := range tx.Outputs {
			if out.IsAvailableForSpending() {
				return PoolUnspent
			}
		}
		return PoolSpent
	default:
		return PoolPending
	}
}

// AddUnspentOutput records out as one of this wallet's own spendable
// outputs, and registers it in the all-time ownership index used for
// double-spend detection.
func (p *TxPool) AddUnspentOutput(out *Output) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.myUnspents[out.Outpoint()] = out
	p.myOutputs[out.Outpoint()] = out
}

// RemoveUnspentOutput drops an output from the unspent index, called
// once it has been connected to a spending input. It remains in the
// all-time ownership index.
func (p *TxPool) RemoveUnspentOutput(op Outpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.myUnspents, op)
}

// UnspentOutput looks up one of this wallet's own currently-unspent
// outputs by outpoint.
func (p *TxPool) UnspentOutput(op Outpoint) (*Output, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out, ok := p.myUnspents[op]
	return out, ok
}

// OwnedOutput looks up one of this wallet's own outputs by outpoint,
// spent or not, used to detect whether an incoming input spends money
// we hold (and, if it's already spent, that it conflicts with
// whatever spent it first).
func (p *TxPool) OwnedOutput(op Outpoint) (*Output, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out, ok := p.myOutputs[op]
	return out, ok
}

// UnspentOutputs returns every output this wallet currently considers
// spendable (regardless of confidence -- callers apply their own
// selection eligibility rules on top, see selector.go).
func (p *TxPool) UnspentOutputs() []*Output {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Output, 0, len(p.myUnspents))
	for _, o := range p.myUnspents {
		out = append(out, o)
	}
	return out
}

// IsConsistent walks the pool invariants and returns the first
// violation found, or nil. It never mutates state.
func (p *TxPool) IsConsistent() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// invariant: every tx belongs to exactly one pool (guaranteed by
	// construction here, since Add/Move/Remove keep membership and
	// pools in lockstep -- checked anyway in case of a future bug).
	for pool, txs := range p.pools {
		for hash := range txs {
			if got := p.membership[hash]; got != pool {
				return fmt.Errorf("wallet: tx %s in pools[%s] but membership says %s", hash, pool, got)
			}
		}
	}
	for hash, pool := range p.membership {
		if _, ok := p.pools[pool][hash]; !ok {
			return fmt.Errorf("wallet: tx %s membership says %s but missing from that pool", hash, pool)
		}
	}

	// invariant: unspent/spent pools only ever hold BUILDING txs.
	for hash, tx := range p.pools[PoolUnspent] {
		if tx.Confidence.Type() != ConfBuilding {
			return fmt.Errorf("wallet: tx %s in unspent pool with confidence %s", hash, tx.Confidence.Type())
		}
	}
	for hash, tx := range p.pools[PoolSpent] {
		if tx.Confidence.Type() != ConfBuilding {
			return fmt.Errorf("wallet: tx %s in spent pool with confidence %s", hash, tx.Confidence.Type())
		}
	}

	// invariant: every entry in myUnspents points back at an output
	// that is, in fact, unspent.
	for op, out := range p.myUnspents {
		if !out.IsAvailableForSpending() {
			return fmt.Errorf("wallet: myUnspents has spent output %s", op)
		}
		if out.Outpoint() != op {
			return fmt.Errorf("wallet: myUnspents key %s does not match output's own outpoint %s", op, out.Outpoint())
		}
	}

	return nil
}
