package wallet

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/klingon-tech/spvwallet/internal/config"
	"github.com/klingon-tech/spvwallet/pkg/logging"
)

// BlockInfo identifies a block by hash, height and timestamp -- enough
// for the reorg engine and confidence tracker to reason about chain
// position without holding a full block.
type BlockInfo struct {
	Hash      chainhash.Hash
	Height    int32
	Timestamp time.Time
}

// BalanceType selects which of the several balance figures a wallet
// can report, since "balance" is ambiguous once unconfirmed and
// change-aware views are both in play.
type BalanceType int

const (
	// BalanceEstimated counts every output this wallet could ever
	// spend, confirmed or not, ignoring risk analysis.
	BalanceEstimated BalanceType = iota
	// BalanceAvailable counts only outputs of confirmed transactions
	// and of pending transactions this wallet built itself; pending
	// transactions received from the network are excluded.
	BalanceAvailable
	// BalanceEstimatedSpendable is BalanceEstimated restricted to
	// outputs a CoinSelector is actually willing to pick today.
	BalanceEstimatedSpendable
	// BalanceAvailableSpendable is BalanceAvailable restricted the
	// same way.
	BalanceAvailableSpendable
)

// CoreWallet is the top-level aggregate tying together the
// transaction pool, confidence tracking, coin selection, transaction
// composition, key-rotation maintenance and the external
// collaborators (KeyBag, Signer, TransactionBroadcaster, BlockChain).
//
// Concurrency discipline: CoreWallet has a single coarse lock, mu
// ("wallet_lock"). Any call into keyBag that might itself acquire a
// lock internal to the key-derivation layer ("key_chain_group_lock")
// must not be made while mu is held followed by re-entering mu --
// lock order is always mu, then whatever the KeyBag implementation
// uses internally, never the reverse. Methods that need both document
// this at the call site.
type CoreWallet struct {
	mu sync.Mutex

	pool       *TxPool
	listeners  *ListenerFabric
	risk       RiskAnalyzer
	selector   Selector

	keyBag      KeyBag
	crypter     KeyCrypter
	signer      Signer
	broadcaster TransactionBroadcaster
	chain       BlockChain

	cfg config.WalletCoreConfig
	log *logging.Logger

	owns func([]byte) bool

	lastSeenBlock BlockInfo

	// riskDropped remembers hashes the risk analyzer rejected, bounded
	// to cfg.RiskDroppedCacheSize entries, so a peer re-announcing a
	// known-bad transaction is dropped without re-running analysis.
	riskDropped      map[chainhash.Hash]struct{}
	riskDroppedOrder *list.List

	saver  *autosaver
	onSave PersistFunc
}

// Deps bundles the external collaborators a CoreWallet is built from.
type Deps struct {
	KeyBag      KeyBag
	Crypter     KeyCrypter
	Signer      Signer
	Broadcaster TransactionBroadcaster
	Chain       BlockChain
}

// New creates an empty CoreWallet: no transactions, no keys issued
// beyond what KeyBag already tracks. The default risk analyzer and
// coin selector match mainnet policy; callers wanting
// allow-unconfirmed or key-age-biased selection swap Selector after
// construction.
func New(deps Deps, cfg config.WalletCoreConfig, log *logging.Logger) *CoreWallet {
	if log == nil {
		log = logging.GetDefault()
	}
	log = log.Component("corewallet")

	w := &CoreWallet{
		pool:             NewTxPool(log),
		listeners:        NewListenerFabric(),
		risk:             DefaultRiskAnalyzer{},
		selector:         DefaultCoinSelector{},
		keyBag:           deps.KeyBag,
		crypter:          deps.Crypter,
		signer:           deps.Signer,
		broadcaster:      deps.Broadcaster,
		chain:            deps.Chain,
		cfg:              cfg,
		log:              log,
		owns:             deps.KeyBag.IsAddressMine,
		riskDropped:      make(map[chainhash.Hash]struct{}),
		riskDroppedOrder: list.New(),
	}
	w.saver = newAutosaver(cfg.CoalescedAutosaveDelay, w.doSave)
	return w
}

// Pool exposes the transaction pool for read-only inspection (RPC
// handlers, tests). Mutation must go through the reception/reorg/
// composer entry points so invariants stay intact.
func (w *CoreWallet) Pool() *TxPool { return w.pool }

// Listeners exposes the event fabric for registration.
func (w *CoreWallet) Listeners() *ListenerFabric { return w.listeners }

// SetSelector swaps the active CoinSelector, e.g. to
// AllowUnconfirmedCoinSelector for a send that must spend
// not-yet-confirmed change.
func (w *CoreWallet) SetSelector(s Selector) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selector = s
}

// LastSeenBlock reports the most recent block the wallet has
// processed, used to resume chain sync after restart.
func (w *CoreWallet) LastSeenBlock() BlockInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeenBlock
}

func (w *CoreWallet) setLastSeenBlock(b BlockInfo) {
	w.lastSeenBlock = b
}

// rememberRiskDropped records hash as rejected, evicting the oldest
// entry once the configured cache size is exceeded.
func (w *CoreWallet) rememberRiskDropped(hash chainhash.Hash) {
	if _, ok := w.riskDropped[hash]; ok {
		return
	}
	w.riskDropped[hash] = struct{}{}
	w.riskDroppedOrder.PushBack(hash)
	for w.riskDroppedOrder.Len() > w.cfg.RiskDroppedCacheSize {
		front := w.riskDroppedOrder.Front()
		w.riskDroppedOrder.Remove(front)
		delete(w.riskDropped, front.Value.(chainhash.Hash))
	}
}

func (w *CoreWallet) wasRiskDropped(hash chainhash.Hash) bool {
	_, ok := w.riskDropped[hash]
	return ok
}

// Balance computes one of the four balance figures described by
// BalanceType.
func (w *CoreWallet) Balance(kind BalanceType) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	var total int64
	for _, out := range w.pool.UnspentOutputs() {
		if !out.IsAvailableForSpending() {
			continue
		}
		tx := out.Tx()

		if kind == BalanceAvailable || kind == BalanceAvailableSpendable {
			if !w.isAvailableForRiskPurposes(tx) {
				continue
			}
		}
		if kind == BalanceEstimatedSpendable || kind == BalanceAvailableSpendable {
			if !w.selector.IsEligible(out, w.cfg) {
				continue
			}
		}
		total += out.Value()
	}
	return total
}

func (w *CoreWallet) isAvailableForRiskPurposes(tx *Tx) bool {
	switch tx.Confidence.Type() {
	case ConfBuilding:
		return true
	case ConfPending:
		return tx.Source == SourceSelf
	default:
		return false
	}
}

// IsConsistentOrThrow walks every pool invariant named in this
// package's design and returns the first violation as an error,
// mirroring the teacher's fail-loud style for programmer-error class
// bugs rather than trying to self-heal.
func (w *CoreWallet) IsConsistentOrThrow() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.pool.IsConsistent(); err != nil {
		return fmt.Errorf("wallet inconsistent: %w", err)
	}

	// invariant: every BUILDING tx has appearedAtHeight set and every
	// other confidence type does not.
	for _, pool := range []PoolType{PoolPending, PoolUnspent, PoolSpent, PoolDead} {
		for _, tx := range w.pool.All(pool) {
			building := tx.Confidence.Type() == ConfBuilding
			hasHeight := tx.Confidence.AppearedAtHeight() >= 0
			if building != hasHeight {
				return fmt.Errorf("wallet inconsistent: tx %s building=%v appearedAtHeight=%d", tx.Hash, building, tx.Confidence.AppearedAtHeight())
			}
		}
	}

	return nil
}
