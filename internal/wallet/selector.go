package wallet

import (
	"sort"
	"time"

	"github.com/klingon-tech/spvwallet/internal/config"
)

// Selection is the result of a CoinSelector run: the outputs chosen
// and their total value.
type Selection struct {
	Gathered []*Output
	Total    int64
}

// Selector picks which of a wallet's unspent outputs to spend toward a
// target value. Implementations decide both eligibility (is this
// output safe to spend at all) and ordering (which eligible outputs to
// prefer).
type Selector interface {
	// IsEligible reports whether out may be considered at all. Called
	// both during selection and when computing *Spendable balance
	// figures, so eligibility and selection never disagree.
	IsEligible(out *Output, cfg config.WalletCoreConfig) bool

	// Select gathers outputs from candidates (assumed already
	// eligible) until their sum is at least target, or returns an
	// error if the candidates can't cover it.
	Select(target int64, candidates []*Output) (*Selection, error)
}

// InsufficientFundsError is returned by Select when candidates cannot
// cover the requested target.
type InsufficientFundsError struct {
	Target    int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return "wallet: insufficient funds"
}

// eligibleDefault is the shared spendability rule: an output is
// spendable once its parent is confirmed at depth>=1, or (for the
// wallet's own unconfirmed change) once it has been broadcast to at
// least one peer. Coinbase outputs additionally require
// CoinbaseMaturity confirmations.
func eligibleDefault(out *Output, cfg config.WalletCoreConfig, allowUnconfirmed bool) bool {
	tx := out.Tx()
	conf := tx.Confidence

	switch conf.Type() {
	case ConfBuilding:
		if tx.IsCoinBase() && conf.Depth() < cfg.CoinbaseMaturity {
			return false
		}
		return true
	case ConfPending:
		if allowUnconfirmed {
			return true
		}
		return tx.Source == SourceSelf && conf.NumBroadcastPeers() >= 1
	default:
		return false
	}
}

// DefaultCoinSelector is the conservative default: only outputs from
// confirmed transactions (or our own broadcast-and-echoed change) are
// eligible, and it prefers spending older, larger outputs first to
// keep the UTXO set and future transaction sizes small.
type DefaultCoinSelector struct{}

func (DefaultCoinSelector) IsEligible(out *Output, cfg config.WalletCoreConfig) bool {
	return eligibleDefault(out, cfg, false)
}

func (s DefaultCoinSelector) Select(target int64, candidates []*Output) (*Selection, error) {
	return selectGreedy(target, candidates, func(a, b *Output) bool {
		// Deepest (most confirmed) first; ties broken by larger value,
		// then by outpoint hash for determinism.
		if a.Tx().Confidence.Depth() != b.Tx().Confidence.Depth() {
			return a.Tx().Confidence.Depth() > b.Tx().Confidence.Depth()
		}
		if a.Value() != b.Value() {
			return a.Value() > b.Value()
		}
		return lessOutpoint(a.Outpoint(), b.Outpoint())
	})
}

// AllowUnconfirmedCoinSelector spends from any output regardless of
// confirmation, for wallets that accept zero-conf risk in exchange for
// not blocking on propagation delay.
type AllowUnconfirmedCoinSelector struct{}

func (AllowUnconfirmedCoinSelector) IsEligible(out *Output, cfg config.WalletCoreConfig) bool {
	return eligibleDefault(out, cfg, true)
}

func (s AllowUnconfirmedCoinSelector) Select(target int64, candidates []*Output) (*Selection, error) {
	return selectGreedy(target, candidates, func(a, b *Output) bool {
		if a.Value() != b.Value() {
			return a.Value() > b.Value()
		}
		return lessOutpoint(a.Outpoint(), b.Outpoint())
	})
}

// KeyAgeCoinSelector biases toward outputs paid to the oldest-derived
// keys, used by the maintenance engine to roll funds off keys that
// have been exposed the longest.
type KeyAgeCoinSelector struct {
	Cutoff      time.Time
	KeyAgeOf    func(pkScript []byte) time.Time
}

func (s KeyAgeCoinSelector) IsEligible(out *Output, cfg config.WalletCoreConfig) bool {
	if !eligibleDefault(out, cfg, false) {
		return false
	}
	return s.KeyAgeOf(out.PkScript()).Before(s.Cutoff)
}

func (s KeyAgeCoinSelector) Select(target int64, candidates []*Output) (*Selection, error) {
	return selectGreedy(target, candidates, func(a, b *Output) bool {
		ageA, ageB := s.KeyAgeOf(a.PkScript()), s.KeyAgeOf(b.PkScript())
		if !ageA.Equal(ageB) {
			return ageA.Before(ageB)
		}
		return lessOutpoint(a.Outpoint(), b.Outpoint())
	})
}

func selectGreedy(target int64, candidates []*Output, less func(a, b *Output) bool) (*Selection, error) {
	sorted := make([]*Output, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	sel := &Selection{}
	for _, out := range sorted {
		if sel.Total >= target {
			break
		}
		sel.Gathered = append(sel.Gathered, out)
		sel.Total += out.Value()
	}
	if sel.Total < target {
		var available int64
		for _, out := range candidates {
			available += out.Value()
		}
		return nil, &InsufficientFundsError{Target: target, Available: available}
	}
	return sel, nil
}

func lessOutpoint(a, b Outpoint) bool {
	cmp := a.Hash.String()
	other := b.Hash.String()
	if cmp != other {
		return cmp < other
	}
	return a.Index < b.Index
}
