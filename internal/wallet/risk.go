package wallet

import (
	"github.com/btcsuite/btcd/wire"
)

// RiskVerdict is the outcome of running a transaction through a
// RiskAnalyzer before it is accepted into the pending pool.
type RiskVerdict int

const (
	RiskOK RiskVerdict = iota
	RiskNonFinal
)

func (v RiskVerdict) String() string {
	if v == RiskNonFinal {
		return "non_final"
	}
	return "ok"
}

// RiskAnalyzer decides whether an unconfirmed transaction is safe to
// treat as spendable/displayable before it confirms. dependencies
// holds any of tx's own unconfirmed parents already known to the
// wallet, since finality of the whole chain matters, not just tx
// itself.
type RiskAnalyzer interface {
	Analyze(tx *Tx, dependencies []*Tx, chainHeight int32, medianTimePast int64) RiskVerdict
}

// DefaultRiskAnalyzer rejects a transaction when it, or any of the
// given dependencies, is not final under the nLockTime rule (see
// isFinal). BIP-68 relative lock-times are not checked.
type DefaultRiskAnalyzer struct{}

// Analyze implements RiskAnalyzer.
func (DefaultRiskAnalyzer) Analyze(tx *Tx, dependencies []*Tx, chainHeight int32, medianTimePast int64) RiskVerdict {
	if !isFinal(tx.msgTx, chainHeight, medianTimePast) {
		return RiskNonFinal
	}
	for _, dep := range dependencies {
		if !isFinal(dep.msgTx, chainHeight, medianTimePast) {
			return RiskNonFinal
		}
	}
	return RiskOK
}

// isFinal mirrors Bitcoin Core's IsFinalTx: a transaction with
// LockTime 0 is always final; otherwise LockTime is compared against
// either height or median time past depending on its magnitude. A
// LockTime not yet reached is waived when every input carries
// MaxTxInSequenceNum.
func isFinal(tx *wire.MsgTx, height int32, medianTimePast int64) bool {
	if tx.LockTime == 0 {
		return true
	}

	var lockTimeCutoff int64
	if tx.LockTime < wire.LockTimeThreshold {
		lockTimeCutoff = int64(height)
	} else {
		lockTimeCutoff = medianTimePast
	}
	if int64(tx.LockTime) < lockTimeCutoff {
		return true
	}

	for _, in := range tx.TxIn {
		if in.Sequence != wire.MaxTxInSequenceNum {
			return false
		}
	}
	return true
}
