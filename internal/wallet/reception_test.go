package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// spendingTx builds a transaction with a single input spending from's
// outpoint and a single output of value paid to an arbitrary address,
// not yet connected to the wallet's pool.
func spendingTx(t *testing.T, from Outpoint, value int64) *Tx {
	t.Helper()
	script, err := txscript.PayToAddrScript(testAddress(9))
	if err != nil {
		t.Fatal(err)
	}
	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.AddTxIn(wire.NewTxIn(&from, nil, nil))
	msgTx.AddTxOut(wire.NewTxOut(value, script))
	return NewTx(msgTx)
}

func TestReceivePendingClassifiesIncoming(t *testing.T) {
	tw := newTestWallet()
	parent := tw.addConfirmedUTXO(500_000, 6)

	spend := spendingTx(t, parent.Outputs[0].Outpoint(), 400_000)
	if err := tw.ReceivePending(spend, nil); err != nil {
		t.Fatalf("ReceivePending() error = %v", err)
	}

	if spend.Source != SourceNetwork {
		t.Errorf("Source = %v, want SourceNetwork", spend.Source)
	}
	if spend.Purpose != PurposeIncomingTx {
		t.Errorf("Purpose = %v, want PurposeIncomingTx", spend.Purpose)
	}
	if spend.Confidence.Type() != ConfPending {
		t.Errorf("Confidence.Type() = %v, want ConfPending", spend.Confidence.Type())
	}

	// Re-announcing the same tx is a no-op.
	if err := tw.ReceivePending(spend, nil); err != nil {
		t.Fatalf("second ReceivePending() error = %v", err)
	}
}

func TestReceivePendingSpendsOwnedOutput(t *testing.T) {
	tw := newTestWallet()
	parent := tw.addConfirmedUTXO(500_000, 6)

	spend := spendingTx(t, parent.Outputs[0].Outpoint(), 400_000)
	if err := tw.ReceivePending(spend, nil); err != nil {
		t.Fatal(err)
	}

	if _, ok := tw.pool.UnspentOutput(parent.Outputs[0].Outpoint()); ok {
		t.Error("parent output should no longer be unspent once spent by a pending tx")
	}
	if parent.Outputs[0].SpentBy() != spend.Inputs[0] {
		t.Error("parent output should be connected to the spending input")
	}
}

func TestReceivePendingConflictMarksLoserDead(t *testing.T) {
	tw := newTestWallet()
	parent := tw.addConfirmedUTXO(500_000, 6)

	first := spendingTx(t, parent.Outputs[0].Outpoint(), 400_000)
	if err := tw.ReceivePending(first, nil); err != nil {
		t.Fatal(err)
	}

	second := spendingTx(t, parent.Outputs[0].Outpoint(), 300_000)
	if err := tw.ReceivePending(second, nil); err != nil {
		t.Fatal(err)
	}

	if second.Confidence.Type() != ConfInConflict {
		t.Errorf("second tx Confidence.Type() = %v, want ConfInConflict", second.Confidence.Type())
	}
	if first.Confidence.Type() != ConfDead {
		t.Errorf("first (overridden) tx Confidence.Type() = %v, want ConfDead", first.Confidence.Type())
	}
	if pool, _ := tw.pool.PoolOf(first.Hash); pool != PoolDead {
		t.Errorf("first tx pool = %v, want PoolDead", pool)
	}
}

func TestReceiveFromBlockConfirmsAndMovesPool(t *testing.T) {
	tw := newTestWallet()
	parent := tw.addConfirmedUTXO(500_000, 6)

	spend := spendingTx(t, parent.Outputs[0].Outpoint(), 400_000)
	block := BlockInfo{Height: 800_001}
	if err := tw.ReceiveFromBlock(spend, block, BestChain, 0); err != nil {
		t.Fatalf("ReceiveFromBlock() error = %v", err)
	}

	if spend.Confidence.Type() != ConfBuilding {
		t.Errorf("Confidence.Type() = %v, want ConfBuilding", spend.Confidence.Type())
	}
	if spend.Purpose != PurposeIncomingTx {
		t.Errorf("Purpose = %v, want PurposeIncomingTx (classified on first sight)", spend.Purpose)
	}
	if len(spend.Appearances) != 1 || spend.Appearances[0].Height != 800_001 {
		t.Errorf("Appearances = %+v, want one entry at height 800001", spend.Appearances)
	}
	if pool, _ := tw.pool.PoolOf(spend.Hash); pool != PoolUnspent && pool != PoolSpent {
		t.Errorf("pool = %v, want PoolUnspent or PoolSpent", pool)
	}
}

func TestReceiveFromBlockSideChainDoesNotConfirm(t *testing.T) {
	tw := newTestWallet()
	parent := tw.addConfirmedUTXO(500_000, 6)

	spend := spendingTx(t, parent.Outputs[0].Outpoint(), 400_000)
	block := BlockInfo{Height: 800_001}
	if err := tw.ReceiveFromBlock(spend, block, SideChain, 0); err != nil {
		t.Fatalf("ReceiveFromBlock() error = %v", err)
	}

	if spend.Confidence.Type() == ConfBuilding {
		t.Error("a side-chain appearance should not mark the tx building")
	}
	if len(spend.Appearances) != 1 {
		t.Errorf("Appearances = %+v, want one entry even for a side-chain sighting", spend.Appearances)
	}
}
