package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
)

func newBareTx(value int64) *Tx {
	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.AddTxOut(wire.NewTxOut(value, []byte{0x00, 0x14}))
	return NewTx(msgTx)
}

func TestTxPoolAddMoveRemove(t *testing.T) {
	p := NewTxPool(nil)
	tx := newBareTx(1000)

	if err := p.Add(PoolPending, tx); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := p.Add(PoolPending, tx); err != ErrAlreadyInPool {
		t.Fatalf("second Add() error = %v, want ErrAlreadyInPool", err)
	}

	got, pool, ok := p.Get(tx.Hash)
	if !ok || got != tx || pool != PoolPending {
		t.Fatalf("Get() = %v, %v, %v", got, pool, ok)
	}

	if err := p.Move(tx, PoolUnspent); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if _, pool, _ := p.Get(tx.Hash); pool != PoolUnspent {
		t.Fatalf("pool after move = %v, want PoolUnspent", pool)
	}
	// Moving to the same pool is a no-op, not an error.
	if err := p.Move(tx, PoolUnspent); err != nil {
		t.Fatalf("Move() to same pool error = %v", err)
	}

	p.Remove(tx.Hash)
	if _, _, ok := p.Get(tx.Hash); ok {
		t.Fatal("tx still tracked after Remove()")
	}
}

func TestTxPoolMoveUntracked(t *testing.T) {
	p := NewTxPool(nil)
	tx := newBareTx(1000)
	if err := p.Move(tx, PoolUnspent); err == nil {
		t.Fatal("Move() of untracked tx should error")
	}
}

func TestTxPoolCountAndAll(t *testing.T) {
	p := NewTxPool(nil)
	for i := 0; i < 3; i++ {
		if err := p.Add(PoolPending, newBareTx(int64(1000+i))); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if got := p.Count(PoolPending); got != 3 {
		t.Errorf("Count(PoolPending) = %d, want 3", got)
	}
	if got := len(p.All(PoolPending)); got != 3 {
		t.Errorf("len(All(PoolPending)) = %d, want 3", got)
	}
	if got := p.Count(PoolUnspent); got != 0 {
		t.Errorf("Count(PoolUnspent) = %d, want 0", got)
	}
}

func TestTxPoolMaybeMovePool(t *testing.T) {
	p := NewTxPool(nil)
	tx := newBareTx(1000)
	if err := p.Add(PoolPending, tx); err != nil {
		t.Fatal(err)
	}

	tx.Confidence.setBuilding(100)
	pool, err := p.MaybeMovePool(tx)
	if err != nil {
		t.Fatalf("MaybeMovePool() error = %v", err)
	}
	if pool != PoolUnspent {
		t.Errorf("pool = %v, want PoolUnspent (output still available)", pool)
	}

	// Once the only output is spent, the same confidence moves the tx
	// to PoolSpent instead.
	tx.Outputs[0].markAsSpent(&Input{})
	pool, err = p.MaybeMovePool(tx)
	if err != nil {
		t.Fatalf("MaybeMovePool() error = %v", err)
	}
	if pool != PoolSpent {
		t.Errorf("pool = %v, want PoolSpent", pool)
	}

	tx.Confidence.setDead(nil)
	pool, err = p.MaybeMovePool(tx)
	if err != nil {
		t.Fatalf("MaybeMovePool() error = %v", err)
	}
	if pool != PoolDead {
		t.Errorf("pool = %v, want PoolDead", pool)
	}
}

func TestTxPoolUnspentOutputIndex(t *testing.T) {
	p := NewTxPool(nil)
	tx := newBareTx(5000)
	out := tx.Outputs[0]

	p.AddUnspentOutput(out)
	if _, ok := p.UnspentOutput(out.Outpoint()); !ok {
		t.Fatal("UnspentOutput() should find just-added output")
	}
	if _, ok := p.OwnedOutput(out.Outpoint()); !ok {
		t.Fatal("OwnedOutput() should find just-added output")
	}

	p.RemoveUnspentOutput(out.Outpoint())
	if _, ok := p.UnspentOutput(out.Outpoint()); ok {
		t.Fatal("UnspentOutput() should not find removed output")
	}
	// Still present in the all-time ownership index.
	if _, ok := p.OwnedOutput(out.Outpoint()); !ok {
		t.Fatal("OwnedOutput() should still find output after RemoveUnspentOutput")
	}
}

func TestTxPoolIsConsistent(t *testing.T) {
	p := NewTxPool(nil)
	tx := newBareTx(1000)
	if err := p.Add(PoolPending, tx); err != nil {
		t.Fatal(err)
	}
	if err := p.IsConsistent(); err != nil {
		t.Fatalf("IsConsistent() on freshly added pending tx = %v", err)
	}

	tx.Confidence.setBuilding(100)
	if err := p.Move(tx, PoolUnspent); err != nil {
		t.Fatal(err)
	}
	if err := p.IsConsistent(); err != nil {
		t.Fatalf("IsConsistent() on confirmed unspent tx = %v", err)
	}

	// Force an invariant violation: a non-BUILDING tx sitting in the
	// unspent pool.
	tx.Confidence.setPending()
	if err := p.IsConsistent(); err == nil {
		t.Fatal("IsConsistent() should catch a pending tx left in PoolUnspent")
	}
}
