package wallet

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/klingon-tech/spvwallet/internal/config"
)

// wireMsgTxWithOutput builds a single-output transaction paying
// pkScript directly, bypassing address derivation entirely.
func wireMsgTxWithOutput(value int64, pkScript []byte) *wire.MsgTx {
	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.AddTxOut(wire.NewTxOut(value, pkScript))
	return msgTx
}

// testAddress builds a deterministic P2WPKH address distinct from any
// address a fakeKeyBag would issue, for building outputs to addresses
// outside the wallet under test.
func testAddress(tag byte) btcutil.Address {
	h160 := bytes.Repeat([]byte{tag}, 20)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(h160, &chaincfg.MainNetParams)
	if err != nil {
		panic(err)
	}
	return addr
}

// coinbaseMsgTx builds a single-input, single-output coinbase
// transaction (null previous outpoint, max index) for coinbase-maturity
// tests.
func coinbaseMsgTx(value int64) *wire.MsgTx {
	msgTx := wire.NewMsgTx(wire.TxVersion)
	prevOut := wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex)
	msgTx.AddTxIn(wire.NewTxIn(prevOut, []byte{0x00}, nil))
	msgTx.AddTxOut(wire.NewTxOut(value, []byte{0x00, 0x14}))
	return msgTx
}

// fakeKeyBag is a deterministic, in-memory KeyBag/Signer double. Each
// fresh address is a distinct P2WPKH address derived from a counter, so
// tests can tell addresses apart without running real key derivation.
type fakeKeyBag struct {
	mu sync.Mutex

	extIdx, chgIdx uint32
	mine           map[string]bool

	// failSign, when set, names input indexes that SignInput should
	// fail for, simulating a key the bag can't produce a signature for.
	failSign map[int]bool
}

func newFakeKeyBag() *fakeKeyBag {
	return &fakeKeyBag{mine: make(map[string]bool)}
}

func (k *fakeKeyBag) addressForIndex(idx uint32, change bool) btcutil.Address {
	tag := byte(1)
	if change {
		tag = 2
	}
	h160 := bytes.Repeat([]byte{tag}, 18)
	h160 = append(h160, byte(idx>>8), byte(idx))
	addr, err := btcutil.NewAddressWitnessPubKeyHash(h160, &chaincfg.MainNetParams)
	if err != nil {
		panic(err)
	}
	return addr
}

func (k *fakeKeyBag) FreshAddress(changeAddress bool) (btcutil.Address, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	var idx uint32
	if changeAddress {
		idx = k.chgIdx
		k.chgIdx++
	} else {
		idx = k.extIdx
		k.extIdx++
	}
	addr := k.addressForIndex(idx, changeAddress)
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}
	k.mine[string(script)] = true
	return addr, nil
}

func (k *fakeKeyBag) CurrentAddress(changeAddress bool) (btcutil.Address, error) {
	k.mu.Lock()
	idx := k.extIdx
	if changeAddress {
		idx = k.chgIdx
	}
	k.mu.Unlock()
	if idx > 0 {
		idx--
	}
	return k.addressForIndex(idx, changeAddress), nil
}

func (k *fakeKeyBag) IsAddressMine(pkScript []byte) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.mine[string(pkScript)]
}

func (k *fakeKeyBag) NumKeys(changeAddress bool) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if changeAddress {
		return int(k.chgIdx)
	}
	return int(k.extIdx)
}

func (k *fakeKeyBag) SignInput(ctx context.Context, tx *wire.MsgTx, idx int, prevScript []byte, prevValue int64) error {
	if k.failSign != nil && k.failSign[idx] {
		return fmt.Errorf("fakeKeyBag: refusing to sign input %d", idx)
	}
	tx.TxIn[idx].Witness = wire.TxWitness{bytes.Repeat([]byte{0xaa}, 71), bytes.Repeat([]byte{0xbb}, 33)}
	return nil
}

// fakeBroadcaster resolves immediately with a configurable error.
type fakeBroadcaster struct {
	err       error
	broadcast []*wire.MsgTx
}

func (b *fakeBroadcaster) Broadcast(ctx context.Context, tx *wire.MsgTx) (<-chan error, error) {
	b.broadcast = append(b.broadcast, tx)
	ch := make(chan error, 1)
	ch <- b.err
	return ch, nil
}

// fakeChain is a fixed chain tip, for risk analysis and locktime checks.
type fakeChain struct {
	height int32
	mtp    int64
}

func (c *fakeChain) BestHeight() int32          { return c.height }
func (c *fakeChain) MedianTimePast() (int64, error) { return c.mtp, nil }

// testWallet bundles a CoreWallet with its fake collaborators so tests
// can both drive the wallet and inspect/control its dependencies.
type testWallet struct {
	*CoreWallet
	keyBag      *fakeKeyBag
	broadcaster *fakeBroadcaster
	chain       *fakeChain
}

func newTestWallet() *testWallet {
	kb := newFakeKeyBag()
	br := &fakeBroadcaster{}
	ch := &fakeChain{height: 700_000, mtp: time.Now().Unix()}
	cfg := config.DefaultWalletCoreConfig()
	cw := New(Deps{
		KeyBag:      kb,
		Crypter:     noopCrypter{},
		Signer:      kb,
		Broadcaster: br,
		Chain:       ch,
	}, cfg, nil)
	return &testWallet{CoreWallet: cw, keyBag: kb, broadcaster: br, chain: ch}
}

// addConfirmedUTXO builds a single-output transaction paying a fresh
// address this wallet's key bag owns, confirms it at the given depth,
// and registers it as spendable.
func (tw *testWallet) addConfirmedUTXO(value int64, depth int32) *Tx {
	addr, err := tw.keyBag.FreshAddress(false)
	if err != nil {
		panic(err)
	}
	return tw.addConfirmedUTXOTo(addr, value, depth)
}

func (tw *testWallet) addConfirmedUTXOTo(addr btcutil.Address, value int64, depth int32) *Tx {
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		panic(err)
	}
	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.AddTxOut(wire.NewTxOut(value, script))
	tx := NewTx(msgTx)
	tx.Source = SourceNetwork
	tx.Confidence.setBuilding(tw.chain.height - depth + 1)
	for i := int32(1); i < depth; i++ {
		tx.Confidence.incrementDepth()
	}
	if err := tw.pool.Add(PoolUnspent, tx); err != nil {
		panic(err)
	}
	tw.pool.AddUnspentOutput(tx.Outputs[0])
	return tx
}

// addUnconfirmedOwnChange adds a not-yet-confirmed change output of our
// own, broadcast to one peer -- the one case the default selector
// treats an unconfirmed output as eligible.
func (tw *testWallet) addUnconfirmedOwnChange(value int64) *Tx {
	addr, err := tw.keyBag.FreshAddress(true)
	if err != nil {
		panic(err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		panic(err)
	}
	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.AddTxOut(wire.NewTxOut(value, script))
	tx := NewTx(msgTx)
	tx.Source = SourceSelf
	tx.Confidence.setPending()
	tx.Confidence.markBroadcastBy("peer1", time.Now())
	if err := tw.pool.Add(PoolPending, tx); err != nil {
		panic(err)
	}
	tw.pool.AddUnspentOutput(tx.Outputs[0])
	return tx
}
