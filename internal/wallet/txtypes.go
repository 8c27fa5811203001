package wallet

import (
	"bytes"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Outpoint identifies a single output by the hash of its containing
// transaction and its index within that transaction's output list.
type Outpoint = wire.OutPoint

// TxSource records who handed a transaction to the wallet.
type TxSource int

const (
	SourceUnknown TxSource = iota
	SourceSelf             // built and signed by this wallet
	SourceNetwork          // received from a peer or block
)

func (s TxSource) String() string {
	switch s {
	case SourceSelf:
		return "self"
	case SourceNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// TxPurpose records why a transaction exists, for UI and fee-policy
// decisions that must tell user sends apart from housekeeping.
type TxPurpose int

const (
	PurposeUnknown TxPurpose = iota
	PurposeUserPayment
	PurposeKeyRotation
	PurposeRaiseFee
	PurposeIncomingTx
)

func (p TxPurpose) String() string {
	switch p {
	case PurposeUserPayment:
		return "user_payment"
	case PurposeKeyRotation:
		return "key_rotation"
	case PurposeRaiseFee:
		return "raise_fee"
	case PurposeIncomingTx:
		return "incoming_tx"
	default:
		return "unknown"
	}
}

// BlockAppearance records that a transaction was seen inside a
// specific block, at a given index, so the reorg engine can replay or
// unwind it later without re-parsing the block.
type BlockAppearance struct {
	BlockHash        chainhash.Hash
	Height           int32
	RelativityOffset int
}

// Output is one output of a wallet-known transaction, with a
// back-reference to whichever input later spent it (nil while
// unspent).
type Output struct {
	tx       *Tx
	index    uint32
	value    int64
	pkScript []byte
	spentBy  *Input
}

func newOutput(tx *Tx, index uint32, out *wire.TxOut) *Output {
	return &Output{tx: tx, index: index, value: out.Value, pkScript: out.PkScript}
}

// Outpoint returns the (hash, index) pair identifying this output.
func (o *Output) Outpoint() Outpoint {
	return Outpoint{Hash: o.tx.Hash, Index: o.index}
}

func (o *Output) Tx() *Tx           { return o.tx }
func (o *Output) Value() int64      { return o.value }
func (o *Output) PkScript() []byte  { return o.pkScript }
func (o *Output) SpentBy() *Input   { return o.spentBy }
func (o *Output) IsAvailableForSpending() bool {
	return o.spentBy == nil
}

func (o *Output) markAsSpent(in *Input) { o.spentBy = in }
func (o *Output) markAsUnspent()        { o.spentBy = nil }

// Input is one input of a wallet-known transaction. connectedOutput is
// populated once the referenced output is found among the wallet's own
// outputs; it stays nil for inputs spending outputs we don't own.
type Input struct {
	tx              *Tx
	index           uint32
	outpoint        Outpoint
	signatureScript []byte
	witness         wire.TxWitness
	sequence        uint32
	connectedOutput *Output
}

func newInput(tx *Tx, index uint32, in *wire.TxIn) *Input {
	return &Input{
		tx:              tx,
		index:           index,
		outpoint:        in.PreviousOutPoint,
		signatureScript: in.SignatureScript,
		witness:         in.Witness,
		sequence:        in.Sequence,
	}
}

func (i *Input) Tx() *Tx                    { return i.tx }
func (i *Input) Outpoint() Outpoint         { return i.outpoint }
func (i *Input) Sequence() uint32           { return i.sequence }
func (i *Input) ConnectedOutput() *Output   { return i.connectedOutput }
func (i *Input) IsCoinBase() bool {
	return i.outpoint.Hash == chainhash.Hash{} && i.outpoint.Index == wire.MaxPrevOutIndex
}

func (i *Input) connect(out *Output) {
	i.connectedOutput = out
	out.markAsSpent(i)
}

func (i *Input) disconnect() {
	if i.connectedOutput != nil {
		i.connectedOutput.markAsUnspent()
		i.connectedOutput = nil
	}
}

// Tx is the wallet's view of a transaction: the raw wire transaction
// plus the bookkeeping the pool, confidence tracker and composer hang
// off of it.
type Tx struct {
	msgTx *wire.MsgTx
	Hash  chainhash.Hash

	Outputs []*Output
	Inputs  []*Input

	Confidence *Confidence

	UpdateTime time.Time
	Source     TxSource
	Purpose    TxPurpose
	ExchangeRate string
	Memo       string

	// Appearances records every block this tx has been seen included
	// in, oldest first, so a reorg can be unwound without a full block
	// rescan.
	Appearances []BlockAppearance
}

// NewTx wraps a raw wire transaction in wallet bookkeeping. The
// transaction is not yet attached to any pool.
func NewTx(msgTx *wire.MsgTx) *Tx {
	tx := &Tx{
		msgTx:      msgTx,
		Hash:       msgTx.TxHash(),
		UpdateTime: time.Now(),
	}
	tx.Confidence = newConfidence(tx.Hash)

	tx.Outputs = make([]*Output, len(msgTx.TxOut))
	for idx, out := range msgTx.TxOut {
		tx.Outputs[idx] = newOutput(tx, uint32(idx), out)
	}

	tx.Inputs = make([]*Input, len(msgTx.TxIn))
	for idx, in := range msgTx.TxIn {
		tx.Inputs[idx] = newInput(tx, uint32(idx), in)
	}

	return tx
}

func (t *Tx) MsgTx() *wire.MsgTx { return t.msgTx }

// IsCoinBase reports whether this is a block-reward transaction.
func (t *Tx) IsCoinBase() bool {
	return len(t.Inputs) == 1 && t.Inputs[0].IsCoinBase()
}

// ValueSentToMe sums the value of outputs this wallet can spend (i.e.
// whose pkScript belongs to one of myOutpoints/ownership set); the
// caller supplies the ownership predicate since key ownership is
// external to this package.
func (t *Tx) ValueSentToMe(owns func([]byte) bool) int64 {
	var total int64
	for _, o := range t.Outputs {
		if owns(o.pkScript) {
			total += o.value
		}
	}
	return total
}

// ValueSentFromMe sums the value of connected inputs that spend this
// wallet's own prior outputs.
func (t *Tx) ValueSentFromMe() int64 {
	var total int64
	for _, in := range t.Inputs {
		if in.connectedOutput != nil {
			total += in.connectedOutput.value
		}
	}
	return total
}

func (t *Tx) String() string {
	return fmt.Sprintf("Tx{%s, in=%d, out=%d, conf=%s}", t.Hash, len(t.Inputs), len(t.Outputs), t.Confidence.Type())
}

// PersistedTx is the shape internal/storage's wallet pool table
// round-trips a Tx through: the raw wire bytes plus everything NewTx
// can't reconstruct on its own.
type PersistedTx struct {
	Raw          []byte
	Confidence   Snapshot
	Source       TxSource
	Purpose      TxPurpose
	Memo         string
	ExchangeRate string
	UpdateTime   time.Time
	Appearances  []BlockAppearance
}

// RestoreTx rebuilds a Tx from its persisted form. It does not
// reconnect inputs/outputs to other wallet transactions; the caller
// (the pool loader) must replay updateForSpends after every persisted
// Tx has been restored so connections can be rebuilt regardless of
// the order the transactions were restored in.
func RestoreTx(p PersistedTx) (*Tx, error) {
	msgTx := &wire.MsgTx{}
	if err := msgTx.Deserialize(bytes.NewReader(p.Raw)); err != nil {
		return nil, fmt.Errorf("wallet: restore tx: %w", err)
	}
	tx := NewTx(msgTx)
	tx.Confidence.Restore(p.Confidence)
	tx.Source = p.Source
	tx.Purpose = p.Purpose
	tx.Memo = p.Memo
	tx.ExchangeRate = p.ExchangeRate
	tx.UpdateTime = p.UpdateTime
	tx.Appearances = p.Appearances
	return tx, nil
}

// ToPersisted captures everything RestoreTx needs to reconstruct tx.
func (t *Tx) ToPersisted() (PersistedTx, error) {
	var buf bytes.Buffer
	if err := t.msgTx.Serialize(&buf); err != nil {
		return PersistedTx{}, fmt.Errorf("wallet: serialize tx %s: %w", t.Hash, err)
	}
	return PersistedTx{
		Raw:          buf.Bytes(),
		Confidence:   t.Confidence.Snapshot(),
		Source:       t.Source,
		Purpose:      t.Purpose,
		Memo:         t.Memo,
		ExchangeRate: t.ExchangeRate,
		UpdateTime:   t.UpdateTime,
		Appearances:  t.Appearances,
	}, nil
}
