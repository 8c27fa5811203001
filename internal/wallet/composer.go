package wallet

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Composition errors. Package vars, matching internal/backend's typed
// error style.
var (
	ErrEmptySendRequest          = errors.New("wallet: send request has no recipients")
	ErrDustOutput                = errors.New("wallet: output value below dust threshold")
	ErrExceededMaxTransactionSize = errors.New("wallet: composed transaction exceeds maximum standard size")
	ErrCouldNotAdjustForFees     = errors.New("wallet: recipients cannot cover the fee from their own outputs")
	ErrMultipleOpReturn          = errors.New("wallet: a transaction may carry at most one OP_RETURN output")
	ErrAlreadyCompleted          = errors.New("wallet: send request has already been completed")
)

// MissingSigsMode controls how Complete behaves when the bound Signer
// cannot produce a signature for an input.
type MissingSigsMode int

const (
	// MissingSigsThrow fails completion outright (the default).
	MissingSigsThrow MissingSigsMode = iota
	// MissingSigsUseDummySig fills the input with a placeholder
	// signature of the correct size, for fee estimation of transactions
	// that will be cosigned out of band.
	MissingSigsUseDummySig
)

// ExchangeRate annotates a SendRequest with the fiat rate in effect at
// composition time, carried through to the persisted Tx for display
// purposes only; it has no effect on composition.
type ExchangeRate struct {
	Currency string
	Rate     float64
}

// Recipient is one payment leg of a SendRequest.
type Recipient struct {
	Address btcutil.Address
	Value   int64
}

// SendRequest describes a transaction the composer should build and
// sign. It intentionally mirrors SendRequest-style objects from
// Bitcoin wallet libraries: a bag of options the fee loop interprets,
// rather than a single "send X to Y" call, since real sends have to
// juggle fee source, change destination and size limits together.
type SendRequest struct {
	Recipients []Recipient

	// OpReturns are embedded as zero-value OP_RETURN outputs. Standard
	// relay policy allows at most one per transaction; a second entry
	// fails completion with ErrMultipleOpReturn.
	OpReturns [][]byte

	// FeePerKB overrides config.WalletCoreConfig.DefaultFeePerKB when
	// non-zero.
	FeePerKB uint64

	// EnsureMinFee bumps the computed fee up to the network minimum
	// relay fee rate if FeePerKB (or the configured default) would
	// otherwise produce a transaction a node might not relay.
	EnsureMinFee bool

	// EmptyWallet sends the wallet's entire spendable balance. Exactly
	// one recipient may be given; its Value is ignored and replaced
	// with balance-minus-fee.
	EmptyWallet bool

	// RecipientsPayFees subtracts the fee proportionally from each
	// recipient's output instead of from the change output.
	RecipientsPayFees bool

	// ShuffleOutputs randomizes output order after composition so
	// position doesn't leak which output is change.
	ShuffleOutputs bool

	// MissingSigsMode controls behavior when an input can't be signed.
	MissingSigsMode MissingSigsMode

	// ChangeAddress overrides the default fresh change address issued
	// by the bound KeyBag.
	ChangeAddress btcutil.Address

	Purpose      TxPurpose
	Memo         string
	LockTime     uint32
	ExchangeRate *ExchangeRate

	// completed guards against a SendRequest being completed twice;
	// bitcoinj-style SendRequest objects are a single-use bag of
	// options, not meant to be re-submitted to Complete.
	completed bool
}

const maxFeeLoopIterations = 5

// assumedInputVSize estimates a P2WPKH input's virtual size in bytes,
// used to seed the fee loop before the actual input set is known.
const assumedInputVSize = 68

// minRelayFeePerKB matches bitcoind's default minrelaytxfee (sat/kB);
// EnsureMinFee floors the composed fee rate at this value.
const minRelayFeePerKB = 1000

// dummySigScriptSize is large enough to hold a maximum-size DER
// signature plus a compressed pubkey push, used as a size-accurate
// placeholder when MissingSigsMode is MissingSigsUseDummySig.
const dummySigScriptSize = 107

// Complete builds, selects inputs for, signs and returns a transaction
// satisfying req, without broadcasting it. Call Broadcast (or hand the
// result to a TransactionBroadcaster directly) once the caller is
// ready to publish it.
func (w *CoreWallet) Complete(ctx context.Context, req *SendRequest) (*Tx, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.completeLocked(ctx, req)
}

func (w *CoreWallet) completeLocked(ctx context.Context, req *SendRequest) (*Tx, error) {
	if req.completed {
		return nil, ErrAlreadyCompleted
	}
	if len(req.Recipients) == 0 && !req.EmptyWallet {
		return nil, ErrEmptySendRequest
	}
	if len(req.OpReturns) > 1 {
		return nil, ErrMultipleOpReturn
	}
	feePerKB := req.FeePerKB
	if feePerKB == 0 {
		feePerKB = w.cfg.DefaultFeePerKB
	}

	candidates := w.eligibleCandidates()

	var (
		selected   *Selection
		recipients []Recipient
		fee        int64
	)

	numInputs := 1
	for iter := 0; iter < maxFeeLoopIterations; iter++ {
		recipients = req.Recipients
		target := sumRecipients(recipients)

		if req.EmptyWallet {
			if len(req.Recipients) != 1 {
				return nil, fmt.Errorf("wallet: EmptyWallet requires exactly one recipient")
			}
			target = w.balanceOfCandidates(candidates)
		}

		estSize := estimateVSize(numInputs, len(recipients)+2, req.OpReturns)
		fee = int64(feePerKB) * int64(estSize) / 1000
		if fee < 1 {
			fee = 1
		}
		if req.EnsureMinFee {
			if minFee := int64(minRelayFeePerKB) * int64(estSize) / 1000; fee < minFee {
				fee = minFee
			}
		}

		spendTarget := target
		if req.EmptyWallet {
			spendTarget = target - fee
			if spendTarget < 0 {
				return nil, &InsufficientFundsError{Target: fee, Available: target}
			}
			recipients = []Recipient{{Address: req.Recipients[0].Address, Value: spendTarget}}
		} else if req.RecipientsPayFees {
			recipients = subtractFeeFromRecipients(recipients, fee, int64(w.cfg.DustSatoshis))
			if recipients == nil {
				return nil, ErrCouldNotAdjustForFees
			}
		}

		sel, err := w.selector.Select(target+feeIfNotPaidByRecipients(req, fee), candidates)
		if err != nil {
			return nil, err
		}
		selected = sel

		if len(selected.Gathered) == numInputs {
			break
		}
		numInputs = len(selected.Gathered)
	}

	tx, err := w.buildFixedSelection(ctx, req, recipients, selected, fee)
	if err != nil {
		return nil, err
	}
	req.completed = true
	return tx, nil
}

// buildFixedSelection assembles, sizes and signs a transaction from an
// already-decided input set and recipient list. Shared by Complete's
// fee loop and the maintenance engine's sweep, which picks its own
// fixed input batch and has no use for coin selection.
func (w *CoreWallet) buildFixedSelection(ctx context.Context, req *SendRequest, recipients []Recipient, selected *Selection, fee int64) (*Tx, error) {
	spendTotal := sumRecipients(recipients)
	totalNeeded := spendTotal
	if !req.EmptyWallet {
		// With RecipientsPayFees the recipients are already reduced by
		// the fee, which must still be left out of the change.
		totalNeeded += fee
	}
	changeVal := selected.Total - totalNeeded
	if changeVal < 0 {
		return nil, &InsufficientFundsError{Target: totalNeeded, Available: selected.Total}
	}

	for _, r := range recipients {
		if r.Value < int64(w.cfg.DustSatoshis) {
			return nil, ErrDustOutput
		}
	}

	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.LockTime = req.LockTime

	for _, out := range selected.Gathered {
		op := out.Outpoint()
		in := wire.NewTxIn(&op, nil, nil)
		in.Sequence = wire.MaxTxInSequenceNum - 1 // opt into RBF by default
		msgTx.AddTxIn(in)
	}

	for _, r := range recipients {
		script, err := txscript.PayToAddrScript(r.Address)
		if err != nil {
			return nil, fmt.Errorf("wallet: recipient script: %w", err)
		}
		msgTx.AddTxOut(wire.NewTxOut(r.Value, script))
	}

	if len(req.OpReturns) > 1 {
		return nil, ErrMultipleOpReturn
	}
	if len(req.OpReturns) == 1 {
		script, err := buildOpReturnScript(req.OpReturns[0])
		if err != nil {
			return nil, err
		}
		msgTx.AddTxOut(wire.NewTxOut(0, script))
	}

	// EmptyWallet already drives spendTarget to balance-minus-fee, so
	// selected.Total - totalNeeded is exactly the rounding slack from
	// the fee estimate, not spendable change: adding a change output
	// here would hand the recipient less than the wallet's whole
	// balance and let the "fee" silently include that slack.
	if changeVal >= int64(w.cfg.DustSatoshis) && !req.EmptyWallet {
		changeAddr := req.ChangeAddress
		if changeAddr == nil {
			addr, err := w.keyBag.FreshAddress(true)
			if err != nil {
				return nil, fmt.Errorf("wallet: fresh change address: %w", err)
			}
			changeAddr = addr
		}
		changeScript, err := txscript.PayToAddrScript(changeAddr)
		if err != nil {
			return nil, fmt.Errorf("wallet: change script: %w", err)
		}
		msgTx.AddTxOut(wire.NewTxOut(changeVal, changeScript))
	}
	// change smaller than dust (or EmptyWallet's leftover rounding) is
	// simply absorbed into the fee.

	if req.ShuffleOutputs {
		shuffleTxOuts(msgTx.TxOut)
	}

	if msgTx.SerializeSize() > w.cfg.MaxStandardTxSize {
		return nil, ErrExceededMaxTransactionSize
	}

	for i, out := range selected.Gathered {
		if err := w.signer.SignInput(ctx, msgTx, i, out.PkScript(), out.Value()); err != nil {
			if req.MissingSigsMode == MissingSigsUseDummySig {
				msgTx.TxIn[i].Witness = wire.TxWitness{bytes.Repeat([]byte{0xff}, dummySigScriptSize)}
				continue
			}
			return nil, fmt.Errorf("wallet: sign input %d: %w", i, err)
		}
	}

	tx := NewTx(msgTx)
	tx.Source = SourceSelf
	tx.Purpose = req.Purpose
	tx.Memo = req.Memo
	return tx, nil
}

// shuffleTxOuts randomizes output order in place (Fisher-Yates) so
// position doesn't reveal which output is change.
func shuffleTxOuts(outs []*wire.TxOut) {
	for i := len(outs) - 1; i > 0; i-- {
		jBig, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return
		}
		j := int(jBig.Int64())
		outs[i], outs[j] = outs[j], outs[i]
	}
}

// Broadcast hands a composed transaction to the bound
// TransactionBroadcaster and, once the broadcaster's future resolves
// without error, marks it pending in the wallet's pool. Composition
// (Complete) and broadcast are separate steps so a caller can inspect
// or discard a built transaction without it ever touching the pool.
func (w *CoreWallet) Broadcast(ctx context.Context, tx *Tx) error {
	errCh, err := w.broadcaster.Broadcast(ctx, tx.MsgTx())
	if err != nil {
		return err
	}
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return w.ReceivePending(tx, nil)
}

func (w *CoreWallet) eligibleCandidates() []*Output {
	var out []*Output
	for _, o := range w.pool.UnspentOutputs() {
		if w.selector.IsEligible(o, w.cfg) {
			out = append(out, o)
		}
	}
	return out
}

func (w *CoreWallet) balanceOfCandidates(candidates []*Output) int64 {
	var total int64
	for _, o := range candidates {
		total += o.Value()
	}
	return total
}

func sumRecipients(rs []Recipient) int64 {
	var total int64
	for _, r := range rs {
		total += r.Value
	}
	return total
}

func feeIfNotPaidByRecipients(req *SendRequest, fee int64) int64 {
	if req.RecipientsPayFees || req.EmptyWallet {
		return 0
	}
	return fee
}

// subtractFeeFromRecipients deducts fee from recipients proportionally
// to their value. Returns nil if any resulting output would be dust.
func subtractFeeFromRecipients(rs []Recipient, fee, dust int64) []Recipient {
	total := sumRecipients(rs)
	if total == 0 {
		return nil
	}
	out := make([]Recipient, len(rs))
	var allocated int64
	for i, r := range rs {
		var share int64
		if i == len(rs)-1 {
			share = fee - allocated
		} else {
			share = fee * r.Value / total
			allocated += share
		}
		out[i] = Recipient{Address: r.Address, Value: r.Value - share}
		if out[i].Value < dust {
			return nil
		}
	}
	return out
}

// estimateVSize gives a rough virtual-size estimate for a P2WPKH-input
// transaction with numOutputs outputs (each ~31 vbytes for a witness
// output) plus a fixed overhead, good enough to seed the fee loop;
// the loop re-estimates once the real input count is known.
func estimateVSize(numInputs, numOutputs int, opReturns [][]byte) int {
	size := 11 + numInputs*assumedInputVSize + numOutputs*31
	if len(opReturns) > 0 {
		size += 9 + len(opReturns[0])
	}
	return size
}

func buildOpReturnScript(data []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData(data).
		Script()
}
