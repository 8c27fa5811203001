package wallet

import (
	"context"
	"testing"
	"time"
)

func TestCompleteEmptySendRequest(t *testing.T) {
	tw := newTestWallet()
	_, err := tw.Complete(context.Background(), &SendRequest{})
	if err != ErrEmptySendRequest {
		t.Fatalf("Complete() error = %v, want ErrEmptySendRequest", err)
	}
}

func TestCompleteMultipleOpReturn(t *testing.T) {
	tw := newTestWallet()
	tw.addConfirmedUTXO(100_000, 6)

	dest, _ := tw.keyBag.FreshAddress(false)
	req := &SendRequest{
		Recipients: []Recipient{{Address: dest, Value: 10_000}},
		OpReturns:  [][]byte{[]byte("one"), []byte("two")},
	}
	_, err := tw.Complete(context.Background(), req)
	if err != ErrMultipleOpReturn {
		t.Fatalf("Complete() error = %v, want ErrMultipleOpReturn", err)
	}
}

func TestCompleteAlreadyCompleted(t *testing.T) {
	tw := newTestWallet()
	tw.addConfirmedUTXO(100_000, 6)

	dest, _ := tw.keyBag.FreshAddress(false)
	req := &SendRequest{Recipients: []Recipient{{Address: dest, Value: 10_000}}}

	if _, err := tw.Complete(context.Background(), req); err != nil {
		t.Fatalf("first Complete() error = %v", err)
	}
	if _, err := tw.Complete(context.Background(), req); err != ErrAlreadyCompleted {
		t.Fatalf("second Complete() on the same request = %v, want ErrAlreadyCompleted", err)
	}
}

func TestCompleteBasicPaymentHasChange(t *testing.T) {
	tw := newTestWallet()
	tw.addConfirmedUTXO(1_000_000, 6)

	dest, _ := tw.keyBag.FreshAddress(false)
	req := &SendRequest{Recipients: []Recipient{{Address: dest, Value: 100_000}}}

	tx, err := tw.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(tx.Outputs) != 2 {
		t.Fatalf("len(Outputs) = %d, want 2 (recipient + change)", len(tx.Outputs))
	}

	var recipientTotal, changeTotal int64
	for _, o := range tx.Outputs {
		if o.Value() == 100_000 {
			recipientTotal += o.Value()
		} else {
			changeTotal += o.Value()
		}
	}
	if recipientTotal != 100_000 {
		t.Errorf("recipient output value = %d, want 100000", recipientTotal)
	}
	if changeTotal <= 0 || changeTotal >= 900_000 {
		t.Errorf("change output value = %d, want something less than the 900000 left after the send but > 0", changeTotal)
	}

	// Conservation: every satoshi in the selected inputs is accounted
	// for across recipients, change and fee.
	var inputTotal int64
	for _, in := range tx.Inputs {
		inputTotal += in.ConnectedOutput().Value()
	}
	spentOnOutputs := recipientTotal + changeTotal
	if spentOnOutputs > inputTotal {
		t.Fatalf("outputs (%d) exceed inputs (%d)", spentOnOutputs, inputTotal)
	}
}

// TestCompleteEmptyWalletHasNoChange guards against the composer
// handing back less than the swept balance by mistakenly adding a
// change output to an EmptyWallet sweep: every satoshi not consumed by
// the fee must go to the sole recipient, never split off into a second
// output.
func TestCompleteEmptyWalletHasNoChange(t *testing.T) {
	tw := newTestWallet()
	utxo := tw.addConfirmedUTXO(500_000, 6)

	dest, _ := tw.keyBag.FreshAddress(false)
	req := &SendRequest{
		Recipients:  []Recipient{{Address: dest, Value: 1}}, // Value is ignored for EmptyWallet
		EmptyWallet: true,
	}

	tx, err := tw.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(tx.Outputs) != 1 {
		t.Fatalf("len(Outputs) = %d, want exactly 1 (no change on an EmptyWallet sweep)", len(tx.Outputs))
	}

	inputTotal := utxo.Outputs[0].Value()
	sentValue := tx.Outputs[0].Value()
	if sentValue <= 0 || sentValue >= inputTotal {
		t.Fatalf("swept value = %d, want 0 < value < %d (balance minus fee)", sentValue, inputTotal)
	}
	fee := inputTotal - sentValue
	if fee <= 0 {
		t.Errorf("implied fee = %d, want > 0", fee)
	}
}

func TestCompleteEmptyWalletRequiresExactlyOneRecipient(t *testing.T) {
	tw := newTestWallet()
	tw.addConfirmedUTXO(500_000, 6)

	d1, _ := tw.keyBag.FreshAddress(false)
	d2, _ := tw.keyBag.FreshAddress(false)
	req := &SendRequest{
		Recipients:  []Recipient{{Address: d1, Value: 1}, {Address: d2, Value: 1}},
		EmptyWallet: true,
	}
	if _, err := tw.Complete(context.Background(), req); err == nil {
		t.Fatal("Complete() with EmptyWallet and 2 recipients should fail")
	}
}

func TestCompleteDustRecipientRejected(t *testing.T) {
	tw := newTestWallet()
	tw.addConfirmedUTXO(100_000, 6)

	dest, _ := tw.keyBag.FreshAddress(false)
	req := &SendRequest{Recipients: []Recipient{{Address: dest, Value: 1}}}

	if _, err := tw.Complete(context.Background(), req); err != ErrDustOutput {
		t.Fatalf("Complete() error = %v, want ErrDustOutput", err)
	}
}

func TestCompleteInsufficientFunds(t *testing.T) {
	tw := newTestWallet()
	tw.addConfirmedUTXO(1000, 6)

	dest, _ := tw.keyBag.FreshAddress(false)
	req := &SendRequest{Recipients: []Recipient{{Address: dest, Value: 100_000}}}

	_, err := tw.Complete(context.Background(), req)
	if _, ok := err.(*InsufficientFundsError); !ok {
		t.Fatalf("Complete() error = %v (%T), want *InsufficientFundsError", err, err)
	}
}

func TestCompleteEnsureMinFeeFloorsRate(t *testing.T) {
	tw := newTestWallet()
	tw.addConfirmedUTXO(1_000_000, 6)

	dest, _ := tw.keyBag.FreshAddress(false)

	base := &SendRequest{
		Recipients: []Recipient{{Address: dest, Value: 100_000}},
		FeePerKB:   1, // far below minrelaytxfee
	}
	txLow, err := tw.Complete(context.Background(), base)
	if err != nil {
		t.Fatalf("Complete() (low fee) error = %v", err)
	}

	tw2 := newTestWallet()
	tw2.addConfirmedUTXO(1_000_000, 6)
	dest2, _ := tw2.keyBag.FreshAddress(false)
	floored := &SendRequest{
		Recipients:   []Recipient{{Address: dest2, Value: 100_000}},
		FeePerKB:     1,
		EnsureMinFee: true,
	}
	txFloored, err := tw2.Complete(context.Background(), floored)
	if err != nil {
		t.Fatalf("Complete() (EnsureMinFee) error = %v", err)
	}

	feeOf := func(tx *Tx) int64 {
		var in, out int64
		for _, i := range tx.Inputs {
			in += i.ConnectedOutput().Value()
		}
		for _, o := range tx.Outputs {
			out += o.Value()
		}
		return in - out
	}

	if feeOf(txFloored) <= feeOf(txLow) {
		t.Errorf("EnsureMinFee fee (%d) should exceed the unfloored fee (%d)", feeOf(txFloored), feeOf(txLow))
	}
}

func TestCompleteRecipientsPayFees(t *testing.T) {
	tw := newTestWallet()
	tw.addConfirmedUTXO(1_000_000, 6)

	dest, _ := tw.keyBag.FreshAddress(false)
	req := &SendRequest{
		Recipients:        []Recipient{{Address: dest, Value: 100_000}},
		RecipientsPayFees: true,
	}
	tx, err := tw.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	var recipientOut int64
	for _, o := range tx.Outputs {
		if o.Value() < 100_000 {
			recipientOut = o.Value()
		}
	}
	if recipientOut == 0 || recipientOut >= 100_000 {
		t.Errorf("recipient output = %d, want less than the requested 100000 (fee deducted)", recipientOut)
	}
}

func TestCompleteMissingSigsThrowByDefault(t *testing.T) {
	tw := newTestWallet()
	tw.addConfirmedUTXO(100_000, 6)
	tw.keyBag.failSign = map[int]bool{0: true}

	dest, _ := tw.keyBag.FreshAddress(false)
	req := &SendRequest{Recipients: []Recipient{{Address: dest, Value: 10_000}}}
	if _, err := tw.Complete(context.Background(), req); err == nil {
		t.Fatal("Complete() should fail when the signer can't sign and MissingSigsMode is THROW")
	}
}

func TestCompleteMissingSigsUseDummySig(t *testing.T) {
	tw := newTestWallet()
	tw.addConfirmedUTXO(100_000, 6)
	tw.keyBag.failSign = map[int]bool{0: true}

	dest, _ := tw.keyBag.FreshAddress(false)
	req := &SendRequest{
		Recipients:      []Recipient{{Address: dest, Value: 10_000}},
		MissingSigsMode: MissingSigsUseDummySig,
	}
	tx, err := tw.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(tx.MsgTx().TxIn[0].Witness) == 0 {
		t.Error("expected a dummy witness to be installed for the unsignable input")
	}
}

func TestMaintainKeysSweepsStaleOutputs(t *testing.T) {
	tw := newTestWallet()
	cutoff := time.Now().Add(time.Hour)
	tw.addConfirmedUTXO(200_000, 6)
	tw.addConfirmedUTXO(300_000, 6)

	ageOf := func(pkScript []byte) time.Time { return time.Now() } // every key "stale" relative to the future cutoff

	txs, err := tw.MaintainKeys(context.Background(), cutoff, ageOf)
	if err != nil {
		t.Fatalf("MaintainKeys() error = %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("len(txs) = %d, want 1 (both outputs fit in one batch)", len(txs))
	}
	tx := txs[0]
	if len(tx.Outputs) != 1 {
		t.Fatalf("len(Outputs) = %d, want 1 (sweep has no change)", len(tx.Outputs))
	}
	if tx.Purpose != PurposeKeyRotation {
		t.Errorf("Purpose = %v, want PurposeKeyRotation", tx.Purpose)
	}
	if len(tx.Inputs) != 2 {
		t.Fatalf("len(Inputs) = %d, want 2", len(tx.Inputs))
	}
}

func TestMaintainKeysNoStaleOutputsIsNoop(t *testing.T) {
	tw := newTestWallet()
	tw.addConfirmedUTXO(200_000, 6)

	cutoff := time.Now().Add(-time.Hour * 24 * 365)
	ageOf := func(pkScript []byte) time.Time { return time.Now() } // every key newer than the cutoff

	txs, err := tw.MaintainKeys(context.Background(), cutoff, ageOf)
	if err != nil {
		t.Fatalf("MaintainKeys() error = %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("len(txs) = %d, want 0", len(txs))
	}
}
