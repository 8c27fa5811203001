package wallet

import (
	"context"
	"time"
)

// KeyAgeOracle resolves a pkScript back to when its underlying key was
// issued, so the maintenance engine can decide which outputs sit on
// keys old enough to rotate off of. The caller supplies it; the
// wallet_poolMaintainKeys RPC handler passes one that reports the zero
// time for every script.
type KeyAgeOracle func(pkScript []byte) time.Time

// MaintainKeys sweeps any spendable output sitting on a key older than
// cutoff into a single fresh-key transaction, batched in groups of at
// most MaxSimultaneousInputs so a wallet that has rotated many times
// doesn't try to build one unbounded transaction.
//
// Returns every maintenance transaction composed (and signed, not yet
// broadcast); the caller decides whether and when to broadcast them.
func (w *CoreWallet) MaintainKeys(ctx context.Context, cutoff time.Time, ageOf KeyAgeOracle) ([]*Tx, error) {
	w.mu.Lock()
	selector := KeyAgeCoinSelector{Cutoff: cutoff, KeyAgeOf: ageOf}
	var stale []*Output
	for _, out := range w.pool.UnspentOutputs() {
		if selector.IsEligible(out, w.cfg) {
			stale = append(stale, out)
		}
	}
	w.mu.Unlock()

	if len(stale) == 0 {
		return nil, nil
	}

	var results []*Tx
	for len(stale) > 0 {
		batchSize := w.cfg.MaxSimultaneousInputs
		if batchSize > len(stale) {
			batchSize = len(stale)
		}
		batch := stale[:batchSize]
		stale = stale[batchSize:]

		tx, err := w.composeSweep(ctx, batch)
		if err != nil {
			return results, err
		}
		results = append(results, tx)
	}
	return results, nil
}

// composeSweep builds a transaction spending exactly the given outputs
// to a single fresh address, paying its own fee out of the swept
// total. Unlike Complete's fee loop, the input set here is fixed by
// the caller (it is precisely the stale batch being rotated away
// from), so only the fee and the resulting change need solving for.
func (w *CoreWallet) composeSweep(ctx context.Context, batch []*Output) (*Tx, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dest, err := w.keyBag.FreshAddress(false)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, out := range batch {
		total += out.Value()
	}

	feePerKB := w.cfg.DefaultFeePerKB
	estSize := estimateVSize(len(batch), 1, nil)
	fee := int64(feePerKB) * int64(estSize) / 1000
	if fee < 1 {
		fee = 1
	}

	value := total - fee
	if value < int64(w.cfg.DustSatoshis) {
		return nil, &InsufficientFundsError{Target: fee, Available: total}
	}

	req := &SendRequest{
		Recipients: []Recipient{{Address: dest, Value: value}},
		Purpose:    PurposeKeyRotation,
	}

	sel := &Selection{Gathered: batch, Total: total}
	return w.buildFixedSelection(ctx, req, req.Recipients, sel, fee)
}
