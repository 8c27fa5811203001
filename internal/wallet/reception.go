package wallet


// BlockLocation tells ReceiveFromBlock where in the chain a
// transaction was found.
type BlockLocation int

const (
	BestChain BlockLocation = iota
	SideChain
)

// ReceivePending ingests a transaction seen in mempool or relayed by a
// peer but not yet included in any block. dependencies holds any
// parent transactions of tx that are themselves still unconfirmed and
// already known to the wallet, needed for risk analysis.
//
// Idempotent: re-announcing a transaction the wallet already tracks,
// or one previously rejected by the risk analyzer, is a no-op.
func (w *CoreWallet) ReceivePending(tx *Tx, dependencies []*Tx) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, _, ok := w.pool.Get(tx.Hash); ok {
		return nil
	}
	if w.wasRiskDropped(tx.Hash) {
		return nil
	}

	height, mtp := int32(0), int64(0)
	if w.chain != nil {
		height = w.chain.BestHeight()
		if t, err := w.chain.MedianTimePast(); err == nil {
			mtp = t
		}
	}
	if verdict := w.risk.Analyze(tx, dependencies, height, mtp); verdict != RiskOK {
		w.rememberRiskDropped(tx.Hash)
		w.log.Debug("risk analyzer rejected pending tx", "hash", tx.Hash.String(), "verdict", verdict)
		return nil
	}

	reasons := classifyIncoming(tx)

	if conflict := w.findConflict(tx); conflict != nil {
		reasons = append(reasons, tx.Confidence.setInConflict(conflict.Hash)...)
		if err := w.pool.Add(PoolPending, tx); err != nil {
			return err
		}
		w.markDeadRecursive(conflict)
		w.listeners.FireConfidenceChanged(tx, reasons)
		w.scheduleSave()
		return nil
	}

	reasons = append(reasons, tx.Confidence.setPending()...)
	if err := w.pool.Add(PoolPending, tx); err != nil {
		return err
	}
	w.connectOwnedOutputs(tx)
	w.updateForSpends(tx)

	received := tx.ValueSentToMe(w.owns)
	w.listeners.FireConfidenceChanged(tx, reasons)
	if received > 0 {
		w.listeners.FireCoinsReceived(tx, received)
	}
	w.scheduleSave()
	return nil
}

// ReceiveFromBlock ingests a transaction included in a block, at
// relativityOffset within that block (its index among the block's
// transactions, used for correct in-block dependency ordering during
// reorg replay). location distinguishes a best-chain confirmation from
// a side-chain one the wallet tracks but doesn't yet treat as final.
func (w *CoreWallet) ReceiveFromBlock(tx *Tx, block BlockInfo, location BlockLocation, relativityOffset int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.receiveFromBlockLocked(tx, block, location, relativityOffset)
}

func (w *CoreWallet) receiveFromBlockLocked(tx *Tx, block BlockInfo, location BlockLocation, relativityOffset int) error {
	existing, _, tracked := w.pool.Get(tx.Hash)
	var classifyReasons []ChangeReason
	if !tracked {
		classifyReasons = classifyIncoming(tx)
		if err := w.pool.Add(PoolPending, tx); err != nil {
			return err
		}
		w.connectOwnedOutputs(tx)
		existing = tx
	}

	existing.Appearances = append(existing.Appearances, BlockAppearance{
		BlockHash:        block.Hash,
		Height:           block.Height,
		RelativityOffset: relativityOffset,
	})

	if location != BestChain {
		return nil
	}

	reasons := append(classifyReasons, existing.Confidence.setBuilding(block.Height)...)
	w.updateForSpends(existing)
	if _, err := w.pool.MaybeMovePool(existing); err != nil {
		return err
	}

	w.listeners.FireConfidenceChanged(existing, reasons)
	w.scheduleSave()
	return nil
}

// classifyIncoming assigns Source and Purpose to a transaction the
// wallet is seeing for the first time, so downstream UI and fee policy
// never has to deal with PurposeUnknown for anything actually tracked.
// A tx built and signed locally (composer.go, maintenance.go) already
// carries its own Source/Purpose and is never routed through here.
func classifyIncoming(tx *Tx) []ChangeReason {
	if tx.Source != SourceUnknown {
		return nil
	}
	tx.Source = SourceNetwork
	tx.Purpose = PurposeIncomingTx
	return []ChangeReason{ReasonPurpose}
}

// updateForSpends connects tx's inputs to this wallet's own outputs
// where they match, marking those outputs spent and moving each
// parent transaction whose output was spent to the pool its
// confidence and remaining outputs imply. Firing CoinsSent happens
// here since it is only meaningful once an input is actually connected
// to money we held.
func (w *CoreWallet) updateForSpends(tx *Tx) {
	var totalSpent int64
	for _, in := range tx.Inputs {
		out, ok := w.pool.UnspentOutput(in.Outpoint())
		if !ok {
			continue
		}
		in.connect(out)
		w.pool.RemoveUnspentOutput(in.Outpoint())
		totalSpent += out.Value()

		if parentTx := out.Tx(); parentTx != nil {
			if _, err := w.pool.MaybeMovePool(parentTx); err != nil {
				w.log.Warn("failed to move parent pool after spend", "error", err)
			}
		}
	}
	if totalSpent > 0 {
		w.listeners.FireCoinsSent(tx, totalSpent)
	}
}

// connectOwnedOutputs registers any of tx's outputs this wallet owns
// (per the bound KeyBag) as newly-available unspent outputs.
func (w *CoreWallet) connectOwnedOutputs(tx *Tx) {
	for _, out := range tx.Outputs {
		if w.owns(out.PkScript()) {
			w.pool.AddUnspentOutput(out)
		}
	}
}

// findConflict reports an already-tracked transaction that spends one
// of the same inputs as tx, if any. Only inputs spending this wallet's
// own outputs are checked, since the wallet has no visibility into
// conflicts over outputs it doesn't own.
func (w *CoreWallet) findConflict(tx *Tx) *Tx {
	for _, in := range tx.Inputs {
		out, ok := w.pool.OwnedOutput(in.Outpoint())
		if !ok || out.spentBy == nil {
			continue
		}
		if out.spentBy.tx.Hash != tx.Hash {
			return out.spentBy.tx
		}
	}
	return nil
}

// markDeadRecursive marks tx and every transaction spending one of its
// outputs as ConfDead, transitively, matching the teacher's recursive
// coinbase invalidation in the reorg path: a single conflict can
// invalidate an entire forward cone of dependent transactions.
func (w *CoreWallet) markDeadRecursive(tx *Tx) {
	reasons := tx.Confidence.setDead(nil)
	if _, err := w.pool.MaybeMovePool(tx); err != nil {
		w.log.Warn("failed to move tx to dead pool", "hash", tx.Hash.String(), "error", err)
	}
	w.listeners.FireConfidenceChanged(tx, reasons)

	for _, out := range tx.Outputs {
		if out.spentBy != nil {
			w.markDeadRecursive(out.spentBy.tx)
		}
	}
}

func (w *CoreWallet) scheduleSave() {
	if w.saver != nil {
		w.saver.scheduleCoalesced()
	}
}
