package wallet

// PoolSnapshot pairs a persisted transaction with the pool it lived in
// at save time, the unit internal/storage's wallet pool table stores
// one row per.
type PoolSnapshot struct {
	Pool PoolType
	Tx   PersistedTx
}

// ExportState captures every transaction currently tracked, for
// internal/storage to write out. Order is unspecified; LoadState
// restores correct ownership/spend linkage regardless of the order
// items are replayed in.
func (w *CoreWallet) ExportState() ([]PoolSnapshot, BlockInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []PoolSnapshot
	for _, pool := range []PoolType{PoolPending, PoolUnspent, PoolSpent, PoolDead} {
		for _, tx := range w.pool.All(pool) {
			persisted, err := tx.ToPersisted()
			if err != nil {
				return nil, BlockInfo{}, err
			}
			out = append(out, PoolSnapshot{Pool: pool, Tx: persisted})
		}
	}
	return out, w.lastSeenBlock, nil
}

// LoadState rebuilds the pool from a prior ExportState. It must be
// called before the wallet is attached to a live chain-sync feed.
func (w *CoreWallet) LoadState(items []PoolSnapshot, lastSeen BlockInfo) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.listeners.BeginReorgSuppression()
	defer w.listeners.EndReorgSuppression()

	restored := make([]*Tx, 0, len(items))
	for _, item := range items {
		tx, err := RestoreTx(item.Tx)
		if err != nil {
			return err
		}
		if err := w.pool.Add(item.Pool, tx); err != nil {
			return err
		}
		w.connectOwnedOutputs(tx)
		restored = append(restored, tx)
	}

	// Second pass: now that every transaction's outputs are indexed,
	// replay spend connections so Output.spentBy / myUnspents end up
	// exactly as they were before the restart.
	for _, tx := range restored {
		w.updateForSpends(tx)
	}

	w.setLastSeenBlock(lastSeen)
	return nil
}
