package wallet

import (
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ReorgNewBlock is one block of the new best chain, supplied by the
// chain-sync driver together with the wallet-relevant transactions it
// contains (the driver is the one with access to full block contents;
// the wallet only ever sees the subset of transactions that touch its
// own keys).
type ReorgNewBlock struct {
	Info         BlockInfo
	Transactions []ReorgTxAppearance
}

// ReorgTxAppearance pairs a transaction with its index within the
// block it appeared in.
type ReorgTxAppearance struct {
	Tx               *Tx
	RelativityOffset int
}

// Reorganize replays a chain split: splitPoint is the last block both
// chains share, oldBlocks names the now-orphaned blocks (top to
// bottom, i.e. oldBlocks[0] was the prior tip), and newBlocks carries
// the replacement chain's wallet-relevant transactions (top to
// bottom, same order as oldBlocks -- this method reverses internally).
//
// Old-chain transactions are rediscovered from each tx's own
// Appearances rather than requiring the caller to pass them again,
// since the wallet already recorded exactly which of its own
// transactions appeared in which now-orphaned block.
func (w *CoreWallet) Reorganize(splitPoint BlockInfo, oldBlocks []BlockInfo, newBlocks []ReorgNewBlock) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.listeners.BeginReorgSuppression()
	defer w.listeners.EndReorgSuppression()

	oldChainTxns := w.collectOldChainTxns(oldBlocks)

	// Disconnect and reinject, most recent orphaned block (the old tip)
	// first so a
	// coinbase's dependents are unwound before the coinbase itself.
	for _, tx := range oldChainTxns {
		if tx.IsCoinBase() {
			w.markDeadRecursive(tx)
			continue
		}
		w.disconnectInputs(tx)
		reasons := tx.Confidence.rewindToPending()
		if _, err := w.pool.MaybeMovePool(tx); err != nil {
			w.log.Warn("reorg: failed to move tx back to pending", "hash", tx.Hash.String(), "error", err)
		}
		w.listeners.FireConfidenceChanged(tx, reasons)
	}

	// Every remaining BUILDING tx sits len(oldBlocks) blocks shallower
	// now that those blocks are gone.
	for _, pool := range []PoolType{PoolUnspent, PoolSpent} {
		for _, tx := range w.pool.All(pool) {
			reasons := tx.Confidence.subtractDepth(int32(len(oldBlocks)))
			if len(reasons) > 0 {
				w.listeners.FireConfidenceChanged(tx, reasons)
			}
		}
	}

	w.setLastSeenBlock(splitPoint)

	// Replay the new chain bottom to top.
	reversed := make([]ReorgNewBlock, len(newBlocks))
	for i, b := range newBlocks {
		reversed[len(newBlocks)-1-i] = b
	}
	for _, block := range reversed {
		for _, appearance := range block.Transactions {
			if err := w.receiveFromBlockLocked(appearance.Tx, block.Info, BestChain, appearance.RelativityOffset); err != nil {
				return err
			}
		}
		w.setLastSeenBlock(block.Info)
	}

	w.listeners.FireReorganize(splitPoint.Height)
	w.scheduleSave()
	return nil
}

// collectOldChainTxns finds every wallet-known transaction whose
// Appearances name one of oldBlocks, ordered most recent orphaned block
// (the old tip) first and, within a block, by descending relativity offset so a
// spending transaction is unwound before the output it spent.
func (w *CoreWallet) collectOldChainTxns(oldBlocks []BlockInfo) []*Tx {
	orphaned := make(map[chainhash.Hash]int) // block hash -> position in oldBlocks (0 = old tip)
	for i, b := range oldBlocks {
		orphaned[b.Hash] = i
	}

	type found struct {
		tx       *Tx
		blockPos int
		offset   int
	}
	var all []found

	for _, pool := range []PoolType{PoolPending, PoolUnspent, PoolSpent, PoolDead} {
		for _, tx := range w.pool.All(pool) {
			for _, app := range tx.Appearances {
				if pos, ok := orphaned[app.BlockHash]; ok {
					all = append(all, found{tx: tx, blockPos: pos, offset: app.RelativityOffset})
					break
				}
			}
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].blockPos != all[j].blockPos {
			return all[i].blockPos < all[j].blockPos
		}
		return all[i].offset > all[j].offset
	})

	out := make([]*Tx, len(all))
	for i, f := range all {
		out[i] = f.tx
	}
	return out
}

// disconnectInputs undoes updateForSpends for every input of tx,
// returning any output it had claimed back to myUnspents.
func (w *CoreWallet) disconnectInputs(tx *Tx) {
	for _, in := range tx.Inputs {
		if in.connectedOutput == nil {
			continue
		}
		out := in.connectedOutput
		in.disconnect()
		w.pool.AddUnspentOutput(out)
		if parentTx := out.Tx(); parentTx != nil {
			if _, err := w.pool.MaybeMovePool(parentTx); err != nil {
				w.log.Warn("reorg: failed to move parent pool after disconnect", "error", err)
			}
		}
	}
}
