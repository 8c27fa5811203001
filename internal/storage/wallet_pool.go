// Package storage provides persistence for the SPV core wallet's
// transaction pool (internal/wallet.CoreWallet).
package storage

import (
	"bytes"
	"database/sql"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/klingon-tech/spvwallet/internal/wallet"
	"gopkg.in/yaml.v3"
)

// SaveWalletPool persists the entire core wallet pool state in one
// transaction, so a crash mid-write never leaves the on-disk pool
// half old/half new state: every row is replaced atomically by SQLite
// rolling the transaction back on any error, the equivalent here of
// this repo's write-temp-then-rename pattern for flat files.
func (s *Storage) SaveWalletPool(items []wallet.PoolSnapshot, tip wallet.BlockInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin wallet pool save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM wallet_pool_txs`); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO wallet_pool_txs (
			tx_hash, pool, raw, confidence_type, depth, appeared_at_height,
			overriding_tx, source, purpose, memo, exchange_rate, update_time, appearances
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		txHash, err := rawTxHash(item.Tx.Raw)
		if err != nil {
			return err
		}

		var overriding sql.NullString
		if item.Tx.Confidence.OverridingTx != nil {
			overriding = sql.NullString{String: item.Tx.Confidence.OverridingTx.String(), Valid: true}
		}

		appearancesYAML, err := yaml.Marshal(item.Tx.Appearances)
		if err != nil {
			return fmt.Errorf("failed to encode tx appearances: %w", err)
		}

		_, err = stmt.Exec(
			txHash.String(),
			item.Pool.String(),
			item.Tx.Raw,
			item.Tx.Confidence.Type.String(),
			item.Tx.Confidence.Depth,
			item.Tx.Confidence.AppearedAtHeight,
			overriding,
			item.Tx.Source.String(),
			item.Tx.Purpose.String(),
			item.Tx.Memo,
			item.Tx.ExchangeRate,
			item.Tx.UpdateTime.Unix(),
			string(appearancesYAML),
		)
		if err != nil {
			return fmt.Errorf("failed to save pool tx %s: %w", txHash, err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO wallet_pool_tip (id, block_hash, height, block_time)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			block_hash = excluded.block_hash,
			height = excluded.height,
			block_time = excluded.block_time
	`, tip.Hash.String(), tip.Height, tip.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to save wallet pool tip: %w", err)
	}

	return tx.Commit()
}

// LoadWalletPool reads back everything SaveWalletPool wrote, in the
// shape wallet.CoreWallet.LoadState expects.
func (s *Storage) LoadWalletPool() ([]wallet.PoolSnapshot, wallet.BlockInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT pool, raw, confidence_type, depth, appeared_at_height,
			   overriding_tx, source, purpose, memo, exchange_rate, update_time, appearances
		FROM wallet_pool_txs
	`)
	if err != nil {
		return nil, wallet.BlockInfo{}, err
	}
	defer rows.Close()

	var items []wallet.PoolSnapshot
	for rows.Next() {
		var (
			poolStr, confTypeStr, sourceStr, purposeStr string
			raw                                         []byte
			depth, appearedAtHeight                     int32
			overriding                                  sql.NullString
			memo, exchangeRate, appearancesYAML         string
			updateTimeUnix                              int64
		)
		if err := rows.Scan(
			&poolStr, &raw, &confTypeStr, &depth, &appearedAtHeight,
			&overriding, &sourceStr, &purposeStr, &memo, &exchangeRate,
			&updateTimeUnix, &appearancesYAML,
		); err != nil {
			return nil, wallet.BlockInfo{}, err
		}

		var appearances []wallet.BlockAppearance
		if appearancesYAML != "" {
			if err := yaml.Unmarshal([]byte(appearancesYAML), &appearances); err != nil {
				return nil, wallet.BlockInfo{}, fmt.Errorf("failed to decode tx appearances: %w", err)
			}
		}

		snap := wallet.PoolSnapshot{
			Pool: parsePoolType(poolStr),
			Tx: wallet.PersistedTx{
				Raw: raw,
				Confidence: wallet.Snapshot{
					Type:             parseConfidenceType(confTypeStr),
					Depth:            depth,
					AppearedAtHeight: appearedAtHeight,
					OverridingTx:     parseOptionalHash(overriding),
				},
				Source:       parseTxSource(sourceStr),
				Purpose:      parseTxPurpose(purposeStr),
				Memo:         memo,
				ExchangeRate: exchangeRate,
				UpdateTime:   time.Unix(updateTimeUnix, 0),
				Appearances:  appearances,
			},
		}
		items = append(items, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, wallet.BlockInfo{}, err
	}

	var tip wallet.BlockInfo
	var hashStr string
	var height int32
	var blockTimeUnix int64
	err = s.db.QueryRow(`SELECT block_hash, height, block_time FROM wallet_pool_tip WHERE id = 1`).
		Scan(&hashStr, &height, &blockTimeUnix)
	switch {
	case err == sql.ErrNoRows:
		// No tip saved yet: caller starts from genesis-relative zero.
	case err != nil:
		return nil, wallet.BlockInfo{}, err
	default:
		hash, parseErr := chainhash.NewHashFromStr(hashStr)
		if parseErr != nil {
			return nil, wallet.BlockInfo{}, parseErr
		}
		tip = wallet.BlockInfo{Hash: *hash, Height: height, Timestamp: time.Unix(blockTimeUnix, 0)}
	}

	return items, tip, nil
}

func rawTxHash(raw []byte) (chainhash.Hash, error) {
	msgTx := &wire.MsgTx{}
	if err := msgTx.Deserialize(bytes.NewReader(raw)); err != nil {
		return chainhash.Hash{}, fmt.Errorf("failed to parse pool tx for hashing: %w", err)
	}
	return msgTx.TxHash(), nil
}

func parsePoolType(s string) wallet.PoolType {
	switch s {
	case "unspent":
		return wallet.PoolUnspent
	case "spent":
		return wallet.PoolSpent
	case "dead":
		return wallet.PoolDead
	default:
		return wallet.PoolPending
	}
}

func parseConfidenceType(s string) wallet.ConfidenceType {
	switch s {
	case "pending":
		return wallet.ConfPending
	case "in_conflict":
		return wallet.ConfInConflict
	case "building":
		return wallet.ConfBuilding
	case "dead":
		return wallet.ConfDead
	default:
		return wallet.ConfUnknown
	}
}

func parseTxSource(s string) wallet.TxSource {
	switch s {
	case "self":
		return wallet.SourceSelf
	case "network":
		return wallet.SourceNetwork
	default:
		return wallet.SourceUnknown
	}
}

func parseTxPurpose(s string) wallet.TxPurpose {
	switch s {
	case "user_payment":
		return wallet.PurposeUserPayment
	case "key_rotation":
		return wallet.PurposeKeyRotation
	case "raise_fee":
		return wallet.PurposeRaiseFee
	case "incoming_tx":
		return wallet.PurposeIncomingTx
	default:
		return wallet.PurposeUnknown
	}
}

func parseOptionalHash(s sql.NullString) *chainhash.Hash {
	if !s.Valid || s.String == "" {
		return nil
	}
	h, err := chainhash.NewHashFromStr(s.String)
	if err != nil {
		return nil
	}
	return h
}
