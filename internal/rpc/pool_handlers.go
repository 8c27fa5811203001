package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/klingon-tech/spvwallet/internal/chain"
	"github.com/klingon-tech/spvwallet/internal/config"
	"github.com/klingon-tech/spvwallet/internal/wallet"
)

// ========================================
// Pool-tracking wallet handlers
//
// These sit beside the address-scanning handlers in wallet_handlers.go
// and expose the pool-based core wallet (internal/wallet.CoreWallet):
// pending/unspent/spent/dead tracking with confidence and reorg
// awareness, rather than a fresh UTXO scan per call.
// ========================================

// getOrCreateCoreWallet returns the cached CoreWallet for symbol,
// building and restoring it from storage on first use. The wallet
// must already be unlocked.
func (s *Server) getOrCreateCoreWallet(ctx context.Context, symbol string) (*wallet.CoreWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cw, ok := s.coreWallets[symbol]; ok {
		return cw, nil
	}

	if s.wallet == nil || !s.wallet.IsUnlocked() {
		return nil, fmt.Errorf("wallet is locked")
	}

	cw, err := s.wallet.NewCoreWalletForChain(ctx, symbol, 0, s.store, config.DefaultWalletCoreConfig(), s.log)
	if err != nil {
		return nil, err
	}
	s.coreWallets[symbol] = cw
	return cw, nil
}

// WalletPoolBalanceParams is the parameters for wallet_poolBalance.
type WalletPoolBalanceParams struct {
	Symbol string `json:"symbol"`
}

// WalletPoolBalanceResult is the response for wallet_poolBalance.
type WalletPoolBalanceResult struct {
	Symbol              string `json:"symbol"`
	Estimated           int64  `json:"estimated"`
	Available           int64  `json:"available"`
	EstimatedSpendable  int64  `json:"estimated_spendable"`
	AvailableSpendable  int64  `json:"available_spendable"`
}

func (s *Server) walletPoolBalance(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p WalletPoolBalanceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	cw, err := s.getOrCreateCoreWallet(ctx, p.Symbol)
	if err != nil {
		return nil, err
	}

	return &WalletPoolBalanceResult{
		Symbol:             p.Symbol,
		Estimated:          cw.Balance(wallet.BalanceEstimated),
		Available:          cw.Balance(wallet.BalanceAvailable),
		EstimatedSpendable: cw.Balance(wallet.BalanceEstimatedSpendable),
		AvailableSpendable: cw.Balance(wallet.BalanceAvailableSpendable),
	}, nil
}

// WalletPoolSendParams is the parameters for wallet_poolSend.
type WalletPoolSendParams struct {
	Symbol      string `json:"symbol"`
	To          string `json:"to"`
	Amount      int64  `json:"amount"`
	FeePerKB    uint64 `json:"fee_per_kb,omitempty"`
	EmptyWallet bool   `json:"empty_wallet,omitempty"`
}

// WalletPoolSendResult is the response for wallet_poolSend.
type WalletPoolSendResult struct {
	TxID string `json:"txid"`
}

func (s *Server) walletPoolSend(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p WalletPoolSendParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if p.To == "" {
		return nil, fmt.Errorf("to address is required")
	}
	if !p.EmptyWallet && p.Amount <= 0 {
		return nil, fmt.Errorf("amount must be greater than 0")
	}

	cw, err := s.getOrCreateCoreWallet(ctx, p.Symbol)
	if err != nil {
		return nil, err
	}

	addr, err := btcutil.DecodeAddress(p.To, btcNetParams(s.wallet.Network()))
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	req := &wallet.SendRequest{
		Recipients:  []wallet.Recipient{{Address: addr, Value: p.Amount}},
		FeePerKB:    p.FeePerKB,
		EmptyWallet: p.EmptyWallet,
		Purpose:     wallet.PurposeUserPayment,
	}

	tx, err := cw.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to compose transaction: %w", err)
	}
	if err := cw.Broadcast(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	return &WalletPoolSendResult{TxID: tx.Hash.String()}, nil
}

// WalletPoolMaintainKeysParams is the parameters for
// wallet_poolMaintainKeys.
type WalletPoolMaintainKeysParams struct {
	Symbol       string `json:"symbol"`
	CutoffUnix   int64  `json:"cutoff_unix"`
}

// WalletPoolMaintainKeysResult is the response for
// wallet_poolMaintainKeys.
type WalletPoolMaintainKeysResult struct {
	TxIDs []string `json:"txids"`
}

func (s *Server) walletPoolMaintainKeys(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p WalletPoolMaintainKeysParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	cw, err := s.getOrCreateCoreWallet(ctx, p.Symbol)
	if err != nil {
		return nil, err
	}

	cutoff := time.Unix(p.CutoffUnix, 0)
	if p.CutoffUnix == 0 {
		cutoff = time.Now().AddDate(-1, 0, 0)
	}

	// The pool doesn't track when a key was issued, so every key is
	// reported with the zero time: every spendable output counts as
	// older than the cutoff and is swept.
	ageOf := func(pkScript []byte) time.Time {
		return time.Time{}
	}

	txs, err := cw.MaintainKeys(ctx, cutoff, ageOf)
	if err != nil {
		return nil, fmt.Errorf("failed to maintain keys: %w", err)
	}

	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.Hash.String()
	}
	return &WalletPoolMaintainKeysResult{TxIDs: ids}, nil
}

// btcNetParams maps this daemon's network setting to the btcsuite
// chaincfg.Params needed to decode/validate a Bitcoin address, mirroring
// internal/wallet's own btcParams helper.
func btcNetParams(network chain.Network) *chaincfg.Params {
	if network == chain.Testnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}
