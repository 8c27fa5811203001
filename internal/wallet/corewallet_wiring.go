package wallet

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/klingon-tech/spvwallet/internal/backend"
	"github.com/klingon-tech/spvwallet/internal/config"
	"github.com/klingon-tech/spvwallet/internal/storage"
	"github.com/klingon-tech/spvwallet/pkg/logging"
)

// backendChain adapts a backend.Backend to the BlockChain collaborator
// CoreWallet needs for risk analysis and event-horizon bookkeeping.
type backendChain struct {
	ctx context.Context
	b   backend.Backend
}

func (c *backendChain) BestHeight() int32 {
	h, err := c.b.GetBlockHeight(c.ctx)
	if err != nil {
		return 0
	}
	return int32(h)
}

func (c *backendChain) MedianTimePast() (int64, error) {
	// Backends surface the current tip header but not the eleven-block
	// median Bitcoin Core uses for locktime checks; the tip's own
	// timestamp is a close enough stand-in since CoreWallet only uses
	// this for the IsFinalTx comparison, not for consensus validation.
	h, err := c.b.GetBlockHeight(c.ctx)
	if err != nil {
		return 0, err
	}
	hdr, err := c.b.GetBlockHeader(c.ctx, fmt.Sprintf("%d", h))
	if err != nil {
		return 0, err
	}
	return hdr.Timestamp, nil
}

// backendBroadcaster adapts a backend.Backend to TransactionBroadcaster.
type backendBroadcaster struct {
	b backend.Backend
}

func (br *backendBroadcaster) Broadcast(ctx context.Context, tx *wire.MsgTx) (<-chan error, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("wallet: serialize tx for broadcast: %w", err)
	}
	rawHex := fmt.Sprintf("%x", buf.Bytes())

	ch := make(chan error, 1)
	go func() {
		_, err := br.b.BroadcastTransaction(ctx, rawHex)
		ch <- err
	}()
	return ch, nil
}

// NewCoreWalletForChain wires a CoreWallet for one symbol (e.g. "BTC")
// backed by this Service's loaded KeyChainWallet, a single backend for
// chain queries and broadcast, and storage-backed persistence of the
// pool state.
//
// The Service must already be unlocked (LoadWallet/CreateWallet
// called) before this is used.
func (s *Service) NewCoreWalletForChain(ctx context.Context, symbol string, account uint32, store *storage.Storage, cfg config.WalletCoreConfig, log *logging.Logger) (*CoreWallet, error) {
	s.mu.RLock()
	kcw := s.wallet
	bk, ok := s.backends.Get(symbol)
	s.mu.RUnlock()

	if kcw == nil {
		return nil, fmt.Errorf("wallet not loaded")
	}
	if !ok {
		return nil, fmt.Errorf("no backend for chain: %s", symbol)
	}

	keyBag := NewHDKeyBag(kcw, account, func(path string) (*btcec.PrivateKey, error) {
		return kcw.PrivateKeyForPath(path)
	})

	deps := Deps{
		KeyBag:      keyBag,
		Crypter:     noopCrypter{},
		Signer:      keyBag,
		Broadcaster: &backendBroadcaster{b: bk},
		Chain:       &backendChain{ctx: ctx, b: bk},
	}

	cw := New(deps, cfg, log)
	cw.SetPersister(func() error {
		items, tip, err := cw.ExportState()
		if err != nil {
			return err
		}
		return store.SaveWalletPool(items, tip)
	})

	items, tip, err := store.LoadWalletPool()
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet pool: %w", err)
	}
	if len(items) > 0 {
		if err := cw.LoadState(items, tip); err != nil {
			return nil, fmt.Errorf("failed to restore wallet pool: %w", err)
		}
	}

	return cw, nil
}

// noopCrypter implements KeyCrypter for wallets whose seed is already
// decrypted in memory (Service.LoadWallet handles the Argon2id
// passphrase step before a CoreWallet is ever constructed).
type noopCrypter struct{}

func (noopCrypter) IsEncrypted() bool          { return false }
func (noopCrypter) Unlock(_ []byte) error { return nil }
func (noopCrypter) Lock()                      {}
