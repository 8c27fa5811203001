package wallet

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// Errors returned across the external-collaborator boundary. Kept as
// package vars, not sentinel types, matching internal/backend's style.
var (
	ErrKeyNotFound    = errors.New("wallet: key not found for address")
	ErrWalletLocked   = errors.New("wallet: key bag is locked")
	ErrNoPeersToBroadcast = errors.New("wallet: no peers available to broadcast to")
)

// KeyBag is the wallet core's only window onto key material. It never
// sees private keys directly except through Signer; everything else it
// needs is addresses and scripts to watch for.
type KeyBag interface {
	// FreshAddress returns the next unused address for the given
	// purpose (external receive or internal change), advancing the
	// bag's internal index.
	FreshAddress(changeAddress bool) (btcutil.Address, error)

	// CurrentAddress returns the most recently issued address for the
	// given chain without advancing the index, so a still-unused
	// address can be shown again.
	CurrentAddress(changeAddress bool) (btcutil.Address, error)

	// IsAddressMine reports whether the bag can derive the private key
	// for the given script, i.e. whether an output paying it belongs
	// to this wallet.
	IsAddressMine(pkScript []byte) bool

	// NumKeys reports how many keys have been issued on the external
	// or change chain.
	NumKeys(changeAddress bool) int
}

// KeyCrypter optionally protects the bag's keys with a user passphrase.
// A bag with no encryption returns ErrWalletLocked from neither method.
type KeyCrypter interface {
	IsEncrypted() bool
	Unlock(passphrase []byte) error
	Lock()
}

// Signer signs transaction inputs the wallet owns. It is handed
// scripts and prevouts rather than keys directly so hardware-backed
// implementations are possible.
type Signer interface {
	// SignInput signs input index idx of tx, given the value and
	// pkScript of the output it spends. It mutates tx in place.
	SignInput(ctx context.Context, tx *wire.MsgTx, idx int, prevScript []byte, prevValue int64) error
}

// TransactionBroadcaster hands a finished transaction to the network
// layer. The returned channel receives one value, nil on success, once
// the broadcast attempt has finished (backendBroadcaster: when the
// backend call returns); it says nothing about confirmation.
type TransactionBroadcaster interface {
	Broadcast(ctx context.Context, tx *wire.MsgTx) (<-chan error, error)
}

// BlockChain is the wallet core's view of chain tip state, used to
// feed the risk analyzer when a pending transaction arrives. It never hands
// back full blocks; block contents arrive through Reorganize/
// ReceiveFromBlock instead.
type BlockChain interface {
	BestHeight() int32
	MedianTimePast() (int64, error)
}

// HDKeyBag adapts the teacher-derived BIP32 key chain to KeyBag and
// Signer, bridging the external deriver to this package's core state
// machine.
type HDKeyBag struct {
	kc      *KeyChainWallet
	privKey func(path string) (*btcec.PrivateKey, error)

	externalIndex uint32
	changeIndex   uint32
	account       uint32
}

// NewHDKeyBag wraps kc. privKeyForPath resolves a derivation path to a
// private key; it is supplied by the caller (NewCoreWalletForChain
// passes KeyChainWallet.PrivateKeyForPath) rather than embedded here, since key
// unlocking/decryption policy belongs to the service layer, not the
// core state machine.
func NewHDKeyBag(kc *KeyChainWallet, account uint32, privKeyForPath func(path string) (*btcec.PrivateKey, error)) *HDKeyBag {
	return &HDKeyBag{kc: kc, account: account, privKey: privKeyForPath}
}

func (b *HDKeyBag) path(changeAddress bool, index uint32) string {
	change := uint32(0)
	if changeAddress {
		change = 1
	}
	return derivationPath(b.account, change, index)
}

func (b *HDKeyBag) FreshAddress(changeAddress bool) (btcutil.Address, error) {
	var idx uint32
	if changeAddress {
		idx = b.changeIndex
		b.changeIndex++
	} else {
		idx = b.externalIndex
		b.externalIndex++
	}
	return b.kc.DeriveAddressForChain(b.account, changeAddress, idx)
}

func (b *HDKeyBag) CurrentAddress(changeAddress bool) (btcutil.Address, error) {
	idx := b.externalIndex
	if changeAddress {
		idx = b.changeIndex
	}
	if idx > 0 {
		idx--
	}
	return b.kc.DeriveAddressForChain(b.account, changeAddress, idx)
}

func (b *HDKeyBag) IsAddressMine(pkScript []byte) bool {
	return b.kc.OwnsScript(b.account, pkScript, maxGapLimit(b.externalIndex, b.changeIndex))
}

func (b *HDKeyBag) NumKeys(changeAddress bool) int {
	if changeAddress {
		return int(b.changeIndex)
	}
	return int(b.externalIndex)
}

func (b *HDKeyBag) SignInput(ctx context.Context, tx *wire.MsgTx, idx int, prevScript []byte, prevValue int64) error {
	path, err := b.kc.FindPathForScript(b.account, prevScript, maxGapLimit(b.externalIndex, b.changeIndex))
	if err != nil {
		return err
	}
	priv, err := b.privKey(path)
	if err != nil {
		return err
	}
	return signInputForScript(tx, idx, priv, prevScript, prevValue)
}

func maxGapLimit(external, change uint32) uint32 {
	limit := external
	if change > limit {
		limit = change
	}
	return limit + 50
}
