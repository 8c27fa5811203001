package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/klingon-tech/spvwallet/internal/chain"
)

// These helpers narrow KeyChainWallet (which spans every chain family
// this repo knows about) down to the Bitcoin-only surface the core
// wallet state machine needs: a btcutil.Address rather than a bare
// string, and a way to recognize scripts it has already issued.

func btcParams(network chain.Network) *chaincfg.Params {
	if network == chain.Testnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

func derivationPath(account, change, index uint32) string {
	return fmt.Sprintf("m/84'/0'/%d'/%d/%d", account, change, index)
}

// DeriveAddressForChain derives a native SegWit (P2WPKH) address for
// account/change/index as a decoded btcutil.Address, for callers that
// need to build a PkScript rather than just display a string.
func (w *KeyChainWallet) DeriveAddressForChain(account uint32, isChange bool, index uint32) (btcutil.Address, error) {
	change := uint32(0)
	if isChange {
		change = 1
	}
	key, err := w.DeriveKey(84, 0, account, change, index)
	if err != nil {
		return nil, err
	}
	pubKey, err := key.ECPubKey()
	if err != nil {
		return nil, err
	}
	pubKeyHash := btcutil.Hash160(pubKey.SerializeCompressed())
	return btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, btcParams(w.network))
}

// OwnsScript reports whether pkScript matches a P2WPKH address derived
// from this wallet's Bitcoin account within [0, gapLimit) on either
// chain (external or change).
func (w *KeyChainWallet) OwnsScript(account uint32, pkScript []byte, gapLimit uint32) bool {
	_, err := w.FindPathForScript(account, pkScript, gapLimit)
	return err == nil
}

// FindPathForScript brute-forces the derivation path that produced
// pkScript, scanning both chains up to gapLimit. This mirrors how the
// teacher's address-based UTXO scan (utxo_sync.go) has no choice but
// to walk a bounded index range: BIP32 derivation is one-way.
func (w *KeyChainWallet) FindPathForScript(account uint32, pkScript []byte, gapLimit uint32) (string, error) {
	for _, change := range []uint32{0, 1} {
		for index := uint32(0); index < gapLimit; index++ {
			addr, err := w.DeriveAddressForChain(account, change == 1, index)
			if err != nil {
				continue
			}
			script, err := txscript.PayToAddrScript(addr)
			if err != nil {
				continue
			}
			if scriptsEqual(script, pkScript) {
				return derivationPath(account, change, index), nil
			}
		}
	}
	return "", ErrKeyNotFound
}

// PrivateKeyForPath reverses derivationPath, deriving the private key
// at the given BIP84 m/84'/0'/account'/change/index path. It exists
// so a KeyBag built around path strings (see NewHDKeyBag) doesn't need
// its own copy of the BIP32 walk.
func (w *KeyChainWallet) PrivateKeyForPath(path string) (*btcec.PrivateKey, error) {
	var account, change, index uint32
	if _, err := fmt.Sscanf(path, "m/84'/0'/%d'/%d/%d", &account, &change, &index); err != nil {
		return nil, fmt.Errorf("unrecognized derivation path %q: %w", path, err)
	}
	key, err := w.DeriveKey(84, 0, account, change, index)
	if err != nil {
		return nil, err
	}
	return key.ECPrivKey()
}

func scriptsEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// signInputForScript signs a P2WPKH input. The core wallet only ever
// issues P2WPKH change/receive scripts (see DeriveAddressForChain), so
// unlike the teacher's BuildAndSignTx it does not need the P2PKH/P2TR
// branches; composer.go's SendRequest can still pay out to any address
// type, since that only affects the destination pkScript, not how our
// own inputs are signed.
func signInputForScript(tx *wire.MsgTx, idx int, priv *btcec.PrivateKey, prevScript []byte, prevValue int64) error {
	prevOuts := map[wire.OutPoint]*wire.TxOut{
		tx.TxIn[idx].PreviousOutPoint: wire.NewTxOut(prevValue, prevScript),
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	witness, err := txscript.WitnessSignature(
		tx, sigHashes, idx, prevValue, prevScript, txscript.SigHashAll, priv, true,
	)
	if err != nil {
		return fmt.Errorf("sign input %d: %w", idx, err)
	}
	tx.TxIn[idx].Witness = witness
	return nil
}
