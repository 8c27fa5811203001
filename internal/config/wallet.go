package config

import "time"

// =============================================================================
// Wallet Core Configuration
// =============================================================================
//
// Tunables for the SPV wallet state machine (transaction pool, confidence
// tracker, composer, maintenance engine). Centralized here per this
// package's rule: no magic numbers scattered through internal/wallet.

// WalletCoreConfig holds the tunables consumed by internal/wallet's core
// state machine.
type WalletCoreConfig struct {
	// DustSatoshis is the minimum output value considered non-dust.
	DustSatoshis uint64

	// EventHorizon is the confirmation depth beyond which a transaction's
	// broadcast-peer set is cleared, since no reorg is expected to reach
	// that far back. Commonly set to coinbase maturity.
	EventHorizon int32

	// CoinbaseMaturity is the number of confirmations before a coinbase
	// output becomes spendable.
	CoinbaseMaturity int32

	// RiskDroppedCacheSize bounds the LRU of pending transactions rejected
	// by the risk analyzer, so re-announcements are dropped without
	// re-running analysis.
	RiskDroppedCacheSize int

	// MaxSimultaneousInputs bounds the number of inputs a single
	// maintenance (key-rotation) transaction may spend.
	MaxSimultaneousInputs int

	// MaxStandardTxSize is the maximum serialized size (bytes) the
	// composer will produce before failing with EXCEEDED_MAX_TX_SIZE.
	MaxStandardTxSize int

	// DefaultFeePerKB is used when a SendRequest does not specify one.
	DefaultFeePerKB uint64

	// CoalescedAutosaveDelay is how long the persistence coalescer waits
	// after a chain-sync-triggered mutation before flushing to disk.
	CoalescedAutosaveDelay time.Duration

	// MinBroadcastPeers is how many peers must echo a transaction before
	// its broadcast future completes.
	MinBroadcastPeers int
}

// DefaultWalletCoreConfig returns the default wallet-core configuration,
// matching Bitcoin mainnet policy values.
func DefaultWalletCoreConfig() WalletCoreConfig {
	return WalletCoreConfig{
		DustSatoshis:           546,
		EventHorizon:           100,
		CoinbaseMaturity:       100,
		RiskDroppedCacheSize:   1000,
		MaxSimultaneousInputs:  600,
		MaxStandardTxSize:      100_000,
		DefaultFeePerKB:        1000,
		CoalescedAutosaveDelay: 10 * time.Second,
		MinBroadcastPeers:      1,
	}
}
