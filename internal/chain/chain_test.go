package chain

import (
	"testing"
)

func TestAllChainsRegistered(t *testing.T) {
	if !IsSupported("BTC") {
		t.Error("expected BTC to be registered")
	}
}

func TestBitcoinMainnet(t *testing.T) {
	params, ok := Get("BTC", Mainnet)
	if !ok {
		t.Fatal("BTC mainnet should be registered")
	}

	if params.Symbol != "BTC" {
		t.Errorf("Symbol = %s, want BTC", params.Symbol)
	}
	if params.Type != ChainTypeBitcoin {
		t.Errorf("Type = %s, want bitcoin", params.Type)
	}
	if params.Decimals != 8 {
		t.Errorf("Decimals = %d, want 8", params.Decimals)
	}
	if params.CoinType != 0 {
		t.Errorf("CoinType = %d, want 0", params.CoinType)
	}
	if params.DefaultPurpose != 84 {
		t.Errorf("DefaultPurpose = %d, want 84 (SegWit)", params.DefaultPurpose)
	}
	if params.Bech32HRP != "bc" {
		t.Errorf("Bech32HRP = %s, want bc", params.Bech32HRP)
	}
	if !params.SupportsSegWit {
		t.Error("BTC should support SegWit")
	}
	if !params.SupportsTaproot {
		t.Error("BTC should support Taproot")
	}
	if params.DefaultAddressType != AddressP2WPKH {
		t.Errorf("DefaultAddressType = %s, want p2wpkh", params.DefaultAddressType)
	}
}

func TestBitcoinTestnet(t *testing.T) {
	params, ok := Get("BTC", Testnet)
	if !ok {
		t.Fatal("BTC testnet should be registered")
	}

	if params.CoinType != 1 {
		t.Errorf("Testnet CoinType = %d, want 1", params.CoinType)
	}
	if params.Bech32HRP != "tb" {
		t.Errorf("Bech32HRP = %s, want tb", params.Bech32HRP)
	}
}

func TestDerivationPath(t *testing.T) {
	params, _ := Get("BTC", Mainnet)

	path := params.DerivationPath(0, 0, 0)
	expected := []uint32{
		84 + 0x80000000, // 84'
		0 + 0x80000000,  // 0'
		0 + 0x80000000,  // 0'
		0,               // 0
		0,               // 0
	}

	if len(path) != len(expected) {
		t.Fatalf("path length = %d, want %d", len(path), len(expected))
	}

	for i, v := range expected {
		if path[i] != v {
			t.Errorf("path[%d] = %d, want %d", i, path[i], v)
		}
	}
}

func TestDerivationPathString(t *testing.T) {
	tests := []struct {
		symbol   string
		network  Network
		account  uint32
		change   uint32
		index    uint32
		expected string
	}{
		{"BTC", Mainnet, 0, 0, 0, "m/84'/0'/0'/0/0"},
		{"BTC", Mainnet, 0, 0, 5, "m/84'/0'/0'/0/5"},
		{"BTC", Mainnet, 1, 0, 0, "m/84'/0'/1'/0/0"},
		{"BTC", Mainnet, 0, 1, 0, "m/84'/0'/0'/1/0"},
		{"BTC", Testnet, 0, 0, 0, "m/84'/1'/0'/0/0"},
	}

	for _, tc := range tests {
		params, ok := Get(tc.symbol, tc.network)
		if !ok {
			t.Errorf("%s %s not registered", tc.symbol, tc.network)
			continue
		}

		path := params.DerivationPathString(tc.account, tc.change, tc.index)
		if path != tc.expected {
			t.Errorf("%s %s: path = %s, want %s", tc.symbol, tc.network, path, tc.expected)
		}
	}
}

func TestListChains(t *testing.T) {
	chains := List()
	if len(chains) < 1 {
		t.Errorf("expected at least 1 chain, got %d", len(chains))
	}
}

func TestListByType(t *testing.T) {
	btcChains := ListByType(ChainTypeBitcoin)
	if len(btcChains) != 1 {
		t.Errorf("expected 1 bitcoin-type chain, got %d: %v", len(btcChains), btcChains)
	}
}

func TestUnsupportedChain(t *testing.T) {
	if IsSupported("INVALID") {
		t.Error("INVALID should not be supported")
	}

	_, ok := Get("INVALID", Mainnet)
	if ok {
		t.Error("Get(INVALID) should return false")
	}
}

func TestAllTestnetsRegistered(t *testing.T) {
	_, ok := Get("BTC", Testnet)
	if !ok {
		t.Error("BTC testnet should be registered")
	}
}
