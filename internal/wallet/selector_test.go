package wallet

import (
	"testing"
	"time"

	"github.com/klingon-tech/spvwallet/internal/config"
)

func TestDefaultCoinSelectorEligibility(t *testing.T) {
	cfg := config.DefaultWalletCoreConfig()
	sel := DefaultCoinSelector{}

	confirmed := newBareTx(1000)
	confirmed.Confidence.setBuilding(100)
	if !sel.IsEligible(confirmed.Outputs[0], cfg) {
		t.Error("confirmed output should be eligible")
	}

	pendingOther := newBareTx(1000)
	pendingOther.Confidence.setPending()
	pendingOther.Source = SourceNetwork
	if sel.IsEligible(pendingOther.Outputs[0], cfg) {
		t.Error("unconfirmed output from someone else should not be eligible by default")
	}

	pendingOwnBroadcast := newBareTx(1000)
	pendingOwnBroadcast.Confidence.setPending()
	pendingOwnBroadcast.Source = SourceSelf
	pendingOwnBroadcast.Confidence.markBroadcastBy("peer1", time.Now())
	if !sel.IsEligible(pendingOwnBroadcast.Outputs[0], cfg) {
		t.Error("our own broadcast-and-echoed change should be eligible")
	}

	pendingOwnNotBroadcast := newBareTx(1000)
	pendingOwnNotBroadcast.Confidence.setPending()
	pendingOwnNotBroadcast.Source = SourceSelf
	if sel.IsEligible(pendingOwnNotBroadcast.Outputs[0], cfg) {
		t.Error("unbroadcast own change should not be eligible yet")
	}
}

func TestDefaultCoinSelectorCoinbaseMaturity(t *testing.T) {
	cfg := config.DefaultWalletCoreConfig()
	sel := DefaultCoinSelector{}

	msgTx := coinbaseMsgTx(5_000_000_000)
	tx := NewTx(msgTx)
	tx.Confidence.setBuilding(100)

	if sel.IsEligible(tx.Outputs[0], cfg) {
		t.Error("freshly confirmed coinbase should not be eligible before maturity")
	}

	for i := int32(1); i < cfg.CoinbaseMaturity; i++ {
		tx.Confidence.incrementDepth()
	}
	if !sel.IsEligible(tx.Outputs[0], cfg) {
		t.Error("coinbase at CoinbaseMaturity depth should be eligible")
	}
}

func TestAllowUnconfirmedCoinSelectorEligibility(t *testing.T) {
	cfg := config.DefaultWalletCoreConfig()
	sel := AllowUnconfirmedCoinSelector{}

	pendingOther := newBareTx(1000)
	pendingOther.Confidence.setPending()
	pendingOther.Source = SourceNetwork
	if !sel.IsEligible(pendingOther.Outputs[0], cfg) {
		t.Error("AllowUnconfirmedCoinSelector should accept any pending output")
	}

	dead := newBareTx(1000)
	dead.Confidence.setDead(nil)
	if sel.IsEligible(dead.Outputs[0], cfg) {
		t.Error("a dead output is never eligible, even with unconfirmed spends allowed")
	}
}

func TestSelectGreedyPrefersDeepestThenLargest(t *testing.T) {
	sel := DefaultCoinSelector{}

	shallow := newBareTx(500)
	shallow.Confidence.setBuilding(100)

	deepSmall := newBareTx(300)
	deepSmall.Confidence.setBuilding(50)
	deepSmall.Confidence.incrementDepth()
	deepSmall.Confidence.incrementDepth()

	deepLarge := newBareTx(900)
	deepLarge.Confidence.setBuilding(50)
	deepLarge.Confidence.incrementDepth()
	deepLarge.Confidence.incrementDepth()

	candidates := []*Output{shallow.Outputs[0], deepSmall.Outputs[0], deepLarge.Outputs[0]}

	selection, err := sel.Select(1000, candidates)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(selection.Gathered) != 2 {
		t.Fatalf("Gathered = %d outputs, want 2", len(selection.Gathered))
	}
	// Deepest-first, ties broken by larger value: deepLarge (900) then
	// deepSmall (300) should be picked before the shallower 500 output.
	if selection.Gathered[0] != deepLarge.Outputs[0] {
		t.Error("expected the deepest+largest output to be gathered first")
	}
	if selection.Gathered[1] != deepSmall.Outputs[0] {
		t.Error("expected the second-deepest output gathered second")
	}
	if selection.Total != 1200 {
		t.Errorf("Total = %d, want 1200", selection.Total)
	}
}

func TestSelectGreedyInsufficientFunds(t *testing.T) {
	sel := DefaultCoinSelector{}
	small := newBareTx(100)
	small.Confidence.setBuilding(100)

	_, err := sel.Select(1000, []*Output{small.Outputs[0]})
	if err == nil {
		t.Fatal("Select() should fail when candidates can't cover target")
	}
	insuff, ok := err.(*InsufficientFundsError)
	if !ok {
		t.Fatalf("error type = %T, want *InsufficientFundsError", err)
	}
	if insuff.Target != 1000 || insuff.Available != 100 {
		t.Errorf("InsufficientFundsError = %+v, want Target=1000 Available=100", insuff)
	}
}

func TestKeyAgeCoinSelectorEligibility(t *testing.T) {
	cfg := config.DefaultWalletCoreConfig()
	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	oldScript := []byte{0x00, 0x14, 0x01}
	recentScript := []byte{0x00, 0x14, 0x02}

	old := txWithScript(1000, oldScript)
	old.Confidence.setBuilding(100)
	recent := txWithScript(1000, recentScript)
	recent.Confidence.setBuilding(100)

	sel := KeyAgeCoinSelector{
		Cutoff: cutoff,
		KeyAgeOf: func(pkScript []byte) time.Time {
			if string(pkScript) == string(oldScript) {
				return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			}
			return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		},
	}

	if !sel.IsEligible(old.Outputs[0], cfg) {
		t.Error("output on a pre-cutoff key should be eligible for rotation")
	}
	if sel.IsEligible(recent.Outputs[0], cfg) {
		t.Error("output on a post-cutoff key should not be eligible for rotation")
	}
}

func txWithScript(value int64, pkScript []byte) *Tx {
	msgTx := wireMsgTxWithOutput(value, pkScript)
	return NewTx(msgTx)
}
