package wallet

import "testing"

func TestBalanceEstimatedCountsEveryUnspentOutput(t *testing.T) {
	tw := newTestWallet()
	tw.addConfirmedUTXO(500_000, 6)
	tw.addUnconfirmedOwnChange(100_000)

	if got := tw.Balance(BalanceEstimated); got != 600_000 {
		t.Errorf("Balance(BalanceEstimated) = %d, want 600000", got)
	}
}

func TestBalanceAvailableExcludesUnconfirmedFromOthers(t *testing.T) {
	tw := newTestWallet()
	tw.addConfirmedUTXO(500_000, 6)

	other := tw.addUnconfirmedOwnChange(100_000)
	other.Source = SourceNetwork

	if got := tw.Balance(BalanceAvailable); got != 500_000 {
		t.Errorf("Balance(BalanceAvailable) = %d, want 500000 (excludes unconfirmed third-party output)", got)
	}
}

func TestBalanceAvailableIncludesOwnBroadcastPending(t *testing.T) {
	tw := newTestWallet()
	tw.addUnconfirmedOwnChange(100_000)

	if got := tw.Balance(BalanceAvailable); got != 100_000 {
		t.Errorf("Balance(BalanceAvailable) = %d, want 100000 (our own pending change counts)", got)
	}
}

func TestBalanceEstimatedSpendableRequiresSelectorEligibility(t *testing.T) {
	tw := newTestWallet()
	tw.addConfirmedUTXO(500_000, 6)

	otherPending := tw.addUnconfirmedOwnChange(100_000)
	otherPending.Source = SourceNetwork

	if got := tw.Balance(BalanceEstimatedSpendable); got != 500_000 {
		t.Errorf("Balance(BalanceEstimatedSpendable) = %d, want 500000", got)
	}

	tw.SetSelector(AllowUnconfirmedCoinSelector{})
	if got := tw.Balance(BalanceEstimatedSpendable); got != 600_000 {
		t.Errorf("Balance(BalanceEstimatedSpendable) after swapping selectors = %d, want 600000", got)
	}
}

func TestBalanceIgnoresSpentOutputs(t *testing.T) {
	tw := newTestWallet()
	utxo := tw.addConfirmedUTXO(500_000, 6)
	utxo.Outputs[0].markAsSpent(&Input{})

	if got := tw.Balance(BalanceEstimated); got != 0 {
		t.Errorf("Balance(BalanceEstimated) = %d, want 0 once the only output is spent", got)
	}
}

func TestIsConsistentOrThrowPassesOnFreshWallet(t *testing.T) {
	tw := newTestWallet()
	tw.addConfirmedUTXO(500_000, 6)
	tw.addUnconfirmedOwnChange(100_000)

	if err := tw.IsConsistentOrThrow(); err != nil {
		t.Errorf("IsConsistentOrThrow() = %v, want nil", err)
	}
}

func TestIsConsistentOrThrowCatchesBuildingHeightMismatch(t *testing.T) {
	tw := newTestWallet()
	tx := tw.addConfirmedUTXO(500_000, 6)

	// Corrupt the invariant directly: a BUILDING tx must carry a
	// non-negative appearedAtHeight.
	tx.Confidence.appearedAtHeight = -1

	if err := tw.IsConsistentOrThrow(); err == nil {
		t.Error("IsConsistentOrThrow() = nil, want an error for a BUILDING tx with no recorded height")
	}
}

func TestLastSeenBlockDefaultsToZeroValue(t *testing.T) {
	tw := newTestWallet()
	if got := tw.LastSeenBlock(); got.Height != 0 {
		t.Errorf("LastSeenBlock().Height = %d, want 0 before any block is processed", got.Height)
	}
}
