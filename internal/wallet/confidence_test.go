package wallet

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func TestConfidenceSetPending(t *testing.T) {
	c := newConfidence(chainhash.Hash{})
	reasons := c.setPending()
	if len(reasons) != 1 || reasons[0] != ReasonType {
		t.Fatalf("setPending() reasons = %v, want [ReasonType]", reasons)
	}
	if c.Type() != ConfPending {
		t.Errorf("Type() = %v, want ConfPending", c.Type())
	}

	// Re-setting the same state is a no-op: no listener should be
	// notified a second time for nothing changing.
	if reasons := c.setPending(); reasons != nil {
		t.Errorf("setPending() twice returned %v, want nil", reasons)
	}
}

func TestConfidenceSetBuildingAndIncrementDepth(t *testing.T) {
	c := newConfidence(chainhash.Hash{})
	reasons := c.setBuilding(500)
	if c.Type() != ConfBuilding {
		t.Fatalf("Type() = %v, want ConfBuilding", c.Type())
	}
	if c.Depth() != 1 {
		t.Fatalf("Depth() = %d, want 1", c.Depth())
	}
	if c.AppearedAtHeight() != 500 {
		t.Fatalf("AppearedAtHeight() = %d, want 500", c.AppearedAtHeight())
	}
	if len(reasons) != 2 {
		t.Fatalf("setBuilding() reasons = %v, want 2 entries", reasons)
	}

	c.incrementDepth()
	c.incrementDepth()
	if c.Depth() != 3 {
		t.Errorf("Depth() after two increments = %d, want 3", c.Depth())
	}
}

func TestConfidenceIncrementDepthOnlyWhileBuilding(t *testing.T) {
	c := newConfidence(chainhash.Hash{})
	c.setPending()
	if reasons := c.incrementDepth(); reasons != nil {
		t.Errorf("incrementDepth() on a pending tx = %v, want nil", reasons)
	}
}

func TestConfidenceSetInConflictAndDead(t *testing.T) {
	c := newConfidence(chainhash.Hash{})
	c.setPending()

	overriding := chainhash.Hash{0x01}
	c.setInConflict(overriding)
	if c.Type() != ConfInConflict {
		t.Fatalf("Type() = %v, want ConfInConflict", c.Type())
	}
	if got := c.OverridingTx(); got == nil || *got != overriding {
		t.Fatalf("OverridingTx() = %v, want %v", got, overriding)
	}

	c.setDead(&overriding)
	if c.Type() != ConfDead {
		t.Fatalf("Type() = %v, want ConfDead", c.Type())
	}
	if c.Depth() != 0 {
		t.Errorf("Depth() after setDead = %d, want 0", c.Depth())
	}
}

func TestConfidenceRewindToPending(t *testing.T) {
	c := newConfidence(chainhash.Hash{})
	c.setBuilding(500)
	c.incrementDepth()

	reasons := c.rewindToPending()
	if c.Type() != ConfPending {
		t.Fatalf("Type() after rewind = %v, want ConfPending", c.Type())
	}
	if c.Depth() != 0 || c.AppearedAtHeight() != -1 {
		t.Errorf("depth/height after rewind = %d/%d, want 0/-1", c.Depth(), c.AppearedAtHeight())
	}
	if len(reasons) != 2 {
		t.Fatalf("rewindToPending() reasons = %v, want 2 entries", reasons)
	}
}

func TestConfidenceSubtractDepth(t *testing.T) {
	c := newConfidence(chainhash.Hash{})
	c.setBuilding(500)
	for i := 0; i < 5; i++ {
		c.incrementDepth()
	}
	if c.Depth() != 6 {
		t.Fatalf("Depth() = %d, want 6", c.Depth())
	}

	c.subtractDepth(3)
	if c.Depth() != 3 {
		t.Errorf("Depth() after subtractDepth(3) = %d, want 3", c.Depth())
	}

	// Never goes negative.
	c.subtractDepth(100)
	if c.Depth() != 0 {
		t.Errorf("Depth() after over-subtracting = %d, want 0 (floored)", c.Depth())
	}
}

func TestConfidenceMarkBroadcastBy(t *testing.T) {
	c := newConfidence(chainhash.Hash{})
	reasons := c.markBroadcastBy("peer1", time.Now())
	if len(reasons) != 1 || reasons[0] != ReasonSeenPeers {
		t.Fatalf("markBroadcastBy() first time = %v, want [ReasonSeenPeers]", reasons)
	}
	if c.NumBroadcastPeers() != 1 {
		t.Fatalf("NumBroadcastPeers() = %d, want 1", c.NumBroadcastPeers())
	}

	// A repeat relay from the same peer updates the timestamp but isn't
	// a new reason to notify listeners.
	if reasons := c.markBroadcastBy("peer1", time.Now()); reasons != nil {
		t.Errorf("markBroadcastBy() repeat = %v, want nil", reasons)
	}

	c.markBroadcastBy("peer2", time.Now())
	if c.NumBroadcastPeers() != 2 {
		t.Errorf("NumBroadcastPeers() = %d, want 2", c.NumBroadcastPeers())
	}

	c.clearBroadcastPeers()
	if c.NumBroadcastPeers() != 0 {
		t.Errorf("NumBroadcastPeers() after clear = %d, want 0", c.NumBroadcastPeers())
	}
}

func TestConfidenceSnapshotRestore(t *testing.T) {
	c := newConfidence(chainhash.Hash{})
	c.setBuilding(777)
	c.incrementDepth()

	snap := c.Snapshot()

	restored := newConfidence(chainhash.Hash{})
	restored.Restore(snap)
	if restored.Type() != ConfBuilding {
		t.Errorf("Type() after restore = %v, want ConfBuilding", restored.Type())
	}
	if restored.Depth() != 2 {
		t.Errorf("Depth() after restore = %d, want 2", restored.Depth())
	}
	if restored.AppearedAtHeight() != 777 {
		t.Errorf("AppearedAtHeight() after restore = %d, want 777", restored.AppearedAtHeight())
	}
}

func TestChangeReasonString(t *testing.T) {
	cases := map[ChangeReason]string{
		ReasonType:      "type",
		ReasonDepth:     "depth",
		ReasonSeenPeers: "seen_peers",
		ReasonPurpose:   "purpose",
	}
	for reason, want := range cases {
		if got := reason.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", reason, got, want)
		}
	}
}
