package wallet

import (
	"testing"
	"time"
)

func TestListenerFabricDispatchesToMatchingKindOnly(t *testing.T) {
	f := NewListenerFabric()

	var confidenceFired, coinsFired int
	f.Register(EventConfidenceChanged, CallerThread, func(event interface{}) { confidenceFired++ })
	f.Register(EventCoinsReceived, CallerThread, func(event interface{}) { coinsFired++ })

	tx := newBareTx(1000)
	f.FireConfidenceChanged(tx, []ChangeReason{ReasonType})

	if confidenceFired != 1 {
		t.Errorf("confidenceFired = %d, want 1", confidenceFired)
	}
	if coinsFired != 0 {
		t.Errorf("coinsFired = %d, want 0 (should not receive a confidence event)", coinsFired)
	}
}

func TestListenerFabricFiresOnePerReason(t *testing.T) {
	f := NewListenerFabric()
	var reasons []ChangeReason
	f.Register(EventConfidenceChanged, CallerThread, func(event interface{}) {
		reasons = append(reasons, event.(ConfidenceChangedEvent).Reason)
	})

	tx := newBareTx(1000)
	f.FireConfidenceChanged(tx, []ChangeReason{ReasonDepth, ReasonSeenPeers})

	if len(reasons) != 2 {
		t.Fatalf("len(reasons) = %d, want 2", len(reasons))
	}
	if reasons[0] != ReasonDepth || reasons[1] != ReasonSeenPeers {
		t.Errorf("reasons = %v, want [ReasonDepth ReasonSeenPeers] in order", reasons)
	}
}

func TestListenerFabricNoChangedEventWhenNoReasons(t *testing.T) {
	f := NewListenerFabric()
	var changedFired bool
	f.Register(EventChanged, CallerThread, func(event interface{}) { changedFired = true })

	tx := newBareTx(1000)
	f.FireConfidenceChanged(tx, nil)

	if changedFired {
		t.Error("EventChanged should not fire when no reasons changed")
	}
}

func TestListenerFabricUnregisterStopsDelivery(t *testing.T) {
	f := NewListenerFabric()
	var fired int
	id := f.Register(EventCoinsReceived, CallerThread, func(event interface{}) { fired++ })

	f.FireCoinsReceived(newBareTx(1000), 500)
	f.Unregister(id)
	f.FireCoinsReceived(newBareTx(1000), 500)

	if fired != 1 {
		t.Errorf("fired = %d, want 1 (no delivery after Unregister)", fired)
	}
}

func TestListenerFabricUserThreadDeliversAsynchronously(t *testing.T) {
	f := NewListenerFabric()
	done := make(chan struct{}, 1)
	f.Register(EventCoinsSent, UserThread, func(event interface{}) {
		done <- struct{}{}
	})

	f.FireCoinsSent(newBareTx(1000), 250)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("UserThread listener never received the event")
	}
}

func TestListenerFabricReorgSuppressionCoalescesChangedEvent(t *testing.T) {
	f := NewListenerFabric()
	var changedCount int
	f.Register(EventChanged, CallerThread, func(event interface{}) { changedCount++ })

	f.BeginReorgSuppression()
	tx := newBareTx(1000)
	f.FireConfidenceChanged(tx, []ChangeReason{ReasonDepth})
	f.FireConfidenceChanged(tx, []ChangeReason{ReasonDepth})
	if changedCount != 0 {
		t.Errorf("changedCount = %d during suppression, want 0", changedCount)
	}
	f.EndReorgSuppression()

	if changedCount != 0 {
		t.Errorf("changedCount = %d, want 0 (EndReorgSuppression does not itself fire EventChanged)", changedCount)
	}

	f.FireReorganize(100)
	if changedCount != 1 {
		t.Errorf("changedCount = %d after FireReorganize, want 1", changedCount)
	}
}

func TestListenerFabricFireReorganizeCarriesSplitHeight(t *testing.T) {
	f := NewListenerFabric()
	var got int32 = -1
	f.Register(EventReorganize, CallerThread, func(event interface{}) {
		got = event.(ReorganizeEvent).SplitHeight
	})

	f.FireReorganize(54321)
	if got != 54321 {
		t.Errorf("ReorganizeEvent.SplitHeight = %d, want 54321", got)
	}
}
