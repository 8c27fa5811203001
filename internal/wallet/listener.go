package wallet

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Executor chooses which goroutine a listener callback runs on.
type Executor int

const (
	// CallerThread runs the callback synchronously, on whatever
	// goroutine triggered the event (usually while the wallet lock is
	// held). Fast, order-preserving, but a slow listener stalls the
	// wallet.
	CallerThread Executor = iota
	// UserThread dispatches the callback on a dedicated per-listener
	// goroutine with its own FIFO queue, so slow UI code never blocks
	// wallet internals. Events for one listener are still delivered in
	// order; different listeners are independent.
	UserThread
)

// EventKind identifies which event a listener registered for.
type EventKind int

const (
	EventConfidenceChanged EventKind = iota
	EventCoinsReceived
	EventCoinsSent
	EventReorganize
	EventScriptsChanged
	EventChanged // fired after any of the above, coalesced (see ListenerFabric.maybeFireChanged)
)

// ConfidenceChangedEvent is delivered to EventConfidenceChanged
// listeners.
type ConfidenceChangedEvent struct {
	Tx     *Tx
	Reason ChangeReason
}

// CoinsEvent is delivered to EventCoinsReceived/EventCoinsSent
// listeners.
type CoinsEvent struct {
	Tx    *Tx
	Value int64
}

// ReorganizeEvent is delivered to EventReorganize listeners once a
// chain-split replay completes.
type ReorganizeEvent struct {
	SplitHeight int32
}

type registration struct {
	id       uuid.UUID
	kind     EventKind
	executor Executor
	callback func(event interface{})

	// queue and done back a UserThread registration's private worker
	// goroutine.
	queue chan interface{}
	done  chan struct{}
}

// ListenerFabric fans wallet state-machine events out to registered
// callbacks, matching this repo's existing OnPeerConnected-style
// registration pattern but generalized to several event kinds and two
// dispatch modes.
type ListenerFabric struct {
	mu            sync.RWMutex
	registrations map[uuid.UUID]*registration

	// suppressChanged is incremented while a reorg replay is in
	// flight, so per-tx EventChanged notifications coalesce into the
	// single EventReorganize notification fired at the end instead of
	// flooding listeners with one event per replayed block.
	suppressChanged int32
}

// NewListenerFabric creates an empty fabric.
func NewListenerFabric() *ListenerFabric {
	return &ListenerFabric{registrations: make(map[uuid.UUID]*registration)}
}

// Register adds a callback for events of kind, dispatched per
// executor. Returns a handle for Unregister.
func (f *ListenerFabric) Register(kind EventKind, executor Executor, callback func(event interface{})) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := &registration{id: uuid.New(), kind: kind, executor: executor, callback: callback}
	if executor == UserThread {
		r.queue = make(chan interface{}, 64)
		r.done = make(chan struct{})
		go r.run()
	}
	f.registrations[r.id] = r
	return r.id
}

// Unregister removes a listener. Safe to call from within the
// listener's own callback.
func (f *ListenerFabric) Unregister(id uuid.UUID) {
	f.mu.Lock()
	r, ok := f.registrations[id]
	if ok {
		delete(f.registrations, id)
	}
	f.mu.Unlock()

	if ok && r.queue != nil {
		close(r.queue)
	}
}

func (r *registration) run() {
	for event := range r.queue {
		r.callback(event)
	}
	close(r.done)
}

func (f *ListenerFabric) dispatch(kind EventKind, event interface{}) {
	f.mu.RLock()
	targets := make([]*registration, 0, len(f.registrations))
	for _, r := range f.registrations {
		if r.kind == kind {
			targets = append(targets, r)
		}
	}
	f.mu.RUnlock()

	for _, r := range targets {
		switch r.executor {
		case CallerThread:
			r.callback(event)
		case UserThread:
			select {
			case r.queue <- event:
			default:
				// Queue full: drop rather than block the caller
				// (typically the wallet lock holder). A stalled UI
				// listener should not be able to wedge the wallet.
			}
		}
	}
}

// FireConfidenceChanged notifies EventConfidenceChanged listeners for
// each reason tx's confidence changed, then fires the coalesced
// EventChanged unless a reorg replay is suppressing it.
func (f *ListenerFabric) FireConfidenceChanged(tx *Tx, reasons []ChangeReason) {
	for _, reason := range reasons {
		f.dispatch(EventConfidenceChanged, ConfidenceChangedEvent{Tx: tx, Reason: reason})
	}
	if len(reasons) > 0 {
		f.maybeFireChanged()
	}
}

func (f *ListenerFabric) FireCoinsReceived(tx *Tx, value int64) {
	f.dispatch(EventCoinsReceived, CoinsEvent{Tx: tx, Value: value})
	f.maybeFireChanged()
}

func (f *ListenerFabric) FireCoinsSent(tx *Tx, value int64) {
	f.dispatch(EventCoinsSent, CoinsEvent{Tx: tx, Value: value})
	f.maybeFireChanged()
}

func (f *ListenerFabric) FireScriptsChanged() {
	f.dispatch(EventScriptsChanged, struct{}{})
	f.maybeFireChanged()
}

// FireReorganize notifies EventReorganize listeners and then always
// fires EventChanged directly, without the suppression check
// maybeFireChanged applies, so it is delivered even while a reorg's
// suppression window is still open.
func (f *ListenerFabric) FireReorganize(splitHeight int32) {
	f.dispatch(EventReorganize, ReorganizeEvent{SplitHeight: splitHeight})
	f.dispatch(EventChanged, struct{}{})
}

func (f *ListenerFabric) maybeFireChanged() {
	if atomic.LoadInt32(&f.suppressChanged) > 0 {
		return
	}
	f.dispatch(EventChanged, struct{}{})
}

// BeginReorgSuppression pauses per-event EventChanged notifications.
// Pair with EndReorgSuppression.
func (f *ListenerFabric) BeginReorgSuppression() {
	atomic.AddInt32(&f.suppressChanged, 1)
}

// EndReorgSuppression resumes EventChanged notifications.
func (f *ListenerFabric) EndReorgSuppression() {
	atomic.AddInt32(&f.suppressChanged, -1)
}
