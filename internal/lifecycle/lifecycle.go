// Package lifecycle distributes app-state and connectivity transitions to
// subscribers. The platform shell feeds transitions in; consumers hold
// explicit subscription handles and release them on teardown.
package lifecycle

import (
	"sync"
)

// AppState is the foreground/background state of the app shell.
type AppState int

const (
	// StateActive means the app is foregrounded and interactive.
	StateActive AppState = iota
	// StateInactive means the app is transitioning (e.g. app switcher).
	StateInactive
	// StateBackground means the app is fully backgrounded.
	StateBackground
)

// String returns the state name.
func (s AppState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	case StateBackground:
		return "background"
	default:
		return "unknown"
	}
}

// Foreground reports whether the state counts as foregrounded.
func (s AppState) Foreground() bool { return s == StateActive }

// Connectivity is the last observed network snapshot.
type Connectivity struct {
	Connected bool
	Reachable bool
}

// Online reports whether the snapshot counts as online: connected AND
// internet reachable. This predicate feeds the retry gate and the offline
// indicator.
func (c Connectivity) Online() bool { return c.Connected && c.Reachable }

// AppStateFunc receives the previous and new app state.
type AppStateFunc func(prev, next AppState)

// ConnectivityFunc receives the previous and new connectivity snapshot.
type ConnectivityFunc func(prev, next Connectivity)

// Subscription is a registration handle. Cancel releases it; cancelling twice
// is a no-op.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel releases the subscription.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Hub holds the current app-state and connectivity snapshots and fans
// transitions out to subscribers. Callbacks run synchronously on the feeding
// goroutine, in registration order, outside the hub lock.
type Hub struct {
	mu        sync.Mutex
	nextID    int
	state     AppState
	conn      Connectivity
	stateSubs map[int]AppStateFunc
	connSubs  map[int]ConnectivityFunc
}

// NewHub returns a Hub starting in StateActive with an offline snapshot.
func NewHub() *Hub {
	return &Hub{
		state:     StateActive,
		stateSubs: make(map[int]AppStateFunc),
		connSubs:  make(map[int]ConnectivityFunc),
	}
}

// AppState returns the current app state.
func (h *Hub) AppState() AppState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Connectivity returns the last connectivity snapshot.
func (h *Hub) Connectivity() Connectivity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn
}

// Online reports whether the last snapshot counts as online.
func (h *Hub) Online() bool {
	return h.Connectivity().Online()
}

// SetAppState records a new app state and notifies subscribers. Setting the
// current state again notifies nobody.
func (h *Hub) SetAppState(next AppState) {
	h.mu.Lock()
	prev := h.state
	if prev == next {
		h.mu.Unlock()
		return
	}
	h.state = next
	subs := make([]AppStateFunc, 0, len(h.stateSubs))
	for id := 0; id < h.nextID; id++ {
		if fn, ok := h.stateSubs[id]; ok {
			subs = append(subs, fn)
		}
	}
	h.mu.Unlock()
	for _, fn := range subs {
		fn(prev, next)
	}
}

// SetConnectivity records a new connectivity snapshot and notifies
// subscribers on change.
func (h *Hub) SetConnectivity(next Connectivity) {
	h.mu.Lock()
	prev := h.conn
	if prev == next {
		h.mu.Unlock()
		return
	}
	h.conn = next
	subs := make([]ConnectivityFunc, 0, len(h.connSubs))
	for id := 0; id < h.nextID; id++ {
		if fn, ok := h.connSubs[id]; ok {
			subs = append(subs, fn)
		}
	}
	h.mu.Unlock()
	for _, fn := range subs {
		fn(prev, next)
	}
}

// SubscribeAppState registers fn for app-state transitions.
func (h *Hub) SubscribeAppState(fn AppStateFunc) *Subscription {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.stateSubs[id] = fn
	h.mu.Unlock()
	return &Subscription{cancel: func() {
		h.mu.Lock()
		delete(h.stateSubs, id)
		h.mu.Unlock()
	}}
}

// SubscribeConnectivity registers fn for connectivity transitions.
func (h *Hub) SubscribeConnectivity(fn ConnectivityFunc) *Subscription {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.connSubs[id] = fn
	h.mu.Unlock()
	return &Subscription{cancel: func() {
		h.mu.Lock()
		delete(h.connSubs, id)
		h.mu.Unlock()
	}}
}
