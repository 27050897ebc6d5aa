// Package session owns the process's single identity session: the
// lifecycle state machine binding an authenticated identity to at most
// one account, and the hub that distributes session changes to
// observers.
package session

import (
	"sync"

	"github.com/guildhall-app/guildhall/internal/db/models"
)

// State is the session lifecycle state.
type State int

const (
	// StateSignedOut means no identity is bound to the session.
	StateSignedOut State = iota
	// StateAuthenticating means a provider sign-in is in flight.
	StateAuthenticating
	// StateRedirectPending means a redirect handshake awaits its
	// browser round-trip, possibly across a process restart.
	StateRedirectPending
	// StateResolving means the identity is being mapped to an account.
	StateResolving
	// StateSignedIn means an account is bound to the session.
	StateSignedIn
)

// String returns the state's wire-friendly name.
func (s State) String() string {
	switch s {
	case StateSignedOut:
		return "signed_out"
	case StateAuthenticating:
		return "authenticating"
	case StateRedirectPending:
		return "redirect_pending"
	case StateResolving:
		return "resolving"
	case StateSignedIn:
		return "signed_in"
	default:
		return "unknown"
	}
}

// Listener observes session changes. It receives the account on sign-in
// and nil on sign-out.
type Listener func(*models.Account)

type hubListener struct {
	id int
	fn Listener
}

// ListenerHub distributes session transitions to subscribers and answers
// point-in-time queries about the current session. Notifications are
// synchronous and delivered in registration order; only the terminal
// SignedIn and SignedOut transitions notify, intermediate states are
// visible through State alone.
type ListenerHub struct {
	mu        sync.Mutex // guards state, current, listeners, nextID
	emitMu    sync.Mutex // serializes notification delivery
	state     State
	current   *models.Account
	listeners []hubListener
	nextID    int
}

// NewListenerHub creates a hub in the signed-out state.
func NewListenerHub() *ListenerHub {
	return &ListenerHub{state: StateSignedOut}
}

// Subscribe registers a listener and returns its unsubscribe function.
// Unsubscribing inside a callback is safe: delivery iterates a snapshot,
// so the remaining listeners of the in-flight notification still run.
func (h *ListenerHub) Subscribe(fn Listener) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.listeners = append(h.listeners, hubListener{id: id, fn: fn})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		for i, l := range h.listeners {
			if l.id == id {
				h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
				return
			}
		}
	}
}

// Current returns the signed-in account, or nil.
func (h *ListenerHub) Current() *models.Account {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.current
}

// State returns the session lifecycle state.
func (h *ListenerHub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state
}

// advance moves the session through an intermediate state without
// notifying listeners.
func (h *ListenerHub) advance(state State) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state = state
}

// signedIn binds the account to the session and notifies listeners.
func (h *ListenerHub) signedIn(acct *models.Account) {
	h.mu.Lock()
	h.state = StateSignedIn
	h.current = acct
	snapshot := append([]hubListener(nil), h.listeners...)
	h.mu.Unlock()

	h.notify(snapshot, acct)
}

// signedOut clears the session. Listeners are notified only when an
// account was actually bound; a failed sign-in attempt falling back to
// signed-out is not a transition they ever observed the other side of.
func (h *ListenerHub) signedOut() {
	h.mu.Lock()
	hadAccount := h.current != nil
	h.state = StateSignedOut
	h.current = nil
	snapshot := append([]hubListener(nil), h.listeners...)
	h.mu.Unlock()

	if hadAccount {
		h.notify(snapshot, nil)
	}
}

// notify delivers one transition to every listener of the snapshot, in
// registration order. Delivery is serialized so one transition's
// handlers run to completion before the next transition is dispatched.
func (h *ListenerHub) notify(snapshot []hubListener, acct *models.Account) {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	for _, l := range snapshot {
		l.fn(acct)
	}
}
