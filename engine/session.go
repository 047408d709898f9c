package engine

import (
	"sync"

	"github.com/google/uuid"
	"github.com/quantarax/relay/internal/code"
)

// Role distinguishes which end of a transfer a Session represents.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// State is the coarse lifecycle state of a session, published to the UI
// through a StateChanged progress event whenever it changes.
type State string

const (
	StateConnecting   State = "connecting"
	StateRegistering  State = "registering"
	StateWaitingPeer  State = "waiting_for_peer"
	StateKeyAgree     State = "key_agreement"
	StateFingerprint  State = "fingerprint_exchange"
	StateRacing       State = "racing"
	StateTransferring State = "transferring"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// CancelToken is a monotonic, once-fired cancellation signal shared by
// value (via pointer) between a Session and every component working on its
// behalf. Once Cancel is called, Done's channel stays closed forever.
type CancelToken struct {
	once sync.Once
	done chan struct{}
}

// NewCancelToken creates an armed, not-yet-fired CancelToken.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel fires the token. Calling it more than once is a no-op.
func (c *CancelToken) Cancel() {
	c.once.Do(func() { close(c.done) })
}

// Done returns a channel that is closed once Cancel has been called.
func (c *CancelToken) Done() <-chan struct{} {
	return c.done
}

// Cancelled reports whether Cancel has already been called.
func (c *CancelToken) Cancelled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Session identifies one run of the transfer protocol: a UUIDv4 id, which
// end of the wire it represents, the shared code, and a cancel token.
type Session struct {
	ID     string
	Role   Role
	Code   code.TransferCode
	Cancel *CancelToken

	// RequireSPAKE2 gates the key-agreement step in EstablishConnection.
	// Every session created by NewSession has this set true; it exists at
	// all only for deriveLegacyKey (see legacykey.go), which nothing in
	// this repo sets to false.
	RequireSPAKE2 bool

	mu    sync.Mutex
	state State
}

// NewSession creates a Session in StateConnecting with SPAKE2 required.
func NewSession(role Role, c code.TransferCode) *Session {
	return &Session{
		ID:            uuid.NewString(),
		Role:          role,
		Code:          c,
		Cancel:        NewCancelToken(),
		RequireSPAKE2: true,
		state:         StateConnecting,
	}
}

// SetState updates the session's state under its own lock.
func (s *Session) SetState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// GetState returns the session's current state.
func (s *Session) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
