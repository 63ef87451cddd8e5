// Package session holds the per-call state shared by negotiation, candidate
// relay and media management: the committed role, the exchanged descriptions,
// the locally gathered candidates and the lifecycle state of the peer
// connection.
//
// A Session is created once per process and never reused once closed.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duocall/internal/transport"
	"github.com/1ureka/duocall/internal/util"
)

var (
	// ErrNegotiation reports a role or state conflict, such as starting a
	// call twice or answering after a remote description was applied.
	ErrNegotiation = errors.New("negotiation conflict")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")

	// ErrTransport wraps description or candidate rejections from the peer
	// connection. A transport failure closes the session.
	ErrTransport = errors.New("transport failure")
)

// Peer is the peer-connection surface a Session drives.
// *transport.Transport implements it.
type Peer interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(sdp webrtc.SessionDescription) error
	SetRemoteDescription(sdp webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(fn func(*webrtc.ICECandidateInit))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	AddTrack(track webrtc.TrackLocal) (transport.Sender, error)
	RemoveTrack(s transport.Sender) error
	Senders() []transport.Sender
	Close() error
}

var _ Peer = (*transport.Transport)(nil)

// ---------------------------------------------------------------------------
// Role & State
// ---------------------------------------------------------------------------

// Role is the side of the call this session plays.
type Role int

const (
	RoleUnset Role = iota
	RoleCaller
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	default:
		return "unset"
	}
}

// State is the lifecycle state of a session.
type State int

const (
	StateNew State = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// Session owns the Peer for the lifetime of one call.
type Session struct {
	peer Peer

	mu       sync.Mutex
	state    State
	role     Role
	busy     bool
	local    *webrtc.SessionDescription
	remote   *webrtc.SessionDescription
	gathered []webrtc.ICECandidateInit
	gatherOK bool // end-of-gathering seen
	watchers map[int]func(webrtc.ICECandidateInit)
	nextID   int
	onState  []func(State)
	closers  []func()
	err      error
	done     chan struct{}
}

// New wraps peer in a Session in StateNew with no role.
func New(peer Peer) *Session {
	s := &Session{
		peer:     peer,
		watchers: make(map[int]func(webrtc.ICECandidateInit)),
		done:     make(chan struct{}),
	}
	peer.OnICECandidate(s.handleCandidate)
	peer.OnConnectionStateChange(s.handleConnectionState)
	return s
}

// Peer returns the underlying peer connection.
func (s *Session) Peer() Peer { return s.peer }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Err returns the failure that closed the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} { return s.done }

// OnStateChange registers fn to be called after every state transition.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	s.onState = append(s.onState, fn)
	s.mu.Unlock()
}

// transition moves the session to `to` if the current state is one of from.
// Callers must hold s.mu. The returned listeners must be notified after the
// lock is released.
func (s *Session) transition(to State, from ...State) ([]func(State), bool) {
	for _, f := range from {
		if s.state == f {
			s.state = to
			return slices.Clone(s.onState), true
		}
	}
	return nil, false
}

func notify(listeners []func(State), st State) {
	for _, fn := range listeners {
		fn(st)
	}
}

// ---------------------------------------------------------------------------
// Role commitment
// ---------------------------------------------------------------------------

// Reserve marks a role operation as in flight. It fails with ErrNegotiation
// while another role operation runs or once a role is committed, and with
// ErrClosed after close. Every successful Reserve must be paired with
// Release.
func (s *Session) Reserve() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == StateClosed:
		return ErrClosed
	case s.busy:
		return fmt.Errorf("%w: another role operation is in progress", ErrNegotiation)
	case s.role != RoleUnset:
		return fmt.Errorf("%w: role already committed as %s", ErrNegotiation, s.role)
	case s.local != nil:
		return fmt.Errorf("%w: local description already set", ErrNegotiation)
	}
	s.busy = true
	return nil
}

// Release ends the role operation started by Reserve.
func (s *Session) Release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// Commit fixes the role and moves the session into negotiation. The role
// can be committed once.
func (s *Session) Commit(role Role) error {
	if role == RoleUnset {
		return fmt.Errorf("%w: cannot commit an unset role", ErrNegotiation)
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.role != RoleUnset {
		s.mu.Unlock()
		return fmt.Errorf("%w: role already committed as %s", ErrNegotiation, s.role)
	}
	s.role = role
	listeners, ok := s.transition(StateNegotiating, StateNew)
	s.mu.Unlock()

	util.LogDebug("session role committed: %s", role)
	if ok {
		notify(listeners, StateNegotiating)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Descriptions
// ---------------------------------------------------------------------------

// CreateOffer asks the peer for an offer. A rejection fails the session.
func (s *Session) CreateOffer() (webrtc.SessionDescription, error) {
	if err := s.checkOpen(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	offer, err := s.peer.CreateOffer()
	if err != nil {
		return offer, s.fail(fmt.Errorf("%w: create offer: %w", ErrTransport, err))
	}
	return offer, nil
}

// CreateAnswer asks the peer for an answer. A rejection fails the session.
func (s *Session) CreateAnswer() (webrtc.SessionDescription, error) {
	if err := s.checkOpen(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := s.peer.CreateAnswer()
	if err != nil {
		return answer, s.fail(fmt.Errorf("%w: create answer: %w", ErrTransport, err))
	}
	return answer, nil
}

// SetLocalDescription applies and records the local description. It can be
// set once.
func (s *Session) SetLocalDescription(desc webrtc.SessionDescription) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.local != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: local description already set", ErrNegotiation)
	}
	s.local = &desc
	s.mu.Unlock()

	if err := s.peer.SetLocalDescription(desc); err != nil {
		return s.fail(fmt.Errorf("%w: set local description: %w", ErrTransport, err))
	}
	return nil
}

// SetRemoteDescription applies and records the remote description exactly
// once. Later calls return ErrNegotiation without touching the peer.
func (s *Session) SetRemoteDescription(desc webrtc.SessionDescription) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.remote != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: remote description already set", ErrNegotiation)
	}
	s.remote = &desc
	s.mu.Unlock()

	if err := s.peer.SetRemoteDescription(desc); err != nil {
		return s.fail(fmt.Errorf("%w: set remote description: %w", ErrTransport, err))
	}
	util.LogDebug("remote %s applied", desc.Type)
	return nil
}

// LocalDescription returns a copy of the local description, or nil.
func (s *Session) LocalDescription() *webrtc.SessionDescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyDesc(s.local)
}

// RemoteDescription returns a copy of the remote description, or nil.
func (s *Session) RemoteDescription() *webrtc.SessionDescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyDesc(s.remote)
}

// HasRemoteDescription reports whether a remote description was accepted.
func (s *Session) HasRemoteDescription() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote != nil
}

func copyDesc(d *webrtc.SessionDescription) *webrtc.SessionDescription {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// ---------------------------------------------------------------------------
// Candidates
// ---------------------------------------------------------------------------

// AddRemoteCandidate hands a remote candidate to the peer. A rejection fails
// the session.
func (s *Session) AddRemoteCandidate(c webrtc.ICECandidateInit) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.peer.AddICECandidate(c); err != nil {
		return s.fail(fmt.Errorf("%w: add candidate: %w", ErrTransport, err))
	}
	return nil
}

// LocalCandidates returns the candidates gathered so far, in gathering order.
func (s *Session) LocalCandidates() []webrtc.ICECandidateInit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), s.gathered...)
}

// GatheringComplete reports whether the end-of-gathering marker was seen.
func (s *Session) GatheringComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gatherOK
}

// WatchLocalCandidates calls fn for every candidate gathered so far, then for
// each new one, in gathering order. The end-of-gathering marker is not
// forwarded. fn runs with the session lock held: it must not block or call
// back into the Session.
//
// The returned func stops the watch; it is also stopped on close.
func (s *Session) WatchLocalCandidates(fn func(webrtc.ICECandidateInit)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.gathered {
		fn(c)
	}
	if s.state == StateClosed {
		return func() {}
	}

	id := s.nextID
	s.nextID++
	s.watchers[id] = fn

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Session) handleCandidate(c *webrtc.ICECandidateInit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	if c == nil {
		s.gatherOK = true
		util.LogDebug("ICE gathering complete (%d candidates)", len(s.gathered))
		return
	}
	s.gathered = append(s.gathered, *c)
	for _, fn := range s.watchers {
		fn(*c)
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (s *Session) handleConnectionState(state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		s.mu.Lock()
		listeners, ok := s.transition(StateConnected, StateNegotiating)
		s.mu.Unlock()
		if ok {
			util.LogSuccess("peer connection established")
			notify(listeners, StateConnected)
		}
	case webrtc.PeerConnectionStateFailed:
		s.fail(fmt.Errorf("%w: peer connection failed", ErrTransport))
	case webrtc.PeerConnectionStateClosed:
		_ = s.Close()
	}
}

// OnClose registers fn to run when the session closes. Functions run in
// reverse registration order. If the session is already closed fn runs
// immediately.
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		fn()
		return
	}
	s.closers = append(s.closers, fn)
	s.mu.Unlock()
}

// Close runs the registered close functions, closes the peer connection and
// moves the session to StateClosed. Only the first call has any effect.
func (s *Session) Close() error {
	s.mu.Lock()
	listeners, ok := s.transition(StateClosed, StateNew, StateNegotiating, StateConnected)
	if !ok {
		s.mu.Unlock()
		return nil
	}
	closers := s.closers
	s.closers = nil
	clear(s.watchers)
	s.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	err := s.peer.Close()
	close(s.done)

	util.LogDebug("session closed")
	notify(listeners, StateClosed)
	return err
}

// Fail records err as the reason for closing and closes the session.
func (s *Session) Fail(err error) {
	s.fail(err)
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return err
	}
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()

	util.LogError("session failed: %v", err)
	_ = s.Close()
	return err
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	return nil
}
