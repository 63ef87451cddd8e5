// Package sessiontest provides an in-memory session.Peer for tests.
package sessiontest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duocall/internal/session"
	"github.com/1ureka/duocall/internal/transport"
)

var _ session.Peer = (*FakePeer)(nil)
var _ transport.Sender = (*FakeSender)(nil)

// FakePeer records every call made by a Session. Candidate and state events
// are injected with EmitCandidate and SetConnectionState.
type FakePeer struct {
	mu sync.Mutex

	// Reject* make the matching operation fail when non-nil.
	RejectRemote    error
	RejectCandidate error
	RejectOffer     error

	local       *webrtc.SessionDescription
	remote      *webrtc.SessionDescription
	remoteCalls int
	applied     []webrtc.ICECandidateInit
	senders     []*FakeSender
	closed      bool
	offers      int

	onCandidate func(*webrtc.ICECandidateInit)
	onState     func(webrtc.PeerConnectionState)
	onTrack     func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

// NewFakePeer returns an empty FakePeer.
func NewFakePeer() *FakePeer {
	return &FakePeer{}
}

func (p *FakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RejectOffer != nil {
		return webrtc.SessionDescription{}, p.RejectOffer
	}
	p.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("v=0\r\no=fake-offer %d\r\n", p.offers)}, nil
}

func (p *FakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return webrtc.SessionDescription{}, errors.New("create answer without remote offer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\no=fake-answer\r\n"}, nil
}

func (p *FakePeer) SetLocalDescription(sdp webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = &sdp
	return nil
}

func (p *FakePeer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteCalls++
	if p.RejectRemote != nil {
		return p.RejectRemote
	}
	p.remote = &sdp
	return nil
}

func (p *FakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RejectCandidate != nil {
		return p.RejectCandidate
	}
	p.applied = append(p.applied, c)
	return nil
}

func (p *FakePeer) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onCandidate = fn
	p.mu.Unlock()
}

func (p *FakePeer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *FakePeer) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *FakePeer) AddTrack(track webrtc.TrackLocal) (transport.Sender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("peer closed")
	}
	s := &FakeSender{track: track}
	p.senders = append(p.senders, s)
	return s, nil
}

func (p *FakePeer) RemoveTrack(s transport.Sender) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, own := range p.senders {
		if own == s {
			own.mu.Lock()
			own.track = nil
			own.mu.Unlock()
			return nil
		}
	}
	return transport.ErrForeignSender
}

func (p *FakePeer) Senders() []transport.Sender {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []transport.Sender
	for _, s := range p.senders {
		if s.Track() != nil {
			out = append(out, s)
		}
	}
	return out
}

// Close marks the peer closed and reports PeerConnectionStateClosed to the
// registered listener, like a real PeerConnection.
func (p *FakePeer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	fn := p.onState
	p.mu.Unlock()

	if fn != nil {
		fn(webrtc.PeerConnectionStateClosed)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Event injection and inspection
// ---------------------------------------------------------------------------

// EmitCandidate delivers a locally gathered candidate; nil ends gathering.
func (p *FakePeer) EmitCandidate(c *webrtc.ICECandidateInit) {
	p.mu.Lock()
	fn := p.onCandidate
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// SetConnectionState reports a connection state change.
func (p *FakePeer) SetConnectionState(state webrtc.PeerConnectionState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// HasTrackListener reports whether OnTrack was registered.
func (p *FakePeer) HasTrackListener() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onTrack != nil
}

// Local returns the last local description set.
func (p *FakePeer) Local() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

// Remote returns the last remote description accepted.
func (p *FakePeer) Remote() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

// RemoteCalls counts SetRemoteDescription calls, including rejected ones.
func (p *FakePeer) RemoteCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteCalls
}

// Applied returns the remote candidates added, in order.
func (p *FakePeer) Applied() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.applied...)
}

// Closed reports whether Close was called.
func (p *FakePeer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// CountSenders returns the number of active senders carrying a track of kind.
func (p *FakePeer) CountSenders(kind webrtc.RTPCodecType) int {
	n := 0
	for _, s := range p.Senders() {
		if s.Track().Kind() == kind {
			n++
		}
	}
	return n
}

// FakeSender is the transport.Sender returned by FakePeer.AddTrack.
type FakeSender struct {
	mu       sync.Mutex
	track    webrtc.TrackLocal
	replaced int
}

func (s *FakeSender) Track() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

func (s *FakeSender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if track != nil && s.track != nil && track.Kind() != s.track.Kind() {
		return errors.New("replacement track has a different kind")
	}
	s.track = track
	s.replaced++
	return nil
}

// Replaced counts ReplaceTrack calls.
func (s *FakeSender) Replaced() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaced
}
