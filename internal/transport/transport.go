// Package transport wraps a pion PeerConnection with the operations a call
// session needs: description exchange, trickle ICE, and sender management.
package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duocall/internal/util"
)

// Sender is the outbound binding of a local track. *webrtc.RTPSender
// satisfies it.
type Sender interface {
	Track() webrtc.TrackLocal
	ReplaceTrack(track webrtc.TrackLocal) error
}

var _ Sender = (*webrtc.RTPSender)(nil)

// ErrForeignSender is returned by RemoveTrack for a sender that does not
// belong to this Transport.
var ErrForeignSender = errors.New("sender does not belong to this transport")

// Transport owns a single PeerConnection.
//
// Remote candidates that arrive before the remote description are buffered
// and applied, in arrival order, right after SetRemoteDescription succeeds.
type Transport struct {
	pc *webrtc.PeerConnection

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	pending   []webrtc.ICECandidateInit
	remoteSet bool
	pcState   webrtc.PeerConnectionState
	onState   func(webrtc.PeerConnectionState)
}

// NewTransport creates a Transport backed by a new PeerConnection using cfg
// (ICE servers and candidate pool size). The Transport is done when the
// connection fails or closes, or when ctx is cancelled.
func NewTransport(ctx context.Context, cfg webrtc.Configuration) (*Transport, error) {
	pc, err := newPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	tCtx, tCancel := context.WithCancel(ctx)

	t := &Transport{
		pc:      pc,
		ctx:     tCtx,
		cancel:  tCancel,
		pcState: webrtc.PeerConnectionStateNew,
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		t.mu.Lock()
		t.pcState = state
		fn := t.onState
		t.mu.Unlock()

		if fn != nil {
			fn(state)
		}
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			tCancel()
		}
	})

	return t, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Done returns a channel that is closed when the Transport is shut down.
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Close shuts down the PeerConnection. Safe to call more than once.
func (t *Transport) Close() error {
	t.cancel()
	return t.pc.Close()
}

// ConnectionState returns the last observed PeerConnection state.
func (t *Transport) ConnectionState() webrtc.PeerConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pcState
}

// OnConnectionStateChange registers the single state listener.
func (t *Transport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP and starts ICE gathering.
func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP, then flushes buffered
// remote candidates.
func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	if err := t.pc.SetRemoteDescription(sdp); err != nil {
		return err
	}

	t.mu.Lock()
	t.remoteSet = true
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	var errs []error
	for _, c := range pending {
		if err := t.pc.AddICECandidate(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnICECandidate registers a callback for each locally gathered candidate.
// A nil argument signals the end of gathering.
func (t *Transport) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		init := c.ToJSON()
		fn(&init)
	})
}

// AddICECandidate adds a remote candidate, or buffers it until the remote
// description is set.
func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	t.mu.Lock()
	if !t.remoteSet {
		t.pending = append(t.pending, candidate)
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	return t.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// OnTrack registers a callback for every remote track.
func (t *Transport) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	t.pc.OnTrack(fn)
}

// AddTrack attaches a local track on a new (or reusable) sender and starts
// draining its RTCP so interceptors keep working.
func (t *Transport) AddTrack(track webrtc.TrackLocal) (Sender, error) {
	s, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	go drainRTCP(s)
	return s, nil
}

// RemoveTrack detaches the sender's track.
func (t *Transport) RemoveTrack(s Sender) error {
	rs, ok := s.(*webrtc.RTPSender)
	if !ok {
		return ErrForeignSender
	}
	return t.pc.RemoveTrack(rs)
}

// Senders returns the senders that currently carry a track.
func (t *Transport) Senders() []Sender {
	var out []Sender
	for _, s := range t.pc.GetSenders() {
		if s.Track() != nil {
			out = append(out, s)
		}
	}
	return out
}

// drainRTCP reads incoming RTCP for s until the sender stops.
func drainRTCP(s *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := s.Read(buf); err != nil {
			return
		}
	}
}
