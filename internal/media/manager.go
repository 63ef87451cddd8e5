package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duocall/internal/transport"
	"github.com/1ureka/duocall/internal/util"
)

// SenderSet is the part of a peer connection that carries local tracks.
type SenderSet interface {
	AddTrack(track webrtc.TrackLocal) (transport.Sender, error)
	RemoveTrack(s transport.Sender) error
	Senders() []transport.Sender
}

// TrackState is the state of one local media kind.
type TrackState int

const (
	TrackAbsent TrackState = iota
	TrackLive
	TrackPlaceholder
)

func (s TrackState) String() string {
	switch s {
	case TrackLive:
		return "live"
	case TrackPlaceholder:
		return "placeholder"
	default:
		return "absent"
	}
}

// Manager owns the local tracks and their senders.
//
// Camera toggles swap the track on the existing video sender, so the video
// sender count stays at one. Microphone toggles remove and re-add the audio
// sender.
type Manager struct {
	capturer    Capturer
	peer        SenderSet
	placeholder Placeholder
	stream      *Stream

	mu          sync.Mutex
	busy        bool
	ready       bool
	closed      bool
	video       TrackState
	audio       TrackState
	videoTrack  Track
	audioTrack  Track
	videoSender transport.Sender
	audioSender transport.Sender
}

// NewManager returns a Manager attaching tracks from capturer to peer.
func NewManager(capturer Capturer, peer SenderSet, placeholder Placeholder) *Manager {
	return &Manager{
		capturer:    capturer,
		peer:        peer,
		placeholder: placeholder,
		stream:      &Stream{},
	}
}

// Stream returns the local stream.
func (m *Manager) Stream() *Stream { return m.stream }

// State returns the state of kind.
func (m *Manager) State(kind webrtc.RTPCodecType) TrackState {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case webrtc.RTPCodecTypeVideo:
		return m.video
	case webrtc.RTPCodecTypeAudio:
		return m.audio
	}
	return TrackAbsent
}

// Ready reports whether InitializeCapture succeeded.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// begin marks an operation in flight. requireReady rejects it before
// initial capture.
func (m *Manager) begin(requireReady bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return ErrClosed
	case m.busy:
		return ErrBusy
	case requireReady && !m.ready:
		return ErrCaptureNotReady
	}
	m.busy = true
	return nil
}

func (m *Manager) end() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

// InitializeCapture captures camera and microphone and attaches one sender
// for each. A denied capture returns ErrCapture and attaches nothing.
// Calling it again after success returns the same stream.
func (m *Manager) InitializeCapture(ctx context.Context) (*Stream, error) {
	if err := m.begin(false); err != nil {
		return nil, err
	}
	defer m.end()

	if m.Ready() {
		return m.stream, nil
	}

	tracks, err := m.capturer.Capture(ctx, Constraints{Video: true, Audio: true})
	if err != nil {
		return nil, captureError(err)
	}
	video := pick(tracks, webrtc.RTPCodecTypeVideo)
	audio := pick(tracks, webrtc.RTPCodecTypeAudio)
	if video == nil || audio == nil {
		stopAll(tracks)
		return nil, fmt.Errorf("%w: device returned %d tracks", ErrCapture, len(tracks))
	}

	videoSender, err := m.peer.AddTrack(video)
	if err != nil {
		stopAll(tracks)
		return nil, fmt.Errorf("attach video track: %w", err)
	}
	audioSender, err := m.peer.AddTrack(audio)
	if err != nil {
		_ = m.peer.RemoveTrack(videoSender)
		stopAll(tracks)
		return nil, fmt.Errorf("attach audio track: %w", err)
	}

	m.stream.add(video)
	m.stream.add(audio)

	m.mu.Lock()
	m.videoTrack, m.videoSender, m.video = video, videoSender, TrackLive
	m.audioTrack, m.audioSender, m.audio = audio, audioSender, TrackLive
	m.ready = true
	m.mu.Unlock()

	util.LogInfo("camera and microphone live")
	return m.stream, nil
}

// ToggleCamera switches video between the live camera and the placeholder,
// replacing the track on the existing sender. If the camera cannot be
// reopened the placeholder stays and ErrCapture is returned.
func (m *Manager) ToggleCamera(ctx context.Context) error {
	if err := m.begin(true); err != nil {
		return err
	}
	defer m.end()

	m.mu.Lock()
	state, old, sender := m.video, m.videoTrack, m.videoSender
	m.mu.Unlock()

	var (
		next     Track
		nextStat TrackState
	)
	switch state {
	case TrackLive:
		ph, err := m.placeholder.NewTrack()
		if err != nil {
			return err
		}
		next, nextStat = ph, TrackPlaceholder
	default:
		tracks, err := m.capturer.Capture(ctx, Constraints{Video: true})
		if err != nil {
			util.LogWarning("camera unavailable, keeping placeholder: %v", err)
			return captureError(err)
		}
		next = pick(tracks, webrtc.RTPCodecTypeVideo)
		if next == nil {
			stopAll(tracks)
			return fmt.Errorf("%w: no video track captured", ErrCapture)
		}
		nextStat = TrackLive
	}

	sender, err := m.bindVideo(sender, next)
	if err != nil {
		next.Stop()
		return err
	}

	if old != nil {
		old.Stop()
		m.stream.remove(old)
	}
	m.stream.add(next)

	m.mu.Lock()
	m.videoTrack, m.videoSender, m.video = next, sender, nextStat
	m.mu.Unlock()

	util.LogInfo("camera %s", nextStat)
	return nil
}

// bindVideo puts track on the video sender, adding a sender only if there
// is none.
func (m *Manager) bindVideo(sender transport.Sender, track Track) (transport.Sender, error) {
	if sender != nil && sender.Track() != nil {
		if err := sender.ReplaceTrack(track); err != nil {
			return nil, fmt.Errorf("replace video track: %w", err)
		}
		return sender, nil
	}
	s, err := m.peer.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("attach video track: %w", err)
	}
	return s, nil
}

// ToggleMic removes the microphone and its sender, or captures it again and
// adds a new sender. If the microphone cannot be reopened it stays absent
// and ErrCapture is returned.
func (m *Manager) ToggleMic(ctx context.Context) error {
	if err := m.begin(true); err != nil {
		return err
	}
	defer m.end()

	m.mu.Lock()
	state, old, sender := m.audio, m.audioTrack, m.audioSender
	m.mu.Unlock()

	if state == TrackLive {
		if err := m.peer.RemoveTrack(sender); err != nil {
			return fmt.Errorf("detach audio track: %w", err)
		}
		old.Stop()
		m.stream.remove(old)

		m.mu.Lock()
		m.audioTrack, m.audioSender, m.audio = nil, nil, TrackAbsent
		m.mu.Unlock()

		util.LogInfo("microphone muted")
		return nil
	}

	tracks, err := m.capturer.Capture(ctx, Constraints{Audio: true})
	if err != nil {
		util.LogWarning("microphone unavailable: %v", err)
		return captureError(err)
	}
	track := pick(tracks, webrtc.RTPCodecTypeAudio)
	if track == nil {
		stopAll(tracks)
		return fmt.Errorf("%w: no audio track captured", ErrCapture)
	}
	sender, err = m.peer.AddTrack(track)
	if err != nil {
		track.Stop()
		return fmt.Errorf("attach audio track: %w", err)
	}
	m.stream.add(track)

	m.mu.Lock()
	m.audioTrack, m.audioSender, m.audio = track, sender, TrackLive
	m.mu.Unlock()

	util.LogInfo("microphone live")
	return nil
}

// Close stops every local track. The Manager cannot be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.video, m.audio = TrackAbsent, TrackAbsent
	m.mu.Unlock()

	for _, t := range m.stream.Tracks() {
		t.Stop()
		m.stream.remove(t)
	}
}
