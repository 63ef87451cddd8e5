package transport

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
)

func newTestTransport(t *testing.T) *Transport {
	t.Helper()
	tr, err := NewTransport(context.Background(), webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewTransport failed: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func newTrack(t *testing.T, mime, id string) *webrtc.TrackLocalStaticSample {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, "test")
	if err != nil {
		t.Fatalf("NewTrackLocalStaticSample failed: %v", err)
	}
	return track
}

func TestSendersFollowAddRemove(t *testing.T) {
	tr := newTestTransport(t)

	video, err := tr.AddTrack(newTrack(t, webrtc.MimeTypeVP8, "video"))
	if err != nil {
		t.Fatalf("AddTrack(video) failed: %v", err)
	}
	audio, err := tr.AddTrack(newTrack(t, webrtc.MimeTypeOpus, "audio"))
	if err != nil {
		t.Fatalf("AddTrack(audio) failed: %v", err)
	}
	if n := len(tr.Senders()); n != 2 {
		t.Fatalf("Senders: got %d, want 2", n)
	}

	if err := video.ReplaceTrack(newTrack(t, webrtc.MimeTypeVP8, "placeholder")); err != nil {
		t.Fatalf("ReplaceTrack failed: %v", err)
	}
	if n := len(tr.Senders()); n != 2 {
		t.Fatalf("Senders after replace: got %d, want 2", n)
	}

	if err := tr.RemoveTrack(audio); err != nil {
		t.Fatalf("RemoveTrack failed: %v", err)
	}
	senders := tr.Senders()
	if len(senders) != 1 || senders[0].Track().Kind() != webrtc.RTPCodecTypeVideo {
		t.Fatalf("Senders after remove: got %d", len(senders))
	}
}

type fakeSender struct{}

func (fakeSender) Track() webrtc.TrackLocal             { return nil }
func (fakeSender) ReplaceTrack(webrtc.TrackLocal) error { return nil }

func TestRemoveForeignSender(t *testing.T) {
	tr := newTestTransport(t)
	if err := tr.RemoveTrack(fakeSender{}); !errors.Is(err, ErrForeignSender) {
		t.Errorf("RemoveTrack(foreign): got %v, want ErrForeignSender", err)
	}
}

func TestOfferCarriesTracks(t *testing.T) {
	tr := newTestTransport(t)
	if _, err := tr.AddTrack(newTrack(t, webrtc.MimeTypeVP8, "video")); err != nil {
		t.Fatalf("AddTrack failed: %v", err)
	}
	offer, err := tr.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer failed: %v", err)
	}
	if offer.Type != webrtc.SDPTypeOffer || !strings.Contains(offer.SDP, "m=video") {
		t.Errorf("offer lacks a video section:\n%s", offer.SDP)
	}
}

// TestCandidatesBufferedUntilRemoteDescription verifies that remote
// candidates received early are held, then flushed by SetRemoteDescription.
func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	caller := newTestTransport(t)
	callee := newTestTransport(t)

	if _, err := caller.AddTrack(newTrack(t, webrtc.MimeTypeVP8, "video")); err != nil {
		t.Fatalf("AddTrack failed: %v", err)
	}

	mid := "0"
	idx := uint16(0)
	early := webrtc.ICECandidateInit{
		Candidate:     "candidate:1 1 udp 2130706431 127.0.0.1 50000 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
	if err := callee.AddICECandidate(early); err != nil {
		t.Fatalf("AddICECandidate before remote description: got %v, want nil", err)
	}
	callee.mu.Lock()
	pending := len(callee.pending)
	callee.mu.Unlock()
	if pending != 1 {
		t.Fatalf("pending candidates: got %d, want 1", pending)
	}

	offer, err := caller.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer failed: %v", err)
	}
	if err := caller.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription failed: %v", err)
	}
	if err := callee.SetRemoteDescription(offer); err != nil {
		t.Fatalf("SetRemoteDescription failed: %v", err)
	}

	callee.mu.Lock()
	pending = len(callee.pending)
	remoteSet := callee.remoteSet
	callee.mu.Unlock()
	if pending != 0 || !remoteSet {
		t.Errorf("after remote description: pending=%d remoteSet=%v", pending, remoteSet)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	tr := newTestTransport(t)
	if err := tr.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	select {
	case <-tr.Done():
	default:
		t.Error("Done not closed after Close")
	}
}
