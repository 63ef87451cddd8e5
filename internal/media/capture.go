// Package media manages the local camera and microphone tracks of a call and
// keeps the peer's outbound senders in line with them. Remote tracks are
// collected into a RemoteStream and can be recorded to disk.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

var (
	// ErrCapture reports a denied or unavailable capture device.
	ErrCapture = errors.New("capture failed")

	// ErrBusy is returned when a media operation is issued while another
	// one is still running.
	ErrBusy = errors.New("media operation in progress")

	// ErrCaptureNotReady is returned by toggles before InitializeCapture
	// succeeded.
	ErrCaptureNotReady = errors.New("capture not initialized")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("media manager closed")
)

// Constraints selects the kinds a Capture call must produce.
type Constraints struct {
	Video bool
	Audio bool
}

// Track is a local track that owns a running source. Stop releases the
// source; it is safe to call more than once.
type Track interface {
	webrtc.TrackLocal
	Stop()
}

// Capturer opens capture devices. Capture returns exactly one track per
// requested kind, or an error wrapping ErrCapture.
type Capturer interface {
	Capture(ctx context.Context, c Constraints) ([]Track, error)
}

// captureError wraps err as ErrCapture unless it already is one.
func captureError(err error) error {
	if errors.Is(err, ErrCapture) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCapture, err)
}

// pick returns the first track of kind.
func pick(tracks []Track, kind webrtc.RTPCodecType) Track {
	for _, t := range tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

func stopAll(tracks []Track) {
	for _, t := range tracks {
		t.Stop()
	}
}

// streamID is shared by every local track so the remote side groups them.
const streamID = "duocall"

var trackSeq atomic.Uint64

// newTrackID returns a process-unique track id with the given prefix.
func newTrackID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, trackSeq.Add(1))
}
