package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"github.com/1ureka/duocall/internal/util"
)

// RemoteStream collects the tracks received from the peer. Tracks are only
// ever added.
type RemoteStream struct {
	mu     sync.Mutex
	tracks []*webrtc.TrackRemote
	subs   []func(*webrtc.TrackRemote)
}

// Add appends track and notifies listeners.
func (s *RemoteStream) Add(track *webrtc.TrackRemote) {
	s.mu.Lock()
	s.tracks = append(s.tracks, track)
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	util.Stats.AddRemoteTrack()
	for _, fn := range subs {
		fn(track)
	}
}

// OnTrack registers fn for every track added from now on.
func (s *RemoteStream) OnTrack(fn func(*webrtc.TrackRemote)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Tracks returns a snapshot of the remote tracks.
func (s *RemoteStream) Tracks() []*webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tracks)
}

// ---------------------------------------------------------------------------
// Recording
// ---------------------------------------------------------------------------

type rtpReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

type rtpWriter interface {
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

// Record reads track until it ends or ctx is cancelled. VP8 video is written
// to an IVF file and Opus audio to an Ogg file under dir; with an empty dir,
// or another codec, packets are only counted.
func Record(ctx context.Context, track *webrtc.TrackRemote, dir string) error {
	w, err := openRecording(track, dir)
	if err != nil {
		return err
	}
	return consume(ctx, track, w)
}

func openRecording(track *webrtc.TrackRemote, dir string) (rtpWriter, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}

	mime := track.Codec().MimeType
	base := filepath.Join(dir, fmt.Sprintf("remote-%s-%d", track.Kind(), track.SSRC()))

	switch {
	case strings.EqualFold(mime, webrtc.MimeTypeVP8):
		w, err := ivfwriter.New(base + ".ivf")
		if err != nil {
			return nil, fmt.Errorf("open %s.ivf: %w", base, err)
		}
		util.LogInfo("recording remote video to %s.ivf", base)
		return w, nil
	case strings.EqualFold(mime, webrtc.MimeTypeOpus):
		w, err := oggwriter.New(base+".ogg", opusSampleRate, 2)
		if err != nil {
			return nil, fmt.Errorf("open %s.ogg: %w", base, err)
		}
		util.LogInfo("recording remote audio to %s.ogg", base)
		return w, nil
	}
	util.LogWarning("not recording remote %s track: unsupported codec %s", track.Kind(), mime)
	return nil, nil
}

// consume is the read loop behind Record. w may be nil.
func consume(ctx context.Context, r rtpReader, w rtpWriter) error {
	if w != nil {
		defer func() {
			if err := w.Close(); err != nil {
				util.LogWarning("failed to close recording: %v", err)
			}
		}()
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		pkt, _, err := r.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		util.Stats.AddRecv(len(pkt.Payload))

		if w != nil {
			if err := w.WriteRTP(pkt); err != nil {
				return fmt.Errorf("write RTP: %w", err)
			}
		}
	}
}
