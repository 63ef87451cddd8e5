package media

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/1ureka/duocall/internal/util"
)

// frameSource yields encoded frames and how long each one lasts.
type frameSource interface {
	next() ([]byte, time.Duration, error)
	close() error
}

// sampleTrack is a static-sample track fed by a frameSource goroutine.
type sampleTrack struct {
	*webrtc.TrackLocalStaticSample

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

var _ Track = (*sampleTrack)(nil)

// newSampleTrack creates the track and starts pumping src into it.
func newSampleTrack(mime, id string, src frameSource) (*sampleTrack, error) {
	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, streamID)
	if err != nil {
		_ = src.close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &sampleTrack{
		TrackLocalStaticSample: local,
		cancel:                 cancel,
		done:                   make(chan struct{}),
	}

	go t.pump(ctx, src)
	return t, nil
}

// Stop ends the pump and waits for it to release its source.
func (t *sampleTrack) Stop() {
	t.once.Do(func() {
		t.cancel()
		<-t.done
	})
}

// pump writes one frame per frame duration until ctx is cancelled or the
// source fails.
func (t *sampleTrack) pump(ctx context.Context, src frameSource) {
	defer close(t.done)
	defer src.close()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}

		data, dur, err := src.next()
		if err != nil {
			util.LogWarning("track %s source stopped: %v", t.ID(), err)
			return
		}
		if err := t.WriteSample(media.Sample{Data: data, Duration: dur}); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			util.LogDebug("track %s write failed: %v", t.ID(), err)
		}
		timer.Reset(dur)
	}
}

// ---------------------------------------------------------------------------
// Sources
// ---------------------------------------------------------------------------

const defaultFrameDuration = 33 * time.Millisecond

// ivfSource replays the VP8 frames of an IVF file, looping at EOF.
type ivfSource struct {
	f   *os.File
	r   *ivfreader.IVFReader
	dur time.Duration
}

func openIVF(path string) (*ivfSource, *ivfreader.IVFFileHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	r, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	dur := defaultFrameDuration
	if header.TimebaseDenominator != 0 && header.TimebaseNumerator != 0 {
		dur = time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}
	return &ivfSource{f: f, r: r, dur: dur}, header, nil
}

func (s *ivfSource) next() ([]byte, time.Duration, error) {
	frame, _, err := s.r.ParseNextFrame()
	if errors.Is(err, io.EOF) {
		if _, err := s.f.Seek(0, io.SeekStart); err != nil {
			return nil, 0, err
		}
		if s.r, _, err = ivfreader.NewWith(s.f); err != nil {
			return nil, 0, err
		}
		frame, _, err = s.r.ParseNextFrame()
	}
	return frame, s.dur, err
}

func (s *ivfSource) close() error { return s.f.Close() }

// oggSource replays the Opus pages of an Ogg file, looping at EOF.
type oggSource struct {
	f           *os.File
	r           *oggreader.OggReader
	lastGranule uint64
}

const opusSampleRate = 48000

func openOgg(path string) (*oggSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &oggSource{f: f, r: r}, nil
}

func (s *oggSource) next() ([]byte, time.Duration, error) {
	page, header, err := s.r.ParseNextPage()
	if errors.Is(err, io.EOF) {
		if _, err := s.f.Seek(0, io.SeekStart); err != nil {
			return nil, 0, err
		}
		if s.r, _, err = oggreader.NewWith(s.f); err != nil {
			return nil, 0, err
		}
		s.lastGranule = 0
		page, header, err = s.r.ParseNextPage()
	}
	if err != nil {
		return nil, 0, err
	}

	var samples uint64
	if header.GranulePosition > s.lastGranule {
		samples = header.GranulePosition - s.lastGranule
	}
	s.lastGranule = header.GranulePosition
	return page, time.Duration(samples) * time.Second / opusSampleRate, nil
}

func (s *oggSource) close() error { return s.f.Close() }

// stillSource repeats one frame forever.
type stillSource struct {
	frame []byte
	dur   time.Duration
}

func (s *stillSource) next() ([]byte, time.Duration, error) {
	return append([]byte(nil), s.frame...), s.dur, nil
}

func (s *stillSource) close() error { return nil }
