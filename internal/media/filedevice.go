package media

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
)

var _ Capturer = (*FileCapturer)(nil)

// FileCapturer stands in for camera and microphone by replaying recorded
// files: an IVF (VP8) file for video and an Ogg (Opus) file for audio. An
// empty path means the device is unavailable.
type FileCapturer struct {
	VideoPath string
	AudioPath string
}

// Capture opens a track for every requested kind. If any kind fails, the
// tracks already opened are stopped.
func (c *FileCapturer) Capture(ctx context.Context, want Constraints) ([]Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, captureError(err)
	}

	var tracks []Track
	fail := func(err error) ([]Track, error) {
		stopAll(tracks)
		return nil, captureError(err)
	}

	if want.Video {
		t, err := c.openVideo()
		if err != nil {
			return fail(err)
		}
		tracks = append(tracks, t)
	}
	if want.Audio {
		t, err := c.openAudio()
		if err != nil {
			return fail(err)
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func (c *FileCapturer) openVideo() (Track, error) {
	if c.VideoPath == "" {
		return nil, fmt.Errorf("%w: no video device configured", ErrCapture)
	}
	src, _, err := openIVF(c.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", c.VideoPath, err)
	}
	return newSampleTrack(webrtc.MimeTypeVP8, newTrackID("camera"), src)
}

func (c *FileCapturer) openAudio() (Track, error) {
	if c.AudioPath == "" {
		return nil, fmt.Errorf("%w: no audio device configured", ErrCapture)
	}
	src, err := openOgg(c.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio %s: %w", c.AudioPath, err)
	}
	return newSampleTrack(webrtc.MimeTypeOpus, newTrackID("mic"), src)
}
