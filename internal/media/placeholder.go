package media

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"

	"github.com/1ureka/duocall/internal/util"
)

// Placeholder frame size. The synthetic track is notionally this large; a
// still image taken from an IVF file keeps its own size.
const (
	PlaceholderWidth  = 640
	PlaceholderHeight = 480
)

// builtinStill is a single 640x480 VP8 keyframe: flat grey, no residual.
//
//go:embed placeholder.ivf
var builtinStill []byte

// Placeholder describes the synthetic video track sent while the camera is
// off. The first frame of File (an IVF of VP8), or the built-in grey frame
// when File is empty, is repeated FPS times a second.
type Placeholder struct {
	File string
	FPS  int
}

// NewTrack synthesizes a placeholder video track.
func (p Placeholder) NewTrack() (Track, error) {
	fps := p.FPS
	if fps < 1 {
		fps = 1
	}

	dur := time.Second / time.Duration(fps)
	var (
		src *stillSource
		err error
	)
	if p.File != "" {
		src, err = readStill(p.File, dur)
	} else {
		src, err = parseStill("built-in placeholder", bytes.NewReader(builtinStill), dur)
	}
	if err != nil {
		return nil, fmt.Errorf("placeholder: %w", err)
	}
	return newSampleTrack(webrtc.MimeTypeVP8, newTrackID("placeholder"), src)
}

// readStill loads the first frame of an IVF file.
func readStill(path string, dur time.Duration) (*stillSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseStill(path, f, dur)
}

func parseStill(name string, r io.Reader, dur time.Duration) (*stillSource, error) {
	ivf, header, err := ivfreader.NewWith(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if header.Width != PlaceholderWidth || header.Height != PlaceholderHeight {
		util.LogDebug("placeholder %s is %dx%d", name, header.Width, header.Height)
	}

	frame, _, err := ivf.ParseNextFrame()
	if err != nil {
		return nil, fmt.Errorf("read first frame of %s: %w", name, err)
	}
	return &stillSource{frame: frame, dur: dur}, nil
}
