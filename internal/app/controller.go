// Package app composes negotiation, candidate relay and media management
// into the caller and callee flows of a call.
package app

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duocall/internal/media"
	"github.com/1ureka/duocall/internal/negotiation"
	"github.com/1ureka/duocall/internal/protocol"
	"github.com/1ureka/duocall/internal/relay"
	"github.com/1ureka/duocall/internal/session"
	"github.com/1ureka/duocall/internal/signaling"
	"github.com/1ureka/duocall/internal/util"
)

// ErrCaptureNotReady is returned by toggles issued before capture started.
var ErrCaptureNotReady = media.ErrCaptureNotReady

// Options are the collaborators of a Controller.
type Options struct {
	Channel     signaling.Channel
	Peer        session.Peer
	Capturer    media.Capturer
	Placeholder media.Placeholder
	RecordDir   string // empty: remote tracks are read but not recorded
}

// Controller drives one call from start to hangup.
type Controller struct {
	ch        signaling.Channel
	sess      *session.Session
	eng       *negotiation.Engine
	media     *media.Manager
	remote    *media.RemoteStream
	recordDir string

	ctx    context.Context // cancelled on close; bounds remote track readers
	cancel context.CancelFunc
}

// New wraps opts.Peer in a fresh session. Closing the session, by Hangup or
// by a transport failure, stops local capture.
func New(opts Options) *Controller {
	sess := session.New(opts.Peer)
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		ch:        opts.Channel,
		sess:      sess,
		eng:       negotiation.New(sess, opts.Channel),
		media:     media.NewManager(opts.Capturer, opts.Peer, opts.Placeholder),
		remote:    &media.RemoteStream{},
		recordDir: opts.RecordDir,
		ctx:       ctx,
		cancel:    cancel,
	}

	opts.Peer.OnTrack(c.handleTrack)
	sess.OnClose(c.media.Close)
	sess.OnClose(cancel)
	return c
}

// StartCall captures local media, publishes an offer and starts relaying
// candidates as the caller. A capture failure aborts before any call record
// is created.
func (c *Controller) StartCall(ctx context.Context) (protocol.CallID, error) {
	if _, err := c.media.InitializeCapture(ctx); err != nil {
		return "", err
	}

	id, err := c.eng.BeginAsCaller(ctx)
	if err != nil {
		return "", err
	}
	if err := c.setupRelay(ctx); err != nil {
		return "", err
	}
	return id, nil
}

// JoinCall captures local media, answers call id and starts relaying
// candidates as the callee. An unknown id returns signaling.ErrNotFound and
// the call may be joined again with another id.
func (c *Controller) JoinCall(ctx context.Context, id protocol.CallID) error {
	if _, err := c.media.InitializeCapture(ctx); err != nil {
		return err
	}

	if err := c.eng.AnswerCall(ctx, id); err != nil {
		return err
	}
	return c.setupRelay(ctx)
}

func (c *Controller) setupRelay(ctx context.Context) error {
	if _, err := relay.Setup(ctx, c.eng, c.ch); err != nil {
		err = fmt.Errorf("relay candidates: %w", err)
		c.sess.Fail(err)
		return err
	}
	return nil
}

// ToggleCamera switches between the camera and the placeholder.
func (c *Controller) ToggleCamera(ctx context.Context) error {
	return c.media.ToggleCamera(ctx)
}

// ToggleMic mutes or unmutes the microphone.
func (c *Controller) ToggleMic(ctx context.Context) error {
	return c.media.ToggleMic(ctx)
}

// Hangup closes the session and stops local capture. It is safe to call more
// than once.
func (c *Controller) Hangup() error {
	return c.sess.Close()
}

// OnRemoteTrack registers fn for every remote track received from now on.
func (c *Controller) OnRemoteTrack(fn func(*webrtc.TrackRemote)) {
	c.remote.OnTrack(fn)
}

// RemoteTracks returns the remote tracks received so far.
func (c *Controller) RemoteTracks() []*webrtc.TrackRemote { return c.remote.Tracks() }

// MediaState returns the local state of kind.
func (c *Controller) MediaState(kind webrtc.RTPCodecType) media.TrackState {
	return c.media.State(kind)
}

// LocalStream returns the local tracks.
func (c *Controller) LocalStream() *media.Stream { return c.media.Stream() }

// Session returns the call session.
func (c *Controller) Session() *session.Session { return c.sess }

// CallID returns the id of the joined or started call.
func (c *Controller) CallID() protocol.CallID { return c.eng.CallID() }

// Done is closed when the session closes.
func (c *Controller) Done() <-chan struct{} { return c.sess.Done() }

// handleSignalingLost fails a call that is still negotiating. Once the
// peers are connected the rendezvous is no longer needed.
func (c *Controller) handleSignalingLost(err error) {
	if c.sess.State() == session.StateConnected {
		util.LogWarning("rendezvous unavailable after connect: %v", err)
		return
	}
	c.sess.Fail(fmt.Errorf("signaling: %w", err))
}

func (c *Controller) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	util.LogInfo("remote %s track received (%s)", track.Kind(), track.Codec().MimeType)
	c.remote.Add(track)

	go func() {
		if err := media.Record(c.ctx, track, c.recordDir); err != nil {
			util.LogWarning("remote %s track ended: %v", track.Kind(), err)
		}
	}()
}
