package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/1ureka/duocall/internal/config"
	"github.com/1ureka/duocall/internal/media"
	"github.com/1ureka/duocall/internal/signaling"
	"github.com/1ureka/duocall/internal/transport"
	"github.com/1ureka/duocall/internal/util"
)

// Command is a user action during an active call.
type Command int

const (
	CommandToggleCamera Command = iota
	CommandToggleMic
	CommandHangup
)

// newController builds the production stack from cfg: a rendezvous client,
// a pion transport and file-backed capture devices.
func newController(ctx context.Context, cfg *config.Config) (*Controller, error) {
	ch, err := signaling.NewClient(cfg.RendezvousURL)
	if err != nil {
		return nil, err
	}

	tr, err := transport.NewTransport(ctx, cfg.WebRTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	c := New(Options{
		Channel:     ch,
		Peer:        tr,
		Capturer:    &media.FileCapturer{VideoPath: cfg.Devices.Video, AudioPath: cfg.Devices.Audio},
		Placeholder: media.Placeholder{File: cfg.Placeholder.File, FPS: cfg.Placeholder.FPS},
		RecordDir:   cfg.RecordDir,
	})
	ch.OnSubscriptionLost(c.handleSignalingLost)
	return c, nil
}

// serve applies commands until hangup, ctx cancellation or session close.
// Toggle failures are reported and the call continues.
func serve(ctx context.Context, c *Controller, cmds <-chan Command) error {
	for {
		select {
		case cmd, ok := <-cmds:
			if !ok {
				cmds = nil
				continue
			}
			switch cmd {
			case CommandToggleCamera:
				if err := c.ToggleCamera(ctx); err != nil {
					util.LogWarning("failed to toggle camera: %v", err)
				}
			case CommandToggleMic:
				if err := c.ToggleMic(ctx); err != nil {
					util.LogWarning("failed to toggle microphone: %v", err)
				}
			case CommandHangup:
				return c.Hangup()
			}

		case <-c.Done():
			if err := c.Session().Err(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil

		case <-ctx.Done():
			return c.Hangup()
		}
	}
}
