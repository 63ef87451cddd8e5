package app

import (
	"context"
	"fmt"

	"github.com/1ureka/duocall/internal/config"
	"github.com/1ureka/duocall/internal/protocol"
	"github.com/1ureka/duocall/internal/util"
)

// RunCallee orchestrates the full callee lifecycle:
//  1. Build the rendezvous client, peer connection and capture devices
//  2. Capture camera and microphone
//  3. Answer the offer stored under id
//  4. Relay candidates until the peers connect
//  5. Apply user commands until hangup
func RunCallee(ctx context.Context, cfg *config.Config, id protocol.CallID, cmds <-chan Command) error {
	// ── 1. Stack ───────────────────────────────────────────────────────
	c, err := newController(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Hangup()

	// ── 2-4. Capture, answer, relay ────────────────────────────────────
	if err := c.JoinCall(ctx, id); err != nil {
		return fmt.Errorf("failed to join call %s: %w", id, err)
	}
	util.LogInfo("answered call %s, connecting...", id)

	// ── 5. Commands ────────────────────────────────────────────────────
	return serve(ctx, c, cmds)
}
