package app

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"

	"github.com/1ureka/duocall/internal/config"
	"github.com/1ureka/duocall/internal/util"
)

// RunCaller orchestrates the full caller lifecycle:
//  1. Build the rendezvous client, peer connection and capture devices
//  2. Capture camera and microphone
//  3. Publish the offer and show the call id for out-of-band sharing
//  4. Relay candidates until the callee answers and the peers connect
//  5. Apply user commands until hangup
func RunCaller(ctx context.Context, cfg *config.Config, cmds <-chan Command) error {
	// ── 1. Stack ───────────────────────────────────────────────────────
	c, err := newController(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Hangup()

	// ── 2-4. Capture, offer, relay ─────────────────────────────────────
	id, err := c.StartCall(ctx)
	if err != nil {
		return fmt.Errorf("failed to start call: %w", err)
	}

	pterm.Println()
	pterm.DefaultBox.WithTitle("Call ID").WithTitleTopCenter().Println(string(id))
	pterm.Println()
	util.LogInfo("share the call id with the callee, waiting for an answer...")

	// ── 5. Commands ────────────────────────────────────────────────────
	return serve(ctx, c, cmds)
}
