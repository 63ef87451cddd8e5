// duocall: CLI entry point.
//
// This tool places a two-party audio/video call over WebRTC. A rendezvous
// server relays the offer, the answer and ICE candidates; media then flows
// directly between the peers.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-role, -call, -config, -server). During a call, type "c" to toggle
// the camera, "m" to toggle the microphone and "q" to hang up.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/duocall/internal/app"
	"github.com/1ureka/duocall/internal/config"
	"github.com/1ureka/duocall/internal/protocol"
	"github.com/1ureka/duocall/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	role := flag.String("role", "", "Role: caller or callee")
	callID := flag.String("call", "", "Call id to join (callee only)")
	configPath := flag.String("config", "", "Path to a YAML config file")
	serverFlag := flag.String("server", "", "Rendezvous server URL (overrides config)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	if *serverFlag != "" {
		cfg.RendezvousURL = *serverFlag
	}
	if *debugMode || cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("duocall — v%s", version))
	pterm.Println()

	if err := validateServerURL(cfg.RendezvousURL); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	switch config.Role(*role) {
	case "":
		// No -role flag → interactive mode.
		runInteractive(ctx, cfg)

	case config.RoleCaller:
		runCaller(ctx, cfg)

	case config.RoleCallee:
		if strings.TrimSpace(*callID) == "" {
			util.LogError("missing -call for callee role")
			os.Exit(1)
		}
		runCallee(ctx, cfg, protocol.CallID(strings.TrimSpace(*callID)))

	default:
		util.LogError("invalid -role: must be 'caller' or 'callee'")
		os.Exit(1)
	}

	util.LogInfo("call ended")
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runInteractive prompts for the role (and call id) when no -role flag is
// provided.
func runInteractive(ctx context.Context, cfg *config.Config) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Caller — Start a new call", "Callee — Join a call by id"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(role, "Caller") {
		runCaller(ctx, cfg)
	} else {
		runCallee(ctx, cfg, askCallID())
	}
}

// runCaller executes the caller flow.
func runCaller(ctx context.Context, cfg *config.Config) {
	util.StartStatsReporter(ctx)
	if err := app.RunCaller(ctx, cfg, readCommands(ctx)); err != nil {
		util.LogError("call failed: %v", err)
		os.Exit(1)
	}
}

// runCallee executes the callee flow.
func runCallee(ctx context.Context, cfg *config.Config, id protocol.CallID) {
	util.StartStatsReporter(ctx)
	if err := app.RunCallee(ctx, cfg, id, readCommands(ctx)); err != nil {
		util.LogError("call failed: %v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// readCommands turns stdin lines into call commands until EOF or ctx ends.
func readCommands(ctx context.Context) <-chan app.Command {
	cmds := make(chan app.Command)
	go func() {
		defer close(cmds)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			var cmd app.Command
			switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
			case "c":
				cmd = app.CommandToggleCamera
			case "m":
				cmd = app.CommandToggleMic
			case "q":
				cmd = app.CommandHangup
			default:
				util.LogWarning("unknown command: use c (camera), m (microphone) or q (hang up)")
				continue
			}
			select {
			case cmds <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()
	return cmds
}

// validateServerURL checks that raw is an absolute http(s) URL.
func validateServerURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid rendezvous server URL: %s", raw)
	}
	return nil
}

// askCallID prompts the user for a call id until a non-empty one is entered.
func askCallID() protocol.CallID {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Call id (shown on the caller's screen)").
			Show()

		if id := strings.TrimSpace(raw); id != "" {
			pterm.Println()
			return protocol.CallID(id)
		}

		pterm.Println()
		util.LogWarning("invalid input: the call id cannot be empty")
	}
}
