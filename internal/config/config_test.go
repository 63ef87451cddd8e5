package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ICECandidatePoolSize != 10 {
		t.Errorf("pool size: got %d, want 10", cfg.ICECandidatePoolSize)
	}
	if cfg.Placeholder.FPS != 1 {
		t.Errorf("placeholder fps: got %d, want 1", cfg.Placeholder.FPS)
	}
	if len(cfg.ICEServers) != 1 || len(cfg.ICEServers[0].URLs) != 2 {
		t.Fatalf("default ICE servers: got %+v", cfg.ICEServers)
	}

	rtc := cfg.WebRTC()
	if rtc.ICECandidatePoolSize != 10 {
		t.Errorf("webrtc pool size: got %d, want 10", rtc.ICECandidatePoolSize)
	}
	if got := rtc.ICEServers[0].URLs[0]; got != DefaultSTUNServers[0] {
		t.Errorf("first STUN url: got %q, want %q", got, DefaultSTUNServers[0])
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "duocall.yaml")
	body := []byte(`
rendezvous_url: http://signal.example:9000
ice_candidate_pool_size: 4
ice_servers:
  - urls: ["turn:turn.example:3478"]
    username: alice
    credential: secret
devices:
  video: cam.ivf
  audio: mic.ogg
placeholder:
  fps: 2
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RendezvousURL != "http://signal.example:9000" {
		t.Errorf("rendezvous_url: got %q", cfg.RendezvousURL)
	}
	if cfg.Devices.Video != "cam.ivf" || cfg.Devices.Audio != "mic.ogg" {
		t.Errorf("devices: got %+v", cfg.Devices)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].Username != "alice" {
		t.Fatalf("ice_servers: got %+v", cfg.ICEServers)
	}

	rtc := cfg.WebRTC()
	if rtc.ICEServers[0].Credential != "secret" {
		t.Errorf("credential: got %v", rtc.ICEServers[0].Credential)
	}
	if rtc.ICECandidatePoolSize != 4 {
		t.Errorf("pool size: got %d, want 4", rtc.ICECandidatePoolSize)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok", Config{ICECandidatePoolSize: 10, Placeholder: Placeholder{FPS: 1}}, false},
		{"pool too large", Config{ICECandidatePoolSize: 256, Placeholder: Placeholder{FPS: 1}}, true},
		{"zero fps", Config{Placeholder: Placeholder{FPS: 0}}, true},
		{"server without urls", Config{Placeholder: Placeholder{FPS: 1}, ICEServers: []ICEServer{{}}}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate: got err=%v, wantErr=%v", err, tc.wantErr)
			}
		})
	}
}
