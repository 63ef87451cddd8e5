package util

import (
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{3 * 1024 * 1024, " 3.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%v): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatStats(t *testing.T) {
	got := formatStats(1536, 4, 3, 2)
	want := "In:  1.5 KiB/s | ICE: 4↑ 3↓ | Remote tracks: 2"
	if got != want {
		t.Errorf("formatStats: got %q, want %q", got, want)
	}
}

func TestCandidateKey(t *testing.T) {
	mid0, mid1 := "0", "1"
	idx := uint16(0)
	base := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMid: &mid0, SDPMLineIndex: &idx}

	same := base
	otherMid := base
	otherMid.SDPMid = &mid1
	noMid := base
	noMid.SDPMid = nil

	if CandidateKey(base) != CandidateKey(same) {
		t.Error("equal candidates produced different keys")
	}
	if CandidateKey(base) == CandidateKey(otherMid) {
		t.Error("different sdpMid produced the same key")
	}
	if CandidateKey(base) == CandidateKey(noMid) {
		t.Error("missing sdpMid produced the same key")
	}
}

func TestStatsCounters(t *testing.T) {
	before := Stats.CandidatesSent.Load()
	Stats.AddCandidateSent()
	Stats.AddCandidateSent()
	if got := Stats.CandidatesSent.Load() - before; got != 2 {
		t.Errorf("CandidatesSent delta: got %d, want 2", got)
	}
}
