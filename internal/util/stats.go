package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide call counter set.
var Stats = &stats{}

type stats struct {
	CandidatesSent    atomic.Int64 // local candidates published to the rendezvous store
	CandidatesApplied atomic.Int64 // remote candidates handed to the peer connection
	RemoteTracks      atomic.Int64 // remote tracks surfaced since process start
	BytesRecv         atomic.Int64 // RTP payload bytes read from remote tracks
}

func (s *stats) AddCandidateSent()    { s.CandidatesSent.Add(1) }
func (s *stats) AddCandidateApplied() { s.CandidatesApplied.Add(1) }
func (s *stats) AddRemoteTrack()      { s.RemoteTracks.Add(1) }
func (s *stats) AddRecv(n int)        { s.BytesRecv.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs call statistics every
// 10 seconds while something changed. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevRecv, prevSent, prevApplied int64
		for {
			select {
			case <-ticker.C:
				recv := Stats.BytesRecv.Load()
				sent := Stats.CandidatesSent.Load()
				applied := Stats.CandidatesApplied.Load()

				inS := float64(recv-prevRecv) / 10.0
				if inS > 10 || sent != prevSent || applied != prevApplied {
					pterm.DefaultLogger.Info(formatStats(inS, sent, applied, Stats.RemoteTracks.Load()))
				}

				prevRecv = recv
				prevSent = sent
				prevApplied = applied

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a fixed-width (8 chars) string,
// e.g. "99.0   B", " 1.5 KiB", "98.9 GiB".
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns the log line for one reporter tick.
func formatStats(inS float64, sent, applied, tracks int64) string {
	return fmt.Sprintf("In: %s/s | ICE: %d↑ %d↓ | Remote tracks: %d",
		formatBytes(inS),
		sent,
		applied,
		tracks,
	)
}
