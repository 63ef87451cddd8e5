package relay

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duocall/internal/protocol"
	"github.com/1ureka/duocall/internal/signaling"
	"github.com/1ureka/duocall/internal/util"
)

// sender is the single writer that appends local candidates to one
// sub-collection of a call record, in the order they were queued.
type sender struct {
	ch  signaling.Channel
	id  protocol.CallID
	sub protocol.Subcollection

	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
	wake    chan struct{}
	idle    chan struct{} // closed by loop on exit
}

// newSender starts the background loop. The loop exits when ctx is cancelled.
func newSender(ctx context.Context, ch signaling.Channel, id protocol.CallID, sub protocol.Subcollection) *sender {
	s := &sender{
		ch:   ch,
		id:   id,
		sub:  sub,
		wake: make(chan struct{}, 1),
		idle: make(chan struct{}),
	}
	go s.loop(ctx)
	return s
}

// send queues c without blocking.
func (s *sender) send(c webrtc.ICECandidateInit) {
	s.mu.Lock()
	s.pending = append(s.pending, c)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *sender) take() []webrtc.ICECandidateInit {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.pending
	s.pending = nil
	return batch
}

func (s *sender) loop(ctx context.Context) {
	defer close(s.idle)

	for {
		select {
		case <-s.wake:
		case <-ctx.Done():
			return
		}

		for batch := s.take(); len(batch) > 0; batch = s.take() {
			for _, c := range batch {
				if _, err := s.ch.AppendCandidate(ctx, s.id, s.sub, c); err != nil {
					if ctx.Err() != nil {
						return
					}
					util.LogError("failed to publish candidate to %s: %v", s.sub, err)
					continue
				}
				util.Stats.AddCandidateSent()
			}
		}
	}
}
