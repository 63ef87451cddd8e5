package session_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duocall/internal/session"
	"github.com/1ureka/duocall/internal/session/sessiontest"
)

func candidate(n int) *webrtc.ICECandidateInit {
	return &webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%d 1 udp 2130706431 10.0.0.%d 5000 typ host", n, n)}
}

func TestReserveGuards(t *testing.T) {
	s := session.New(sessiontest.NewFakePeer())

	if err := s.Reserve(); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := s.Reserve(); !errors.Is(err, session.ErrNegotiation) {
		t.Fatalf("Reserve while busy: got %v, want ErrNegotiation", err)
	}
	s.Release()

	if err := s.Reserve(); err != nil {
		t.Fatalf("Reserve after Release failed: %v", err)
	}
	if err := s.Commit(session.RoleCaller); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	s.Release()

	if err := s.Reserve(); !errors.Is(err, session.ErrNegotiation) {
		t.Fatalf("Reserve after Commit: got %v, want ErrNegotiation", err)
	}
	if err := s.Commit(session.RoleCallee); !errors.Is(err, session.ErrNegotiation) {
		t.Fatalf("second Commit: got %v, want ErrNegotiation", err)
	}
	if s.Role() != session.RoleCaller || s.State() != session.StateNegotiating {
		t.Errorf("got role=%s state=%s, want caller/negotiating", s.Role(), s.State())
	}
}

func TestRemoteDescriptionSetOnce(t *testing.T) {
	peer := sessiontest.NewFakePeer()
	s := session.New(peer)

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"}
	if err := s.SetRemoteDescription(answer); err != nil {
		t.Fatalf("SetRemoteDescription failed: %v", err)
	}
	if err := s.SetRemoteDescription(answer); !errors.Is(err, session.ErrNegotiation) {
		t.Fatalf("second SetRemoteDescription: got %v, want ErrNegotiation", err)
	}
	if n := peer.RemoteCalls(); n != 1 {
		t.Errorf("peer SetRemoteDescription calls: got %d, want 1", n)
	}
	if !s.HasRemoteDescription() || s.RemoteDescription().SDP != answer.SDP {
		t.Errorf("remote description not recorded")
	}
}

func TestTransportFailureClosesSession(t *testing.T) {
	tests := []struct {
		name string
		run  func(*session.Session, *sessiontest.FakePeer) error
	}{
		{"remote description rejected", func(s *session.Session, p *sessiontest.FakePeer) error {
			p.RejectRemote = errors.New("bad sdp")
			return s.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "x"})
		}},
		{"candidate rejected", func(s *session.Session, p *sessiontest.FakePeer) error {
			p.RejectCandidate = errors.New("bad candidate")
			return s.AddRemoteCandidate(*candidate(1))
		}},
		{"offer rejected", func(s *session.Session, p *sessiontest.FakePeer) error {
			p.RejectOffer = errors.New("no codecs")
			_, err := s.CreateOffer()
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peer := sessiontest.NewFakePeer()
			s := session.New(peer)

			err := tt.run(s, peer)
			if !errors.Is(err, session.ErrTransport) {
				t.Fatalf("got %v, want ErrTransport", err)
			}
			if s.State() != session.StateClosed {
				t.Errorf("state: got %s, want closed", s.State())
			}
			if !errors.Is(s.Err(), session.ErrTransport) {
				t.Errorf("Err: got %v, want ErrTransport", s.Err())
			}
			if !peer.Closed() {
				t.Error("peer not closed")
			}
		})
	}
}

func TestConnectionStateMapping(t *testing.T) {
	peer := sessiontest.NewFakePeer()
	s := session.New(peer)

	var seen []session.State
	s.OnStateChange(func(st session.State) { seen = append(seen, st) })

	// Connected before negotiation starts is not a valid transition.
	peer.SetConnectionState(webrtc.PeerConnectionStateConnected)
	if s.State() != session.StateNew {
		t.Fatalf("state: got %s, want new", s.State())
	}

	if err := s.Commit(session.RoleCallee); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	peer.SetConnectionState(webrtc.PeerConnectionStateConnected)
	peer.SetConnectionState(webrtc.PeerConnectionStateFailed)

	want := []session.State{session.StateNegotiating, session.StateConnected, session.StateClosed}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Errorf("transitions: got %v, want %v", seen, want)
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done not closed")
	}
}

func TestWatchLocalCandidatesReplaysBacklog(t *testing.T) {
	peer := sessiontest.NewFakePeer()
	s := session.New(peer)

	peer.EmitCandidate(candidate(1))
	peer.EmitCandidate(candidate(2))

	var got []string
	stop := s.WatchLocalCandidates(func(c webrtc.ICECandidateInit) {
		got = append(got, c.Candidate)
	})

	peer.EmitCandidate(candidate(3))
	peer.EmitCandidate(nil)
	stop()
	peer.EmitCandidate(candidate(4))

	want := []string{candidate(1).Candidate, candidate(2).Candidate, candidate(3).Candidate}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("watched: got %v, want %v", got, want)
	}
	if !s.GatheringComplete() {
		t.Error("end of gathering not recorded")
	}
	if n := len(s.LocalCandidates()); n != 4 {
		t.Errorf("gathered: got %d, want 4", n)
	}
}

func TestCloseIdempotent(t *testing.T) {
	peer := sessiontest.NewFakePeer()
	s := session.New(peer)

	var order []int
	s.OnClose(func() { order = append(order, 1) })
	s.OnClose(func() { order = append(order, 2) })

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if fmt.Sprint(order) != "[2 1]" {
		t.Errorf("closers ran as %v, want [2 1]", order)
	}

	late := false
	s.OnClose(func() { late = true })
	if !late {
		t.Error("OnClose after close did not run immediately")
	}

	if err := s.Reserve(); !errors.Is(err, session.ErrClosed) {
		t.Errorf("Reserve after close: got %v, want ErrClosed", err)
	}
	if err := s.SetLocalDescription(webrtc.SessionDescription{}); !errors.Is(err, session.ErrClosed) {
		t.Errorf("SetLocalDescription after close: got %v, want ErrClosed", err)
	}
}
