package protocol

import (
	"testing"

	"github.com/pion/webrtc/v4"
)

// TestEncodeDecodeRoundTrip verifies that encoding and decoding are inverse
// operations for every frame type.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	mid := "0"
	idx := uint16(0)

	testCases := []struct {
		name  string
		frame *Frame
	}{
		{
			name: "record with offer only",
			frame: &Frame{Type: FrameRecord, Record: &CallRecord{
				ID:    "c1",
				Offer: &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
			}},
		},
		{
			name: "changes",
			frame: &Frame{Type: FrameChanges, Changes: []Change{
				{Type: ChangeAdded, ID: "d1", Doc: webrtc.ICECandidateInit{Candidate: "candidate:1", SDPMid: &mid, SDPMLineIndex: &idx}},
			}},
		},
		{
			name:  "error",
			frame: &Frame{Type: FrameError, Error: "not found"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Encode(tc.frame)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got.Type != tc.frame.Type {
				t.Errorf("Type mismatch: got %q, want %q", got.Type, tc.frame.Type)
			}
			if tc.frame.Record != nil {
				if got.Record.ID != tc.frame.Record.ID || got.Record.Offer.SDP != tc.frame.Record.Offer.SDP {
					t.Errorf("Record mismatch: got %+v", got.Record)
				}
				if got.Record.Offer.Type != webrtc.SDPTypeOffer {
					t.Errorf("Offer type mismatch: got %v", got.Record.Offer.Type)
				}
				if got.Record.Answer != nil {
					t.Errorf("Answer should stay empty, got %+v", got.Record.Answer)
				}
			}
			if len(tc.frame.Changes) > 0 {
				c := got.Changes[0]
				if c.Type != ChangeAdded || c.ID != "d1" || c.Doc.Candidate != "candidate:1" || *c.Doc.SDPMid != "0" {
					t.Errorf("Change mismatch: got %+v", c)
				}
			}
		})
	}
}

// TestDecodeRejectsInvalid verifies that malformed or incomplete frames fail.
func TestDecodeRejectsInvalid(t *testing.T) {
	inputs := []string{
		`not json`,
		`{"type":"bogus"}`,
		`{"type":"record"}`,
		`{"type":"changes","changes":[]}`,
	}
	for _, in := range inputs {
		if _, err := Decode([]byte(in)); err == nil {
			t.Errorf("Decode(%s): expected error", in)
		}
	}
}

func TestParseNames(t *testing.T) {
	if f, err := ParseField("answer"); err != nil || f != FieldAnswer {
		t.Errorf("ParseField(answer): got %q, %v", f, err)
	}
	if _, err := ParseField("sdp"); err == nil {
		t.Error("ParseField(sdp): expected error")
	}
	if c, err := ParseSubcollection("offerCandidates"); err != nil || c != OfferCandidates {
		t.Errorf("ParseSubcollection(offerCandidates): got %q, %v", c, err)
	}
	if _, err := ParseSubcollection("candidates"); err == nil {
		t.Error("ParseSubcollection(candidates): expected error")
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	r := CallRecord{ID: "c1"}
	r.Set(FieldOffer, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "a"})
	c := r.Clone()
	c.Offer.SDP = "b"
	if r.Get(FieldOffer).SDP != "a" {
		t.Errorf("Clone aliases the original offer")
	}
}
