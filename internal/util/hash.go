// Package util provides shared utility functions.
package util

import (
	"fmt"
	"hash/fnv"

	"github.com/pion/webrtc/v4"
)

// CandidateKey computes a content hash of an ICE candidate. Two candidates
// with the same candidate line, media id, m-line index and ufrag map to the
// same key; it is used to recognise replays of a candidate that carries no
// store-assigned document id.
func CandidateKey(c webrtc.ICECandidateInit) string {
	h := fnv.New64a()
	h.Write([]byte(c.Candidate))
	h.Write([]byte{0})
	if c.SDPMid != nil {
		h.Write([]byte(*c.SDPMid))
	}
	h.Write([]byte{0})
	if c.SDPMLineIndex != nil {
		fmt.Fprintf(h, "%d", *c.SDPMLineIndex)
	}
	h.Write([]byte{0})
	if c.UsernameFragment != nil {
		h.Write([]byte(*c.UsernameFragment))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
