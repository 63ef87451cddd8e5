// Package protocol defines the CallRecord document shape kept by the
// rendezvous store and the frames streamed to subscribers.
package protocol

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// CallID identifies a CallRecord. It is opaque and generated by the store.
type CallID string

// Field names one of the two description slots of a CallRecord.
type Field string

const (
	FieldOffer  Field = "offer"
	FieldAnswer Field = "answer"
)

// Subcollection names one of the two append-only candidate lists.
type Subcollection string

const (
	OfferCandidates  Subcollection = "offerCandidates"
	AnswerCandidates Subcollection = "answerCandidates"
)

// CallRecord is the document exchanged through the rendezvous store. Each of
// Offer and Answer is written at most once.
type CallRecord struct {
	ID     CallID                     `json:"id"`
	Offer  *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer *webrtc.SessionDescription `json:"answer,omitempty"`
}

// ChangeType is the kind of a sub-collection change. Only ChangeAdded is
// produced today; the others are reserved and ignored by consumers.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is one entry of a candidate sub-collection change notification.
type Change struct {
	Type ChangeType              `json:"type"`
	ID   string                  `json:"id"` // store-assigned document id
	Doc  webrtc.ICECandidateInit `json:"doc"`
}

// ParseField validates a field name taken from user input (e.g. a URL path).
func ParseField(s string) (Field, error) {
	switch f := Field(s); f {
	case FieldOffer, FieldAnswer:
		return f, nil
	}
	return "", fmt.Errorf("unknown field %q", s)
}

// ParseSubcollection validates a sub-collection name taken from user input.
func ParseSubcollection(s string) (Subcollection, error) {
	switch c := Subcollection(s); c {
	case OfferCandidates, AnswerCandidates:
		return c, nil
	}
	return "", fmt.Errorf("unknown sub-collection %q", s)
}

// Get returns the description stored under f, or nil.
func (r *CallRecord) Get(f Field) *webrtc.SessionDescription {
	switch f {
	case FieldOffer:
		return r.Offer
	case FieldAnswer:
		return r.Answer
	}
	return nil
}

// Set stores d under f.
func (r *CallRecord) Set(f Field, d webrtc.SessionDescription) {
	switch f {
	case FieldOffer:
		r.Offer = &d
	case FieldAnswer:
		r.Answer = &d
	}
}

// Clone returns a deep copy so snapshots handed to subscribers never alias
// store state.
func (r CallRecord) Clone() CallRecord {
	out := CallRecord{ID: r.ID}
	if r.Offer != nil {
		o := *r.Offer
		out.Offer = &o
	}
	if r.Answer != nil {
		a := *r.Answer
		out.Answer = &a
	}
	return out
}
