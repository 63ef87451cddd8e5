// Package signaling provides the rendezvous channel used to exchange session
// descriptions and ICE candidates until the peers connect directly: the
// Channel interface, an in-memory store, an HTTP/WebSocket server exposing a
// store, and a client for that server.
package signaling

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duocall/internal/protocol"
)

var (
	// ErrNotFound is returned for an unknown call id.
	ErrNotFound = errors.New("call record not found")
	// ErrFieldExists is returned when offer or answer is written twice.
	ErrFieldExists = errors.New("call record field already set")
)

// Unsubscribe cancels a subscription. It is safe to call more than once,
// including from inside the subscription's own callback. Once it returns no
// further change is dispatched; a callback already dispatched may finish.
type Unsubscribe func()

// Channel is a durable document store keyed by call id, with change
// notification. The ctx of Subscribe* bounds only the setup; a subscription
// lives until its Unsubscribe is called or, for a remote channel, until it is
// reported lost.
//
// Subscriptions deliver on their own goroutine in commit order. The initial
// state is delivered first: the current record for SubscribeRecord, and the
// existing entries (as one batch of ChangeAdded) for SubscribeCandidates.
type Channel interface {
	CreateRecord(ctx context.Context) (protocol.CallID, error)
	GetRecord(ctx context.Context, id protocol.CallID) (protocol.CallRecord, error)
	SetField(ctx context.Context, id protocol.CallID, field protocol.Field, desc webrtc.SessionDescription) error
	AppendCandidate(ctx context.Context, id protocol.CallID, sub protocol.Subcollection, c webrtc.ICECandidateInit) (string, error)
	SubscribeRecord(ctx context.Context, id protocol.CallID, fn func(protocol.CallRecord)) (Unsubscribe, error)
	SubscribeCandidates(ctx context.Context, id protocol.CallID, sub protocol.Subcollection, fn func([]protocol.Change)) (Unsubscribe, error)
}
