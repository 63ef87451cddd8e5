// Package relay bridges ICE candidates between the session and the
// rendezvous channel: local candidates are appended to the role's
// sub-collection, and the peer's sub-collection is fed back into the
// negotiation engine.
package relay

import (
	"context"
	"fmt"

	"github.com/1ureka/duocall/internal/negotiation"
	"github.com/1ureka/duocall/internal/protocol"
	"github.com/1ureka/duocall/internal/session"
	"github.com/1ureka/duocall/internal/signaling"
	"github.com/1ureka/duocall/internal/util"
)

// Relay describes an active candidate bridge. It is torn down with the
// session.
type Relay struct {
	Local  protocol.Subcollection // where local candidates are published
	Remote protocol.Subcollection // where remote candidates are read from

	out *sender
}

// Subcollections returns the local and remote sub-collection for role.
func Subcollections(role session.Role) (local, remote protocol.Subcollection, err error) {
	switch role {
	case session.RoleCaller:
		return protocol.OfferCandidates, protocol.AnswerCandidates, nil
	case session.RoleCallee:
		return protocol.AnswerCandidates, protocol.OfferCandidates, nil
	}
	return "", "", fmt.Errorf("%w: relay needs a committed role", negotiation.ErrNegotiation)
}

// Setup starts relaying candidates for the call committed in eng. The role
// is read once, here. Candidates gathered before Setup are published first.
func Setup(ctx context.Context, eng *negotiation.Engine, ch signaling.Channel) (*Relay, error) {
	sess := eng.Session()
	local, remote, err := Subcollections(sess.Role())
	if err != nil {
		return nil, err
	}
	id := eng.CallID()

	unsub, err := ch.SubscribeCandidates(ctx, id, remote, func(changes []protocol.Change) {
		if err := eng.ApplyCandidates(changes); err != nil {
			util.LogError("failed to apply remote candidates: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", remote, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	out := newSender(loopCtx, ch, id, local)
	stopWatch := sess.WatchLocalCandidates(out.send)

	sess.OnClose(cancel)
	sess.OnClose(unsub)
	sess.OnClose(stopWatch)

	util.LogDebug("relaying local candidates to %s, remote candidates from %s", local, remote)
	return &Relay{Local: local, Remote: remote, out: out}, nil
}
