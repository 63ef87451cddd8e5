// Package negotiation drives the offer/answer exchange of a call through a
// signaling.Channel and applies remote candidates to the session.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/1ureka/duocall/internal/protocol"
	"github.com/1ureka/duocall/internal/session"
	"github.com/1ureka/duocall/internal/signaling"
	"github.com/1ureka/duocall/internal/util"
)

// ErrNegotiation reports a role or state conflict. It is the same value as
// session.ErrNegotiation.
var ErrNegotiation = session.ErrNegotiation

// Engine commits the session to the caller or callee role and exchanges
// descriptions for it.
type Engine struct {
	sess *session.Session
	ch   signaling.Channel

	mu      sync.Mutex
	callID  protocol.CallID
	applied map[string]struct{}
}

// New returns an Engine for sess using ch as the rendezvous channel.
func New(sess *session.Session, ch signaling.Channel) *Engine {
	return &Engine{
		sess:    sess,
		ch:      ch,
		applied: make(map[string]struct{}),
	}
}

// Session returns the session driven by e.
func (e *Engine) Session() *session.Session { return e.sess }

// CallID returns the id of the call record once a role is committed.
func (e *Engine) CallID() protocol.CallID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callID
}

// Role returns the committed role.
func (e *Engine) Role() session.Role { return e.sess.Role() }

// BeginAsCaller allocates a call record, publishes a fresh offer to it and
// returns its id. The remote answer is applied when it first appears on the
// record.
//
// It fails with ErrNegotiation if a role operation already ran or is running.
func (e *Engine) BeginAsCaller(ctx context.Context) (protocol.CallID, error) {
	if err := e.sess.Reserve(); err != nil {
		return "", err
	}
	defer e.sess.Release()

	id, err := e.ch.CreateRecord(ctx)
	if err != nil {
		return "", fmt.Errorf("create call record: %w", err)
	}
	if err := e.sess.Commit(session.RoleCaller); err != nil {
		return "", err
	}
	e.setCallID(id)

	offer, err := e.sess.CreateOffer()
	if err != nil {
		return "", err
	}
	if err := e.sess.SetLocalDescription(offer); err != nil {
		return "", err
	}
	if err := e.ch.SetField(ctx, id, protocol.FieldOffer, offer); err != nil {
		err = fmt.Errorf("publish offer: %w", err)
		e.sess.Fail(err)
		return "", err
	}

	unsub, err := e.ch.SubscribeRecord(ctx, id, e.onRecord)
	if err != nil {
		err = fmt.Errorf("watch call record: %w", err)
		e.sess.Fail(err)
		return "", err
	}
	e.sess.OnClose(unsub)

	util.LogInfo("offer published to call %s", id)
	return id, nil
}

// onRecord applies the first answer seen on the caller's record. Later
// answers are ignored.
func (e *Engine) onRecord(rec protocol.CallRecord) {
	if rec.Answer == nil || rec.Answer.SDP == "" {
		return
	}
	if e.sess.HasRemoteDescription() {
		util.LogDebug("ignoring repeated answer on call %s", rec.ID)
		return
	}

	err := e.sess.SetRemoteDescription(*rec.Answer)
	switch {
	case err == nil:
		util.LogInfo("answer received on call %s", rec.ID)
	case errors.Is(err, ErrNegotiation), errors.Is(err, session.ErrClosed):
		util.LogDebug("answer on call %s not applied: %v", rec.ID, err)
	}
	// Transport errors already closed the session and were logged there.
}

// AnswerCall answers the offer stored on call id and writes the answer back.
//
// It fails with signaling.ErrNotFound if the record does not exist or holds no
// offer; the session then stays unassigned and may try another id. It fails
// with ErrNegotiation if a role operation already ran or is running.
func (e *Engine) AnswerCall(ctx context.Context, id protocol.CallID) error {
	if err := e.sess.Reserve(); err != nil {
		return err
	}
	defer e.sess.Release()

	if e.sess.HasRemoteDescription() {
		return fmt.Errorf("%w: remote description already set", ErrNegotiation)
	}

	rec, err := e.ch.GetRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch call %s: %w", id, err)
	}
	if rec.Offer == nil || rec.Offer.SDP == "" {
		return fmt.Errorf("call %s has no offer: %w", id, signaling.ErrNotFound)
	}

	if err := e.sess.Commit(session.RoleCallee); err != nil {
		return err
	}
	e.setCallID(id)

	if err := e.sess.SetRemoteDescription(*rec.Offer); err != nil {
		return err
	}
	answer, err := e.sess.CreateAnswer()
	if err != nil {
		return err
	}
	if err := e.sess.SetLocalDescription(answer); err != nil {
		return err
	}
	if err := e.ch.SetField(ctx, id, protocol.FieldAnswer, answer); err != nil {
		if errors.Is(err, signaling.ErrFieldExists) {
			err = fmt.Errorf("%w: call %s was already answered", ErrNegotiation, id)
		} else {
			err = fmt.Errorf("publish answer: %w", err)
		}
		e.sess.Fail(err)
		return err
	}

	util.LogInfo("answer published to call %s", id)
	return nil
}

// ApplyCandidates hands every added candidate in changes to the session, at
// most once each. Candidates are keyed by their store id, or by content when
// the store gave none. Changes of other types are ignored.
//
// The transport buffers candidates that arrive before the remote
// description. An error means the session rejected a candidate and is now
// closed.
func (e *Engine) ApplyCandidates(changes []protocol.Change) error {
	for _, c := range changes {
		if c.Type != protocol.ChangeAdded {
			util.LogDebug("ignoring %s candidate change %s", c.Type, c.ID)
			continue
		}

		key := c.ID
		if key == "" {
			key = util.CandidateKey(c.Doc)
		}
		if !e.markApplied(key) {
			continue
		}

		if err := e.sess.AddRemoteCandidate(c.Doc); err != nil {
			return err
		}
		util.Stats.AddCandidateApplied()
	}
	return nil
}

func (e *Engine) markApplied(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.applied[key]; ok {
		return false
	}
	e.applied[key] = struct{}{}
	return true
}

func (e *Engine) setCallID(id protocol.CallID) {
	e.mu.Lock()
	e.callID = id
	e.mu.Unlock()
}
