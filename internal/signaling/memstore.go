package signaling

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duocall/internal/protocol"
)

var _ Channel = (*MemoryStore)(nil)

// MemoryStore is an in-process Channel. It backs the rendezvous server and
// lets both peers of a test share one store.
type MemoryStore struct {
	mu     sync.Mutex
	calls  map[protocol.CallID]*callEntry
	nextID int
}

type callEntry struct {
	record     protocol.CallRecord
	candidates map[protocol.Subcollection][]protocol.Change
	recordSubs map[int]*queue[protocol.CallRecord]
	candSubs   map[protocol.Subcollection]map[int]*queue[[]protocol.Change]
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: make(map[protocol.CallID]*callEntry)}
}

// Len reports the number of call records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *MemoryStore) lookup(id protocol.CallID) (*callEntry, error) {
	e, ok := s.calls[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// CreateRecord allocates an empty record with a fresh UUID.
func (s *MemoryStore) CreateRecord(ctx context.Context) (protocol.CallID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := protocol.CallID(uuid.NewString())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[id] = &callEntry{
		record:     protocol.CallRecord{ID: id},
		candidates: make(map[protocol.Subcollection][]protocol.Change),
		recordSubs: make(map[int]*queue[protocol.CallRecord]),
		candSubs:   make(map[protocol.Subcollection]map[int]*queue[[]protocol.Change]),
	}
	return id, nil
}

// GetRecord returns a snapshot of the record.
func (s *MemoryStore) GetRecord(ctx context.Context, id protocol.CallID) (protocol.CallRecord, error) {
	if err := ctx.Err(); err != nil {
		return protocol.CallRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return protocol.CallRecord{}, err
	}
	return e.record.Clone(), nil
}

// SetField writes offer or answer. Each may be written once.
func (s *MemoryStore) SetField(ctx context.Context, id protocol.CallID, field protocol.Field, desc webrtc.SessionDescription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := protocol.ParseField(string(field)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if e.record.Get(field) != nil {
		return fmt.Errorf("%w: %s.%s", ErrFieldExists, id, field)
	}
	e.record.Set(field, desc)

	for _, q := range e.recordSubs {
		q.push(e.record.Clone())
	}
	return nil
}

// AppendCandidate adds c to the sub-collection and returns its document id.
func (s *MemoryStore) AppendCandidate(ctx context.Context, id protocol.CallID, sub protocol.Subcollection, c webrtc.ICECandidateInit) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := protocol.ParseSubcollection(string(sub)); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	change := protocol.Change{Type: protocol.ChangeAdded, ID: uuid.NewString(), Doc: c}
	e.candidates[sub] = append(e.candidates[sub], change)

	for _, q := range e.candSubs[sub] {
		q.push([]protocol.Change{change})
	}
	return change.ID, nil
}

// SubscribeRecord delivers the current record, then every later update.
func (s *MemoryStore) SubscribeRecord(ctx context.Context, id protocol.CallID, fn func(protocol.CallRecord)) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	q := newQueue(fn)
	key := s.nextID
	s.nextID++
	e.recordSubs[key] = q
	q.push(e.record.Clone())

	return func() {
		s.mu.Lock()
		delete(e.recordSubs, key)
		s.mu.Unlock()
		q.close()
	}, nil
}

// SubscribeCandidates delivers existing entries of sub as one batch, then
// each appended entry.
func (s *MemoryStore) SubscribeCandidates(ctx context.Context, id protocol.CallID, sub protocol.Subcollection, fn func([]protocol.Change)) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := protocol.ParseSubcollection(string(sub)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	q := newQueue(fn)
	key := s.nextID
	s.nextID++
	if e.candSubs[sub] == nil {
		e.candSubs[sub] = make(map[int]*queue[[]protocol.Change])
	}
	e.candSubs[sub][key] = q
	if existing := e.candidates[sub]; len(existing) > 0 {
		q.push(append([]protocol.Change(nil), existing...))
	}

	return func() {
		s.mu.Lock()
		delete(e.candSubs[sub], key)
		s.mu.Unlock()
		q.close()
	}, nil
}
