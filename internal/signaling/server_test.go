package signaling

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/1ureka/duocall/internal/protocol"
)

// newTestClient starts a rendezvous server over a fresh MemoryStore.
func newTestClient(t *testing.T) (*Client, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	srv := httptest.NewServer(NewServer(store, gin.TestMode).Handler())
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c, store
}

func TestClientCommands(t *testing.T) {
	ctx := context.Background()
	c, store := newTestClient(t)

	id, err := c.CreateRecord(ctx)
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("store records: got %d, want 1", store.Len())
	}

	if err := c.SetField(ctx, id, protocol.FieldOffer, offer("v=0 offer")); err != nil {
		t.Fatalf("SetField failed: %v", err)
	}
	if err := c.SetField(ctx, id, protocol.FieldOffer, offer("again")); !errors.Is(err, ErrFieldExists) {
		t.Fatalf("second SetField: got %v, want ErrFieldExists", err)
	}

	docID, err := c.AppendCandidate(ctx, id, protocol.OfferCandidates, candidate(1))
	if err != nil || docID == "" {
		t.Fatalf("AppendCandidate: id=%q err=%v", docID, err)
	}

	rec, err := c.GetRecord(ctx, id)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if rec.ID != id || rec.Offer == nil || rec.Offer.SDP != "v=0 offer" || rec.Answer != nil {
		t.Errorf("record: got %+v", rec)
	}

	if _, err := c.GetRecord(ctx, "missing-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRecord(missing): got %v, want ErrNotFound", err)
	}
}

func TestServerRejectsBadNames(t *testing.T) {
	store := NewMemoryStore()
	srv := httptest.NewServer(NewServer(store, gin.TestMode).Handler())
	defer srv.Close()

	id, _ := store.CreateRecord(context.Background())

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/calls/"+string(id)+"/sdp", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("PUT unknown field: got %d, want 400", resp.StatusCode)
	}
}

func TestClientWatch(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	id, _ := c.CreateRecord(ctx)
	_ = c.SetField(ctx, id, protocol.FieldOffer, offer("o"))
	_, _ = c.AppendCandidate(ctx, id, protocol.AnswerCandidates, candidate(0))

	records := make(chan protocol.CallRecord, 8)
	unsubRecord, err := c.SubscribeRecord(ctx, id, func(r protocol.CallRecord) { records <- r })
	if err != nil {
		t.Fatalf("SubscribeRecord failed: %v", err)
	}
	defer unsubRecord()

	changes := make(chan []protocol.Change, 8)
	unsubCands, err := c.SubscribeCandidates(ctx, id, protocol.AnswerCandidates, func(ch []protocol.Change) { changes <- ch })
	if err != nil {
		t.Fatalf("SubscribeCandidates failed: %v", err)
	}
	defer unsubCands()

	if r := recv(t, records); r.Offer == nil || r.Answer != nil {
		t.Fatalf("initial record: got %+v", r)
	}
	if batch := recv(t, changes); len(batch) != 1 || batch[0].Doc.Candidate != candidate(0).Candidate {
		t.Fatalf("initial candidates: got %+v", batch)
	}

	_ = c.SetField(ctx, id, protocol.FieldAnswer, answer("a"))
	if r := recv(t, records); r.Answer == nil || r.Answer.SDP != "a" {
		t.Fatalf("record update: got %+v", r)
	}

	_, _ = c.AppendCandidate(ctx, id, protocol.AnswerCandidates, candidate(1))
	if batch := recv(t, changes); len(batch) != 1 || batch[0].Doc.Candidate != candidate(1).Candidate {
		t.Fatalf("candidate update: got %+v", batch)
	}
}

func TestClientWatchNotFound(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.SubscribeRecord(context.Background(), "missing-id", func(protocol.CallRecord) {})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SubscribeRecord(missing): got %v, want ErrNotFound", err)
	}
}

func TestNewClientValidatesURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "ftp://example.com"} {
		if _, err := NewClient(raw); err == nil {
			t.Errorf("NewClient(%q): expected error", raw)
		}
	}
}

// trackingListener remembers accepted connections so a test can cut them.
type trackingListener struct {
	net.Listener

	mu    sync.Mutex
	conns []net.Conn
}

func (l *trackingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		l.mu.Lock()
		l.conns = append(l.conns, conn)
		l.mu.Unlock()
	}
	return conn, err
}

func (l *trackingListener) dropAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.conns {
		_ = c.Close()
	}
	l.conns = nil
}

// newTrackedClient is newTestClient with a cuttable listener and fast retries.
func newTrackedClient(t *testing.T, maxElapsed time.Duration) (*Client, *MemoryStore, *httptest.Server, *trackingListener) {
	t.Helper()
	store := NewMemoryStore()
	srv := httptest.NewUnstartedServer(NewServer(store, gin.TestMode).Handler())
	tl := &trackingListener{Listener: srv.Listener}
	srv.Listener = tl
	srv.Start()
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	c.retry = backoff{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Budget: maxElapsed}
	return c, store, srv, tl
}

func TestClientWatchReconnects(t *testing.T) {
	ctx := context.Background()
	c, store, _, tl := newTrackedClient(t, 5*time.Second)
	id, _ := store.CreateRecord(ctx)
	_ = store.SetField(ctx, id, protocol.FieldOffer, offer("o"))

	lost := make(chan error, 1)
	c.OnSubscriptionLost(func(err error) { lost <- err })

	changes := make(chan []protocol.Change, 8)
	unsubscribe, err := c.SubscribeCandidates(ctx, id, protocol.AnswerCandidates, func(ch []protocol.Change) { changes <- ch })
	if err != nil {
		t.Fatalf("SubscribeCandidates failed: %v", err)
	}
	defer unsubscribe()

	tl.dropAll()
	if _, err := store.AppendCandidate(ctx, id, protocol.AnswerCandidates, candidate(7)); err != nil {
		t.Fatalf("AppendCandidate failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch := <-changes:
			for _, ch := range batch {
				if ch.Doc.Candidate == candidate(7).Candidate {
					return
				}
			}
		case err := <-lost:
			t.Fatalf("watch reported lost: %v", err)
		case <-deadline:
			t.Fatal("candidate appended after connection drop was not delivered")
		}
	}
}

func TestClientWatchReportsLoss(t *testing.T) {
	ctx := context.Background()
	c, store, srv, tl := newTrackedClient(t, 100*time.Millisecond)
	id, _ := store.CreateRecord(ctx)
	_ = store.SetField(ctx, id, protocol.FieldOffer, offer("o"))

	lost := make(chan error, 1)
	c.OnSubscriptionLost(func(err error) { lost <- err })

	records := make(chan protocol.CallRecord, 8)
	unsubscribe, err := c.SubscribeRecord(ctx, id, func(r protocol.CallRecord) { records <- r })
	if err != nil {
		t.Fatalf("SubscribeRecord failed: %v", err)
	}
	defer unsubscribe()
	recv(t, records)

	srv.Listener.Close()
	tl.dropAll()

	if err := recv(t, lost); err == nil {
		t.Fatal("lost callback got a nil error")
	}
	select {
	case err := <-lost:
		t.Errorf("lost reported twice: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}
