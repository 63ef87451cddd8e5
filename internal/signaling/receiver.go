package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/duocall/internal/protocol"
	"github.com/1ureka/duocall/internal/util"
)

const dialTimeout = 5 * time.Second

var (
	// errServerFrame marks a watch ended by an error frame from the server.
	errServerFrame = errors.New("rendezvous watch: server error")
	errStopped     = errors.New("rendezvous watch stopped")
)

// receiver reads frames from a watch WebSocket and hands them to the
// subscriber in arrival order (private). When the connection drops it redials
// with backoff; the server replays the initial state on every attach. If the
// watch cannot be restored, lost is called once.
type receiver struct {
	dial  func(ctx context.Context) (*websocket.Conn, error)
	retry backoff
	lost  func(error)
	q     *queue[*protocol.Frame]

	mu   sync.Mutex
	conn *websocket.Conn

	stopOnce sync.Once
	stopped  chan struct{}
}

func newReceiver(conn *websocket.Conn, dial func(context.Context) (*websocket.Conn, error),
	retry backoff, lost func(error), fn func(*protocol.Frame)) *receiver {
	return &receiver{
		dial:    dial,
		retry:   retry,
		lost:    lost,
		q:       newQueue(fn),
		conn:    conn,
		stopped: make(chan struct{}),
	}
}

func (r *receiver) isStopped() bool {
	select {
	case <-r.stopped:
		return true
	default:
		return false
	}
}

// watch runs until stop is called or the watch is lost.
func (r *receiver) watch() {
	defer r.stop()

	conn := r.current()
	for conn != nil {
		err := r.read(conn)
		if r.isStopped() {
			return
		}
		if errors.Is(err, errServerFrame) {
			r.report(err)
			return
		}

		util.LogWarning("rendezvous watch dropped, reconnecting: %v", err)
		conn, err = r.redial()
		if err != nil {
			if !r.isStopped() {
				r.report(err)
			}
			return
		}
		util.LogDebug("rendezvous watch restored")
	}
}

// read is the read loop of one connection.
func (r *receiver) read(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		f, err := protocol.Decode(data)
		if err != nil {
			util.LogWarning("rendezvous watch: dropping bad frame: %v", err)
			continue
		}
		if f.Type == protocol.FrameError {
			return fmt.Errorf("%w: %s", errServerFrame, f.Error)
		}
		r.q.push(f)
	}
}

func (r *receiver) redial() (*websocket.Conn, error) {
	b := r.retry
	b.Reset()

	lastErr := errors.New("retries exhausted")
	for {
		d, ok := b.Next()
		if !ok {
			return nil, fmt.Errorf("rendezvous watch lost: %w", lastErr)
		}

		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-r.stopped:
			t.Stop()
			return nil, errStopped
		}

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		conn, err := r.dial(ctx)
		cancel()
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("rendezvous watch lost: %w", err)
			}
			lastErr = err
			continue
		}
		if !r.swap(conn) {
			return nil, errStopped
		}
		return conn, nil
	}
}

func (r *receiver) current() *websocket.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

// swap installs conn unless the receiver was stopped meanwhile.
func (r *receiver) swap(conn *websocket.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isStopped() {
		_ = conn.Close()
		return false
	}
	r.conn = conn
	return true
}

func (r *receiver) report(err error) {
	util.LogError("%v", err)
	if r.lost != nil {
		r.lost(err)
	}
}

// stop closes the connection and the delivery queue. Idempotent.
func (r *receiver) stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		close(r.stopped)
		conn := r.conn
		r.mu.Unlock()

		r.q.close()
		_ = conn.Close()
	})
}
