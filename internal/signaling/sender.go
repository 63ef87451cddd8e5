package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/duocall/internal/protocol"
)

const writeWait = 5 * time.Second

// sender serializes outgoing frames to a watch WebSocket (private).
type sender struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// send encodes and writes a frame, guarded by a mutex.
func (s *sender) send(f *protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// sendRecord sends a record snapshot frame.
func (s *sender) sendRecord(r protocol.CallRecord) error {
	return s.send(&protocol.Frame{Type: protocol.FrameRecord, Record: &r})
}

// sendChanges sends a batch of candidate changes.
func (s *sender) sendChanges(changes []protocol.Change) error {
	return s.send(&protocol.Frame{Type: protocol.FrameChanges, Changes: changes})
}

// sendError sends a terminal error frame and a normal close message.
func (s *sender) sendError(msg string) {
	_ = s.send(&protocol.Frame{Type: protocol.FrameError, Error: msg})

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, msg),
		time.Now().Add(writeWait))
}

// ping writes a keepalive control frame.
func (s *sender) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
