package protocol

import (
	"encoding/json"
	"fmt"
)

// FrameType tags a frame sent over a watch WebSocket.
type FrameType string

const (
	FrameRecord  FrameType = "record"  // full CallRecord snapshot
	FrameChanges FrameType = "changes" // ordered batch of sub-collection changes
	FrameError   FrameType = "error"   // terminal error, the server closes afterwards
)

// Frame is the JSON message streamed to watchers.
type Frame struct {
	Type    FrameType   `json:"type"`
	Record  *CallRecord `json:"record,omitempty"`
	Changes []Change    `json:"changes,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Encode serializes a frame for transmission.
func Encode(f *Frame) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(f)
}

// Decode deserializes and validates a frame.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Frame) validate() error {
	switch f.Type {
	case FrameRecord:
		if f.Record == nil {
			return fmt.Errorf("record frame without record")
		}
	case FrameChanges:
		if len(f.Changes) == 0 {
			return fmt.Errorf("changes frame without changes")
		}
	case FrameError:
	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
	return nil
}
