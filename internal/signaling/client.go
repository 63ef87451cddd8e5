package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duocall/internal/protocol"
)

var _ Channel = (*Client)(nil)

// Client is a Channel backed by a remote rendezvous Server.
//
// A watch whose connection drops is redialed with exponential backoff and
// the server delivers the initial state again, so subscribers may see a
// record or candidate more than once. A watch that cannot be restored is
// reported to the OnSubscriptionLost callback.
type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
	retry  backoff

	mu   sync.Mutex
	lost func(error)
}

// NewClient creates a client for the server at baseURL (http or https).
func NewClient(baseURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid rendezvous URL: %s", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid rendezvous URL scheme %q (want http or https)", u.Scheme)
	}
	return &Client{
		base:   u,
		http:   &http.Client{Timeout: 10 * time.Second},
		dialer: websocket.DefaultDialer,
		retry:  defaultBackoff,
	}, nil
}

// OnSubscriptionLost registers fn for watches that could not be restored.
// It is called at most once per subscription.
func (c *Client) OnSubscriptionLost(fn func(error)) {
	c.mu.Lock()
	c.lost = fn
	c.mu.Unlock()
}

func (c *Client) reportLost(err error) {
	c.mu.Lock()
	fn := c.lost
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.base
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = c.base.Path + "/calls"
	if len(escaped) > 0 {
		u.Path += "/" + strings.Join(escaped, "/")
	}
	return u.String()
}

// do performs a JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rendezvous request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return statusError(resp.StatusCode, e.Error)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("malformed rendezvous response: %w", err)
		}
	}
	return nil
}

func statusError(status int, msg string) error {
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrFieldExists, msg)
	}
	return fmt.Errorf("rendezvous status %d: %s", status, msg)
}

// CreateRecord asks the server to allocate a record.
func (c *Client) CreateRecord(ctx context.Context) (protocol.CallID, error) {
	var resp idResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint(), nil, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("rendezvous returned an empty call id")
	}
	return protocol.CallID(resp.ID), nil
}

// GetRecord fetches a record.
func (c *Client) GetRecord(ctx context.Context, id protocol.CallID) (protocol.CallRecord, error) {
	var rec protocol.CallRecord
	err := c.do(ctx, http.MethodGet, c.endpoint(string(id)), nil, &rec)
	return rec, err
}

// SetField writes offer or answer.
func (c *Client) SetField(ctx context.Context, id protocol.CallID, field protocol.Field, desc webrtc.SessionDescription) error {
	return c.do(ctx, http.MethodPut, c.endpoint(string(id), string(field)), desc, nil)
}

// AppendCandidate appends a candidate and returns its document id.
func (c *Client) AppendCandidate(ctx context.Context, id protocol.CallID, sub protocol.Subcollection, cand webrtc.ICECandidateInit) (string, error) {
	var resp idResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint(string(id), string(sub)), cand, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// SubscribeRecord opens a record watch.
func (c *Client) SubscribeRecord(ctx context.Context, id protocol.CallID, fn func(protocol.CallRecord)) (Unsubscribe, error) {
	return c.watch(ctx, id, "", func(f *protocol.Frame) {
		if f.Type == protocol.FrameRecord {
			fn(*f.Record)
		}
	})
}

// SubscribeCandidates opens a sub-collection watch.
func (c *Client) SubscribeCandidates(ctx context.Context, id protocol.CallID, sub protocol.Subcollection, fn func([]protocol.Change)) (Unsubscribe, error) {
	if _, err := protocol.ParseSubcollection(string(sub)); err != nil {
		return nil, err
	}
	return c.watch(ctx, id, sub, func(f *protocol.Frame) {
		if f.Type == protocol.FrameChanges {
			fn(f.Changes)
		}
	})
}

func (c *Client) watchURL(id protocol.CallID, sub protocol.Subcollection) string {
	u, _ := url.Parse(c.endpoint(string(id), "watch"))
	u.Scheme = "ws"
	if c.base.Scheme == "https" {
		u.Scheme = "wss"
	}
	if sub != "" {
		u.RawQuery = url.Values{"sub": {string(sub)}}.Encode()
	}
	return u.String()
}

func (c *Client) watch(ctx context.Context, id protocol.CallID, sub protocol.Subcollection, fn func(*protocol.Frame)) (Unsubscribe, error) {
	wsURL := c.watchURL(id, sub)
	conn, err := connect(ctx, c.dialer, wsURL)
	if err != nil {
		return nil, err
	}
	dial := func(ctx context.Context) (*websocket.Conn, error) {
		return connect(ctx, c.dialer, wsURL)
	}
	r := newReceiver(conn, dial, c.retry, c.reportLost, fn)
	go r.watch()
	return r.stop, nil
}

// connect dials a watch URL, mapping a 404 handshake to ErrNotFound.
func connect(ctx context.Context, dialer *websocket.Dialer, wsURL string) (*websocket.Conn, error) {
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, wsURL)
		}
		return nil, fmt.Errorf("failed to connect to rendezvous watch: %w", err)
	}
	return conn, nil
}
