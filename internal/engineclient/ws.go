package engineclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one demultiplexed Engine WebSocket message, with prompt_id
// already rewritten from the Engine's id to the caller's id via the
// correlation table.
type Event struct {
	Type     string // "status", "progress", "executing", "executed", "execution_start", ...
	CallerID string // "" for process-wide events like "status"
	Raw      json.RawMessage
}

// Handler receives demultiplexed events for a single kind.
type Handler func(Event)

type wsConn struct {
	conn *websocket.Conn
}

// subscriberKey pairs an event kind with an optional caller id filter;
// "" matches every caller id for that kind.
type subscriberKey struct {
	kind     string
	callerID string
}

// wsHub owns the connection and the subscriber registry. It is embedded
// in Client via Connect/Subscribe rather than exported directly, keeping
// the demux details private to this package.
type wsHub struct {
	mu          sync.RWMutex
	subscribers map[subscriberKey][]Handler
	queueDepth  int

	restartOnClose bool
	log            *slog.Logger
}

// Connect dials the Engine's WebSocket endpoint with a gateway-generated
// client id and starts the reader goroutine. RestartOnClose controls
// whether an unexpected close triggers a reconnect loop.
func (c *Client) Connect(ctx context.Context, wsURL, clientID string, restartOnClose bool, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	hub := &wsHub{
		subscribers:    make(map[subscriberKey][]Handler),
		restartOnClose: restartOnClose,
		log:            log,
	}
	c.hub = hub

	full, err := withClientID(wsURL, clientID)
	if err != nil {
		return err
	}
	return c.dial(ctx, full)
}

func withClientID(wsURL, clientID string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("engineclient: parsing ws url: %w", err)
	}
	q := u.Query()
	q.Set("clientId", clientID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) dial(ctx context.Context, wsURL string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("engineclient: dialing websocket: %w", err)
	}
	c.hub.mu.Lock()
	c.ws = &wsConn{conn: conn}
	c.hub.mu.Unlock()

	go c.readLoop(ctx, wsURL, conn)
	return nil
}

// readLoop is the single reader goroutine demultiplexing frames by
// data.prompt_id, rewritten through the correlation table before
// fan-out, per spec §4.4.
func (c *Client) readLoop(ctx context.Context, wsURL string, conn *websocket.Conn) {
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			c.hub.log.Warn("engine websocket closed", "error", err)
			c.dispatch(Event{Type: "close"})
			if c.hub.restartOnClose && ctx.Err() == nil {
				c.reconnectWithBackoff(ctx, wsURL)
			}
			return
		}
		if msgType == websocket.BinaryMessage {
			c.hub.log.Debug("ignoring binary engine frame", "bytes", len(payload))
			continue
		}
		c.handleFrame(payload)
	}
}

func (c *Client) reconnectWithBackoff(ctx context.Context, wsURL string) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if err := c.dial(ctx, wsURL); err == nil {
			c.hub.log.Info("engine websocket reconnected")
			return
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type dataWithPromptID struct {
	PromptID string `json:"prompt_id"`
}

func (c *Client) handleFrame(payload []byte) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		c.hub.log.Warn("malformed engine websocket frame", "error", err)
		return
	}

	var d dataWithPromptID
	_ = json.Unmarshal(f.Data, &d)

	callerID := d.PromptID
	if callerID != "" {
		if resolved, ok := c.table.CallerID(callerID); ok {
			callerID = resolved
		}
	}

	if f.Type == "status" {
		c.updateQueueDepth(f.Data)
	}

	c.dispatch(Event{Type: f.Type, CallerID: callerID, Raw: f.Data})
}

type statusData struct {
	Status struct {
		ExecInfo struct {
			QueueRemaining int `json:"queue_remaining"`
		} `json:"exec_info"`
	} `json:"status"`
}

func (c *Client) updateQueueDepth(raw json.RawMessage) {
	var sd statusData
	if err := json.Unmarshal(raw, &sd); err != nil {
		return
	}
	c.hub.mu.Lock()
	c.hub.queueDepth = sd.Status.ExecInfo.QueueRemaining
	c.hub.mu.Unlock()
}

// QueueDepth exposes the Engine's last-reported queue_remaining, used by
// the HTTP Surface for readiness gating.
func (c *Client) QueueDepth() int {
	if c.hub == nil {
		return 0
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.hub.queueDepth
}

// Subscribe registers handler for events of the given kind, optionally
// filtered to one caller id ("" subscribes to every caller id for that
// kind — used for process-wide kinds like "status").
func (c *Client) Subscribe(kind, callerID string, handler Handler) {
	key := subscriberKey{kind: kind, callerID: callerID}
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	c.hub.subscribers[key] = append(c.hub.subscribers[key], handler)
}

// Unsubscribe removes every handler registered for (kind, callerID) — the
// Completion Coordinator calls this once a prompt's race has resolved so
// stale handlers don't accumulate.
func (c *Client) Unsubscribe(kind, callerID string) {
	key := subscriberKey{kind: kind, callerID: callerID}
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	delete(c.hub.subscribers, key)
}

func (c *Client) dispatch(ev Event) {
	c.hub.mu.RLock()
	handlers := append([]Handler{}, c.hub.subscribers[subscriberKey{kind: ev.Type, callerID: ev.CallerID}]...)
	if ev.CallerID != "" {
		handlers = append(handlers, c.hub.subscribers[subscriberKey{kind: ev.Type, callerID: ""}]...)
	}
	c.hub.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// recognizedEventKinds lists the Engine event types of spec §4.4's
// subscription API surface; isRecognizedKind also accepts the synthetic
// file_* kinds. Subscribe does not check kinds against this list.
var recognizedEventKinds = []string{
	"status", "progress", "executing", "executed",
	"execution_start", "execution_cached", "execution_success",
	"execution_interrupted", "execution_error", "progress_state",
}

// Close shuts down the underlying WebSocket connection, if any.
func (c *Client) Close() error {
	if c.hub == nil {
		return nil
	}
	c.hub.mu.RLock()
	ws := c.ws
	c.hub.mu.RUnlock()
	if ws == nil {
		return nil
	}
	return ws.conn.Close()
}

func isRecognizedKind(kind string) bool {
	for _, k := range recognizedEventKinds {
		if k == kind {
			return true
		}
	}
	return strings.HasPrefix(kind, "file_")
}
