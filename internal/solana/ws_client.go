package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"token-buy-monitor/internal/observability"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is the fixed delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// PingInterval is the interval for the liveness probe while subscribed.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout is how long to wait for a subscription confirmation.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:   3 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
	}
}

// WSClientImpl implements WSClient using gorilla/websocket.
//
// The connection lifecycle is DISCONNECTED -> CONNECTING -> SUBSCRIBED and
// back to DISCONNECTED on any close or probe failure. A close schedules
// exactly one reconnect attempt after the fixed delay; at most one reconnect
// goroutine exists at a time, so a close observed while an attempt is already
// pending is a no-op. On reconnect success the stored subscription filter is
// re-sent before the state returns to SUBSCRIBED.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64
	state     atomic.Int32

	// filter is stored on Subscribe for resubscription after reconnect.
	filter   *LogsFilter
	filterMu sync.Mutex

	// notifCh is the single notification channel handed to the subscriber.
	notifCh chan LogNotification

	// pendingSubs maps request ID to channel waiting for subscription ID.
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	// reconnecting guards the single pending reconnect attempt.
	reconnecting atomic.Bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		pendingSubs: make(map[uint64]chan int64),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// State returns the current connection state.
func (c *WSClientImpl) State() ConnState {
	return ConnState(c.state.Load())
}

// setState records a state transition on the client and the state gauge.
func (c *WSClientImpl) setState(s ConnState) {
	c.state.Store(int32(s))
	observability.UpdateConnectionState(int32(s))
}

// connect establishes the WebSocket connection and enters CONNECTING.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.setState(StateConnecting)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// SubscribeLogs sends the asset-scoped subscription request and returns the
// notification channel. Only one subscription per client is supported; the
// filter is retained for resubscription after reconnects.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	c.filterMu.Lock()
	if c.filter != nil {
		c.filterMu.Unlock()
		return nil, fmt.Errorf("already subscribed")
	}
	f := filter
	c.filter = &f
	c.notifCh = make(chan LogNotification, 1024)
	c.filterMu.Unlock()

	if _, err := c.sendSubscribe(ctx, filter); err != nil {
		c.filterMu.Lock()
		c.filter = nil
		c.filterMu.Unlock()
		return nil, err
	}

	c.setState(StateSubscribed)
	return c.notifCh, nil
}

// sendSubscribe writes the subscription request and waits for confirmation.
func (c *WSClientImpl) sendSubscribe(ctx context.Context, filter LogsFilter) (int64, error) {
	reqID := c.requestID.Add(1)

	commitment := filter.Commitment
	if commitment == "" {
		commitment = "confirmed"
	}

	mentionsFilter := make(map[string]interface{})
	if len(filter.Mentions) > 0 {
		mentionsFilter["mentions"] = filter.Mentions
	} else {
		mentionsFilter["all"] = nil
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			mentionsFilter,
			map[string]string{"commitment": commitment},
		},
	}

	confirmCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingSubsMu.Unlock()

	removePending := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	if err := c.writeJSON(req); err != nil {
		removePending()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID := <-confirmCh:
		return subID, nil
	case <-time.After(c.config.SubscribeTimeout):
		removePending()
		return 0, fmt.Errorf("subscription timeout after %v", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		removePending()
		return 0, ctx.Err()
	}
}

// writeJSON writes v to the connection under the write deadline.
func (c *WSClientImpl) writeJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// Close closes the WebSocket connection and stops the reconnect timer.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, ch := range c.pendingSubs {
		close(ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.wg.Wait()

	c.filterMu.Lock()
	if c.notifCh != nil {
		close(c.notifCh)
		c.notifCh = nil
	}
	c.filterMu.Unlock()

	c.setState(StateDisconnected)
	return nil
}

// readLoop reads messages from the connection and dispatches them. A read
// error marks the connection DISCONNECTED and schedules the single reconnect.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			// Reconnect in progress; wait for a fresh connection.
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.handleDisconnect(conn)
			continue
		}

		c.handleMessage(message)
	}
}

// handleDisconnect drops the dead connection and schedules one reconnect.
// A no-op when a reconnect attempt is already pending.
func (c *WSClientImpl) handleDisconnect(dead *websocket.Conn) {
	c.connMu.Lock()
	if c.conn == dead {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.setState(StateDisconnected)

	if !c.reconnecting.Swap(true) {
		go c.reconnect()
	}
}

// reconnect waits the fixed delay, reopens the connection and resubscribes.
// A failed attempt counts as another close and waits the delay again; the
// goroutine exits on success or shutdown, keeping at most one attempt live.
func (c *WSClientImpl) reconnect() {
	defer c.reconnecting.Store(false)

	for !c.closed.Load() {
		select {
		case <-c.done:
			return
		case <-time.After(c.config.ReconnectDelay):
		}

		observability.RecordReconnect()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.connect(ctx)
		cancel()
		if err != nil {
			c.setState(StateDisconnected)
			continue
		}

		c.filterMu.Lock()
		filter := c.filter
		c.filterMu.Unlock()

		if filter != nil {
			ctx, cancel := context.WithTimeout(context.Background(), c.config.SubscribeTimeout)
			_, err := c.sendSubscribe(ctx, *filter)
			cancel()
			if err != nil {
				c.connMu.Lock()
				if c.conn != nil {
					c.conn.Close()
					c.conn = nil
				}
				c.connMu.Unlock()
				c.setState(StateDisconnected)
				continue
			}
			c.setState(StateSubscribed)
		}

		return
	}
}

// handleMessage processes one incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	// Subscription confirmation first
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		c.handleSubscribeResponse(&resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "logsNotification" {
		c.handleLogsNotification(&notif)
		return
	}
}

// handleSubscribeResponse delivers a subscription confirmation.
func (c *WSClientImpl) handleSubscribeResponse(resp *wsSubscribeResponse) {
	c.pendingSubsMu.Lock()
	ch, ok := c.pendingSubs[resp.ID]
	if ok {
		delete(c.pendingSubs, resp.ID)
	}
	c.pendingSubsMu.Unlock()

	if ok {
		select {
		case ch <- resp.Result:
		default:
		}
	}
}

// handleLogsNotification forwards a notification to the subscriber channel.
func (c *WSClientImpl) handleLogsNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	value := notif.Params.Result.Value

	logNotif := LogNotification{
		Signature: value.Signature,
		Err:       value.Err,
	}
	if notif.Params.Result.Context != nil {
		logNotif.Slot = notif.Params.Result.Context.Slot
	}

	c.filterMu.Lock()
	ch := c.notifCh
	c.filterMu.Unlock()

	if ch != nil {
		select {
		case ch <- logNotif:
		case <-c.done:
		}
	}
}

// pingLoop sends the periodic liveness probe while subscribed. A probe
// failure is treated the same as a close.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.connMu.Unlock()
					c.handleDisconnect(conn)
					continue
				}
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}

// Verify interface compliance at compile time.
var _ WSClient = (*WSClientImpl)(nil)
