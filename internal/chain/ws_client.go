package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClientClosed is returned by a closed websocket client.
var ErrClientClosed = errors.New("websocket client closed")

// WSClientConfig configures the websocket head stream.
type WSClientConfig struct {
	HandshakeTimeout  time.Duration
	ReconnectDelay    time.Duration // first redial delay, doubled per failure
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration // also bounds the wait for a subscription id
	WriteTimeout      time.Duration
	HeadBuffer        int // per subscriber
}

// DefaultWSConfig returns the default websocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		HandshakeTimeout:  10 * time.Second,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeadBuffer:        64,
	}
}

// WSHeadClient streams newHeads over one websocket connection and
// resubscribes on a fresh connection when it drops. Every subscriber gets
// every head; a subscriber whose buffer is full misses heads instead of
// stalling the stream.
type WSHeadClient struct {
	endpoint string
	cfg      WSClientConfig
	logger   *zap.Logger
	dialer   websocket.Dialer
	nextID   atomic.Uint64

	mu      sync.Mutex
	conn    *websocket.Conn
	sinks   []chan Head
	running bool
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

var _ WSClient = (*WSHeadClient)(nil)

// NewWSClient dials endpoint. A nil config uses DefaultWSConfig.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig, logger *zap.Logger) (*WSHeadClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.HeadBuffer <= 0 {
		cfg.HeadBuffer = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &WSHeadClient{
		endpoint: endpoint,
		cfg:      cfg,
		logger:   logger,
		dialer:   websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		done:     make(chan struct{}),
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

// SubscribeNewHeads returns a channel of new block headers. The first call
// sends eth_subscribe and starts the stream. The channel is closed by Close.
func (c *WSHeadClient) SubscribeNewHeads(ctx context.Context) (<-chan Head, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}

	if !c.running {
		subID, err := c.subscribe(ctx, c.conn)
		if err != nil {
			return nil, err
		}
		c.running = true
		c.wg.Add(1)
		go c.session(c.conn, subID)
	}

	ch := make(chan Head, c.cfg.HeadBuffer)
	c.sinks = append(c.sinks, ch)
	return ch, nil
}

// Close closes the connection and every subscriber channel. It is safe to
// call more than once.
func (c *WSHeadClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.WriteTimeout))
		_ = conn.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	for _, ch := range c.sinks {
		close(ch)
	}
	c.sinks = nil
	c.mu.Unlock()
	return nil
}

func (c *WSHeadClient) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})
	return conn, nil
}

// subscribe sends eth_subscribe on conn and reads until the reply arrives.
// It must run before anything else reads from conn.
func (c *WSHeadClient) subscribe(ctx context.Context, conn *websocket.Conn) (string, error) {
	id := c.nextID.Add(1)
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	req := wsRequest{JSONRPC: "2.0", ID: id, Method: "eth_subscribe", Params: []interface{}{"newHeads"}}
	if err := conn.WriteJSON(req); err != nil {
		return "", fmt.Errorf("write eth_subscribe: %w", err)
	}

	deadline := time.Now().Add(c.cfg.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	for {
		msg, err := readMessage(conn)
		if err != nil {
			return "", fmt.Errorf("await subscription: %w", err)
		}
		if msg == nil || msg.ID != id {
			continue
		}
		if msg.Error != nil {
			return "", msg.Error
		}
		var subID string
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return "", fmt.Errorf("decode subscription id: %w", err)
		}
		return subID, nil
	}
}

// session pumps heads until Close, redialing whenever the stream breaks.
func (c *WSHeadClient) session(conn *websocket.Conn, subID string) {
	defer c.wg.Done()
	for {
		err := c.stream(conn, subID)
		if c.isClosed() {
			return
		}
		c.logger.Warn("head stream interrupted", zap.Error(err))
		_ = conn.Close()

		if conn, subID = c.resume(); conn == nil {
			return
		}
		c.logger.Info("head stream resumed", zap.String("subscription", subID))
	}
}

func (c *WSHeadClient) stream(conn *websocket.Conn, subID string) error {
	stop := make(chan struct{})
	defer close(stop)
	go c.keepAlive(conn, stop)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		msg, err := readMessage(conn)
		if err != nil {
			return err
		}
		if msg == nil || msg.Method != "eth_subscription" || msg.Params == nil {
			continue
		}
		if msg.Params.Subscription != subID {
			continue
		}
		c.deliver(msg.Params.Result.head())
	}
}

// resume redials with exponential backoff until a new subscription is
// confirmed or the client is closed (nil conn).
func (c *WSHeadClient) resume() (*websocket.Conn, string) {
	delay := c.cfg.ReconnectDelay
	for {
		select {
		case <-c.done:
			return nil, ""
		case <-time.After(delay):
		}

		conn, subID, err := c.reconnect()
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				_ = conn.Close()
				return nil, ""
			}
			c.conn = conn
			c.mu.Unlock()
			return conn, subID
		}

		delay = min(delay*2, c.cfg.MaxReconnectDelay)
		c.logger.Warn("websocket reconnect failed", zap.Duration("retry_in", delay), zap.Error(err))
	}
}

// reconnect dials and resubscribes. Close aborts it at any point.
func (c *WSHeadClient) reconnect() (*websocket.Conn, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout+c.cfg.ReadTimeout)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, "", err
	}
	// subscribe blocks on read deadlines, so unblock it by closing conn.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	subID, err := c.subscribe(ctx, conn)
	if !stop() {
		if err == nil {
			err = ctx.Err()
		}
	}
	if err != nil {
		_ = conn.Close()
		return nil, "", err
	}
	return conn, subID, nil
}

func (c *WSHeadClient) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// a dead connection surfaces as a read error in stream
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
		}
	}
}

func (c *WSHeadClient) deliver(h Head) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.sinks {
		select {
		case ch <- h:
		default:
			c.logger.Debug("subscriber behind, head dropped", zap.Uint64("block", h.Number))
		}
	}
}

func (c *WSHeadClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readMessage reads one frame. Frames that are not JSON-RPC objects yield
// a nil message.
func readMessage(conn *websocket.Conn) (*wsMessage, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, nil
	}
	return &msg, nil
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsMessage covers both replies (ID set) and subscription notifications.
type wsMessage struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Params *struct {
		Subscription string `json:"subscription"`
		Result       wsHead `json:"result"`
	} `json:"params"`
}

type wsHead struct {
	Number        hexutil.Uint64 `json:"number"`
	Timestamp     hexutil.Uint64 `json:"timestamp"`
	BaseFeePerGas *hexutil.Big   `json:"baseFeePerGas"`
}

func (h wsHead) head() Head {
	out := Head{Number: uint64(h.Number), Timestamp: int64(h.Timestamp)}
	if h.BaseFeePerGas != nil {
		out.BaseFee = new(big.Int).Set(h.BaseFeePerGas.ToInt())
	}
	return out
}
