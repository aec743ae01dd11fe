package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestWSClient_SubscribeNewHeads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != "eth_subscribe" {
			t.Errorf("expected eth_subscribe, got %s", req.Method)
		}

		reply := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0xabc"}
		if err := c.WriteJSON(reply); err != nil {
			t.Errorf("write response: %v", err)
			return
		}

		time.Sleep(50 * time.Millisecond)
		notif := map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "eth_subscription",
			"params": map[string]interface{}{
				"subscription": "0xabc",
				"result": map[string]interface{}{
					"number":        "0x64",
					"timestamp":     "0x6553f100",
					"baseFeePerGas": "0x77359400", // 2 gwei
				},
			},
		}
		if err := c.WriteJSON(notif); err != nil {
			t.Errorf("write notification: %v", err)
			return
		}

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := NewWSClient(ctx, wsURL, nil, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	heads, err := client.SubscribeNewHeads(ctx)
	if err != nil {
		t.Fatalf("SubscribeNewHeads: %v", err)
	}

	select {
	case h := <-heads:
		if h.Number != 100 {
			t.Errorf("expected block 100, got %d", h.Number)
		}
		if h.BaseFee == nil || h.BaseFee.Cmp(big.NewInt(2_000_000_000)) != 0 {
			t.Errorf("expected base fee 2 gwei, got %v", h.BaseFee)
		}
		if h.Timestamp != 1_700_000_000 {
			t.Errorf("expected timestamp 1700000000, got %d", h.Timestamp)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for head")
	}
}

func TestWSClient_CloseIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := NewWSClient(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"), nil, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := client.SubscribeNewHeads(context.Background()); err == nil {
		t.Error("expected error subscribing on closed client")
	}
}

func TestWSClient_ResubscribesAfterDrop(t *testing.T) {
	var conns atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		n := conns.Add(1)

		var req wsRequest
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		subID := fmt.Sprintf("0x%d", n)
		if err := c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": subID}); err != nil {
			return
		}
		if n == 1 {
			return // drop the first connection right after subscribing
		}
		c.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "eth_subscription",
			"params": map[string]interface{}{
				"subscription": subID,
				"result":       map[string]interface{}{"number": "0x2a", "timestamp": "0x1"},
			},
		})
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := DefaultWSConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := NewWSClient(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), &cfg, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	heads, err := client.SubscribeNewHeads(ctx)
	if err != nil {
		t.Fatalf("SubscribeNewHeads: %v", err)
	}

	select {
	case h := <-heads:
		if h.Number != 42 {
			t.Errorf("expected block 42, got %d", h.Number)
		}
		if h.BaseFee != nil {
			t.Errorf("expected no base fee, got %s", h.BaseFee)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for head after reconnect")
	}
	if got := conns.Load(); got < 2 {
		t.Errorf("expected a second connection, got %d", got)
	}
}

func TestWSClient_CloseInterruptsReconnect(t *testing.T) {
	var conns atomic.Int32
	resubscribing := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		n := conns.Add(1)

		var req wsRequest
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		if n == 1 {
			c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0x1"})
			return
		}
		// never answer the resubscription
		if n == 2 {
			close(resubscribing)
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := DefaultWSConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.ReadTimeout = time.Minute

	client, err := NewWSClient(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"), &cfg, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	heads, err := client.SubscribeNewHeads(context.Background())
	if err != nil {
		t.Fatalf("SubscribeNewHeads: %v", err)
	}

	select {
	case <-resubscribing:
	case <-time.After(5 * time.Second):
		t.Fatal("client never resubscribed")
	}

	closed := make(chan struct{})
	go func() {
		_ = client.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a pending resubscription")
	}
	if _, open := <-heads; open {
		t.Error("expected heads channel closed")
	}
}
