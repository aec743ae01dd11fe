package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"flashloan-executor/internal/observability"
)

// Retry defaults for HTTPClient.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultMaxDelay   = 10 * time.Second
)

// HTTPClient implements RPCClient over go-ethereum's JSON-RPC client.
// Transport failures and non-2xx responses are retried with exponential
// backoff; errors reported by the node are returned as *RPCError at once.
type HTTPClient struct {
	rpc        *rpc.Client
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.httpClient.Timeout = d }
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) { c.maxRetries = n }
}

// WithRetryDelay sets the first backoff delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.retryDelay = d }
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.maxDelay = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) { c.httpClient = client }
}

// NewHTTPClient creates a client for an http(s) endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}

	client, err := rpc.DialOptions(context.Background(), endpoint, rpc.WithHTTPClient(c.httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	c.rpc = client
	return c, nil
}

var _ RPCClient = (*HTTPClient)(nil)

// RPCError is an error object returned by the node. Reverted calls carry
// the revert reason in Message.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Close releases the underlying client.
func (c *HTTPClient) Close() {
	c.rpc.Close()
}

func (c *HTTPClient) call(ctx context.Context, result any, method string, args ...any) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, c.maxDelay)
		}

		err := c.rpc.CallContext(ctx, result, method, args...)
		if err == nil {
			return nil
		}
		var nodeErr rpc.Error
		if errors.As(err, &nodeErr) {
			return &RPCError{Code: nodeErr.ErrorCode(), Message: nodeErr.Error()}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}
	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}

// GasPrice calls eth_gasPrice.
func (c *HTTPClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var price hexutil.Big
	if err := c.call(ctx, &price, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return price.ToInt(), nil
}

// BlockNumber calls eth_blockNumber.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := c.call(ctx, &n, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// Call runs eth_call against the latest block.
func (c *HTTPClient) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := map[string]any{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	var out hexutil.Bytes
	if err := c.call(ctx, &out, "eth_call", msg, "latest"); err != nil {
		return nil, err
	}
	return out, nil
}
