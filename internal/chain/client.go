package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultRetryDelay = 1200 * time.Millisecond
	defaultGasBudget  = 100_000_000
)

// Client talks JSON-RPC 2.0 to a Sui full node.
type Client struct {
	url        string
	http       *http.Client
	signer     Signer
	gasBudget  uint64
	retries    uint64
	retryDelay time.Duration
	logger     *zap.Logger
	nextID     atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSigner sets the key used by SubmitMutation.
func WithSigner(s Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithGasBudget sets the gas budget for Move calls.
func WithGasBudget(budget uint64) Option {
	return func(c *Client) {
		if budget > 0 {
			c.gasBudget = budget
		}
	}
}

// WithRetries sets how many times a transport failure is retried, and the
// delay between attempts.
func WithRetries(retries uint64, delay time.Duration) Option {
	return func(c *Client) {
		c.retries = retries
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the node at url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		http:       &http.Client{Timeout: defaultTimeout},
		gasBudget:  defaultGasBudget,
		retries:    2,
		retryDelay: defaultRetryDelay,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Signer returns the configured signer, or nil.
func (c *Client) Signer() Signer {
	return c.signer
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// call performs one JSON-RPC request. Transport failures and 5xx responses
// are retried; errors reported by the node are returned as *RPCError
// without retrying.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	var result json.RawMessage
	attempt := 0
	op := func() error {
		attempt++
		res, err := c.roundTrip(ctx, body)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Debug("rpc attempt failed",
				zap.String("method", method),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		if res.Error != nil {
			return backoff.Permanent(res.Error)
		}
		result = res.Result
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), c.retries),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if out == nil || len(result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

func (c *Client) roundTrip(ctx context.Context, body []byte) (*rpcResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, &statusError{status: resp.StatusCode, body: truncate(string(raw), 200)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(&statusError{status: resp.StatusCode, body: truncate(string(raw), 200)})
	}

	var decoded rpcResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode rpc envelope: %w", err))
	}
	return &decoded, nil
}

// IsRPCError reports whether err carries an error object from the node.
func IsRPCError(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
