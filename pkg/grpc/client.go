package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/logger"
)

// RemoteError is an error returned by the server's handler.
type RemoteError struct {
	Method  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Method, e.Message)
}

// Unwrap maps the wire code back to the matching sentinel.
func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case CodeInvalidInput:
		return apperrors.ErrInvalidInput
	case CodeInterrupted:
		return apperrors.ErrInterrupted
	case CodeNotFound:
		return apperrors.ErrNotFound
	default:
		return apperrors.ErrInternal
	}
}

// Client is a lightweight JSON-over-TCP RPC client. A connection broken by
// a transport error or a cancelled call is dropped and redialed on the next
// call.
type Client struct {
	addr    string
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	mu      sync.Mutex
	nextID  atomic.Int64
}

// NewClient returns a client for addr that connects on its first call.
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// Dial connects to an RPC server at the given address.
func Dial(addr string) (*Client, error) {
	return DialContext(context.Background(), addr)
}

// DialContext connects to an RPC server, giving up when ctx is done.
func DialContext(ctx context.Context, addr string) (*Client, error) {
	c := &Client{addr: addr}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w: %v", c.addr, apperrors.ErrShardUnavailable, err)
	}
	c.conn = conn
	c.encoder = json.NewEncoder(conn)
	c.decoder = json.NewDecoder(conn)
	return nil
}

func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// Call invokes the named RPC method with params and decodes the response
// into result. The context deadline bounds the whole exchange and is
// forwarded to the server handler. Call is safe for concurrent use.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return err
		}
	}

	id := c.nextID.Add(1)

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}

	req := Request{
		Method:    method,
		ID:        fmt.Sprintf("%d", id),
		RequestID: logger.RequestID(ctx),
		Params:    raw,
	}
	if deadline, ok := ctx.Deadline(); ok {
		req.TimeoutMs = time.Until(deadline).Milliseconds()
		if req.TimeoutMs <= 0 {
			return ctx.Err()
		}
		c.conn.SetDeadline(deadline)
	} else {
		c.conn.SetDeadline(time.Time{})
	}

	// Cancellation expires the deadline to unblock a pending read.
	conn := c.conn
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := c.encoder.Encode(req); err != nil {
		c.drop()
		return c.transportErr(ctx, "sending request", err)
	}

	var resp Response
	if err := c.decoder.Decode(&resp); err != nil {
		c.drop()
		return c.transportErr(ctx, "reading response", err)
	}
	if resp.ID != req.ID {
		c.drop()
		return fmt.Errorf("rpc %s: response id %q does not match request %q", method, resp.ID, req.ID)
	}

	if resp.Error != "" {
		return &RemoteError{Method: method, Code: resp.Code, Message: resp.Error}
	}

	if result != nil {
		data, err := json.Marshal(resp.Data)
		if err != nil {
			return fmt.Errorf("marshaling response data: %w", err)
		}
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshaling into result: %w", err)
		}
	}

	return nil
}

func (c *Client) transportErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s to %s: %w", op, c.addr, ctxErr)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		// The connection deadline mirrors the context's and may fire first.
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("%s to %s: %w", op, c.addr, context.DeadlineExceeded)
		}
		return fmt.Errorf("%s to %s: %w: %v", op, c.addr, apperrors.ErrTimeout, err)
	}
	return fmt.Errorf("%s to %s: %w: %v", op, c.addr, apperrors.ErrShardUnavailable, err)
}

// Close closes the underlying TCP connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
