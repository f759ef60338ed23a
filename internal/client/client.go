// Package client is a binary port client: one connection, one request in
// flight, response echo verified against the request that was sent.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/danmuck/ledgerd/internal/protocol"
	"github.com/danmuck/ledgerd/internal/protocol/frame"
	"github.com/danmuck/ledgerd/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

var (
	ErrEchoMismatch = errors.New("client: response echo does not match request")
	// ErrOutcomeUnknown means the request was written but no response was
	// read; the node may or may not have acted on it.
	ErrOutcomeUnknown = errors.New("client: request outcome unknown")
	ErrClosed         = errors.New("client: closed")
)

// ResponseError is a well-formed response carrying a non-zero error code.
type ResponseError struct {
	Code protocol.ErrorCode
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("client: node answered %s (%d)", e.Code, uint16(e.Code))
}

type Client struct {
	addr    string
	cfg     session.ClientConfig
	breaker *gobreaker.CircuitBreaker
	dialer  net.Dialer

	mu     sync.Mutex
	nc     net.Conn
	nextID uint16
	rng    *rand.Rand
	closed bool
}

func New(addr string, cfg session.ClientConfig) *Client {
	cfg = cfg.WithDefaults()
	c := &Client{
		addr: addr,
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	c.dialer.Timeout = cfg.ConnectTimeout
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "binary-port:" + addr,
		Timeout: cfg.Backoff.MaxDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxAttempts)*2
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("client breaker state change")
		},
	})
	return c
}

// Call sends cmd and returns the node's response. Non-zero error codes are
// returned in the response, not as an error.
func (c *Client) Call(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return protocol.Response{}, ErrClosed
	}

	c.nextID++
	body, err := protocol.EncodeRequest(protocol.NewRequest(c.nextID, cmd))
	if err != nil {
		return protocol.Response{}, err
	}
	wire, err := frame.Encode(body, c.cfg.Limits())
	if err != nil {
		return protocol.Response{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := session.WaitBackoff(ctx, c.cfg.Backoff, attempt-1, c.rng); err != nil {
				return protocol.Response{}, err
			}
		}
		var sent bool
		out, err := c.breaker.Execute(func() (interface{}, error) {
			resp, wrote, err := c.exchange(ctx, wire)
			sent = wrote
			return resp, err
		})
		if err == nil {
			return out.(protocol.Response), nil
		}
		lastErr = err
		if sent || ctx.Err() != nil || errors.Is(err, gobreaker.ErrOpenState) {
			break
		}
		log.Debug().Err(err).Int("attempt", attempt).Str("addr", c.addr).Msg("client request retry")
	}
	return protocol.Response{}, lastErr
}

// exchange performs one write/read on the current connection, dialing if
// needed. wrote reports whether the request reached the socket.
func (c *Client) exchange(ctx context.Context, wire []byte) (protocol.Response, bool, error) {
	if c.nc == nil {
		nc, err := c.dialer.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			return protocol.Response{}, false, err
		}
		c.nc = nc
	}
	nc := c.nc
	stop := context.AfterFunc(ctx, func() { _ = nc.SetDeadline(time.Now()) })
	defer stop()

	if err := nc.SetWriteDeadline(c.deadline(ctx, c.cfg.WriteTimeout)); err != nil {
		c.reset()
		return protocol.Response{}, false, err
	}
	if _, err := nc.Write(wire); err != nil {
		c.reset()
		return protocol.Response{}, false, err
	}

	if err := nc.SetReadDeadline(c.deadline(ctx, c.cfg.ReadTimeout)); err != nil {
		c.reset()
		return protocol.Response{}, true, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	}
	fr, err := frame.ReadFrame(nc, c.cfg.ResponseLimits())
	if err != nil {
		c.reset()
		return protocol.Response{}, true, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	}
	resp, err := protocol.DecodeResponse(fr.Body())
	if err != nil {
		c.reset()
		return protocol.Response{}, true, err
	}
	if !bytes.Equal(resp.Request, wire) {
		c.reset()
		return protocol.Response{}, true, ErrEchoMismatch
	}
	return resp, true, nil
}

func (c *Client) deadline(ctx context.Context, d time.Duration) time.Time {
	at := time.Now().Add(d)
	if ctxAt, ok := ctx.Deadline(); ok && ctxAt.Before(at) {
		return ctxAt
	}
	return at
}

func (c *Client) reset() {
	if c.nc != nil {
		_ = c.nc.Close()
		c.nc = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.reset()
	return nil
}

// do runs cmd and turns non-zero codes into *ResponseError.
func (c *Client) do(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	resp, err := c.Call(ctx, cmd)
	if err != nil {
		return resp, err
	}
	if !resp.OK() {
		return resp, &ResponseError{Code: resp.Code}
	}
	return resp, nil
}
