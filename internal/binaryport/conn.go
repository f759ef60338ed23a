package binaryport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/danmuck/ledgerd/internal/observability"
	"github.com/danmuck/ledgerd/internal/protocol"
	"github.com/danmuck/ledgerd/internal/protocol/frame"
	"github.com/danmuck/ledgerd/internal/protocol/session"
	"github.com/rs/zerolog"
)

type connState uint8

const (
	stateIdle connState = iota
	stateAwaitingFrame
	stateDecoding
	stateDispatching
	stateEncoding
	stateSending
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAwaitingFrame:
		return "awaiting_frame"
	case stateDecoding:
		return "decoding"
	case stateDispatching:
		return "dispatching"
	case stateEncoding:
		return "encoding"
	case stateSending:
		return "sending"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close reasons, also used as metric labels.
const (
	ClosePeer        = "peer_closed"
	CloseIdle        = "idle_timeout"
	CloseShutdown    = "shutdown"
	ClosePipelined   = "pipelined_request"
	CloseFrameTooBig = "frame_too_large"
	CloseShortFrame  = "short_frame"
	CloseReadTimeout = "read_timeout"
	CloseReadError   = "read_error"
	CloseWriteError  = "write_error"
)

// conn is one served connection. Everything except the peek watcher runs on
// the connection goroutine.
type conn struct {
	id  string
	nc  net.Conn
	br  *bufio.Reader
	cfg session.ServerConfig
	srv *Server
	log zerolog.Logger

	state      connState
	term       *session.Terminator
	lastActive time.Time

	// peek carries the result of a pending br.Peek(1). At most one watcher
	// runs at a time; watching is true while its result is unread.
	peek     chan error
	watching bool
}

func newConn(id string, nc net.Conn, srv *Server, logger zerolog.Logger) *conn {
	now := time.Now()
	cfg := srv.cfg.Session
	return &conn{
		id:         id,
		nc:         nc,
		br:         bufio.NewReader(nc),
		cfg:        cfg,
		srv:        srv,
		log:        logger,
		term:       session.NewTerminator(now, cfg.InitialLifetime, cfg.Termination),
		lastActive: now,
		peek:       make(chan error, 1),
	}
}

func (c *conn) setState(s connState) {
	c.state = s
	if e := c.log.Trace(); e.Enabled() {
		e.Str("state", s.String()).Msg("binary port state")
	}
}

// watch starts a watcher unless one is already pending.
func (c *conn) watch() {
	if c.watching {
		return
	}
	c.watching = true
	go func() {
		_, err := c.br.Peek(1)
		c.peek <- err
	}()
}

// arrived reports a finished watcher without blocking.
func (c *conn) arrived() (bool, error) {
	if !c.watching {
		return false, nil
	}
	select {
	case err := <-c.peek:
		c.watching = false
		return true, err
	default:
		return false, nil
	}
}

// serve runs the state machine until the connection closes and returns the
// close reason.
func (c *conn) serve(ctx context.Context) string {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		c.setState(stateIdle)
		reason, ok := c.awaitFrame(ctx)
		if !ok {
			return c.closeWith(reason)
		}

		if err := c.nc.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			return c.closeWith(CloseReadError)
		}
		fr, err := frame.ReadFrame(c.br, c.cfg.Limits())
		if err != nil {
			return c.closeWith(readCloseReason(err))
		}
		if err := c.nc.SetReadDeadline(time.Time{}); err != nil {
			return c.closeWith(CloseReadError)
		}
		// bytes read along with the frame are the start of a pipelined request
		if c.br.Buffered() > 0 {
			return c.closeWith(ClosePipelined)
		}
		started := time.Now()
		c.lastActive = started
		c.watch()

		c.setState(stateDecoding)
		req, derr := protocol.DecodeRequest(fr.Body())
		kind := req.Kind()
		var out protocol.Outcome
		if derr != nil {
			kind = "undecodable"
			out = decodeOutcome(derr)
			c.log.Debug().
				Err(derr).
				Uint16("id", req.Header.ID).
				Str("error_code", out.Code.String()).
				Msg("binary port request rejected at decode")
		} else {
			c.setState(stateDispatching)
			if !c.srv.allow() {
				out = protocol.Failure(protocol.RequestThrottled)
			} else {
				var reason string
				out, reason = c.dispatch(ctx, req)
				if reason != "" {
					return c.closeWith(reason)
				}
			}
		}

		c.setState(stateEncoding)
		body := protocol.EncodeResponse(fr.Raw, out)
		if uint64(len(body)) > uint64(c.cfg.MaxResponseBytes) {
			c.log.Warn().
				Str("kind", kind).
				Int("size", len(body)).
				Uint32("max", c.cfg.MaxResponseBytes).
				Msg("binary port response too large")
			out = protocol.Failure(protocol.InternalError)
			body = protocol.EncodeResponse(fr.Raw, out)
		}
		if ok, err := c.arrived(); ok {
			return c.closeWith(peekCloseReason(err))
		}

		c.setState(stateSending)
		if err := c.nc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			return c.closeWith(CloseWriteError)
		}
		if err := frame.WriteFrame(c.nc, body, c.cfg.ResponseLimits()); err != nil {
			c.log.Warn().Err(err).Msg("binary port write failed")
			return c.closeWith(CloseWriteError)
		}

		done := time.Now()
		c.term.Served(done, req.Command)
		c.lastActive = done
		observability.RecordBinaryRequest(kind, uint16(out.Code), done.Sub(started))
		c.log.Debug().
			Uint16("id", req.Header.ID).
			Str("kind", kind).
			Str("error_code", out.Code.String()).
			Dur("elapsed", done.Sub(started)).
			Time("keep_until", c.term.Deadline()).
			Msg("binary port request served")
	}
}

// awaitFrame parks in AwaitingFrame until the first byte of the next frame
// is buffered.
func (c *conn) awaitFrame(ctx context.Context) (string, bool) {
	c.setState(stateAwaitingFrame)
	c.watch()
	closeAt := c.term.CloseAt(c.lastActive, c.cfg.IdleTimeout)
	timer := time.NewTimer(time.Until(closeAt))
	defer timer.Stop()

	for {
		select {
		case err := <-c.peek:
			c.watching = false
			if err != nil {
				return peekCloseReason(err), false
			}
			return "", true
		case <-timer.C:
			// the terminator deadline may have moved since the timer was armed
			next := c.term.CloseAt(c.lastActive, c.cfg.IdleTimeout)
			if wait := time.Until(next); wait > 0 {
				timer.Reset(wait)
				continue
			}
			return CloseIdle, false
		case <-ctx.Done():
			return CloseShutdown, false
		}
	}
}

// dispatch runs the request while watching the socket. Any byte or error
// from the peer before the call returns ends the connection and cancels the
// call; its result is discarded.
func (c *conn) dispatch(ctx context.Context, req protocol.Request) (protocol.Outcome, string) {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make(chan protocol.Outcome, 1)
	go func() {
		result <- c.srv.dispatcher.Dispatch(dctx, req)
	}()

	select {
	case out := <-result:
		return out, ""
	case err := <-c.peek:
		c.watching = false
		cancel()
		return protocol.Outcome{}, peekCloseReason(err)
	case <-ctx.Done():
		return protocol.Outcome{}, CloseShutdown
	}
}

func (c *conn) closeWith(reason string) string {
	c.setState(stateClosed)
	_ = c.nc.Close()
	lvl := c.log.Debug()
	switch reason {
	case ClosePipelined, CloseFrameTooBig, CloseShortFrame, CloseReadError, CloseWriteError:
		lvl = c.log.Warn()
	}
	lvl.Str("reason", reason).Msg("binary port connection closed")
	return reason
}

func decodeOutcome(err error) protocol.Outcome {
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		return protocol.Failure(de.Code)
	}
	return protocol.Failure(protocol.MalformedPayload)
}

func peekCloseReason(err error) string {
	switch {
	case err == nil:
		return ClosePipelined
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return ClosePeer
	default:
		return CloseReadError
	}
}

func readCloseReason(err error) string {
	switch {
	case errors.Is(err, frame.ErrFrameTooLarge):
		return CloseFrameTooBig
	case frame.IsStructural(err):
		return CloseShortFrame
	case errors.Is(err, os.ErrDeadlineExceeded):
		return CloseReadTimeout
	case errors.Is(err, io.EOF):
		return ClosePeer
	default:
		return CloseReadError
	}
}
