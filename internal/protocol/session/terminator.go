package session

import (
	"time"

	"github.com/danmuck/ledgerd/internal/protocol"
)

// TerminationDelays is how long each request kind keeps its connection alive
// after it was served.
type TerminationDelays struct {
	Record      time.Duration
	Information time.Duration
	StateItem   time.Duration
	AllItems    time.Duration
	Trie        time.Duration
	Accept      time.Duration
	Exec        time.Duration
}

func DefaultTerminationDelays() TerminationDelays {
	return TerminationDelays{
		Information: 5 * time.Second,
		Accept:      24 * time.Second,
	}
}

// For returns the delay for cmd. Unknown or nil commands get none.
func (d TerminationDelays) For(cmd protocol.Command) time.Duration {
	switch c := cmd.(type) {
	case protocol.Get:
		switch q := c.Query.(type) {
		case protocol.RecordQuery:
			return d.Record
		case protocol.InformationQuery:
			return d.Information
		case protocol.StateQuery:
			switch q.Query.(type) {
			case protocol.ItemRequest:
				return d.StateItem
			case protocol.AllItemsRequest:
				return d.AllItems
			case protocol.TrieRequest:
				return d.Trie
			}
		}
	case protocol.TryAcceptTransaction:
		return d.Accept
	case protocol.TrySpeculativeExec:
		return d.Exec
	}
	return 0
}

// Terminator tracks the keep-alive deadline of one connection. It is owned
// by the connection goroutine and is not safe for concurrent use.
type Terminator struct {
	delays   TerminationDelays
	deadline time.Time
}

func NewTerminator(now time.Time, initial time.Duration, delays TerminationDelays) *Terminator {
	return &Terminator{delays: delays, deadline: now.Add(initial)}
}

// Served pushes the deadline out to now plus the delay for cmd. The
// deadline never moves backwards.
func (t *Terminator) Served(now time.Time, cmd protocol.Command) {
	next := now.Add(t.delays.For(cmd))
	if next.After(t.deadline) {
		t.deadline = next
	}
}

func (t *Terminator) Deadline() time.Time {
	return t.deadline
}

// CloseAt is when an idle connection last active at lastActive may be
// closed: after both the idle timeout and the terminator deadline.
func (t *Terminator) CloseAt(lastActive time.Time, idle time.Duration) time.Time {
	at := lastActive.Add(idle)
	if t.deadline.After(at) {
		return t.deadline
	}
	return at
}
