package protocol

import (
	"fmt"

	"github.com/danmuck/ledgerd/internal/types"
)

const (
	// Version is the only protocol version this node speaks.
	Version uint16 = 1

	// HeaderLen is version(2) + type_tag(1) + id(2).
	HeaderLen = 5
)

// Header is the fixed request prefix inside a frame.
type Header struct {
	Version uint16
	TypeTag CommandTag
	ID      uint16
}

// Request is a fully decoded request. ID is opaque to the node.
type Request struct {
	Header  Header
	Command Command
}

// NewRequest builds a version 1 request around cmd.
func NewRequest(id uint16, cmd Command) Request {
	return Request{
		Header:  Header{Version: Version, TypeTag: cmd.Tag(), ID: id},
		Command: cmd,
	}
}

// Kind is a stable short name used for logs and metrics.
func (r Request) Kind() string {
	if r.Command == nil {
		return "none"
	}
	return r.Command.kind()
}

// Command is one of Get, TryAcceptTransaction or TrySpeculativeExec.
type Command interface {
	Tag() CommandTag
	kind() string
}

type Get struct {
	Query GetQuery
}

func (Get) Tag() CommandTag { return CommandGet }
func (g Get) kind() string {
	if g.Query == nil {
		return "get"
	}
	return "get_" + g.Query.kind()
}

type TryAcceptTransaction struct {
	Transaction []byte
}

func (TryAcceptTransaction) Tag() CommandTag { return CommandTryAcceptTransaction }
func (TryAcceptTransaction) kind() string    { return "try_accept_transaction" }

type TrySpeculativeExec struct {
	Transaction []byte
}

func (TrySpeculativeExec) Tag() CommandTag { return CommandTrySpeculativeExec }
func (TrySpeculativeExec) kind() string    { return "try_speculative_exec" }

// GetQuery is one of RecordQuery, InformationQuery or StateQuery.
type GetQuery interface {
	Tag() GetTag
	kind() string
}

type RecordQuery struct {
	RecordID RecordID
	Key      []byte
}

func (RecordQuery) Tag() GetTag  { return GetRecord }
func (RecordQuery) kind() string { return "record" }

type InformationQuery struct {
	InfoTag InfoTag
	Key     []byte
}

func (InformationQuery) Tag() GetTag  { return GetInformation }
func (InformationQuery) kind() string { return "information" }

type StateQuery struct {
	Query StateRequest
}

func (StateQuery) Tag() GetTag { return GetState }
func (s StateQuery) kind() string {
	if s.Query == nil {
		return "state"
	}
	return s.Query.kind()
}

// StateRequest is one of ItemRequest, AllItemsRequest or TrieRequest.
type StateRequest interface {
	Tag() StateTag
	kind() string
}

type ItemRequest struct {
	Key types.Key
}

func (ItemRequest) Tag() StateTag { return StateItem }
func (ItemRequest) kind() string  { return "state_item" }

type AllItemsRequest struct {
	KeyTag types.KeyTag
}

func (AllItemsRequest) Tag() StateTag { return StateAllItems }
func (AllItemsRequest) kind() string  { return "all_items" }

type TrieRequest struct {
	Digest types.Digest
}

func (TrieRequest) Tag() StateTag { return StateTrie }
func (TrieRequest) kind() string  { return "trie" }

func (r Request) String() string {
	return fmt.Sprintf("request{v=%d id=%d kind=%s}", r.Header.Version, r.Header.ID, r.Kind())
}
