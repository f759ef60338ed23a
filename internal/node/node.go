// Package node declares the capabilities the binary port is served from.
// Implementations are shared by reference between connections and must be
// safe for concurrent use.
package node

import (
	"context"

	"github.com/danmuck/ledgerd/internal/protocol"
	"github.com/danmuck/ledgerd/internal/types"
	"github.com/gin-gonic/gin"
)

// Node is anything exposing an admin HTTP surface.
type Node interface {
	NodeID() string
	Kind() string
	HTTPRouter() *gin.Engine
}

type RecordStore interface {
	Get(ctx context.Context, id protocol.RecordID, key []byte) ([]byte, error)
}

// InfoProvider answers Information requests with a typed payload.
type InfoProvider interface {
	Info(ctx context.Context, tag protocol.InfoTag, key []byte) (protocol.ResponseType, []byte, error)
}

type GlobalState interface {
	GetItem(ctx context.Context, key types.Key) ([]byte, error)
	GetAllItems(ctx context.Context, tag types.KeyTag) ([]types.StoredValue, error)
	GetTrie(ctx context.Context, digest types.Digest) ([]byte, error)
}

type TransactionAcceptor interface {
	TryAccept(ctx context.Context, raw []byte) error
}

// Executor runs a transaction against a read-only view of global state.
type Executor interface {
	SpeculativeExec(ctx context.Context, raw []byte) (types.ExecutionEffects, error)
}

// Capabilities bundles every collaborator the dispatcher needs.
type Capabilities struct {
	Records  RecordStore
	Info     InfoProvider
	State    GlobalState
	Acceptor TransactionAcceptor
	Executor Executor
}
