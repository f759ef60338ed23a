package client

import (
	"context"
	"time"

	"github.com/danmuck/ledgerd/internal/protocol"
	"github.com/danmuck/ledgerd/internal/types"
)

func (c *Client) Record(ctx context.Context, id protocol.RecordID, key []byte) ([]byte, error) {
	resp, err := c.do(ctx, protocol.Get{Query: protocol.RecordQuery{RecordID: id, Key: key}})
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// Information returns the typed payload for tag.
func (c *Client) Information(ctx context.Context, tag protocol.InfoTag, key []byte) (protocol.ResponseType, []byte, error) {
	if key == nil {
		key = []byte{}
	}
	resp, err := c.do(ctx, protocol.Get{Query: protocol.InformationQuery{InfoTag: tag, Key: key}})
	if err != nil {
		return 0, nil, err
	}
	return resp.Type, resp.Payload, nil
}

func (c *Client) Uptime(ctx context.Context) (time.Duration, error) {
	_, raw, err := c.Information(ctx, protocol.InfoUptime, nil)
	if err != nil {
		return 0, err
	}
	ms, err := protocol.DecodeU64(raw)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (c *Client) Item(ctx context.Context, key types.Key) ([]byte, error) {
	resp, err := c.do(ctx, protocol.Get{Query: protocol.StateQuery{Query: protocol.ItemRequest{Key: key}}})
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

func (c *Client) AllItems(ctx context.Context, tag types.KeyTag) ([]types.StoredValue, error) {
	resp, err := c.do(ctx, protocol.Get{Query: protocol.StateQuery{Query: protocol.AllItemsRequest{KeyTag: tag}}})
	if err != nil {
		return nil, err
	}
	return protocol.DecodeStoredValues(resp.Payload)
}

func (c *Client) Trie(ctx context.Context, digest types.Digest) ([]byte, error) {
	resp, err := c.do(ctx, protocol.Get{Query: protocol.StateQuery{Query: protocol.TrieRequest{Digest: digest}}})
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

func (c *Client) TryAccept(ctx context.Context, txn []byte) error {
	_, err := c.do(ctx, protocol.TryAcceptTransaction{Transaction: txn})
	return err
}

func (c *Client) SpeculativeExec(ctx context.Context, txn []byte) (types.ExecutionEffects, error) {
	resp, err := c.do(ctx, protocol.TrySpeculativeExec{Transaction: txn})
	if err != nil {
		return types.ExecutionEffects{}, err
	}
	return types.DecodeExecutionEffects(resp.Payload)
}
