package status

import "github.com/danmuck/ledgerd/internal/types"

type Peer struct {
	NodeID  string `cbor:"1,keyasint" json:"node_id"`
	Address string `cbor:"2,keyasint" json:"address"`
}

// NodeStatus is the NodeStatus information payload.
type NodeStatus struct {
	NetworkName      string       `cbor:"1,keyasint" json:"network_name"`
	ChainName        string       `cbor:"2,keyasint" json:"chain_name"`
	Version          string       `cbor:"3,keyasint" json:"version"`
	UptimeMillis     uint64       `cbor:"4,keyasint" json:"uptime_ms"`
	ReactorState     string       `cbor:"5,keyasint" json:"reactor_state"`
	PeerCount        uint32       `cbor:"6,keyasint" json:"peer_count"`
	StateRoot        types.Digest `cbor:"7,keyasint" json:"-"`
	LatestBlock      types.Digest `cbor:"8,keyasint" json:"-"`
	AvailableLow     uint64       `cbor:"9,keyasint" json:"available_low"`
	AvailableHigh    uint64       `cbor:"10,keyasint" json:"available_high"`
	LastProgressUnix int64        `cbor:"11,keyasint" json:"last_progress_ms"`
}

// SignedBlock joins a block header with its body.
type SignedBlock struct {
	Hash   types.Digest `cbor:"1,keyasint"`
	Header []byte       `cbor:"2,keyasint"`
	Body   []byte       `cbor:"3,keyasint"`
}

func DecodePeers(raw []byte) ([]Peer, error) {
	var out []Peer
	if err := types.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeNodeStatus(raw []byte) (NodeStatus, error) {
	var out NodeStatus
	if err := types.Unmarshal(raw, &out); err != nil {
		return NodeStatus{}, err
	}
	return out, nil
}
