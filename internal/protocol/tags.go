package protocol

import "fmt"

// TagLevel names the position in the request taxonomy a tag was read from.
type TagLevel uint8

const (
	LevelCommand TagLevel = iota + 1
	LevelGet
	LevelState
	LevelRecordID
	LevelInformation
	LevelKeyTag
)

func (l TagLevel) String() string {
	switch l {
	case LevelCommand:
		return "command"
	case LevelGet:
		return "get"
	case LevelState:
		return "state"
	case LevelRecordID:
		return "record_id"
	case LevelInformation:
		return "information"
	case LevelKeyTag:
		return "key_tag"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// CommandTag is the envelope type_tag.
type CommandTag uint8

const (
	CommandGet                  CommandTag = 0
	CommandTryAcceptTransaction CommandTag = 1
	CommandTrySpeculativeExec   CommandTag = 2
)

func (t CommandTag) Known() bool {
	return t <= CommandTrySpeculativeExec
}

func (t CommandTag) String() string {
	switch t {
	case CommandGet:
		return "get"
	case CommandTryAcceptTransaction:
		return "try_accept_transaction"
	case CommandTrySpeculativeExec:
		return "try_speculative_exec"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// GetTag selects the Get sub-request.
type GetTag uint8

const (
	GetRecord      GetTag = 0
	GetInformation GetTag = 1
	GetState       GetTag = 2
)

func (t GetTag) Known() bool {
	return t <= GetState
}

func (t GetTag) String() string {
	switch t {
	case GetRecord:
		return "record"
	case GetInformation:
		return "information"
	case GetState:
		return "state"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// StateTag selects the global-state query.
type StateTag uint8

const (
	StateItem     StateTag = 0
	StateAllItems StateTag = 1
	StateTrie     StateTag = 2
)

func (t StateTag) Known() bool {
	return t <= StateTrie
}

func (t StateTag) String() string {
	switch t {
	case StateItem:
		return "item"
	case StateAllItems:
		return "all_items"
	case StateTrie:
		return "trie"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// RecordID names a raw record table.
type RecordID uint8

const (
	RecordBlockHeader        RecordID = 0
	RecordBlockBody          RecordID = 1
	RecordApprovalsHashes    RecordID = 2
	RecordBlockMetadata      RecordID = 3
	RecordTransaction        RecordID = 4
	RecordExecutionResult    RecordID = 5
	RecordTransfer           RecordID = 6
	RecordFinalizedApprovals RecordID = 7
)

var recordNames = map[RecordID]string{
	RecordBlockHeader:        "block_header",
	RecordBlockBody:          "block_body",
	RecordApprovalsHashes:    "approvals_hashes",
	RecordBlockMetadata:      "block_metadata",
	RecordTransaction:        "transaction",
	RecordExecutionResult:    "execution_result",
	RecordTransfer:           "transfer",
	RecordFinalizedApprovals: "finalized_approvals",
}

func (id RecordID) Known() bool {
	_, ok := recordNames[id]
	return ok
}

func (id RecordID) String() string {
	if name, ok := recordNames[id]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(id))
}

// ParseRecordID resolves a record table by name.
func ParseRecordID(name string) (RecordID, bool) {
	for id, n := range recordNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// InfoTag selects a node information query.
type InfoTag uint16

const (
	InfoBlockHeader         InfoTag = 0
	InfoSignedBlock         InfoTag = 1
	InfoTransaction         InfoTag = 2
	InfoPeers               InfoTag = 3
	InfoUptime              InfoTag = 4
	InfoLastProgress        InfoTag = 5
	InfoReactorState        InfoTag = 6
	InfoNetworkName         InfoTag = 7
	InfoAvailableBlockRange InfoTag = 10
	InfoChainspecRawBytes   InfoTag = 13
	InfoNodeStatus          InfoTag = 14
)

var infoNames = map[InfoTag]string{
	InfoBlockHeader:         "block_header",
	InfoSignedBlock:         "signed_block",
	InfoTransaction:         "transaction",
	InfoPeers:               "peers",
	InfoUptime:              "uptime",
	InfoLastProgress:        "last_progress",
	InfoReactorState:        "reactor_state",
	InfoNetworkName:         "network_name",
	InfoAvailableBlockRange: "available_block_range",
	InfoChainspecRawBytes:   "chainspec_raw_bytes",
	InfoNodeStatus:          "node_status",
}

func (t InfoTag) Known() bool {
	_, ok := infoNames[t]
	return ok
}

// TakesKey reports whether requests for t carry a lookup key. All other
// tags require an empty key.
func (t InfoTag) TakesKey() bool {
	switch t {
	case InfoBlockHeader, InfoSignedBlock, InfoTransaction:
		return true
	default:
		return false
	}
}

func (t InfoTag) String() string {
	if name, ok := infoNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint16(t))
}

// ParseInfoTag resolves an information tag by name.
func ParseInfoTag(name string) (InfoTag, bool) {
	for tag, n := range infoNames {
		if n == name {
			return tag, true
		}
	}
	return 0, false
}
