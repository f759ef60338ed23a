package protocol

import (
	"errors"
	"fmt"

	"github.com/danmuck/ledgerd/internal/protocol/wire"
)

var ErrMalformedResponse = errors.New("protocol: malformed response")

// ResponseType tags the payload of a successful response.
type ResponseType uint8

// Record payloads reuse their RecordID number.
const (
	ResponseBlockHeader        ResponseType = ResponseType(RecordBlockHeader)
	ResponseBlockBody          ResponseType = ResponseType(RecordBlockBody)
	ResponseApprovalsHashes    ResponseType = ResponseType(RecordApprovalsHashes)
	ResponseBlockMetadata      ResponseType = ResponseType(RecordBlockMetadata)
	ResponseTransaction        ResponseType = ResponseType(RecordTransaction)
	ResponseExecutionResult    ResponseType = ResponseType(RecordExecutionResult)
	ResponseTransfer           ResponseType = ResponseType(RecordTransfer)
	ResponseFinalizedApprovals ResponseType = ResponseType(RecordFinalizedApprovals)

	ResponseUptime              ResponseType = 20
	ResponsePeers               ResponseType = 21
	ResponseLastProgress        ResponseType = 22
	ResponseReactorState        ResponseType = 23
	ResponseNetworkName         ResponseType = 24
	ResponseNodeStatus          ResponseType = 25
	ResponseChainspecRawBytes   ResponseType = 26
	ResponseAvailableBlockRange ResponseType = 27
	ResponseSignedBlock         ResponseType = 28

	ResponseStoredValue                ResponseType = 40
	ResponseStoredValues               ResponseType = 41
	ResponseTrieBytes                  ResponseType = 42
	ResponseSpeculativeExecutionResult ResponseType = 43
)

var responseTypeNames = map[ResponseType]string{
	ResponseBlockHeader:                "block_header",
	ResponseBlockBody:                  "block_body",
	ResponseApprovalsHashes:            "approvals_hashes",
	ResponseBlockMetadata:              "block_metadata",
	ResponseTransaction:                "transaction",
	ResponseExecutionResult:            "execution_result",
	ResponseTransfer:                   "transfer",
	ResponseFinalizedApprovals:         "finalized_approvals",
	ResponseUptime:                     "uptime",
	ResponsePeers:                      "peers",
	ResponseLastProgress:               "last_progress",
	ResponseReactorState:               "reactor_state",
	ResponseNetworkName:                "network_name",
	ResponseNodeStatus:                 "node_status",
	ResponseChainspecRawBytes:          "chainspec_raw_bytes",
	ResponseAvailableBlockRange:        "available_block_range",
	ResponseSignedBlock:                "signed_block",
	ResponseStoredValue:                "stored_value",
	ResponseStoredValues:               "stored_values",
	ResponseTrieBytes:                  "trie_bytes",
	ResponseSpeculativeExecutionResult: "speculative_execution_result",
}

func (t ResponseType) String() string {
	if name, ok := responseTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("response_type(%d)", uint8(t))
}

// Outcome is what the dispatcher produced for one request.
type Outcome struct {
	Code    ErrorCode
	HasType bool
	Type    ResponseType
	Payload []byte
}

func Success(t ResponseType, payload []byte) Outcome {
	return Outcome{Code: NoError, HasType: true, Type: t, Payload: payload}
}

// SuccessEmpty is a unit success: no type, no payload.
func SuccessEmpty() Outcome {
	return Outcome{Code: NoError}
}

func Failure(code ErrorCode) Outcome {
	return Outcome{Code: code}
}

func (o Outcome) OK() bool {
	return o.Code == NoError
}

// Response is a decoded response envelope as seen by a client.
type Response struct {
	Request []byte
	Version uint16
	Outcome
}

// FailureOverhead is what a failure response adds to the echoed request
// frame: echo length, version, code, type flag and payload length.
const FailureOverhead = 4 + 2 + 2 + 1 + 4

// EncodeResponse builds a response frame body. rawRequest is echoed
// byte-for-byte. Failures never carry a type or payload.
func EncodeResponse(rawRequest []byte, o Outcome) []byte {
	if o.Code != NoError {
		o.HasType = false
		o.Payload = nil
	}
	size := 4 + len(rawRequest) + 2 + 2 + 2 + 4 + len(o.Payload)
	w := wire.NewWriter(size)
	w.Bytes(rawRequest)
	w.U16(Version)
	w.U16(uint16(o.Code))
	if o.HasType {
		w.U8(1).U8(uint8(o.Type))
	} else {
		w.U8(0)
	}
	w.Bytes(o.Payload)
	return w.Out()
}

// DecodeResponse parses a response frame body.
func DecodeResponse(body []byte) (Response, error) {
	r := wire.NewReader(body)
	var resp Response
	var err error

	if resp.Request, err = r.Bytes(); err != nil {
		return Response{}, fmt.Errorf("%w: request echo: %v", ErrMalformedResponse, err)
	}
	if resp.Version, err = r.U16(); err != nil {
		return Response{}, fmt.Errorf("%w: version: %v", ErrMalformedResponse, err)
	}
	code, err := r.U16()
	if err != nil {
		return Response{}, fmt.Errorf("%w: error code: %v", ErrMalformedResponse, err)
	}
	resp.Code = ErrorCode(code)

	present, err := r.U8()
	if err != nil {
		return Response{}, fmt.Errorf("%w: response type: %v", ErrMalformedResponse, err)
	}
	switch present {
	case 0:
	case 1:
		t, err := r.U8()
		if err != nil {
			return Response{}, fmt.Errorf("%w: response type: %v", ErrMalformedResponse, err)
		}
		resp.HasType = true
		resp.Type = ResponseType(t)
	default:
		return Response{}, fmt.Errorf("%w: response type marker %d", ErrMalformedResponse, present)
	}

	if resp.Payload, err = r.Bytes(); err != nil {
		return Response{}, fmt.Errorf("%w: payload: %v", ErrMalformedResponse, err)
	}
	if err := r.Done(); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return resp, nil
}
