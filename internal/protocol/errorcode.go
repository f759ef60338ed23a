package protocol

import "fmt"

// ErrorCode is the u16 response status. The table below is the complete set
// for protocol version 1; numbers are never reused for a different meaning.
type ErrorCode uint16

const (
	NoError                       ErrorCode = 0
	FunctionDisabled              ErrorCode = 1
	NotFound                      ErrorCode = 2
	InternalError                 ErrorCode = 6
	BadRequest                    ErrorCode = 8
	UnsupportedRequest            ErrorCode = 9
	InvalidTransactionChainName   ErrorCode = 33
	TimestampInFuture             ErrorCode = 36
	InvalidTransactionUnspecified ErrorCode = 55
	UnsupportedVersion            ErrorCode = 60
	TransactionExpired            ErrorCode = 64
	NoSuchEntryPoint              ErrorCode = 68
	InsufficientBalance           ErrorCode = 75
	RequestThrottled              ErrorCode = 87
	MalformedInformationRequest   ErrorCode = 91
	TooLittleBytesForVersion      ErrorCode = 92
	MalformedCommandHeader        ErrorCode = 94
	MalformedPayload              ErrorCode = 95
	DuplicateTransaction          ErrorCode = 106
	OutOfGas                      ErrorCode = 107
	UnknownGetRequestTag          ErrorCode = 108
	UnknownStateRequestTag        ErrorCode = 109
	UnknownRecordID               ErrorCode = 110
	UnknownKeyTag                 ErrorCode = 111
	ExecutionFailed               ErrorCode = 112
)

var errorCodeNames = map[ErrorCode]string{
	NoError:                       "no_error",
	FunctionDisabled:              "function_disabled",
	NotFound:                      "not_found",
	InternalError:                 "internal_error",
	BadRequest:                    "bad_request",
	UnsupportedRequest:            "unsupported_request",
	InvalidTransactionChainName:   "invalid_transaction_chain_name",
	TimestampInFuture:             "timestamp_in_future",
	InvalidTransactionUnspecified: "invalid_transaction",
	UnsupportedVersion:            "unsupported_version",
	TransactionExpired:            "transaction_expired",
	NoSuchEntryPoint:              "no_such_entry_point",
	InsufficientBalance:           "insufficient_balance",
	RequestThrottled:              "request_throttled",
	MalformedInformationRequest:   "malformed_information_request",
	TooLittleBytesForVersion:      "too_little_bytes_for_version",
	MalformedCommandHeader:        "malformed_command_header",
	MalformedPayload:              "malformed_payload",
	DuplicateTransaction:          "duplicate_transaction",
	OutOfGas:                      "out_of_gas",
	UnknownGetRequestTag:          "unknown_get_request_tag",
	UnknownStateRequestTag:        "unknown_state_request_tag",
	UnknownRecordID:               "unknown_record_id",
	UnknownKeyTag:                 "unknown_key_tag",
	ExecutionFailed:               "execution_failed",
}

// Known reports whether c is defined for protocol version 1.
func (c ErrorCode) Known() bool {
	_, ok := errorCodeNames[c]
	return ok
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error_code(%d)", uint16(c))
}

// ErrorCodes returns the version 1 table, keyed by code.
func ErrorCodes() map[ErrorCode]string {
	out := make(map[ErrorCode]string, len(errorCodeNames))
	for c, n := range errorCodeNames {
		out[c] = n
	}
	return out
}
