// Package protocol owns the binary port request and response contract.
//
// Ownership boundary:
// - request header and closed tag taxonomy
// - request payload decoding and encoding
// - response envelope with raw request echo
// - error code table for each protocol version
//
// Framing lives in protocol/frame and byte primitives in protocol/wire.
package protocol
