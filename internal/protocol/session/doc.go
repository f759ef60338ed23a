// Package session owns per-connection timing for the binary port.
//
// Ownership boundary:
// - server and client timeout defaults
// - connection terminator deadlines
// - reconnect backoff
package session
