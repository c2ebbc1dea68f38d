// Package reassembly rebuilds messages from SCHC No-ACK fragments.
//
// A Manager keys in-flight messages by (rule id, dtag) and owns one Buffer
// per key. Buffers are discarded on completion, on TTL expiry driven by
// Purge, or explicitly through Evict. Expired partial messages are dropped
// silently: the No-ACK mode has no channel to report loss to the sender.
package reassembly

import "errors"

var (
	ErrMalformed       = errors.New("reassembly: malformed fragment")
	ErrUnknownRule     = errors.New("reassembly: unknown rule")
	ErrNotComplete     = errors.New("reassembly: buffer not complete")
	ErrReassemblyLimit = errors.New("reassembly: limit exceeded")
)
