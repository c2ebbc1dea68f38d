// Package schc implements SCHC fragment headers and the No-ACK fragmenter.
package schc

import "errors"

// Sentinel errors. Callers match them with errors.Is; most are wrapped with
// field or length detail.
var (
	ErrFieldOverflow   = errors.New("schc: field value overflows its bit width")
	ErrTruncatedHeader = errors.New("schc: truncated header")
	ErrAlreadyComplete = errors.New("schc: final fragment already emitted")
	ErrInvalidCapacity = errors.New("schc: payload capacity must be at least one byte")
	ErrWindowExhausted = errors.New("schc: message needs more fragments than a single window can index")
	ErrUnknownProfile  = errors.New("schc: unknown profile")
	ErrInvalidProfile  = errors.New("schc: invalid profile")
)
