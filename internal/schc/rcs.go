package schc

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// RCSLen is the length of the reassembly check sequence carried by the final
// fragment when the integrity check is enabled.
const RCSLen = 4

// Checksum computes the reassembly check sequence of a whole message.
func Checksum(msg []byte) uint32 { return crc32.ChecksumIEEE(msg) }

// SplitRCS separates the check sequence from the payload of a final fragment.
func SplitRCS(payload []byte) (uint32, []byte, error) {
	if len(payload) < RCSLen {
		return 0, nil, fmt.Errorf("%w: final fragment has %d bytes, check sequence needs %d", ErrTruncatedHeader, len(payload), RCSLen)
	}
	return binary.BigEndian.Uint32(payload[:RCSLen]), payload[RCSLen:], nil
}
