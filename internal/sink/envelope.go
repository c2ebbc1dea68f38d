package sink

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"firestige.xyz/schc/internal/reassembly"
)

// Envelope field numbers.
const (
	fieldRuleID      protowire.Number = 1
	fieldDTag        protowire.Number = 2
	fieldPayload     protowire.Number = 3
	fieldCompletedAt protowire.Number = 4
)

var errEnvelope = errors.New("sink: malformed envelope")

// EncodeEnvelope serializes msg in protobuf wire format:
//
//	message Envelope {
//	  uint32 rule_id = 1;
//	  uint32 dtag = 2;
//	  bytes payload = 3;
//	  int64 completed_at_unix_nano = 4;
//	}
func EncodeEnvelope(msg Message) []byte {
	b := make([]byte, 0, len(msg.Payload)+24)
	b = protowire.AppendTag(b, fieldRuleID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(msg.Key.RuleID))
	b = protowire.AppendTag(b, fieldDTag, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(msg.Key.DTag))
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, msg.Payload)
	b = protowire.AppendTag(b, fieldCompletedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(msg.CompletedAt.UnixNano()))
	return b
}

// DecodeEnvelope parses an envelope. Unknown fields are skipped.
func DecodeEnvelope(b []byte) (Message, error) {
	var msg Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, fmt.Errorf("%w: %w", errEnvelope, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldRuleID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: rule_id: %w", errEnvelope, protowire.ParseError(n))
			}
			msg.Key.RuleID = uint32(v)
			b = b[n:]
		case num == fieldDTag && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: dtag: %w", errEnvelope, protowire.ParseError(n))
			}
			msg.Key.DTag = uint32(v)
			b = b[n:]
		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: payload: %w", errEnvelope, protowire.ParseError(n))
			}
			msg.Payload = append([]byte(nil), v...)
			b = b[n:]
		case num == fieldCompletedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: completed_at: %w", errEnvelope, protowire.ParseError(n))
			}
			msg.CompletedAt = time.Unix(0, int64(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: field %d: %w", errEnvelope, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return msg, nil
}

// envelopeKey is the partitioning key of a message.
func envelopeKey(k reassembly.Key) []byte { return []byte(k.String()) }
