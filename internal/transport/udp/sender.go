package udp

import (
	"context"
	"fmt"
	"net"
	"time"

	"firestige.xyz/schc/internal/metrics"
	"firestige.xyz/schc/internal/schc"
)

// CapacityFunc returns the payload budget for the i-th transmission of a
// message. Link conditions may change it from one fragment to the next.
type CapacityFunc func(i int) int

// FixedCapacity uses the same budget for every transmission.
func FixedCapacity(n int) CapacityFunc {
	return func(int) int { return n }
}

// SenderConfig configures a Sender.
type SenderConfig struct {
	Profile  schc.Profile
	Capacity CapacityFunc
	// Interval paces transmissions; zero sends back to back.
	Interval time.Duration
	Options  []schc.Option
}

// Sender fragments messages and writes one datagram per fragment.
type Sender struct {
	conn net.Conn
	cfg  SenderConfig
}

// NewSender wraps an established connection.
func NewSender(conn net.Conn, cfg SenderConfig) (*Sender, error) {
	if err := cfg.Profile.Validate(); err != nil {
		return nil, err
	}
	if cfg.Capacity == nil {
		return nil, fmt.Errorf("sender requires a capacity")
	}
	return &Sender{conn: conn, cfg: cfg}, nil
}

// Dial connects to addr and returns a Sender over it.
func Dial(ctx context.Context, addr string, cfg SenderConfig) (*Sender, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	s, err := NewSender(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Send fragments msg under (ruleID, dtag) and transmits every fragment.
// Extra options are applied after the configured ones. It returns the
// number of fragments written.
func (s *Sender) Send(ctx context.Context, msg []byte, ruleID, dtag uint32, opts ...schc.Option) (int, error) {
	all := append(append([]schc.Option{}, s.cfg.Options...), opts...)
	f, err := schc.NewFragmenter(s.cfg.Profile, msg, ruleID, dtag, all...)
	if err != nil {
		return 0, err
	}

	sent := 0
	for !f.Done() {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if sent > 0 && s.cfg.Interval > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(s.cfg.Interval):
			}
		}

		_, frag, err := f.NextFragment(s.cfg.Capacity(sent))
		if err != nil {
			return sent, err
		}
		if deadline, ok := ctx.Deadline(); ok {
			_ = s.conn.SetWriteDeadline(deadline)
		}
		if _, err := s.conn.Write(frag); err != nil {
			return sent, fmt.Errorf("udp write failed: %w", err)
		}
		sent++
		metrics.FragmentsSentTotal.Inc()
	}
	return sent, nil
}

// Close closes the underlying connection.
func (s *Sender) Close() error { return s.conn.Close() }
