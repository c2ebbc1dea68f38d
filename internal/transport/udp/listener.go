// Package udp carries SCHC fragments over UDP datagrams, one fragment per
// datagram.
package udp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"

	"firestige.xyz/schc/internal/log"
)

const (
	defaultBatchSize   = 32
	defaultMaxDatagram = 2048
)

// ListenerConfig sizes the receive batch.
type ListenerConfig struct {
	Addr        string
	BatchSize   int
	MaxDatagram int
}

// Listener reads datagrams in batches.
type Listener struct {
	raw   net.PacketConn
	conn  *ipv4.PacketConn
	batch int
	max   int
}

// Listen binds a UDP socket on cfg.Addr.
func Listen(ctx context.Context, cfg ListenerConfig) (*Listener, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxDatagram <= 0 {
		cfg.MaxDatagram = defaultMaxDatagram
	}

	var lc net.ListenConfig
	raw, err := lc.ListenPacket(ctx, "udp4", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}
	return &Listener{
		raw:   raw,
		conn:  ipv4.NewPacketConn(raw),
		batch: cfg.BatchSize,
		max:   cfg.MaxDatagram,
	}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.raw.LocalAddr() }

// Serve reads until ctx is done or the listener is closed, handing a copy
// of every datagram to fn. fn runs on the reading goroutine.
func (l *Listener) Serve(ctx context.Context, fn func([]byte)) error {
	logger := log.GetLogger().WithField("addr", l.Addr().String())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			l.raw.Close()
		case <-stop:
		}
	}()

	msgs := make([]ipv4.Message, l.batch)
	for i := range msgs {
		msgs[i].Buffers = [][]byte{make([]byte, l.max)}
	}

	logger.Info("udp listener serving")
	for {
		n, err := l.conn.ReadBatch(msgs, 0)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Info("udp listener stopped")
				return nil
			}
			return fmt.Errorf("udp read failed: %w", err)
		}
		for i := 0; i < n; i++ {
			fn(bytes.Clone(msgs[i].Buffers[0][:msgs[i].N]))
		}
	}
}

// Close releases the socket.
func (l *Listener) Close() error {
	err := l.raw.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
