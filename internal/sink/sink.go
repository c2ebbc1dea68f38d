// Package sink delivers reassembled messages to their consumers.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/schc/internal/config"
	"firestige.xyz/schc/internal/metrics"
	"firestige.xyz/schc/internal/reassembly"
)

// Message is one reassembled application message.
type Message struct {
	Key         reassembly.Key
	Payload     []byte
	CompletedAt time.Time
}

// Sink consumes messages.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
	Close() error
}

// New builds a sink from its configuration. Options are decoded into the
// sink's own config struct.
func New(cfg config.SinkConfig) (Sink, error) {
	switch cfg.Type {
	case "console":
		var c ConsoleConfig
		if err := decode(cfg.Options, &c); err != nil {
			return nil, err
		}
		return NewConsole(c)
	case "kafka":
		var c KafkaConfig
		if err := decode(cfg.Options, &c); err != nil {
			return nil, err
		}
		return NewKafka(c)
	default:
		return nil, fmt.Errorf("unsupported sink type: %s", cfg.Type)
	}
}

func decode(in map[string]any, out any) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := d.Decode(in); err != nil {
		return fmt.Errorf("invalid sink options: %w", err)
	}
	return nil
}

// Multi delivers every message to all sinks.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

// Deliver tries every sink and joins their errors.
func (m Multi) Deliver(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, msg); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(s.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds one sink per entry. With no entries it returns a console
// sink on stdout.
func FromConfig(cfgs []config.SinkConfig) (Multi, error) {
	if len(cfgs) == 0 {
		c, err := NewConsole(ConsoleConfig{})
		if err != nil {
			return nil, err
		}
		return Multi{c}, nil
	}
	var out Multi
	for i, c := range cfgs {
		s, err := New(c)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("sinks[%d]: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}
