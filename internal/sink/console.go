package sink

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"
)

// ConsoleConfig selects how payloads are printed.
type ConsoleConfig struct {
	Format string    `mapstructure:"format"` // text | hex
	Writer io.Writer `mapstructure:"-"`
}

// Console writes one line per message.
type Console struct {
	mu  sync.Mutex
	w   io.Writer
	hex bool
}

func NewConsole(cfg ConsoleConfig) (*Console, error) {
	c := &Console{w: cfg.Writer}
	if c.w == nil {
		c.w = os.Stdout
	}
	switch cfg.Format {
	case "", "text":
	case "hex":
		c.hex = true
	default:
		return nil, fmt.Errorf("invalid console format: %s", cfg.Format)
	}
	return c, nil
}

func (c *Console) Name() string { return "console" }

func (c *Console) Deliver(_ context.Context, msg Message) error {
	var body string
	if c.hex {
		body = hex.EncodeToString(msg.Payload)
	} else {
		body = strconv.Quote(string(msg.Payload))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "%s rule=%d dtag=%d len=%d %s\n",
		msg.CompletedAt.UTC().Format(time.RFC3339Nano), msg.Key.RuleID, msg.Key.DTag, len(msg.Payload), body)
	return err
}

func (c *Console) Close() error { return nil }
