package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/schc/internal/config"
	"firestige.xyz/schc/internal/log"
	"firestige.xyz/schc/internal/reassembly"
	"firestige.xyz/schc/internal/schc"
	"firestige.xyz/schc/internal/sink"
	"firestige.xyz/schc/internal/source/pcap"
)

type replayOptions struct {
	profile   string
	port      uint16
	ttl       int
	tick      time.Duration
	integrity bool
	format    string
	debug     bool
	logger    log.Logger
}

var replayOpts replayOptions

var replayCmd = &cobra.Command{
	Use:   "replay <file.pcap>",
	Short: "Reassemble fragments captured in a pcap file",
	Long: `Feed the UDP payloads of a capture file to a reassembler, in capture order,
and print every completed message. Buffer lifetimes follow the capture
timestamps: one tick elapses per --tick of capture time.

Examples:
  schc replay out.pcap
  schc replay --port 5683 --format hex capture.pcap`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Open(args[0])
		if err != nil {
			exitWithError("failed to open capture", err)
		}
		defer f.Close()

		if replayOpts.debug {
			if err := log.Init(config.LogConfig{Level: "debug", Format: "text"}); err != nil {
				exitWithError("failed to initialize logging", err)
			}
		}
		if err := runReplay(f, replayOpts, os.Stdout); err != nil {
			exitWithError("replay failed", err)
		}
	},
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayOpts.profile, "profile", schc.IETFDraft100.Name, "header profile")
	f.Uint16Var(&replayOpts.port, "port", 0, "only read datagrams sent to this port (0 = all)")
	f.IntVar(&replayOpts.ttl, "ttl", reassembly.DefaultTTL, "buffer lifetime in ticks")
	f.DurationVar(&replayOpts.tick, "tick", time.Second, "capture time per tick")
	f.BoolVar(&replayOpts.integrity, "integrity", false, "expect a check sequence on final fragments")
	f.StringVar(&replayOpts.format, "format", "text", "payload format: text|hex")
	f.BoolVar(&replayOpts.debug, "debug", false, "log every fragment that is not accepted")
}

func runReplay(r io.Reader, o replayOptions, out io.Writer) error {
	p, err := schc.ProfileByName(o.profile)
	if err != nil {
		return err
	}
	if o.tick <= 0 {
		return fmt.Errorf("tick must be positive")
	}
	m, err := reassembly.NewManager(reassembly.Config{Profile: p, TTL: o.ttl, IntegrityCheck: o.integrity})
	if err != nil {
		return err
	}
	console, err := sink.NewConsole(sink.ConsoleConfig{Format: o.format, Writer: out})
	if err != nil {
		return err
	}
	src, err := pcap.NewReader(r, o.port)
	if err != nil {
		return err
	}

	logger := o.logger
	if logger == nil {
		logger = log.GetLogger()
	}
	logger = logger.WithField("component", "replay")

	var lastTick time.Time
	for {
		d, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if lastTick.IsZero() {
			lastTick = d.Timestamp
		}
		for d.Timestamp.Sub(lastTick) >= o.tick {
			m.Purge()
			lastTick = lastTick.Add(o.tick)
		}

		res, err := m.OnFragment(d.Payload)
		if err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"status":   res.Status.String(),
				"captured": d.Timestamp.UTC().Format(time.RFC3339Nano),
			}).Debug("fragment not accepted")
		}
		if res.Status != reassembly.StatusCompleted {
			continue
		}
		msg := sink.Message{Key: res.Key, Payload: res.Payload, CompletedAt: d.Timestamp}
		if err := console.Deliver(context.Background(), msg); err != nil {
			return err
		}
	}

	packets, skipped := src.Stats()
	s := m.Stats()
	fmt.Fprintf(out, "packets=%d skipped=%d completed=%d duplicates=%d malformed=%d expired=%d incomplete=%d\n",
		packets, skipped, s.Completed, s.Duplicates, s.Malformed, s.Expired, s.Active)
	return nil
}
