package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/schc/internal/schc"
	"firestige.xyz/schc/internal/source/pcap"
)

type fragmentOptions struct {
	profile   string
	rule      uint32
	dtag      uint32
	capacity  int
	window    bool
	integrity bool
	pcapPath  string
	src       string
	dst       string
}

var fragmentOpts fragmentOptions

var fragmentCmd = &cobra.Command{
	Use:   "fragment <message|@file>",
	Short: "Print the fragments of a message",
	Long: `Fragment a message and print one line per fragment: index, header fields and
the fragment bytes in hex. With --pcap the fragments are also written as UDP
packets to a capture file that "schc replay" can read.

Examples:
  schc fragment --rule 1 --dtag 5 --capacity 4 --window "Hello LoRa"
  schc fragment --profile extended-16 --rule 42 --capacity 8 @payload.bin
  schc fragment --capacity 4 --pcap out.pcap "Hello LoRa"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		msg, err := readMessage(args[0])
		if err != nil {
			exitWithError("invalid message", err)
		}
		if err := runFragment(fragmentOpts, msg, os.Stdout); err != nil {
			exitWithError("fragmentation failed", err)
		}
	},
}

func init() {
	f := fragmentCmd.Flags()
	f.StringVar(&fragmentOpts.profile, "profile", schc.IETFDraft100.Name, "header profile")
	f.Uint32Var(&fragmentOpts.rule, "rule", 0, "rule id")
	f.Uint32Var(&fragmentOpts.dtag, "dtag", 0, "datagram tag")
	f.IntVar(&fragmentOpts.capacity, "capacity", 10, "payload bytes per fragment, header excluded")
	f.BoolVar(&fragmentOpts.window, "window", false, "toggle the window bit on every fcn wrap")
	f.BoolVar(&fragmentOpts.integrity, "integrity", false, "append a CRC-32 check sequence to the final fragment")
	f.StringVar(&fragmentOpts.pcapPath, "pcap", "", "also write the fragments to this pcap file")
	f.StringVar(&fragmentOpts.src, "src", "10.0.0.1:40000", "source address of pcap packets")
	f.StringVar(&fragmentOpts.dst, "dst", "10.0.0.2:5683", "destination address of pcap packets")
}

func (o fragmentOptions) schcOptions() []schc.Option {
	var opts []schc.Option
	if o.window {
		opts = append(opts, schc.WithWindow())
	}
	if o.integrity {
		opts = append(opts, schc.WithIntegrityCheck())
	}
	return opts
}

func runFragment(o fragmentOptions, msg []byte, out io.Writer) error {
	p, err := schc.ProfileByName(o.profile)
	if err != nil {
		return err
	}
	frags, err := schc.Fragments(p, msg, o.rule, o.dtag, o.capacity, o.schcOptions()...)
	if err != nil {
		return err
	}

	for i, frag := range frags {
		h, _, err := schc.Split(p, frag)
		if err != nil {
			return err
		}
		marker := ""
		if h.IsFinal(p) {
			marker = " final"
		}
		fmt.Fprintf(out, "%3d rule=%d dtag=%d w=%d fcn=%d%s %s\n",
			i, h.RuleID, h.DTag, h.Window, h.FCN, marker, hex.EncodeToString(frag))
	}

	if o.pcapPath != "" {
		if err := writePcap(o, frags); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %d packet(s) to %s\n", len(frags), o.pcapPath)
	}
	return nil
}

func writePcap(o fragmentOptions, frags [][]byte) error {
	src, err := net.ResolveUDPAddr("udp4", o.src)
	if err != nil {
		return fmt.Errorf("invalid --src: %w", err)
	}
	dst, err := net.ResolveUDPAddr("udp4", o.dst)
	if err != nil {
		return fmt.Errorf("invalid --dst: %w", err)
	}

	f, err := os.Create(o.pcapPath)
	if err != nil {
		return fmt.Errorf("failed to create pcap file: %w", err)
	}
	defer f.Close()

	w, err := pcap.NewWriter(f, src, dst)
	if err != nil {
		return err
	}
	ts := time.Now()
	for i, frag := range frags {
		if err := w.Write(ts.Add(time.Duration(i)*time.Millisecond), frag); err != nil {
			return err
		}
	}
	return f.Close()
}
