// Package pcap reads and writes SCHC fragments carried in UDP packets of
// pcap capture files.
package pcap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Datagram is the UDP payload of one captured packet.
type Datagram struct {
	Timestamp time.Time
	Src       *net.UDPAddr
	Dst       *net.UDPAddr
	Payload   []byte
}

// Reader yields UDP payloads from a pcap stream.
type Reader struct {
	r    *pcapgo.Reader
	port uint16

	packets int
	skipped int
}

// NewReader reads the pcap file header from r. A non-zero port keeps only
// datagrams sent to that destination port.
func NewReader(r io.Reader, port uint16) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap stream: %w", err)
	}
	return &Reader{r: pr, port: port}, nil
}

// Next returns the next matching datagram, or io.EOF at the end of the
// capture. Packets that are not UDP are skipped.
func (r *Reader) Next() (Datagram, error) {
	for {
		data, ci, err := r.r.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Datagram{}, io.EOF
			}
			return Datagram{}, fmt.Errorf("failed to read packet: %w", err)
		}
		r.packets++

		packet := gopacket.NewPacket(data, r.r.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udpLayer, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			r.skipped++
			continue
		}
		if r.port != 0 && uint16(udpLayer.DstPort) != r.port {
			r.skipped++
			continue
		}

		d := Datagram{
			Timestamp: ci.Timestamp,
			Src:       &net.UDPAddr{Port: int(udpLayer.SrcPort)},
			Dst:       &net.UDPAddr{Port: int(udpLayer.DstPort)},
			Payload:   bytes.Clone(udpLayer.Payload),
		}
		if ip, ok := packet.NetworkLayer().(*layers.IPv4); ok {
			d.Src.IP = ip.SrcIP
			d.Dst.IP = ip.DstIP
		}
		return d, nil
	}
}

// Stats returns the packets read and how many of them were skipped.
func (r *Reader) Stats() (packets, skipped int) { return r.packets, r.skipped }
