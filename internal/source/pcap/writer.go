package pcap

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const snapLen = 65536

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Writer wraps payloads in Ethernet/IPv4/UDP frames and writes them as a
// pcap stream.
type Writer struct {
	w   *pcapgo.Writer
	src *net.UDPAddr
	dst *net.UDPAddr
	buf gopacket.SerializeBuffer
}

// NewWriter writes the pcap file header to w. Frames are addressed from
// src to dst.
func NewWriter(w io.Writer, src, dst *net.UDPAddr) (*Writer, error) {
	if src.IP.To4() == nil || dst.IP.To4() == nil {
		return nil, fmt.Errorf("pcap writer needs IPv4 addresses, got %s -> %s", src, dst)
	}
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Writer{w: pw, src: src, dst: dst, buf: gopacket.NewSerializeBuffer()}, nil
}

// Write appends one packet carrying payload.
func (w *Writer) Write(ts time.Time, payload []byte) error {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    w.src.IP.To4(),
		DstIP:    w.dst.IP.To4(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(w.src.Port),
		DstPort: layers.UDPPort(w.dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}

	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(w.buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("failed to serialize packet: %w", err)
	}
	data := w.buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
	if err := w.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}
