// Package pcapx extracts ELPIS datagrams from packet captures. The protocol
// rides UDP; each datagram payload is one decodable buffer of sub-messages.
package pcapx

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// DefaultPort is the UDP port the protocol is registered on.
const DefaultPort = 20000

// ErrNoPackets indicates the capture held no matching datagrams.
var ErrNoPackets = errors.New("no matching udp datagrams in capture")

// Datagram is one UDP payload lifted out of a capture.
type Datagram struct {
	Timestamp time.Time
	SrcIP     net.IP
	DstIP     net.IP
	SrcPort   int
	DstPort   int
	Payload   []byte
}

// ExtractFile reads a pcap file and returns the UDP payloads carried on the
// given port. A non-positive port selects DefaultPort.
func ExtractFile(path string, port int) ([]Datagram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	defer f.Close()
	grams, err := Extract(f, port)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return grams, nil
}

// Extract reads a pcap stream and returns the UDP payloads carried on the
// given port, in capture order. Packets that do not decode as UDP on that
// port are skipped, matching how a capture filter would behave.
func Extract(r io.Reader, port int) ([]Datagram, error) {
	if port <= 0 {
		port = DefaultPort
	}
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}

	var grams []Datagram
	for {
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return grams, fmt.Errorf("read packet: %w", err)
		}
		pkt := gopacket.NewPacket(data, pr.LinkType(), gopacket.Default)
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if int(udp.SrcPort) != port && int(udp.DstPort) != port {
			continue
		}
		gram := Datagram{
			Timestamp: ci.Timestamp,
			SrcPort:   int(udp.SrcPort),
			DstPort:   int(udp.DstPort),
			Payload:   append([]byte(nil), udp.Payload...),
		}
		if ipLayer := pkt.Layer(layers.LayerTypeIPv4); ipLayer != nil {
			ip := ipLayer.(*layers.IPv4)
			gram.SrcIP = ip.SrcIP
			gram.DstIP = ip.DstIP
		} else if ipLayer := pkt.Layer(layers.LayerTypeIPv6); ipLayer != nil {
			ip := ipLayer.(*layers.IPv6)
			gram.SrcIP = ip.SrcIP
			gram.DstIP = ip.DstIP
		}
		grams = append(grams, gram)
	}
	if len(grams) == 0 {
		return nil, ErrNoPackets
	}
	return grams, nil
}
