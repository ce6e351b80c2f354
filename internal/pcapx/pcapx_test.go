package pcapx

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func buildCapture(t *testing.T, packets []testPacket) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("WriteFileHeader failed: %v", err)
	}
	for i, p := range packets {
		data := serializeUDP(t, p)
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(int64(1700000000+i), 0),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatalf("WritePacket failed: %v", err)
		}
	}
	return &buf
}

type testPacket struct {
	srcPort int
	dstPort int
	payload []byte
}

func serializeUDP(t *testing.T, p testPacket) []byte {
	t.Helper()
	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	udp := layers.UDP{
		SrcPort: layers.UDPPort(p.srcPort),
		DstPort: layers.UDPPort(p.dstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(&ip); err != nil {
		t.Fatalf("SetNetworkLayerForChecksum failed: %v", err)
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &ip, &udp, gopacket.Payload(p.payload)); err != nil {
		t.Fatalf("SerializeLayers failed: %v", err)
	}
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	capture := buildCapture(t, []testPacket{
		{srcPort: 40000, dstPort: DefaultPort, payload: []byte{0x01, 0x02, 0x03}},
		{srcPort: 40000, dstPort: 53, payload: []byte{0xFF}},
		{srcPort: DefaultPort, dstPort: 40001, payload: []byte{0x04, 0x05}},
	})
	grams, err := Extract(capture, 0)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(grams) != 2 {
		t.Fatalf("datagrams = %d, want 2", len(grams))
	}
	first := grams[0]
	if first.DstPort != DefaultPort || !bytes.Equal(first.Payload, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("first datagram = %+v", first)
	}
	if !first.SrcIP.Equal(net.IP{10, 0, 0, 1}) || !first.DstIP.Equal(net.IP{10, 0, 0, 2}) {
		t.Fatalf("first addresses = %v -> %v", first.SrcIP, first.DstIP)
	}
	// Replies from the registered port are kept too.
	if grams[1].SrcPort != DefaultPort {
		t.Fatalf("second datagram = %+v", grams[1])
	}
}

func TestExtractCustomPort(t *testing.T) {
	capture := buildCapture(t, []testPacket{
		{srcPort: 40000, dstPort: 9999, payload: []byte{0xAA}},
		{srcPort: 40000, dstPort: DefaultPort, payload: []byte{0xBB}},
	})
	grams, err := Extract(capture, 9999)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(grams) != 1 || !bytes.Equal(grams[0].Payload, []byte{0xAA}) {
		t.Fatalf("datagrams = %+v, want one on port 9999", grams)
	}
}

func TestExtractNoMatches(t *testing.T) {
	capture := buildCapture(t, []testPacket{
		{srcPort: 40000, dstPort: 53, payload: []byte{0x01}},
	})
	if _, err := Extract(capture, 0); !errors.Is(err, ErrNoPackets) {
		t.Fatalf("error = %v, want %v", err, ErrNoPackets)
	}
}

func TestExtractNotACapture(t *testing.T) {
	if _, err := Extract(bytes.NewReader([]byte("not a pcap")), 0); err == nil {
		t.Fatal("Extract accepted a non-capture stream")
	}
}
