package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/sirupsen/logrus"

	"github.com/patchgate/patchgate/internal/core/debug"
	"github.com/patchgate/patchgate/internal/packets"
	"github.com/patchgate/patchgate/internal/registry"
)

// flowKey identifies one direction of one TCP connection.
type flowKey struct {
	src, dst uint16
}

type sniffer struct {
	proxyPort uint16
	logger    *logrus.Logger

	// Reassembly buffers, one per flow direction. The protocol frames every
	// packet with its total length so segment boundaries don't matter.
	buffers map[flowKey][]byte
}

func newSniffer(proxyPort uint16) *sniffer {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetOutput(os.Stdout)

	return &sniffer{
		proxyPort: proxyPort,
		logger:    logger,
		buffers:   make(map[flowKey][]byte),
	}
}

func (s *sniffer) startReading(packetChan chan gopacket.Packet) {
	for packet := range packetChan {
		transport := packet.TransportLayer()
		app := packet.ApplicationLayer()
		if transport == nil || app == nil {
			continue
		}

		flow := transport.TransportFlow()
		key := flowKey{
			src: binary.BigEndian.Uint16(flow.Src().Raw()),
			dst: binary.BigEndian.Uint16(flow.Dst().Raw()),
		}
		s.handleSegment(key, app.Payload())
	}
}

// handleSegment appends the payload to the flow's buffer and emits every
// complete framed packet now available.
func (s *sniffer) handleSegment(key flowKey, data []byte) {
	buffer := append(s.buffers[key], data...)

	for len(buffer) >= packets.HeaderSize {
		header, err := packets.PeekHeader(buffer)
		if err != nil || header.Size < packets.HeaderSize {
			// Unframed or mid-stream garbage; drop the flow's buffer.
			buffer = nil
			break
		}
		if int(header.Size) > len(buffer) {
			break
		}

		debug.DumpPacket(s.logger, s.describeFlow(key), buffer[:header.Size])
		buffer = buffer[header.Size:]
	}

	s.buffers[key] = buffer
}

// describeFlow labels the direction by which endpoint is a gateway port.
func (s *sniffer) describeFlow(key flowKey) string {
	if s.isServerPort(key.dst) {
		return fmt.Sprintf("client:%d -> server:%d", key.src, key.dst)
	}
	if s.isServerPort(key.src) {
		return fmt.Sprintf("server:%d -> client:%d", key.src, key.dst)
	}
	return fmt.Sprintf("%d -> %d", key.src, key.dst)
}

func (s *sniffer) isServerPort(port uint16) bool {
	if port == s.proxyPort {
		return true
	}
	return int(port) >= registry.BasePort && int(port) <= registry.BasePort+registry.MaxVersionID
}
