// The sniffer command captures gateway traffic off the wire and prints the
// decoded packets. Useful for debugging client behavior without touching
// the server's own packet logging.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

var (
	device    = flag.String("d", "en0", "Device on which to listen for packets")
	proxyPort = flag.Int("proxy-port", 15779, "Port of the gateway's redirect proxy")
)

func main() {
	flag.Parse()

	handle, err := pcap.OpenLive(*device, math.MaxInt32, false, pcap.BlockForever)
	if err != nil {
		exit("error opening handle: %v", err)
	}
	// Gateway listeners live in the 32xxx range; the proxy port is configurable.
	filter := fmt.Sprintf("tcp and (portrange 32000-32999 or port %d)", *proxyPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		exit("error setting filter: %v", err)
	}

	s := newSniffer(uint16(*proxyPort))
	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	s.startReading(packetSource.Packets())
}

func exit(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}
