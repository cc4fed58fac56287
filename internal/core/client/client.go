package client

import (
	"fmt"
	"math"
	"net"
	"strings"

	"github.com/patchgate/patchgate/internal/packets"
)

// Client represents one game client (or its launcher) connected to a
// gateway listener.
type Client struct {
	connection net.Conn
	ipAddr     string
	port       string

	// Version the client reported in its patch request, if it has.
	ReportedVersion uint32

	// Debugging information used for logging purposes.
	DebugTags map[string]interface{}
}

func NewClient(connection net.Conn) *Client {
	addr := connection.RemoteAddr().String()
	ipAddr, port := addr, ""
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		ipAddr, port = addr[:i], addr[i+1:]
	}

	return &Client{
		connection: connection,
		ipAddr:     ipAddr,
		port:       port,
		DebugTags:  make(map[string]interface{}),
	}
}

func (c *Client) IPAddr() string { return c.ipAddr }
func (c *Client) Port() string   { return c.port }

// Read consumes the available bytes directly from the client's connection.
func (c *Client) Read(b []byte) (int, error) {
	return c.connection.Read(b)
}

// Write directly sends data to the client over its connection.
func (c *Client) Write(b []byte) (int, error) {
	return c.connection.Write(b)
}

// Close the connection.
func (c *Client) Close() error {
	return c.connection.Close()
}

// Send marshals a packet and writes the framed bytes to the client. A packet
// too large for the u16 size field is refused; its header would have wrapped
// and the client would misparse everything after it.
func (c *Client) Send(packet packets.Marshaler) error {
	data := packet.Marshal()
	if len(data) > math.MaxUint16 {
		return fmt.Errorf("packet too large to frame (%d bytes) for client %v", len(data), c.IPAddr())
	}
	return c.transmit(data)
}

// transmit writes the contents of data to the connection until all of it has
// been flushed.
func (c *Client) transmit(data []byte) error {
	bytesSent := 0

	for bytesSent < len(data) {
		n, err := c.Write(data[bytesSent:])
		if err != nil {
			return fmt.Errorf("failed to send to client %v: %s", c.IPAddr(), err.Error())
		}
		bytesSent += n
	}

	return nil
}
