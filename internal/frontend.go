package internal

import (
	"context"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/patchgate/patchgate/internal/core"
	"github.com/patchgate/patchgate/internal/core/client"
	coredebug "github.com/patchgate/patchgate/internal/core/debug"
	"github.com/patchgate/patchgate/internal/packets"
)

// connectedClients tracks sessions across all frontends so the configured
// connection ceiling applies to the process as a whole.
var connectedClients = newClientList()

type clientList struct {
	mu      sync.Mutex
	clients map[*client.Client]struct{}
}

func newClientList() *clientList {
	return &clientList{clients: make(map[*client.Client]struct{})}
}

func (l *clientList) add(c *client.Client) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clients[c] = struct{}{}
}

func (l *clientList) remove(c *client.Client) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, c)
}

func (l *clientList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// frontend implements the concurrent client connection logic for one bound
// endpoint.
//
// Data is read from any connected clients and passed to a backend instance,
// abstracting the lower level connection details away from the Backends.
type frontend struct {
	Address string
	Backend Backend
	Config  *core.Config
	Logger  *logrus.Logger
}

// Start initializes the server backend and opens a TCP socket for the specified
// server. A blocking loop for accepting client connections is spun off in its own
// goroutine and added to the WaitGroup. Context cancellations will stop the server.
func (f *frontend) Start(ctx context.Context, wg *sync.WaitGroup) error {
	if err := f.Backend.Init(ctx); err != nil {
		return fmt.Errorf("error initializing %s server: %v", f.Backend.Identifier(), err)
	}

	socket, err := f.createSocket()
	if err != nil {
		return fmt.Errorf("error creating socket on %s: %v", f.Address, err)
	}

	wg.Add(1)
	go f.startBlockingLoop(ctx, socket, wg)

	return nil
}

// createSocket opens a TCP socket to listen for client connections on the
// Address provided to the frontend.
func (f *frontend) createSocket() (*net.TCPListener, error) {
	hostAddr, err := net.ResolveTCPAddr("tcp", f.Address)
	if err != nil {
		return nil, fmt.Errorf("error resolving address %s", err.Error())
	}

	socket, err := net.ListenTCP("tcp", hostAddr)
	if err != nil {
		return nil, fmt.Errorf("error listening on socket: %s", err.Error())
	}

	return socket, nil
}

// startBlockingLoop implements a connection handling loop that's purely responsible
// for accepting new connections and spinning off goroutines for the Backend to
// handle them.
func (f *frontend) startBlockingLoop(ctx context.Context, socket *net.TCPListener, wg *sync.WaitGroup) {
	defer wg.Done()
	defer socket.Close()

	f.Logger.Printf("[%s] waiting for connections on %v", f.Backend.Identifier(), f.Address)

	connections := make(chan *net.TCPConn)
	go func() {
		for {
			// Poll until we can accept more clients.
			for f.Config.MaxConnections > 0 && connectedClients.len() >= f.Config.MaxConnections {
				time.Sleep(time.Second)
			}

			connection, err := socket.AcceptTCP()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				f.Logger.Warnf("failed to accept connection: %s", err.Error())
				continue
			}

			select {
			case connections <- connection:
			case <-ctx.Done():
				_ = connection.Close()
				return
			}
		}
	}()

	clientWg := &sync.WaitGroup{}
handleLoop:
	for {
		select {
		case <-ctx.Done():
			break handleLoop
		case connection := <-connections:
			clientWg.Add(1)
			// Note: If there is eventually a need to implement worker pooling rather
			// than spawning new goroutines for each client, this is where it should
			// be implemented.
			go f.acceptClient(ctx, connection, clientWg)
		}
	}

	f.Logger.Infof("[%v] shutting down (waiting for connections to close)", f.Backend.Identifier())
	clientWg.Wait()
	f.Logger.Infof("[%v] exited", f.Backend.Identifier())
}

// acceptClient takes a connection and attempts to initiate a "session" by setting
// up the Client and sending the welcome packets. If it succeeds, the goroutine
// moves into the packet processing loop.
func (f *frontend) acceptClient(ctx context.Context, connection *net.TCPConn, wg *sync.WaitGroup) {
	defer wg.Done()

	c := client.NewClient(connection)
	f.Backend.SetUpClient(c)

	f.Logger.Infof("[%s] accepted connection from %s", f.Backend.Identifier(), c.IPAddr())

	if err := f.Backend.Handshake(c); err != nil {
		f.Logger.Errorf("Handshake() failed for client %s: %s", c.IPAddr(), err)
		_ = connection.Close()
		return
	}

	connectedClients.add(c)
	f.processPackets(ctx, c)
}

// processPackets starts a blocking loop dedicated to reading data sent from
// a game client and only returns once the connection has closed.
func (f *frontend) processPackets(ctx context.Context, c *client.Client) {
	defer f.closeConnectionAndRecover(f.Backend.Identifier(), c)

	buffer := make([]byte, 2048)
	var packetSize int
	var err error

	for {
		select {
		case <-ctx.Done():
			// For now just allow the deferred function to close the connection.
			return
		default:
		}

		buffer, packetSize, err = f.readNextPacket(c, buffer)

		if err == io.EOF {
			break
		} else if err != nil {
			f.Logger.Warn(err.Error())
			break
		}

		// Only the framed bytes; the rest of the buffer may hold stale data
		// from earlier packets.
		packet := buffer[:packetSize]

		if f.Config.Debugging.PacketLoggingEnabled {
			coredebug.DumpPacket(f.Logger, "client->server", packet)
		}

		if err = f.Backend.Handle(ctx, c, packet); err != nil {
			f.Logger.Warn("error in client communication: " + err.Error())
			return
		}
	}
}

// closeConnectionAndRecover is the failsafe that catches any panics, disconnects
// the client, and removes them from the list regardless of the state of the
// connection. A panicking session can only ever take down itself.
func (f *frontend) closeConnectionAndRecover(serverName string, c *client.Client) {
	if err := recover(); err != nil {
		f.Logger.Errorf("error in client communication with %s: error=%s, trace: %s",
			c.IPAddr(), err, debug.Stack())
	}

	if err := c.Close(); err != nil {
		f.Logger.Warnf("failed to close client connection: %s", err)
	}

	connectedClients.remove(c)

	f.Logger.Infof("[%s] disconnected client %s", serverName, c.IPAddr())
}

// readNextPacket is a blocking call that only returns once the client has
// sent a complete packet, returning the buffer and the framed packet's size.
func (f *frontend) readNextPacket(c *client.Client, buffer []byte) ([]byte, int, error) {
	// Read the packet header.
	if err := f.readDataFromClient(c, packets.HeaderSize, buffer); err != nil {
		return buffer, 0, err
	}

	header, err := packets.PeekHeader(buffer)
	if err != nil {
		return buffer, 0, err
	}

	// A size smaller than the header itself can't be framed data; treat it as
	// a protocol violation and drop the session.
	packetSize := int(header.Size)
	if packetSize < packets.HeaderSize {
		return buffer, 0, fmt.Errorf("malformed packet header from %s (size=%d)", c.IPAddr(), packetSize)
	}

	// Grow the receive buffer if the client sends a packet bigger than its
	// current capacity.
	if packetSize > cap(buffer) {
		newBuf := make([]byte, cap(buffer)+packetSize)
		copy(newBuf, buffer)
		buffer = newBuf
	}

	// Read the rest of the packet.
	if err := f.readDataFromClient(c, packetSize-packets.HeaderSize, buffer[packets.HeaderSize:]); err != nil {
		return buffer, 0, err
	}

	return buffer, packetSize, nil
}

func (f *frontend) readDataFromClient(c *client.Client, n int, buffer []byte) error {
	received := 0

	for received < n {
		bytesRead, err := c.Read(buffer[received:n])
		received += bytesRead

		if bytesRead == 0 || err == io.EOF {
			return io.EOF
		} else if err != nil {
			return fmt.Errorf("socket error (%s) %s", c.IPAddr(), err.Error())
		}
	}

	return nil
}
