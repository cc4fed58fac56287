// Package proxy implements the fixed-port redirect listener. The client
// binary only knows this one port, so every session starts here and gets
// spliced onto the gateway listener for its version.
package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/patchgate/patchgate/internal/core"
	"github.com/patchgate/patchgate/internal/packets"
	"github.com/patchgate/patchgate/internal/registry"
)

// routeSelectTimeout bounds how long a connection may sit idle before it
// announces its version.
var routeSelectTimeout = 10 * time.Second

// Server accepts connections on the fixed client port and relays each one
// to the gateway listener for its version.
type Server struct {
	Config   *core.Config
	Logger   *logrus.Logger
	Registry *registry.Registry
}

// Start opens the proxy socket and spins off its accept loop. Context
// cancellation stops the server.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup) error {
	address := fmt.Sprintf("%s:%d", s.Config.Hostname, s.Config.Proxy.Port)
	hostAddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return fmt.Errorf("error resolving address %s", err.Error())
	}

	socket, err := net.ListenTCP("tcp", hostAddr)
	if err != nil {
		return fmt.Errorf("error listening on socket: %s", err.Error())
	}

	wg.Add(1)
	go s.startBlockingLoop(ctx, socket, wg)

	return nil
}

func (s *Server) startBlockingLoop(ctx context.Context, socket *net.TCPListener, wg *sync.WaitGroup) {
	defer wg.Done()
	defer socket.Close()

	s.Logger.Printf("[PROXY] waiting for connections on %v", socket.Addr())

	connections := make(chan *net.TCPConn)
	go func() {
		for {
			connection, err := socket.AcceptTCP()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					s.Logger.Warnf("[PROXY] failed to accept connection: %s", err.Error())
					continue
				}
			}

			select {
			case connections <- connection:
			case <-ctx.Done():
				_ = connection.Close()
				return
			}
		}
	}()

	var relayWg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			socket.Close()
			relayWg.Wait()
			return
		case connection := <-connections:
			relayWg.Add(1)
			go func(connection *net.TCPConn) {
				defer relayWg.Done()
				s.handleConnection(connection)
			}(connection)
		}
	}
}

// handleConnection resolves the connection's target version and splices it
// onto that version's gateway listener. Any failure before the relay starts
// just drops the connection; the protocol has no error reply here.
func (s *Server) handleConnection(connection *net.TCPConn) {
	version, err := s.resolveVersion(connection)
	if err != nil {
		s.Logger.Warnf("[PROXY] dropping %s: %v", connection.RemoteAddr(), err)
		connection.Close()
		return
	}

	target := s.Registry.Lookup(version)
	if target == nil {
		s.Logger.Warnf("[PROXY] dropping %s: version %d is not registered",
			connection.RemoteAddr(), version)
		connection.Close()
		return
	}

	upstreamAddr := net.JoinHostPort(s.Config.Hostname, strconv.Itoa(target.Port()))
	upstream, err := net.Dial("tcp", upstreamAddr)
	if err != nil {
		s.Logger.Warnf("[PROXY] failed to dial %s for %s: %v",
			upstreamAddr, connection.RemoteAddr(), err)
		connection.Close()
		return
	}

	s.Logger.Debugf("[PROXY] relaying %s to %s", connection.RemoteAddr(), upstreamAddr)
	relay(connection, upstream)
}

// resolveVersion picks the gateway this connection belongs to. A configured
// target version pins every connection; otherwise the client's first packet
// must be a route select, which the proxy consumes.
func (s *Server) resolveVersion(connection *net.TCPConn) (int, error) {
	if pinned := s.Config.Proxy.TargetVersion; pinned != nil {
		return *pinned, nil
	}

	connection.SetReadDeadline(time.Now().Add(routeSelectTimeout))
	defer connection.SetReadDeadline(time.Time{})

	headerBytes := make([]byte, packets.HeaderSize)
	if _, err := io.ReadFull(connection, headerBytes); err != nil {
		return 0, fmt.Errorf("error reading route select header: %w", err)
	}

	header, err := packets.PeekHeader(headerBytes)
	if err != nil {
		return 0, err
	}
	if header.Type != packets.RouteSelectType {
		return 0, fmt.Errorf("expected route select, got packet %#04x", header.Type)
	}
	if header.Size < packets.HeaderSize {
		return 0, fmt.Errorf("malformed route select header")
	}

	data := make([]byte, header.Size)
	copy(data, headerBytes)
	if _, err := io.ReadFull(connection, data[packets.HeaderSize:]); err != nil {
		return 0, fmt.Errorf("error reading route select: %w", err)
	}

	routeSelect, err := packets.UnmarshalRouteSelect(data)
	if err != nil {
		return 0, err
	}
	return int(routeSelect.Version), nil
}
